// Package admin is the soft-delete and restore subsystem. Nothing is ever
// physically removed from the database except object-storage files and
// checklist rows; everything else is tombstoned so a restore can undo it.
package admin

import "time"

type Action string

const (
	ActionDelete  Action = "DELETE"
	ActionRestore Action = "RESTORE"
)

type ResourceType string

const (
	ResourceTransaction ResourceType = "TRANSACTION"
	ResourceDocument    ResourceType = "DOCUMENT"
	// ResourceTimelineEntry appears in cascade lists only; entries are never
	// deleted on their own.
	ResourceTimelineEntry ResourceType = "TIMELINE_ENTRY"
)

func ParseResourceType(s string) (ResourceType, bool) {
	switch ResourceType(s) {
	case ResourceTransaction, ResourceDocument:
		return ResourceType(s), true
	}
	return "", false
}

// CascadedOp records one dependent row touched by a delete or restore.
type CascadedOp struct {
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
}

// Snapshot captures enough of the resource at deletion time to make the audit
// row self-describing after the resource itself is gone from normal reads.
type Snapshot struct {
	TransactionID string `json:"transaction_id"`
	ClientName    string `json:"client_name,omitempty"`
	BrokerName    string `json:"broker_name,omitempty"`
	Side          string `json:"side,omitempty"`
	Stage         string `json:"stage,omitempty"`
	Status        string `json:"status,omitempty"`
	DocumentTitle string `json:"document_title,omitempty"`
	DocumentType  string `json:"document_type,omitempty"`
}

// AuditRecord is one immutable deletion-audit row. Snapshot and Cascade are
// typed in memory; they become JSON only inside the postgres store.
type AuditRecord struct {
	ID           string
	Action       Action
	ResourceType ResourceType
	ResourceID   string
	ActorID      string
	ActorName    string
	Timestamp    time.Time
	Snapshot     Snapshot
	Cascade      []CascadedOp
}

// Preview describes what a delete would touch, without mutating anything.
type Preview struct {
	ResourceType    ResourceType
	ResourceID      string
	Documents       int
	Versions        int
	TimelineEntries int
	StorageObjects  int
	Cascade         []CascadedOp
}

// RestoreResult reports the undone cascade plus any documents whose storage
// files were hard-deleted and cannot come back.
type RestoreResult struct {
	ResourceType   ResourceType
	ResourceID     string
	Cascade        []CascadedOp
	NonRecoverable []string
}
