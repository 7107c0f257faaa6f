// Package transaction owns the brokerage transaction aggregate and its stage
// state machine. The side is fixed at creation and the current stage is a
// value of that side's catalog, never the other's.
package transaction

import (
	"time"

	"dealflow/internal/stage"
)

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusClosed     Status = "CLOSED"
	StatusTerminated Status = "TERMINATED"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusClosed, StatusTerminated:
		return Status(s), true
	}
	return "", false
}

// Transaction is the aggregate root. Stage carries the side in its type, so
// "buyer stage on a sell side" is unrepresentable. Never physically removed
// once it has dependents with history; deletion is tombstoning.
type Transaction struct {
	ID              string
	ClientID        string
	ClientName      string
	BrokerID        string
	BrokerName      string
	Side            stage.Side
	Stage           stage.Stage
	Status          Status
	PropertyAddress string
	Archived        bool
	OpenedAt        time.Time
	LastUpdatedAt   time.Time
	RowVersion      int64
	DeletedAt       *time.Time
	DeletedBy       string
}

// Permission is a co-broker capability on a transaction.
type Permission string

const (
	PermissionEditStage     Permission = "EDIT_STAGE"
	PermissionEditDocuments Permission = "EDIT_DOCUMENTS"
)

// CoBrokerGrant lets a second broker act on a transaction with an explicit
// permission set.
type CoBrokerGrant struct {
	TransactionID string
	BrokerID      string
	Permissions   []Permission
	GrantedAt     time.Time
}

func (g CoBrokerGrant) Has(p Permission) bool {
	for _, perm := range g.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}
