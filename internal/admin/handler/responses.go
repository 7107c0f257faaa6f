package handler

import (
	"time"

	"dealflow/internal/admin"
)

type PreviewResponse struct {
	ResourceType    string               `json:"resource_type"`
	ResourceID      string               `json:"resource_id"`
	Documents       int                  `json:"documents"`
	Versions        int                  `json:"versions"`
	TimelineEntries int                  `json:"timeline_entries"`
	StorageObjects  int                  `json:"storage_objects"`
	Cascade         []CascadedOpResponse `json:"cascade"`
}

type CascadedOpResponse struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

type RestoreResponse struct {
	ResourceType   string               `json:"resource_type"`
	ResourceID     string               `json:"resource_id"`
	Cascade        []CascadedOpResponse `json:"cascade"`
	NonRecoverable []string             `json:"non_recoverable_documents"`
}

type AuditRecordResponse struct {
	ID           string               `json:"id"`
	Action       string               `json:"action"`
	ResourceType string               `json:"resource_type"`
	ResourceID   string               `json:"resource_id"`
	ActorID      string               `json:"actor_id"`
	ActorName    string               `json:"actor_name,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
	Snapshot     admin.Snapshot       `json:"snapshot"`
	Cascade      []CascadedOpResponse `json:"cascade"`
}

type AuditTrailResponse struct {
	Records []AuditRecordResponse `json:"records"`
}

func toCascade(ops []admin.CascadedOp) []CascadedOpResponse {
	out := make([]CascadedOpResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, CascadedOpResponse{
			ResourceType: string(op.ResourceType),
			ResourceID:   op.ResourceID,
		})
	}
	return out
}

func toPreviewResponse(p *admin.Preview) PreviewResponse {
	return PreviewResponse{
		ResourceType:    string(p.ResourceType),
		ResourceID:      p.ResourceID,
		Documents:       p.Documents,
		Versions:        p.Versions,
		TimelineEntries: p.TimelineEntries,
		StorageObjects:  p.StorageObjects,
		Cascade:         toCascade(p.Cascade),
	}
}

func toRestoreResponse(r *admin.RestoreResult) RestoreResponse {
	resp := RestoreResponse{
		ResourceType:   string(r.ResourceType),
		ResourceID:     r.ResourceID,
		Cascade:        toCascade(r.Cascade),
		NonRecoverable: r.NonRecoverable,
	}
	if resp.NonRecoverable == nil {
		resp.NonRecoverable = []string{}
	}
	return resp
}

func toAuditResponse(rec *admin.AuditRecord) AuditRecordResponse {
	return AuditRecordResponse{
		ID:           rec.ID,
		Action:       string(rec.Action),
		ResourceType: string(rec.ResourceType),
		ResourceID:   rec.ResourceID,
		ActorID:      rec.ActorID,
		ActorName:    rec.ActorName,
		Timestamp:    rec.Timestamp,
		Snapshot:     rec.Snapshot,
		Cascade:      toCascade(rec.Cascade),
	}
}
