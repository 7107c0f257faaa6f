package admin

import "context"

// Store persists the deletion audit log. Rows are append-only.
type Store interface {
	Append(ctx context.Context, rec *AuditRecord) error
	ListByResource(ctx context.Context, resourceType ResourceType, resourceID string) ([]*AuditRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*AuditRecord, error)
}
