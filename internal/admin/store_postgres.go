package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	txctx "dealflow/pkg/platform/tx"
)

// PostgresStore persists audit rows in deletion_audit_log. Snapshot and
// cascade are JSONB columns; they stay typed structs everywhere above this
// file.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txctx.From(ctx); ok {
		return tx
	}
	return s.pool
}

const auditColumns = `id, action, resource_type, resource_id, actor_id, actor_name, created_at, snapshot, cascaded`

func (s *PostgresStore) Append(ctx context.Context, rec *AuditRecord) error {
	snapshot, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal audit snapshot: %w", err)
	}
	cascade, err := json.Marshal(rec.Cascade)
	if err != nil {
		return fmt.Errorf("marshal audit cascade: %w", err)
	}
	_, err = s.q(ctx).Exec(ctx, `
		INSERT INTO deletion_audit_log
			(id, action, resource_type, resource_id, actor_id, actor_name, created_at, snapshot, cascaded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, string(rec.Action), string(rec.ResourceType), rec.ResourceID,
		rec.ActorID, rec.ActorName, rec.Timestamp, snapshot, cascade,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByResource(ctx context.Context, resourceType ResourceType, resourceID string) ([]*AuditRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM deletion_audit_log
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at DESC`, auditColumns)
	rows, err := s.q(ctx).Query(ctx, query, string(resourceType), resourceID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*AuditRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM deletion_audit_log
		ORDER BY created_at DESC
		LIMIT $1`, auditColumns)
	rows, err := s.q(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent audit records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*AuditRecord, error) {
	var out []*AuditRecord
	for rows.Next() {
		var (
			rec      AuditRecord
			snapshot []byte
			cascade  []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.Action, &rec.ResourceType, &rec.ResourceID,
			&rec.ActorID, &rec.ActorName, &rec.Timestamp, &snapshot, &cascade,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if err := json.Unmarshal(snapshot, &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("decode audit snapshot: %w", err)
		}
		if err := json.Unmarshal(cascade, &rec.Cascade); err != nil {
			return nil, fmt.Errorf("decode audit cascade: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
