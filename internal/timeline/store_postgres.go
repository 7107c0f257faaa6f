package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	txctx "dealflow/pkg/platform/tx"
)

// PostgresStore persists timeline entries in the timeline_entries table.
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

const entryColumns = `id, transaction_id, timestamp, actor_id, actor_name, entry_type,
	note, document_type, visible_to_client, snapshot, deleted_at, deleted_by`

func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	var snapshot []byte
	if e.Snapshot != nil {
		var err error
		snapshot, err = json.Marshal(e.Snapshot)
		if err != nil {
			return fmt.Errorf("marshal timeline snapshot: %w", err)
		}
	}
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO timeline_entries
			(id, transaction_id, timestamp, actor_id, actor_name, entry_type,
			 note, document_type, visible_to_client, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.TransactionID, e.Timestamp, e.ActorID, e.ActorName, string(e.Type),
		e.Note, e.DocumentType, e.VisibleToClient, snapshot,
	)
	if err != nil {
		return fmt.Errorf("append timeline entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTransaction(ctx context.Context, transactionID string, visibleOnly bool) ([]*Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM timeline_entries
		WHERE transaction_id = $1 AND deleted_at IS NULL`, entryColumns)
	if visibleOnly {
		query += ` AND visible_to_client`
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.q(ctx).Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list timeline entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, transactionIDs []string, offset, limit int) ([]*Entry, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT %s FROM timeline_entries
		WHERE transaction_id = ANY($1) AND deleted_at IS NULL
		ORDER BY timestamp DESC
		OFFSET $2`, entryColumns)
	args := []any{transactionIDs, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) TombstoneByTransaction(ctx context.Context, transactionID string, deletedAt time.Time, deletedBy string) ([]string, error) {
	rows, err := s.q(ctx).Query(ctx, `
		UPDATE timeline_entries
		SET deleted_at = $2, deleted_by = $3
		WHERE transaction_id = $1 AND deleted_at IS NULL
		RETURNING id`,
		transactionID, deletedAt, deletedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("tombstone timeline entries: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *PostgresStore) RestoreByTransaction(ctx context.Context, transactionID string, deletedAt time.Time) ([]string, error) {
	rows, err := s.q(ctx).Query(ctx, `
		UPDATE timeline_entries
		SET deleted_at = NULL, deleted_by = NULL
		WHERE transaction_id = $1 AND deleted_at = $2
		RETURNING id`,
		transactionID, deletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("restore timeline entries: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *PostgresStore) ListByTransactionIncludingDeleted(ctx context.Context, transactionID string) ([]*Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM timeline_entries
		WHERE transaction_id = $1
		ORDER BY timestamp ASC`, entryColumns)
	rows, err := s.q(ctx).Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list timeline entries including deleted: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		var (
			e         Entry
			entryType string
			snapshot  []byte
			deletedBy *string
		)
		if err := rows.Scan(
			&e.ID, &e.TransactionID, &e.Timestamp, &e.ActorID, &e.ActorName, &entryType,
			&e.Note, &e.DocumentType, &e.VisibleToClient, &snapshot, &e.DeletedAt, &deletedBy,
		); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		e.Type = EntryType(entryType)
		if deletedBy != nil {
			e.DeletedBy = *deletedBy
		}
		if len(snapshot) > 0 {
			var cs ContextSnapshot
			if err := json.Unmarshal(snapshot, &cs); err != nil {
				return nil, fmt.Errorf("unmarshal timeline snapshot: %w", err)
			}
			e.Snapshot = &cs
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
