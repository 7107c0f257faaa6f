package checklist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	txctx "dealflow/pkg/platform/tx"
)

// PostgresStore persists checklist rows in transaction_stage_checklist_state,
// relying on the table's unique (transaction_id, stage, item_key) constraint.
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

func (s *PostgresStore) Get(ctx context.Context, transactionID, stageName, itemKey string) (*State, error) {
	var st State
	var manualBy *string
	err := s.q(ctx).QueryRow(ctx, `
		SELECT transaction_id, stage, item_key, manual_checked, manual_by, manual_at, auto_checked, auto_at
		FROM transaction_stage_checklist_state
		WHERE transaction_id = $1 AND stage = $2 AND item_key = $3`,
		transactionID, stageName, itemKey,
	).Scan(&st.TransactionID, &st.StageName, &st.ItemKey,
		&st.ManualChecked, &manualBy, &st.ManualAt, &st.AutoChecked, &st.AutoAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checklist state: %w", err)
	}
	if manualBy != nil {
		st.ManualBy = *manualBy
	}
	return &st, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, st *State) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO transaction_stage_checklist_state
			(transaction_id, stage, item_key, manual_checked, manual_by, manual_at, auto_checked, auto_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id, stage, item_key) DO UPDATE SET
			manual_checked = EXCLUDED.manual_checked,
			manual_by = EXCLUDED.manual_by,
			manual_at = EXCLUDED.manual_at,
			auto_checked = EXCLUDED.auto_checked,
			auto_at = EXCLUDED.auto_at`,
		st.TransactionID, st.StageName, st.ItemKey,
		st.ManualChecked, st.ManualBy, st.ManualAt, st.AutoChecked, st.AutoAt,
	)
	if err != nil {
		return fmt.Errorf("upsert checklist state: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByStage(ctx context.Context, transactionID, stageName string) ([]*State, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT transaction_id, stage, item_key, manual_checked, manual_by, manual_at, auto_checked, auto_at
		FROM transaction_stage_checklist_state
		WHERE transaction_id = $1 AND stage = $2`,
		transactionID, stageName,
	)
	if err != nil {
		return nil, fmt.Errorf("list checklist state: %w", err)
	}
	defer rows.Close()
	var out []*State
	for rows.Next() {
		var st State
		var manualBy *string
		if err := rows.Scan(&st.TransactionID, &st.StageName, &st.ItemKey,
			&st.ManualChecked, &manualBy, &st.ManualAt, &st.AutoChecked, &st.AutoAt); err != nil {
			return nil, fmt.Errorf("scan checklist state: %w", err)
		}
		if manualBy != nil {
			st.ManualBy = *manualBy
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteByTransaction(ctx context.Context, transactionID string) error {
	_, err := s.q(ctx).Exec(ctx, `
		DELETE FROM transaction_stage_checklist_state WHERE transaction_id = $1`,
		transactionID,
	)
	if err != nil {
		return fmt.Errorf("delete checklist state: %w", err)
	}
	return nil
}
