package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/internal/stage"
	"dealflow/pkg/platform/sentinel"
	txctx "dealflow/pkg/platform/tx"
)

// PostgresStore persists transactions in the transactions and
// transaction_co_brokers tables.
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

const txnColumns = `id, client_id, client_name, broker_id, broker_name, side, stage, status,
	property_address, archived, opened_at, last_updated_at, row_version, deleted_at, deleted_by`

func (s *PostgresStore) Create(ctx context.Context, t *Transaction) error {
	t.RowVersion = 1
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO transactions
			(id, client_id, client_name, broker_id, broker_name, side, stage, status,
			 property_address, archived, opened_at, last_updated_at, row_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.ClientID, t.ClientName, t.BrokerID, t.BrokerName, string(t.Side),
		t.Stage.Name(), string(t.Status), t.PropertyAddress, t.Archived,
		t.OpenedAt, t.LastUpdatedAt, t.RowVersion,
	)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("transaction %s: %w", t.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.get(ctx, id, false)
}

func (s *PostgresStore) GetIncludingDeleted(ctx context.Context, id string) (*Transaction, error) {
	return s.get(ctx, id, true)
}

func (s *PostgresStore) get(ctx context.Context, id string, includeDeleted bool) (*Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, txnColumns)
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	t, err := scanTransaction(s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Update(ctx context.Context, t *Transaction) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE transactions
		SET stage = $2, status = $3, property_address = $4, archived = $5,
		    last_updated_at = $6, row_version = row_version + 1
		WHERE id = $1 AND deleted_at IS NULL AND row_version = $7`,
		t.ID, t.Stage.Name(), string(t.Status), t.PropertyAddress, t.Archived,
		time.Now().UTC(), t.RowVersion,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := s.Get(ctx, t.ID); gerr != nil {
			return gerr
		}
		return fmt.Errorf("transaction %s: %w", t.ID, sentinel.ErrConflict)
	}
	t.RowVersion++
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, id string, ts time.Time) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE transactions SET last_updated_at = $2 WHERE id = $1`,
		id, ts,
	)
	if err != nil {
		return fmt.Errorf("touch transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByBroker(ctx context.Context, brokerID string) ([]*Transaction, error) {
	return s.list(ctx, `broker_id = $1`, brokerID)
}

func (s *PostgresStore) ListByClient(ctx context.Context, clientID string) ([]*Transaction, error) {
	return s.list(ctx, `client_id = $1`, clientID)
}

func (s *PostgresStore) list(ctx context.Context, where string, arg any) ([]*Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE %s AND deleted_at IS NULL
		ORDER BY last_updated_at DESC`, txnColumns, where)
	rows, err := s.q(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Tombstone(ctx context.Context, id string, deletedAt time.Time, deletedBy string) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE transactions SET deleted_at = $2, deleted_by = $3
		WHERE id = $1 AND deleted_at IS NULL`,
		id, deletedAt, deletedBy,
	)
	if err != nil {
		return fmt.Errorf("tombstone transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Restore(ctx context.Context, id string) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE transactions SET deleted_at = NULL, deleted_by = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("restore transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GrantCoBroker(ctx context.Context, grant CoBrokerGrant) error {
	perms := make([]string, len(grant.Permissions))
	for i, p := range grant.Permissions {
		perms[i] = string(p)
	}
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO transaction_co_brokers (transaction_id, broker_id, permissions, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transaction_id, broker_id) DO UPDATE SET
			permissions = EXCLUDED.permissions,
			granted_at = EXCLUDED.granted_at`,
		grant.TransactionID, grant.BrokerID, perms, grant.GrantedAt,
	)
	if err != nil {
		return fmt.Errorf("grant co-broker: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCoBrokerGrant(ctx context.Context, transactionID, brokerID string) (*CoBrokerGrant, error) {
	var (
		g     CoBrokerGrant
		perms []string
	)
	err := s.q(ctx).QueryRow(ctx, `
		SELECT transaction_id, broker_id, permissions, granted_at
		FROM transaction_co_brokers
		WHERE transaction_id = $1 AND broker_id = $2`,
		transactionID, brokerID,
	).Scan(&g.TransactionID, &g.BrokerID, &perms, &g.GrantedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("co-broker grant: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get co-broker grant: %w", err)
	}
	for _, p := range perms {
		g.Permissions = append(g.Permissions, Permission(p))
	}
	return &g, nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		t         Transaction
		side      string
		stageName string
		status    string
		deletedBy *string
	)
	if err := row.Scan(
		&t.ID, &t.ClientID, &t.ClientName, &t.BrokerID, &t.BrokerName, &side, &stageName, &status,
		&t.PropertyAddress, &t.Archived, &t.OpenedAt, &t.LastUpdatedAt, &t.RowVersion,
		&t.DeletedAt, &deletedBy,
	); err != nil {
		return nil, err
	}
	t.Side = stage.Side(side)
	st, err := stage.ParseForSide(t.Side, stageName)
	if err != nil {
		return nil, fmt.Errorf("transaction %s carries %w", t.ID, err)
	}
	t.Stage = st
	t.Status = Status(status)
	if deletedBy != nil {
		t.DeletedBy = *deletedBy
	}
	return &t, nil
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	// 23505 = unique_violation
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
