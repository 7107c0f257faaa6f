package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/internal/domain"
	"dealflow/internal/stage"
	"dealflow/pkg/platform/sentinel"
	txctx "dealflow/pkg/platform/tx"
)

// PostgresStore persists documents in the documents and document_versions
// tables.
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

const docColumns = `id, transaction_id, client_id, side, document_type, title, status, flow,
	expected_from, stage, visible_to_client, due_date, file_lost, row_version,
	created_at, updated_at, deleted_at, deleted_by`

func (s *PostgresStore) Create(ctx context.Context, d *Document) error {
	d.RowVersion = 1
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO documents
			(id, transaction_id, client_id, side, document_type, title, status, flow,
			 expected_from, stage, visible_to_client, due_date, file_lost, row_version,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		d.ID, d.TransactionID, d.ClientID, string(d.Side), string(d.Type), d.Title,
		string(d.Status), string(d.Flow), string(d.ExpectedFrom), d.Stage.Name(),
		d.VisibleToClient, d.DueDate, d.FileLost, d.RowVersion, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("document %s: %w", d.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Document, error) {
	return s.get(ctx, id, false)
}

func (s *PostgresStore) GetIncludingDeleted(ctx context.Context, id string) (*Document, error) {
	return s.get(ctx, id, true)
}

func (s *PostgresStore) get(ctx context.Context, id string, includeDeleted bool) (*Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, docColumns)
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	d, err := scanDocument(s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	if err := s.loadVersions(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d *Document) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE documents
		SET document_type = $2, title = $3, status = $4, expected_from = $5, stage = $6,
		    visible_to_client = $7, due_date = $8, file_lost = $9,
		    row_version = row_version + 1, updated_at = $10
		WHERE id = $1 AND deleted_at IS NULL AND row_version = $11`,
		d.ID, string(d.Type), d.Title, string(d.Status), string(d.ExpectedFrom),
		d.Stage.Name(), d.VisibleToClient, d.DueDate, d.FileLost,
		time.Now().UTC(), d.RowVersion,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Missing row and stale row version are indistinguishable here;
		// re-read to report the precise fact.
		if _, gerr := s.Get(ctx, d.ID); gerr != nil {
			return gerr
		}
		return fmt.Errorf("document %s: %w", d.ID, sentinel.ErrConflict)
	}
	d.RowVersion++
	return nil
}

func (s *PostgresStore) AddVersion(ctx context.Context, v *Version) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO document_versions
			(id, document_id, uploaded_at, uploader_type, uploader_id, uploader_name,
			 storage_key, filename, content_type, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.DocumentID, v.UploadedAt, string(v.UploaderType), v.UploaderID,
		v.UploaderName, v.StorageKey, v.Filename, v.ContentType, v.Size,
	)
	if err != nil {
		return fmt.Errorf("add document version: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTransaction(ctx context.Context, transactionID string) ([]*Document, error) {
	return s.listByTransaction(ctx, transactionID, false)
}

func (s *PostgresStore) ListByTransactionIncludingDeleted(ctx context.Context, transactionID string) ([]*Document, error) {
	return s.listByTransaction(ctx, transactionID, true)
}

func (s *PostgresStore) listByTransaction(ctx context.Context, transactionID string, includeDeleted bool) ([]*Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE transaction_id = $1`, docColumns)
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`
	rows, err := s.q(ctx).Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, d := range out {
		if err := s.loadVersions(ctx, d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) FindByTransactionStageType(ctx context.Context, transactionID, stageName string, docType Type) (*Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE transaction_id = $1 AND stage = $2 AND document_type = $3 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`, docColumns)
	d, err := scanDocument(s.q(ctx).QueryRow(ctx, query, transactionID, stageName, string(docType)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document for %s/%s/%s: %w", transactionID, stageName, docType, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	if err := s.loadVersions(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PostgresStore) TombstoneByTransaction(ctx context.Context, transactionID string, deletedAt time.Time, deletedBy string) ([]string, error) {
	rows, err := s.q(ctx).Query(ctx, `
		UPDATE documents
		SET deleted_at = $2, deleted_by = $3
		WHERE transaction_id = $1 AND deleted_at IS NULL
		RETURNING id`,
		transactionID, deletedAt, deletedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("tombstone documents: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		if _, err := s.q(ctx).Exec(ctx, `
			UPDATE document_versions
			SET deleted_at = $2, deleted_by = $3
			WHERE document_id = ANY($1) AND deleted_at IS NULL`,
			ids, deletedAt, deletedBy,
		); err != nil {
			return nil, fmt.Errorf("tombstone document versions: %w", err)
		}
	}
	return ids, nil
}

func (s *PostgresStore) RestoreByTransaction(ctx context.Context, transactionID string, deletedAt time.Time) ([]string, error) {
	rows, err := s.q(ctx).Query(ctx, `
		UPDATE documents
		SET deleted_at = NULL, deleted_by = NULL
		WHERE transaction_id = $1 AND deleted_at = $2
		RETURNING id`,
		transactionID, deletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("restore documents: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		if _, err := s.q(ctx).Exec(ctx, `
			UPDATE document_versions
			SET deleted_at = NULL, deleted_by = NULL
			WHERE document_id = ANY($1) AND deleted_at = $2`,
			ids, deletedAt,
		); err != nil {
			return nil, fmt.Errorf("restore document versions: %w", err)
		}
	}
	return ids, nil
}

func (s *PostgresStore) Tombstone(ctx context.Context, id string, deletedAt time.Time, deletedBy string) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE documents SET deleted_at = $2, deleted_by = $3
		WHERE id = $1 AND deleted_at IS NULL`,
		id, deletedAt, deletedBy,
	)
	if err != nil {
		return fmt.Errorf("tombstone document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	_, err = s.q(ctx).Exec(ctx, `
		UPDATE document_versions SET deleted_at = $2, deleted_by = $3
		WHERE document_id = $1 AND deleted_at IS NULL`,
		id, deletedAt, deletedBy,
	)
	if err != nil {
		return fmt.Errorf("tombstone document versions: %w", err)
	}
	return nil
}

func (s *PostgresStore) Restore(ctx context.Context, id string) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE documents SET deleted_at = NULL, deleted_by = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("restore document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	_, err = s.q(ctx).Exec(ctx, `
		UPDATE document_versions SET deleted_at = NULL, deleted_by = NULL WHERE document_id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("restore document versions: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkFileLost(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q(ctx).Exec(ctx, `UPDATE documents SET file_lost = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark documents file lost: %w", err)
	}
	return nil
}

func (s *PostgresStore) loadVersions(ctx context.Context, d *Document) error {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, document_id, uploaded_at, uploader_type, uploader_id, uploader_name,
		       storage_key, filename, content_type, size, deleted_at, deleted_by
		FROM document_versions
		WHERE document_id = $1
		ORDER BY uploaded_at ASC`,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("load document versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v            Version
			uploaderType string
			deletedBy    *string
		)
		if err := rows.Scan(
			&v.ID, &v.DocumentID, &v.UploadedAt, &uploaderType, &v.UploaderID, &v.UploaderName,
			&v.StorageKey, &v.Filename, &v.ContentType, &v.Size, &v.DeletedAt, &deletedBy,
		); err != nil {
			return fmt.Errorf("scan document version: %w", err)
		}
		v.UploaderType = domain.ActorType(uploaderType)
		if deletedBy != nil {
			v.DeletedBy = *deletedBy
		}
		d.Versions = append(d.Versions, v)
	}
	return rows.Err()
}

func scanDocument(row pgx.Row) (*Document, error) {
	var (
		d            Document
		side         string
		docType      string
		status       string
		flow         string
		expectedFrom string
		stageName    string
		deletedBy    *string
	)
	if err := row.Scan(
		&d.ID, &d.TransactionID, &d.ClientID, &side, &docType, &d.Title, &status, &flow,
		&expectedFrom, &stageName, &d.VisibleToClient, &d.DueDate, &d.FileLost, &d.RowVersion,
		&d.CreatedAt, &d.UpdatedAt, &d.DeletedAt, &deletedBy,
	); err != nil {
		return nil, err
	}
	d.Side = stage.Side(side)
	d.Type = Type(docType)
	d.Status = Status(status)
	d.Flow = Flow(flow)
	d.ExpectedFrom = Party(expectedFrom)
	st, err := stage.ParseForSide(d.Side, stageName)
	if err != nil {
		return nil, fmt.Errorf("document %s carries %w", d.ID, err)
	}
	d.Stage = st
	if deletedBy != nil {
		d.DeletedBy = *deletedBy
	}
	return &d, nil
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
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

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	// 23505 = unique_violation
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
