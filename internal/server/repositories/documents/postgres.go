package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"docflow/internal/common"
	"docflow/internal/dbx"
	"docflow/internal/server/models"
)

// PostgresRepository implements document storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const documentColumns = `id, owner_id, title, current_phase, current_step, is_public, access_type, distribution, storage_key, completed_at, created_at, updated_at`

func scanDocument(row interface{ Scan(dest ...any) error }) (*models.Document, error) {
	var d models.Document
	var distribution []byte
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.Title, &d.CurrentPhase, &d.CurrentStep,
		&d.IsPublic, &d.AccessType, &distribution, &d.StorageKey, &d.CompletedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(distribution) > 0 {
		if err := json.Unmarshal(distribution, &d.Distribution); err != nil {
			return nil, fmt.Errorf("distribution decode error: %w", err)
		}
	}
	return &d, nil
}

// Create inserts a new document row.
func (r *PostgresRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, owner_id, title, current_phase, current_step, is_public, access_type, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.OwnerID, doc.Title, doc.CurrentPhase, doc.CurrentStep,
		doc.IsPublic, doc.AccessType, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the document or common.ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

// GetByIDForUpdate returns the document with its row locked until the
// surrounding transaction ends.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 FOR UPDATE`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

// UpdatePhase compare-and-swaps the phase/step pair. Zero rows affected means
// the document left fromPhase in the meantime and maps to common.ErrStaleState.
func (r *PostgresRepository) UpdatePhase(ctx context.Context, id string, fromPhase, toPhase models.Phase, toStep int) error {
	query := `
		UPDATE documents SET current_phase = $3, current_step = $4, updated_at = now()
		WHERE id = $1 AND current_phase = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, fromPhase, toPhase, toStep)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrStaleState
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// SetDistribution stores the owner's access-mode choice and recipient list
// without touching the phase. The document does not become public here;
// IsPublic only flips at completion.
func (r *PostgresRepository) SetDistribution(ctx context.Context, id string, accessType models.AccessType, recipients []string) error {
	if recipients == nil {
		recipients = []string{}
	}
	distribution, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("distribution encode error: %w", err)
	}
	query := `UPDATE documents SET access_type = $2, distribution = $3, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, accessType, distribution)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Complete flips the document to the completed phase and sets completed_at.
// The completed_at IS NULL guard makes the timestamp write-once.
func (r *PostgresRepository) Complete(ctx context.Context, id string, accessType models.AccessType, isPublic bool) error {
	query := `
		UPDATE documents
		SET current_phase = $2, current_step = $3, access_type = $4, is_public = $5,
			completed_at = now(), updated_at = now()
		WHERE id = $1 AND completed_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, models.PhaseCompleted, models.PhaseCompleted.StepOf(), accessType, isPublic)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrStaleState
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Delete removes the document row; dependent rows cascade in the schema.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
