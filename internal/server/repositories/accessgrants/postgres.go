package accessgrants

import (
	"context"
	"fmt"

	"docflow/internal/dbx"
	"docflow/internal/server/models"
)

// PostgresRepository implements grant storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a grant row. ON CONFLICT DO NOTHING keeps a repeated
// recipient in a distribution list harmless.
func (r *PostgresRepository) Create(ctx context.Context, grant *models.AccessGrant) error {
	query := `
		INSERT INTO access_grants (id, document_id, person_id, grant_kind)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_id, person_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, grant.ID, grant.DocumentID, grant.PersonID, grant.Kind)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Exists reports whether a grant exists for the (document, person) pair.
func (r *PostgresRepository) Exists(ctx context.Context, documentID, personID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM access_grants WHERE document_id = $1 AND person_id = $2
	)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, documentID, personID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Touch updates last_accessed_at for the pair. Missing grants are ignored.
func (r *PostgresRepository) Touch(ctx context.Context, documentID, personID string) error {
	query := `UPDATE access_grants SET last_accessed_at = now() WHERE document_id = $1 AND person_id = $2`
	_, err := r.db.ExecContext(ctx, query, documentID, personID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByDocument returns all grants of a document.
func (r *PostgresRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.AccessGrant, error) {
	query := `SELECT id, document_id, person_id, grant_kind, last_accessed_at, created_at
		FROM access_grants WHERE document_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AccessGrant
	for rows.Next() {
		var g models.AccessGrant
		if err := rows.Scan(&g.ID, &g.DocumentID, &g.PersonID, &g.Kind, &g.LastAccessedAt, &g.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
