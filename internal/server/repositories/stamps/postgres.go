package stamps

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docflow/internal/common"
	"docflow/internal/dbx"
	"docflow/internal/server/models"
)

// PostgresRepository implements stamp storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const stampColumns = `id, document_id, stamp_ref, person_id, page, geometry, created_at`

// Create appends a placement row.
func (r *PostgresRepository) Create(ctx context.Context, placement *models.StampPlacement) error {
	query := `
		INSERT INTO stamp_placements (id, document_id, stamp_ref, person_id, page, geometry)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		placement.ID, placement.DocumentID, placement.StampRef, placement.PersonID, placement.Page, placement.Geometry)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the placement or common.ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.StampPlacement, error) {
	query := `SELECT ` + stampColumns + ` FROM stamp_placements WHERE id = $1`
	var p models.StampPlacement
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.DocumentID, &p.StampRef, &p.PersonID, &p.Page, &p.Geometry, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &p, nil
}

// Delete removes a placement row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stamp_placements WHERE id = $1`, id)
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

// ListByDocument returns placements in creation order.
func (r *PostgresRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.StampPlacement, error) {
	query := `SELECT ` + stampColumns + ` FROM stamp_placements WHERE document_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.StampPlacement
	for rows.Next() {
		var p models.StampPlacement
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.StampRef, &p.PersonID, &p.Page, &p.Geometry, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
