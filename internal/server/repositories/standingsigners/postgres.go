package standingsigners

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docflow/internal/common"
	"docflow/internal/dbx"
	"docflow/internal/server/models"
)

// PostgresRepository implements roster storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const signerColumns = `id, person_id, role_family, priority_order, is_active, created_at`

func scanSigner(row interface{ Scan(dest ...any) error }) (*models.StandingSigner, error) {
	var s models.StandingSigner
	err := row.Scan(&s.ID, &s.PersonID, &s.RoleFamily, &s.PriorityOrder, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new appointment row.
func (r *PostgresRepository) Create(ctx context.Context, signer *models.StandingSigner) error {
	query := `
		INSERT INTO standing_signers (id, person_id, role_family, priority_order, is_active)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		signer.ID, signer.PersonID, signer.RoleFamily, signer.PriorityOrder, signer.IsActive)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Deactivate marks the appointment inactive.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE standing_signers SET is_active = false WHERE id = $1`, id)
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

// List returns the full roster ordered by family then priority.
func (r *PostgresRepository) List(ctx context.Context) ([]*models.StandingSigner, error) {
	query := `SELECT ` + signerColumns + ` FROM standing_signers ORDER BY role_family, priority_order, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.StandingSigner
	for rows.Next() {
		s, err := scanSigner(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ResolveBest picks the single best-ranked active appointment for a family.
// The ORDER BY priority_order, id makes resolution deterministic.
func (r *PostgresRepository) ResolveBest(ctx context.Context, family models.RoleFamily) (*models.StandingSigner, error) {
	query := `SELECT ` + signerColumns + ` FROM standing_signers
		WHERE role_family = $1 AND is_active
		ORDER BY priority_order, id
		LIMIT 1`
	signer, err := scanSigner(r.db.QueryRowContext(ctx, query, family))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return signer, nil
}
