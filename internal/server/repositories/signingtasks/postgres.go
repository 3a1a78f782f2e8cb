package signingtasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docflow/internal/common"
	"docflow/internal/dbx"
	"docflow/internal/server/models"
)

// PostgresRepository implements ledger storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const taskColumns = `id, document_id, step, role, assignee_id, signing_order, status, decided_at, reject_reason, payload`

func scanTask(row interface{ Scan(dest ...any) error }) (*models.SigningTask, error) {
	var t models.SigningTask
	err := row.Scan(
		&t.ID, &t.DocumentID, &t.Step, &t.Role, &t.AssigneeID,
		&t.SigningOrder, &t.Status, &t.DecidedAt, &t.RejectReason, &t.Payload,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new waiting task row.
func (r *PostgresRepository) Create(ctx context.Context, task *models.SigningTask) error {
	query := `
		INSERT INTO signing_tasks (id, document_id, step, role, assignee_id, signing_order, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.DocumentID, task.Step, task.Role, task.AssigneeID, task.SigningOrder, task.Status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns the task or common.ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.SigningTask, error) {
	query := `SELECT ` + taskColumns + ` FROM signing_tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return task, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.SigningTask, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SigningTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListByDocumentStep returns all tasks for one step, ordered by signing_order.
func (r *PostgresRepository) ListByDocumentStep(ctx context.Context, documentID string, step int) ([]*models.SigningTask, error) {
	query := `SELECT ` + taskColumns + ` FROM signing_tasks
		WHERE document_id = $1 AND step = $2 ORDER BY signing_order, id`
	return r.list(ctx, query, documentID, step)
}

// ListByDocument returns the document's full task log.
func (r *PostgresRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.SigningTask, error) {
	query := `SELECT ` + taskColumns + ` FROM signing_tasks
		WHERE document_id = $1 ORDER BY step, signing_order, id`
	return r.list(ctx, query, documentID)
}

// HasWaitingForAssignee reports whether personID holds an undecided task on
// the document.
func (r *PostgresRepository) HasWaitingForAssignee(ctx context.Context, documentID, personID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM signing_tasks WHERE document_id = $1 AND assignee_id = $2 AND status = 'waiting'
	)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, documentID, personID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Decide finalizes a waiting task. The status = 'waiting' guard is the
// compare-and-swap that lets exactly one concurrent decision win.
func (r *PostgresRepository) Decide(ctx context.Context, id string, status models.TaskStatus, reason string, payload []byte) error {
	query := `
		UPDATE signing_tasks
		SET status = $2, decided_at = now(), reject_reason = $3, payload = $4
		WHERE id = $1 AND status = 'waiting'
	`
	res, err := r.db.ExecContext(ctx, query, id, status, reason, payload)
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

// InvalidateWaiting flips every still-waiting task at the step to invalidated.
func (r *PostgresRepository) InvalidateWaiting(ctx context.Context, documentID string, step int) (int64, error) {
	query := `
		UPDATE signing_tasks SET status = 'invalidated'
		WHERE document_id = $1 AND step = $2 AND status = 'waiting'
	`
	res, err := r.db.ExecContext(ctx, query, documentID, step)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
