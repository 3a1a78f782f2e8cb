// Package signingtasks provides persistence for the signer ledger: one row
// per required signer per workflow step.
package signingtasks

import (
	"context"

	"docflow/internal/server/models"
)

// Repository defines storage operations for signing tasks.
type Repository interface {
	// Create inserts a new waiting task.
	Create(ctx context.Context, task *models.SigningTask) error

	// GetByID returns the task or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.SigningTask, error)

	// ListByDocumentStep returns all tasks for one step of one document,
	// ordered by signing_order.
	ListByDocumentStep(ctx context.Context, documentID string, step int) ([]*models.SigningTask, error)

	// ListByDocument returns the full immutable task log of a document,
	// ordered by step then signing_order.
	ListByDocument(ctx context.Context, documentID string) ([]*models.SigningTask, error)

	// HasWaitingForAssignee reports whether the person holds an undecided
	// task on the document.
	HasWaitingForAssignee(ctx context.Context, documentID, personID string) (bool, error)

	// Decide finalizes a waiting task with a signed or rejected status.
	// The update is guarded on status = 'waiting'; if the task was already
	// decided or invalidated it returns common.ErrStaleState and changes
	// nothing. Exactly one concurrent decision can win.
	Decide(ctx context.Context, id string, status models.TaskStatus, reason string, payload []byte) error

	// InvalidateWaiting flips every still-waiting task at the given step to
	// invalidated and returns how many rows changed.
	InvalidateWaiting(ctx context.Context, documentID string, step int) (int64, error)
}
