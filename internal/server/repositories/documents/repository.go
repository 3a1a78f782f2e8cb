// Package documents provides persistence for workflow documents.
package documents

import (
	"context"

	"docflow/internal/server/models"
)

// Repository defines storage operations for documents. Implementations are
// bound to a dbx.DBTX, so the same repository code runs inside or outside a
// transaction.
type Repository interface {
	// Create inserts a new document.
	Create(ctx context.Context, doc *models.Document) error

	// GetByID returns the document or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Document, error)

	// GetByIDForUpdate returns the document with its row locked for the
	// duration of the surrounding transaction. All workflow writes for one
	// document serialize on this lock.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Document, error)

	// UpdatePhase moves the document from fromPhase to toPhase with the
	// matching step cache. The update is a compare-and-swap on the phase
	// column; if the document is no longer on fromPhase it returns
	// common.ErrStaleState and changes nothing.
	UpdatePhase(ctx context.Context, id string, fromPhase, toPhase models.Phase, toStep int) error

	// SetDistribution stores the owner's access-mode choice and recipient
	// list. Grants are only materialized from the list at completion.
	SetDistribution(ctx context.Context, id string, accessType models.AccessType, recipients []string) error

	// Complete marks the document completed and stamps completed_at. The
	// timestamp is written at most once; a second call returns
	// common.ErrStaleState.
	Complete(ctx context.Context, id string, accessType models.AccessType, isPublic bool) error

	// Delete removes the document; tasks, grants and stamps cascade.
	Delete(ctx context.Context, id string) error
}
