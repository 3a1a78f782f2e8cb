// Package accessgrants provides persistence for materialized view
// permissions issued when a workflow completes.
package accessgrants

import (
	"context"

	"docflow/internal/server/models"
)

// Repository defines storage operations for access grants.
type Repository interface {
	// Create inserts a grant; a duplicate (document, person) pair is a
	// silent no-op.
	Create(ctx context.Context, grant *models.AccessGrant) error

	// Exists reports whether a grant exists for the pair.
	Exists(ctx context.Context, documentID, personID string) (bool, error)

	// Touch updates last_accessed_at for the pair, if a grant exists.
	Touch(ctx context.Context, documentID, personID string) error

	// ListByDocument returns all grants of a document.
	ListByDocument(ctx context.Context, documentID string) ([]*models.AccessGrant, error)
}
