// Package stamps provides persistence for stamp placements applied during
// the stamping phase.
package stamps

import (
	"context"

	"docflow/internal/server/models"
)

// Repository defines storage operations for stamp placements.
type Repository interface {
	// Create appends a placement.
	Create(ctx context.Context, placement *models.StampPlacement) error

	// GetByID returns the placement or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.StampPlacement, error)

	// Delete removes a placement.
	Delete(ctx context.Context, id string) error

	// ListByDocument returns a document's placements in creation order.
	ListByDocument(ctx context.Context, documentID string) ([]*models.StampPlacement, error)
}
