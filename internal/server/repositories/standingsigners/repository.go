// Package standingsigners provides persistence for the standing-signer
// roster: administrator-managed appointments of people to approval role
// families, ordered by priority.
package standingsigners

import (
	"context"

	"docflow/internal/server/models"
)

// Repository defines storage operations for the roster.
type Repository interface {
	// Create inserts a new appointment.
	Create(ctx context.Context, signer *models.StandingSigner) error

	// Deactivate marks an appointment inactive. Existing signing tasks are
	// never touched; only future resolution is affected.
	Deactivate(ctx context.Context, id string) error

	// List returns the full roster ordered by family and priority.
	List(ctx context.Context) ([]*models.StandingSigner, error)

	// ResolveBest returns the single best-ranked active appointment for a
	// role family: lowest priority_order first, ties broken by lowest id so
	// resolution is total and reproducible. Empty roster for the family
	// yields common.ErrNotFound.
	ResolveBest(ctx context.Context, family models.RoleFamily) (*models.StandingSigner, error)
}
