package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"docflow/internal/common"
	"docflow/internal/dbx"
	"docflow/internal/server/models"
	"docflow/internal/server/repositories/repomanager"
)

// StampService manages stamp placements. A placement may only be added or
// removed while the document sits on the stamping phase; afterwards the set
// is read-only. The phase check runs under the document row lock so a
// concurrent phase advance cannot race a placement.
type StampService struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

// NewStampService constructs a StampService.
func NewStampService(db *sql.DB, repos repomanager.RepositoryManager) *StampService {
	return &StampService{db: db, repos: repos}
}

// Place appends a stamp placement to a document on the stamping phase.
func (s *StampService) Place(ctx context.Context, documentID, actingPerson, stampRef string, page int, geometry []byte) (*models.StampPlacement, error) {
	if stampRef == "" {
		return nil, fmt.Errorf("stamp reference is required: %w", common.ErrValidation)
	}
	if page < 1 {
		return nil, fmt.Errorf("page must be positive: %w", common.ErrValidation)
	}
	if len(geometry) == 0 {
		geometry = []byte(`{}`)
	}

	placement := &models.StampPlacement{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		StampRef:   stampRef,
		PersonID:   actingPerson,
		Page:       page,
		Geometry:   geometry,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		doc, err := s.repos.Documents(tx).GetByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.CurrentPhase != models.PhasePendingStamp {
			return fmt.Errorf("document is not on the stamping phase: %w", common.ErrStaleState)
		}
		return s.repos.Stamps(tx).Create(ctx, placement)
	})
	if err != nil {
		return nil, err
	}

	return placement, nil
}

// Remove deletes a placement while the document is still on the stamping
// phase. Once the phase advances the placements are frozen.
func (s *StampService) Remove(ctx context.Context, documentID, actingPerson, placementID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		doc, err := s.repos.Documents(tx).GetByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.CurrentPhase != models.PhasePendingStamp {
			return fmt.Errorf("document is not on the stamping phase: %w", common.ErrStaleState)
		}

		placement, err := s.repos.Stamps(tx).GetByID(ctx, placementID)
		if err != nil {
			return err
		}
		if placement.DocumentID != documentID {
			return fmt.Errorf("placement does not belong to document: %w", common.ErrValidation)
		}

		return s.repos.Stamps(tx).Delete(ctx, placementID)
	})
}

// List returns a document's placements in creation order.
func (s *StampService) List(ctx context.Context, documentID string) ([]*models.StampPlacement, error) {
	placements, err := s.repos.Stamps(s.db).ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("error listing stamp placements: %w", err)
	}
	return placements, nil
}
