package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"docflow/internal/common"
	"docflow/internal/dbx"
	"docflow/internal/logging"
	"docflow/internal/server/models"
	"docflow/internal/server/repositories/repomanager"
)

// DirectoryService resolves which person must sign for a role at assignment
// time and manages the standing-signer roster. Resolution is a pure read:
// given an unchanged roster, the same role always resolves to the same
// person.
type DirectoryService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
}

// NewDirectoryService constructs a DirectoryService.
func NewDirectoryService(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger) *DirectoryService {
	return &DirectoryService{
		db:     db,
		repos:  repos,
		logger: logger.With("module", "directory"),
	}
}

// ResolveIn resolves the assigned person for a signer role against the given
// DBTX, so the workflow can resolve inside its own transaction. An empty
// eligible roster is a configuration error: the caller must not advance the
// document past the gate.
func (s *DirectoryService) ResolveIn(ctx context.Context, db dbx.DBTX, role models.SignerRole) (*models.StandingSigner, error) {
	family, ok := role.Family()
	if !ok {
		return nil, fmt.Errorf("unknown signer role %q: %w", role, common.ErrValidation)
	}

	repo := s.repos.StandingSigners(db)

	signer, err := repo.ResolveBest(ctx, family)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Operator-visible channel: roster gaps need an administrator.
			s.logger.Warn(ctx, "no active standing signer", "role", string(role), "family", string(family))
			return nil, fmt.Errorf("no active standing signer for role %q: %w", role, common.ErrConfiguration)
		}
		return nil, fmt.Errorf("error resolving signer: %w", err)
	}

	return signer, nil
}

// Resolve resolves outside any transaction.
func (s *DirectoryService) Resolve(ctx context.Context, role models.SignerRole) (*models.StandingSigner, error) {
	return s.ResolveIn(ctx, s.db, role)
}

// Appoint adds an active appointment to the roster.
func (s *DirectoryService) Appoint(ctx context.Context, personID string, family models.RoleFamily, priority int) (*models.StandingSigner, error) {
	if personID == "" {
		return nil, fmt.Errorf("person id is required: %w", common.ErrValidation)
	}
	if family != models.FamilyDeputyDirector && family != models.FamilyDirector {
		return nil, fmt.Errorf("unknown role family %q: %w", family, common.ErrValidation)
	}

	signer := &models.StandingSigner{
		ID:            uuid.NewString(),
		PersonID:      personID,
		RoleFamily:    family,
		PriorityOrder: priority,
		IsActive:      true,
	}

	repo := s.repos.StandingSigners(s.db)
	if err := repo.Create(ctx, signer); err != nil {
		return nil, fmt.Errorf("error creating standing signer: %w", err)
	}

	return signer, nil
}

// Deactivate marks an appointment inactive. Tasks already created from it
// are untouched: the assignee was frozen at creation time.
func (s *DirectoryService) Deactivate(ctx context.Context, id string) error {
	repo := s.repos.StandingSigners(s.db)
	if err := repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return err
		}
		return fmt.Errorf("error deactivating standing signer: %w", err)
	}
	return nil
}

// List returns the full roster.
func (s *DirectoryService) List(ctx context.Context) ([]*models.StandingSigner, error) {
	repo := s.repos.StandingSigners(s.db)
	signers, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing standing signers: %w", err)
	}
	return signers, nil
}
