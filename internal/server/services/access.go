package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docflow/internal/common"
	"docflow/internal/dbx"
	"docflow/internal/logging"
	"docflow/internal/server/models"
	"docflow/internal/server/repositories/repomanager"
)

// AdminChecker reports whether a person holds the administrative read
// override. The check itself belongs to an external collaborator; the
// default implementation is a static set from configuration.
type AdminChecker interface {
	IsAdmin(personID string) bool
}

// StaticAdminChecker is an AdminChecker over a fixed set of person IDs.
type StaticAdminChecker struct {
	ids map[string]struct{}
}

// NewStaticAdminChecker builds a checker from a comma-separated ID list.
func NewStaticAdminChecker(commaSeparated string) *StaticAdminChecker {
	ids := make(map[string]struct{})
	for _, id := range strings.Split(commaSeparated, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return &StaticAdminChecker{ids: ids}
}

func (c *StaticAdminChecker) IsAdmin(personID string) bool {
	_, ok := c.ids[personID]
	return ok
}

// AccessService is the gate that opens once a workflow completes: it decides
// who may view a document and materializes the grants that record it.
type AccessService struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	admin     AdminChecker
	presigner ArtifactPresigner
	urlTTL    time.Duration
	logger    logging.Logger
}

// NewAccessService constructs an AccessService.
func NewAccessService(db *sql.DB, repos repomanager.RepositoryManager, admin AdminChecker, presigner ArtifactPresigner, urlTTL time.Duration, logger logging.Logger) *AccessService {
	return &AccessService{
		db:        db,
		repos:     repos,
		admin:     admin,
		presigner: presigner,
		urlTTL:    urlTTL,
		logger:    logger.With("module", "access"),
	}
}

// IsAdmin reports whether the person holds the administrative override.
func (s *AccessService) IsAdmin(personID string) bool {
	return s.admin.IsAdmin(personID)
}

// IsVisible reports whether personID may view the document.
//
// The owner and administrators may always view it, including after a
// rejection. Everyone else is shut out of rejected documents; otherwise a
// person sees the document when it is public and completed, when they hold
// an access grant, or when they hold an undecided signing task on it
// (signers may always view what they are signing).
func (s *AccessService) IsVisible(ctx context.Context, doc *models.Document, personID string) (bool, error) {
	if personID == doc.OwnerID {
		return true, nil
	}
	if s.admin != nil && s.admin.IsAdmin(personID) {
		return true, nil
	}
	if doc.CurrentPhase.IsRejected() {
		return false, nil
	}

	if doc.AccessType == models.AccessPublic && doc.IsPublic {
		return true, nil
	}

	grants := s.repos.AccessGrants(s.db)
	granted, err := grants.Exists(ctx, doc.ID, personID)
	if err != nil {
		return false, fmt.Errorf("error checking access grant: %w", err)
	}
	if granted {
		return true, nil
	}

	tasks := s.repos.SigningTasks(s.db)
	waiting, err := tasks.HasWaitingForAssignee(ctx, doc.ID, personID)
	if err != nil {
		return false, fmt.Errorf("error checking signing tasks: %w", err)
	}
	return waiting, nil
}

// MaterializeIn creates the grants for a completing document against the
// given DBTX, so the workflow can materialize inside its completion
// transaction. Public mode needs no per-person grants; restricted mode gets
// one named-recipient grant per person on the distribution list.
func (s *AccessService) MaterializeIn(ctx context.Context, db dbx.DBTX, doc *models.Document, recipients []string, accessType models.AccessType) error {
	if accessType == models.AccessPublic {
		return nil
	}

	grants := s.repos.AccessGrants(db)
	for _, personID := range recipients {
		if personID == "" {
			continue
		}
		grant := &models.AccessGrant{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			PersonID:   personID,
			Kind:       models.GrantNamedRecipient,
		}
		if err := grants.Create(ctx, grant); err != nil {
			return fmt.Errorf("error creating access grant: %w", err)
		}
	}
	return nil
}

// Grants returns the materialized grants of a document.
func (s *AccessService) Grants(ctx context.Context, documentID string) ([]*models.AccessGrant, error) {
	grants, err := s.repos.AccessGrants(s.db).ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("error listing access grants: %w", err)
	}
	return grants, nil
}

// ArtifactURL returns a short-lived download URL for the document's stored
// file, if the workflow has completed and the person may view it. The grant,
// if one admitted the person, records the access time.
func (s *AccessService) ArtifactURL(ctx context.Context, doc *models.Document, personID string) (string, error) {
	if doc.CurrentPhase != models.PhaseCompleted {
		return "", fmt.Errorf("document is not completed: %w", common.ErrStaleState)
	}

	visible, err := s.IsVisible(ctx, doc, personID)
	if err != nil {
		return "", err
	}
	if !visible {
		return "", fmt.Errorf("document is not visible to person %q: %w", personID, common.ErrUnauthorized)
	}

	if doc.StorageKey == "" {
		return "", fmt.Errorf("document has no stored artifact: %w", common.ErrNotFound)
	}

	if err := s.repos.AccessGrants(s.db).Touch(ctx, doc.ID, personID); err != nil {
		// A failed touch must not block the read.
		s.logger.Warn(ctx, "failed to record access time", "document_id", doc.ID, "error", err.Error())
	}

	url, err := s.presigner.PresignGet(ctx, doc.StorageKey, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("error presigning artifact url: %w", err)
	}
	return url, nil
}
