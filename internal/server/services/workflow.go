package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"docflow/internal/common"
	"docflow/internal/dbx"
	"docflow/internal/logging"
	"docflow/internal/server/models"
	"docflow/internal/server/repositories/repomanager"
)

// Decision is a signer's verdict on one SigningTask.
type Decision string

const (
	DecisionSign   Decision = "sign"
	DecisionReject Decision = "reject"
)

// WorkflowService is the approval state machine. It owns every write to a
// document's workflow fields and to its signer ledger, and serializes them
// per document by locking the document row for the duration of each
// operation. Operations on different documents run independently.
type WorkflowService struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	directory *DirectoryService
	access    *AccessService
	notifier  Notifier
	logger    logging.Logger
}

// NewWorkflowService constructs a WorkflowService.
func NewWorkflowService(db *sql.DB, repos repomanager.RepositoryManager, directory *DirectoryService, access *AccessService, notifier Notifier, logger logging.Logger) *WorkflowService {
	return &WorkflowService{
		db:        db,
		repos:     repos,
		directory: directory,
		access:    access,
		notifier:  notifier,
		logger:    logger.With("module", "workflow"),
	}
}

// materializeTasks resolves the signers gating a phase and inserts their
// waiting ledger entries. One task per resolved role in the current design;
// the aggregation logic in evaluateStep does not depend on that.
func (s *WorkflowService) materializeTasks(ctx context.Context, tx dbx.DBTX, doc *models.Document, phase models.Phase) ([]string, error) {
	role, gated := phase.GatingRole()
	if !gated {
		return nil, nil
	}

	signer, err := s.directory.ResolveIn(ctx, tx, role)
	if err != nil {
		return nil, err
	}

	task := &models.SigningTask{
		ID:           uuid.NewString(),
		DocumentID:   doc.ID,
		Step:         phase.StepOf(),
		Role:         role,
		AssigneeID:   signer.PersonID,
		SigningOrder: 1,
		Status:       models.TaskWaiting,
	}
	if err := s.repos.SigningTasks(tx).Create(ctx, task); err != nil {
		return nil, fmt.Errorf("error creating signing task: %w", err)
	}

	return []string{signer.PersonID}, nil
}

// Create starts a new workflow: the document enters the first signer-gated
// phase and its first signing task is materialized in the same transaction.
// A roster gap for the first role fails the whole creation.
func (s *WorkflowService) Create(ctx context.Context, ownerID, title string) (*models.Document, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required: %w", common.ErrValidation)
	}
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", common.ErrValidation)
	}

	doc := &models.Document{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Title:        title,
		CurrentPhase: models.PhasePendingDeputyDirector1,
		CurrentStep:  models.PhasePendingDeputyDirector1.StepOf(),
		AccessType:   models.AccessRestricted,
	}

	var assignees []string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Documents(tx).Create(ctx, doc); err != nil {
			return fmt.Errorf("error creating document: %w", err)
		}
		var err error
		assignees, err = s.materializeTasks(ctx, tx, doc, doc.CurrentPhase)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.PhaseEntered(ctx, doc, doc.CurrentPhase, assignees)
	return doc, nil
}

// Get returns the document if the acting person may view it.
func (s *WorkflowService) Get(ctx context.Context, documentID, actingPerson string) (*models.Document, error) {
	doc, err := s.repos.Documents(s.db).GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	visible, err := s.access.IsVisible(ctx, doc, actingPerson)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, fmt.Errorf("document is not visible to person %q: %w", actingPerson, common.ErrUnauthorized)
	}

	return doc, nil
}

// Tasks returns the document's full immutable task log.
func (s *WorkflowService) Tasks(ctx context.Context, documentID string) ([]*models.SigningTask, error) {
	tasks, err := s.repos.SigningTasks(s.db).ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("error listing signing tasks: %w", err)
	}
	return tasks, nil
}

// SubmitDecision records one signer decision and evaluates the phase.
//
// The decision must address a waiting task of the document's current step,
// and only its assignee may decide it. A rejection needs a reason and moves
// the document to the phase's terminal rejection state, invalidating every
// other waiting task at the step. When all tasks at the step are decided
// with at least one signature and no rejection, the document advances and
// the next phase's tasks are materialized; a roster gap there rolls the
// whole decision back so the caller can resubmit after the roster is fixed.
func (s *WorkflowService) SubmitDecision(ctx context.Context, documentID, taskID, actingPerson string, decision Decision, reason string, payload []byte) (*models.Document, error) {
	if decision != DecisionSign && decision != DecisionReject {
		return nil, fmt.Errorf("unknown decision %q: %w", decision, common.ErrValidation)
	}
	if decision == DecisionReject && reason == "" {
		return nil, fmt.Errorf("rejection requires a reason: %w", common.ErrValidation)
	}

	var (
		doc       *models.Document
		notify    func()
		assignees []string
	)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		docs := s.repos.Documents(tx)
		tasks := s.repos.SigningTasks(tx)

		var err error
		doc, err = docs.GetByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}

		if doc.CurrentPhase.IsTerminal() {
			return fmt.Errorf("document workflow already ended: %w", common.ErrStaleState)
		}
		if _, gated := doc.CurrentPhase.GatingRole(); !gated {
			return fmt.Errorf("phase %q takes no signer decisions: %w", doc.CurrentPhase, common.ErrStaleState)
		}

		task, err := tasks.GetByID(ctx, taskID)
		if err != nil {
			return err
		}
		if task.DocumentID != doc.ID {
			return fmt.Errorf("task does not belong to document: %w", common.ErrValidation)
		}
		if task.Step != doc.CurrentStep {
			return fmt.Errorf("task belongs to step %d, document is on step %d: %w", task.Step, doc.CurrentStep, common.ErrStaleState)
		}
		if task.AssigneeID != actingPerson {
			return fmt.Errorf("task is assigned to another person: %w", common.ErrUnauthorized)
		}

		status := models.TaskSigned
		if decision == DecisionReject {
			status = models.TaskRejected
		}
		if err := tasks.Decide(ctx, task.ID, status, reason, payload); err != nil {
			return err
		}

		if decision == DecisionReject {
			return s.rejectStep(ctx, tx, doc, reason, &notify)
		}
		return s.evaluateStep(ctx, tx, doc, &notify, &assignees)
	})
	if err != nil {
		return nil, err
	}

	if notify != nil {
		notify()
	}
	return doc, nil
}

// rejectStep moves a document to its phase's terminal rejection state and
// invalidates the remaining waiting tasks at the step.
func (s *WorkflowService) rejectStep(ctx context.Context, tx dbx.DBTX, doc *models.Document, reason string, notify *func()) error {
	rejPhase, ok := doc.CurrentPhase.RejectionPhase()
	if !ok {
		return fmt.Errorf("phase %q has no rejection state: %w", doc.CurrentPhase, common.ErrInternal)
	}

	if _, err := s.repos.SigningTasks(tx).InvalidateWaiting(ctx, doc.ID, doc.CurrentStep); err != nil {
		return err
	}

	if err := s.repos.Documents(tx).UpdatePhase(ctx, doc.ID, doc.CurrentPhase, rejPhase, rejPhase.StepOf()); err != nil {
		return err
	}

	fromPhase := doc.CurrentPhase
	doc.CurrentPhase = rejPhase
	doc.CurrentStep = rejPhase.StepOf()

	snapshot := *doc
	*notify = func() {
		s.notifier.DocumentRejected(ctx, &snapshot, fromPhase, reason)
	}
	return nil
}

// evaluateStep checks whether the current step is satisfied after a
// signature and advances the document if so.
func (s *WorkflowService) evaluateStep(ctx context.Context, tx dbx.DBTX, doc *models.Document, notify *func(), assignees *[]string) error {
	stepTasks, err := s.repos.SigningTasks(tx).ListByDocumentStep(ctx, doc.ID, doc.CurrentStep)
	if err != nil {
		return err
	}

	signed := 0
	for _, t := range stepTasks {
		switch t.Status {
		case models.TaskSigned:
			signed++
		case models.TaskRejected, models.TaskInvalidated:
			// A rejection is handled on its own code path; seeing one here
			// means the step already ended.
			return fmt.Errorf("step already ended: %w", common.ErrStaleState)
		default:
			// Still waiting on a co-signer.
			return nil
		}
	}
	if signed == 0 {
		return fmt.Errorf("step has no signed task: %w", common.ErrInternal)
	}

	next, ok := doc.CurrentPhase.Successor()
	if !ok {
		return fmt.Errorf("phase %q has no successor: %w", doc.CurrentPhase, common.ErrInternal)
	}

	if err := s.repos.Documents(tx).UpdatePhase(ctx, doc.ID, doc.CurrentPhase, next, next.StepOf()); err != nil {
		return err
	}

	doc.CurrentPhase = next
	doc.CurrentStep = next.StepOf()

	newAssignees, err := s.materializeTasks(ctx, tx, doc, next)
	if err != nil {
		return err
	}
	*assignees = newAssignees

	snapshot := *doc
	*notify = func() {
		s.notifier.PhaseEntered(ctx, &snapshot, snapshot.CurrentPhase, newAssignees)
	}
	return nil
}

// AdvancePhase performs the owner's explicit "done stamping" transition from
// the stamping phase to the second deputy-director phase. It is the only
// phase advanced through this generic action; distribution and completion
// have their own operations.
func (s *WorkflowService) AdvancePhase(ctx context.Context, documentID, actingPerson string, target models.Phase) (*models.Document, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("unknown phase %q: %w", target, common.ErrValidation)
	}

	var (
		doc       *models.Document
		assignees []string
	)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		doc, err = s.repos.Documents(tx).GetByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}

		if doc.OwnerID != actingPerson {
			return fmt.Errorf("only the owner may advance the phase: %w", common.ErrUnauthorized)
		}
		if doc.CurrentPhase != models.PhasePendingStamp {
			return fmt.Errorf("phase %q cannot be advanced by action: %w", doc.CurrentPhase, common.ErrStaleState)
		}

		next, _ := doc.CurrentPhase.Successor()
		if target != next {
			return fmt.Errorf("target phase %q is not the successor of %q: %w", target, doc.CurrentPhase, common.ErrValidation)
		}

		if err := s.repos.Documents(tx).UpdatePhase(ctx, doc.ID, doc.CurrentPhase, next, next.StepOf()); err != nil {
			return err
		}
		doc.CurrentPhase = next
		doc.CurrentStep = next.StepOf()

		assignees, err = s.materializeTasks(ctx, tx, doc, next)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.PhaseEntered(ctx, doc, doc.CurrentPhase, assignees)
	return doc, nil
}

// SetDistribution records the owner's recipient list or public choice during
// the distribution phase and advances to stamping. The choice only takes
// effect at completion; no grant exists before then.
func (s *WorkflowService) SetDistribution(ctx context.Context, documentID, actingPerson string, recipients []string, accessType models.AccessType) (*models.Document, error) {
	if accessType != models.AccessPublic && accessType != models.AccessRestricted {
		return nil, fmt.Errorf("unknown access type %q: %w", accessType, common.ErrValidation)
	}

	var doc *models.Document

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		docs := s.repos.Documents(tx)

		var err error
		doc, err = docs.GetByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}

		if doc.OwnerID != actingPerson {
			return fmt.Errorf("only the owner may set the distribution: %w", common.ErrUnauthorized)
		}
		if doc.CurrentPhase != models.PhasePendingDistribution {
			return fmt.Errorf("document is not on the distribution phase: %w", common.ErrStaleState)
		}

		if err := docs.SetDistribution(ctx, doc.ID, accessType, recipients); err != nil {
			return err
		}

		next, _ := doc.CurrentPhase.Successor()
		if err := docs.UpdatePhase(ctx, doc.ID, doc.CurrentPhase, next, next.StepOf()); err != nil {
			return err
		}

		doc.AccessType = accessType
		doc.Distribution = recipients
		doc.CurrentPhase = next
		doc.CurrentStep = next.StepOf()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.PhaseEntered(ctx, doc, doc.CurrentPhase, nil)
	return doc, nil
}

// Complete finishes the workflow from the final-review phase: the owner
// confirms the access mode, completed_at is stamped exactly once, and the
// access grants are materialized from the stored distribution list.
func (s *WorkflowService) Complete(ctx context.Context, documentID, actingPerson string, accessType models.AccessType) (*models.Document, error) {
	if accessType != models.AccessPublic && accessType != models.AccessRestricted {
		return nil, fmt.Errorf("unknown access type %q: %w", accessType, common.ErrValidation)
	}

	var doc *models.Document

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		docs := s.repos.Documents(tx)

		var err error
		doc, err = docs.GetByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}

		if doc.OwnerID != actingPerson {
			return fmt.Errorf("only the owner may complete the document: %w", common.ErrUnauthorized)
		}
		if doc.CurrentPhase != models.PhasePendingFinalReview {
			return fmt.Errorf("document is not on the final review phase: %w", common.ErrStaleState)
		}

		isPublic := accessType == models.AccessPublic
		if err := docs.Complete(ctx, doc.ID, accessType, isPublic); err != nil {
			return err
		}

		if err := s.access.MaterializeIn(ctx, tx, doc, doc.Distribution, accessType); err != nil {
			return err
		}

		doc.CurrentPhase = models.PhaseCompleted
		doc.CurrentStep = models.PhaseCompleted.StepOf()
		doc.AccessType = accessType
		doc.IsPublic = isPublic
		return nil
	})
	if err != nil {
		return nil, err
	}

	// completed_at was written by the database; reload for the caller.
	if reloaded, err := s.repos.Documents(s.db).GetByID(ctx, doc.ID); err == nil {
		doc = reloaded
	}

	s.notifier.DocumentCompleted(ctx, doc)
	return doc, nil
}

// Delete removes a document and everything it owns. Owner or admin only.
func (s *WorkflowService) Delete(ctx context.Context, documentID, actingPerson string) error {
	doc, err := s.repos.Documents(s.db).GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != actingPerson && !s.access.IsAdmin(actingPerson) {
		return fmt.Errorf("only the owner or an administrator may delete the document: %w", common.ErrUnauthorized)
	}
	return s.repos.Documents(s.db).Delete(ctx, documentID)
}
