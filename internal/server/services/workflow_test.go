package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"docflow/internal/common"
	"docflow/internal/dbx"
	"docflow/internal/logging"
	"docflow/internal/server/models"
	accessgrantsrepo "docflow/internal/server/repositories/accessgrants"
	documentsrepo "docflow/internal/server/repositories/documents"
	"docflow/internal/server/repositories/repomanager"
	signingtasksrepo "docflow/internal/server/repositories/signingtasks"
	standingsignersrepo "docflow/internal/server/repositories/standingsigners"
	stampsrepo "docflow/internal/server/repositories/stamps"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func expectTxCommits(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// --- stateful fakes ---

type fakeDocsRepo struct {
	mu   sync.Mutex
	docs map[string]*models.Document

	createErr error
	getErr    error
	phaseErr  error
}

func newFakeDocsRepo() *fakeDocsRepo {
	return &fakeDocsRepo{docs: make(map[string]*models.Document)}
}

func (f *fakeDocsRepo) Create(ctx context.Context, doc *models.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocsRepo) GetByID(ctx context.Context, id string) (*models.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocsRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Document, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeDocsRepo) UpdatePhase(ctx context.Context, id string, fromPhase, toPhase models.Phase, toStep int) error {
	if f.phaseErr != nil {
		return f.phaseErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.CurrentPhase != fromPhase {
		return common.ErrStaleState
	}
	doc.CurrentPhase = toPhase
	doc.CurrentStep = toStep
	return nil
}

func (f *fakeDocsRepo) SetDistribution(ctx context.Context, id string, accessType models.AccessType, recipients []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return common.ErrNotFound
	}
	doc.AccessType = accessType
	doc.Distribution = recipients
	return nil
}

func (f *fakeDocsRepo) Complete(ctx context.Context, id string, accessType models.AccessType, isPublic bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return common.ErrNotFound
	}
	if doc.CompletedAt != nil {
		return common.ErrStaleState
	}
	now := time.Now()
	doc.CurrentPhase = models.PhaseCompleted
	doc.CurrentStep = models.PhaseCompleted.StepOf()
	doc.AccessType = accessType
	doc.IsPublic = isPublic
	doc.CompletedAt = &now
	return nil
}

func (f *fakeDocsRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

type fakeTasksRepo struct {
	mu    sync.Mutex
	tasks []*models.SigningTask

	createErr error
	decideErr error
}

func (f *fakeTasksRepo) Create(ctx context.Context, task *models.SigningTask) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *task
	f.tasks = append(f.tasks, &cp)
	return nil
}

func (f *fakeTasksRepo) GetByID(ctx context.Context, id string) (*models.SigningTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeTasksRepo) ListByDocumentStep(ctx context.Context, documentID string, step int) ([]*models.SigningTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SigningTask
	for _, t := range f.tasks {
		if t.DocumentID == documentID && t.Step == step {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeTasksRepo) ListByDocument(ctx context.Context, documentID string) ([]*models.SigningTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SigningTask
	for _, t := range f.tasks {
		if t.DocumentID == documentID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeTasksRepo) HasWaitingForAssignee(ctx context.Context, documentID, personID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.DocumentID == documentID && t.AssigneeID == personID && t.Status == models.TaskWaiting {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTasksRepo) Decide(ctx context.Context, id string, status models.TaskStatus, reason string, payload []byte) error {
	if f.decideErr != nil {
		return f.decideErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			if t.Status != models.TaskWaiting {
				return common.ErrStaleState
			}
			now := time.Now()
			t.Status = status
			t.RejectReason = reason
			t.Payload = payload
			t.DecidedAt = &now
			return nil
		}
	}
	return common.ErrStaleState
}

func (f *fakeTasksRepo) InvalidateWaiting(ctx context.Context, documentID string, step int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.tasks {
		if t.DocumentID == documentID && t.Step == step && t.Status == models.TaskWaiting {
			t.Status = models.TaskInvalidated
			n++
		}
	}
	return n, nil
}

// waitingTask returns the single waiting task of the document, failing the
// test when there is not exactly one.
func (f *fakeTasksRepo) waitingTask(t *testing.T, documentID string) *models.SigningTask {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *models.SigningTask
	for _, task := range f.tasks {
		if task.DocumentID == documentID && task.Status == models.TaskWaiting {
			if found != nil {
				t.Fatalf("more than one waiting task for document %s", documentID)
			}
			cp := *task
			found = &cp
		}
	}
	if found == nil {
		t.Fatalf("no waiting task for document %s", documentID)
	}
	return found
}

type fakeSignersRepo struct {
	mu      sync.Mutex
	signers []*models.StandingSigner
}

func (f *fakeSignersRepo) Create(ctx context.Context, signer *models.StandingSigner) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *signer
	f.signers = append(f.signers, &cp)
	return nil
}

func (f *fakeSignersRepo) Deactivate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.signers {
		if s.ID == id {
			s.IsActive = false
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeSignersRepo) List(ctx context.Context) ([]*models.StandingSigner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.StandingSigner, 0, len(f.signers))
	for _, s := range f.signers {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeSignersRepo) ResolveBest(ctx context.Context, family models.RoleFamily) (*models.StandingSigner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.StandingSigner
	for _, s := range f.signers {
		if s.RoleFamily != family || !s.IsActive {
			continue
		}
		if best == nil ||
			s.PriorityOrder < best.PriorityOrder ||
			(s.PriorityOrder == best.PriorityOrder && s.ID < best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil, common.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

type fakeGrantsRepo struct {
	mu     sync.Mutex
	grants []*models.AccessGrant

	touched []string
}

func (f *fakeGrantsRepo) Create(ctx context.Context, grant *models.AccessGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g.DocumentID == grant.DocumentID && g.PersonID == grant.PersonID {
			return nil
		}
	}
	cp := *grant
	f.grants = append(f.grants, &cp)
	return nil
}

func (f *fakeGrantsRepo) Exists(ctx context.Context, documentID, personID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g.DocumentID == documentID && g.PersonID == personID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGrantsRepo) Touch(ctx context.Context, documentID, personID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, personID)
	return nil
}

func (f *fakeGrantsRepo) ListByDocument(ctx context.Context, documentID string) ([]*models.AccessGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AccessGrant
	for _, g := range f.grants {
		if g.DocumentID == documentID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeStampsRepo struct {
	mu         sync.Mutex
	placements []*models.StampPlacement
}

func (f *fakeStampsRepo) Create(ctx context.Context, placement *models.StampPlacement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *placement
	f.placements = append(f.placements, &cp)
	return nil
}

func (f *fakeStampsRepo) GetByID(ctx context.Context, id string) (*models.StampPlacement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.placements {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeStampsRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.placements {
		if p.ID == id {
			f.placements = append(f.placements[:i], f.placements[i+1:]...)
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeStampsRepo) ListByDocument(ctx context.Context, documentID string) ([]*models.StampPlacement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.StampPlacement
	for _, p := range f.placements {
		if p.DocumentID == documentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeRepoManager struct {
	docs    *fakeDocsRepo
	tasks   *fakeTasksRepo
	signers *fakeSignersRepo
	grants  *fakeGrantsRepo
	stamps  *fakeStampsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		docs:    newFakeDocsRepo(),
		tasks:   &fakeTasksRepo{},
		signers: &fakeSignersRepo{},
		grants:  &fakeGrantsRepo{},
		stamps:  &fakeStampsRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Documents(db dbx.DBTX) documentsrepo.Repository {
	return m.docs
}
func (m *fakeRepoManager) SigningTasks(db dbx.DBTX) signingtasksrepo.Repository {
	return m.tasks
}
func (m *fakeRepoManager) StandingSigners(db dbx.DBTX) standingsignersrepo.Repository {
	return m.signers
}
func (m *fakeRepoManager) AccessGrants(db dbx.DBTX) accessgrantsrepo.Repository {
	return m.grants
}
func (m *fakeRepoManager) Stamps(db dbx.DBTX) stampsrepo.Repository {
	return m.stamps
}

// seedRoster appoints one active signer per family under the conventional
// test person IDs.
func (m *fakeRepoManager) seedRoster(ctx context.Context) {
	m.signers.Create(ctx, &models.StandingSigner{ID: "ss-1", PersonID: "deputy-a", RoleFamily: models.FamilyDeputyDirector, PriorityOrder: 1, IsActive: true})
	m.signers.Create(ctx, &models.StandingSigner{ID: "ss-2", PersonID: "director-a", RoleFamily: models.FamilyDirector, PriorityOrder: 1, IsActive: true})
}

type notifierEvent struct {
	kind      string
	phase     models.Phase
	assignees []string
	reason    string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifierEvent
}

func (n *recordingNotifier) PhaseEntered(ctx context.Context, doc *models.Document, phase models.Phase, assignees []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifierEvent{kind: "phase", phase: phase, assignees: assignees})
}

func (n *recordingNotifier) DocumentRejected(ctx context.Context, doc *models.Document, phase models.Phase, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifierEvent{kind: "rejected", phase: phase, reason: reason})
}

func (n *recordingNotifier) DocumentCompleted(ctx context.Context, doc *models.Document) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifierEvent{kind: "completed"})
}

func (n *recordingNotifier) last(t *testing.T) notifierEvent {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		t.Fatal("no notifications recorded")
	}
	return n.events[len(n.events)-1]
}

func newWorkflowService(t *testing.T, db *sql.DB, rm repomanager.RepositoryManager, admins string) (*WorkflowService, *recordingNotifier) {
	t.Helper()
	logger := testLogger()
	directory := NewDirectoryService(db, rm, logger)
	access := NewAccessService(db, rm, NewStaticAdminChecker(admins), nil, time.Minute, logger)
	notifier := &recordingNotifier{}
	return NewWorkflowService(db, rm, directory, access, notifier, logger), notifier
}

// --- tests ---

func TestWorkflowCreate_FirstTaskMaterialized(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 1)

	rm := newFakeRepoManager()
	rm.seedRoster(context.Background())
	svc, notifier := newWorkflowService(t, db, rm, "")

	doc, err := svc.Create(context.Background(), "owner-1", "Quarterly report")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if doc.CurrentPhase != models.PhasePendingDeputyDirector1 {
		t.Fatalf("want phase %s, got %s", models.PhasePendingDeputyDirector1, doc.CurrentPhase)
	}
	if doc.CurrentStep != 1 {
		t.Fatalf("want step 1, got %d", doc.CurrentStep)
	}

	task := rm.tasks.waitingTask(t, doc.ID)
	if task.AssigneeID != "deputy-a" {
		t.Fatalf("want assignee deputy-a, got %s", task.AssigneeID)
	}
	if task.Role != models.RoleDeputyDirector1 {
		t.Fatalf("want role %s, got %s", models.RoleDeputyDirector1, task.Role)
	}

	ev := notifier.last(t)
	if ev.kind != "phase" || len(ev.assignees) != 1 || ev.assignees[0] != "deputy-a" {
		t.Fatalf("unexpected notification: %+v", ev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWorkflowCreate_Validation(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	svc, _ := newWorkflowService(t, db, rm, "")

	if _, err := svc.Create(context.Background(), "", "title"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation for empty owner, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "owner-1", ""); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation for empty title, got %v", err)
	}
}

func TestWorkflowCreate_EmptyRoster(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := newFakeRepoManager() // no roster seeded
	svc, _ := newWorkflowService(t, db, rm, "")

	_, err := svc.Create(context.Background(), "owner-1", "title")
	if !errors.Is(err, common.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

// Drives a fresh document through step 1 (deputy) and step 2 (director),
// returning it at the distribution phase.
func driveToDistribution(t *testing.T, svc *WorkflowService, rm *fakeRepoManager) *models.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := svc.Create(ctx, "owner-1", "Annual plan")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	task := rm.tasks.waitingTask(t, doc.ID)
	doc, err = svc.SubmitDecision(ctx, doc.ID, task.ID, "deputy-a", DecisionSign, "", []byte(`{"sig":"d1"}`))
	if err != nil {
		t.Fatalf("deputy decision error: %v", err)
	}
	if doc.CurrentPhase != models.PhasePendingDirector {
		t.Fatalf("want phase %s, got %s", models.PhasePendingDirector, doc.CurrentPhase)
	}

	task = rm.tasks.waitingTask(t, doc.ID)
	doc, err = svc.SubmitDecision(ctx, doc.ID, task.ID, "director-a", DecisionSign, "", nil)
	if err != nil {
		t.Fatalf("director decision error: %v", err)
	}
	if doc.CurrentPhase != models.PhasePendingDistribution {
		t.Fatalf("want phase %s, got %s", models.PhasePendingDistribution, doc.CurrentPhase)
	}
	return doc
}

func TestWorkflow_FullApprovalPath(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	// create, two decisions, distribution, advance, one decision, complete
	expectTxCommits(mock, 7)

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, notifier := newWorkflowService(t, db, rm, "")

	doc := driveToDistribution(t, svc, rm)

	doc, err := svc.SetDistribution(ctx, doc.ID, "owner-1", []string{"reader-1", "reader-2"}, models.AccessRestricted)
	if err != nil {
		t.Fatalf("SetDistribution error: %v", err)
	}
	if doc.CurrentPhase != models.PhasePendingStamp {
		t.Fatalf("want phase %s, got %s", models.PhasePendingStamp, doc.CurrentPhase)
	}
	if len(rm.grants.grants) != 0 {
		t.Fatalf("no grants may exist before completion, got %d", len(rm.grants.grants))
	}

	doc, err = svc.AdvancePhase(ctx, doc.ID, "owner-1", models.PhasePendingDeputyDirector2)
	if err != nil {
		t.Fatalf("AdvancePhase error: %v", err)
	}
	if doc.CurrentPhase != models.PhasePendingDeputyDirector2 {
		t.Fatalf("want phase %s, got %s", models.PhasePendingDeputyDirector2, doc.CurrentPhase)
	}

	task := rm.tasks.waitingTask(t, doc.ID)
	if task.Role != models.RoleDeputyDirector2 {
		t.Fatalf("want role %s, got %s", models.RoleDeputyDirector2, task.Role)
	}
	doc, err = svc.SubmitDecision(ctx, doc.ID, task.ID, "deputy-a", DecisionSign, "", nil)
	if err != nil {
		t.Fatalf("second deputy decision error: %v", err)
	}
	if doc.CurrentPhase != models.PhasePendingFinalReview {
		t.Fatalf("want phase %s, got %s", models.PhasePendingFinalReview, doc.CurrentPhase)
	}

	doc, err = svc.Complete(ctx, doc.ID, "owner-1", models.AccessRestricted)
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if doc.CurrentPhase != models.PhaseCompleted {
		t.Fatalf("want phase %s, got %s", models.PhaseCompleted, doc.CurrentPhase)
	}
	if doc.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}

	grants, err := rm.grants.ListByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListByDocument error: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("want 2 grants, got %d", len(grants))
	}
	for _, g := range grants {
		if g.Kind != models.GrantNamedRecipient {
			t.Fatalf("want kind %s, got %s", models.GrantNamedRecipient, g.Kind)
		}
	}

	if ev := notifier.last(t); ev.kind != "completed" {
		t.Fatalf("want completed notification, got %+v", ev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWorkflow_RejectionEndsWorkflow(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 3)

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, notifier := newWorkflowService(t, db, rm, "")

	doc, err := svc.Create(ctx, "owner-1", "Draft policy")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	task := rm.tasks.waitingTask(t, doc.ID)
	doc, err = svc.SubmitDecision(ctx, doc.ID, task.ID, "deputy-a", DecisionSign, "", nil)
	if err != nil {
		t.Fatalf("deputy decision error: %v", err)
	}

	task = rm.tasks.waitingTask(t, doc.ID)
	doc, err = svc.SubmitDecision(ctx, doc.ID, task.ID, "director-a", DecisionReject, "needs legal review", nil)
	if err != nil {
		t.Fatalf("reject error: %v", err)
	}
	if doc.CurrentPhase != models.PhaseRejectedByDirector {
		t.Fatalf("want phase %s, got %s", models.PhaseRejectedByDirector, doc.CurrentPhase)
	}
	if doc.CurrentStep != 2 {
		t.Fatalf("rejection keeps the step, want 2 got %d", doc.CurrentStep)
	}

	decided, _ := rm.tasks.GetByID(ctx, task.ID)
	if decided.Status != models.TaskRejected || decided.RejectReason != "needs legal review" {
		t.Fatalf("task not finalized: %+v", decided)
	}

	ev := notifier.last(t)
	if ev.kind != "rejected" || ev.reason != "needs legal review" {
		t.Fatalf("unexpected notification: %+v", ev)
	}

	// terminal: no further decisions
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = svc.SubmitDecision(ctx, doc.ID, task.ID, "director-a", DecisionSign, "", nil)
	if !errors.Is(err, common.ErrStaleState) {
		t.Fatalf("want ErrStaleState on terminal document, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWorkflow_RejectRequiresReason(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	svc, _ := newWorkflowService(t, db, rm, "")

	_, err := svc.SubmitDecision(context.Background(), "d1", "t1", "p1", DecisionReject, "", nil)
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestWorkflow_DecisionByWrongPerson(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 1)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, _ := newWorkflowService(t, db, rm, "")

	doc, err := svc.Create(ctx, "owner-1", "title")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	task := rm.tasks.waitingTask(t, doc.ID)

	_, err = svc.SubmitDecision(ctx, doc.ID, task.ID, "intruder", DecisionSign, "", nil)
	if !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}

	kept, _ := rm.tasks.GetByID(ctx, task.ID)
	if kept.Status != models.TaskWaiting {
		t.Fatalf("task must stay waiting, got %s", kept.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWorkflow_DecisionOnStaleTask(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 2)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, _ := newWorkflowService(t, db, rm, "")

	doc, err := svc.Create(ctx, "owner-1", "title")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	step1Task := rm.tasks.waitingTask(t, doc.ID)
	if _, err := svc.SubmitDecision(ctx, doc.ID, step1Task.ID, "deputy-a", DecisionSign, "", nil); err != nil {
		t.Fatalf("decision error: %v", err)
	}

	// replaying the already decided step-1 task against the step-2 document
	_, err = svc.SubmitDecision(ctx, doc.ID, step1Task.ID, "deputy-a", DecisionSign, "", nil)
	if !errors.Is(err, common.ErrStaleState) {
		t.Fatalf("want ErrStaleState, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWorkflow_DecisionTaskFromOtherDocument(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 2)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, _ := newWorkflowService(t, db, rm, "")

	docA, err := svc.Create(ctx, "owner-1", "doc A")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	taskA := rm.tasks.waitingTask(t, docA.ID)

	docB, err := svc.Create(ctx, "owner-1", "doc B")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, err = svc.SubmitDecision(ctx, docB.ID, taskA.ID, "deputy-a", DecisionSign, "", nil)
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWorkflow_RosterGapRollsBackDecision(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 1)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, _ := newWorkflowService(t, db, rm, "")

	doc, err := svc.Create(ctx, "owner-1", "title")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	// empty the director family before the deputy signs
	if err := rm.signers.Deactivate(ctx, "ss-2"); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}

	task := rm.tasks.waitingTask(t, doc.ID)
	_, err = svc.SubmitDecision(ctx, doc.ID, task.ID, "deputy-a", DecisionSign, "", nil)
	if !errors.Is(err, common.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestWorkflow_AdvanceGuards(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 1)
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, _ := newWorkflowService(t, db, rm, "")

	doc, err := svc.Create(ctx, "owner-1", "title")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if _, err := svc.AdvancePhase(ctx, doc.ID, "owner-1", "no_such_phase"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation for unknown phase, got %v", err)
	}
	if _, err := svc.AdvancePhase(ctx, doc.ID, "stranger", models.PhasePendingDeputyDirector2); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for non-owner, got %v", err)
	}
	// document is on a signer-gated phase, not the stamping phase
	if _, err := svc.AdvancePhase(ctx, doc.ID, "owner-1", models.PhasePendingDeputyDirector2); !errors.Is(err, common.ErrStaleState) {
		t.Fatalf("want ErrStaleState, got %v", err)
	}
	// wrong target from the stamping phase
	rm.docs.docs[doc.ID].CurrentPhase = models.PhasePendingStamp
	rm.docs.docs[doc.ID].CurrentStep = models.PhasePendingStamp.StepOf()
	if _, err := svc.AdvancePhase(ctx, doc.ID, "owner-1", models.PhaseCompleted); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation for wrong target, got %v", err)
	}
}

func TestWorkflow_SetDistributionGuards(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 1)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, _ := newWorkflowService(t, db, rm, "")

	doc, err := svc.Create(ctx, "owner-1", "title")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if _, err := svc.SetDistribution(ctx, doc.ID, "owner-1", nil, "secret"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation for unknown access type, got %v", err)
	}
	if _, err := svc.SetDistribution(ctx, doc.ID, "stranger", nil, models.AccessRestricted); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := svc.SetDistribution(ctx, doc.ID, "owner-1", nil, models.AccessRestricted); !errors.Is(err, common.ErrStaleState) {
		t.Fatalf("want ErrStaleState before the distribution phase, got %v", err)
	}
}

func TestWorkflow_CompletePublicSetsFlagWithoutGrants(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 7)

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, _ := newWorkflowService(t, db, rm, "")

	doc := driveToDistribution(t, svc, rm)

	doc, err := svc.SetDistribution(ctx, doc.ID, "owner-1", nil, models.AccessPublic)
	if err != nil {
		t.Fatalf("SetDistribution error: %v", err)
	}
	if doc.IsPublic {
		t.Fatal("is_public must stay false before completion")
	}

	if doc, err = svc.AdvancePhase(ctx, doc.ID, "owner-1", models.PhasePendingDeputyDirector2); err != nil {
		t.Fatalf("AdvancePhase error: %v", err)
	}
	task := rm.tasks.waitingTask(t, doc.ID)
	if doc, err = svc.SubmitDecision(ctx, doc.ID, task.ID, "deputy-a", DecisionSign, "", nil); err != nil {
		t.Fatalf("decision error: %v", err)
	}

	doc, err = svc.Complete(ctx, doc.ID, "owner-1", models.AccessPublic)
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if !doc.IsPublic {
		t.Fatal("is_public must be true after public completion")
	}
	if len(rm.grants.grants) != 0 {
		t.Fatalf("public completion materializes no grants, got %d", len(rm.grants.grants))
	}
}

func TestWorkflow_CompleteGuards(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 1)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, _ := newWorkflowService(t, db, rm, "")

	doc, err := svc.Create(ctx, "owner-1", "title")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if _, err := svc.Complete(ctx, doc.ID, "stranger", models.AccessRestricted); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Complete(ctx, doc.ID, "owner-1", models.AccessRestricted); !errors.Is(err, common.ErrStaleState) {
		t.Fatalf("want ErrStaleState before final review, got %v", err)
	}
}

func TestWorkflow_GetVisibilityGate(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 1)

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, _ := newWorkflowService(t, db, rm, "admin-1")

	doc, err := svc.Create(ctx, "owner-1", "title")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if _, err := svc.Get(ctx, doc.ID, "owner-1"); err != nil {
		t.Fatalf("owner must see the document: %v", err)
	}
	if _, err := svc.Get(ctx, doc.ID, "admin-1"); err != nil {
		t.Fatalf("admin must see the document: %v", err)
	}
	if _, err := svc.Get(ctx, doc.ID, "deputy-a"); err != nil {
		t.Fatalf("assigned signer must see the document: %v", err)
	}
	if _, err := svc.Get(ctx, doc.ID, "stranger"); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for stranger, got %v", err)
	}
	if _, err := svc.Get(ctx, "missing", "owner-1"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestWorkflow_Delete(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	expectTxCommits(mock, 1)

	ctx := context.Background()
	rm := newFakeRepoManager()
	rm.seedRoster(ctx)
	svc, _ := newWorkflowService(t, db, rm, "admin-1")

	doc, err := svc.Create(ctx, "owner-1", "title")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if err := svc.Delete(ctx, doc.ID, "stranger"); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if err := svc.Delete(ctx, doc.ID, "admin-1"); err != nil {
		t.Fatalf("admin delete error: %v", err)
	}
	if _, err := rm.docs.GetByID(ctx, doc.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("document must be gone, got %v", err)
	}
}
