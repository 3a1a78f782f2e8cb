package services

import (
	"context"

	"docflow/internal/logging"
	"docflow/internal/server/models"
)

// Notifier receives workflow events. Delivery is fire-and-forget: the
// workflow never blocks on or retries a notification, so implementations
// must not return errors to the caller.
type Notifier interface {
	// PhaseEntered fires when a document enters a new phase, with the
	// signers assigned for it (empty for action-gated phases).
	PhaseEntered(ctx context.Context, doc *models.Document, phase models.Phase, assignees []string)

	// DocumentRejected fires when a signer rejection ends the workflow.
	DocumentRejected(ctx context.Context, doc *models.Document, phase models.Phase, reason string)

	// DocumentCompleted fires when the workflow reaches completion.
	DocumentCompleted(ctx context.Context, doc *models.Document)
}

// LogNotifier writes workflow events to the structured log. It is the
// default Notifier; a queue-backed implementation can replace it without
// touching the workflow.
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifier")}
}

func (n *LogNotifier) PhaseEntered(ctx context.Context, doc *models.Document, phase models.Phase, assignees []string) {
	n.logger.Info(ctx, "phase entered", "document_id", doc.ID, "phase", string(phase), "assignees", assignees)
}

func (n *LogNotifier) DocumentRejected(ctx context.Context, doc *models.Document, phase models.Phase, reason string) {
	n.logger.Info(ctx, "document rejected", "document_id", doc.ID, "phase", string(phase), "reason", reason)
}

func (n *LogNotifier) DocumentCompleted(ctx context.Context, doc *models.Document) {
	n.logger.Info(ctx, "document completed", "document_id", doc.ID)
}
