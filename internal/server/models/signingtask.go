package models

import "time"

// TaskStatus is the decision state of one SigningTask. A task starts Waiting,
// and once Signed or Rejected it never changes again. Invalidated marks tasks
// that will never be decided because a sibling rejection ended the step.
type TaskStatus string

const (
	TaskWaiting     TaskStatus = "waiting"
	TaskPending     TaskStatus = "pending"
	TaskSigned      TaskStatus = "signed"
	TaskRejected    TaskStatus = "rejected"
	TaskInvalidated TaskStatus = "invalidated"
)

// Decided reports whether the task reached a final decision.
func (s TaskStatus) Decided() bool {
	return s == TaskSigned || s == TaskRejected
}

// SigningTask is one required decision at one step of one document. The
// assignee is frozen at creation time; roster changes never touch it.
// SigningOrder is a display/tie-break ordinal among co-signers at the same
// step, not a gating sequence.
type SigningTask struct {
	ID           string
	DocumentID   string
	Step         int
	Role         SignerRole
	AssigneeID   string
	SigningOrder int
	Status       TaskStatus
	DecidedAt    *time.Time
	RejectReason string
	Payload      []byte
}
