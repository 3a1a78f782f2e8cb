package models

// Phase is the document's current named workflow state. A document moves
// through the signer-gated and action-gated phases in a fixed order and ends
// in exactly one terminal phase: Completed or one of the rejection phases.
type Phase string

const (
	PhasePendingDeputyDirector1 Phase = "pending_deputy_director_1"
	PhasePendingDirector        Phase = "pending_director"
	PhasePendingDistribution    Phase = "pending_distribution"
	PhasePendingStamp           Phase = "pending_stamp"
	PhasePendingDeputyDirector2 Phase = "pending_deputy_director_2"
	PhasePendingFinalReview     Phase = "pending_final_review"
	PhaseCompleted              Phase = "completed"

	PhaseRejectedByDeputy1  Phase = "rejected_by_deputy_1"
	PhaseRejectedByDirector Phase = "rejected_by_director"
	PhaseRejectedByDeputy2  Phase = "rejected_by_deputy_2"
)

// SignerRole names the approval obligation gating a signer-gated phase.
type SignerRole string

const (
	RoleDeputyDirector1 SignerRole = "deputy_director_1"
	RoleDirector        SignerRole = "director"
	RoleDeputyDirector2 SignerRole = "deputy_director_2"
)

// RoleFamily is the standing-role family a SignerRole resolves against.
// Both deputy director slots draw from the same standing roster.
type RoleFamily string

const (
	FamilyDeputyDirector RoleFamily = "deputy_director"
	FamilyDirector       RoleFamily = "director"
)

// phaseInfo is one row of the canonical phase table: the 1-based step number,
// the signer role gating the phase (empty for action-gated phases), the phase
// a rejection at this step lands on, and the successor phase.
type phaseInfo struct {
	step      int
	role      SignerRole
	rejected  Phase
	successor Phase
}

var phaseTable = map[Phase]phaseInfo{
	PhasePendingDeputyDirector1: {step: 1, role: RoleDeputyDirector1, rejected: PhaseRejectedByDeputy1, successor: PhasePendingDirector},
	PhasePendingDirector:        {step: 2, role: RoleDirector, rejected: PhaseRejectedByDirector, successor: PhasePendingDistribution},
	PhasePendingDistribution:    {step: 3, successor: PhasePendingStamp},
	PhasePendingStamp:           {step: 4, successor: PhasePendingDeputyDirector2},
	PhasePendingDeputyDirector2: {step: 5, role: RoleDeputyDirector2, rejected: PhaseRejectedByDeputy2, successor: PhasePendingFinalReview},
	PhasePendingFinalReview:     {step: 6, successor: PhaseCompleted},
	PhaseCompleted:              {step: 7},

	// Rejection phases keep the step of the phase they were reached from,
	// so the phase/step invariant holds in terminal states too.
	PhaseRejectedByDeputy1:  {step: 1},
	PhaseRejectedByDirector: {step: 2},
	PhaseRejectedByDeputy2:  {step: 5},
}

// StepOf returns the canonical step number for a workflow phase, or 0 for
// rejection phases and unknown values. A document's current_step column is a
// cache of this mapping and must never disagree with it.
func (p Phase) StepOf() int {
	if info, ok := phaseTable[p]; ok {
		return info.step
	}
	return 0
}

// GatingRole returns the signer role that must decide at this phase, and
// false for action-gated and terminal phases.
func (p Phase) GatingRole() (SignerRole, bool) {
	info, ok := phaseTable[p]
	if !ok || info.role == "" {
		return "", false
	}
	return info.role, true
}

// Successor returns the next phase in the fixed order, and false when the
// phase is terminal or unknown.
func (p Phase) Successor() (Phase, bool) {
	info, ok := phaseTable[p]
	if !ok || info.successor == "" {
		return "", false
	}
	return info.successor, true
}

// RejectionPhase returns the terminal rejection phase paired with this
// signer-gated phase, and false for phases that cannot be rejected.
func (p Phase) RejectionPhase() (Phase, bool) {
	info, ok := phaseTable[p]
	if !ok || info.rejected == "" {
		return "", false
	}
	return info.rejected, true
}

// IsTerminal reports whether no further workflow writes are accepted.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p.IsRejected()
}

// IsRejected reports whether the phase is one of the terminal rejection states.
func (p Phase) IsRejected() bool {
	switch p {
	case PhaseRejectedByDeputy1, PhaseRejectedByDirector, PhaseRejectedByDeputy2:
		return true
	}
	return false
}

// Valid reports whether p is a known phase value.
func (p Phase) Valid() bool {
	_, ok := phaseTable[p]
	return ok
}

// Family maps a signer role to the standing-role family it resolves against.
func (r SignerRole) Family() (RoleFamily, bool) {
	switch r {
	case RoleDeputyDirector1, RoleDeputyDirector2:
		return FamilyDeputyDirector, true
	case RoleDirector:
		return FamilyDirector, true
	}
	return "", false
}
