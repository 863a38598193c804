package workflow

import (
	"math"
	"time"

	"expenseflow/internal/model"

	"github.com/google/uuid"
)

// Action is an approver's verdict.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Decision is one approver's verdict on a claim.
type Decision struct {
	ApproverID uuid.UUID
	Action     Action
	Comment    string
}

// Outcome describes the effect of one applied decision.
type Outcome struct {
	Entry          model.ApprovalEntry
	PreviousStatus model.ClaimStatus
	Status         model.ClaimStatus
	PreviousStep   int
	CurrentStep    int
}

// Finalized reports whether this decision moved the claim into a terminal state.
func (o *Outcome) Finalized() bool {
	return !o.PreviousStatus.IsTerminal() && o.Status.IsTerminal()
}

// Apply records d on the claim's ledger and re-evaluates the claim in place.
// On error the claim is left untouched.
func Apply(claim *model.Claim, d Decision, now time.Time) (*Outcome, error) {
	if claim.Status.IsTerminal() {
		return nil, ErrClaimAlreadyFinalized
	}
	if d.Action != ActionApprove && d.Action != ActionReject {
		return nil, invalid("action", "must be %q or %q", ActionApprove, ActionReject)
	}

	ledger := Ledger(claim.Entries)
	i, err := ledger.Pending(d.ApproverID, claim.CurrentStep)
	if err != nil {
		return nil, err
	}
	// The step guard holds for every kind, so a specific approver cannot short-circuit
	// ahead of a manager-first prefix.
	if seq := ledger[i].Sequence; seq != claim.CurrentStep {
		return nil, &OutOfTurnError{ActiveStep: claim.CurrentStep, EntryStep: seq}
	}

	out := &Outcome{PreviousStatus: claim.Status, PreviousStep: claim.CurrentStep}
	out.Entry = *ledger.ApplyDecision(i, d, now)

	status, step := Evaluate(claim.Policy, ledger, claim.CurrentStep)
	if step > claim.CurrentStep {
		claim.CurrentStep = step
	}
	claim.Status = status
	if status.IsTerminal() && claim.FinalizedAt == nil {
		finalized := now
		claim.FinalizedAt = &finalized
	}

	out.Status = claim.Status
	out.CurrentStep = claim.CurrentStep
	return out, nil
}

// Evaluate computes the claim status for ledger under policy, starting from the active
// step. It returns the new status and the step that is active afterwards, which is never
// below currentStep. A nil policy means no rule applied.
func Evaluate(policy *model.PolicySnapshot, ledger Ledger, currentStep int) (model.ClaimStatus, int) {
	if ledger.AnyRejected() {
		return model.ClaimRejected, currentStep
	}
	if policy == nil {
		if allApproved(ledger) {
			return model.ClaimApproved, currentStep
		}
		return model.ClaimPending, currentStep
	}

	if policy.Kind == model.RuleKindSequential {
		step, done := advance(ledger, currentStep, math.MaxInt)
		if done {
			return model.ClaimApproved, step
		}
		return model.ClaimPending, step
	}

	// Any manager-first prefix has to clear before the voting group counts.
	step, done := advance(ledger, currentStep, policy.VotingStep)
	if !done {
		return model.ClaimPending, step
	}
	step = max(step, policy.VotingStep)

	group := ledger.Group(policy.VotingStep)
	switch policy.Kind {
	case model.RuleKindPercentage:
		if percentageMet(policy, group) {
			return model.ClaimApproved, step
		}
	case model.RuleKindSpecificApprover:
		if specificApproved(policy, group) {
			return model.ClaimApproved, step
		}
	case model.RuleKindHybrid:
		if specificApproved(policy, group) || percentageMet(policy, group) {
			return model.ClaimApproved, step
		}
	}
	return model.ClaimPending, step
}

// advance walks forward from step over fully approved groups below limit. done reports
// that every group below limit is approved; step is then the last group reached.
func advance(ledger Ledger, step, limit int) (int, bool) {
	for step < limit {
		if !allApproved(ledger.Group(step)) {
			return step, false
		}
		next, ok := ledger.NextStep(step)
		if !ok {
			return step, true
		}
		if next >= limit {
			return limit, true
		}
		step = next
	}
	return step, true
}

func percentageMet(policy *model.PolicySnapshot, group []model.ApprovalEntry) bool {
	eligible, approved := 0, 0
	for _, e := range group {
		if policy.IsExcluded(e.Role) {
			continue
		}
		eligible++
		if e.Status == model.EntryApproved {
			approved++
		}
	}
	if eligible == 0 {
		return false
	}
	// approved/eligible*100 >= required, kept in integers
	return approved*100 >= policy.PercentageRequired*eligible
}

func specificApproved(policy *model.PolicySnapshot, group []model.ApprovalEntry) bool {
	if policy.SpecificApproverID == nil {
		return false
	}
	for _, e := range group {
		if e.ApproverID == *policy.SpecificApproverID && e.Status == model.EntryApproved {
			return true
		}
	}
	return false
}

// Open installs plan on a newly submitted claim and evaluates it once. A claim whose
// ledger came out empty is approved here.
func Open(claim *model.Claim, plan Plan, now time.Time) {
	claim.Entries = plan.Entries
	claim.Policy = plan.Policy
	claim.AppliedRuleID = nil
	if plan.Policy != nil {
		ruleID := plan.Policy.RuleID
		claim.AppliedRuleID = &ruleID
	}
	claim.Status, claim.CurrentStep = Evaluate(plan.Policy, Ledger(plan.Entries), plan.CurrentStep)
	claim.FinalizedAt = nil
	if claim.Status.IsTerminal() {
		finalized := now
		claim.FinalizedAt = &finalized
	}
}
