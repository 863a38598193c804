package workflow

import (
	"sort"

	"expenseflow/internal/model"
)

// Plan is the approval workflow materialized for one claim.
type Plan struct {
	Entries     []model.ApprovalEntry
	Policy      *model.PolicySnapshot // nil when no rule applied
	CurrentStep int
}

// Build materializes the approval entries for a claim governed by rule. manager is the
// claimant's direct manager, if any. managerIsApprover is the company setting consulted
// when no rule applies.
func Build(rule *model.ApprovalRule, manager *model.User, managerIsApprover bool) Plan {
	var b planBuilder

	if rule == nil {
		if managerIsApprover && manager != nil {
			b.addManager(manager, 0)
		}
		return b.plan(nil)
	}

	seq := 0
	if rule.RequireManagerFirst && manager != nil {
		b.addManager(manager, seq)
		seq++
	}

	policy := rule.Snapshot()
	policy.VotingStep = seq

	switch rule.Kind {
	case model.RuleKindSequential:
		ordered := make([]model.RuleApprover, len(rule.Approvers))
		copy(ordered, rule.Approvers)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })
		for _, a := range ordered {
			b.addRef(a, seq)
			seq++
		}
	case model.RuleKindPercentage:
		for _, a := range rule.Approvers {
			b.addRef(a, seq)
		}
	case model.RuleKindSpecificApprover:
		b.addSpecific(rule, seq)
	case model.RuleKindHybrid:
		for _, a := range rule.Approvers {
			b.addRef(a, seq)
		}
		b.addSpecific(rule, seq)
	}
	return b.plan(policy)
}

type planBuilder struct {
	entries []model.ApprovalEntry
}

func (b *planBuilder) addManager(manager *model.User, seq int) {
	b.addRef(model.RuleApprover{ApproverID: manager.ID, Role: model.RoleManager}, seq)
}

func (b *planBuilder) addRef(a model.RuleApprover, seq int) {
	b.entries = append(b.entries, model.ApprovalEntry{
		Position:   len(b.entries),
		ApproverID: a.ApproverID,
		Role:       a.Role,
		Sequence:   seq,
		Status:     model.EntryPending,
	})
}

func (b *planBuilder) addSpecific(rule *model.ApprovalRule, seq int) {
	if rule.SpecificApproverID == nil {
		return
	}
	b.addRef(model.RuleApprover{ApproverID: *rule.SpecificApproverID, Role: rule.SpecificApproverRole}, seq)
}

func (b *planBuilder) plan(policy *model.PolicySnapshot) Plan {
	p := Plan{Entries: b.entries, Policy: policy}
	if len(b.entries) > 0 {
		p.CurrentStep = b.entries[0].Sequence
	}
	return p
}
