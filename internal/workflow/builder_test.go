package workflow

import (
	"testing"

	"expenseflow/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shape struct {
	approver uuid.UUID
	seq      int
}

func shapes(entries []model.ApprovalEntry) []shape {
	out := make([]shape, len(entries))
	for i, e := range entries {
		out[i] = shape{e.ApproverID, e.Sequence}
	}
	return out
}

func TestBuild_NoRule(t *testing.T) {
	mgr := member(model.RoleManager)

	plan := Build(nil, &mgr, true)
	require.Len(t, plan.Entries, 1)
	assert.Equal(t, mgr.ID, plan.Entries[0].ApproverID)
	assert.Equal(t, 0, plan.Entries[0].Sequence)
	assert.Equal(t, model.RoleManager, plan.Entries[0].Role)
	assert.Nil(t, plan.Policy)

	assert.Empty(t, Build(nil, &mgr, false).Entries, "manager approval disabled")
	assert.Empty(t, Build(nil, nil, true).Entries, "no manager")
}

func TestBuild_Sequential(t *testing.T) {
	a, b, c := member(model.RoleManager), member(model.RoleCFO), member(model.RoleCEO)
	rule := newRule(model.RuleKindSequential, a, b, c)
	// authored out of order
	rule.Approvers[0].Sequence, rule.Approvers[1].Sequence, rule.Approvers[2].Sequence = 5, 1, 3

	plan := Build(rule, nil, true)
	assert.Equal(t, []shape{{b.ID, 0}, {c.ID, 1}, {a.ID, 2}}, shapes(plan.Entries))
	assert.Equal(t, 0, plan.CurrentStep)
	require.NotNil(t, plan.Policy)
	assert.Equal(t, rule.ID, plan.Policy.RuleID)
}

func TestBuild_ManagerFirst(t *testing.T) {
	boss := member(model.RoleDirector)
	a, b := member(model.RoleCFO), member(model.RoleCEO)
	rule := newRule(model.RuleKindSequential, a, b)
	rule.RequireManagerFirst = true

	plan := Build(rule, &boss, true)
	assert.Equal(t, []shape{{boss.ID, 0}, {a.ID, 1}, {b.ID, 2}}, shapes(plan.Entries))
	assert.Equal(t, model.RoleManager, plan.Entries[0].Role)
	assert.Equal(t, 0, plan.CurrentStep)
	assert.Equal(t, 1, plan.Policy.VotingStep)

	// no manager on file: the prefix is skipped
	plan = Build(rule, nil, true)
	assert.Equal(t, []shape{{a.ID, 0}, {b.ID, 1}}, shapes(plan.Entries))
	assert.Equal(t, 0, plan.Policy.VotingStep)
}

func TestBuild_Percentage(t *testing.T) {
	a, b, c := member(model.RoleManager), member(model.RoleCFO), member(model.RoleCEO)
	rule := newRule(model.RuleKindPercentage, a, b, c)
	rule.PercentageRequired = pct(60)
	rule.ExcludedRoles = []string{model.RoleManager}

	plan := Build(rule, nil, true)
	assert.Equal(t, []shape{{a.ID, 0}, {b.ID, 0}, {c.ID, 0}}, shapes(plan.Entries))
	assert.Equal(t, 60, plan.Policy.PercentageRequired)
	assert.Equal(t, []string{model.RoleManager}, plan.Policy.ExcludedRoles)
}

func TestBuild_Specific(t *testing.T) {
	cfo := member(model.RoleCFO)
	rule := withSpecific(newRule(model.RuleKindSpecificApprover), cfo)

	plan := Build(rule, nil, true)
	assert.Equal(t, []shape{{cfo.ID, 0}}, shapes(plan.Entries))
	assert.Equal(t, model.RoleCFO, plan.Entries[0].Role)
}

func TestBuild_Hybrid(t *testing.T) {
	mgr := member(model.RoleManager)
	a, b, cfo := member(model.RoleDirector), member(model.RoleCTO), member(model.RoleCFO)
	rule := withSpecific(newRule(model.RuleKindHybrid, a, b), cfo)
	rule.PercentageRequired = pct(100)
	rule.RequireManagerFirst = true

	plan := Build(rule, &mgr, true)
	assert.Equal(t, []shape{{mgr.ID, 0}, {a.ID, 1}, {b.ID, 1}, {cfo.ID, 1}}, shapes(plan.Entries))
	for i, e := range plan.Entries {
		assert.Equal(t, i, e.Position)
		assert.Equal(t, model.EntryPending, e.Status)
	}
}

func TestBuild_SnapshotIsDetached(t *testing.T) {
	a, b, c := member(model.RoleCFO), member(model.RoleCEO), member(model.RoleDirector)
	rule := withSpecific(newRule(model.RuleKindHybrid, a, b), c)
	rule.PercentageRequired = pct(50)
	rule.ExcludedRoles = []string{model.RoleCEO}

	plan := Build(rule, nil, true)
	rule.ExcludedRoles[0] = model.RoleCFO
	*rule.PercentageRequired = 100
	*rule.SpecificApproverID = a.ID

	assert.Equal(t, []string{model.RoleCEO}, plan.Policy.ExcludedRoles)
	assert.Equal(t, 50, plan.Policy.PercentageRequired)
	require.NotNil(t, plan.Policy.SpecificApproverID)
	assert.Equal(t, c.ID, *plan.Policy.SpecificApproverID)
}
