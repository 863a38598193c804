package workflow

import (
	"encoding/json"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"time"

	"expenseflow/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentageScenario(t *testing.T) {
	a, b, c, d := member(model.RoleManager), member(model.RoleCFO), member(model.RoleCEO), member(model.RoleCTO)
	rule := newRule(model.RuleKindPercentage, a, b, c, d)
	rule.PercentageRequired = pct(60)
	rule.ExcludedRoles = []string{model.RoleManager}
	claim := submitted(rule, nil)

	out, err := Apply(claim, approve(b.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimPending, out.Status, "1 of 3 eligible")
	assert.False(t, out.Finalized())

	out, err = Apply(claim, approve(c.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimApproved, out.Status, "2 of 3 eligible is 66.7%")
	assert.True(t, out.Finalized())
	assert.Equal(t, model.EntryPending, claim.Entries[3].Status, "D never voted")
	assert.Equal(t, model.EntryPending, claim.Entries[0].Status, "A is excluded")
}

func TestSequentialScenario_OutOfTurn(t *testing.T) {
	mgr, admin := member(model.RoleManager), member(model.RoleAdmin)
	claim := submitted(newRule(model.RuleKindSequential, mgr, admin), nil)
	before := snapshot(t, claim)

	_, err := Apply(claim, approve(admin.ID), testNow)

	require.ErrorIs(t, err, ErrOutOfTurn)
	var oot *OutOfTurnError
	require.True(t, errors.As(err, &oot))
	assert.Equal(t, 0, oot.ActiveStep)
	assert.Equal(t, 1, oot.EntryStep)
	assert.Equal(t, before, snapshot(t, claim), "rejected decision leaves the claim untouched")
}

func TestSequential_AdvancesThroughSteps(t *testing.T) {
	a, b, c := member(model.RoleManager), member(model.RoleDirector), member(model.RoleCFO)
	claim := submitted(newRule(model.RuleKindSequential, a, b, c), nil)

	for i, u := range []model.User{a, b} {
		out, err := Apply(claim, approve(u.ID), testNow)
		require.NoError(t, err)
		assert.Equal(t, model.ClaimPending, out.Status)
		assert.Equal(t, i+1, claim.CurrentStep)
	}

	out, err := Apply(claim, approve(c.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimApproved, out.Status)
	assert.Equal(t, 2, claim.CurrentStep)
	require.NotNil(t, claim.FinalizedAt)
}

func TestVetoIsAbsolute(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	kinds := []model.RuleKind{model.RuleKindSequential, model.RuleKindPercentage, model.RuleKindSpecificApprover, model.RuleKindHybrid}
	statuses := []model.EntryStatus{model.EntryPending, model.EntryApproved, model.EntryRejected}

	for round := 0; round < 500; round++ {
		kind := kinds[rng.Intn(len(kinds))]
		l := ledgerOf(0, 0, 1, 1, 1)
		for i := range l {
			l[i].Status = statuses[rng.Intn(len(statuses))]
		}
		l[rng.Intn(len(l))].Status = model.EntryRejected
		specific := l[4].ApproverID
		policy := &model.PolicySnapshot{Kind: kind, PercentageRequired: 1, SpecificApproverID: &specific, VotingStep: 1}

		status, _ := Evaluate(policy, l, rng.Intn(2))
		assert.Equal(t, model.ClaimRejected, status, "kind %s ledger %+v", kind, l)

		status, _ = Evaluate(nil, l, 0)
		assert.Equal(t, model.ClaimRejected, status)
	}
}

func TestVetoIsAbsolute_AnyOrder(t *testing.T) {
	a, b, c := member(model.RoleCFO), member(model.RoleCEO), member(model.RoleCTO)
	voters := []model.User{a, b, c}

	for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}} {
		rule := newRule(model.RuleKindPercentage, a, b, c)
		rule.PercentageRequired = pct(100)
		claim := submitted(rule, nil)

		var last *Outcome
		var err error
		for n, i := range order {
			d := approve(voters[i].ID)
			if i == 1 {
				d = reject(voters[i].ID)
			}
			last, err = Apply(claim, d, testNow)
			if i == 1 {
				require.NoError(t, err)
				break
			}
			require.NoError(t, err, "decision %d", n)
		}
		assert.Equal(t, model.ClaimRejected, last.Status)
	}
}

func TestSpecificApproverRejectionVetoes(t *testing.T) {
	cfo := member(model.RoleCFO)
	claim := submitted(withSpecific(newRule(model.RuleKindSpecificApprover), cfo), nil)

	out, err := Apply(claim, reject(cfo.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimRejected, out.Status)
}

func TestSequentialMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	users := []model.User{member(model.RoleManager), member(model.RoleDirector), member(model.RoleCFO), member(model.RoleCEO)}

	for round := 0; round < 200; round++ {
		claim := submitted(newRule(model.RuleKindSequential, users...), nil)
		step := claim.CurrentStep
		for n := 0; n < 12 && !claim.Status.IsTerminal(); n++ {
			d := approve(users[rng.Intn(len(users))].ID)
			if rng.Intn(10) == 0 {
				d.Action = ActionReject
			}
			_, _ = Apply(claim, d, testNow)
			require.GreaterOrEqual(t, claim.CurrentStep, step)
			step = claim.CurrentStep
		}
	}
}

func TestPercentageBoundary(t *testing.T) {
	tests := []struct {
		name     string
		eligible int
		required int
		approved int
		want     model.ClaimStatus
	}{
		{"exactly 60 of 5", 5, 60, 3, model.ClaimApproved},
		{"one below 60 of 5", 5, 60, 2, model.ClaimPending},
		{"exactly 50 of 4", 4, 50, 2, model.ClaimApproved},
		{"one below 50 of 4", 4, 50, 1, model.ClaimPending},
		{"66.7 short of 67", 3, 67, 2, model.ClaimPending},
		{"66.7 meets 66", 3, 66, 2, model.ClaimApproved},
		{"unanimous", 3, 100, 3, model.ClaimApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var voters []model.User
			for i := 0; i < tt.eligible; i++ {
				voters = append(voters, member(model.RoleDirector))
			}
			rule := newRule(model.RuleKindPercentage, voters...)
			rule.PercentageRequired = pct(tt.required)
			claim := submitted(rule, nil)

			for i := 0; i < tt.approved; i++ {
				_, err := Apply(claim, approve(voters[i].ID), testNow)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, claim.Status)
		})
	}
}

func TestPercentage_AllExcludedStaysPending(t *testing.T) {
	a, b := member(model.RoleCFO), member(model.RoleCEO)
	rule := newRule(model.RuleKindPercentage, a, b)
	rule.PercentageRequired = pct(1)
	rule.ExcludedRoles = []string{model.RoleCFO, model.RoleCEO}
	claim := submitted(rule, nil)

	_, err := Apply(claim, approve(a.ID), testNow)
	require.NoError(t, err)
	_, err = Apply(claim, approve(b.ID), testNow)
	require.NoError(t, err)

	assert.Equal(t, model.ClaimPending, claim.Status)
}

func TestHybridShortCircuit(t *testing.T) {
	a, b, cfo := member(model.RoleDirector), member(model.RoleCTO), member(model.RoleCFO)
	rule := withSpecific(newRule(model.RuleKindHybrid, a, b), cfo)
	rule.PercentageRequired = pct(100)
	claim := submitted(rule, nil)

	out, err := Apply(claim, approve(cfo.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimApproved, out.Status)
	assert.Equal(t, model.EntryPending, claim.Entries[0].Status)
	assert.Equal(t, model.EntryPending, claim.Entries[1].Status)
}

func TestHybridPercentagePath(t *testing.T) {
	a, b, cfo := member(model.RoleDirector), member(model.RoleCTO), member(model.RoleCFO)
	rule := withSpecific(newRule(model.RuleKindHybrid, a, b), cfo)
	rule.PercentageRequired = pct(60)
	rule.ExcludedRoles = []string{model.RoleCFO}
	claim := submitted(rule, nil)

	out, err := Apply(claim, approve(a.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimPending, out.Status, "1 of 2 eligible")

	out, err = Apply(claim, approve(b.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimApproved, out.Status)
}

func TestManagerFirstGatesVotingGroup(t *testing.T) {
	mgr := member(model.RoleManager)
	a, b := member(model.RoleCFO), member(model.RoleCEO)
	rule := newRule(model.RuleKindPercentage, a, b)
	rule.PercentageRequired = pct(50)
	rule.RequireManagerFirst = true
	claim := submitted(rule, &mgr)

	_, err := Apply(claim, approve(a.ID), testNow)
	require.ErrorIs(t, err, ErrOutOfTurn)

	out, err := Apply(claim, approve(mgr.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimPending, out.Status)
	assert.Equal(t, 1, claim.CurrentStep)

	out, err = Apply(claim, approve(b.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimApproved, out.Status)
}

func TestNoRule_ManagerOnly(t *testing.T) {
	mgr := member(model.RoleManager)
	claim := submitted(nil, &mgr)
	assert.Equal(t, model.ClaimPending, claim.Status)
	assert.Nil(t, claim.AppliedRuleID)

	out, err := Apply(claim, approve(mgr.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimApproved, out.Status)
}

func TestEmptyLedgerIsApprovedOnSubmit(t *testing.T) {
	claim := submitted(nil, nil)

	assert.Empty(t, claim.Entries)
	assert.Equal(t, model.ClaimApproved, claim.Status)
	require.NotNil(t, claim.FinalizedAt)
}

func TestTerminalClaimIsFrozen(t *testing.T) {
	cfo, other := member(model.RoleCFO), member(model.RoleCEO)
	rule := withSpecific(newRule(model.RuleKindHybrid, other), cfo)
	rule.PercentageRequired = pct(100)
	claim := submitted(rule, nil)

	_, err := Apply(claim, approve(cfo.ID), testNow)
	require.NoError(t, err)
	finalizedAt := *claim.FinalizedAt
	before := snapshot(t, claim)

	for _, d := range []Decision{approve(other.ID), reject(other.ID), approve(cfo.ID), approve(uuid.New())} {
		_, err := Apply(claim, d, testNow.Add(time.Hour))
		assert.ErrorIs(t, err, ErrClaimAlreadyFinalized)
	}
	assert.Equal(t, before, snapshot(t, claim))
	assert.True(t, claim.FinalizedAt.Equal(finalizedAt))
}

func TestApply_Errors(t *testing.T) {
	a, b := member(model.RoleCFO), member(model.RoleCEO)
	rule := newRule(model.RuleKindPercentage, a, b)
	rule.PercentageRequired = pct(100)
	claim := submitted(rule, nil)

	_, err := Apply(claim, Decision{ApproverID: a.ID, Action: "maybe"}, testNow)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Apply(claim, approve(uuid.New()), testNow)
	assert.ErrorIs(t, err, ErrNotAnApprover)

	_, err = Apply(claim, approve(a.ID), testNow)
	require.NoError(t, err)
	_, err = Apply(claim, approve(a.ID), testNow)
	assert.ErrorIs(t, err, ErrNotAnApprover, "second vote by the same approver")
}

// versionedStore mimics the persistence boundary: loads hand out copies and saves
// are compare-and-swap on the claim version.
type versionedStore struct {
	mu    sync.Mutex
	claim *model.Claim
}

func (s *versionedStore) load() *model.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneClaim(s.claim)
}

func (s *versionedStore) save(c *model.Claim, expected int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claim.Version != expected {
		return ErrConcurrencyConflict
	}
	c.Version = expected + 1
	s.claim = cloneClaim(c)
	return nil
}

func cloneClaim(c *model.Claim) *model.Claim {
	cp := *c
	cp.Entries = slices.Clone(c.Entries)
	return &cp
}

func TestConcurrentVotesAreNotLost(t *testing.T) {
	a, b, c := member(model.RoleCFO), member(model.RoleCEO), member(model.RoleCTO)
	rule := newRule(model.RuleKindPercentage, a, b, c)
	rule.PercentageRequired = pct(60)
	store := &versionedStore{claim: submitted(rule, nil)}

	// both voters read the same stale state before either writes
	first, second := store.load(), store.load()
	_, err := Apply(first, approve(a.ID), testNow)
	require.NoError(t, err)
	_, err = Apply(second, approve(b.ID), testNow)
	require.NoError(t, err)

	require.NoError(t, store.save(first, first.Version))
	require.ErrorIs(t, store.save(second, second.Version), ErrConcurrencyConflict)

	// the loser retries the whole cycle on fresh state
	retry := store.load()
	out, err := Apply(retry, approve(b.ID), testNow)
	require.NoError(t, err)
	require.NoError(t, store.save(retry, retry.Version))

	assert.Equal(t, model.ClaimApproved, out.Status, "2 of 3 meets 60%")
	final := store.load()
	assert.Equal(t, model.EntryApproved, final.Entries[0].Status)
	assert.Equal(t, model.EntryApproved, final.Entries[1].Status)
}

func TestConcurrentVotesUnderRetry(t *testing.T) {
	var voters []model.User
	for i := 0; i < 8; i++ {
		voters = append(voters, member(model.RoleDirector))
	}
	rule := newRule(model.RuleKindPercentage, voters...)
	rule.PercentageRequired = pct(100)
	store := &versionedStore{claim: submitted(rule, nil)}

	var wg sync.WaitGroup
	for _, v := range voters {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			for {
				c := store.load()
				if _, err := Apply(c, approve(id), testNow); err != nil {
					t.Errorf("apply: %v", err)
					return
				}
				if err := store.save(c, c.Version); err == nil {
					return
				}
			}
		}(v.ID)
	}
	wg.Wait()

	final := store.load()
	assert.Equal(t, model.ClaimApproved, final.Status)
	for _, e := range final.Entries {
		assert.Equal(t, model.EntryApproved, e.Status)
	}
	assert.Equal(t, 1+len(voters), final.Version)
}

func snapshot(t *testing.T, c *model.Claim) string {
	t.Helper()
	b, err := json.Marshal(c)
	require.NoError(t, err)
	return string(b)
}

func TestManagerFirstGatesSpecificApprover(t *testing.T) {
	mgr, cfo := member(model.RoleManager), member(model.RoleCFO)
	rule := withSpecific(newRule(model.RuleKindSpecificApprover), cfo)
	rule.RequireManagerFirst = true
	claim := submitted(rule, &mgr)

	_, err := Apply(claim, approve(cfo.ID), testNow)
	require.ErrorIs(t, err, ErrOutOfTurn)
	assert.Equal(t, model.ClaimPending, claim.Status)

	_, err = Apply(claim, approve(mgr.ID), testNow)
	require.NoError(t, err)
	out, err := Apply(claim, approve(cfo.ID), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimApproved, out.Status)
}
