package workflow

import (
	"testing"
	"time"

	"expenseflow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(name string, lo int64, hi *int64) model.ApprovalRule {
	r := newRule(model.RuleKindSequential, member(model.RoleManager))
	r.Name = name
	r.MinAmount = decimal.NewFromInt(lo)
	if hi != nil {
		r.MaxAmount = decimal.NewNullDecimal(decimal.NewFromInt(*hi))
	}
	return *r
}

func upTo(v int64) *int64 { return &v }

func TestSelectRule_HighestMinWins(t *testing.T) {
	rules := []model.ApprovalRule{
		window("base", 0, nil),
		window("large", 1000, nil),
		window("medium", 500, upTo(5000)),
	}

	pick := func(amount int64) string {
		r := SelectRule(rules, testCompany, decimal.NewFromInt(amount), model.CategoryTravel)
		require.NotNil(t, r)
		return r.Name
	}

	assert.Equal(t, "base", pick(10))
	assert.Equal(t, "medium", pick(500), "min is inclusive")
	assert.Equal(t, "large", pick(1000))
	assert.Equal(t, "large", pick(9000))
}

func TestSelectRule_MaxIsInclusive(t *testing.T) {
	rules := []model.ApprovalRule{window("small", 0, upTo(100))}

	assert.NotNil(t, SelectRule(rules, testCompany, decimal.NewFromInt(100), model.CategoryFood))
	assert.Nil(t, SelectRule(rules, testCompany, decimal.RequireFromString("100.01"), model.CategoryFood))
}

func TestSelectRule_Filters(t *testing.T) {
	inactive := window("inactive", 0, nil)
	inactive.Active = false
	foreign := window("foreign", 0, nil)
	foreign.CompanyID = uuid.New()
	travelOnly := window("travel", 0, nil)
	travelOnly.Categories = []string{model.CategoryTravel}

	rules := []model.ApprovalRule{inactive, foreign, travelOnly}

	assert.Nil(t, SelectRule(rules, testCompany, decimal.NewFromInt(50), model.CategoryFood))
	r := SelectRule(rules, testCompany, decimal.NewFromInt(50), model.CategoryTravel)
	require.NotNil(t, r)
	assert.Equal(t, "travel", r.Name)
}

func TestSelectRule_TieBreak(t *testing.T) {
	older := window("older", 100, nil)
	older.CreatedAt = testNow.Add(-time.Hour)
	newer := window("newer", 100, nil)

	r := SelectRule([]model.ApprovalRule{newer, older}, testCompany, decimal.NewFromInt(200), model.CategoryOther)
	require.NotNil(t, r)
	assert.Equal(t, "older", r.Name)

	a := window("a", 100, nil)
	a.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := window("b", 100, nil)
	b.ID = uuid.MustParse("00000000-0000-0000-0000-000000000002")

	r = SelectRule([]model.ApprovalRule{b, a}, testCompany, decimal.NewFromInt(200), model.CategoryOther)
	require.NotNil(t, r)
	assert.Equal(t, "a", r.Name)
}

func TestSelectRule_NoMatch(t *testing.T) {
	assert.Nil(t, SelectRule(nil, testCompany, decimal.NewFromInt(1), model.CategoryOther))
}
