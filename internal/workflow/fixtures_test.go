package workflow

import (
	"time"

	"expenseflow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	testCompany = uuid.MustParse("00000000-0000-0000-0000-00000000c001")
	testNow     = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
)

func member(role string) model.User {
	return model.User{ID: uuid.New(), CompanyID: testCompany, Name: role, Role: role}
}

func pct(p int) *int { return &p }

func newRule(kind model.RuleKind, approvers ...model.User) *model.ApprovalRule {
	r := &model.ApprovalRule{
		ID:        uuid.New(),
		CompanyID: testCompany,
		Name:      string(kind) + " rule",
		Kind:      kind,
		MinAmount: decimal.Zero,
		Active:    true,
		Version:   1,
		CreatedAt: testNow,
	}
	for i, a := range approvers {
		r.Approvers = append(r.Approvers, model.RuleApprover{ApproverID: a.ID, Sequence: i, Role: a.Role})
	}
	return r
}

func withSpecific(r *model.ApprovalRule, u model.User) *model.ApprovalRule {
	id := u.ID
	r.SpecificApproverID = &id
	r.SpecificApproverRole = u.Role
	return r
}

// submitted builds and opens a claim under rule.
func submitted(rule *model.ApprovalRule, manager *model.User) *model.Claim {
	c := &model.Claim{ID: uuid.New(), CompanyID: testCompany, Status: model.ClaimPending, Version: 1}
	Open(c, Build(rule, manager, true), testNow)
	return c
}

func approve(id uuid.UUID) Decision {
	return Decision{ApproverID: id, Action: ActionApprove}
}

func reject(id uuid.UUID) Decision {
	return Decision{ApproverID: id, Action: ActionReject, Comment: "not reimbursable"}
}
