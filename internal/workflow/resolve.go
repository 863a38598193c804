package workflow

import (
	"bytes"
	"slices"

	"expenseflow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Matches reports whether rule governs a claim of amount (base currency) in category.
// The amount window is inclusive at both ends; an unset max is unbounded.
func Matches(rule *model.ApprovalRule, companyID uuid.UUID, amount decimal.Decimal, category string) bool {
	if !rule.Active || rule.CompanyID != companyID {
		return false
	}
	if len(rule.Categories) > 0 && !slices.Contains(rule.Categories, category) {
		return false
	}
	if amount.LessThan(rule.MinAmount) {
		return false
	}
	if rule.MaxAmount.Valid && amount.GreaterThan(rule.MaxAmount.Decimal) {
		return false
	}
	return true
}

// SelectRule picks the rule governing a claim from candidates. Among matching rules the
// highest min wins; ties go to the earliest created rule, then the lowest ID.
// A nil result means no rule applies and the manager-only policy is used.
func SelectRule(candidates []model.ApprovalRule, companyID uuid.UUID, amount decimal.Decimal, category string) *model.ApprovalRule {
	var best *model.ApprovalRule
	for i := range candidates {
		r := &candidates[i]
		if !Matches(r, companyID, amount, category) {
			continue
		}
		if best == nil || moreSpecific(r, best) {
			best = r
		}
	}
	return best
}

func moreSpecific(a, b *model.ApprovalRule) bool {
	if c := a.MinAmount.Cmp(b.MinAmount); c != 0 {
		return c > 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
