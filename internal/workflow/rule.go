package workflow

import (
	"fmt"
	"slices"
	"strings"

	"expenseflow/internal/model"

	"github.com/google/uuid"
)

var categories = []string{
	model.CategoryTravel,
	model.CategoryFood,
	model.CategoryOffice,
	model.CategoryEquipment,
	model.CategoryUtilities,
	model.CategoryMarketing,
	model.CategoryTraining,
	model.CategoryEntertainment,
	model.CategoryOther,
}

// IsCategory reports whether c is a known expense category.
func IsCategory(c string) bool {
	return slices.Contains(categories, c)
}

// ValidateRule checks that rule carries every field its kind requires and that all
// referenced approvers are members of eligible, the company's approval-eligible directory.
func ValidateRule(rule *model.ApprovalRule, eligible []model.User) error {
	if strings.TrimSpace(rule.Name) == "" {
		return invalid("name", "is required")
	}

	members := make(map[uuid.UUID]model.User, len(eligible))
	for _, u := range eligible {
		if u.CompanyID == rule.CompanyID && CanApprove(u.Role) {
			members[u.ID] = u
		}
	}

	needsApprovers, needsPercentage, needsSpecific := false, false, false
	switch rule.Kind {
	case model.RuleKindSequential:
		needsApprovers = true
	case model.RuleKindPercentage:
		needsApprovers, needsPercentage = true, true
	case model.RuleKindSpecificApprover:
		needsSpecific = true
	case model.RuleKindHybrid:
		needsApprovers, needsPercentage, needsSpecific = true, true, true
	default:
		return invalid("kind", "unknown rule kind %q", rule.Kind)
	}

	if needsApprovers && len(rule.Approvers) == 0 {
		return invalid("approvers", "at least one approver is required for %s rules", rule.Kind)
	}
	seen := make(map[uuid.UUID]bool, len(rule.Approvers))
	for i, a := range rule.Approvers {
		field := fmt.Sprintf("approvers[%d]", i)
		u, ok := members[a.ApproverID]
		if !ok {
			return invalid(field, "user %s is not an eligible approver in this company", a.ApproverID)
		}
		// Percentage exclusions read this label.
		if a.Role != u.Role {
			return invalid(field+".role", "must match the directory role %q", u.Role)
		}
		if seen[a.ApproverID] {
			return invalid(field, "user %s is listed more than once", a.ApproverID)
		}
		seen[a.ApproverID] = true
		if a.Sequence < 0 {
			return invalid(field+".sequence", "must not be negative")
		}
	}

	if needsPercentage {
		if rule.PercentageRequired == nil {
			return invalid("percentage_required", "is required for %s rules", rule.Kind)
		}
	}
	if p := rule.PercentageRequired; p != nil && (*p < 1 || *p > 100) {
		return invalid("percentage_required", "must be between 1 and 100")
	}
	for _, role := range rule.ExcludedRoles {
		if !isExcludable(role) {
			return invalid("excluded_roles", "role %q cannot be excluded", role)
		}
	}

	if needsSpecific {
		if rule.SpecificApproverID == nil {
			return invalid("specific_approver_id", "is required for %s rules", rule.Kind)
		}
		u, ok := members[*rule.SpecificApproverID]
		if !ok {
			return invalid("specific_approver_id", "user %s is not an eligible approver in this company", *rule.SpecificApproverID)
		}
		if rule.SpecificApproverRole != u.Role {
			return invalid("specific_approver_role", "must match the directory role %q", u.Role)
		}
		// Two pending entries for one person in the same group would be ambiguous.
		if seen[*rule.SpecificApproverID] {
			return invalid("specific_approver_id", "must not also be listed in approvers")
		}
	}

	if rule.MinAmount.IsNegative() {
		return invalid("min_amount", "must not be negative")
	}
	if rule.MaxAmount.Valid && rule.MaxAmount.Decimal.LessThan(rule.MinAmount) {
		return invalid("max_amount", "must not be less than min_amount")
	}
	for _, c := range rule.Categories {
		if !IsCategory(c) {
			return invalid("categories", "unknown category %q", c)
		}
	}
	return nil
}

// FillRoles stamps each approver reference with the role the directory holds for it.
// Unknown users keep an empty label and are rejected by ValidateRule.
func FillRoles(rule *model.ApprovalRule, eligible []model.User) {
	roles := make(map[uuid.UUID]string, len(eligible))
	for _, u := range eligible {
		roles[u.ID] = u.Role
	}
	for i := range rule.Approvers {
		rule.Approvers[i].Role = roles[rule.Approvers[i].ApproverID]
	}
	rule.SpecificApproverRole = ""
	if rule.SpecificApproverID != nil {
		rule.SpecificApproverRole = roles[*rule.SpecificApproverID]
	}
}
