package workflow

import (
	"slices"

	"expenseflow/internal/model"
)

var approverRoles = []string{
	model.RoleManager,
	model.RoleAdmin,
	model.RoleCEO,
	model.RoleCFO,
	model.RoleCTO,
	model.RoleDirector,
}

// Roles whose votes may be left out of a percentage count.
var excludableRoles = []string{
	model.RoleCEO,
	model.RoleCFO,
	model.RoleCTO,
	model.RoleDirector,
	model.RoleManager,
}

// CanApprove reports whether holders of role may be named as approvers in a rule.
func CanApprove(role string) bool {
	return slices.Contains(approverRoles, role)
}

// ApproverRoles lists the approval-eligible roles.
func ApproverRoles() []string {
	return slices.Clone(approverRoles)
}

func isExcludable(role string) bool {
	return slices.Contains(excludableRoles, role)
}
