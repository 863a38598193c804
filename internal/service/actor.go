package service

import (
	"expenseflow/internal/model"

	"github.com/google/uuid"
)

// Actor is the authenticated caller on whose behalf a service call runs.
type Actor struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
}

// IsEmployee reports whether the caller only sees their own claims.
func (a Actor) IsEmployee() bool {
	return a.Role == model.RoleEmployee
}
