package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role names known to the org directory
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
	RoleCEO      = "ceo"
	RoleCFO      = "cfo"
	RoleCTO      = "cto"
	RoleDirector = "director"
)

// User is an org directory member. Accounts and credentials live in the identity
// provider; this table only carries what approval routing needs.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Role      string         `gorm:"type:varchar(50);not null;index" json:"role"`
	ManagerID *uuid.UUID     `gorm:"type:uuid;index" json:"manager_id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
