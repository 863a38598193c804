package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company is the organization that owns users, approval rules and claims.
type Company struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Country      string    `gorm:"type:varchar(100)" json:"country"`
	BaseCurrency string    `gorm:"type:varchar(10);not null" json:"base_currency"` // claims are evaluated in this currency

	// IsManagerApprover routes claims with no matching rule to the claimant's manager.
	IsManagerApprover bool      `gorm:"not null" json:"is_manager_approver"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
