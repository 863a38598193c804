package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ClaimStatus is the claim-level approval state.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "PENDING"
	ClaimApproved ClaimStatus = "APPROVED"
	ClaimRejected ClaimStatus = "REJECTED"
)

// IsTerminal reports whether no further decisions are accepted.
func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimApproved || s == ClaimRejected
}

// EntryStatus is the state of a single approver's slot.
type EntryStatus string

const (
	EntryPending  EntryStatus = "PENDING"
	EntryApproved EntryStatus = "APPROVED"
	EntryRejected EntryStatus = "REJECTED"
)

// Expense categories
const (
	CategoryTravel        = "Travel"
	CategoryFood          = "Food"
	CategoryOffice        = "Office Supplies"
	CategoryEquipment     = "Equipment"
	CategoryUtilities     = "Utilities"
	CategoryMarketing     = "Marketing"
	CategoryTraining      = "Training"
	CategoryEntertainment = "Entertainment"
	CategoryOther         = "Other"
)

// Claim is an expense submitted for reimbursement. It exclusively owns its approval entries.
type Claim struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID  uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	EmployeeID uuid.UUID `gorm:"type:uuid;not null;index" json:"employee_id"`
	Employee   *User     `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`

	Title        string    `gorm:"type:varchar(255);not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	Category     string    `gorm:"type:varchar(50);not null;index" json:"category"`
	MerchantName string    `gorm:"type:varchar(255)" json:"merchant_name"`
	ExpenseDate  time.Time `json:"expense_date"`

	// Currency & Exchange Rate
	Currency       string          `gorm:"type:varchar(10);not null" json:"currency"`
	OriginalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"original_amount"`
	ExchangeRate   decimal.Decimal `gorm:"type:decimal(18,6);not null" json:"exchange_rate"`
	BaseCurrency   string          `gorm:"type:varchar(10);not null" json:"base_currency"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"` // = original_amount * exchange_rate

	Status        ClaimStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	CurrentStep   int             `gorm:"not null" json:"current_step"`
	AppliedRuleID *uuid.UUID      `gorm:"type:uuid;index" json:"applied_rule_id"`
	Policy        *PolicySnapshot `gorm:"serializer:json;type:text" json:"policy"`
	Entries       []ApprovalEntry `gorm:"foreignKey:ClaimID;constraint:OnDelete:CASCADE" json:"entries"`

	Version     int        `gorm:"not null" json:"version"` // optimistic lock counter
	SubmittedAt time.Time  `json:"submitted_at"`
	FinalizedAt *time.Time `json:"finalized_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ApprovalEntry is one approver's slot in a claim's ledger. Entries sharing a Sequence are peers.
// Only Status, Comment and DecidedAt change after creation.
type ApprovalEntry struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	ClaimID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"claim_id"`
	Position   int         `gorm:"not null" json:"position"` // creation order
	ApproverID uuid.UUID   `gorm:"type:uuid;not null;index" json:"approver_id"`
	Approver   *User       `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Role       string      `gorm:"type:varchar(50)" json:"role"`
	Sequence   int         `gorm:"not null" json:"sequence"`
	Status     EntryStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Comment    string      `gorm:"type:text" json:"comment"`
	DecidedAt  *time.Time  `json:"decided_at"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (c *Claim) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

func (e *ApprovalEntry) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
