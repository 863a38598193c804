package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RuleKind is the closed set of approval policies.
type RuleKind string

const (
	RuleKindSequential       RuleKind = "SEQUENTIAL"
	RuleKindPercentage       RuleKind = "PERCENTAGE"
	RuleKindSpecificApprover RuleKind = "SPECIFIC_APPROVER"
	RuleKindHybrid           RuleKind = "HYBRID"
)

// ApprovalRule selects who must approve a claim and how their votes are combined.
// Claims copy the parts they need into a PolicySnapshot, so edits only affect future claims.
type ApprovalRule struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Kind        RuleKind       `gorm:"type:varchar(30);not null" json:"kind"`
	Approvers   []RuleApprover `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"approvers"`

	PercentageRequired *int     `json:"percentage_required"`                              // 1-100, PERCENTAGE and HYBRID
	ExcludedRoles      []string `gorm:"serializer:json;type:text" json:"excluded_roles"` // recorded but never counted

	SpecificApproverID   *uuid.UUID `gorm:"type:uuid" json:"specific_approver_id"` // SPECIFIC_APPROVER and HYBRID
	SpecificApproverRole string     `gorm:"type:varchar(50)" json:"specific_approver_role"`

	RequireManagerFirst bool `gorm:"not null" json:"require_manager_first"`

	// Inclusive amount window in the company's base currency; MaxAmount invalid = unbounded
	MinAmount  decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"min_amount"`
	MaxAmount  decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"max_amount"`
	Categories []string            `gorm:"serializer:json;type:text" json:"categories"` // empty = all categories

	Active    bool           `gorm:"not null;index" json:"active"`
	Version   int            `gorm:"not null" json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// RuleApprover is one candidate approver of a rule, ordered by Sequence.
type RuleApprover struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RuleID     uuid.UUID `gorm:"type:uuid;not null;index" json:"rule_id"`
	ApproverID uuid.UUID `gorm:"type:uuid;not null" json:"approver_id"`
	Approver   *User     `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Sequence   int       `gorm:"not null" json:"sequence"`
	Role       string    `gorm:"type:varchar(50)" json:"role"`
}

func (r *ApprovalRule) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

func (a *RuleApprover) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// PolicySnapshot is the copy of a rule's evaluation policy frozen into a claim at build time.
type PolicySnapshot struct {
	RuleID             uuid.UUID  `json:"rule_id"`
	RuleVersion        int        `json:"rule_version"`
	Kind               RuleKind   `json:"kind"`
	PercentageRequired int        `json:"percentage_required"`
	ExcludedRoles      []string   `json:"excluded_roles"`
	SpecificApproverID *uuid.UUID `json:"specific_approver_id"`
	VotingStep         int        `json:"voting_step"` // sequence of the rule's own entries, after any manager-first prefix
}

// Snapshot freezes the evaluation policy of the rule.
func (r *ApprovalRule) Snapshot() *PolicySnapshot {
	p := &PolicySnapshot{
		RuleID:             r.ID,
		RuleVersion:        r.Version,
		Kind:               r.Kind,
		ExcludedRoles:      append([]string(nil), r.ExcludedRoles...),
	}
	if r.SpecificApproverID != nil {
		id := *r.SpecificApproverID
		p.SpecificApproverID = &id
	}
	if r.PercentageRequired != nil {
		p.PercentageRequired = *r.PercentageRequired
	}
	return p
}

// IsExcluded reports whether votes from role are left out of the percentage count.
func (p *PolicySnapshot) IsExcluded(role string) bool {
	for _, r := range p.ExcludedRoles {
		if r == role {
			return true
		}
	}
	return false
}
