package repository

import (
	"context"
	"fmt"
	"time"

	"expenseflow/internal/model"
	"expenseflow/internal/workflow"
	"expenseflow/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimFilter narrows claim listings; zero values match everything.
type ClaimFilter struct {
	CompanyID  uuid.UUID
	EmployeeID *uuid.UUID
	Status     string
	Category   string
}

type ClaimRepository interface {
	Create(ctx context.Context, claim *model.Claim) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Claim, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Claim, error)
	SaveDecision(ctx context.Context, claim *model.Claim, entry *model.ApprovalEntry) error
	List(ctx context.Context, filter ClaimFilter, page, limit int) ([]model.Claim, int64, error)
	ListPendingForApprover(ctx context.Context, companyID, approverID uuid.UUID, page, limit int) ([]model.Claim, int64, error)
}

type claimRepository struct {
	db *gorm.DB
}

func NewClaimRepository(db *gorm.DB) ClaimRepository {
	return &claimRepository{db: db}
}

func orderedEntries(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// Create inserts the claim together with its ledger.
func (r *claimRepository) Create(ctx context.Context, claim *model.Claim) error {
	return GetDB(ctx, r.db).Create(claim).Error
}

func (r *claimRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	var claim model.Claim
	if err := GetDB(ctx, r.db).
		Preload("Employee").
		Preload("Entries", orderedEntries).
		Preload("Entries.Approver").
		First(&claim, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &claim, nil
}

// FindForUpdate loads the claim and its ledger with the claim row locked until the
// surrounding transaction ends. It must be called inside RunInTx.
func (r *claimRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	if !InTx(ctx) {
		return nil, fmt.Errorf("claim %s: row lock requested outside a transaction", id)
	}
	var claim model.Claim
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&claim, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := GetDB(ctx, r.db).
		Scopes(orderedEntries).
		Where("claim_id = ?", id).
		Find(&claim.Entries).Error; err != nil {
		return nil, err
	}
	return &claim, nil
}

// SaveDecision persists one decided entry and the re-evaluated claim header. The write
// is a compare-and-swap on claim.Version; losing the race yields ErrConcurrencyConflict.
// On success claim.Version holds the new version.
func (r *claimRepository) SaveDecision(ctx context.Context, claim *model.Claim, entry *model.ApprovalEntry) error {
	db := GetDB(ctx, r.db)
	now := time.Now()

	res := db.Model(&model.Claim{}).
		Where("id = ? AND version = ?", claim.ID, claim.Version).
		Updates(map[string]any{
			"status":       claim.Status,
			"current_step": claim.CurrentStep,
			"finalized_at": claim.FinalizedAt,
			"version":      claim.Version + 1,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return workflow.ErrConcurrencyConflict
	}

	res = db.Model(&model.ApprovalEntry{}).
		Where("id = ? AND claim_id = ? AND status = ?", entry.ID, claim.ID, model.EntryPending).
		Updates(map[string]any{
			"status":     entry.Status,
			"comment":    entry.Comment,
			"decided_at": entry.DecidedAt,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return workflow.ErrConcurrencyConflict
	}

	claim.Version++
	claim.UpdatedAt = now
	return nil
}

func (r *claimRepository) List(ctx context.Context, filter ClaimFilter, page, limit int) ([]model.Claim, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("company_id = ?", filter.CompanyID)
		if filter.EmployeeID != nil {
			db = db.Where("employee_id = ?", *filter.EmployeeID)
		}
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.Category != "" {
			db = db.Where("category = ?", filter.Category)
		}
		return db
	}
	return r.page(ctx, scope, page, limit)
}

// ListPendingForApprover lists pending claims where approverID holds a pending entry in
// the active step.
func (r *claimRepository) ListPendingForApprover(ctx context.Context, companyID, approverID uuid.UUID, page, limit int) ([]model.Claim, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("company_id = ? AND status = ?", companyID, model.ClaimPending).
			Where(`EXISTS (SELECT 1 FROM approval_entries e
				WHERE e.claim_id = claims.id AND e.approver_id = ? AND e.status = ? AND e.sequence = claims.current_step)`,
				approverID, model.EntryPending)
	}
	return r.page(ctx, scope, page, limit)
}

func (r *claimRepository) page(ctx context.Context, scope func(*gorm.DB) *gorm.DB, page, limit int) ([]model.Claim, int64, error) {
	var claims []model.Claim
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Claim{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Model(&model.Claim{}).Scopes(scope, pagination.New(page, limit).Scope).
		Preload("Employee").
		Preload("Entries", orderedEntries).
		Order("submitted_at desc").
		Find(&claims).Error; err != nil {
		return nil, 0, err
	}

	return claims, total, nil
}
