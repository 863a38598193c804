package repository

import (
	"context"

	"expenseflow/internal/model"
	"expenseflow/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RuleRepository interface {
	Create(ctx context.Context, rule *model.ApprovalRule) error
	Update(ctx context.Context, rule *model.ApprovalRule) error
	Delete(ctx context.Context, companyID, id uuid.UUID) error
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.ApprovalRule, error)
	List(ctx context.Context, companyID uuid.UUID, activeOnly bool, page, limit int) ([]model.ApprovalRule, int64, error)
	ListActive(ctx context.Context, companyID uuid.UUID) ([]model.ApprovalRule, error)
}

type ruleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func orderedApprovers(db *gorm.DB) *gorm.DB {
	return db.Order("sequence ASC")
}

func (r *ruleRepository) Create(ctx context.Context, rule *model.ApprovalRule) error {
	return GetDB(ctx, r.db).Create(rule).Error
}

// Update saves the rule and replaces its approver list.
func (r *ruleRepository) Update(ctx context.Context, rule *model.ApprovalRule) error {
	db := GetDB(ctx, r.db)
	if err := db.Omit("Approvers").Save(rule).Error; err != nil {
		return err
	}
	if err := db.Where("rule_id = ?", rule.ID).Delete(&model.RuleApprover{}).Error; err != nil {
		return err
	}
	if len(rule.Approvers) == 0 {
		return nil
	}
	for i := range rule.Approvers {
		rule.Approvers[i].ID = uuid.Nil
		rule.Approvers[i].RuleID = rule.ID
	}
	return db.Create(&rule.Approvers).Error
}

func (r *ruleRepository) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("id = ? AND company_id = ?", id, companyID).Delete(&model.ApprovalRule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ruleRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.ApprovalRule, error) {
	var rule model.ApprovalRule
	if err := GetDB(ctx, r.db).
		Preload("Approvers", orderedApprovers).
		Preload("Approvers.Approver").
		First(&rule, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) List(ctx context.Context, companyID uuid.UUID, activeOnly bool, page, limit int) ([]model.ApprovalRule, int64, error) {
	var rules []model.ApprovalRule
	var total int64

	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("company_id = ?", companyID)
		if activeOnly {
			db = db.Where("active = ?", true)
		}
		return db
	}

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.ApprovalRule{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Scopes(scope, pagination.New(page, limit).Scope).
		Preload("Approvers", orderedApprovers).
		Order("min_amount desc, created_at asc").
		Find(&rules).Error; err != nil {
		return nil, 0, err
	}

	return rules, total, nil
}

// ListActive loads every active rule of a company; matching by amount and category happens in Go.
func (r *ruleRepository) ListActive(ctx context.Context, companyID uuid.UUID) ([]model.ApprovalRule, error) {
	var rules []model.ApprovalRule
	if err := GetDB(ctx, r.db).
		Preload("Approvers", orderedApprovers).
		Where("company_id = ? AND active = ?", companyID, true).
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}
