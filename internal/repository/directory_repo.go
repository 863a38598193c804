package repository

import (
	"context"
	"errors"

	"expenseflow/internal/model"
	"expenseflow/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DirectoryRepository is the org directory: companies, users and reporting lines.
type DirectoryRepository interface {
	FindCompany(ctx context.Context, id uuid.UUID) (*model.Company, error)
	FindUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	// FindManager returns the user's direct manager, or nil when none is on file.
	FindManager(ctx context.Context, userID uuid.UUID) (*model.User, error)
	ListByRoles(ctx context.Context, companyID uuid.UUID, roles []string) ([]model.User, error)
	UpsertCompany(ctx context.Context, company *model.Company) error
	UpsertUser(ctx context.Context, user *model.User) error
}

type directoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) DirectoryRepository {
	return &directoryRepository{db: db}
}

func (r *directoryRepository) FindCompany(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	var company model.Company
	if err := GetDB(ctx, r.db).First(&company, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *directoryRepository) FindUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *directoryRepository) FindManager(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := r.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ManagerID == nil {
		return nil, nil
	}
	var manager model.User
	err = GetDB(ctx, r.db).
		Where("id = ? AND company_id = ? AND role IN ?", *user.ManagerID, user.CompanyID, workflow.ApproverRoles()).
		First(&manager).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// removed, moved to another company or no longer allowed to approve
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &manager, nil
}

func (r *directoryRepository) ListByRoles(ctx context.Context, companyID uuid.UUID, roles []string) ([]model.User, error) {
	var users []model.User
	if err := GetDB(ctx, r.db).
		Where("company_id = ? AND role IN ?", companyID, roles).
		Order("name asc").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *directoryRepository) UpsertCompany(ctx context.Context, company *model.Company) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{UpdateAll: true}).Create(company).Error
}

func (r *directoryRepository) UpsertUser(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{UpdateAll: true}).Create(user).Error
}
