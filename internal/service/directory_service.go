package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"expenseflow/internal/model"
	"expenseflow/internal/repository"
	"expenseflow/internal/workflow"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ApproverResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SeedFile is the org directory snapshot loaded by the seed command.
type SeedFile struct {
	Companies []SeedCompany `json:"companies"`
}

type SeedCompany struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Country           string     `json:"country"`
	BaseCurrency      string     `json:"base_currency"`
	IsManagerApprover *bool      `json:"is_manager_approver"` // default true
	Users             []SeedUser `json:"users"`
}

type SeedUser struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	ManagerID *uuid.UUID `json:"manager_id"`
}

type DirectoryService interface {
	ListEligibleApprovers(ctx context.Context, actor Actor) ([]ApproverResponse, error)
	Seed(ctx context.Context, file SeedFile) error
}

type directoryService struct {
	repo repository.DirectoryRepository
	tx   repository.TransactionManager
	log  logrus.FieldLogger
}

func NewDirectoryService(repo repository.DirectoryRepository, tx repository.TransactionManager, log logrus.FieldLogger) DirectoryService {
	return &directoryService{repo: repo, tx: tx, log: log}
}

func (s *directoryService) ListEligibleApprovers(ctx context.Context, actor Actor) ([]ApproverResponse, error) {
	users, err := s.repo.ListByRoles(ctx, actor.CompanyID, workflow.ApproverRoles())
	if err != nil {
		return nil, fmt.Errorf("failed to list approvers: %w", err)
	}
	res := make([]ApproverResponse, 0, len(users))
	for _, u := range users {
		res = append(res, ApproverResponse{ID: u.ID.String(), Name: u.Name, Email: u.Email, Role: u.Role})
	}
	return res, nil
}

// Seed upserts every company and user in file in one transaction.
func (s *directoryService) Seed(ctx context.Context, file SeedFile) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, sc := range file.Companies {
			if sc.ID == uuid.Nil || strings.TrimSpace(sc.Name) == "" {
				return invalidInput("every company needs an id and a name")
			}
			company := model.Company{
				ID:                sc.ID,
				Name:              sc.Name,
				Country:           sc.Country,
				BaseCurrency:      strings.ToUpper(sc.BaseCurrency),
				IsManagerApprover: sc.IsManagerApprover == nil || *sc.IsManagerApprover,
			}
			if company.BaseCurrency == "" {
				company.BaseCurrency = "USD"
			}
			if err := s.repo.UpsertCompany(txCtx, &company); err != nil {
				return fmt.Errorf("failed to upsert company %s: %w", sc.ID, err)
			}

			for _, su := range sc.Users {
				if su.ID == uuid.Nil || su.Email == "" || su.Role == "" {
					return invalidInput("user %q in company %s needs an id, email and role", su.Name, sc.ID)
				}
				user := model.User{
					ID:        su.ID,
					CompanyID: sc.ID,
					Name:      su.Name,
					Email:     strings.ToLower(su.Email),
					Role:      su.Role,
					ManagerID: su.ManagerID,
				}
				if err := s.repo.UpsertUser(txCtx, &user); err != nil {
					return fmt.Errorf("failed to upsert user %s: %w", su.ID, err)
				}
			}
			// Managers may appear later in the file, so references are checked once all users exist.
			for _, su := range sc.Users {
				if su.ManagerID == nil {
					continue
				}
				if err := s.checkManager(txCtx, sc.ID, su); err != nil {
					return err
				}
			}
			s.log.WithFields(logrus.Fields{"company_id": sc.ID, "users": len(sc.Users)}).Info("seeded company directory")
		}
		return nil
	})
}

func (s *directoryService) checkManager(ctx context.Context, companyID uuid.UUID, su SeedUser) error {
	if *su.ManagerID == su.ID {
		return invalidInput("user %s cannot be their own manager", su.ID)
	}
	manager, err := s.repo.FindUser(ctx, *su.ManagerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invalidInput("manager %s of user %s does not exist", *su.ManagerID, su.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to load manager %s: %w", *su.ManagerID, err)
	}
	if manager.CompanyID != companyID {
		return invalidInput("manager %s of user %s belongs to another company", manager.ID, su.ID)
	}
	if !workflow.CanApprove(manager.Role) {
		return invalidInput("manager %s of user %s has role %q, which cannot approve claims", manager.ID, su.ID, manager.Role)
	}
	return nil
}
