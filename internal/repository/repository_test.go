package repository

import (
	"context"
	"testing"
	"time"

	"expenseflow/internal/config"
	"expenseflow/internal/database"
	"expenseflow/internal/logger"
	"expenseflow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", LogLevel: "silent"}, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type orgFixture struct {
	company  model.Company
	manager  model.User
	cfo      model.User
	employee model.User
}

func seedOrg(t *testing.T, db *gorm.DB) orgFixture {
	t.Helper()
	ctx := context.Background()
	dir := NewDirectoryRepository(db)

	f := orgFixture{company: model.Company{Name: "Acme", BaseCurrency: "USD", IsManagerApprover: true}}
	require.NoError(t, dir.UpsertCompany(ctx, &f.company))

	f.manager = model.User{CompanyID: f.company.ID, Name: "Maya", Email: "maya@acme.test", Role: model.RoleManager}
	require.NoError(t, dir.UpsertUser(ctx, &f.manager))
	f.cfo = model.User{CompanyID: f.company.ID, Name: "Carl", Email: "carl@acme.test", Role: model.RoleCFO}
	require.NoError(t, dir.UpsertUser(ctx, &f.cfo))
	f.employee = model.User{CompanyID: f.company.ID, Name: "Eve", Email: "eve@acme.test", Role: model.RoleEmployee, ManagerID: &f.manager.ID}
	require.NoError(t, dir.UpsertUser(ctx, &f.employee))
	return f
}

func newClaim(f orgFixture, entries ...model.ApprovalEntry) *model.Claim {
	amount := decimal.NewFromInt(120)
	return &model.Claim{
		CompanyID:      f.company.ID,
		EmployeeID:     f.employee.ID,
		Title:          "Client dinner",
		Category:       model.CategoryFood,
		ExpenseDate:    time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Currency:       "USD",
		OriginalAmount: amount,
		ExchangeRate:   decimal.NewFromInt(1),
		BaseCurrency:   "USD",
		Amount:         amount,
		Status:         model.ClaimPending,
		Entries:        entries,
		Version:        1,
		SubmittedAt:    time.Now(),
	}
}

func pendingEntry(approver uuid.UUID, pos, seq int) model.ApprovalEntry {
	return model.ApprovalEntry{Position: pos, ApproverID: approver, Sequence: seq, Status: model.EntryPending}
}
