package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"expenseflow/internal/config"
	"expenseflow/internal/database"
	"expenseflow/internal/logger"
	"expenseflow/internal/model"
	"expenseflow/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type org struct {
	company  model.Company
	admin    model.User
	manager  model.User
	cfo      model.User
	ceo      model.User
	director model.User
	employee model.User
	peer     model.User // second employee under the same manager
}

func actorOf(u model.User) Actor {
	return Actor{UserID: u.ID, CompanyID: u.CompanyID, Role: u.Role}
}

type publishedEvent struct {
	companyID uuid.UUID
	eventType string
}

type eventRecorder struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (r *eventRecorder) Publish(companyID uuid.UUID, eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{companyID: companyID, eventType: eventType})
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.eventType)
	}
	return out
}

type testEnv struct {
	db        *gorm.DB
	org       org
	claimRepo repository.ClaimRepository
	tx        repository.TransactionManager
	dirRepo   repository.DirectoryRepository
	rules     RuleService
	claims    ClaimService
	audit     AuditService
	directory DirectoryService
	events    *eventRecorder
}

type envOption func(*envOptions)

type envOptions struct {
	approval  config.ApprovalConfig
	wrapClaim func(repository.ClaimRepository) repository.ClaimRepository
}

func withApproval(cfg config.ApprovalConfig) envOption {
	return func(o *envOptions) { o.approval = cfg }
}

func withClaimRepo(wrap func(repository.ClaimRepository) repository.ClaimRepository) envOption {
	return func(o *envOptions) { o.wrapClaim = wrap }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	o := envOptions{approval: testApproval()}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", LogLevel: "silent"}, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	env := &testEnv{
		db:        db,
		claimRepo: repository.NewClaimRepository(db),
		tx:        repository.NewTransactionManager(db),
		dirRepo:   repository.NewDirectoryRepository(db),
		events:    &eventRecorder{},
	}
	if o.wrapClaim != nil {
		env.claimRepo = o.wrapClaim(env.claimRepo)
	}
	log := logger.Discard()
	env.audit = NewAuditService(repository.NewAuditRepository(db))
	env.directory = NewDirectoryService(env.dirRepo, env.tx, log)
	env.rules = NewRuleService(repository.NewRuleRepository(db), env.dirRepo, env.audit, env.tx, log)
	env.claims = NewClaimService(env.claimRepo, env.dirRepo, env.rules, env.audit, env.tx, env.events, o.approval, log)
	env.org = seedTestOrg(t, env.dirRepo)
	return env
}

func seedTestOrg(t *testing.T, dir repository.DirectoryRepository) org {
	t.Helper()
	ctx := context.Background()
	o := org{company: model.Company{Name: "Acme", Country: "US", BaseCurrency: "USD", IsManagerApprover: true}}
	require.NoError(t, dir.UpsertCompany(ctx, &o.company))

	add := func(name, role string, manager *model.User) model.User {
		u := model.User{CompanyID: o.company.ID, Name: name, Email: name + "@acme.test", Role: role}
		if manager != nil {
			u.ManagerID = &manager.ID
		}
		require.NoError(t, dir.UpsertUser(ctx, &u))
		return u
	}
	o.admin = add("ada", model.RoleAdmin, nil)
	o.ceo = add("cora", model.RoleCEO, nil)
	o.cfo = add("carl", model.RoleCFO, &o.ceo)
	o.director = add("dan", model.RoleDirector, &o.ceo)
	o.manager = add("maya", model.RoleManager, &o.director)
	o.employee = add("eve", model.RoleEmployee, &o.manager)
	o.peer = add("eli", model.RoleEmployee, &o.manager)
	return o
}

func (e *testEnv) createRule(t *testing.T, req RuleRequest) RuleResponse {
	t.Helper()
	res, err := e.rules.CreateRule(context.Background(), actorOf(e.org.admin), req)
	require.NoError(t, err)
	return res
}

func (e *testEnv) submit(t *testing.T, by model.User, req SubmitClaimRequest) ClaimResponse {
	t.Helper()
	res, err := e.claims.SubmitClaim(context.Background(), actorOf(by), req)
	require.NoError(t, err)
	return res
}

func (e *testEnv) decide(by model.User, claimID string, action string) (DecisionResponse, error) {
	return e.claims.Decide(context.Background(), actorOf(by), uuid.MustParse(claimID), DecisionRequest{Action: action})
}

func approvers(users ...model.User) []RuleApproverRequest {
	out := make([]RuleApproverRequest, 0, len(users))
	for i, u := range users {
		out = append(out, RuleApproverRequest{ApproverID: u.ID, Sequence: i})
	}
	return out
}

func percent(p int) *int { return &p }

func travelClaim(amount int64) SubmitClaimRequest {
	return SubmitClaimRequest{
		Title:          "Flight to Lisbon",
		Category:       model.CategoryTravel,
		MerchantName:   "TAP",
		ExpenseDate:    time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		Currency:       "USD",
		OriginalAmount: decimal.NewFromInt(amount),
	}
}

func entryStatuses(c ClaimResponse) map[string]string {
	out := make(map[string]string, len(c.Entries))
	for _, e := range c.Entries {
		out[e.ApproverID] = e.Status
	}
	return out
}

func testApproval() config.ApprovalConfig {
	return testApprovalWithBackoff(time.Millisecond)
}

func testApprovalWithBackoff(d time.Duration) config.ApprovalConfig {
	return config.ApprovalConfig{MaxAttempts: 3, RetryBackoff: d}
}

func logDiscard() logrus.FieldLogger {
	return logger.Discard()
}
