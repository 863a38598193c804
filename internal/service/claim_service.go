package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expenseflow/internal/config"
	"expenseflow/internal/metrics"
	"expenseflow/internal/model"
	"expenseflow/internal/repository"
	"expenseflow/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Websocket event types
const (
	EventClaimSubmitted = "claim.submitted"
	EventClaimDecided   = "claim.decided"
	EventClaimFinalized = "claim.finalized"
)

// --- DTOs ---

type SubmitClaimRequest struct {
	Title          string          `json:"title" binding:"required,max=255"`
	Description    string          `json:"description"`
	Category       string          `json:"category" binding:"required"`
	MerchantName   string          `json:"merchant_name"`
	ExpenseDate    time.Time       `json:"expense_date" binding:"required"`
	Currency       string          `json:"currency" binding:"required,len=3"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	// ExchangeRate converts Currency into the company base currency; defaults to 1 when they match.
	ExchangeRate decimal.NullDecimal `json:"exchange_rate"`
}

type DecisionRequest struct {
	Action  string `json:"action" binding:"required,oneof=approve reject"`
	Comment string `json:"comment" binding:"max=2000"`
}

type ClaimFilter struct {
	Status   string
	Category string
	Page     int
	Limit    int
}

type ApprovalEntryResponse struct {
	ID           string  `json:"id"`
	ApproverID   string  `json:"approver_id"`
	ApproverName string  `json:"approver_name"`
	Role         string  `json:"role"`
	Sequence     int     `json:"sequence"`
	Status       string  `json:"status"`
	Comment      string  `json:"comment"`
	DecidedAt    *string `json:"decided_at"`
}

type ClaimResponse struct {
	ID             string                  `json:"id"`
	EmployeeID     string                  `json:"employee_id"`
	EmployeeName   string                  `json:"employee_name"`
	Title          string                  `json:"title"`
	Description    string                  `json:"description"`
	Category       string                  `json:"category"`
	MerchantName   string                  `json:"merchant_name"`
	ExpenseDate    string                  `json:"expense_date"`
	Currency       string                  `json:"currency"`
	OriginalAmount decimal.Decimal         `json:"original_amount"`
	ExchangeRate   decimal.Decimal         `json:"exchange_rate"`
	BaseCurrency   string                  `json:"base_currency"`
	Amount         decimal.Decimal         `json:"amount"`
	Status         string                  `json:"status"`
	CurrentStep    int                     `json:"current_step"`
	AppliedRuleID  *string                 `json:"applied_rule_id"`
	Policy         string                  `json:"policy"` // rule kind, or MANAGER_ONLY
	Entries        []ApprovalEntryResponse `json:"entries"`
	Version        int                     `json:"version"`
	SubmittedAt    string                  `json:"submitted_at"`
	FinalizedAt    *string                 `json:"finalized_at"`
}

type DecisionResponse struct {
	Claim     ClaimResponse         `json:"claim"`
	Entry     ApprovalEntryResponse `json:"entry"`
	Finalized bool                  `json:"finalized"` // this decision moved the claim to a terminal status
}

const policyManagerOnly = "MANAGER_ONLY"

// --- Interface ---

type ClaimService interface {
	SubmitClaim(ctx context.Context, actor Actor, req SubmitClaimRequest) (ClaimResponse, error)
	GetClaim(ctx context.Context, actor Actor, id uuid.UUID) (ClaimResponse, error)
	ListClaims(ctx context.Context, actor Actor, filter ClaimFilter) ([]ClaimResponse, int64, error)
	ListPendingApprovals(ctx context.Context, actor Actor, page, limit int) ([]ClaimResponse, int64, error)
	Decide(ctx context.Context, actor Actor, claimID uuid.UUID, req DecisionRequest) (DecisionResponse, error)
}

// EventPublisher pushes claim events to live clients. Implementations must not block.
type EventPublisher interface {
	Publish(companyID uuid.UUID, eventType string, data any)
}

type claimService struct {
	claims    repository.ClaimRepository
	directory repository.DirectoryRepository
	rules     RuleService
	audit     AuditService
	tx        repository.TransactionManager
	events    EventPublisher
	locks     *claimLocks
	cfg       config.ApprovalConfig
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewClaimService(
	claims repository.ClaimRepository,
	directory repository.DirectoryRepository,
	rules RuleService,
	audit AuditService,
	tx repository.TransactionManager,
	events EventPublisher,
	cfg config.ApprovalConfig,
	log logrus.FieldLogger,
) ClaimService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &claimService{
		claims:    claims,
		directory: directory,
		rules:     rules,
		audit:     audit,
		tx:        tx,
		events:    events,
		locks:     newClaimLocks(),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// --- Implementation ---

// SubmitClaim resolves the governing rule, builds the approval ledger and stores the claim.
func (s *claimService) SubmitClaim(ctx context.Context, actor Actor, req SubmitClaimRequest) (ClaimResponse, error) {
	if !workflow.IsCategory(req.Category) {
		return ClaimResponse{}, invalidInput("unknown category %q", req.Category)
	}
	if !req.OriginalAmount.IsPositive() {
		return ClaimResponse{}, invalidInput("original_amount must be positive")
	}

	company, err := s.directory.FindCompany(ctx, actor.CompanyID)
	if err != nil {
		return ClaimResponse{}, notFound("company", err)
	}

	currency := strings.ToUpper(req.Currency)
	rate := decimal.NewFromInt(1)
	switch {
	case req.ExchangeRate.Valid:
		if !req.ExchangeRate.Decimal.IsPositive() {
			return ClaimResponse{}, invalidInput("exchange_rate must be positive")
		}
		rate = req.ExchangeRate.Decimal
	case currency != company.BaseCurrency:
		return ClaimResponse{}, invalidInput("exchange_rate is required to convert %s to %s", currency, company.BaseCurrency)
	}
	amount := req.OriginalAmount.Mul(rate).Round(4)

	rule, err := s.rules.Resolve(ctx, company.ID, amount, req.Category)
	if err != nil {
		return ClaimResponse{}, err
	}
	manager, err := s.directory.FindManager(ctx, actor.UserID)
	if err != nil {
		return ClaimResponse{}, notFound("claimant", err)
	}

	now := s.now()
	claim := model.Claim{
		CompanyID:      company.ID,
		EmployeeID:     actor.UserID,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		MerchantName:   req.MerchantName,
		ExpenseDate:    req.ExpenseDate,
		Currency:       currency,
		OriginalAmount: req.OriginalAmount,
		ExchangeRate:   rate,
		BaseCurrency:   company.BaseCurrency,
		Amount:         amount,
		Version:        1,
		SubmittedAt:    now,
	}
	workflow.Open(&claim, workflow.Build(rule, manager, company.IsManagerApprover), now)

	logger := s.log.WithFields(logrus.Fields{"employee_id": actor.UserID, "policy": policyOf(claim.Policy)})
	if len(claim.Entries) == 0 && claim.Status == model.ClaimApproved {
		logger.Warn("claim has no approvers and was approved on submission")
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.claims.Create(txCtx, &claim); err != nil {
			return fmt.Errorf("failed to create claim: %w", err)
		}
		details := map[string]any{
			"amount":    claim.Amount.String(),
			"currency":  claim.BaseCurrency,
			"policy":    policyOf(claim.Policy),
			"approvers": len(claim.Entries),
		}
		if rule != nil {
			details["rule_id"] = rule.ID.String()
			details["rule_version"] = rule.Version
		}
		if err := s.audit.Record(txCtx, AuditEntry{
			CompanyID:  claim.CompanyID,
			UserID:     &actor.UserID,
			Action:     model.ActionClaimSubmitted,
			EntityID:   claim.ID.String(),
			EntityName: claim.Title,
			Details:    details,
		}); err != nil {
			return err
		}
		if claim.Status.IsTerminal() {
			return s.recordFinalized(txCtx, &claim)
		}
		return nil
	})
	if err != nil {
		return ClaimResponse{}, err
	}

	logger.WithFields(logrus.Fields{"claim_id": claim.ID, "status": claim.Status}).Info("claim submitted")
	metrics.RecordClaimSubmitted(policyOf(claim.Policy))
	if claim.Status.IsTerminal() {
		metrics.RecordFinalized(string(claim.Status))
	}

	res, err := s.load(ctx, claim.ID)
	if err != nil {
		return ClaimResponse{}, err
	}
	s.publish(claim.CompanyID, EventClaimSubmitted, res)
	if claim.Status.IsTerminal() {
		s.publish(claim.CompanyID, EventClaimFinalized, res)
	}
	return res, nil
}

func (s *claimService) GetClaim(ctx context.Context, actor Actor, id uuid.UUID) (ClaimResponse, error) {
	claim, err := s.claims.FindByID(ctx, id)
	if err != nil {
		return ClaimResponse{}, notFound("claim", err)
	}
	if !canView(actor, claim) {
		return ClaimResponse{}, fmt.Errorf("claim: %w", ErrNotFound)
	}
	return toClaimResponse(*claim), nil
}

// ListClaims lists the company's claims; employees only see their own.
func (s *claimService) ListClaims(ctx context.Context, actor Actor, filter ClaimFilter) ([]ClaimResponse, int64, error) {
	f := repository.ClaimFilter{CompanyID: actor.CompanyID, Status: filter.Status, Category: filter.Category}
	if actor.IsEmployee() {
		f.EmployeeID = &actor.UserID
	}
	claims, total, err := s.claims.List(ctx, f, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch claims: %w", err)
	}
	return toClaimResponses(claims), total, nil
}

// ListPendingApprovals lists claims waiting on the caller in their active step.
func (s *claimService) ListPendingApprovals(ctx context.Context, actor Actor, page, limit int) ([]ClaimResponse, int64, error) {
	claims, total, err := s.claims.ListPendingForApprover(ctx, actor.CompanyID, actor.UserID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch pending approvals: %w", err)
	}
	return toClaimResponses(claims), total, nil
}

// Decide applies the caller's decision. Decisions on one claim are serialized by an
// in-process lock and a row lock; a lost optimistic-lock race is retried on fresh state
// up to cfg.MaxAttempts times.
func (s *claimService) Decide(ctx context.Context, actor Actor, claimID uuid.UUID, req DecisionRequest) (DecisionResponse, error) {
	decision := workflow.Decision{
		ApproverID: actor.UserID,
		Action:     workflow.Action(req.Action),
		Comment:    strings.TrimSpace(req.Comment),
	}
	logger := s.log.WithFields(logrus.Fields{"claim_id": claimID, "approver_id": actor.UserID, "action": req.Action})

	unlock := s.locks.Lock(claimID)
	defer unlock()

	var (
		claim *model.Claim
		out   *workflow.Outcome
		err   error
	)
	for attempt := 1; ; attempt++ {
		claim, out, err = s.decideOnce(ctx, actor, claimID, decision)
		if !errors.Is(err, workflow.ErrConcurrencyConflict) {
			break
		}
		metrics.RecordConcurrencyConflict()
		if attempt >= s.cfg.MaxAttempts {
			logger.WithField("attempt", attempt).Error("giving up on decision after repeated conflicts")
			break
		}
		logger.WithField("attempt", attempt).Warn("claim changed underneath decision, retrying")
		if werr := wait(ctx, s.cfg.RetryBackoff*time.Duration(attempt)); werr != nil {
			err = werr
			break
		}
	}
	if err != nil {
		metrics.RecordDecision(req.Action, decisionResult(err))
		return DecisionResponse{}, err
	}

	metrics.RecordDecision(req.Action, "ok")
	logger = logger.WithFields(logrus.Fields{"status": out.Status, "current_step": out.CurrentStep})
	if out.Finalized() {
		metrics.RecordFinalized(string(out.Status))
		logger.Info("claim finalized")
	} else {
		logger.Info("decision recorded")
	}

	res, err := s.load(ctx, claimID)
	if err != nil {
		return DecisionResponse{}, err
	}
	entry := toEntryResponse(out.Entry)
	for _, e := range res.Entries {
		if e.ID == entry.ID {
			entry = e
		}
	}

	s.publish(claim.CompanyID, EventClaimDecided, map[string]any{"claim": res, "entry": entry})
	if out.Finalized() {
		s.publish(claim.CompanyID, EventClaimFinalized, res)
	}
	return DecisionResponse{Claim: res, Entry: entry, Finalized: out.Finalized()}, nil
}

// decideOnce runs one read-apply-evaluate-persist cycle in a single transaction.
func (s *claimService) decideOnce(ctx context.Context, actor Actor, claimID uuid.UUID, d workflow.Decision) (*model.Claim, *workflow.Outcome, error) {
	var (
		claim *model.Claim
		out   *workflow.Outcome
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		claim, err = s.claims.FindForUpdate(txCtx, claimID)
		if err != nil {
			return notFound("claim", err)
		}
		if claim.CompanyID != actor.CompanyID {
			return fmt.Errorf("claim: %w", ErrNotFound)
		}

		out, err = workflow.Apply(claim, d, s.now())
		if err != nil {
			return err
		}
		if err := s.claims.SaveDecision(txCtx, claim, &out.Entry); err != nil {
			return err
		}

		if err := s.audit.Record(txCtx, AuditEntry{
			CompanyID:  claim.CompanyID,
			UserID:     &actor.UserID,
			Action:     model.ActionClaimDecision,
			EntityID:   claim.ID.String(),
			EntityName: claim.Title,
			Details: map[string]any{
				"action":   d.Action,
				"comment":  d.Comment,
				"sequence": out.Entry.Sequence,
				"status":   out.Status,
			},
		}); err != nil {
			return err
		}
		if out.Finalized() {
			return s.recordFinalized(txCtx, claim)
		}
		return nil
	})
	return claim, out, err
}

func (s *claimService) recordFinalized(ctx context.Context, claim *model.Claim) error {
	return s.audit.Record(ctx, AuditEntry{
		CompanyID:  claim.CompanyID,
		Action:     model.ActionClaimFinalized,
		EntityID:   claim.ID.String(),
		EntityName: claim.Title,
		Details:    map[string]any{"status": claim.Status},
	})
}

func (s *claimService) load(ctx context.Context, id uuid.UUID) (ClaimResponse, error) {
	claim, err := s.claims.FindByID(ctx, id)
	if err != nil {
		return ClaimResponse{}, notFound("claim", err)
	}
	return toClaimResponse(*claim), nil
}

func (s *claimService) publish(companyID uuid.UUID, eventType string, data any) {
	if s.events != nil {
		s.events.Publish(companyID, eventType, data)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// canView allows the claimant, anyone holding an entry on the claim, and non-employee
// roles of the same company.
func canView(actor Actor, claim *model.Claim) bool {
	if claim.CompanyID != actor.CompanyID {
		return false
	}
	if !actor.IsEmployee() || claim.EmployeeID == actor.UserID {
		return true
	}
	for _, e := range claim.Entries {
		if e.ApproverID == actor.UserID {
			return true
		}
	}
	return false
}

func decisionResult(err error) string {
	switch {
	case errors.Is(err, workflow.ErrNotAnApprover):
		return "not_an_approver"
	case errors.Is(err, workflow.ErrOutOfTurn):
		return "out_of_turn"
	case errors.Is(err, workflow.ErrClaimAlreadyFinalized):
		return "finalized"
	case errors.Is(err, workflow.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func policyOf(p *model.PolicySnapshot) string {
	if p == nil {
		return policyManagerOnly
	}
	return string(p.Kind)
}

func toClaimResponses(claims []model.Claim) []ClaimResponse {
	res := make([]ClaimResponse, 0, len(claims))
	for _, c := range claims {
		res = append(res, toClaimResponse(c))
	}
	return res
}

func toClaimResponse(c model.Claim) ClaimResponse {
	res := ClaimResponse{
		ID:             c.ID.String(),
		EmployeeID:     c.EmployeeID.String(),
		Title:          c.Title,
		Description:    c.Description,
		Category:       c.Category,
		MerchantName:   c.MerchantName,
		ExpenseDate:    c.ExpenseDate.Format("2006-01-02"),
		Currency:       c.Currency,
		OriginalAmount: c.OriginalAmount,
		ExchangeRate:   c.ExchangeRate,
		BaseCurrency:   c.BaseCurrency,
		Amount:         c.Amount,
		Status:         string(c.Status),
		CurrentStep:    c.CurrentStep,
		Policy:         policyOf(c.Policy),
		Entries:        make([]ApprovalEntryResponse, 0, len(c.Entries)),
		Version:        c.Version,
		SubmittedAt:    c.SubmittedAt.Format(time.RFC3339),
	}
	if c.Employee != nil {
		res.EmployeeName = c.Employee.Name
	}
	if c.AppliedRuleID != nil {
		id := c.AppliedRuleID.String()
		res.AppliedRuleID = &id
	}
	if c.FinalizedAt != nil {
		at := c.FinalizedAt.Format(time.RFC3339)
		res.FinalizedAt = &at
	}
	for _, e := range c.Entries {
		res.Entries = append(res.Entries, toEntryResponse(e))
	}
	return res
}

func toEntryResponse(e model.ApprovalEntry) ApprovalEntryResponse {
	res := ApprovalEntryResponse{
		ID:         e.ID.String(),
		ApproverID: e.ApproverID.String(),
		Role:       e.Role,
		Sequence:   e.Sequence,
		Status:     string(e.Status),
		Comment:    e.Comment,
	}
	if e.Approver != nil {
		res.ApproverName = e.Approver.Name
	}
	if e.DecidedAt != nil {
		at := e.DecidedAt.Format(time.RFC3339)
		res.DecidedAt = &at
	}
	return res
}
