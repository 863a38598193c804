package service

import (
	"context"
	"fmt"
	"time"

	"expenseflow/internal/model"
	"expenseflow/internal/repository"
	"expenseflow/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// --- DTOs ---

type RuleApproverRequest struct {
	ApproverID uuid.UUID `json:"approver_id" binding:"required"`
	Sequence   int       `json:"sequence" binding:"min=0"`
}

type RuleRequest struct {
	Name                string                `json:"name" binding:"required"`
	Description         string                `json:"description"`
	Kind                string                `json:"kind" binding:"required"`
	Approvers           []RuleApproverRequest `json:"approvers" binding:"dive"`
	PercentageRequired  *int                  `json:"percentage_required"`
	ExcludedRoles       []string              `json:"excluded_roles"`
	SpecificApproverID  *uuid.UUID            `json:"specific_approver_id"`
	RequireManagerFirst bool                  `json:"require_manager_first"`
	MinAmount           decimal.Decimal       `json:"min_amount"`
	MaxAmount           decimal.NullDecimal   `json:"max_amount"`
	Categories          []string              `json:"categories"`
	Active              *bool                 `json:"active"` // default true
}

type RuleApproverResponse struct {
	ApproverID   string `json:"approver_id"`
	ApproverName string `json:"approver_name"`
	Sequence     int    `json:"sequence"`
	Role         string `json:"role"`
}

type RuleResponse struct {
	ID                   string                 `json:"id"`
	Name                 string                 `json:"name"`
	Description          string                 `json:"description"`
	Kind                 string                 `json:"kind"`
	Approvers            []RuleApproverResponse `json:"approvers"`
	PercentageRequired   *int                   `json:"percentage_required"`
	ExcludedRoles        []string               `json:"excluded_roles"`
	SpecificApproverID   *string                `json:"specific_approver_id"`
	SpecificApproverRole string                 `json:"specific_approver_role,omitempty"`
	RequireManagerFirst  bool                   `json:"require_manager_first"`
	MinAmount            decimal.Decimal        `json:"min_amount"`
	MaxAmount            decimal.NullDecimal    `json:"max_amount"`
	Categories           []string               `json:"categories"`
	Active               bool                   `json:"active"`
	Version              int                    `json:"version"`
	CreatedAt            string                 `json:"created_at"`
	UpdatedAt            string                 `json:"updated_at"`
}

type RuleFilter struct {
	ActiveOnly bool
	Page       int
	Limit      int
}

// --- Interface ---

type RuleService interface {
	CreateRule(ctx context.Context, actor Actor, req RuleRequest) (RuleResponse, error)
	UpdateRule(ctx context.Context, actor Actor, id uuid.UUID, req RuleRequest) (RuleResponse, error)
	DeleteRule(ctx context.Context, actor Actor, id uuid.UUID) error
	GetRule(ctx context.Context, actor Actor, id uuid.UUID) (RuleResponse, error)
	ListRules(ctx context.Context, actor Actor, filter RuleFilter) ([]RuleResponse, int64, error)
	// Resolve returns the rule governing a claim, or nil when the manager-only policy applies.
	Resolve(ctx context.Context, companyID uuid.UUID, amount decimal.Decimal, category string) (*model.ApprovalRule, error)
}

type ruleService struct {
	rules     repository.RuleRepository
	directory repository.DirectoryRepository
	audit     AuditService
	tx        repository.TransactionManager
	log       logrus.FieldLogger
}

func NewRuleService(
	rules repository.RuleRepository,
	directory repository.DirectoryRepository,
	audit AuditService,
	tx repository.TransactionManager,
	log logrus.FieldLogger,
) RuleService {
	return &ruleService{rules: rules, directory: directory, audit: audit, tx: tx, log: log}
}

// --- Implementation ---

func (s *ruleService) CreateRule(ctx context.Context, actor Actor, req RuleRequest) (RuleResponse, error) {
	rule := model.ApprovalRule{CompanyID: actor.CompanyID, Version: 1}
	applyRuleRequest(&rule, req)

	if err := s.validate(ctx, &rule); err != nil {
		return RuleResponse{}, err
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.rules.Create(txCtx, &rule); err != nil {
			return fmt.Errorf("failed to create approval rule: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  actor.CompanyID,
			UserID:     &actor.UserID,
			Action:     model.ActionRuleCreated,
			EntityID:   rule.ID.String(),
			EntityName: rule.Name,
			Details:    map[string]any{"kind": rule.Kind, "version": rule.Version},
		})
	})
	if err != nil {
		return RuleResponse{}, err
	}

	s.log.WithFields(logrus.Fields{"rule_id": rule.ID, "kind": rule.Kind}).Info("approval rule created")
	return s.GetRule(ctx, actor, rule.ID)
}

// UpdateRule replaces the rule definition and bumps its version. Claims already built
// against the rule keep their snapshot.
func (s *ruleService) UpdateRule(ctx context.Context, actor Actor, id uuid.UUID, req RuleRequest) (RuleResponse, error) {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		rule, err := s.rules.FindByID(txCtx, actor.CompanyID, id)
		if err != nil {
			return notFound("approval rule", err)
		}
		applyRuleRequest(rule, req)
		rule.Version++

		if err := s.validate(txCtx, rule); err != nil {
			return err
		}
		if err := s.rules.Update(txCtx, rule); err != nil {
			return fmt.Errorf("failed to update approval rule: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  actor.CompanyID,
			UserID:     &actor.UserID,
			Action:     model.ActionRuleUpdated,
			EntityID:   rule.ID.String(),
			EntityName: rule.Name,
			Details:    map[string]any{"kind": rule.Kind, "version": rule.Version, "active": rule.Active},
		})
	})
	if err != nil {
		return RuleResponse{}, err
	}

	s.log.WithField("rule_id", id).Info("approval rule updated")
	return s.GetRule(ctx, actor, id)
}

func (s *ruleService) DeleteRule(ctx context.Context, actor Actor, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		rule, err := s.rules.FindByID(txCtx, actor.CompanyID, id)
		if err != nil {
			return notFound("approval rule", err)
		}
		if err := s.rules.Delete(txCtx, actor.CompanyID, id); err != nil {
			return fmt.Errorf("failed to delete approval rule: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  actor.CompanyID,
			UserID:     &actor.UserID,
			Action:     model.ActionRuleDeleted,
			EntityID:   rule.ID.String(),
			EntityName: rule.Name,
			Details:    map[string]any{"version": rule.Version},
		})
	})
}

func (s *ruleService) GetRule(ctx context.Context, actor Actor, id uuid.UUID) (RuleResponse, error) {
	rule, err := s.rules.FindByID(ctx, actor.CompanyID, id)
	if err != nil {
		return RuleResponse{}, notFound("approval rule", err)
	}
	return toRuleResponse(*rule), nil
}

func (s *ruleService) ListRules(ctx context.Context, actor Actor, filter RuleFilter) ([]RuleResponse, int64, error) {
	rules, total, err := s.rules.List(ctx, actor.CompanyID, filter.ActiveOnly, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approval rules: %w", err)
	}
	res := make([]RuleResponse, 0, len(rules))
	for _, r := range rules {
		res = append(res, toRuleResponse(r))
	}
	return res, total, nil
}

func (s *ruleService) Resolve(ctx context.Context, companyID uuid.UUID, amount decimal.Decimal, category string) (*model.ApprovalRule, error) {
	candidates, err := s.rules.ListActive(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval rules: %w", err)
	}
	return workflow.SelectRule(candidates, companyID, amount, category), nil
}

func (s *ruleService) validate(ctx context.Context, rule *model.ApprovalRule) error {
	eligible, err := s.directory.ListByRoles(ctx, rule.CompanyID, workflow.ApproverRoles())
	if err != nil {
		return fmt.Errorf("failed to load eligible approvers: %w", err)
	}
	workflow.FillRoles(rule, eligible)
	return workflow.ValidateRule(rule, eligible)
}

func applyRuleRequest(rule *model.ApprovalRule, req RuleRequest) {
	rule.Name = req.Name
	rule.Description = req.Description
	rule.Kind = model.RuleKind(req.Kind)
	rule.PercentageRequired = req.PercentageRequired
	rule.ExcludedRoles = req.ExcludedRoles
	rule.SpecificApproverID = req.SpecificApproverID
	rule.SpecificApproverRole = ""
	rule.RequireManagerFirst = req.RequireManagerFirst
	rule.MinAmount = req.MinAmount
	rule.MaxAmount = req.MaxAmount
	rule.Categories = req.Categories
	rule.Active = req.Active == nil || *req.Active

	rule.Approvers = make([]model.RuleApprover, 0, len(req.Approvers))
	for _, a := range req.Approvers {
		rule.Approvers = append(rule.Approvers, model.RuleApprover{
			RuleID:     rule.ID,
			ApproverID: a.ApproverID,
			Sequence:   a.Sequence,
		})
	}
}

func toRuleResponse(r model.ApprovalRule) RuleResponse {
	res := RuleResponse{
		ID:                   r.ID.String(),
		Name:                 r.Name,
		Description:          r.Description,
		Kind:                 string(r.Kind),
		Approvers:            make([]RuleApproverResponse, 0, len(r.Approvers)),
		PercentageRequired:   r.PercentageRequired,
		ExcludedRoles:        r.ExcludedRoles,
		SpecificApproverRole: r.SpecificApproverRole,
		RequireManagerFirst:  r.RequireManagerFirst,
		MinAmount:            r.MinAmount,
		MaxAmount:            r.MaxAmount,
		Categories:           r.Categories,
		Active:               r.Active,
		Version:              r.Version,
		CreatedAt:            r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            r.UpdatedAt.Format(time.RFC3339),
	}
	if r.SpecificApproverID != nil {
		id := r.SpecificApproverID.String()
		res.SpecificApproverID = &id
	}
	for _, a := range r.Approvers {
		name := ""
		if a.Approver != nil {
			name = a.Approver.Name
		}
		res.Approvers = append(res.Approvers, RuleApproverResponse{
			ApproverID:   a.ApproverID.String(),
			ApproverName: name,
			Sequence:     a.Sequence,
			Role:         a.Role,
		})
	}
	return res
}
