package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"expenseflow/internal/model"
	"expenseflow/internal/repository"

	"github.com/google/uuid"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditEntry is one audit row to record. A nil UserID marks an automated transition.
type AuditEntry struct {
	CompanyID  uuid.UUID
	UserID     *uuid.UUID
	Action     string
	EntityID   string
	EntityName string
	Details    any
}

type AuditFilter struct {
	EntityID string
	Action   string
	Page     int
	Limit    int
}

type AuditService interface {
	// Record writes one audit row; inside RunInTx it joins the caller's transaction.
	Record(ctx context.Context, entry AuditEntry) error
	GetAuditLogs(ctx context.Context, actor Actor, filter AuditFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) Record(ctx context.Context, entry AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	row := model.AuditLog{
		CompanyID:  entry.CompanyID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		EntityID:   entry.EntityID,
		EntityName: entry.EntityName,
		Details:    string(details),
	}
	if err := s.repo.Log(ctx, &row); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// GetAuditLogs retrieves the caller's company records, newest first, with users preloaded
func (s *auditService) GetAuditLogs(ctx context.Context, actor Actor, filter AuditFilter) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		CompanyID: actor.CompanyID,
		EntityID:  filter.EntityID,
		Action:    filter.Action,
	}, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		userName := "System"
		userID := ""
		if l.User != nil {
			userName = l.User.Name
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			UserName:   userName,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}

	return res, total, nil
}
