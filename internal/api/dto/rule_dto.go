package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RuleRequest payload for creating or updating an automation rule.
type RuleRequest struct {
	Name           string                   `json:"name"`
	Description    string                   `json:"description"`
	Trigger        string                   `json:"trigger"`
	Conditions     []domain.ConditionClause `json:"conditions"`
	Actions        []domain.ActionSpec      `json:"actions"`
	Priority       int                      `json:"priority"`
	IsActive       bool                     `json:"is_active"`
	StopProcessing bool                     `json:"stop_processing"`
}

// RuleResponse representation.
type RuleResponse struct {
	ID             string                   `json:"id"`
	Name           string                   `json:"name"`
	Description    string                   `json:"description"`
	Trigger        string                   `json:"trigger"`
	Conditions     []domain.ConditionClause `json:"conditions"`
	Actions        []domain.ActionSpec      `json:"actions"`
	Priority       int                      `json:"priority"`
	IsActive       bool                     `json:"is_active"`
	StopProcessing bool                     `json:"stop_processing"`
	LastExecutedAt *time.Time               `json:"last_executed_at"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// TestRuleRequest names the ticket a rule is dry-run against.
type TestRuleRequest struct {
	TicketID string `json:"ticket_id"`
}

// ApplyTemplateRequest payload.
type ApplyTemplateRequest struct {
	Template string `json:"template"`
}

// ProcessTicketRequest payload for a manual rule pass.
type ProcessTicketRequest struct {
	TicketID string `json:"ticket_id"`
}
