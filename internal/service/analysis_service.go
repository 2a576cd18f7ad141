package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Completer abstracts the chat completion client.
type Completer interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AnalysisService asks a language model to suggest triage metadata for a
// ticket. Suggestions are advisory; nothing is written back automatically.
type AnalysisService struct {
	client Completer
	model  string
	logger *zap.Logger
}

// TicketAnalysis is the model's triage suggestion.
type TicketAnalysis struct {
	Summary           string                `json:"summary"`
	SuggestedPriority domain.TicketPriority `json:"suggested_priority"`
	SuggestedType     domain.TicketType     `json:"suggested_type"`
	SuggestedTags     []string              `json:"suggested_tags"`
}

// NewAnalysisService builds the service. A nil service is returned when no
// API key is configured.
func NewAnalysisService(cfg config.OpenAIConfig, logger *zap.Logger) *AnalysisService {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	return &AnalysisService{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger,
	}
}

// NewAnalysisServiceWithClient wires a custom completer, used in tests.
func NewAnalysisServiceWithClient(client Completer, model string, logger *zap.Logger) *AnalysisService {
	return &AnalysisService{client: client, model: model, logger: logger}
}

const analysisSystemPrompt = `You are a helpdesk triage assistant. Given a support ticket,
respond with a JSON object containing: "summary" (one sentence),
"suggested_priority" (LOW, MEDIUM, HIGH or URGENT),
"suggested_type" (GENERAL, TECHNICAL, BILLING, COMMERCIAL or INCIDENT),
and "suggested_tags" (up to 5 short lowercase strings). Respond with JSON only.`

// AnalyzeTicket requests a triage suggestion for the ticket.
func (s *AnalysisService) AnalyzeTicket(ctx context.Context, ticket *domain.Ticket) (*TicketAnalysis, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Subject: %s\n\n%s", ticket.Subject, ticket.Description)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.NewInternalError(fmt.Errorf("empty completion response"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var analysis TicketAnalysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &analysis); err != nil {
		s.logger.Warn("unparseable analysis response",
			zap.Error(err), zap.String("ticket_id", ticket.ID))
		return nil, apperrors.NewInternalError(fmt.Errorf("parse analysis response: %w", err))
	}
	if !domain.IsValidPriority(analysis.SuggestedPriority) {
		analysis.SuggestedPriority = ticket.Priority
	}
	if !domain.IsValidTicketType(analysis.SuggestedType) {
		analysis.SuggestedType = ticket.Type
	}
	return &analysis, nil
}
