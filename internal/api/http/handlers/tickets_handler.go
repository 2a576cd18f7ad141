package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	tickets  *service.TicketService
	analysis *service.AnalysisService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, analysis *service.AnalysisService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, analysis: analysis}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Subject == "" || req.RequesterEmail == "" {
		return apperrors.NewValidationError("subject, requester_email required", nil)
	}

	ticket, err := h.tickets.CreateTicket(c.Context(), service.TicketCreateInput{
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		Subject:        req.Subject,
		Description:    req.Description,
		Priority:       req.Priority,
		Type:           req.Type,
		Source:         req.Source,
		Tags:           req.Tags,
		Categories:     req.Categories,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	input := parseTicketQuery(c)
	tickets, err := h.tickets.ListTickets(c.Context(), input)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	comments, err := h.tickets.ListComments(c.Context(), ticket.ID, true)
	if err != nil {
		return err
	}
	history, err := h.tickets.ListHistory(c.Context(), ticket.ID, 50, 0)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, comments, history)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}
	visibility := domain.VisibilityPublic
	if req.Visibility != nil {
		visibility = *req.Visibility
	}
	comment, err := h.tickets.AddComment(c.Context(), c.Params("id"), service.CommentInput{
		AuthorType: domain.AuthorTypeAgent,
		AuthorID:   &principal.Agent.ID,
		Visibility: visibility,
		Body:       req.Body,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

// ChangeStatus POST /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.ChangeStatus(c.Context(), principal.Agent.ID, c.Params("id"), service.StatusChangeInput{
		To:         req.Status,
		Comment:    req.Comment,
		Resolution: req.Resolution,
		Workflow:   req.Workflow,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AvailableTransitions GET /tickets/:id/transitions.
func (h *TicketsHandler) AvailableTransitions(c *fiber.Ctx) error {
	options, err := h.tickets.AvailableTransitions(c.Context(), c.Params("id"), c.Query("workflow"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": options})
}

// ChangePriority POST /tickets/:id/priority.
func (h *TicketsHandler) ChangePriority(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.ChangePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.ChangePriority(c.Context(), principal.Agent.ID, c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Assign(c.Context(), principal.Agent.ID, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// UpdateTags PUT /tickets/:id/tags.
func (h *TicketsHandler) UpdateTags(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.UpdateTagsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.UpdateTags(c.Context(), principal.Agent.ID, c.Params("id"), req.Tags)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	if err := h.tickets.DeleteTicket(c.Context(), principal.Agent.ID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// SLACompliance GET /tickets/:id/sla.
func (h *TicketsHandler) SLACompliance(c *fiber.Ctx) error {
	report, err := h.tickets.SLACompliance(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Analyze POST /tickets/:id/analyze.
func (h *TicketsHandler) Analyze(c *fiber.Ctx) error {
	if h.analysis == nil {
		return apperrors.NewDomainError("ANALYSIS_DISABLED", "ticket analysis not configured", http.StatusServiceUnavailable, nil)
	}
	ticket, err := h.tickets.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	analysis, err := h.analysis.AnalyzeTicket(c.Context(), ticket)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AnalysisResponse{
		Summary:           analysis.Summary,
		SuggestedPriority: analysis.SuggestedPriority,
		SuggestedType:     analysis.SuggestedType,
		SuggestedTags:     analysis.SuggestedTags,
	}})
}

func parseTicketQuery(c *fiber.Ctx) service.TicketListInput {
	input := service.TicketListInput{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			input.Statuses = append(input.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			input.Priorities = append(input.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if typeStr := c.Query("type"); typeStr != "" {
		for _, part := range strings.Split(typeStr, ",") {
			input.Types = append(input.Types, domain.TicketType(strings.TrimSpace(part)))
		}
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		input.AssigneeID = &assignee
	}
	if email := c.Query("requester_email"); email != "" {
		input.RequesterEmail = &email
	}
	if tag := c.Query("tag"); tag != "" {
		input.Tag = &tag
	}
	if search := c.Query("search"); search != "" {
		input.SearchTerm = &search
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		input.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		input.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	input.Offset = (page - 1) * pageSize
	input.Limit = pageSize
	return input
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		Subject:     ticket.Subject,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		Type:        ticket.Type,
		AssigneeID:  ticket.AssigneeID,
		Tags:        ticket.Tags,
		SLABreached: ticket.SLABreached,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, comments []domain.Comment, history []domain.TicketHistory) dto.TicketDetailResponse {
	commentItems := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		commentItems = append(commentItems, commentResponse(&comments[i]))
	}
	historyItems := make([]dto.TicketHistoryResponse, 0, len(history))
	for _, entry := range history {
		historyItems = append(historyItems, dto.TicketHistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedByType: entry.ChangedByType,
			ChangedByID:   entry.ChangedByID,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return dto.TicketDetailResponse{
		ID:                 ticket.ID,
		ExternalKey:        ticket.ExternalKey,
		RequesterName:      ticket.RequesterName,
		RequesterEmail:     ticket.RequesterEmail,
		AssigneeID:         ticket.AssigneeID,
		Subject:            ticket.Subject,
		Description:        ticket.Description,
		Status:             ticket.Status,
		Priority:           ticket.Priority,
		Type:               ticket.Type,
		Source:             ticket.Source,
		Tags:               ticket.Tags,
		Categories:         ticket.Categories,
		Resolution:         ticket.Resolution,
		FirstResponseAt:    ticket.FirstResponseAt,
		FirstResponseDueAt: ticket.FirstResponseDueAt,
		ResolutionDueAt:    ticket.ResolutionDueAt,
		SLABreached:        ticket.SLABreached,
		SLABreachType:      ticket.SLABreachType,
		CreatedAt:          ticket.CreatedAt,
		UpdatedAt:          ticket.UpdatedAt,
		ClosedAt:           ticket.ClosedAt,
		Comments:           commentItems,
		History:            historyItems,
	}
}

func commentResponse(comment *domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:         comment.ID,
		AuthorType: comment.AuthorType,
		AuthorID:   comment.AuthorID,
		Visibility: comment.Visibility,
		Body:       comment.Body,
		CreatedAt:  comment.CreatedAt,
	}
}
