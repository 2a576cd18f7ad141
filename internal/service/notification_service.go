package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// NotificationService turns domain events into persisted notifications and
// hands them to delivery stubs.
type NotificationService struct {
	notifications repository.NotificationRepository
	tickets       repository.TicketRepository
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	cfg           config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository, tickets repository.TicketRepository, dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		tickets:       tickets,
		dispatcher:    dispatcher,
		logger:        logger,
		cfg:           cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventSLABreached, n.handleSLABreached)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	return n.persist(ctx, event.TicketID, domain.ChannelEmail, payload.RequesterEmail,
		"Ticket received",
		fmt.Sprintf("We received your request %q and will respond shortly.", payload.Subject))
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return nil
	}
	ticket, err := n.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		n.logger.Warn("notification ticket lookup failed",
			zap.Error(err), zap.String("ticket_id", event.TicketID))
		return nil
	}
	return n.persist(ctx, ticket.ID, domain.ChannelEmail, ticket.RequesterEmail,
		"Ticket status updated",
		fmt.Sprintf("Your ticket %s moved from %s to %s.", ticket.ExternalKey, payload.OldStatus, payload.NewStatus))
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok || payload.AssigneeID == nil {
		return nil
	}
	return n.persist(ctx, event.TicketID, domain.ChannelInApp, *payload.AssigneeID,
		"Ticket assigned to you", "A ticket has been assigned to you.")
}

func (n *NotificationService) handleSLABreached(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLABreachedPayload)
	if !ok {
		return nil
	}
	recipient := n.cfg.WebhookURL
	if strings.TrimSpace(recipient) == "" {
		return nil
	}
	return n.persist(ctx, event.TicketID, domain.ChannelWebhook, recipient,
		"SLA breached",
		fmt.Sprintf("Ticket missed its %s deadline (due %s).", payload.BreachType, payload.DueAt.Format(time.RFC3339)))
}

func (n *NotificationService) persist(ctx context.Context, ticketID string, channel domain.NotificationChannel, recipient, subject, body string) error {
	notification := &domain.Notification{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Channel:   channel,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := n.notifications.Create(ctx, notification); err != nil {
		n.logger.Warn("persist notification failed",
			zap.Error(err), zap.String("ticket_id", ticketID))
		return nil
	}
	n.deliverStub(notification)
	return nil
}

// deliverStub logs the outbound message in place of a real transport.
func (n *NotificationService) deliverStub(notification *domain.Notification) {
	switch notification.Channel {
	case domain.ChannelEmail:
		if strings.TrimSpace(n.cfg.EmailFrom) == "" {
			return
		}
		n.logger.Debug("send email",
			zap.String("from", n.cfg.EmailFrom),
			zap.String("to", notification.Recipient),
			zap.String("subject", notification.Subject))
	case domain.ChannelWebhook:
		n.logger.Debug("send webhook",
			zap.String("url", notification.Recipient),
			zap.String("subject", notification.Subject))
	default:
		n.logger.Debug("queue in-app notification",
			zap.String("recipient", notification.Recipient),
			zap.String("subject", notification.Subject))
	}
}
