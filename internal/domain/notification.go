package domain

import "time"

// NotificationChannel enumerates delivery channels.
type NotificationChannel string

const (
	ChannelEmail   NotificationChannel = "EMAIL"
	ChannelWebhook NotificationChannel = "WEBHOOK"
	ChannelInApp   NotificationChannel = "IN_APP"
)

// Notification is a queued outbound message about a ticket.
type Notification struct {
	ID        string
	TicketID  string
	Channel   NotificationChannel
	Recipient string
	Subject   string
	Body      string
	CreatedAt time.Time
}
