package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusOnHold     TicketStatus = "ON_HOLD"
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// AllStatuses lists every member of the closed status set in display order.
var AllStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusOnHold,
	TicketStatusPending,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusCancelled,
}

// IsValidStatus reports whether s belongs to the fixed status set.
func IsValidStatus(s TicketStatus) bool {
	for _, candidate := range AllStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status ends the ticket lifecycle.
func IsTerminal(s TicketStatus) bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// PriorityRank orders priorities for escalation. Unknown values rank lowest.
func PriorityRank(p TicketPriority) int {
	switch p {
	case TicketPriorityLow:
		return 1
	case TicketPriorityMedium:
		return 2
	case TicketPriorityHigh:
		return 3
	case TicketPriorityUrgent:
		return 4
	}
	return 0
}

// IsValidPriority reports whether p is one of the fixed priorities.
func IsValidPriority(p TicketPriority) bool {
	return PriorityRank(p) != 0
}

// TicketType classifies the nature of a request for SLA lookup.
type TicketType string

const (
	TicketTypeGeneral    TicketType = "GENERAL"
	TicketTypeTechnical  TicketType = "TECHNICAL"
	TicketTypeBilling    TicketType = "BILLING"
	TicketTypeCommercial TicketType = "COMMERCIAL"
	TicketTypeIncident   TicketType = "INCIDENT"
)

// AllTicketTypes lists the fixed ticket types.
var AllTicketTypes = []TicketType{
	TicketTypeGeneral,
	TicketTypeTechnical,
	TicketTypeBilling,
	TicketTypeCommercial,
	TicketTypeIncident,
}

// IsValidTicketType reports whether t is one of the fixed ticket types.
func IsValidTicketType(t TicketType) bool {
	for _, candidate := range AllTicketTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// SLABreachType identifies which deadline was missed.
type SLABreachType string

const (
	BreachFirstResponse SLABreachType = "FIRST_RESPONSE"
	BreachResolution    SLABreachType = "RESOLUTION"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                 string
	ExternalKey        string
	RequesterName      string
	RequesterEmail     string
	AssigneeID         *string
	Subject            string
	Description        string
	Status             TicketStatus
	Priority           TicketPriority
	Type               TicketType
	Source             string
	Tags               []string
	Categories         []string
	Resolution         *string
	FirstResponseAt    *time.Time
	FirstResponseDueAt *time.Time
	ResolutionDueAt    *time.Time
	SLABreached        bool
	SLABreachType      *SLABreachType
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ClosedAt           *time.Time
	DeletedAt          *time.Time
}

// HasTag reports whether the ticket carries the given tag.
func (t *Ticket) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// HasCategory reports whether the ticket belongs to the given category.
func (t *Ticket) HasCategory(category string) bool {
	for _, existing := range t.Categories {
		if existing == category {
			return true
		}
	}
	return false
}
