package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestHasResolutionDueGuard(t *testing.T) {
	guard := HasResolutionDueGuard{}
	due := time.Now().Add(time.Hour)

	assert.False(t, guard.Allow(&domain.Ticket{}, domain.TicketStatusOpen, domain.TicketStatusInProgress))
	assert.True(t, guard.Allow(&domain.Ticket{ResolutionDueAt: &due}, domain.TicketStatusOpen, domain.TicketStatusInProgress))
}

func TestStampFirstResponseActionIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	action := &StampFirstResponseAction{Now: func() time.Time { return now }}

	ticket := &domain.Ticket{}
	require.NoError(t, action.Run(context.Background(), ticket, domain.TicketStatusOpen, domain.TicketStatusInProgress))
	require.NotNil(t, ticket.FirstResponseAt)
	assert.Equal(t, now, *ticket.FirstResponseAt)

	earlier := now.Add(-time.Hour)
	ticket.FirstResponseAt = &earlier
	require.NoError(t, action.Run(context.Background(), ticket, domain.TicketStatusOpen, domain.TicketStatusInProgress))
	assert.Equal(t, earlier, *ticket.FirstResponseAt)
}

func TestClearAssigneeAction(t *testing.T) {
	assignee := "agent-1"
	ticket := &domain.Ticket{AssigneeID: &assignee}
	require.NoError(t, ClearAssigneeAction{}.Run(context.Background(), ticket, domain.TicketStatusClosed, domain.TicketStatusOpen))
	assert.Nil(t, ticket.AssigneeID)
}
