package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversToSubscribedType(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	var created, deleted []Event
	dispatcher.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		created = append(created, event)
		return nil
	})
	dispatcher.Subscribe(EventTicketDeleted, func(ctx context.Context, event Event) error {
		deleted = append(deleted, event)
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{
		ID:       "e-1",
		Type:     EventTicketCreated,
		TicketID: "t-1",
	}))

	require.Len(t, created, 1)
	assert.Equal(t, "t-1", created[0].TicketID)
	assert.Empty(t, deleted)
}

func TestDispatcherHandlerErrorDoesNotStopDelivery(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	delivered := 0
	dispatcher.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		return errors.New("handler exploded")
	})
	dispatcher.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		delivered++
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{Type: EventTicketCreated}))
	assert.Equal(t, 1, delivered)
}

func TestActorConstructors(t *testing.T) {
	agent := AgentActor("agent-1")
	require.NotNil(t, agent.AgentID)
	assert.Equal(t, "agent-1", *agent.AgentID)

	system := SystemActor()
	assert.Nil(t, system.AgentID)

	requester := RequesterActor()
	assert.Nil(t, requester.AgentID)
	assert.NotEqual(t, system.Type, requester.Type)
}
