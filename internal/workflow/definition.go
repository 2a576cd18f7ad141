package workflow

import (
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// DefaultWorkflowName is used when a caller does not name a workflow.
const DefaultWorkflowName = "default"

// TransitionKey addresses one edge of the status graph.
type TransitionKey struct {
	From domain.TicketStatus
	To   domain.TicketStatus
}

// String renders the key in its "FROM:TO" configuration form.
func (k TransitionKey) String() string {
	return string(k.From) + ":" + string(k.To)
}

// TransitionSpec declares the guards and side effects bound to one edge.
// Guard and action names are resolved against the engine registries when the
// workflow is registered.
type TransitionSpec struct {
	Guards             []string
	Before             []string
	After              []string
	Label              string
	Description        string
	RequiresComment    bool
	RequiresResolution bool
	TriggersAutomation bool
}

// Definition is a named, immutable status transition table.
type Definition struct {
	Name        string
	Transitions map[TransitionKey]TransitionSpec
}

// ParseTransitionKey parses a "FROM:TO" configuration key and validates both
// statuses against the fixed set.
func ParseTransitionKey(raw string) (TransitionKey, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return TransitionKey{}, fmt.Errorf("transition key %q: want FROM:TO", raw)
	}
	from := domain.TicketStatus(strings.TrimSpace(parts[0]))
	to := domain.TicketStatus(strings.TrimSpace(parts[1]))
	if !domain.IsValidStatus(from) {
		return TransitionKey{}, fmt.Errorf("transition key %q: unknown status %q", raw, from)
	}
	if !domain.IsValidStatus(to) {
		return TransitionKey{}, fmt.Errorf("transition key %q: unknown status %q", raw, to)
	}
	return TransitionKey{From: from, To: to}, nil
}

// NewDefinition builds a Definition from "FROM:TO" keyed specs, rejecting
// unknown status names at construction time.
func NewDefinition(name string, specs map[string]TransitionSpec) (*Definition, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("workflow name required")
	}
	transitions := make(map[TransitionKey]TransitionSpec, len(specs))
	for raw, spec := range specs {
		key, err := ParseTransitionKey(raw)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", name, err)
		}
		transitions[key] = spec
	}
	return &Definition{Name: name, Transitions: transitions}, nil
}

// TransitionOption describes one currently-permitted transition for a ticket.
type TransitionOption struct {
	Status             domain.TicketStatus `json:"status"`
	Label              string              `json:"label"`
	Description        string              `json:"description,omitempty"`
	RequiresComment    bool                `json:"requires_comment"`
	RequiresResolution bool                `json:"requires_resolution"`
}
