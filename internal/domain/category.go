package domain

import "time"

// Category represents a routing/classification label agents attach to tickets.
type Category struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
