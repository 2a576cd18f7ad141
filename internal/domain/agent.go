package domain

import "time"

// AgentRole enumerates internal operator roles.
type AgentRole string

const (
	AgentRoleAgent    AgentRole = "AGENT"
	AgentRoleTeamLead AgentRole = "TEAM_LEAD"
	AgentRoleAdmin    AgentRole = "ADMIN"
)

// Agent models a support agent or administrator.
type Agent struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         AgentRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
