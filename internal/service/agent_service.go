package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// AgentService manages agent accounts and ticket categories.
type AgentService struct {
	agents     repository.AgentRepository
	categories repository.CategoryRepository
	bcryptCost int
}

// NewAgentService constructs the service.
func NewAgentService(cfg config.Config, agents repository.AgentRepository, categories repository.CategoryRepository) *AgentService {
	return &AgentService{
		agents:     agents,
		categories: categories,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

func requireAdmin(actor *domain.Agent) error {
	if actor == nil || actor.Role != domain.AgentRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateAgent adds a new agent account.
func (s *AgentService) CreateAgent(ctx context.Context, actor *domain.Agent, name, email, password string, role domain.AgentRole) (*domain.Agent, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if existing, err := s.agents.GetByEmail(ctx, email); err != nil {
		return nil, apperrors.MapError(err)
	} else if existing != nil {
		return nil, apperrors.NewConflict("agent email already exists", map[string]any{"email": email})
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	now := time.Now()
	agent := &domain.Agent{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, apperrors.MapError(err)
	}
	return agent, nil
}

// ListAgents lists agent accounts.
func (s *AgentService) ListAgents(ctx context.Context, actor *domain.Agent, activeOnly bool) ([]domain.Agent, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.agents.List(ctx, activeOnly)
}

// GetAgentByID fetches an agent.
func (s *AgentService) GetAgentByID(ctx context.Context, actor *domain.Agent, id string) (*domain.Agent, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if agent == nil {
		return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": id})
	}
	return agent, nil
}

// UpdateAgent updates agent details.
func (s *AgentService) UpdateAgent(ctx context.Context, actor *domain.Agent, agentID, name, email string, role domain.AgentRole, active bool) (*domain.Agent, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	agent, err := s.GetAgentByID(ctx, actor, agentID)
	if err != nil {
		return nil, err
	}
	if email != "" && email != agent.Email {
		if existing, err := s.agents.GetByEmail(ctx, email); err != nil {
			return nil, apperrors.MapError(err)
		} else if existing != nil && existing.ID != agent.ID {
			return nil, apperrors.NewConflict("agent email already exists", map[string]any{"email": email})
		}
		agent.Email = email
	}
	if name != "" {
		agent.Name = name
	}
	agent.Role = role
	agent.Active = active
	if err := s.agents.Update(ctx, agent); err != nil {
		return nil, apperrors.MapError(err)
	}
	return agent, nil
}

// CreateCategory creates a new classification category.
func (s *AgentService) CreateCategory(ctx context.Context, actor *domain.Agent, name, description string) (*domain.Category, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if existing, err := s.categories.GetByName(ctx, name); err != nil {
		return nil, apperrors.MapError(err)
	} else if existing != nil {
		return nil, apperrors.NewConflict("category already exists", map[string]any{"name": name})
	}
	now := time.Now()
	category := &domain.Category{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, apperrors.MapError(err)
	}
	return category, nil
}

// ListCategories returns categories, active only by default.
func (s *AgentService) ListCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error) {
	categories, err := s.categories.List(ctx, activeOnly)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return categories, nil
}

// UpdateCategory modifies category metadata.
func (s *AgentService) UpdateCategory(ctx context.Context, actor *domain.Agent, category *domain.Category) (*domain.Category, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.categories.Update(ctx, category); err != nil {
		return nil, apperrors.MapError(err)
	}
	return category, nil
}
