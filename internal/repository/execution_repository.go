package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ExecutionRepository stores the immutable rule execution audit log.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *domain.AutomationExecution) error
	ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]domain.AutomationExecution, error)
	DeleteByRule(ctx context.Context, ruleID string) error
	StatsByRule(ctx context.Context, ruleID string) (domain.ExecutionStats, error)
}

type executionRepository struct {
	pool *pgxpool.Pool
}

// NewExecutionRepository builds the repository.
func NewExecutionRepository(pool *pgxpool.Pool) ExecutionRepository {
	return &executionRepository{pool: pool}
}

func (r *executionRepository) Create(ctx context.Context, execution *domain.AutomationExecution) error {
	conditions, err := json.Marshal(execution.Conditions)
	if err != nil {
		return err
	}
	actions, err := json.Marshal(execution.Actions)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO automation_executions (id, rule_id, ticket_id, conditions, actions, success, error_message, executed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = r.pool.Exec(ctx, query,
		execution.ID,
		execution.RuleID,
		execution.TicketID,
		conditions,
		actions,
		execution.Success,
		execution.Error,
		execution.ExecutedAt,
	)
	return err
}

func (r *executionRepository) ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]domain.AutomationExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, rule_id, ticket_id, conditions, actions, success, error_message, executed_at
        FROM automation_executions WHERE rule_id=$1
        ORDER BY executed_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ruleID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AutomationExecution
	for rows.Next() {
		var (
			execution  domain.AutomationExecution
			conditions []byte
			actions    []byte
		)
		if err := rows.Scan(
			&execution.ID,
			&execution.RuleID,
			&execution.TicketID,
			&conditions,
			&actions,
			&execution.Success,
			&execution.Error,
			&execution.ExecutedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(conditions, &execution.Conditions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(actions, &execution.Actions); err != nil {
			return nil, err
		}
		result = append(result, execution)
	}
	return result, rows.Err()
}

func (r *executionRepository) DeleteByRule(ctx context.Context, ruleID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM automation_executions WHERE rule_id=$1`, ruleID)
	return err
}

func (r *executionRepository) StatsByRule(ctx context.Context, ruleID string) (domain.ExecutionStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE success),
               COUNT(*) FILTER (WHERE NOT success),
               MIN(executed_at),
               MAX(executed_at)
        FROM automation_executions WHERE rule_id=$1`
	var stats domain.ExecutionStats
	err := r.pool.QueryRow(ctx, query, ruleID).Scan(
		&stats.Total,
		&stats.Successful,
		&stats.Failed,
		&stats.FirstExecution,
		&stats.LastExecution,
	)
	return stats, err
}
