package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RuleRepository handles persistence for automation rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *domain.AutomationRule) error
	Update(ctx context.Context, rule *domain.AutomationRule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.AutomationRule, error)
	List(ctx context.Context) ([]domain.AutomationRule, error)
	ListActiveByTrigger(ctx context.Context, trigger string) ([]domain.AutomationRule, error)
	TouchLastExecuted(ctx context.Context, id string, at time.Time) error
}

type ruleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository instantiates the repository.
func NewRuleRepository(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepository{pool: pool}
}

const ruleColumns = `id, name, description, trigger_tag, conditions, actions,
               priority, is_active, stop_processing, last_executed_at, created_at, updated_at`

func (r *ruleRepository) Create(ctx context.Context, rule *domain.AutomationRule) error {
	conditions, actions, err := marshalRuleParts(rule)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO automation_rules (name, description, trigger_tag, conditions, actions, priority, is_active, stop_processing)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Description,
		rule.Trigger,
		conditions,
		actions,
		rule.Priority,
		rule.IsActive,
		rule.StopProcessing,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *ruleRepository) Update(ctx context.Context, rule *domain.AutomationRule) error {
	conditions, actions, err := marshalRuleParts(rule)
	if err != nil {
		return err
	}
	const query = `
        UPDATE automation_rules
        SET name=$1, description=$2, trigger_tag=$3, conditions=$4, actions=$5,
            priority=$6, is_active=$7, stop_processing=$8, updated_at=NOW()
        WHERE id=$9`
	cmd, err := r.pool.Exec(ctx, query,
		rule.Name,
		rule.Description,
		rule.Trigger,
		conditions,
		actions,
		rule.Priority,
		rule.IsActive,
		rule.StopProcessing,
		rule.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ruleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM automation_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id string) (*domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanRule(row)
}

func (r *ruleRepository) List(ctx context.Context) ([]domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules ORDER BY priority DESC, id ASC`
	return r.queryRules(ctx, query)
}

// ListActiveByTrigger returns matching rules in execution order: priority
// descending with rule id ascending as the deterministic tie-break.
func (r *ruleRepository) ListActiveByTrigger(ctx context.Context, trigger string) ([]domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + `
        FROM automation_rules
        WHERE is_active = TRUE AND trigger_tag = $1
        ORDER BY priority DESC, id ASC`
	return r.queryRules(ctx, query, trigger)
}

func (r *ruleRepository) TouchLastExecuted(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE automation_rules SET last_executed_at=$1 WHERE id=$2`, at, id)
	return err
}

func (r *ruleRepository) queryRules(ctx context.Context, query string, args ...any) ([]domain.AutomationRule, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.AutomationRule, error) {
	var (
		rule       domain.AutomationRule
		conditions []byte
		actions    []byte
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.Trigger,
		&conditions,
		&actions,
		&rule.Priority,
		&rule.IsActive,
		&rule.StopProcessing,
		&rule.LastExecutedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, err
	}
	return &rule, nil
}

func marshalRuleParts(rule *domain.AutomationRule) ([]byte, []byte, error) {
	if rule.Conditions == nil {
		rule.Conditions = []domain.ConditionClause{}
	}
	if rule.Actions == nil {
		rule.Actions = []domain.ActionSpec{}
	}
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, err
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, err
	}
	return conditions, actions, nil
}
