package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrVersionConflict is returned when an optimistic-concurrency save loses a
// race against another writer.
var ErrVersionConflict = fmt.Errorf("ticket version conflict")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	AssigneeID     *string
	RequesterEmail *string
	Statuses       []domain.TicketStatus
	Priorities     []domain.TicketPriority
	Types          []domain.TicketType
	Tag            *string
	SearchTerm     *string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	SoftDelete(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListSLACandidates(ctx context.Context, limit int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, requester_name, requester_email, assignee_id,
               subject, description, status, priority, ticket_type, source, tags, categories,
               resolution, first_response_at, first_response_due_at, resolution_due_at,
               sla_breached, sla_breach_type, version, created_at, updated_at, closed_at, deleted_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, requester_name, requester_email, assignee_id, subject, description,
            status, priority, ticket_type, source, tags, categories,
            first_response_due_at, resolution_due_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.RequesterName,
		ticket.RequesterEmail,
		ticket.AssigneeID,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Type,
		ticket.Source,
		ticket.Tags,
		ticket.Categories,
		ticket.FirstResponseDueAt,
		ticket.ResolutionDueAt,
	).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt)
}

// Update persists the ticket with an optimistic version check: the row is
// only written when its stored version matches the one the caller read.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assignee_id=$1, subject=$2, description=$3, status=$4, priority=$5,
            ticket_type=$6, source=$7, tags=$8, categories=$9, resolution=$10,
            first_response_at=$11, first_response_due_at=$12, resolution_due_at=$13,
            sla_breached=$14, sla_breach_type=$15, closed_at=$16,
            version=version+1, updated_at=NOW()
        WHERE id=$17 AND version=$18 AND deleted_at IS NULL
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.AssigneeID,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Type,
		ticket.Source,
		ticket.Tags,
		ticket.Categories,
		ticket.Resolution,
		ticket.FirstResponseAt,
		ticket.FirstResponseDueAt,
		ticket.ResolutionDueAt,
		ticket.SLABreached,
		ticket.SLABreachType,
		ticket.ClosedAt,
		ticket.ID,
		ticket.Version,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrVersionConflict
	}
	return err
}

func (r *ticketRepository) SoftDelete(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET deleted_at=NOW(), version=version+1, updated_at=NOW()
        WHERE id=$1 AND deleted_at IS NULL
        RETURNING version, deleted_at`
	return r.pool.QueryRow(ctx, query, ticket.ID).Scan(&ticket.Version, &ticket.DeletedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 AND deleted_at IS NULL`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE external_key=$1 AND deleted_at IS NULL`
	return r.fetchSingle(ctx, query, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(ticketScanTargets(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"deleted_at IS NULL"}
	args := []any{}

	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.RequesterEmail != nil {
		args = append(args, *filter.RequesterEmail)
		clauses = append(clauses, fmt.Sprintf("requester_email=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, tt := range filter.Types {
			args = append(args, tt)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("ticket_type IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Tag != nil {
		args = append(args, *filter.Tag)
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ListSLACandidates returns non-terminal tickets that carry due dates and
// have not been marked breached, oldest first, for the periodic breach scan.
func (r *ticketRepository) ListSLACandidates(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE deleted_at IS NULL
          AND status NOT IN ('CLOSED','CANCELLED')
          AND sla_breached = FALSE
          AND (first_response_due_at IS NOT NULL OR resolution_due_at IS NOT NULL)
        ORDER BY created_at ASC
        LIMIT %d`, ticketColumns, limit)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func ticketScanTargets(t *domain.Ticket) []any {
	return []any{
		&t.ID,
		&t.ExternalKey,
		&t.RequesterName,
		&t.RequesterEmail,
		&t.AssigneeID,
		&t.Subject,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.Type,
		&t.Source,
		&t.Tags,
		&t.Categories,
		&t.Resolution,
		&t.FirstResponseAt,
		&t.FirstResponseDueAt,
		&t.ResolutionDueAt,
		&t.SLABreached,
		&t.SLABreachType,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.ClosedAt,
		&t.DeletedAt,
	}
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketScanTargets(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
