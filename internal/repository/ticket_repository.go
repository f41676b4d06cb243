package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lerndmina/Heimdall-sub004/internal/domain"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

const pgUniqueViolation = "23505"

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// FindOpenByUser returns pgx.ErrNoRows when the user has no open ticket.
	FindOpenByUser(ctx context.Context, guildID, userID string) (*domain.Ticket, error)
	FindByThread(ctx context.Context, threadID string) (*domain.Ticket, error)
	ListByUser(ctx context.Context, guildID, userID string, limit, offset int) ([]domain.Ticket, error)
	// NextTicketNumber atomically increments and returns the guild counter.
	NextTicketNumber(ctx context.Context, guildID string) (int64, error)
	ListWarningCandidates(ctx context.Context, idleSince time.Time) ([]domain.Ticket, error)
	ListAutoCloseCandidates(ctx context.Context, idleSince time.Time) ([]domain.Ticket, error)
	ListScheduledAutoClose(ctx context.Context, now time.Time) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, guild_id, user_id, shared_thread_id, channel_id, category_id, category_name,
       priority, ticket_number, status, claimed_by, claimed_at, marked_resolved, resolved_at,
       auto_close_scheduled_at, auto_close_disabled, inactivity_warning_sent_at, last_user_activity_at,
       created_via, force_created, form_responses, applied_tag_ids, created_at, closed_at, closed_by, closed_reason`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	responses, err := marshalFormResponses(ticket.FormResponses)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (id, guild_id, user_id, shared_thread_id, channel_id, category_id, category_name,
            priority, ticket_number, status, claimed_by, claimed_at, marked_resolved,
            auto_close_disabled, last_user_activity_at, created_via, force_created, form_responses, applied_tag_ids)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
        RETURNING created_at`
	err = r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.GuildID,
		ticket.UserID,
		ticket.SharedThreadID,
		ticket.ChannelID,
		ticket.CategoryID,
		ticket.CategoryName,
		ticket.Priority,
		ticket.TicketNumber,
		ticket.Status,
		ticket.ClaimedBy,
		ticket.ClaimedAt,
		ticket.MarkedResolved,
		ticket.AutoCloseDisabled,
		ticket.LastUserActivityAt,
		ticket.CreatedVia,
		ticket.ForceCreated,
		responses,
		ticket.AppliedTagIDs,
	).Scan(&ticket.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperrors.ErrTicketAlreadyOpen
		}
		return err
	}
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET priority=$1, status=$2, claimed_by=$3, claimed_at=$4, marked_resolved=$5,
            resolved_at=$6, auto_close_scheduled_at=$7, auto_close_disabled=$8,
            inactivity_warning_sent_at=$9, last_user_activity_at=$10, applied_tag_ids=$11,
            closed_at=$12, closed_by=$13, closed_reason=$14
        WHERE id=$15`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Priority,
		ticket.Status,
		ticket.ClaimedBy,
		ticket.ClaimedAt,
		ticket.MarkedResolved,
		ticket.ResolvedAt,
		ticket.AutoCloseScheduledAt,
		ticket.AutoCloseDisabled,
		ticket.InactivityWarningSentAt,
		ticket.LastUserActivityAt,
		ticket.AppliedTagIDs,
		ticket.ClosedAt,
		ticket.ClosedBy,
		ticket.ClosedReason,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) FindOpenByUser(ctx context.Context, guildID, userID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE guild_id=$1 AND user_id=$2 AND status='open'`, ticketColumns)
	return r.fetchSingle(ctx, query, guildID, userID)
}

func (r *ticketRepository) FindByThread(ctx context.Context, threadID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE shared_thread_id=$1 ORDER BY created_at DESC LIMIT 1`, ticketColumns)
	return r.fetchSingle(ctx, query, threadID)
}

func (r *ticketRepository) ListByUser(ctx context.Context, guildID, userID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE guild_id=$1 AND user_id=$2
        ORDER BY created_at DESC LIMIT $3 OFFSET $4`, ticketColumns)
	return r.fetchMany(ctx, query, guildID, userID, limit, offset)
}

func (r *ticketRepository) NextTicketNumber(ctx context.Context, guildID string) (int64, error) {
	// Single-statement increment-and-read; safe under concurrent opens.
	const query = `
        INSERT INTO guild_counters (guild_id, ticket_number) VALUES ($1, 1)
        ON CONFLICT (guild_id) DO UPDATE SET ticket_number = guild_counters.ticket_number + 1
        RETURNING ticket_number`
	var number int64
	if err := r.pool.QueryRow(ctx, query, guildID).Scan(&number); err != nil {
		return 0, err
	}
	return number, nil
}

func (r *ticketRepository) ListWarningCandidates(ctx context.Context, idleSince time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE status='open' AND marked_resolved=FALSE AND auto_close_disabled=FALSE
          AND inactivity_warning_sent_at IS NULL AND last_user_activity_at < $1`, ticketColumns)
	return r.fetchMany(ctx, query, idleSince)
}

func (r *ticketRepository) ListAutoCloseCandidates(ctx context.Context, idleSince time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE status='open' AND auto_close_disabled=FALSE AND last_user_activity_at < $1`, ticketColumns)
	return r.fetchMany(ctx, query, idleSince)
}

func (r *ticketRepository) ListScheduledAutoClose(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE status='open' AND marked_resolved=TRUE AND auto_close_disabled=FALSE
          AND auto_close_scheduled_at IS NOT NULL AND auto_close_scheduled_at <= $1`, ticketColumns)
	return r.fetchMany(ctx, query, now)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var (
		ticket    domain.Ticket
		responses []byte
	)
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.GuildID,
		&ticket.UserID,
		&ticket.SharedThreadID,
		&ticket.ChannelID,
		&ticket.CategoryID,
		&ticket.CategoryName,
		&ticket.Priority,
		&ticket.TicketNumber,
		&ticket.Status,
		&ticket.ClaimedBy,
		&ticket.ClaimedAt,
		&ticket.MarkedResolved,
		&ticket.ResolvedAt,
		&ticket.AutoCloseScheduledAt,
		&ticket.AutoCloseDisabled,
		&ticket.InactivityWarningSentAt,
		&ticket.LastUserActivityAt,
		&ticket.CreatedVia,
		&ticket.ForceCreated,
		&responses,
		&ticket.AppliedTagIDs,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
		&ticket.ClosedBy,
		&ticket.ClosedReason,
	); err != nil {
		return nil, err
	}
	parsed, err := unmarshalFormResponses(responses)
	if err != nil {
		return nil, err
	}
	ticket.FormResponses = parsed
	return &ticket, nil
}

func (r *ticketRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []domain.Ticket{}
	for rows.Next() {
		var (
			ticket    domain.Ticket
			responses []byte
		)
		if err := rows.Scan(
			&ticket.ID,
			&ticket.GuildID,
			&ticket.UserID,
			&ticket.SharedThreadID,
			&ticket.ChannelID,
			&ticket.CategoryID,
			&ticket.CategoryName,
			&ticket.Priority,
			&ticket.TicketNumber,
			&ticket.Status,
			&ticket.ClaimedBy,
			&ticket.ClaimedAt,
			&ticket.MarkedResolved,
			&ticket.ResolvedAt,
			&ticket.AutoCloseScheduledAt,
			&ticket.AutoCloseDisabled,
			&ticket.InactivityWarningSentAt,
			&ticket.LastUserActivityAt,
			&ticket.CreatedVia,
			&ticket.ForceCreated,
			&responses,
			&ticket.AppliedTagIDs,
			&ticket.CreatedAt,
			&ticket.ClosedAt,
			&ticket.ClosedBy,
			&ticket.ClosedReason,
		); err != nil {
			return nil, err
		}
		parsed, err := unmarshalFormResponses(responses)
		if err != nil {
			return nil, err
		}
		ticket.FormResponses = parsed
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

type formResponseRow struct {
	FieldID    string   `json:"field_id"`
	FieldLabel string   `json:"field_label"`
	FieldType  string   `json:"field_type"`
	Value      string   `json:"value,omitempty"`
	Values     []string `json:"values,omitempty"`
}

func marshalFormResponses(responses []domain.FormResponse) ([]byte, error) {
	rows := make([]formResponseRow, 0, len(responses))
	for _, resp := range responses {
		rows = append(rows, formResponseRow{
			FieldID:    resp.FieldID,
			FieldLabel: resp.FieldLabel,
			FieldType:  string(resp.FieldType),
			Value:      resp.Value,
			Values:     resp.Values,
		})
	}
	return json.Marshal(rows)
}

func unmarshalFormResponses(raw []byte) ([]domain.FormResponse, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []formResponseRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	responses := make([]domain.FormResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, domain.FormResponse{
			FieldID:    row.FieldID,
			FieldLabel: row.FieldLabel,
			FieldType:  domain.FieldType(row.FieldType),
			Value:      row.Value,
			Values:     row.Values,
		})
	}
	return responses, nil
}
