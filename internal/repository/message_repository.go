package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lerndmina/Heimdall-sub004/internal/domain"
)

// MessageRepository persists tracked messages for transcript reconstruction.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.TrackedMessage) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TrackedMessage, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository instantiates repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.TrackedMessage) error {
	attachments, err := marshalAttachments(msg.Attachments)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tracked_messages (id, ticket_id, direction, content, author_id,
            author_display_name, author_avatar_url, origin_message_id, relayed_message_id, attachments)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.Direction,
		msg.Content,
		msg.AuthorID,
		msg.AuthorDisplayName,
		msg.AuthorAvatarURL,
		msg.OriginMessageID,
		msg.RelayedMessageID,
		attachments,
	).Scan(&msg.CreatedAt)
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TrackedMessage, error) {
	const query = `
        SELECT id, ticket_id, direction, content, author_id, author_display_name,
               author_avatar_url, origin_message_id, relayed_message_id, attachments, created_at
        FROM tracked_messages WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.TrackedMessage{}
	for rows.Next() {
		var (
			msg         domain.TrackedMessage
			attachments []byte
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Direction,
			&msg.Content,
			&msg.AuthorID,
			&msg.AuthorDisplayName,
			&msg.AuthorAvatarURL,
			&msg.OriginMessageID,
			&msg.RelayedMessageID,
			&attachments,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		parsed, err := unmarshalAttachments(attachments)
		if err != nil {
			return nil, err
		}
		msg.Attachments = parsed
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

type attachmentRow struct {
	Filename    string     `json:"filename"`
	URL         string     `json:"url"`
	Size        int64      `json:"size"`
	ContentType string     `json:"content_type"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func marshalAttachments(attachments []domain.AttachmentDescriptor) ([]byte, error) {
	rows := make([]attachmentRow, 0, len(attachments))
	for _, att := range attachments {
		rows = append(rows, attachmentRow{
			Filename:    att.Filename,
			URL:         att.URL,
			Size:        att.Size,
			ContentType: att.ContentType,
			ExpiresAt:   att.ExpiresAt,
		})
	}
	return json.Marshal(rows)
}

func unmarshalAttachments(raw []byte) ([]domain.AttachmentDescriptor, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []attachmentRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	attachments := make([]domain.AttachmentDescriptor, 0, len(rows))
	for _, row := range rows {
		attachments = append(attachments, domain.AttachmentDescriptor{
			Filename:    row.Filename,
			URL:         row.URL,
			Size:        row.Size,
			ContentType: row.ContentType,
			ExpiresAt:   row.ExpiresAt,
		})
	}
	return attachments, nil
}
