package dto

import (
	"time"

	"github.com/lerndmina/Heimdall-sub004/internal/domain"
)

// TicketResponse is the API shape of a ticket record.
type TicketResponse struct {
	ID             string         `json:"id"`
	GuildID        string         `json:"guild_id"`
	UserID         string         `json:"user_id"`
	SharedThreadID string         `json:"shared_thread_id"`
	TicketNumber   int64          `json:"ticket_number"`
	Status         string         `json:"status"`
	ModmailStatus  string         `json:"modmail_status"`
	Priority       string         `json:"priority"`
	CategoryName   *string        `json:"category_name,omitempty"`
	ClaimedBy      *string        `json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time     `json:"claimed_at,omitempty"`
	MarkedResolved bool           `json:"marked_resolved"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	CreatedVia     string         `json:"created_via"`
	ForceCreated   bool           `json:"force_created"`
	FormResponses  []FormResponse `json:"form_responses,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
	ClosedBy       *string        `json:"closed_by,omitempty"`
	ClosedReason   *string        `json:"closed_reason,omitempty"`
}

// FormResponse is the API shape of one intake answer.
type FormResponse struct {
	FieldID    string   `json:"field_id"`
	FieldLabel string   `json:"field_label"`
	FieldType  string   `json:"field_type"`
	Value      string   `json:"value,omitempty"`
	Values     []string `json:"values,omitempty"`
}

// TranscriptMessage is one tracked message in a transcript.
type TranscriptMessage struct {
	ID                string       `json:"id"`
	Direction         string       `json:"direction"`
	Content           string       `json:"content"`
	AuthorID          string       `json:"author_id"`
	AuthorDisplayName string       `json:"author_display_name"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Attachment is the API shape of an attachment descriptor.
type Attachment struct {
	Filename    string     `json:"filename"`
	URL         string     `json:"url"`
	Size        int64      `json:"size"`
	ContentType string     `json:"content_type"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// TranscriptResponse reconstructs one ticket conversation.
type TranscriptResponse struct {
	Ticket   TicketResponse      `json:"ticket"`
	Messages []TranscriptMessage `json:"messages"`
}

// FromTicket maps a domain ticket.
func FromTicket(ticket *domain.Ticket) TicketResponse {
	responses := make([]FormResponse, 0, len(ticket.FormResponses))
	for _, resp := range ticket.FormResponses {
		responses = append(responses, FormResponse{
			FieldID:    resp.FieldID,
			FieldLabel: resp.FieldLabel,
			FieldType:  string(resp.FieldType),
			Value:      resp.Value,
			Values:     resp.Values,
		})
	}
	return TicketResponse{
		ID:             ticket.ID,
		GuildID:        ticket.GuildID,
		UserID:         ticket.UserID,
		SharedThreadID: ticket.SharedThreadID,
		TicketNumber:   ticket.TicketNumber,
		Status:         string(ticket.Status),
		ModmailStatus:  string(ticket.ModmailStatusOf()),
		Priority:       string(ticket.Priority),
		CategoryName:   ticket.CategoryName,
		ClaimedBy:      ticket.ClaimedBy,
		ClaimedAt:      ticket.ClaimedAt,
		MarkedResolved: ticket.MarkedResolved,
		ResolvedAt:     ticket.ResolvedAt,
		CreatedVia:     string(ticket.CreatedVia),
		ForceCreated:   ticket.ForceCreated,
		FormResponses:  responses,
		CreatedAt:      ticket.CreatedAt,
		ClosedAt:       ticket.ClosedAt,
		ClosedBy:       ticket.ClosedBy,
		ClosedReason:   ticket.ClosedReason,
	}
}

// FromMessages maps tracked messages.
func FromMessages(msgs []domain.TrackedMessage) []TranscriptMessage {
	out := make([]TranscriptMessage, 0, len(msgs))
	for _, msg := range msgs {
		attachments := make([]Attachment, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			attachments = append(attachments, Attachment{
				Filename:    att.Filename,
				URL:         att.URL,
				Size:        att.Size,
				ContentType: att.ContentType,
				ExpiresAt:   att.ExpiresAt,
			})
		}
		out = append(out, TranscriptMessage{
			ID:                msg.ID,
			Direction:         string(msg.Direction),
			Content:           msg.Content,
			AuthorID:          msg.AuthorID,
			AuthorDisplayName: msg.AuthorDisplayName,
			Attachments:       attachments,
			CreatedAt:         msg.CreatedAt,
		})
	}
	return out
}
