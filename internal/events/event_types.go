package events

import (
	"time"

	"github.com/lerndmina/Heimdall-sub004/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened      EventType = "ticket_opened"
	EventTicketClaimed     EventType = "ticket_claimed"
	EventTicketResolved    EventType = "ticket_resolved"
	EventTicketClosed      EventType = "ticket_closed"
	EventTicketAutoClosed  EventType = "ticket_auto_closed"
	EventTicketResumed     EventType = "ticket_resumed"
	EventMessageRelayed    EventType = "message_relayed"
	EventInactivityWarning EventType = "inactivity_warning"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	GuildID   string      `json:"guild_id"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	TicketNumber int64                 `json:"ticket_number"`
	UserID       string                `json:"user_id"`
	CategoryName *string               `json:"category_name,omitempty"`
	Priority     domain.TicketPriority `json:"priority"`
	CreatedVia   domain.CreatedVia     `json:"created_via"`
	ForceCreated bool                  `json:"force_created"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	StaffID string `json:"staff_id"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	ClosedBy string `json:"closed_by"`
	Reason   string `json:"reason"`
}

// MessageRelayedPayload payload.
type MessageRelayedPayload struct {
	MessageID     string                  `json:"message_id"`
	Direction     domain.MessageDirection `json:"direction"`
	AttachmentCnt int                     `json:"attachment_count"`
	ExternalCnt   int                     `json:"external_count"`
	BodyPreview   string                  `json:"body_preview"`
}

// InactivityWarningPayload payload.
type InactivityWarningPayload struct {
	IdleSince time.Time `json:"idle_since"`
}
