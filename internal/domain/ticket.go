package domain

import (
	"strings"
	"time"
)

// ModmailStatus enumerates the status tags a ticket thread can carry.
type ModmailStatus string

const (
	ModmailStatusOpen     ModmailStatus = "open"
	ModmailStatusClaimed  ModmailStatus = "claimed"
	ModmailStatusResolved ModmailStatus = "resolved"
	ModmailStatusClosed   ModmailStatus = "closed"
)

// AllModmailStatuses lists every status tag the synchronizer maintains.
var AllModmailStatuses = []ModmailStatus{
	ModmailStatusOpen,
	ModmailStatusClaimed,
	ModmailStatusResolved,
	ModmailStatusClosed,
}

// TicketStatus enumerates persisted lifecycle states.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// ParsePriority maps user input to a priority value, case-insensitively.
func ParsePriority(s string) (TicketPriority, bool) {
	p := TicketPriority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return p, true
	}
	return "", false
}

// CreatedVia records how the ticket was opened.
type CreatedVia string

const (
	CreatedViaDM      CreatedVia = "dm"
	CreatedViaCommand CreatedVia = "command"
)

// Ticket is the aggregate for one support conversation. Tickets are never
// hard-deleted; closing flips Status and keeps the record for transcripts.
type Ticket struct {
	ID                      string
	GuildID                 string
	UserID                  string
	SharedThreadID          string
	ChannelID               string
	CategoryID              *string
	CategoryName            *string
	Priority                TicketPriority
	TicketNumber            int64
	Status                  TicketStatus
	ClaimedBy               *string
	ClaimedAt               *time.Time
	MarkedResolved          bool
	ResolvedAt              *time.Time
	AutoCloseScheduledAt    *time.Time
	AutoCloseDisabled       bool
	InactivityWarningSentAt *time.Time
	LastUserActivityAt      time.Time
	CreatedVia              CreatedVia
	ForceCreated            bool
	FormResponses           []FormResponse
	AppliedTagIDs           []string
	CreatedAt               time.Time
	ClosedAt                *time.Time
	ClosedBy                *string
	ClosedReason            *string
}

// ModmailStatusOf derives the thread tag for the ticket's current state.
func (t *Ticket) ModmailStatusOf() ModmailStatus {
	switch {
	case t.Status == TicketStatusClosed:
		return ModmailStatusClosed
	case t.MarkedResolved:
		return ModmailStatusResolved
	case t.ClaimedBy != nil:
		return ModmailStatusClaimed
	default:
		return ModmailStatusOpen
	}
}

// IsClosed reports whether the ticket reached its terminal state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}
