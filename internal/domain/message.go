package domain

import "time"

// MessageDirection indicates which side of the relay originated a message.
type MessageDirection string

const (
	DirectionUserToStaff MessageDirection = "user_to_staff"
	DirectionStaffToUser MessageDirection = "staff_to_user"
)

// AttachmentDescriptor describes one file attached to a tracked message.
type AttachmentDescriptor struct {
	Filename    string
	URL         string
	Size        int64
	ContentType string
	ExpiresAt   *time.Time
}

// TrackedMessage is one logical message crossing the relay boundary.
// Created once per relay call and never mutated afterward.
type TrackedMessage struct {
	ID                string
	TicketID          string
	Direction         MessageDirection
	Content           string
	AuthorID          string
	AuthorDisplayName string
	AuthorAvatarURL   string
	OriginMessageID   string
	RelayedMessageID  string
	Attachments       []AttachmentDescriptor
	CreatedAt         time.Time
}
