package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Sentinel errors for modmail invariants. Services wrap these in DomainError
// so callers can branch with errors.Is while transports keep the code/status.
var (
	ErrTicketAlreadyOpen     = errors.New("ticket already open")
	ErrTicketAlreadyClaimed  = errors.New("ticket already claimed")
	ErrTicketAlreadyResolved = errors.New("ticket already resolved")
	ErrFormTimeout           = errors.New("form step timed out")
	ErrFormIncomplete        = errors.New("form missing required responses")
	ErrChannelGone           = errors.New("channel no longer exists")
	ErrDMUndeliverable       = errors.New("direct message undeliverable")
	ErrMessageTooShort       = errors.New("message below minimum length")
	ErrOpenRateLimited       = errors.New("ticket open rate limited")
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewAlreadyOpen reports a violation of the one-open-ticket invariant.
func NewAlreadyOpen(guildID, userID string) error {
	return &DomainError{
		Code:       "TICKET_ALREADY_OPEN",
		Message:    "user already has an open ticket in this guild",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"guild_id": guildID, "user_id": userID},
		Err:        ErrTicketAlreadyOpen,
	}
}

// NewAlreadyClaimed reports a claim attempt on a ticket claimed by someone else.
func NewAlreadyClaimed(ticketID, claimedBy string) error {
	return &DomainError{
		Code:       "TICKET_ALREADY_CLAIMED",
		Message:    "ticket is already claimed by another staff member",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"ticket_id": ticketID, "claimed_by": claimedBy},
		Err:        ErrTicketAlreadyClaimed,
	}
}

// NewAlreadyResolved reports a duplicate resolve attempt.
func NewAlreadyResolved(ticketID string) error {
	return &DomainError{
		Code:       "TICKET_ALREADY_RESOLVED",
		Message:    "ticket is already marked resolved",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"ticket_id": ticketID},
		Err:        ErrTicketAlreadyResolved,
	}
}

// NewFormTimeout reports an abandoned multi-step form.
func NewFormTimeout(fieldID string) error {
	return &DomainError{
		Code:       "FORM_TIMEOUT",
		Message:    "form step was not completed in time",
		HTTPStatus: http.StatusRequestTimeout,
		Details:    map[string]any{"field_id": fieldID},
		Err:        ErrFormTimeout,
	}
}

// NewFormIncomplete reports missing required responses after a form walk.
func NewFormIncomplete(missing []string) error {
	return &DomainError{
		Code:       "FORM_INCOMPLETE",
		Message:    "required form fields have no response",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"missing_field_ids": missing},
		Err:        ErrFormIncomplete,
	}
}

// NewChannelGone reports a shared thread or container deleted out-of-band.
// Structural: never retried, drives the ticket toward a closed state.
func NewChannelGone(channelID string, err error) error {
	return &DomainError{
		Code:       "CHANNEL_GONE",
		Message:    "channel no longer exists",
		HTTPStatus: http.StatusGone,
		Details:    map[string]any{"channel_id": channelID},
		Err:        errors.Join(ErrChannelGone, err),
	}
}

// NewDMUndeliverable reports a failed user delivery. Recoverable for staff,
// who get a close-ticket affordance instead of a hard failure.
func NewDMUndeliverable(userID string, err error) error {
	return &DomainError{
		Code:       "DM_UNDELIVERABLE",
		Message:    "user cannot receive direct messages",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"user_id": userID},
		Err:        errors.Join(ErrDMUndeliverable, err),
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "NOT_FOUND"
}
