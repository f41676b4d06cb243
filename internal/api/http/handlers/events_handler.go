package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/lerndmina/Heimdall-sub004/internal/api/dto"
	"github.com/lerndmina/Heimdall-sub004/internal/domain"
	"github.com/lerndmina/Heimdall-sub004/internal/gateway"
	"github.com/lerndmina/Heimdall-sub004/internal/service"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

// EventsHandler ingests platform events forwarded by the SDK adapter
// process and routes them through the gateway.
type EventsHandler struct {
	gateway *gateway.Gateway
}

// NewEventsHandler returns a new handler instance.
func NewEventsHandler(gw *gateway.Gateway) *EventsHandler {
	return &EventsHandler{gateway: gw}
}

type inboundMessageBody struct {
	MessageID         string `json:"message_id"`
	Content           string `json:"content"`
	AuthorID          string `json:"author_id"`
	AuthorDisplayName string `json:"author_display_name"`
	AuthorAvatarURL   string `json:"author_avatar_url"`
	Attachments       []struct {
		Filename    string `json:"filename"`
		URL         string `json:"url"`
		Size        int64  `json:"size"`
		ContentType string `json:"content_type"`
	} `json:"attachments"`
}

func (b inboundMessageBody) toInbound() service.InboundMessage {
	msg := service.InboundMessage{
		MessageID:         b.MessageID,
		Content:           b.Content,
		AuthorID:          b.AuthorID,
		AuthorDisplayName: b.AuthorDisplayName,
		AuthorAvatarURL:   b.AuthorAvatarURL,
	}
	for _, att := range b.Attachments {
		msg.Attachments = append(msg.Attachments, domain.AttachmentDescriptor{
			Filename:    att.Filename,
			URL:         att.URL,
			Size:        att.Size,
			ContentType: att.ContentType,
		})
	}
	return msg
}

type userDMBody struct {
	GuildID string             `json:"guild_id"`
	Message inboundMessageBody `json:"message"`
}

// UserDM handles a direct message event from a user.
func (h *EventsHandler) UserDM(c *fiber.Ctx) error {
	var body userDMBody
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if body.GuildID == "" || body.Message.AuthorID == "" {
		return apperrors.NewValidationError("guild_id and message.author_id are required", nil)
	}

	outcome, err := h.gateway.HandleUserDM(c.UserContext(), body.GuildID, body.Message.toInbound())
	if err != nil {
		return err
	}
	return c.JSON(outcomeResponse(outcome))
}

type threadMessageBody struct {
	ThreadID string             `json:"thread_id"`
	Message  inboundMessageBody `json:"message"`
}

// ThreadMessage handles a staff message posted in a shared thread.
func (h *EventsHandler) ThreadMessage(c *fiber.Ctx) error {
	var body threadMessageBody
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if body.ThreadID == "" || body.Message.AuthorID == "" {
		return apperrors.NewValidationError("thread_id and message.author_id are required", nil)
	}

	outcome, err := h.gateway.HandleThreadMessage(c.UserContext(), body.ThreadID, body.Message.toInbound())
	if err != nil {
		return err
	}
	return c.JSON(outcomeResponse(outcome))
}

type openCommandBody struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
	StaffID string `json:"staff_id"`
}

// OpenCommand opens a ticket on a user's behalf.
func (h *EventsHandler) OpenCommand(c *fiber.Ctx) error {
	var body openCommandBody
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if body.GuildID == "" || body.UserID == "" || body.StaffID == "" {
		return apperrors.NewValidationError("guild_id, user_id and staff_id are required", nil)
	}

	ticket, err := h.gateway.HandleOpenCommand(c.UserContext(), body.GuildID, body.UserID, body.StaffID, nil)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromTicket(ticket))
}

type threadCommandBody struct {
	ThreadID string `json:"thread_id"`
	StaffID  string `json:"staff_id"`
	Reason   string `json:"reason"`
}

// ClaimCommand claims the ticket behind a shared thread.
func (h *EventsHandler) ClaimCommand(c *fiber.Ctx) error {
	return h.threadCommand(c, h.gateway.HandleClaimCommand)
}

// ResolveCommand marks the ticket behind a shared thread resolved.
func (h *EventsHandler) ResolveCommand(c *fiber.Ctx) error {
	return h.threadCommand(c, h.gateway.HandleResolveCommand)
}

type priorityCommandBody struct {
	ThreadID string `json:"thread_id"`
	StaffID  string `json:"staff_id"`
	Priority string `json:"priority"`
}

// PriorityCommand changes the priority of the ticket behind a shared thread.
func (h *EventsHandler) PriorityCommand(c *fiber.Ctx) error {
	var body priorityCommandBody
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if body.ThreadID == "" || body.StaffID == "" {
		return apperrors.NewValidationError("thread_id and staff_id are required", nil)
	}
	priority, ok := domain.ParsePriority(body.Priority)
	if !ok {
		return apperrors.NewValidationError("priority must be one of low, medium, high, urgent", nil)
	}

	ticket, err := h.gateway.HandlePriorityCommand(c.UserContext(), body.ThreadID, body.StaffID, priority)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromTicket(ticket))
}

// CloseCommand closes the ticket behind a shared thread.
func (h *EventsHandler) CloseCommand(c *fiber.Ctx) error {
	var body threadCommandBody
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if body.ThreadID == "" || body.StaffID == "" {
		return apperrors.NewValidationError("thread_id and staff_id are required", nil)
	}

	ticket, err := h.gateway.HandleCloseCommand(c.UserContext(), body.ThreadID, body.StaffID, body.Reason)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromTicket(ticket))
}

func (h *EventsHandler) threadCommand(c *fiber.Ctx, fn func(ctx context.Context, threadID, staffID string) (*domain.Ticket, error)) error {
	var body threadCommandBody
	if err := c.BodyParser(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if body.ThreadID == "" || body.StaffID == "" {
		return apperrors.NewValidationError("thread_id and staff_id are required", nil)
	}

	ticket, err := fn(c.UserContext(), body.ThreadID, body.StaffID)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromTicket(ticket))
}

func outcomeResponse(outcome *service.RelayOutcome) fiber.Map {
	if outcome == nil {
		return fiber.Map{"relayed": false}
	}
	resp := fiber.Map{"relayed": outcome.Tracked != nil}
	if outcome.Tracked != nil {
		resp["message_id"] = outcome.Tracked.ID
	}
	if len(outcome.RejectionReasons) > 0 {
		resp["rejection_reasons"] = outcome.RejectionReasons
	}
	if outcome.StaffNote {
		resp["staff_note"] = true
	}
	if outcome.OfferClose {
		resp["offer_close"] = true
	}
	return resp
}
