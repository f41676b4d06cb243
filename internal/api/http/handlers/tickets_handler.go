package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lerndmina/Heimdall-sub004/internal/api/dto"
	"github.com/lerndmina/Heimdall-sub004/internal/repository"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// TicketsHandler serves read-only ticket and transcript lookups.
type TicketsHandler struct {
	tickets  repository.TicketRepository
	messages repository.MessageRepository
}

// NewTicketsHandler returns a new handler instance.
func NewTicketsHandler(tickets repository.TicketRepository, messages repository.MessageRepository) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, messages: messages}
}

// ListByUser returns all tickets a user has opened in a guild, newest first.
func (h *TicketsHandler) ListByUser(c *fiber.Ctx) error {
	guildID := c.Params("guildID")
	userID := c.Query("user")
	if userID == "" {
		return apperrors.NewValidationError("user query parameter is required", nil)
	}

	limit := c.QueryInt("limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	tickets, err := h.tickets.ListByUser(c.UserContext(), guildID, userID, limit, offset)
	if err != nil {
		return err
	}

	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.FromTicket(&tickets[i]))
	}
	return c.JSON(fiber.Map{
		"tickets": items,
		"limit":   limit,
		"offset":  offset,
	})
}

// Get returns one ticket by its ID.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.FromTicket(ticket))
}

// Transcript returns the ticket plus every tracked message in order.
func (h *TicketsHandler) Transcript(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}

	messages, err := h.messages.ListByTicket(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}

	return c.JSON(dto.TranscriptResponse{
		Ticket:   dto.FromTicket(ticket),
		Messages: dto.FromMessages(messages),
	})
}
