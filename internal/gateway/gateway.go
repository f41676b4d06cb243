// Package gateway binds raw chat-platform events to the relay services. A
// thin SDK adapter translates its events into these handlers; everything
// below here is platform-agnostic.
package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/lerndmina/Heimdall-sub004/internal/config"
	"github.com/lerndmina/Heimdall-sub004/internal/domain"
	"github.com/lerndmina/Heimdall-sub004/internal/platform"
	"github.com/lerndmina/Heimdall-sub004/internal/service"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

// Gateway routes inbound platform events to the lifecycle, form, and relay
// services.
type Gateway struct {
	lifecycle *service.LifecycleService
	relay     *service.RelayService
	form      *service.FormService
	client    platform.Client
	logger    *zap.Logger
	cfg       config.ModmailConfig
}

// Dependencies bundles collaborators for the gateway.
type Dependencies struct {
	Lifecycle *service.LifecycleService
	Relay     *service.RelayService
	Form      *service.FormService
	Client    platform.Client
	Logger    *zap.Logger
	Config    config.ModmailConfig
}

// New constructs the gateway.
func New(deps Dependencies) *Gateway {
	return &Gateway{
		lifecycle: deps.Lifecycle,
		relay:     deps.Relay,
		form:      deps.Form,
		client:    deps.Client,
		logger:    deps.Logger,
		cfg:       deps.Config,
	}
}

// HandleUserDM processes a direct message from a user. With an open ticket
// the message is relayed; without one it starts the intake flow.
func (g *Gateway) HandleUserDM(ctx context.Context, guildID string, msg service.InboundMessage) (*service.RelayOutcome, error) {
	ticket, err := g.lifecycle.TicketByUser(ctx, guildID, msg.AuthorID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, g.startIntake(ctx, guildID, msg)
		}
		return nil, err
	}
	return g.relay.RelayUserToStaff(ctx, ticket, msg)
}

// HandleThreadMessage processes a staff message posted in a shared thread.
// Messages in threads that aren't ticket threads are ignored.
func (g *Gateway) HandleThreadMessage(ctx context.Context, threadID string, msg service.InboundMessage) (*service.RelayOutcome, error) {
	ticket, err := g.lifecycle.TicketByThread(ctx, threadID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return g.relay.RelayStaffToUser(ctx, ticket, msg)
}

// HandleOpenCommand opens a ticket on a user's behalf. Staff-opened tickets
// skip the short-message gate and the intake form and are claimed by the
// opener immediately.
func (g *Gateway) HandleOpenCommand(ctx context.Context, guildID, userID, staffID string, category *domain.EffectiveCategory) (*domain.Ticket, error) {
	displayName, avatarURL, err := g.client.MemberDisplayName(ctx, guildID, userID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	// Command opens skip the gate; the force-created tag stays reserved
	// for the explicit override marker on DM opens.
	return g.lifecycle.OpenTicket(ctx, service.OpenTicketInput{
		GuildID:     guildID,
		UserID:      userID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		Category:    category,
		OpenedBy:    staffID,
		OpenedVia:   domain.CreatedViaCommand,
	})
}

// HandleClaimCommand claims the ticket behind a shared thread.
func (g *Gateway) HandleClaimCommand(ctx context.Context, threadID, staffID string) (*domain.Ticket, error) {
	ticket, err := g.lifecycle.TicketByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return g.lifecycle.Claim(ctx, ticket.ID, staffID)
}

// HandleResolveCommand marks the ticket behind a shared thread resolved.
func (g *Gateway) HandleResolveCommand(ctx context.Context, threadID, staffID string) (*domain.Ticket, error) {
	ticket, err := g.lifecycle.TicketByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return g.lifecycle.MarkResolved(ctx, ticket.ID, staffID)
}

// HandlePriorityCommand changes the priority of the ticket behind a shared
// thread.
func (g *Gateway) HandlePriorityCommand(ctx context.Context, threadID, staffID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	ticket, err := g.lifecycle.TicketByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return g.lifecycle.SetPriority(ctx, ticket.ID, staffID, priority)
}

// HandleCloseCommand closes the ticket behind a shared thread.
func (g *Gateway) HandleCloseCommand(ctx context.Context, threadID, staffID, reason string) (*domain.Ticket, error) {
	ticket, err := g.lifecycle.TicketByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return g.lifecycle.Close(ctx, ticket.ID, staffID, reason)
}

// startIntake runs the new-ticket flow for a first DM: the short-message
// gate, category selection, the intake form, then the open itself. User
// facing failures are reported back over DM and swallowed.
func (g *Gateway) startIntake(ctx context.Context, guildID string, msg service.InboundMessage) error {
	content, forced, err := service.GateOpeningMessage(msg.Content, g.cfg.MinMessageLength, g.cfg.ForceOpenMarker)
	if err != nil {
		g.tellUser(ctx, msg.AuthorID, err)
		return nil
	}

	category, err := g.form.SelectCategory(ctx, guildID, msg.AuthorID)
	if err != nil {
		return g.reportIntakeFailure(ctx, msg.AuthorID, err)
	}

	responses, err := g.form.CollectFormResponses(ctx, msg.AuthorID, category)
	if err != nil {
		return g.reportIntakeFailure(ctx, msg.AuthorID, err)
	}

	opening := msg
	opening.Content = content
	_, err = g.lifecycle.OpenTicket(ctx, service.OpenTicketInput{
		GuildID:        guildID,
		UserID:         msg.AuthorID,
		DisplayName:    msg.AuthorDisplayName,
		AvatarURL:      msg.AuthorAvatarURL,
		Category:       category,
		FormResponses:  responses,
		OpenedBy:       msg.AuthorID,
		OpenedVia:      domain.CreatedViaDM,
		OpeningMessage: &opening,
		ForceCreated:   forced,
	})
	if err != nil {
		return g.reportIntakeFailure(ctx, msg.AuthorID, err)
	}
	return nil
}

// reportIntakeFailure relays expected intake errors to the user and keeps
// unexpected ones flowing up.
func (g *Gateway) reportIntakeFailure(ctx context.Context, userID string, err error) error {
	if errors.Is(err, apperrors.ErrFormTimeout) ||
		errors.Is(err, apperrors.ErrFormIncomplete) ||
		errors.Is(err, apperrors.ErrTicketAlreadyOpen) ||
		errors.Is(err, apperrors.ErrOpenRateLimited) {
		g.tellUser(ctx, userID, err)
		return nil
	}
	return err
}

func (g *Gateway) tellUser(ctx context.Context, userID string, err error) {
	domainErr := apperrors.ToDomainError(err)
	channelID, dmErr := g.client.CreateDMChannel(ctx, userID)
	if dmErr != nil {
		g.logger.Debug("intake feedback undeliverable", zap.String("user_id", userID), zap.Error(dmErr))
		return
	}
	if _, sendErr := g.client.SendMessage(ctx, channelID, platform.SendRequest{Content: domainErr.Message}); sendErr != nil {
		g.logger.Debug("intake feedback undeliverable", zap.String("user_id", userID), zap.Error(sendErr))
	}
}
