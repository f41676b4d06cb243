package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lerndmina/Heimdall-sub004/internal/cache"
	"github.com/lerndmina/Heimdall-sub004/internal/config"
	"github.com/lerndmina/Heimdall-sub004/internal/domain"
	"github.com/lerndmina/Heimdall-sub004/internal/events"
	"github.com/lerndmina/Heimdall-sub004/internal/observability"
	"github.com/lerndmina/Heimdall-sub004/internal/platform"
	"github.com/lerndmina/Heimdall-sub004/internal/repository"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

// SystemActorID marks state transitions performed by the scheduler.
const SystemActorID = "system"

// LifecycleService owns ticket creation, claim, resolution, closing, and the
// one-open-ticket invariant.
type LifecycleService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	guilds     repository.GuildRepository
	client     platform.Client
	tags       *TagService
	cache      cache.Cache
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.ModmailConfig
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	GuildRepo   repository.GuildRepository
	Client      platform.Client
	Tags        *TagService
	Cache       cache.Cache
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Config      config.ModmailConfig
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		guilds:     deps.GuildRepo,
		client:     deps.Client,
		tags:       deps.Tags,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        deps.Config,
	}
}

// OpenTicketInput describes a ticket-open attempt.
type OpenTicketInput struct {
	GuildID     string
	UserID      string
	DisplayName string
	AvatarURL   string
	// Category is the resolved effective category; nil means the guild
	// default merged from guild settings.
	Category      *domain.EffectiveCategory
	FormResponses []domain.FormResponse
	// OpenedBy is the actor opening the ticket. When it differs from
	// UserID the opener is staff and the ticket is claimed immediately.
	OpenedBy       string
	OpenedVia      domain.CreatedVia
	OpeningMessage *InboundMessage
	ForceCreated   bool
}

// OpenTicket creates a ticket, allocating the shared thread and the per-guild
// ticket number. Fails when the one-open-ticket invariant would be violated.
func (s *LifecycleService) OpenTicket(ctx context.Context, input OpenTicketInput) (*domain.Ticket, error) {
	if err := s.throttleOpen(ctx, input.GuildID, input.UserID); err != nil {
		return nil, err
	}

	// Best-effort pre-check; the storage-level unique constraint is the
	// real guarantee under concurrent opens.
	if existing, err := s.tickets.FindOpenByUser(ctx, input.GuildID, input.UserID); err == nil && existing != nil {
		return nil, apperrors.NewAlreadyOpen(input.GuildID, input.UserID)
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	category, err := s.resolveCategory(ctx, input.GuildID, input.Category)
	if err != nil {
		return nil, err
	}

	number, err := s.tickets.NextTicketNumber(ctx, input.GuildID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := time.Now()
	ticket := &domain.Ticket{
		ID:                 uuid.NewString(),
		GuildID:            input.GuildID,
		UserID:             input.UserID,
		ChannelID:          category.ForumChannelID,
		Priority:           category.DefaultPriority,
		TicketNumber:       number,
		Status:             domain.TicketStatusOpen,
		AutoCloseDisabled:  !category.AutoCloseEnabled,
		LastUserActivityAt: now,
		CreatedVia:         input.OpenedVia,
		ForceCreated:       input.ForceCreated,
		FormResponses:      input.FormResponses,
	}
	if !category.IsDefault {
		id, name := category.ID, category.Name
		ticket.CategoryID = &id
		ticket.CategoryName = &name
	}
	if input.OpenedBy != "" && input.OpenedBy != input.UserID {
		staffID := input.OpenedBy
		ticket.ClaimedBy = &staffID
		ticket.ClaimedAt = &now
	}

	firstMessage := ""
	if input.OpeningMessage != nil {
		firstMessage = input.OpeningMessage.Content
	}
	threadName := ThreadName(input.DisplayName, ticket.ClaimedBy, firstMessage)

	threadID, err := s.client.CreateThread(ctx, category.ForumChannelID, platform.ThreadCreate{
		Name:           threadName,
		InitialContent: s.openingPost(ticket, input, category),
	})
	if err != nil {
		if errors.Is(err, platform.ErrUnknownChannel) {
			return nil, apperrors.NewChannelGone(category.ForumChannelID, err)
		}
		return nil, apperrors.MapError(err)
	}
	ticket.SharedThreadID = threadID

	if err := s.tickets.Create(ctx, ticket); err != nil {
		// The thread exists but the row never will; park it.
		if archiveErr := s.client.ArchiveThread(ctx, threadID); archiveErr != nil && !errors.Is(archiveErr, platform.ErrUnknownChannel) {
			s.logger.Warn("archiving orphaned thread failed", zap.String("thread_id", threadID), zap.Error(archiveErr))
		}
		if errors.Is(err, apperrors.ErrTicketAlreadyOpen) {
			return nil, apperrors.NewAlreadyOpen(input.GuildID, input.UserID)
		}
		return nil, apperrors.MapError(err)
	}

	// A message may have arrived in the thread before the row committed
	// and memoized it as not-a-ticket. Drop that entry so replies resolve.
	if err := s.cache.Delete(ctx, threadNegKey(threadID)); err != nil {
		s.logger.Debug("clearing negative thread memoization failed", zap.Error(err))
	}

	if err := s.tags.Sync(ctx, ticket); err != nil {
		s.logger.Warn("tag sync failed on open", zap.String("ticket_id", ticket.ID), zap.Error(err))
	} else if err := s.tickets.Update(ctx, ticket); err != nil {
		s.logger.Warn("persisting applied tags failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	if input.OpeningMessage != nil {
		tracked := &domain.TrackedMessage{
			ID:                uuid.NewString(),
			TicketID:          ticket.ID,
			Direction:         domain.DirectionUserToStaff,
			Content:           input.OpeningMessage.Content,
			AuthorID:          input.UserID,
			AuthorDisplayName: input.DisplayName,
			AuthorAvatarURL:   input.AvatarURL,
			OriginMessageID:   input.OpeningMessage.MessageID,
			Attachments:       input.OpeningMessage.Attachments,
		}
		if err := s.messages.Create(ctx, tracked); err != nil {
			s.logger.Error("persisting opening message failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.metrics.Inc(observability.CounterTicketsOpened)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketOpened,
		GuildID:  ticket.GuildID,
		TicketID: ticket.ID,
		ActorID:  input.OpenedBy,
		Payload: events.TicketOpenedPayload{
			TicketNumber: ticket.TicketNumber,
			UserID:       ticket.UserID,
			CategoryName: ticket.CategoryName,
			Priority:     ticket.Priority,
			CreatedVia:   ticket.CreatedVia,
			ForceCreated: ticket.ForceCreated,
		},
	})
	s.logger.Info("ticket opened",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("ticket_number", ticket.TicketNumber),
		zap.String("guild_id", ticket.GuildID),
		zap.String("user_id", ticket.UserID))
	return ticket, nil
}

// Claim assigns the ticket to a staff member. Re-claiming by the same member
// is a no-op; claiming over someone else fails.
func (s *LifecycleService) Claim(ctx context.Context, ticketID, staffID string) (*domain.Ticket, error) {
	ticket, err := s.getOpen(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.ClaimedBy != nil {
		if *ticket.ClaimedBy == staffID {
			return ticket, nil
		}
		return nil, apperrors.NewAlreadyClaimed(ticket.ID, *ticket.ClaimedBy)
	}
	now := time.Now()
	ticket.ClaimedBy = &staffID
	ticket.ClaimedAt = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.syncTags(ctx, ticket)

	s.metrics.Inc(observability.CounterTicketsClaimed)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClaimed,
		GuildID:  ticket.GuildID,
		TicketID: ticket.ID,
		ActorID:  staffID,
		Payload:  events.TicketClaimedPayload{StaffID: staffID},
	})
	return ticket, nil
}

// SetPriority updates the ticket's urgency. Closed tickets keep their final
// priority.
func (s *LifecycleService) SetPriority(ctx context.Context, ticketID, staffID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	ticket, err := s.getOpen(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Priority == priority {
		return ticket, nil
	}
	ticket.Priority = priority
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("ticket priority changed",
		zap.String("ticket_id", ticket.ID),
		zap.String("staff_id", staffID),
		zap.String("priority", string(priority)))
	return ticket, nil
}

// MarkResolved flags the ticket resolved and schedules auto-close. A
// resolution notice goes to both sides offering "close" or "I still need
// help".
func (s *LifecycleService) MarkResolved(ctx context.Context, ticketID, staffID string) (*domain.Ticket, error) {
	ticket, err := s.getOpen(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.MarkedResolved {
		return nil, apperrors.NewAlreadyResolved(ticket.ID)
	}
	now := time.Now()
	closeAt := now.Add(s.cfg.ResolveAutoClose)
	ticket.MarkedResolved = true
	ticket.ResolvedAt = &now
	ticket.AutoCloseScheduledAt = &closeAt
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.syncTags(ctx, ticket)

	notice := fmt.Sprintf(
		"This ticket has been marked resolved. Reply \"close\" to close it, or \"I still need help\" to keep it open. It closes automatically %s.",
		closeAt.Format(time.RFC1123))
	s.notifyBothSides(ctx, ticket, notice)

	s.metrics.Inc(observability.CounterTicketsResolved)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketResolved,
		GuildID:  ticket.GuildID,
		TicketID: ticket.ID,
		ActorID:  staffID,
	})
	return ticket, nil
}

// Close is terminal and idempotent: closing an already-closed ticket is a
// no-op so duplicate triggers (sweep racing a manual close) are tolerated.
func (s *LifecycleService) Close(ctx context.Context, ticketID, closedBy, reason string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.IsClosed() {
		return ticket, nil
	}

	// Thread disappearance is tolerated: the record still closes.
	if err := s.client.LockThread(ctx, ticket.SharedThreadID); err != nil && !errors.Is(err, platform.ErrUnknownChannel) {
		s.logger.Warn("lock thread failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	if err := s.client.ArchiveThread(ctx, ticket.SharedThreadID); err != nil && !errors.Is(err, platform.ErrUnknownChannel) {
		s.logger.Warn("archive thread failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	now := time.Now()
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &now
	ticket.ClosedBy = &closedBy
	ticket.ClosedReason = &reason
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.syncTags(ctx, ticket)

	if channelID, err := s.client.CreateDMChannel(ctx, ticket.UserID); err == nil {
		_, _ = s.client.SendMessage(ctx, channelID, platform.SendRequest{
			Content: fmt.Sprintf("Your ticket #%d has been closed: %s", ticket.TicketNumber, reason),
		})
	}

	s.metrics.Inc(observability.CounterTicketsClosed)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClosed,
		GuildID:  ticket.GuildID,
		TicketID: ticket.ID,
		ActorID:  closedBy,
		Payload:  events.TicketClosedPayload{ClosedBy: closedBy, Reason: reason},
	})
	s.logger.Info("ticket closed",
		zap.String("ticket_id", ticket.ID),
		zap.String("closed_by", closedBy),
		zap.String("reason", reason))
	return ticket, nil
}

// ResumeOnNewUserActivity clears resolution state and refreshes the activity
// clock. Idempotent: on an open, non-resolved ticket it only refreshes
// activity and touches nothing else.
func (s *LifecycleService) ResumeOnNewUserActivity(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.IsClosed() {
		return ticket, nil
	}

	wasResolved := ticket.MarkedResolved
	ticket.LastUserActivityAt = time.Now()
	ticket.MarkedResolved = false
	ticket.ResolvedAt = nil
	ticket.AutoCloseScheduledAt = nil
	ticket.InactivityWarningSentAt = nil
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if wasResolved {
		s.syncTags(ctx, ticket)
		s.publish(ctx, events.Event{
			Type:     events.EventTicketResumed,
			GuildID:  ticket.GuildID,
			TicketID: ticket.ID,
			ActorID:  ticket.UserID,
		})
	}
	return ticket, nil
}

// TicketByUser returns the user's open ticket, or pgx.ErrNoRows-backed
// not-found when none exists.
func (s *LifecycleService) TicketByUser(ctx context.Context, guildID, userID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.FindOpenByUser(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"guild_id": guildID, "user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// TicketByThread resolves a shared thread to its ticket, memoizing negative
// results so hot non-ticket threads don't hit the database on every message.
func (s *LifecycleService) TicketByThread(ctx context.Context, threadID string) (*domain.Ticket, error) {
	negKey := threadNegKey(threadID)
	if _, err := s.cache.Get(ctx, negKey); err == nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"thread_id": threadID})
	}
	ticket, err := s.tickets.FindByThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if cacheErr := s.cache.Set(ctx, negKey, "1", s.cfg.ThreadLookupNegTTL); cacheErr != nil {
				s.logger.Debug("negative lookup memoization failed", zap.Error(cacheErr))
			}
			return nil, apperrors.NewNotFound("ticket", map[string]any{"thread_id": threadID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func threadNegKey(threadID string) string {
	return "not-ticket:" + threadID
}

// GateOpeningMessage applies the short-message gate to the very first message
// of a brand-new ticket. Returns whether the force marker was present.
func GateOpeningMessage(content string, minLength int, forceMarker string) (string, bool, error) {
	trimmed := strings.TrimSpace(content)
	forced := false
	if forceMarker != "" && strings.HasSuffix(trimmed, forceMarker) {
		forced = true
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, forceMarker))
	}
	if !forced && utf8.RuneCountInString(trimmed) < minLength {
		return trimmed, false, &apperrors.DomainError{
			Code:    "MESSAGE_TOO_SHORT",
			Message: fmt.Sprintf("please describe your issue in at least %d characters, or append %s to send anyway", minLength, forceMarker),
			Details: map[string]any{
				"min_length": minLength,
				"length":     utf8.RuneCountInString(trimmed),
			},
			HTTPStatus: 400,
			Err:        apperrors.ErrMessageTooShort,
		}
	}
	return trimmed, forced, nil
}

// ThreadName derives the deterministic shared-thread name, bounded to the
// platform's maximum.
func ThreadName(displayName string, claimedBy *string, firstMessage string) string {
	claimant := "unknown"
	if claimedBy != nil {
		claimant = *claimedBy
	}
	snippet := strings.TrimSpace(firstMessage)
	if snippet == "" {
		snippet = "no message"
	}
	name := fmt.Sprintf("%s | %s | %s", displayName, claimant, snippet)
	if utf8.RuneCountInString(name) > platform.MaxThreadNameLength {
		name = string([]rune(name)[:platform.MaxThreadNameLength])
	}
	return name
}

func (s *LifecycleService) throttleOpen(ctx context.Context, guildID, userID string) error {
	key := fmt.Sprintf("open-rl:%s:%s", guildID, userID)
	ok, err := s.cache.SetNX(ctx, key, "1", s.cfg.OpenRateLimit)
	if err != nil {
		// The limiter is best-effort; a cache outage never blocks opens.
		s.logger.Debug("open rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		return &apperrors.DomainError{
			Code:       "OPEN_RATE_LIMITED",
			Message:    "please wait a few seconds before opening another ticket",
			HTTPStatus: 429,
			Err:        apperrors.ErrOpenRateLimited,
		}
	}
	return nil
}

func (s *LifecycleService) resolveCategory(ctx context.Context, guildID string, category *domain.EffectiveCategory) (*domain.EffectiveCategory, error) {
	if category != nil {
		return category, nil
	}
	settings, err := s.guilds.GetByGuild(ctx, guildID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("guild settings", map[string]any{"guild_id": guildID})
		}
		return nil, apperrors.MapError(err)
	}
	merged := domain.MergeWithGuildDefaults(domain.DefaultCategory(*settings), *settings)
	return &merged, nil
}

func (s *LifecycleService) getOpen(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.IsClosed() {
		return nil, apperrors.NewConflict("ticket is closed", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func (s *LifecycleService) syncTags(ctx context.Context, ticket *domain.Ticket) {
	if err := s.tags.Sync(ctx, ticket); err != nil {
		s.logger.Warn("tag sync failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		s.logger.Warn("persisting applied tags failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *LifecycleService) notifyBothSides(ctx context.Context, ticket *domain.Ticket, content string) {
	if _, err := s.client.SendMessage(ctx, ticket.SharedThreadID, platform.SendRequest{Content: content}); err != nil {
		s.logger.Warn("thread notice failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	channelID, err := s.client.CreateDMChannel(ctx, ticket.UserID)
	if err != nil {
		s.logger.Warn("dm notice failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	if _, err := s.client.SendMessage(ctx, channelID, platform.SendRequest{Content: content}); err != nil {
		s.logger.Warn("dm notice failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *LifecycleService) openingPost(ticket *domain.Ticket, input OpenTicketInput, category *domain.EffectiveCategory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket #%d opened by %s (%s)\n", ticket.TicketNumber, input.DisplayName, ticket.UserID)
	fmt.Fprintf(&b, "Category: %s | Priority: %s\n", category.Name, ticket.Priority)
	if ticket.ForceCreated {
		b.WriteString("Force-created: the opening message was below the minimum length.\n")
	}
	for _, resp := range input.FormResponses {
		value := resp.Value
		if len(resp.Values) > 0 {
			value = strings.Join(resp.Values, ", ")
		}
		fmt.Fprintf(&b, "%s: %s\n", resp.FieldLabel, value)
	}
	if input.OpeningMessage != nil && input.OpeningMessage.Content != "" {
		b.WriteString("\n")
		b.WriteString(input.OpeningMessage.Content)
	}
	return b.String()
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
