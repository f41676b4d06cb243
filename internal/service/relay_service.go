package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lerndmina/Heimdall-sub004/internal/attachments"
	"github.com/lerndmina/Heimdall-sub004/internal/config"
	"github.com/lerndmina/Heimdall-sub004/internal/domain"
	"github.com/lerndmina/Heimdall-sub004/internal/events"
	"github.com/lerndmina/Heimdall-sub004/internal/observability"
	"github.com/lerndmina/Heimdall-sub004/internal/platform"
	"github.com/lerndmina/Heimdall-sub004/internal/repository"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

// InboundMessage is a raw platform message entering the relay.
type InboundMessage struct {
	MessageID         string
	Content           string
	AuthorID          string
	AuthorDisplayName string
	AuthorAvatarURL   string
	Attachments       []domain.AttachmentDescriptor
}

// RelayOutcome reports what one relay call did.
type RelayOutcome struct {
	// Tracked is nil when the message was withheld.
	Tracked *domain.TrackedMessage
	// RejectionReasons itemizes withheld attachments; already reported to
	// the original sender, never to the receiving side.
	RejectionReasons []string
	// StaffNote is true when a staff-only message was suppressed.
	StaffNote bool
	// OfferClose is true when staff should be offered a one-click close
	// because the user can no longer be reached.
	OfferClose bool
}

// RelayService moves single messages between the private and shared sides.
type RelayService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	lifecycle  *LifecycleService
	client     platform.Client
	pipeline   *attachments.Pipeline
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.ModmailConfig
}

// RelayDependencies bundles collaborators for the relay service.
type RelayDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	Lifecycle   *LifecycleService
	Client      platform.Client
	Pipeline    *attachments.Pipeline
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Config      config.ModmailConfig
}

// NewRelayService constructs the service.
func NewRelayService(deps RelayDependencies) *RelayService {
	return &RelayService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		lifecycle:  deps.Lifecycle,
		client:     deps.Client,
		pipeline:   deps.Pipeline,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        deps.Config,
	}
}

// RelayUserToStaff forwards a user's DM into the shared thread, preserving
// the user's identity via webhook. All-or-nothing with respect to
// attachments: one rejection withholds the whole message.
func (s *RelayService) RelayUserToStaff(ctx context.Context, ticket *domain.Ticket, msg InboundMessage) (*RelayOutcome, error) {
	content := StripMentions(msg.Content)

	result := s.pipeline.Process(ctx, msg.Attachments)
	s.recordTierMetrics(result)
	if !result.AllSuccessful() {
		outcome := &RelayOutcome{RejectionReasons: rejectionReasons(result)}
		s.sendRejectionFeedback(ctx, ticket.UserID, outcome.RejectionReasons)
		s.metrics.Inc(observability.CounterRelayFailures)
		return outcome, nil
	}

	sent, err := s.client.SendWebhook(ctx, ticket.ChannelID, platform.WebhookSend{
		ThreadID:  ticket.SharedThreadID,
		Content:   content,
		Username:  msg.AuthorDisplayName,
		AvatarURL: msg.AuthorAvatarURL,
		Files:     inlineUploads(result.Inline),
	})
	if err != nil {
		if errors.Is(err, platform.ErrUnknownChannel) || errors.Is(err, platform.ErrUnknownWebhook) {
			return nil, s.closeOrphaned(ctx, ticket, err)
		}
		s.metrics.Inc(observability.CounterRelayFailures)
		return nil, apperrors.MapError(err)
	}

	if result.HasLargeFiles() {
		s.postLargeFileSummary(ctx, ticket.SharedThreadID, result.External)
	}

	tracked := s.trackedFrom(ticket, msg, domain.DirectionUserToStaff, content, result)
	tracked.RelayedMessageID = sent.MessageID
	if err := s.messages.Create(ctx, tracked); err != nil {
		return nil, apperrors.MapError(err)
	}

	if _, err := s.lifecycle.ResumeOnNewUserActivity(ctx, ticket.ID); err != nil {
		s.logger.Warn("resume on activity failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	s.finish(ctx, ticket, tracked, result)
	return &RelayOutcome{Tracked: tracked}, nil
}

// RelayStaffToUser forwards a staff reply to the user's DM. Messages prefixed
// with the staff-note marker are suppressed. DM delivery failure does not
// fail the operation; staff get a recoverable error with a close affordance.
func (s *RelayService) RelayStaffToUser(ctx context.Context, ticket *domain.Ticket, msg InboundMessage) (*RelayOutcome, error) {
	if s.cfg.StaffNoteMarker != "" && strings.HasPrefix(strings.TrimSpace(msg.Content), s.cfg.StaffNoteMarker) {
		return &RelayOutcome{StaffNote: true}, nil
	}

	content := StripMentions(msg.Content)

	result := s.pipeline.Process(ctx, msg.Attachments)
	s.recordTierMetrics(result)
	if !result.AllSuccessful() {
		outcome := &RelayOutcome{RejectionReasons: rejectionReasons(result)}
		s.sendThreadFeedback(ctx, ticket.SharedThreadID, outcome.RejectionReasons)
		s.metrics.Inc(observability.CounterRelayFailures)
		return outcome, nil
	}

	channelID, err := s.client.CreateDMChannel(ctx, ticket.UserID)
	if err == nil {
		_, err = s.client.SendMessage(ctx, channelID, platform.SendRequest{
			Content: content,
			Files:   inlineUploads(result.Inline),
		})
	}
	if err != nil {
		if errors.Is(err, platform.ErrCannotMessageUser) {
			s.metrics.Inc(observability.CounterRelayFailures)
			return &RelayOutcome{OfferClose: true}, apperrors.NewDMUndeliverable(ticket.UserID, err)
		}
		s.metrics.Inc(observability.CounterRelayFailures)
		return nil, apperrors.MapError(err)
	}

	if result.HasLargeFiles() {
		s.postLargeFileSummary(ctx, channelID, result.External)
	}

	tracked := s.trackedFrom(ticket, msg, domain.DirectionStaffToUser, content, result)
	if err := s.messages.Create(ctx, tracked); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.finish(ctx, ticket, tracked, result)
	return &RelayOutcome{Tracked: tracked}, nil
}

var mentionPattern = regexp.MustCompile(`<@[!&]?\d+>|<#\d+>`)

// StripMentions removes platform mention tokens and defuses mass pings.
func StripMentions(content string) string {
	out := mentionPattern.ReplaceAllString(content, "")
	out = strings.ReplaceAll(out, "@everyone", "@​everyone")
	out = strings.ReplaceAll(out, "@here", "@​here")
	return strings.TrimSpace(out)
}

func (s *RelayService) trackedFrom(ticket *domain.Ticket, msg InboundMessage, direction domain.MessageDirection, content string, result *attachments.Result) *domain.TrackedMessage {
	descriptors := make([]domain.AttachmentDescriptor, 0, len(result.Inline)+len(result.External))
	descriptors = append(descriptors, result.Inline...)
	for _, ext := range result.External {
		expires := ext.ExpiresAt
		descriptors = append(descriptors, domain.AttachmentDescriptor{
			Filename:    ext.Descriptor.Filename,
			URL:         ext.URL,
			Size:        ext.Descriptor.Size,
			ContentType: ext.Descriptor.ContentType,
			ExpiresAt:   &expires,
		})
	}
	return &domain.TrackedMessage{
		ID:                uuid.NewString(),
		TicketID:          ticket.ID,
		Direction:         direction,
		Content:           content,
		AuthorID:          msg.AuthorID,
		AuthorDisplayName: msg.AuthorDisplayName,
		AuthorAvatarURL:   msg.AuthorAvatarURL,
		OriginMessageID:   msg.MessageID,
		Attachments:       descriptors,
	}
}

// closeOrphaned handles a shared thread that vanished externally: permanent
// failure, ticket driven to closed rather than retried.
func (s *RelayService) closeOrphaned(ctx context.Context, ticket *domain.Ticket, cause error) error {
	if _, err := s.lifecycle.Close(ctx, ticket.ID, SystemActorID, "shared thread no longer exists"); err != nil {
		s.logger.Error("closing orphaned ticket failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	return apperrors.NewChannelGone(ticket.SharedThreadID, cause)
}

func (s *RelayService) postLargeFileSummary(ctx context.Context, channelID string, external []attachments.ExternalFile) {
	var b strings.Builder
	b.WriteString("Large files were re-hosted externally:\n")
	for _, ext := range external {
		fmt.Fprintf(&b, "- %s: %s (link expires %s)\n",
			ext.Descriptor.Filename, ext.URL, ext.ExpiresAt.Format(time.RFC1123))
	}
	if _, err := s.client.SendMessage(ctx, channelID, platform.SendRequest{Content: b.String()}); err != nil {
		s.logger.Warn("large file summary failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (s *RelayService) sendRejectionFeedback(ctx context.Context, userID string, reasons []string) {
	channelID, err := s.client.CreateDMChannel(ctx, userID)
	if err != nil {
		s.logger.Warn("rejection feedback undeliverable", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.sendFeedback(ctx, channelID, reasons)
}

func (s *RelayService) sendThreadFeedback(ctx context.Context, threadID string, reasons []string) {
	s.sendFeedback(ctx, threadID, reasons)
}

func (s *RelayService) sendFeedback(ctx context.Context, channelID string, reasons []string) {
	var b strings.Builder
	b.WriteString("Your message was not delivered because some attachments failed:\n")
	for _, reason := range reasons {
		fmt.Fprintf(&b, "- %s\n", reason)
	}
	b.WriteString("Fix the attachments and send the message again.")
	if _, err := s.client.SendMessage(ctx, channelID, platform.SendRequest{Content: b.String(), Ephemeral: true}); err != nil {
		s.logger.Warn("rejection feedback failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (s *RelayService) recordTierMetrics(result *attachments.Result) {
	s.metrics.Add(observability.CounterAttachmentsInline, int64(len(result.Inline)))
	s.metrics.Add(observability.CounterAttachmentsExternal, int64(len(result.External)))
	s.metrics.Add(observability.CounterAttachmentsRejected, int64(len(result.Rejected)))
}

func (s *RelayService) finish(ctx context.Context, ticket *domain.Ticket, tracked *domain.TrackedMessage, result *attachments.Result) {
	s.metrics.Inc(observability.CounterMessagesRelayed)
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventMessageRelayed,
		GuildID:   ticket.GuildID,
		TicketID:  ticket.ID,
		ActorID:   tracked.AuthorID,
		Timestamp: time.Now(),
		Payload: events.MessageRelayedPayload{
			MessageID:     tracked.ID,
			Direction:     tracked.Direction,
			AttachmentCnt: len(tracked.Attachments),
			ExternalCnt:   len(result.External),
			BodyPreview:   preview(tracked.Content, 120),
		},
	})
}

func preview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func inlineUploads(inline []domain.AttachmentDescriptor) []platform.FileUpload {
	files := make([]platform.FileUpload, 0, len(inline))
	for _, att := range inline {
		files = append(files, platform.FileUpload{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			URL:         att.URL,
		})
	}
	return files
}

func rejectionReasons(result *attachments.Result) []string {
	reasons := make([]string, 0, len(result.Rejected))
	for _, rej := range result.Rejected {
		reasons = append(reasons, rej.Reason)
	}
	return reasons
}
