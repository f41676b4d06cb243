package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lerndmina/Heimdall-sub004/internal/domain"
	"github.com/lerndmina/Heimdall-sub004/internal/platform"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

// statusTagNames maps each status to its forum tag label.
var statusTagNames = map[domain.ModmailStatus]string{
	domain.ModmailStatusOpen:     "Open",
	domain.ModmailStatusClaimed:  "Claimed",
	domain.ModmailStatusResolved: "Resolved",
	domain.ModmailStatusClosed:   "Closed",
}

// TagService keeps a thread's status tag consistent with ticket state.
// Safe to call redundantly; converges to the same tag set for a status.
type TagService struct {
	client platform.Client
	logger *zap.Logger

	mu sync.Mutex
	// tag IDs per forum channel, lazily resolved
	known map[string]map[domain.ModmailStatus]string
}

// NewTagService constructs the synchronizer.
func NewTagService(client platform.Client, logger *zap.Logger) *TagService {
	return &TagService{
		client: client,
		logger: logger,
		known:  make(map[string]map[domain.ModmailStatus]string),
	}
}

// Sync applies exactly one status tag matching the ticket's current state to
// its shared thread, creating missing tags on the container first. Non-status
// tags already applied to the thread are preserved. The ticket's
// AppliedTagIDs is updated in place; the caller persists it.
func (s *TagService) Sync(ctx context.Context, ticket *domain.Ticket) error {
	tags, err := s.ensureTags(ctx, ticket.ChannelID)
	if err != nil {
		if errors.Is(err, platform.ErrUnknownChannel) {
			return apperrors.NewChannelGone(ticket.ChannelID, err)
		}
		return err
	}

	statusIDs := make(map[string]bool, len(tags))
	for _, id := range tags {
		statusIDs[id] = true
	}

	desired := []string{tags[ticket.ModmailStatusOf()]}
	for _, id := range ticket.AppliedTagIDs {
		if !statusIDs[id] {
			desired = append(desired, id)
		}
	}

	if sameTagSet(desired, ticket.AppliedTagIDs) {
		return nil
	}

	if err := s.client.SetThreadTags(ctx, ticket.SharedThreadID, desired); err != nil {
		if errors.Is(err, platform.ErrUnknownChannel) {
			return apperrors.NewChannelGone(ticket.SharedThreadID, err)
		}
		return err
	}
	ticket.AppliedTagIDs = desired
	s.logger.Debug("thread tags synchronized",
		zap.String("ticket_id", ticket.ID),
		zap.String("status", string(ticket.ModmailStatusOf())))
	return nil
}

// ensureTags resolves the status tag IDs for a forum channel, creating any
// that are missing or were renamed out from under us.
func (s *TagService) ensureTags(ctx context.Context, forumChannelID string) (map[domain.ModmailStatus]string, error) {
	s.mu.Lock()
	if cached, ok := s.known[forumChannelID]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	existing, err := s.client.ListForumTags(ctx, forumChannelID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(existing))
	for _, tag := range existing {
		byName[strings.ToLower(tag.Name)] = tag.ID
	}

	resolved := make(map[domain.ModmailStatus]string, len(statusTagNames))
	for _, status := range domain.AllModmailStatuses {
		name := statusTagNames[status]
		if id, ok := byName[strings.ToLower(name)]; ok {
			resolved[status] = id
			continue
		}
		created, err := s.client.CreateForumTag(ctx, forumChannelID, name)
		if err != nil {
			return nil, err
		}
		resolved[status] = created.ID
	}

	s.mu.Lock()
	s.known[forumChannelID] = resolved
	s.mu.Unlock()
	return resolved, nil
}

func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}
