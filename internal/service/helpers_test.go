package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lerndmina/Heimdall-sub004/internal/attachments"
	"github.com/lerndmina/Heimdall-sub004/internal/cache"
	"github.com/lerndmina/Heimdall-sub004/internal/config"
	"github.com/lerndmina/Heimdall-sub004/internal/domain"
	"github.com/lerndmina/Heimdall-sub004/internal/events"
	"github.com/lerndmina/Heimdall-sub004/internal/observability"
	"github.com/lerndmina/Heimdall-sub004/internal/platform"
	"github.com/lerndmina/Heimdall-sub004/internal/service"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

func testModmailConfig() config.ModmailConfig {
	return config.ModmailConfig{
		MinMessageLength:    50,
		ForceOpenMarker:     "--force",
		StaffNoteMarker:     "#",
		FormStepWait:        time.Second,
		OpenRateLimit:       5 * time.Second,
		InactivityWarning:   48 * time.Hour,
		InactivityAutoClose: 168 * time.Hour,
		ResolveAutoClose:    24 * time.Hour,
		SweepInterval:       10 * time.Minute,
		ThreadLookupNegTTL:  15 * time.Minute,
	}
}

// fakeTicketRepo mirrors the storage semantics the service relies on,
// including the partial-unique guarantee on open tickets.
type fakeTicketRepo struct {
	mu        sync.Mutex
	tickets   map[string]*domain.Ticket
	counters  map[string]int64
	createErr error
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		tickets:  make(map[string]*domain.Ticket),
		counters: make(map[string]int64),
	}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.tickets {
		if existing.GuildID == ticket.GuildID && existing.UserID == ticket.UserID && existing.Status == domain.TicketStatusOpen {
			return apperrors.ErrTicketAlreadyOpen
		}
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *fakeTicketRepo) FindOpenByUser(ctx context.Context, guildID, userID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.GuildID == guildID && ticket.UserID == userID && ticket.Status == domain.TicketStatusOpen {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) FindByThread(ctx context.Context, threadID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.SharedThreadID == threadID {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListByUser(ctx context.Context, guildID, userID string, limit, offset int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.GuildID == guildID && ticket.UserID == userID {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) NextTicketNumber(ctx context.Context, guildID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[guildID]++
	return r.counters[guildID], nil
}

func (r *fakeTicketRepo) ListWarningCandidates(ctx context.Context, idleSince time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if t.Status == domain.TicketStatusOpen && !t.AutoCloseDisabled &&
			t.InactivityWarningSentAt == nil && t.LastUserActivityAt.Before(idleSince) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) ListAutoCloseCandidates(ctx context.Context, idleSince time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if t.Status == domain.TicketStatusOpen && !t.AutoCloseDisabled &&
			t.InactivityWarningSentAt != nil && t.LastUserActivityAt.Before(idleSince) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) ListScheduledAutoClose(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if t.Status == domain.TicketStatusOpen && t.AutoCloseScheduledAt != nil && t.AutoCloseScheduledAt.Before(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.TrackedMessage
}

func (r *fakeMessageRepo) Create(ctx context.Context, msg *domain.TrackedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TrackedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TrackedMessage
	for _, msg := range r.messages {
		if msg.TicketID == ticketID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type fakeGuildRepo struct {
	settings map[string]*domain.GuildSettings
}

func (r *fakeGuildRepo) Upsert(ctx context.Context, settings *domain.GuildSettings) error {
	r.settings[settings.GuildID] = settings
	return nil
}

func (r *fakeGuildRepo) GetByGuild(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	settings, ok := r.settings[guildID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return settings, nil
}

type fakeCategoryRepo struct {
	categories []domain.Category
}

func (r *fakeCategoryRepo) Create(ctx context.Context, category *domain.Category) error {
	r.categories = append(r.categories, *category)
	return nil
}

func (r *fakeCategoryRepo) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	for _, c := range r.categories {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCategoryRepo) ListByGuild(ctx context.Context, guildID string) ([]domain.Category, error) {
	var out []domain.Category
	for _, c := range r.categories {
		if c.GuildID == guildID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCategoryRepo) Delete(ctx context.Context, id string) error {
	return nil
}

// sentRecord captures one outbound message for assertions.
type sentRecord struct {
	ChannelID string
	Content   string
	Files     int
}

// fakeClient is a scriptable platform client.
type fakeClient struct {
	mu sync.Mutex

	dmErr      error
	sendErr    error
	webhookErr error
	threadErr  error

	threadSeq   int
	sent        []sentRecord
	webhooks    []platform.WebhookSend
	lockedIDs   []string
	archivedIDs []string
	threadTags  map[string][]string
	forumTags   map[string][]platform.ForumTag
	tagSeq      int
	listCalls   int
	setCalls    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		threadTags: make(map[string][]string),
		forumTags:  make(map[string][]platform.ForumTag),
	}
}

func (c *fakeClient) CreateDMChannel(ctx context.Context, userID string) (string, error) {
	if c.dmErr != nil {
		return "", c.dmErr
	}
	return "dm-" + userID, nil
}

func (c *fakeClient) SendMessage(ctx context.Context, channelID string, req platform.SendRequest) (*platform.SentMessage, error) {
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.mu.Lock()
	c.sent = append(c.sent, sentRecord{ChannelID: channelID, Content: req.Content, Files: len(req.Files)})
	c.mu.Unlock()
	return &platform.SentMessage{MessageID: fmt.Sprintf("m-%d", len(c.sent)), ChannelID: channelID}, nil
}

func (c *fakeClient) CreateThread(ctx context.Context, forumChannelID string, req platform.ThreadCreate) (string, error) {
	if c.threadErr != nil {
		return "", c.threadErr
	}
	c.mu.Lock()
	c.threadSeq++
	id := fmt.Sprintf("thread-%d", c.threadSeq)
	c.mu.Unlock()
	return id, nil
}

func (c *fakeClient) LockThread(ctx context.Context, threadID string) error {
	c.mu.Lock()
	c.lockedIDs = append(c.lockedIDs, threadID)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) ArchiveThread(ctx context.Context, threadID string) error {
	c.mu.Lock()
	c.archivedIDs = append(c.archivedIDs, threadID)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) ListForumTags(ctx context.Context, forumChannelID string) ([]platform.ForumTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	return append([]platform.ForumTag{}, c.forumTags[forumChannelID]...), nil
}

func (c *fakeClient) CreateForumTag(ctx context.Context, forumChannelID, name string) (*platform.ForumTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tagSeq++
	tag := platform.ForumTag{ID: fmt.Sprintf("tag-%d", c.tagSeq), Name: name}
	c.forumTags[forumChannelID] = append(c.forumTags[forumChannelID], tag)
	return &tag, nil
}

func (c *fakeClient) SetThreadTags(ctx context.Context, threadID string, tagIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCalls++
	c.threadTags[threadID] = append([]string{}, tagIDs...)
	return nil
}

func (c *fakeClient) SendWebhook(ctx context.Context, forumChannelID string, send platform.WebhookSend) (*platform.SentMessage, error) {
	if c.webhookErr != nil {
		return nil, c.webhookErr
	}
	c.mu.Lock()
	c.webhooks = append(c.webhooks, send)
	n := len(c.webhooks)
	c.mu.Unlock()
	return &platform.SentMessage{MessageID: fmt.Sprintf("wh-%d", n), ChannelID: send.ThreadID}, nil
}

func (c *fakeClient) MemberDisplayName(ctx context.Context, guildID, userID string) (string, string, error) {
	return "Member " + userID, "https://cdn.example/" + userID + ".png", nil
}

func (c *fakeClient) MemberHasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	return true, nil
}

func (c *fakeClient) sentTo(channelID string) []sentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentRecord
	for _, rec := range c.sent {
		if rec.ChannelID == channelID {
			out = append(out, rec)
		}
	}
	return out
}

func (c *fakeClient) sentContaining(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, rec := range c.sent {
		if strings.Contains(rec.Content, substr) {
			n++
		}
	}
	return n
}

// fakeCache is an in-memory Cache. With permissive set, SetNX always
// succeeds so rate limiting stays out of unrelated tests.
type fakeCache struct {
	mu         sync.Mutex
	values     map[string]string
	permissive bool
}

func newFakeCache(permissive bool) *fakeCache {
	return &fakeCache{values: make(map[string]string), permissive: permissive}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return val, nil
}

func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *fakeCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if c.permissive {
		return true, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = value
	return true, nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

type lifecycleFixture struct {
	tickets  *fakeTicketRepo
	messages *fakeMessageRepo
	guilds   *fakeGuildRepo
	client   *fakeClient
	cache    *fakeCache
	tags     *service.TagService
	svc      *service.LifecycleService
}

func newLifecycleFixture(permissiveCache bool) *lifecycleFixture {
	tickets := newFakeTicketRepo()
	messages := &fakeMessageRepo{}
	guilds := &fakeGuildRepo{settings: map[string]*domain.GuildSettings{
		"g1": {
			GuildID:          "g1",
			ForumChannelID:   "forum-1",
			StaffRoleID:      "role-1",
			DefaultPriority:  domain.TicketPriorityMedium,
			AutoCloseEnabled: true,
		},
	}}
	client := newFakeClient()
	cacheStore := newFakeCache(permissiveCache)
	logger := zap.NewNop()
	tags := service.NewTagService(client, logger)

	svc := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  tickets,
		MessageRepo: messages,
		GuildRepo:   guilds,
		Client:      client,
		Tags:        tags,
		Cache:       cacheStore,
		Dispatcher:  events.NewInMemoryDispatcher(nil),
		Metrics:     observability.NewMetrics(),
		Logger:      logger,
		Config:      testModmailConfig(),
	})
	return &lifecycleFixture{
		tickets:  tickets,
		messages: messages,
		guilds:   guilds,
		client:   client,
		cache:    cacheStore,
		tags:     tags,
		svc:      svc,
	}
}

func (f *lifecycleFixture) relayService() *service.RelayService {
	cfg := config.AttachmentConfig{
		InlineLimitBytes:   8 * 1024 * 1024,
		ExternalLimitBytes: 95 * 1024 * 1024,
		ExternalExpiry:     30 * 24 * time.Hour,
	}
	return service.NewRelayService(service.RelayDependencies{
		TicketRepo:  f.tickets,
		MessageRepo: f.messages,
		Lifecycle:   f.svc,
		Client:      f.client,
		Pipeline:    attachments.NewPipeline(cfg, nil, zap.NewNop()),
		Dispatcher:  events.NewInMemoryDispatcher(nil),
		Metrics:     observability.NewMetrics(),
		Logger:      zap.NewNop(),
		Config:      testModmailConfig(),
	})
}

func (f *lifecycleFixture) openTicket(t testingT, userID string) *domain.Ticket {
	ticket, err := f.svc.OpenTicket(context.Background(), service.OpenTicketInput{
		GuildID:     "g1",
		UserID:      userID,
		DisplayName: "Member " + userID,
		OpenedBy:    userID,
		OpenedVia:   domain.CreatedViaDM,
	})
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	return ticket
}

// testingT keeps the fixture usable from both tests and subtests.
type testingT interface {
	Fatalf(format string, args ...any)
	Helper()
}
