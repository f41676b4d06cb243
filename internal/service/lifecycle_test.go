package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/lerndmina/Heimdall-sub004/internal/domain"
	"github.com/lerndmina/Heimdall-sub004/internal/service"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

func TestOpenTicketAssignsNumberAndThread(t *testing.T) {
	f := newLifecycleFixture(true)

	first := f.openTicket(t, "u1")
	if first.TicketNumber != 1 {
		t.Fatalf("expected ticket number 1, got %d", first.TicketNumber)
	}
	if first.SharedThreadID == "" {
		t.Fatal("expected shared thread")
	}
	if first.Status != domain.TicketStatusOpen {
		t.Fatalf("expected open status, got %s", first.Status)
	}
	if first.ChannelID != "forum-1" {
		t.Fatalf("expected guild forum container, got %s", first.ChannelID)
	}

	second := f.openTicket(t, "u2")
	if second.TicketNumber != 2 {
		t.Fatalf("expected monotonic numbering, got %d", second.TicketNumber)
	}
}

func TestOpenTicketEnforcesOneOpenPerUser(t *testing.T) {
	f := newLifecycleFixture(true)
	f.openTicket(t, "u1")

	_, err := f.svc.OpenTicket(context.Background(), service.OpenTicketInput{
		GuildID:   "g1",
		UserID:    "u1",
		OpenedBy:  "u1",
		OpenedVia: domain.CreatedViaDM,
	})
	if !errors.Is(err, apperrors.ErrTicketAlreadyOpen) {
		t.Fatalf("expected already-open error, got %v", err)
	}
}

func TestOpenTicketConcurrentOpensYieldOneTicket(t *testing.T) {
	f := newLifecycleFixture(true)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.OpenTicket(context.Background(), service.OpenTicketInput{
				GuildID:   "g1",
				UserID:    "u1",
				OpenedBy:  "u1",
				OpenedVia: domain.CreatedViaDM,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, apperrors.ErrTicketAlreadyOpen) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful open, got %d", succeeded)
	}
}

func TestOpenTicketRateLimited(t *testing.T) {
	f := newLifecycleFixture(false)
	f.openTicket(t, "u1")

	_, err := f.svc.OpenTicket(context.Background(), service.OpenTicketInput{
		GuildID:   "g1",
		UserID:    "u1",
		OpenedBy:  "u1",
		OpenedVia: domain.CreatedViaDM,
	})
	if !errors.Is(err, apperrors.ErrOpenRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestOpenTicketByStaffClaimsImmediately(t *testing.T) {
	f := newLifecycleFixture(true)

	ticket, err := f.svc.OpenTicket(context.Background(), service.OpenTicketInput{
		GuildID:   "g1",
		UserID:    "u1",
		OpenedBy:  "staff-1",
		OpenedVia: domain.CreatedViaCommand,
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if ticket.ClaimedBy == nil || *ticket.ClaimedBy != "staff-1" {
		t.Fatalf("expected immediate claim by opener, got %+v", ticket.ClaimedBy)
	}
	if ticket.CreatedVia != domain.CreatedViaCommand {
		t.Fatalf("expected command origin, got %s", ticket.CreatedVia)
	}
}

func TestClaimIdempotentForSameStaff(t *testing.T) {
	f := newLifecycleFixture(true)
	ticket := f.openTicket(t, "u1")

	claimed, err := f.svc.Claim(context.Background(), ticket.ID, "staff-1")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.ClaimedBy == nil || *claimed.ClaimedBy != "staff-1" {
		t.Fatal("claim not recorded")
	}

	if _, err := f.svc.Claim(context.Background(), ticket.ID, "staff-1"); err != nil {
		t.Fatalf("re-claim by same staff must be a no-op: %v", err)
	}

	_, err = f.svc.Claim(context.Background(), ticket.ID, "staff-2")
	if !errors.Is(err, apperrors.ErrTicketAlreadyClaimed) {
		t.Fatalf("expected already-claimed error, got %v", err)
	}
}

func TestSetPriorityPersistsAndIsIdempotent(t *testing.T) {
	f := newLifecycleFixture(true)
	ticket := f.openTicket(t, "u1")

	updated, err := f.svc.SetPriority(context.Background(), ticket.ID, "staff-1", domain.TicketPriorityUrgent)
	if err != nil {
		t.Fatalf("set priority failed: %v", err)
	}
	if updated.Priority != domain.TicketPriorityUrgent {
		t.Fatalf("priority not updated: %s", updated.Priority)
	}

	again, err := f.svc.SetPriority(context.Background(), ticket.ID, "staff-1", domain.TicketPriorityUrgent)
	if err != nil {
		t.Fatalf("repeated set priority failed: %v", err)
	}
	if again.Priority != domain.TicketPriorityUrgent {
		t.Fatalf("priority lost on repeat: %s", again.Priority)
	}
}

func TestMarkResolvedSchedulesAutoCloseAndNotifiesBothSides(t *testing.T) {
	f := newLifecycleFixture(true)
	ticket := f.openTicket(t, "u1")

	resolved, err := f.svc.MarkResolved(context.Background(), ticket.ID, "staff-1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolved.MarkedResolved || resolved.ResolvedAt == nil {
		t.Fatal("resolution not recorded")
	}
	if resolved.AutoCloseScheduledAt == nil {
		t.Fatal("expected scheduled auto-close")
	}
	wantClose := resolved.ResolvedAt.Add(testModmailConfig().ResolveAutoClose)
	if got := *resolved.AutoCloseScheduledAt; got.Sub(wantClose) > time.Second || wantClose.Sub(got) > time.Second {
		t.Fatalf("auto-close scheduled at %v, want about %v", got, wantClose)
	}

	if n := f.client.sentContaining("marked resolved"); n < 2 {
		t.Fatalf("expected resolution notice to both sides, got %d", n)
	}

	_, err = f.svc.MarkResolved(context.Background(), ticket.ID, "staff-1")
	if !errors.Is(err, apperrors.ErrTicketAlreadyResolved) {
		t.Fatalf("expected already-resolved error, got %v", err)
	}
}

func TestCloseIsTerminalAndIdempotent(t *testing.T) {
	f := newLifecycleFixture(true)
	ticket := f.openTicket(t, "u1")

	closed, err := f.svc.Close(context.Background(), ticket.ID, "staff-1", "handled")
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !closed.IsClosed() || closed.ClosedReason == nil || *closed.ClosedReason != "handled" {
		t.Fatalf("close not recorded: %+v", closed)
	}
	if len(f.client.lockedIDs) != 1 || len(f.client.archivedIDs) != 1 {
		t.Fatal("expected thread locked and archived")
	}

	again, err := f.svc.Close(context.Background(), ticket.ID, "staff-2", "duplicate")
	if err != nil {
		t.Fatalf("duplicate close must be a no-op: %v", err)
	}
	if *again.ClosedBy != "staff-1" {
		t.Fatal("duplicate close must not overwrite the original")
	}
	if len(f.client.lockedIDs) != 1 {
		t.Fatal("duplicate close must not touch the thread again")
	}
}

func TestResumeOnNewUserActivityClearsResolution(t *testing.T) {
	f := newLifecycleFixture(true)
	ticket := f.openTicket(t, "u1")
	if _, err := f.svc.MarkResolved(context.Background(), ticket.ID, "staff-1"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	resumed, err := f.svc.ResumeOnNewUserActivity(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if resumed.MarkedResolved || resumed.ResolvedAt != nil || resumed.AutoCloseScheduledAt != nil {
		t.Fatalf("resolution state not cleared: %+v", resumed)
	}
	if resumed.InactivityWarningSentAt != nil {
		t.Fatal("warning marker not cleared")
	}
}

func TestResumeOnClosedTicketIsNoOp(t *testing.T) {
	f := newLifecycleFixture(true)
	ticket := f.openTicket(t, "u1")
	if _, err := f.svc.Close(context.Background(), ticket.ID, "staff-1", "done"); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	resumed, err := f.svc.ResumeOnNewUserActivity(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("resume on closed must not fail: %v", err)
	}
	if !resumed.IsClosed() {
		t.Fatal("closed ticket must stay closed")
	}
}

func TestTicketByThreadMemoizesNegativeLookups(t *testing.T) {
	f := newLifecycleFixture(true)

	if _, err := f.svc.TicketByThread(context.Background(), "random-thread"); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if _, ok := f.cache.values["not-ticket:random-thread"]; !ok {
		t.Fatal("expected negative lookup memoized")
	}

	ticket := f.openTicket(t, "u1")
	found, err := f.svc.TicketByThread(context.Background(), ticket.SharedThreadID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found.ID != ticket.ID {
		t.Fatalf("wrong ticket resolved: %s", found.ID)
	}
}

func TestOpenTicketArchivesThreadWhenCreateLosesRace(t *testing.T) {
	f := newLifecycleFixture(true)
	f.tickets.createErr = apperrors.ErrTicketAlreadyOpen

	_, err := f.svc.OpenTicket(context.Background(), service.OpenTicketInput{
		GuildID:     "g1",
		UserID:      "u1",
		DisplayName: "Some User",
		OpenedVia:   domain.CreatedViaDM,
	})
	if !errors.Is(err, apperrors.ErrTicketAlreadyOpen) {
		t.Fatalf("expected already-open error, got %v", err)
	}
	if len(f.client.archivedIDs) != 1 || f.client.archivedIDs[0] != "thread-1" {
		t.Fatalf("lost-race thread not archived: %v", f.client.archivedIDs)
	}
}

func TestOpenTicketClearsStaleNegativeThreadMemoization(t *testing.T) {
	f := newLifecycleFixture(true)

	// A message raced the open and memoized the soon-to-be thread as
	// not a ticket.
	f.cache.values["not-ticket:thread-1"] = "1"

	ticket := f.openTicket(t, "u1")
	if ticket.SharedThreadID != "thread-1" {
		t.Fatalf("fixture drift: expected thread-1, got %s", ticket.SharedThreadID)
	}
	if _, ok := f.cache.values["not-ticket:thread-1"]; ok {
		t.Fatal("negative memoization not cleared on open")
	}

	found, err := f.svc.TicketByThread(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("lookup after open failed: %v", err)
	}
	if found.ID != ticket.ID {
		t.Fatalf("wrong ticket resolved: %s", found.ID)
	}
}

func TestGateOpeningMessage(t *testing.T) {
	cfg := testModmailConfig()

	short := "my thing broke please fix"
	if _, _, err := service.GateOpeningMessage(short, cfg.MinMessageLength, cfg.ForceOpenMarker); !errors.Is(err, apperrors.ErrMessageTooShort) {
		t.Fatalf("expected short-message rejection, got %v", err)
	}

	content, forced, err := service.GateOpeningMessage(short+" --force", cfg.MinMessageLength, cfg.ForceOpenMarker)
	if err != nil {
		t.Fatalf("forced message rejected: %v", err)
	}
	if !forced {
		t.Fatal("force marker not detected")
	}
	if strings.Contains(content, "--force") {
		t.Fatalf("marker not stripped: %q", content)
	}

	long := strings.Repeat("my thing broke ", 5)
	if _, forced, err := service.GateOpeningMessage(long, cfg.MinMessageLength, cfg.ForceOpenMarker); err != nil || forced {
		t.Fatalf("long message should pass unforced: forced=%v err=%v", forced, err)
	}

	// 27 runes but 81 bytes; the minimum counts characters, not bytes.
	cjk := strings.Repeat("故障", 13) + "。"
	if _, _, err := service.GateOpeningMessage(cjk, cfg.MinMessageLength, cfg.ForceOpenMarker); !errors.Is(err, apperrors.ErrMessageTooShort) {
		t.Fatalf("short multi-byte message must be rejected, got %v", err)
	}
}

func TestThreadNameBounded(t *testing.T) {
	claimant := "staff-1"
	name := service.ThreadName("Some User", &claimant, strings.Repeat("a very long first message ", 20))
	if len(name) > 100 {
		t.Fatalf("thread name exceeds platform limit: %d", len(name))
	}
	if !strings.HasPrefix(name, "Some User | staff-1 | ") {
		t.Fatalf("unexpected name shape: %q", name)
	}

	unclaimed := service.ThreadName("Some User", nil, "")
	if unclaimed != "Some User | unknown | no message" {
		t.Fatalf("unexpected unclaimed name: %q", unclaimed)
	}

	multiByte := service.ThreadName("ユーザー", &claimant, strings.Repeat("障害が発生しました", 20))
	if utf8.RuneCountInString(multiByte) > 100 {
		t.Fatalf("thread name exceeds platform limit: %d runes", utf8.RuneCountInString(multiByte))
	}
	if !utf8.ValidString(multiByte) {
		t.Fatalf("truncation split a rune: %q", multiByte)
	}
}
