package domain_test

import (
	"testing"
	"time"

	"github.com/lerndmina/Heimdall-sub004/internal/domain"
)

func TestModmailStatusDerivation(t *testing.T) {
	staff := "staff-1"
	now := time.Now()

	ticket := domain.Ticket{Status: domain.TicketStatusOpen}
	if got := ticket.ModmailStatusOf(); got != domain.ModmailStatusOpen {
		t.Fatalf("expected open, got %s", got)
	}

	ticket.ClaimedBy = &staff
	if got := ticket.ModmailStatusOf(); got != domain.ModmailStatusClaimed {
		t.Fatalf("expected claimed, got %s", got)
	}

	ticket.MarkedResolved = true
	if got := ticket.ModmailStatusOf(); got != domain.ModmailStatusResolved {
		t.Fatalf("expected resolved, got %s", got)
	}

	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &now
	if got := ticket.ModmailStatusOf(); got != domain.ModmailStatusClosed {
		t.Fatalf("expected closed, got %s", got)
	}
}

func TestMergeWithGuildDefaults(t *testing.T) {
	settings := domain.GuildSettings{
		GuildID:          "g1",
		ForumChannelID:   "forum-1",
		StaffRoleID:      "role-1",
		DefaultPriority:  domain.TicketPriorityHigh,
		AutoCloseEnabled: true,
	}

	bare := domain.Category{ID: "c1", GuildID: "g1", Name: "Billing"}
	eff := domain.MergeWithGuildDefaults(bare, settings)
	if eff.ForumChannelID != "forum-1" || eff.StaffRoleID != "role-1" {
		t.Fatalf("guild routing not inherited: %+v", eff)
	}
	if eff.DefaultPriority != domain.TicketPriorityHigh {
		t.Fatalf("guild priority not inherited: %s", eff.DefaultPriority)
	}
	if !eff.AutoCloseEnabled {
		t.Fatal("auto-close flag not inherited")
	}

	custom := domain.Category{ID: "c2", GuildID: "g1", Name: "Bugs", ForumChannelID: "forum-2", DefaultPriority: domain.TicketPriorityLow}
	eff = domain.MergeWithGuildDefaults(custom, settings)
	if eff.ForumChannelID != "forum-2" {
		t.Fatalf("category routing overridden: %s", eff.ForumChannelID)
	}
	if eff.DefaultPriority != domain.TicketPriorityLow {
		t.Fatalf("category priority overridden: %s", eff.DefaultPriority)
	}
}

func TestMergeWithGuildDefaultsFallbackPriority(t *testing.T) {
	eff := domain.MergeWithGuildDefaults(domain.Category{Name: "General"}, domain.GuildSettings{})
	if eff.DefaultPriority != domain.TicketPriorityMedium {
		t.Fatalf("expected medium fallback, got %s", eff.DefaultPriority)
	}
}

func TestParsePriority(t *testing.T) {
	if p, ok := domain.ParsePriority(" High "); !ok || p != domain.TicketPriorityHigh {
		t.Fatalf("expected high, got %q ok=%v", p, ok)
	}
	if _, ok := domain.ParsePriority("critical"); ok {
		t.Fatal("unknown priority accepted")
	}
}

func TestDefaultCategory(t *testing.T) {
	settings := domain.GuildSettings{GuildID: "g9", ForumChannelID: "forum-9", StaffRoleID: "role-9"}
	cat := domain.DefaultCategory(settings)
	if cat.ID != "default:g9" {
		t.Fatalf("unexpected default category id %s", cat.ID)
	}
	if !cat.IsDefault {
		t.Fatal("default category not flagged")
	}
	if cat.ForumChannelID != "forum-9" {
		t.Fatalf("default category routing missing: %s", cat.ForumChannelID)
	}
}
