package domain

import "time"

// GuildSettings holds per-guild modmail defaults. Category-level values win
// over these; MergeWithGuildDefaults resolves the effective configuration.
type GuildSettings struct {
	GuildID          string
	ForumChannelID   string
	StaffRoleID      string
	DefaultPriority  TicketPriority
	MinMessageLength int
	WarningAfter     time.Duration
	AutoCloseAfter   time.Duration
	AutoCloseEnabled bool
	CreatedAt        time.Time
}

// EffectiveCategory is a category with guild defaults merged in. Everything
// downstream of category resolution works on this, so the default category
// needs no special-casing.
type EffectiveCategory struct {
	Category
	StaffRoleID      string
	ForumChannelID   string
	DefaultPriority  TicketPriority
	AutoCloseEnabled bool
}

// MergeWithGuildDefaults fills unset category routing from guild settings.
func MergeWithGuildDefaults(c Category, g GuildSettings) EffectiveCategory {
	eff := EffectiveCategory{
		Category:         c,
		StaffRoleID:      c.StaffRoleID,
		ForumChannelID:   c.ForumChannelID,
		DefaultPriority:  c.DefaultPriority,
		AutoCloseEnabled: g.AutoCloseEnabled,
	}
	if eff.StaffRoleID == "" {
		eff.StaffRoleID = g.StaffRoleID
	}
	if eff.ForumChannelID == "" {
		eff.ForumChannelID = g.ForumChannelID
	}
	if eff.DefaultPriority == "" {
		eff.DefaultPriority = g.DefaultPriority
	}
	if eff.DefaultPriority == "" {
		eff.DefaultPriority = TicketPriorityMedium
	}
	return eff
}

// DefaultCategory synthesizes the always-present default bucket for guilds
// that never configured categories of their own.
func DefaultCategory(g GuildSettings) Category {
	return Category{
		ID:              "default:" + g.GuildID,
		GuildID:         g.GuildID,
		Name:            "General Support",
		ForumChannelID:  g.ForumChannelID,
		StaffRoleID:     g.StaffRoleID,
		DefaultPriority: g.DefaultPriority,
		IsDefault:       true,
	}
}
