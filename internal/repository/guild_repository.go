package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lerndmina/Heimdall-sub004/internal/domain"
)

// GuildRepository encapsulates per-guild settings persistence.
type GuildRepository interface {
	Upsert(ctx context.Context, settings *domain.GuildSettings) error
	GetByGuild(ctx context.Context, guildID string) (*domain.GuildSettings, error)
}

type guildRepository struct {
	pool *pgxpool.Pool
}

// NewGuildRepository instantiates repository.
func NewGuildRepository(pool *pgxpool.Pool) GuildRepository {
	return &guildRepository{pool: pool}
}

func (r *guildRepository) Upsert(ctx context.Context, settings *domain.GuildSettings) error {
	const query = `
        INSERT INTO guild_settings (guild_id, forum_channel_id, staff_role_id, default_priority,
            min_message_length, warning_after_seconds, auto_close_after_seconds, auto_close_enabled)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (guild_id) DO UPDATE SET
            forum_channel_id=EXCLUDED.forum_channel_id,
            staff_role_id=EXCLUDED.staff_role_id,
            default_priority=EXCLUDED.default_priority,
            min_message_length=EXCLUDED.min_message_length,
            warning_after_seconds=EXCLUDED.warning_after_seconds,
            auto_close_after_seconds=EXCLUDED.auto_close_after_seconds,
            auto_close_enabled=EXCLUDED.auto_close_enabled
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		settings.GuildID,
		settings.ForumChannelID,
		settings.StaffRoleID,
		settings.DefaultPriority,
		settings.MinMessageLength,
		int64(settings.WarningAfter/time.Second),
		int64(settings.AutoCloseAfter/time.Second),
		settings.AutoCloseEnabled,
	).Scan(&settings.CreatedAt)
}

func (r *guildRepository) GetByGuild(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	const query = `
        SELECT guild_id, forum_channel_id, staff_role_id, default_priority, min_message_length,
               warning_after_seconds, auto_close_after_seconds, auto_close_enabled, created_at
        FROM guild_settings WHERE guild_id=$1`
	var (
		settings     domain.GuildSettings
		warningSecs  int64
		autoCloseSec int64
	)
	if err := r.pool.QueryRow(ctx, query, guildID).Scan(
		&settings.GuildID,
		&settings.ForumChannelID,
		&settings.StaffRoleID,
		&settings.DefaultPriority,
		&settings.MinMessageLength,
		&warningSecs,
		&autoCloseSec,
		&settings.AutoCloseEnabled,
		&settings.CreatedAt,
	); err != nil {
		return nil, err
	}
	settings.WarningAfter = time.Duration(warningSecs) * time.Second
	settings.AutoCloseAfter = time.Duration(autoCloseSec) * time.Second
	return &settings, nil
}
