package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lerndmina/Heimdall-sub004/internal/domain"
)

// CategoryRepository encapsulates category persistence.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	GetByID(ctx context.Context, id string) (*domain.Category, error)
	ListByGuild(ctx context.Context, guildID string) ([]domain.Category, error)
	Delete(ctx context.Context, id string) error
}

type categoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository instantiates repository.
func NewCategoryRepository(pool *pgxpool.Pool) CategoryRepository {
	return &categoryRepository{pool: pool}
}

func (r *categoryRepository) Create(ctx context.Context, category *domain.Category) error {
	if err := category.Validate(); err != nil {
		return err
	}
	fields, err := marshalFields(category.Fields)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO categories (guild_id, name, forum_channel_id, staff_role_id, default_priority, is_default, fields)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		category.GuildID,
		category.Name,
		category.ForumChannelID,
		category.StaffRoleID,
		category.DefaultPriority,
		category.IsDefault,
		fields,
	).Scan(&category.ID, &category.CreatedAt)
}

func (r *categoryRepository) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	const query = `
        SELECT id, guild_id, name, forum_channel_id, staff_role_id, default_priority, is_default, fields, created_at
        FROM categories WHERE id=$1`
	var (
		category domain.Category
		fields   []byte
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&category.ID,
		&category.GuildID,
		&category.Name,
		&category.ForumChannelID,
		&category.StaffRoleID,
		&category.DefaultPriority,
		&category.IsDefault,
		&fields,
		&category.CreatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := unmarshalFields(fields)
	if err != nil {
		return nil, err
	}
	category.Fields = parsed
	return &category, nil
}

func (r *categoryRepository) ListByGuild(ctx context.Context, guildID string) ([]domain.Category, error) {
	const query = `
        SELECT id, guild_id, name, forum_channel_id, staff_role_id, default_priority, is_default, fields, created_at
        FROM categories WHERE guild_id=$1 ORDER BY is_default DESC, name ASC`
	rows, err := r.pool.Query(ctx, query, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var (
			category domain.Category
			fields   []byte
		)
		if err := rows.Scan(
			&category.ID,
			&category.GuildID,
			&category.Name,
			&category.ForumChannelID,
			&category.StaffRoleID,
			&category.DefaultPriority,
			&category.IsDefault,
			&fields,
			&category.CreatedAt,
		); err != nil {
			return nil, err
		}
		parsed, err := unmarshalFields(fields)
		if err != nil {
			return nil, err
		}
		category.Fields = parsed
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (r *categoryRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id=$1`, id)
	return err
}

type formFieldRow struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	MinLen   int      `json:"min_len,omitempty"`
	MaxLen   int      `json:"max_len,omitempty"`
	Options  []string `json:"options,omitempty"`
}

func marshalFields(fields []domain.FormField) ([]byte, error) {
	rows := make([]formFieldRow, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, formFieldRow{
			ID:       f.ID,
			Type:     string(f.Type),
			Label:    f.Label,
			Required: f.Required,
			MinLen:   f.MinLen,
			MaxLen:   f.MaxLen,
			Options:  f.Options,
		})
	}
	return json.Marshal(rows)
}

func unmarshalFields(raw []byte) ([]domain.FormField, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []formFieldRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	fields := make([]domain.FormField, 0, len(rows))
	for _, row := range rows {
		fields = append(fields, domain.FormField{
			ID:       row.ID,
			Type:     domain.FieldType(row.Type),
			Label:    row.Label,
			Required: row.Required,
			MinLen:   row.MinLen,
			MaxLen:   row.MaxLen,
			Options:  row.Options,
		})
	}
	return fields, nil
}
