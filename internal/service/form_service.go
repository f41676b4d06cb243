package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lerndmina/Heimdall-sub004/internal/config"
	"github.com/lerndmina/Heimdall-sub004/internal/domain"
	"github.com/lerndmina/Heimdall-sub004/internal/platform"
	"github.com/lerndmina/Heimdall-sub004/internal/repository"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

// FormService resolves ticket categories and collects category-specific
// answers before a ticket is created. Each step blocks on one external
// interaction with a bounded wait; abandonment aborts the whole open attempt
// with no partial state committed.
type FormService struct {
	categories repository.CategoryRepository
	guilds     repository.GuildRepository
	prompter   platform.Prompter
	logger     *zap.Logger
	cfg        config.ModmailConfig
}

// FormDependencies bundles collaborators for the form service.
type FormDependencies struct {
	CategoryRepo repository.CategoryRepository
	GuildRepo    repository.GuildRepository
	Prompter     platform.Prompter
	Logger       *zap.Logger
	Config       config.ModmailConfig
}

// NewFormService constructs the service.
func NewFormService(deps FormDependencies) *FormService {
	return &FormService{
		categories: deps.CategoryRepo,
		guilds:     deps.GuildRepo,
		prompter:   deps.Prompter,
		logger:     deps.Logger,
		cfg:        deps.Config,
	}
}

// SelectCategory presents the active category list to the user. When only a
// fieldless default exists, selection is skipped and the default returned
// directly.
func (s *FormService) SelectCategory(ctx context.Context, guildID, userID string) (*domain.EffectiveCategory, error) {
	settings, err := s.guilds.GetByGuild(ctx, guildID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("guild settings", map[string]any{"guild_id": guildID})
		}
		return nil, apperrors.MapError(err)
	}

	categories, err := s.categories.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !hasDefault(categories) {
		categories = append([]domain.Category{domain.DefaultCategory(*settings)}, categories...)
	}

	if len(categories) == 1 && len(categories[0].Fields) == 0 {
		merged := domain.MergeWithGuildDefaults(categories[0], *settings)
		return &merged, nil
	}

	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	picked, err := s.prompter.PromptSelect(ctx, userID, platform.SelectPrompt{
		Title:   "What do you need help with?",
		Options: names,
		Timeout: s.cfg.FormStepWait,
	})
	if err != nil {
		return nil, mapPromptError("category", err)
	}
	if len(picked) != 1 {
		return nil, apperrors.NewValidationError("exactly one category must be selected", nil)
	}
	for _, c := range categories {
		if c.Name == picked[0] {
			merged := domain.MergeWithGuildDefaults(c, *settings)
			return &merged, nil
		}
	}
	return nil, apperrors.NewValidationError("unknown category selected", map[string]any{"selected": picked[0]})
}

// CollectFormResponses walks the category's fields in declared order, one
// prompt per field. Invalid answers re-prompt instead of advancing; after
// the walk a defensive check confirms every required field has a response.
func (s *FormService) CollectFormResponses(ctx context.Context, userID string, category *domain.EffectiveCategory) ([]domain.FormResponse, error) {
	responses := make([]domain.FormResponse, 0, len(category.Fields))
	answered := make(map[string]bool, len(category.Fields))

	for _, field := range category.Fields {
		values, err := s.collectField(ctx, userID, field)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			continue
		}
		resp := domain.FormResponse{
			FieldID:    field.ID,
			FieldLabel: field.Label,
			FieldType:  field.Type,
		}
		if field.Type == domain.FieldTypeMultiSelect {
			resp.Values = values
		} else {
			resp.Value = values[0]
		}
		responses = append(responses, resp)
		answered[field.ID] = true
	}

	missing := []string{}
	for _, field := range category.Fields {
		if field.Required && !answered[field.ID] {
			missing = append(missing, field.ID)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewFormIncomplete(missing)
	}
	return responses, nil
}

// collectField prompts until the answer validates or the step times out.
// Returns no values when an optional field was left empty.
func (s *FormService) collectField(ctx context.Context, userID string, field domain.FormField) ([]string, error) {
	title := field.Label
	for {
		values, err := s.promptOnce(ctx, userID, field, title)
		if err != nil {
			return nil, mapPromptError(field.ID, err)
		}
		if len(values) == 1 && strings.TrimSpace(values[0]) == "" {
			values = nil
		}
		if verr := field.ValidateResponse(values); verr != nil {
			s.logger.Debug("form answer rejected",
				zap.String("field_id", field.ID), zap.Error(verr))
			title = field.Label + " (" + verr.Error() + ")"
			continue
		}
		return values, nil
	}
}

func (s *FormService) promptOnce(ctx context.Context, userID string, field domain.FormField, title string) ([]string, error) {
	if field.Type.IsSelect() {
		maxValues := 1
		if field.Type == domain.FieldTypeMultiSelect {
			maxValues = len(field.Options)
		}
		return s.prompter.PromptSelect(ctx, userID, platform.SelectPrompt{
			Title:     title,
			Options:   field.Options,
			MultiPick: field.Type == domain.FieldTypeMultiSelect,
			MaxValues: maxValues,
			Timeout:   s.cfg.FormStepWait,
		})
	}
	answer, err := s.prompter.PromptModal(ctx, userID, platform.ModalPrompt{
		Title:     title,
		Label:     field.Label,
		LongInput: field.Type == domain.FieldTypeLongText,
		Timeout:   s.cfg.FormStepWait,
	})
	if err != nil {
		return nil, err
	}
	return []string{answer}, nil
}

func mapPromptError(fieldID string, err error) error {
	if errors.Is(err, platform.ErrPromptTimeout) || errors.Is(err, platform.ErrPromptCancelled) {
		return apperrors.NewFormTimeout(fieldID)
	}
	return apperrors.MapError(err)
}

func hasDefault(categories []domain.Category) bool {
	for _, c := range categories {
		if c.IsDefault {
			return true
		}
	}
	return false
}
