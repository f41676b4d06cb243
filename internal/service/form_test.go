package service_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/lerndmina/Heimdall-sub004/internal/domain"
	"github.com/lerndmina/Heimdall-sub004/internal/platform"
	"github.com/lerndmina/Heimdall-sub004/internal/service"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

// scriptedPrompter replays a fixed sequence of responses.
type scriptedPrompter struct {
	selects     [][]string
	selectErrs  []error
	modals      []string
	modalErrs   []error
	selectCalls int
	modalCalls  int
	titles      []string
}

func (p *scriptedPrompter) PromptSelect(ctx context.Context, userID string, prompt platform.SelectPrompt) ([]string, error) {
	p.titles = append(p.titles, prompt.Title)
	i := p.selectCalls
	p.selectCalls++
	if i < len(p.selectErrs) && p.selectErrs[i] != nil {
		return nil, p.selectErrs[i]
	}
	if i < len(p.selects) {
		return p.selects[i], nil
	}
	return nil, platform.ErrPromptTimeout
}

func (p *scriptedPrompter) PromptModal(ctx context.Context, userID string, prompt platform.ModalPrompt) (string, error) {
	p.titles = append(p.titles, prompt.Title)
	i := p.modalCalls
	p.modalCalls++
	if i < len(p.modalErrs) && p.modalErrs[i] != nil {
		return "", p.modalErrs[i]
	}
	if i < len(p.modals) {
		return p.modals[i], nil
	}
	return "", platform.ErrPromptTimeout
}

func newFormService(prompter platform.Prompter, categories []domain.Category) *service.FormService {
	guilds := &fakeGuildRepo{settings: map[string]*domain.GuildSettings{
		"g1": {
			GuildID:         "g1",
			ForumChannelID:  "forum-1",
			StaffRoleID:     "role-1",
			DefaultPriority: domain.TicketPriorityMedium,
		},
	}}
	return service.NewFormService(service.FormDependencies{
		CategoryRepo: &fakeCategoryRepo{categories: categories},
		GuildRepo:    guilds,
		Prompter:     prompter,
		Logger:       zap.NewNop(),
		Config:       testModmailConfig(),
	})
}

func TestSelectCategorySkipsSingleFieldlessDefault(t *testing.T) {
	prompter := &scriptedPrompter{}
	svc := newFormService(prompter, nil)

	category, err := svc.SelectCategory(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if !category.IsDefault {
		t.Fatal("expected synthesized default category")
	}
	if category.ForumChannelID != "forum-1" {
		t.Fatalf("guild routing not merged: %s", category.ForumChannelID)
	}
	if prompter.selectCalls != 0 {
		t.Fatal("selection must be skipped for a lone fieldless default")
	}
}

func TestSelectCategoryPromptsWhenMultiple(t *testing.T) {
	prompter := &scriptedPrompter{selects: [][]string{{"Billing"}}}
	svc := newFormService(prompter, []domain.Category{
		{ID: "c1", GuildID: "g1", Name: "Billing", DefaultPriority: domain.TicketPriorityHigh},
		{ID: "c2", GuildID: "g1", Name: "Bugs"},
	})

	category, err := svc.SelectCategory(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if category.Name != "Billing" {
		t.Fatalf("wrong category %s", category.Name)
	}
	if category.DefaultPriority != domain.TicketPriorityHigh {
		t.Fatalf("category priority lost: %s", category.DefaultPriority)
	}
	if prompter.selectCalls != 1 {
		t.Fatalf("expected one prompt, got %d", prompter.selectCalls)
	}
}

func TestSelectCategoryTimeoutBecomesFormTimeout(t *testing.T) {
	prompter := &scriptedPrompter{selectErrs: []error{platform.ErrPromptTimeout}}
	svc := newFormService(prompter, []domain.Category{
		{ID: "c1", GuildID: "g1", Name: "Billing"},
		{ID: "c2", GuildID: "g1", Name: "Bugs"},
	})

	_, err := svc.SelectCategory(context.Background(), "g1", "u1")
	if !errors.Is(err, apperrors.ErrFormTimeout) {
		t.Fatalf("expected form timeout, got %v", err)
	}
}

func formCategory(fields ...domain.FormField) *domain.EffectiveCategory {
	return &domain.EffectiveCategory{
		Category: domain.Category{
			ID:      "c1",
			GuildID: "g1",
			Name:    "Support",
			Fields:  fields,
		},
	}
}

func TestCollectFormResponsesWalksFieldsInOrder(t *testing.T) {
	prompter := &scriptedPrompter{
		modals:  []string{"cannot log in"},
		selects: [][]string{{"high"}},
	}
	svc := newFormService(prompter, nil)

	responses, err := svc.CollectFormResponses(context.Background(), "u1", formCategory(
		domain.FormField{ID: "summary", Type: domain.FieldTypeShortText, Label: "Summary", Required: true},
		domain.FormField{ID: "severity", Type: domain.FieldTypeSingleSelect, Label: "Severity", Required: true, Options: []string{"low", "high"}},
	))
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("expected two responses, got %d", len(responses))
	}
	if responses[0].FieldID != "summary" || responses[0].Value != "cannot log in" {
		t.Fatalf("unexpected first response %+v", responses[0])
	}
	if responses[1].FieldID != "severity" || responses[1].Value != "high" {
		t.Fatalf("unexpected second response %+v", responses[1])
	}
}

func TestCollectFormResponsesMultiSelectKeepsValues(t *testing.T) {
	prompter := &scriptedPrompter{selects: [][]string{{"billing", "bug"}}}
	svc := newFormService(prompter, nil)

	responses, err := svc.CollectFormResponses(context.Background(), "u1", formCategory(
		domain.FormField{ID: "areas", Type: domain.FieldTypeMultiSelect, Label: "Areas", Options: []string{"billing", "account", "bug"}},
	))
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(responses) != 1 || len(responses[0].Values) != 2 {
		t.Fatalf("unexpected responses %+v", responses)
	}
}

func TestCollectFormResponsesRePromptsOnInvalidAnswer(t *testing.T) {
	prompter := &scriptedPrompter{modals: []string{"no", "forty-two", "42"}}
	svc := newFormService(prompter, nil)

	responses, err := svc.CollectFormResponses(context.Background(), "u1", formCategory(
		domain.FormField{ID: "qty", Type: domain.FieldTypeNumber, Label: "Quantity", Required: true},
	))
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if responses[0].Value != "42" {
		t.Fatalf("expected final valid answer, got %q", responses[0].Value)
	}
	if prompter.modalCalls != 3 {
		t.Fatalf("expected three prompts, got %d", prompter.modalCalls)
	}
	// re-prompt titles carry the validation error
	if prompter.titles[1] == "Quantity" {
		t.Fatal("re-prompt title must be annotated")
	}
}

func TestCollectFormResponsesOptionalEmptySkipped(t *testing.T) {
	prompter := &scriptedPrompter{modals: []string{""}}
	svc := newFormService(prompter, nil)

	responses, err := svc.CollectFormResponses(context.Background(), "u1", formCategory(
		domain.FormField{ID: "extra", Type: domain.FieldTypeShortText, Label: "Anything else?"},
	))
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(responses) != 0 {
		t.Fatalf("optional empty answer must be skipped, got %+v", responses)
	}
}

func TestCollectFormResponsesTimeoutAbortsWholeForm(t *testing.T) {
	prompter := &scriptedPrompter{
		modals:    []string{"first answer"},
		modalErrs: []error{nil, platform.ErrPromptTimeout},
	}
	svc := newFormService(prompter, nil)

	_, err := svc.CollectFormResponses(context.Background(), "u1", formCategory(
		domain.FormField{ID: "summary", Type: domain.FieldTypeShortText, Label: "Summary", Required: true},
		domain.FormField{ID: "details", Type: domain.FieldTypeLongText, Label: "Details", Required: true},
	))
	if !errors.Is(err, apperrors.ErrFormTimeout) {
		t.Fatalf("expected form timeout, got %v", err)
	}
}
