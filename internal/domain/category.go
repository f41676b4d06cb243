package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Platform component limits for interactive forms.
const (
	MaxFieldsPerCategory  = 25
	MaxSelectFields       = 5
	MaxOptionsPerSelect   = 25
	MaxSelectionLabelSize = 100
)

// FieldType is the closed set of form field variants.
type FieldType string

const (
	FieldTypeShortText    FieldType = "short-text"
	FieldTypeLongText     FieldType = "long-text"
	FieldTypeNumber       FieldType = "number"
	FieldTypeSingleSelect FieldType = "single-select"
	FieldTypeMultiSelect  FieldType = "multi-select"
)

// IsSelect reports whether the field renders as a choice menu.
func (ft FieldType) IsSelect() bool {
	return ft == FieldTypeSingleSelect || ft == FieldTypeMultiSelect
}

// reservedFieldIDs cannot be used as form field IDs; they collide with
// ticket record attributes in transcripts and queries.
var reservedFieldIDs = map[string]struct{}{
	"id":       {},
	"status":   {},
	"category": {},
	"priority": {},
	"user":     {},
	"guild":    {},
}

// IsReservedFieldID reports whether the ID collides with a ticket attribute.
func IsReservedFieldID(id string) bool {
	_, ok := reservedFieldIDs[strings.ToLower(id)]
	return ok
}

// FormField is one question in a category's intake form.
type FormField struct {
	ID       string
	Type     FieldType
	Label    string
	Required bool
	MinLen   int
	MaxLen   int
	Options  []string
}

// FormResponse is a single immutable answer captured at ticket creation.
type FormResponse struct {
	FieldID    string
	FieldLabel string
	FieldType  FieldType
	Value      string
	Values     []string
}

// Category is a named bucket of tickets with its own routing and intake form.
type Category struct {
	ID              string
	GuildID         string
	Name            string
	ForumChannelID  string
	StaffRoleID     string
	DefaultPriority TicketPriority
	IsDefault       bool
	Fields          []FormField
	CreatedAt       time.Time
}

// fieldValidator checks a raw answer for one field variant.
type fieldValidator func(f FormField, values []string) error

// fieldValidators is the dispatch table over the closed FieldType set.
var fieldValidators = map[FieldType]fieldValidator{
	FieldTypeShortText:    validateText,
	FieldTypeLongText:     validateText,
	FieldTypeNumber:       validateNumber,
	FieldTypeSingleSelect: validateSingleSelect,
	FieldTypeMultiSelect:  validateMultiSelect,
}

// ValidateResponse checks a raw answer against the field's constraints.
// An empty answer is valid only for optional fields.
func (f FormField) ValidateResponse(values []string) error {
	if len(values) == 0 || (len(values) == 1 && strings.TrimSpace(values[0]) == "") {
		if f.Required {
			return fmt.Errorf("field %q is required", f.ID)
		}
		return nil
	}
	validate, ok := fieldValidators[f.Type]
	if !ok {
		return fmt.Errorf("field %q has unknown type %q", f.ID, f.Type)
	}
	return validate(f, values)
}

func validateText(f FormField, values []string) error {
	if len(values) != 1 {
		return fmt.Errorf("field %q expects a single value", f.ID)
	}
	v := strings.TrimSpace(values[0])
	if f.MinLen > 0 && len(v) < f.MinLen {
		return fmt.Errorf("field %q must be at least %d characters", f.ID, f.MinLen)
	}
	if f.MaxLen > 0 && len(v) > f.MaxLen {
		return fmt.Errorf("field %q must be at most %d characters", f.ID, f.MaxLen)
	}
	return nil
}

func validateNumber(f FormField, values []string) error {
	if len(values) != 1 {
		return fmt.Errorf("field %q expects a single value", f.ID)
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(values[0]), 64); err != nil {
		return fmt.Errorf("field %q must be numeric", f.ID)
	}
	return nil
}

func validateSingleSelect(f FormField, values []string) error {
	if len(values) != 1 {
		return fmt.Errorf("field %q expects exactly one selection", f.ID)
	}
	return validateOptionMembership(f, values)
}

func validateMultiSelect(f FormField, values []string) error {
	if len(values) > len(f.Options) {
		return fmt.Errorf("field %q has too many selections", f.ID)
	}
	return validateOptionMembership(f, values)
}

func validateOptionMembership(f FormField, values []string) error {
	for _, v := range values {
		found := false
		for _, opt := range f.Options {
			if opt == v {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("field %q has no option %q", f.ID, v)
		}
	}
	return nil
}

// Validate checks the category definition against platform limits.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("category name required")
	}
	if len(c.Fields) > MaxFieldsPerCategory {
		return fmt.Errorf("category %q exceeds %d fields", c.Name, MaxFieldsPerCategory)
	}
	seen := make(map[string]struct{}, len(c.Fields))
	selects := 0
	for _, f := range c.Fields {
		id := strings.ToLower(strings.TrimSpace(f.ID))
		if id == "" {
			return fmt.Errorf("category %q has a field with no id", c.Name)
		}
		if IsReservedFieldID(id) {
			return fmt.Errorf("field id %q is reserved", f.ID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate field id %q", f.ID)
		}
		seen[id] = struct{}{}
		if f.Type.IsSelect() {
			selects++
			if len(f.Options) == 0 {
				return fmt.Errorf("select field %q has no options", f.ID)
			}
			if len(f.Options) > MaxOptionsPerSelect {
				return fmt.Errorf("select field %q exceeds %d options", f.ID, MaxOptionsPerSelect)
			}
		}
	}
	if selects > MaxSelectFields {
		return fmt.Errorf("category %q exceeds %d select fields", c.Name, MaxSelectFields)
	}
	return nil
}
