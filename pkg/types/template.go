package types

import "slices"

// Template is a reusable starter schema. BaseSchema has no category id or
// version bound until a category is created from it.
type Template struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	BaseSchema  CategorySchema `json:"base_schema" yaml:"base_schema"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Popularity  int            `json:"popularity" yaml:"popularity"`
}

// Validate checks that the template can seed a category.
func (t *Template) Validate() error {
	if t.ID == "" {
		return Validationf(CodeInvalidTemplate, "template id is required")
	}
	if t.Name == "" {
		return Validationf(CodeInvalidTemplate, "template %s: name is required", t.ID)
	}
	probe := t.BaseSchema.Clone()
	probe.CategoryID = t.ID
	probe.Version = InitialVersion
	if err := probe.Validate(); err != nil {
		return WithCause(Validationf(CodeInvalidTemplate, "template %s: invalid base schema", t.ID), err)
	}
	return nil
}

// Clone returns a deep copy; callers may modify it freely.
func (t *Template) Clone() *Template {
	cp := *t
	cp.BaseSchema = *t.BaseSchema.Clone()
	cp.Tags = slices.Clone(t.Tags)
	return &cp
}

// Customizations are applied to a template copy when creating a category.
type Customizations struct {
	CategoryID     string                     `json:"category_id,omitempty"` // derived from Name when empty
	Name           string                     `json:"name,omitempty"`
	Description    string                     `json:"description,omitempty"`
	ParentID       string                     `json:"parent_id,omitempty"`
	Fields         map[string]FieldDefinition `json:"fields,omitempty"` // added or replaced
	RemoveFields   []string                   `json:"remove_fields,omitempty"`
	RequiredFields []string                   `json:"required_fields,omitempty"` // added to the template's list
}
