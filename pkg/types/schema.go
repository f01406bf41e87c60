package types

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ReservedFieldNames are the base device attributes every device carries
// outside its category specifications. A schema may list them in
// RequiredFields but may not redefine them in Fields.
var ReservedFieldNames = []string{
	"name", "brand", "model", "description",
	"weight", "dimensions", "color", "price", "releaseDate", "imageUrl",
}

// IsReservedField reports whether name is a base device attribute.
func IsReservedField(name string) bool {
	return slices.Contains(ReservedFieldNames, name)
}

// CategorySchema is one immutable version of a category's attribute
// contract. Schemas are append-only: a change produces a new version row.
type CategorySchema struct {
	CategoryID         string                     `json:"category_id" yaml:"category_id,omitempty"`
	Version            string                     `json:"version" yaml:"version,omitempty"`
	Name               string                     `json:"name" yaml:"name"`
	Description        string                     `json:"description,omitempty" yaml:"description,omitempty"`
	ParentID           string                     `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Fields             map[string]FieldDefinition `json:"fields" yaml:"fields"`
	RequiredFields     []string                   `json:"required_fields,omitempty" yaml:"required_fields,omitempty"`
	InheritedFields    []string                   `json:"inherited_fields,omitempty" yaml:"inherited_fields,omitempty"`
	ComputedFields     map[string]string          `json:"computed_fields,omitempty" yaml:"computed_fields,omitempty"`
	ValidationRules    []string                   `json:"validation_rules,omitempty" yaml:"validation_rules,omitempty"`
	CompatibilityRules []string                   `json:"compatibility_rules,omitempty" yaml:"compatibility_rules,omitempty"`
	Deprecated         bool                       `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	DeprecationMessage string                     `json:"deprecation_message,omitempty" yaml:"deprecation_message,omitempty"`
	PreviousVersion    string                     `json:"previous_version,omitempty" yaml:"previous_version,omitempty"`
	CreatedAt          time.Time                  `json:"created_at" yaml:"-"`
}

type schemaAlias CategorySchema

// UnmarshalJSON fills field names from their map keys when omitted.
func (s *CategorySchema) UnmarshalJSON(data []byte) error {
	var a schemaAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = CategorySchema(a)
	s.fillFieldNames()
	return nil
}

// UnmarshalYAML fills field names from their map keys when omitted.
func (s *CategorySchema) UnmarshalYAML(value *yaml.Node) error {
	var a schemaAlias
	if err := value.Decode(&a); err != nil {
		return err
	}
	*s = CategorySchema(a)
	s.fillFieldNames()
	return nil
}

func (s *CategorySchema) fillFieldNames() {
	for k, f := range s.Fields {
		if f.Name == "" {
			f.Name = k
			s.Fields[k] = f
		}
	}
}

// FieldNames returns the field keys in sorted order.
func (s *CategorySchema) FieldNames() []string {
	return slices.Sorted(maps.Keys(s.Fields))
}

// IsRequired reports whether name is required, either through
// RequiredFields or the field's own Required flag.
func (s *CategorySchema) IsRequired(name string) bool {
	if slices.Contains(s.RequiredFields, name) {
		return true
	}
	f, ok := s.Fields[name]
	return ok && f.Required
}

// Clone returns a deep copy. Nil slices and maps stay nil.
func (s *CategorySchema) Clone() *CategorySchema {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Fields != nil {
		cp.Fields = make(map[string]FieldDefinition, len(s.Fields))
		for k, f := range s.Fields {
			cp.Fields[k] = f.Clone()
		}
	}
	cp.RequiredFields = slices.Clone(s.RequiredFields)
	cp.InheritedFields = slices.Clone(s.InheritedFields)
	cp.ComputedFields = maps.Clone(s.ComputedFields)
	cp.ValidationRules = slices.Clone(s.ValidationRules)
	cp.CompatibilityRules = slices.Clone(s.CompatibilityRules)
	return &cp
}

// Validate checks the schema for registration: identity, a non-empty field
// set, valid definitions keyed by their own names, no reserved names among
// the fields, and required fields that refer to known names.
func (s *CategorySchema) Validate() error {
	if s.CategoryID == "" {
		return Validationf(CodeInvalidSchema, "category id is required")
	}
	if !ValidVersion(s.Version) {
		return Validationf(CodeInvalidVersion, "category %s: invalid version %q", s.CategoryID, s.Version)
	}
	if len(s.Fields) == 0 {
		return Validationf(CodeEmptyFields, "category %s version %s: fields must not be empty", s.CategoryID, s.Version)
	}
	for _, k := range s.FieldNames() {
		f := s.Fields[k]
		if IsReservedField(k) {
			return Validationf(CodeReservedField, "category %s: field %q collides with a base device attribute", s.CategoryID, k)
		}
		if f.Name != k {
			return Validationf(CodeInvalidField, "category %s: field key %q does not match name %q", s.CategoryID, k, f.Name)
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(s.RequiredFields))
	for _, r := range s.RequiredFields {
		if seen[r] {
			return Validationf(CodeInvalidSchema, "category %s: required field %q listed twice", s.CategoryID, r)
		}
		seen[r] = true
		_, own := s.Fields[r]
		// Fields of a parent are only known after resolution.
		if !own && !IsReservedField(r) && s.ParentID == "" {
			return Validationf(CodeInvalidSchema, "category %s: required field %q is not defined", s.CategoryID, r)
		}
	}
	return nil
}

// SchemaFilter selects schemas in GetAllSchemas. Nil members match
// everything; set members are combined with AND.
type SchemaFilter struct {
	ParentID   *string
	Deprecated *bool
}

// Match reports whether s satisfies the filter.
func (f SchemaFilter) Match(s *CategorySchema) bool {
	if f.ParentID != nil && s.ParentID != *f.ParentID {
		return false
	}
	if f.Deprecated != nil && s.Deprecated != *f.Deprecated {
		return false
	}
	return true
}

// SchemaUpdate describes the changes merged over the latest version to
// produce a new one.
type SchemaUpdate struct {
	Version      string                     `json:"version,omitempty" yaml:"version,omitempty"` // empty means NextVersion(latest)
	Name         *string                    `json:"name,omitempty" yaml:"name,omitempty"`
	Description  *string                    `json:"description,omitempty" yaml:"description,omitempty"`
	ParentID     *string                    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Fields       map[string]FieldDefinition `json:"fields,omitempty" yaml:"fields,omitempty"` // added or replaced
	RemoveFields []string                   `json:"remove_fields,omitempty" yaml:"remove_fields,omitempty"`
	// RequiredFields replaces the required list when non-nil.
	RequiredFields     []string `json:"required_fields,omitempty" yaml:"required_fields,omitempty"`
	Deprecated         bool     `json:"deprecated,omitempty" yaml:"deprecated,omitempty"` // deprecate the superseded version
	DeprecationMessage string   `json:"deprecation_message,omitempty" yaml:"deprecation_message,omitempty"`
}

// ApplyTo merges the update over cur and returns the candidate next
// version. cur is not modified.
func (u SchemaUpdate) ApplyTo(cur *CategorySchema) (*CategorySchema, error) {
	next := cur.Clone()
	next.Version = u.Version
	if next.Version == "" {
		v, err := NextVersion(cur.Version)
		if err != nil {
			return nil, err
		}
		next.Version = v
	}
	if CompareVersions(next.Version, cur.Version) <= 0 {
		return nil, Validationf(CodeInvalidVersion, "category %s: version %s does not follow %s", cur.CategoryID, next.Version, cur.Version)
	}
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.Description != nil {
		next.Description = *u.Description
	}
	if u.ParentID != nil {
		next.ParentID = *u.ParentID
	}
	if next.Fields == nil {
		next.Fields = make(map[string]FieldDefinition, len(u.Fields))
	}
	for k, f := range u.Fields {
		if f.Name == "" {
			f.Name = k
		}
		next.Fields[k] = f.Clone()
	}
	for _, k := range u.RemoveFields {
		if _, ok := next.Fields[k]; !ok {
			return nil, Validationf(CodeInvalidField, "category %s: cannot remove unknown field %q", cur.CategoryID, k)
		}
		delete(next.Fields, k)
		next.RequiredFields = slices.DeleteFunc(next.RequiredFields, func(r string) bool { return r == k })
	}
	if u.RequiredFields != nil {
		next.RequiredFields = slices.Clone(u.RequiredFields)
	}
	next.InheritedFields = nil
	next.Deprecated = false
	next.DeprecationMessage = ""
	next.PreviousVersion = cur.Version
	next.CreatedAt = time.Time{}
	return next, nil
}

// DiffFields derives the operations that turn the field set old into new.
// Removals come first, then modifications, then additions, each in name
// order.
func DiffFields(old, next map[string]FieldDefinition) []MigrationOperation {
	var removed, modified, added []MigrationOperation
	for _, k := range slices.Sorted(maps.Keys(old)) {
		o := old[k]
		n, ok := next[k]
		switch {
		case !ok:
			removed = append(removed, RemoveField(o))
		case !o.Equal(n):
			modified = append(modified, ModifyField(o, n))
		}
	}
	for _, k := range slices.Sorted(maps.Keys(next)) {
		if _, ok := old[k]; !ok {
			added = append(added, AddField(next[k]))
		}
	}
	return slices.Concat(removed, modified, added)
}
