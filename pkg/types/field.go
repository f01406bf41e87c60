package types

import (
	"fmt"
	"regexp"
	"slices"
)

// FieldType names one of the nine attribute kinds a category schema can
// declare.
type FieldType string

// Field types.
const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldEnum    FieldType = "enum"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
	FieldDate    FieldType = "date"
	FieldURL     FieldType = "url"
	FieldEmail   FieldType = "email"
)

// FieldTypes lists every field type in declaration order.
var FieldTypes = []FieldType{
	FieldString, FieldNumber, FieldBoolean, FieldEnum, FieldArray,
	FieldObject, FieldDate, FieldURL, FieldEmail,
}

// Valid reports whether t is one of the nine field types.
func (t FieldType) Valid() bool {
	return slices.Contains(FieldTypes, t)
}

// Importance ranks how much a field matters to a device listing.
type Importance string

// Importance levels.
const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

var validImportance = map[Importance]bool{
	ImportanceCritical: true,
	ImportanceHigh:     true,
	ImportanceMedium:   true,
	ImportanceLow:      true,
}

// FieldMetadata carries display and scoring hints for a field.
type FieldMetadata struct {
	Label      string     `json:"label,omitempty" yaml:"label,omitempty"`
	Importance Importance `json:"importance,omitempty" yaml:"importance,omitempty"`
	Weight     float64    `json:"weight,omitempty" yaml:"weight,omitempty"` // [0,1], used for confidence scoring.
	Unit       string     `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// FieldDefinition is one attribute of a category schema. The constraint
// payload is typed per field kind; Constraints.Kind() always equals Type.
type FieldDefinition struct {
	Name        string
	Type        FieldType
	Required    bool
	Constraints Constraints
	Metadata    FieldMetadata
}

// fieldNamePattern restricts field names to identifiers so they are safe as
// JSON path segments and condition member names.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidFieldName reports whether name is an acceptable field name.
func ValidFieldName(name string) bool {
	return fieldNamePattern.MatchString(name)
}

// NewField builds a definition with the default constraint payload for t.
func NewField(name string, t FieldType) FieldDefinition {
	return FieldDefinition{Name: name, Type: t, Constraints: DefaultConstraints(t)}
}

// Validate checks the structural invariants of the definition: a known type,
// a constraint payload matching that type, enum options present, numeric
// min not above max, and metadata within range.
func (f FieldDefinition) Validate() error {
	if !ValidFieldName(f.Name) {
		return Validationf(CodeInvalidField, "invalid field name %q", f.Name)
	}
	if !f.Type.Valid() {
		return Validationf(CodeInvalidField, "field %q: unknown type %q", f.Name, f.Type)
	}
	c := f.constraints()
	if c.Kind() != f.Type {
		return Validationf(CodeInvalidField, "field %q: %s constraints on %s field", f.Name, c.Kind(), f.Type)
	}
	if err := c.validate(); err != nil {
		return Validationf(CodeInvalidField, "field %q: %s", f.Name, err)
	}
	if f.Metadata.Importance != "" && !validImportance[f.Metadata.Importance] {
		return Validationf(CodeInvalidField, "field %q: unknown importance %q", f.Name, f.Metadata.Importance)
	}
	if f.Metadata.Weight < 0 || f.Metadata.Weight > 1 {
		return Validationf(CodeInvalidField, "field %q: weight %v outside [0,1]", f.Name, f.Metadata.Weight)
	}
	return nil
}

// ValidateValue checks a stored value against the field kind and
// constraints. A nil value is accepted; required-ness is checked by the
// caller, which knows whether the key was present at all.
func (f FieldDefinition) ValidateValue(v any) error {
	if v == nil {
		return nil
	}
	if err := f.constraints().check(v); err != nil {
		return fmt.Errorf("field %q: %w", f.Name, err)
	}
	return nil
}

// Label returns the display label, falling back to the field name.
func (f FieldDefinition) Label() string {
	if f.Metadata.Label != "" {
		return f.Metadata.Label
	}
	return f.Name
}

// Clone returns a deep copy of the definition.
func (f FieldDefinition) Clone() FieldDefinition {
	cp := f
	if f.Constraints != nil {
		cp.Constraints = f.Constraints.clone()
	}
	return cp
}

// Equal reports whether two definitions describe the same contract.
func (f FieldDefinition) Equal(o FieldDefinition) bool {
	if f.Name != o.Name || f.Type != o.Type || f.Required != o.Required || f.Metadata != o.Metadata {
		return false
	}
	return f.constraints().equal(o.constraints())
}

// constraints returns the payload, substituting the type default when unset.
func (f FieldDefinition) constraints() Constraints {
	if f.Constraints != nil {
		return f.Constraints
	}
	return DefaultConstraints(f.Type)
}
