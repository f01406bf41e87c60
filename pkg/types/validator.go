package types

import "context"

// ValidationContext tells a FieldValidator where a value comes from.
type ValidationContext struct {
	CategoryID    string
	SchemaVersion string
	DeviceID      string
}

// ValidationOutcome is the verdict of a FieldValidator.
type ValidationOutcome struct {
	Valid   bool
	Message string
}

// FieldValidator is an externally registered check run when a value is
// validated against a field definition.
type FieldValidator interface {
	ValidateField(ctx context.Context, value any, def FieldDefinition, vc ValidationContext) ValidationOutcome
}

// FieldValidatorFunc adapts a function to FieldValidator.
type FieldValidatorFunc func(ctx context.Context, value any, def FieldDefinition, vc ValidationContext) ValidationOutcome

// ValidateField calls f.
func (f FieldValidatorFunc) ValidateField(ctx context.Context, value any, def FieldDefinition, vc ValidationContext) ValidationOutcome {
	return f(ctx, value, def, vc)
}
