package types

import (
	"fmt"
	"slices"
	"time"
)

// OperationKind tags a MigrationOperation.
type OperationKind string

// Operation kinds.
const (
	OpAddField    OperationKind = "add_field"
	OpRemoveField OperationKind = "remove_field"
	OpModifyField OperationKind = "modify_field"
)

var validOperationKinds = map[OperationKind]bool{
	OpAddField:    true,
	OpRemoveField: true,
	OpModifyField: true,
}

// MigrationOperation is one field-level structural change. Which definition
// members are set depends on Kind: add_field uses Definition, remove_field
// keeps the removed definition in OldDefinition so it can be inverted, and
// modify_field carries both OldDefinition and NewDefinition.
type MigrationOperation struct {
	Kind          OperationKind    `json:"kind" yaml:"kind"`
	Field         string           `json:"field" yaml:"field"`
	Definition    *FieldDefinition `json:"definition,omitempty" yaml:"definition,omitempty"`
	OldDefinition *FieldDefinition `json:"old_definition,omitempty" yaml:"old_definition,omitempty"`
	NewDefinition *FieldDefinition `json:"new_definition,omitempty" yaml:"new_definition,omitempty"`
	Description   string           `json:"description" yaml:"description"`
}

// AddField builds an add_field operation.
func AddField(def FieldDefinition) MigrationOperation {
	d := def.Clone()
	return MigrationOperation{
		Kind:        OpAddField,
		Field:       def.Name,
		Definition:  &d,
		Description: fmt.Sprintf("Add field %s (%s)", def.Name, def.Type),
	}
}

// RemoveField builds a remove_field operation that remembers the removed
// definition.
func RemoveField(old FieldDefinition) MigrationOperation {
	d := old.Clone()
	return MigrationOperation{
		Kind:          OpRemoveField,
		Field:         old.Name,
		OldDefinition: &d,
		Description:   fmt.Sprintf("Remove field %s", old.Name),
	}
}

// ModifyField builds a modify_field operation.
func ModifyField(old, next FieldDefinition) MigrationOperation {
	o, n := old.Clone(), next.Clone()
	desc := fmt.Sprintf("Modify field %s", old.Name)
	if old.Type != next.Type {
		desc = fmt.Sprintf("Change type of field %s from %s to %s", old.Name, old.Type, next.Type)
	}
	return MigrationOperation{
		Kind:          OpModifyField,
		Field:         old.Name,
		OldDefinition: &o,
		NewDefinition: &n,
		Description:   desc,
	}
}

// Validate checks the operation shape without reference to a schema.
func (op MigrationOperation) Validate() error {
	if !validOperationKinds[op.Kind] {
		return Validationf(CodeInvalidOperation, "unknown operation kind %q", op.Kind)
	}
	if !ValidFieldName(op.Field) {
		return Validationf(CodeInvalidOperation, "%s: invalid field name %q", op.Kind, op.Field)
	}
	check := func(role string, d *FieldDefinition) error {
		if d == nil {
			return Validationf(CodeInvalidOperation, "%s %s: %s definition is required", op.Kind, op.Field, role)
		}
		if d.Name != op.Field {
			return Validationf(CodeInvalidOperation, "%s %s: %s definition names %q", op.Kind, op.Field, role, d.Name)
		}
		return d.Validate()
	}
	switch op.Kind {
	case OpAddField:
		return check("new", op.Definition)
	case OpModifyField:
		if op.OldDefinition != nil {
			if err := check("old", op.OldDefinition); err != nil {
				return err
			}
		}
		return check("new", op.NewDefinition)
	}
	return nil
}

// TypeChanged reports whether a modify_field changes the field kind.
func (op MigrationOperation) TypeChanged() bool {
	return op.Kind == OpModifyField && op.OldDefinition != nil && op.NewDefinition != nil &&
		op.OldDefinition.Type != op.NewDefinition.Type
}

// Inverse returns the structurally opposite operation: add and remove swap,
// modify swaps its definitions.
func (op MigrationOperation) Inverse() (MigrationOperation, error) {
	switch op.Kind {
	case OpAddField:
		if op.Definition == nil {
			return MigrationOperation{}, Validationf(CodeInvalidOperation, "add_field %s has no definition", op.Field)
		}
		return RemoveField(*op.Definition), nil
	case OpRemoveField:
		if op.OldDefinition == nil {
			return MigrationOperation{}, Validationf(CodeInvalidOperation, "remove_field %s has no recorded definition to restore", op.Field)
		}
		return AddField(*op.OldDefinition), nil
	case OpModifyField:
		if op.OldDefinition == nil || op.NewDefinition == nil {
			return MigrationOperation{}, Validationf(CodeInvalidOperation, "modify_field %s is missing a definition", op.Field)
		}
		return ModifyField(*op.NewDefinition, *op.OldDefinition), nil
	default:
		return MigrationOperation{}, Validationf(CodeInvalidOperation, "unknown operation kind %q", op.Kind)
	}
}

// InverseOperations inverts ops and reverses their order.
func InverseOperations(ops []MigrationOperation) ([]MigrationOperation, error) {
	out := make([]MigrationOperation, 0, len(ops))
	for _, op := range slices.Backward(ops) {
		inv, err := op.Inverse()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// Migration records a transition between two versions of one category.
// A nil AppliedAt means the migration is pending.
type Migration struct {
	MigrationID string               `json:"migration_id"`
	CategoryID  string               `json:"category_id"`
	FromVersion string               `json:"from_version"`
	ToVersion   string               `json:"to_version"`
	Operations  []MigrationOperation `json:"operations"`
	CreatedAt   time.Time            `json:"created_at"`
	AppliedAt   *time.Time           `json:"applied_at,omitempty"`
	RollbackOf  string               `json:"rollback_of,omitempty"` // ID of the migration this one reverses
	Warnings    []string             `json:"warnings,omitempty"`
}

// Migration statuses as reported to callers.
const (
	MigrationPending = "pending"
	MigrationApplied = "applied"
)

// IsApplied reports whether the migration has been applied.
func (m *Migration) IsApplied() bool {
	return m.AppliedAt != nil
}

// Status returns "pending" or "applied".
func (m *Migration) Status() string {
	if m.IsApplied() {
		return MigrationApplied
	}
	return MigrationPending
}

// MarkApplied moves a pending migration to applied. The transition is
// one-way.
func (m *Migration) MarkApplied(at time.Time) error {
	if m.IsApplied() {
		return InvalidStatef(CodeMigrationApplied, "migration %s already applied at %s", m.MigrationID, m.AppliedAt.Format(time.RFC3339))
	}
	t := at.UTC()
	m.AppliedAt = &t
	return nil
}

// Clone returns a deep copy of the migration.
func (m *Migration) Clone() *Migration {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Operations = slices.Clone(m.Operations)
	cp.Warnings = slices.Clone(m.Warnings)
	if m.AppliedAt != nil {
		t := *m.AppliedAt
		cp.AppliedAt = &t
	}
	return &cp
}

// MigrationRequest is the input to CreateMigration.
type MigrationRequest struct {
	CategoryID  string               `json:"category_id"`
	FromVersion string               `json:"from_version"`
	ToVersion   string               `json:"to_version"`
	Operations  []MigrationOperation `json:"operations"`
}

// DeriveSchema applies ops in order to base and returns the resulting
// schema stamped with toVersion. base is not modified. remove_field and
// modify_field operations without an old definition get one filled in from
// base, so the returned operations are always invertible.
func DeriveSchema(base *CategorySchema, toVersion string, ops []MigrationOperation) (*CategorySchema, []MigrationOperation, error) {
	next := base.Clone()
	if next.Fields == nil {
		next.Fields = map[string]FieldDefinition{}
	}
	filled := make([]MigrationOperation, len(ops))
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, nil, err
		}
		cur, exists := next.Fields[op.Field]
		switch op.Kind {
		case OpAddField:
			if exists {
				return nil, nil, Validationf(CodeInvalidOperation, "add_field %s: field already exists", op.Field)
			}
			if IsReservedField(op.Field) {
				return nil, nil, Validationf(CodeReservedField, "add_field %s: collides with a base device attribute", op.Field)
			}
			next.Fields[op.Field] = op.Definition.Clone()
			if op.Definition.Required && !slices.Contains(next.RequiredFields, op.Field) {
				next.RequiredFields = append(next.RequiredFields, op.Field)
			}
		case OpRemoveField:
			if !exists {
				return nil, nil, Validationf(CodeInvalidOperation, "remove_field %s: field does not exist", op.Field)
			}
			if op.OldDefinition == nil {
				d := cur.Clone()
				op.OldDefinition = &d
			}
			delete(next.Fields, op.Field)
			next.RequiredFields = slices.DeleteFunc(next.RequiredFields, func(r string) bool { return r == op.Field })
		case OpModifyField:
			if !exists {
				return nil, nil, Validationf(CodeInvalidOperation, "modify_field %s: field does not exist", op.Field)
			}
			if op.OldDefinition == nil {
				d := cur.Clone()
				op.OldDefinition = &d
			}
			next.Fields[op.Field] = op.NewDefinition.Clone()
			has := slices.Contains(next.RequiredFields, op.Field)
			switch {
			case op.NewDefinition.Required && !has:
				next.RequiredFields = append(next.RequiredFields, op.Field)
			case !op.NewDefinition.Required && has && op.OldDefinition.Required:
				next.RequiredFields = slices.DeleteFunc(next.RequiredFields, func(r string) bool { return r == op.Field })
			}
		}
		filled[i] = op
	}
	next.Version = toVersion
	next.PreviousVersion = base.Version
	next.InheritedFields = nil
	next.Deprecated = false
	next.DeprecationMessage = ""
	next.CreatedAt = time.Time{}
	return next, filled, nil
}

// ApplyResult reports what applying a migration did to stored data. The
// counts are per field. Warnings repeat the non-fatal cleanup failures also
// recorded on the migration.
type ApplyResult struct {
	Migration      *Migration     `json:"migration"`
	SchemaCreated  bool           `json:"schema_created"` // the target version was derived and registered
	RemovedValues  map[string]int `json:"removed_values,omitempty"`
	FlaggedRecords map[string]int `json:"flagged_records,omitempty"`
	ReboundRecords int            `json:"rebound_records"` // records moved onto the target version
	StaleRules     []string       `json:"stale_rules,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
}
