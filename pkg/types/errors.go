package types

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the catalog core wraps exactly one of
// these, so callers can classify with errors.Is regardless of the code.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrCyclicInheritance   = errors.New("cyclic inheritance")
	ErrConditionEvaluation = errors.New("condition evaluation error")
	ErrDuplicate           = errors.New("duplicate")
)

// Stable error codes.
const (
	CodeInvalidField          = "INVALID_FIELD"
	CodeInvalidSchema         = "INVALID_SCHEMA"
	CodeEmptyFields           = "EMPTY_FIELDS"
	CodeReservedField         = "RESERVED_FIELD"
	CodeDuplicateVersion      = "DUPLICATE_SCHEMA_VERSION"
	CodeDuplicateCategory     = "DUPLICATE_CATEGORY"
	CodeInvalidVersion        = "INVALID_VERSION"
	CodeSchemaNotFound        = "SCHEMA_NOT_FOUND"
	CodeParentNotFound        = "PARENT_NOT_FOUND"
	CodeCyclicInheritance     = "CYCLIC_INHERITANCE"
	CodeEmptyOperations       = "EMPTY_OPERATIONS"
	CodeInvalidOperation      = "INVALID_OPERATION"
	CodeVersionMismatch       = "VERSION_MISMATCH"
	CodeMigrationNotFound     = "MIGRATION_NOT_FOUND"
	CodeMigrationApplied      = "MIGRATION_ALREADY_APPLIED"
	CodeMigrationNotApplied   = "MIGRATION_NOT_APPLIED"
	CodeTargetTaken           = "MIGRATION_TARGET_TAKEN"
	CodeTargetMismatch        = "MIGRATION_TARGET_MISMATCH"
	CodeDeviceNotFound        = "DEVICE_NOT_FOUND"
	CodeRuleNotFound          = "RULE_NOT_FOUND"
	CodeInvalidRule           = "INVALID_RULE"
	CodeInvalidCondition      = "INVALID_CONDITION"
	CodeConditionRuntime      = "CONDITION_RUNTIME_ERROR"
	CodeTemplateNotFound      = "TEMPLATE_NOT_FOUND"
	CodeDuplicateTemplate     = "DUPLICATE_TEMPLATE"
	CodeInvalidTemplate       = "INVALID_TEMPLATE"
	CodeInvalidDevice         = "INVALID_DEVICE"
	CodeInvalidSpecifications = "INVALID_SPECIFICATIONS"
)

// Error is the structured error carried across the core boundary. Kind is
// one of the Err* sentinels above; Code is stable and safe to expose.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validationf returns an ErrValidation-kind error.
func Validationf(code, format string, args ...any) error {
	return newError(ErrValidation, code, format, args...)
}

// NotFoundf returns an ErrNotFound-kind error.
func NotFoundf(code, format string, args ...any) error {
	return newError(ErrNotFound, code, format, args...)
}

// InvalidStatef returns an ErrInvalidState-kind error.
func InvalidStatef(code, format string, args ...any) error {
	return newError(ErrInvalidState, code, format, args...)
}

// CyclicInheritancef returns an ErrCyclicInheritance-kind error.
func CyclicInheritancef(format string, args ...any) error {
	return newError(ErrCyclicInheritance, CodeCyclicInheritance, format, args...)
}

// ConditionErrorf returns an ErrConditionEvaluation-kind error.
func ConditionErrorf(code, format string, args ...any) error {
	return newError(ErrConditionEvaluation, code, format, args...)
}

// Duplicatef returns an ErrDuplicate-kind error.
func Duplicatef(code, format string, args ...any) error {
	return newError(ErrDuplicate, code, format, args...)
}

// WithCause attaches a cause to a core error. Non-core errors are returned
// unchanged.
func WithCause(err, cause error) error {
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		cp.Err = cause
		return &cp
	}
	return err
}

// CodeOf returns the stable code of err, or "INTERNAL" when err did not
// originate in the core.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// IsUserError reports whether err is caused by caller input rather than by
// the environment (storage, cancellation).
func IsUserError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrCyclicInheritance) ||
		errors.Is(err, ErrDuplicate)
}
