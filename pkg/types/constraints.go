package types

import (
	"errors"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"slices"
	"time"
)

// Constraints is the type-specific payload of a FieldDefinition. The set of
// implementations is closed: one per FieldType.
type Constraints interface {
	Kind() FieldType
	validate() error
	check(v any) error
	clone() Constraints
	equal(Constraints) bool
}

// StringConstraints bound string length and shape.
type StringConstraints struct {
	MinLength *int   `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength *int   `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Pattern   string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// NumberConstraints bound a numeric value.
type NumberConstraints struct {
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Integer bool     `json:"integer,omitempty" yaml:"integer,omitempty"`
}

// BooleanConstraints has no parameters.
type BooleanConstraints struct{}

// EnumConstraints lists the accepted options.
type EnumConstraints struct {
	Options []string `json:"options" yaml:"options"`
}

// ArrayConstraints restrict the element kind and count.
type ArrayConstraints struct {
	ElementType FieldType `json:"element_type" yaml:"element_type"`
	Options     []string  `json:"options,omitempty" yaml:"options,omitempty"` // element whitelist for enum elements
	MinItems    *int      `json:"min_items,omitempty" yaml:"min_items,omitempty"`
	MaxItems    *int      `json:"max_items,omitempty" yaml:"max_items,omitempty"`
}

// ObjectConstraints list keys that must be present in the object.
type ObjectConstraints struct {
	RequiredKeys []string `json:"required_keys,omitempty" yaml:"required_keys,omitempty"`
}

// DateConstraints bound a calendar date (YYYY-MM-DD or RFC 3339).
type DateConstraints struct {
	NotBefore string `json:"not_before,omitempty" yaml:"not_before,omitempty"`
	NotAfter  string `json:"not_after,omitempty" yaml:"not_after,omitempty"`
}

// URLConstraints restrict the scheme.
type URLConstraints struct {
	Schemes []string `json:"schemes,omitempty" yaml:"schemes,omitempty"`
}

// EmailConstraints restrict the domain.
type EmailConstraints struct {
	Domains []string `json:"domains,omitempty" yaml:"domains,omitempty"`
}

var (
	_ Constraints = (*StringConstraints)(nil)
	_ Constraints = (*NumberConstraints)(nil)
	_ Constraints = (*BooleanConstraints)(nil)
	_ Constraints = (*EnumConstraints)(nil)
	_ Constraints = (*ArrayConstraints)(nil)
	_ Constraints = (*ObjectConstraints)(nil)
	_ Constraints = (*DateConstraints)(nil)
	_ Constraints = (*URLConstraints)(nil)
	_ Constraints = (*EmailConstraints)(nil)
)

// DefaultConstraints returns the empty payload for t. Unknown types get a
// payload whose validate reports the bad type.
func DefaultConstraints(t FieldType) Constraints {
	switch t {
	case FieldString:
		return &StringConstraints{}
	case FieldNumber:
		return &NumberConstraints{}
	case FieldBoolean:
		return &BooleanConstraints{}
	case FieldEnum:
		return &EnumConstraints{}
	case FieldArray:
		return &ArrayConstraints{ElementType: FieldString}
	case FieldObject:
		return &ObjectConstraints{}
	case FieldDate:
		return &DateConstraints{}
	case FieldURL:
		return &URLConstraints{}
	case FieldEmail:
		return &EmailConstraints{}
	default:
		return unknownConstraints{t}
	}
}

// unknownConstraints stands in for an unrecognized type so Validate can
// report it instead of panicking on a nil payload.
type unknownConstraints struct{ t FieldType }

func (u unknownConstraints) Kind() FieldType          { return u.t }
func (u unknownConstraints) validate() error          { return fmt.Errorf("unknown type %q", u.t) }
func (u unknownConstraints) check(any) error          { return fmt.Errorf("unknown type %q", u.t) }
func (u unknownConstraints) clone() Constraints       { return u }
func (u unknownConstraints) equal(o Constraints) bool { return o.Kind() == u.t }

var errTypeMismatch = errors.New("type mismatch")

// String.

func (c *StringConstraints) Kind() FieldType { return FieldString }

func (c *StringConstraints) validate() error {
	if c.MinLength != nil && *c.MinLength < 0 {
		return errors.New("min_length must not be negative")
	}
	if c.MinLength != nil && c.MaxLength != nil && *c.MinLength > *c.MaxLength {
		return fmt.Errorf("min_length %d exceeds max_length %d", *c.MinLength, *c.MaxLength)
	}
	if c.Pattern != "" {
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
	}
	return nil
}

func (c *StringConstraints) check(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: want string, got %T", errTypeMismatch, v)
	}
	n := len([]rune(s))
	if c.MinLength != nil && n < *c.MinLength {
		return fmt.Errorf("length %d below minimum %d", n, *c.MinLength)
	}
	if c.MaxLength != nil && n > *c.MaxLength {
		return fmt.Errorf("length %d above maximum %d", n, *c.MaxLength)
	}
	if c.Pattern != "" {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return err
		}
		if !re.MatchString(s) {
			return fmt.Errorf("%q does not match pattern %q", s, c.Pattern)
		}
	}
	return nil
}

func (c *StringConstraints) clone() Constraints {
	cp := *c
	cp.MinLength = cloneInt(c.MinLength)
	cp.MaxLength = cloneInt(c.MaxLength)
	return &cp
}

func (c *StringConstraints) equal(o Constraints) bool {
	x, ok := o.(*StringConstraints)
	return ok && eqInt(c.MinLength, x.MinLength) && eqInt(c.MaxLength, x.MaxLength) && c.Pattern == x.Pattern
}

// Number.

func (c *NumberConstraints) Kind() FieldType { return FieldNumber }

func (c *NumberConstraints) validate() error {
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return fmt.Errorf("min %v exceeds max %v", *c.Min, *c.Max)
	}
	return nil
}

func (c *NumberConstraints) check(v any) error {
	n, ok := ToFloat(v)
	if !ok {
		return fmt.Errorf("%w: want number, got %T", errTypeMismatch, v)
	}
	if c.Integer && n != math.Trunc(n) {
		return fmt.Errorf("%v is not an integer", n)
	}
	if c.Min != nil && n < *c.Min {
		return fmt.Errorf("%v below minimum %v", n, *c.Min)
	}
	if c.Max != nil && n > *c.Max {
		return fmt.Errorf("%v above maximum %v", n, *c.Max)
	}
	return nil
}

func (c *NumberConstraints) clone() Constraints {
	cp := *c
	cp.Min = cloneFloat(c.Min)
	cp.Max = cloneFloat(c.Max)
	return &cp
}

func (c *NumberConstraints) equal(o Constraints) bool {
	x, ok := o.(*NumberConstraints)
	return ok && eqFloat(c.Min, x.Min) && eqFloat(c.Max, x.Max) && c.Integer == x.Integer
}

// Boolean.

func (c *BooleanConstraints) Kind() FieldType { return FieldBoolean }
func (c *BooleanConstraints) validate() error { return nil }

func (c *BooleanConstraints) check(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("%w: want boolean, got %T", errTypeMismatch, v)
	}
	return nil
}

func (c *BooleanConstraints) clone() Constraints { return &BooleanConstraints{} }

func (c *BooleanConstraints) equal(o Constraints) bool {
	_, ok := o.(*BooleanConstraints)
	return ok
}

// Enum.

func (c *EnumConstraints) Kind() FieldType { return FieldEnum }

func (c *EnumConstraints) validate() error {
	if len(c.Options) == 0 {
		return errors.New("enum requires at least one option")
	}
	seen := make(map[string]bool, len(c.Options))
	for _, o := range c.Options {
		if seen[o] {
			return fmt.Errorf("duplicate enum option %q", o)
		}
		seen[o] = true
	}
	return nil
}

func (c *EnumConstraints) check(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: want string option, got %T", errTypeMismatch, v)
	}
	if !slices.Contains(c.Options, s) {
		return fmt.Errorf("%q is not one of %v", s, c.Options)
	}
	return nil
}

func (c *EnumConstraints) clone() Constraints {
	return &EnumConstraints{Options: slices.Clone(c.Options)}
}

func (c *EnumConstraints) equal(o Constraints) bool {
	x, ok := o.(*EnumConstraints)
	return ok && slices.Equal(c.Options, x.Options)
}

// Array.

func (c *ArrayConstraints) Kind() FieldType { return FieldArray }

func (c *ArrayConstraints) validate() error {
	switch c.ElementType {
	case FieldArray, FieldObject:
		return fmt.Errorf("unsupported array element type %q", c.ElementType)
	}
	if !c.ElementType.Valid() {
		return fmt.Errorf("unknown array element type %q", c.ElementType)
	}
	if c.ElementType == FieldEnum && len(c.Options) == 0 {
		return errors.New("enum elements require options")
	}
	if c.MinItems != nil && c.MaxItems != nil && *c.MinItems > *c.MaxItems {
		return fmt.Errorf("min_items %d exceeds max_items %d", *c.MinItems, *c.MaxItems)
	}
	return nil
}

func (c *ArrayConstraints) check(v any) error {
	items, ok := ToSlice(v)
	if !ok {
		return fmt.Errorf("%w: want array, got %T", errTypeMismatch, v)
	}
	if c.MinItems != nil && len(items) < *c.MinItems {
		return fmt.Errorf("%d items below minimum %d", len(items), *c.MinItems)
	}
	if c.MaxItems != nil && len(items) > *c.MaxItems {
		return fmt.Errorf("%d items above maximum %d", len(items), *c.MaxItems)
	}
	elem := DefaultConstraints(c.ElementType)
	if c.ElementType == FieldEnum {
		elem = &EnumConstraints{Options: c.Options}
	}
	for i, item := range items {
		if err := elem.check(item); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func (c *ArrayConstraints) clone() Constraints {
	cp := *c
	cp.Options = slices.Clone(c.Options)
	cp.MinItems = cloneInt(c.MinItems)
	cp.MaxItems = cloneInt(c.MaxItems)
	return &cp
}

func (c *ArrayConstraints) equal(o Constraints) bool {
	x, ok := o.(*ArrayConstraints)
	return ok && c.ElementType == x.ElementType && slices.Equal(c.Options, x.Options) &&
		eqInt(c.MinItems, x.MinItems) && eqInt(c.MaxItems, x.MaxItems)
}

// Object.

func (c *ObjectConstraints) Kind() FieldType { return FieldObject }
func (c *ObjectConstraints) validate() error { return nil }

func (c *ObjectConstraints) check(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: want object, got %T", errTypeMismatch, v)
	}
	for _, k := range c.RequiredKeys {
		if _, ok := m[k]; !ok {
			return fmt.Errorf("missing key %q", k)
		}
	}
	return nil
}

func (c *ObjectConstraints) clone() Constraints {
	return &ObjectConstraints{RequiredKeys: slices.Clone(c.RequiredKeys)}
}

func (c *ObjectConstraints) equal(o Constraints) bool {
	x, ok := o.(*ObjectConstraints)
	return ok && slices.Equal(c.RequiredKeys, x.RequiredKeys)
}

// Date.

func (c *DateConstraints) Kind() FieldType { return FieldDate }

func (c *DateConstraints) validate() error {
	var lo, hi time.Time
	var err error
	if c.NotBefore != "" {
		if lo, err = ParseDate(c.NotBefore); err != nil {
			return fmt.Errorf("not_before: %w", err)
		}
	}
	if c.NotAfter != "" {
		if hi, err = ParseDate(c.NotAfter); err != nil {
			return fmt.Errorf("not_after: %w", err)
		}
	}
	if !lo.IsZero() && !hi.IsZero() && lo.After(hi) {
		return errors.New("not_before is after not_after")
	}
	return nil
}

func (c *DateConstraints) check(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: want date string, got %T", errTypeMismatch, v)
	}
	d, err := ParseDate(s)
	if err != nil {
		return err
	}
	if c.NotBefore != "" {
		if lo, _ := ParseDate(c.NotBefore); d.Before(lo) {
			return fmt.Errorf("%s is before %s", s, c.NotBefore)
		}
	}
	if c.NotAfter != "" {
		if hi, _ := ParseDate(c.NotAfter); d.After(hi) {
			return fmt.Errorf("%s is after %s", s, c.NotAfter)
		}
	}
	return nil
}

func (c *DateConstraints) clone() Constraints { cp := *c; return &cp }

func (c *DateConstraints) equal(o Constraints) bool {
	x, ok := o.(*DateConstraints)
	return ok && *c == *x
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// URL.

func (c *URLConstraints) Kind() FieldType { return FieldURL }
func (c *URLConstraints) validate() error { return nil }

func (c *URLConstraints) check(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: want url string, got %T", errTypeMismatch, v)
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid url %q", s)
	}
	if len(c.Schemes) > 0 && !slices.Contains(c.Schemes, u.Scheme) {
		return fmt.Errorf("scheme %q not allowed", u.Scheme)
	}
	return nil
}

func (c *URLConstraints) clone() Constraints {
	return &URLConstraints{Schemes: slices.Clone(c.Schemes)}
}

func (c *URLConstraints) equal(o Constraints) bool {
	x, ok := o.(*URLConstraints)
	return ok && slices.Equal(c.Schemes, x.Schemes)
}

// Email.

func (c *EmailConstraints) Kind() FieldType { return FieldEmail }
func (c *EmailConstraints) validate() error { return nil }

func (c *EmailConstraints) check(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: want email string, got %T", errTypeMismatch, v)
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("invalid email %q", s)
	}
	if len(c.Domains) > 0 {
		at := len(s) - 1
		for at >= 0 && s[at] != '@' {
			at--
		}
		if !slices.Contains(c.Domains, s[at+1:]) {
			return fmt.Errorf("domain %q not allowed", s[at+1:])
		}
	}
	return nil
}

func (c *EmailConstraints) clone() Constraints {
	return &EmailConstraints{Domains: slices.Clone(c.Domains)}
}

func (c *EmailConstraints) equal(o Constraints) bool {
	x, ok := o.(*EmailConstraints)
	return ok && slices.Equal(c.Domains, x.Domains)
}

// Value helpers shared by validation and the condition evaluator.

// ToFloat converts any Go numeric type to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ToSlice converts []any and []string to []any.
func ToSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	default:
		return nil, false
	}
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func eqInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Float returns a pointer to v, for building NumberConstraints literals.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
