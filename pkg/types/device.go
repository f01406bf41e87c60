package types

import (
	"maps"
	"time"
)

// Device is a catalog entry bound to one category schema version. Base
// attributes live on the device; category-specific values live in
// Specifications.
type Device struct {
	DeviceID       string         `json:"device_id"`
	CategoryID     string         `json:"category_id"`
	SchemaVersion  string         `json:"schema_version"`
	Name           string         `json:"name"`
	Brand          string         `json:"brand,omitempty"`
	Model          string         `json:"model,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"` // other reserved base attributes
	Specifications map[string]any `json:"specifications,omitempty"`
	// Revalidate lists fields whose stored values predate a type change.
	Revalidate []string  `json:"revalidate,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Value returns the value of field for this device: the specification value
// when present, else the base attribute for reserved names.
func (d *Device) Value(field string) (any, bool) {
	if v, ok := d.Specifications[field]; ok && v != nil {
		return v, true
	}
	if !IsReservedField(field) {
		return nil, false
	}
	return d.BaseValue(field)
}

// BaseValue returns a reserved base attribute.
func (d *Device) BaseValue(field string) (any, bool) {
	var s string
	switch field {
	case "name":
		s = d.Name
	case "brand":
		s = d.Brand
	case "model":
		s = d.Model
	default:
		v, ok := d.Attributes[field]
		return v, ok && v != nil
	}
	return s, s != ""
}

// Validate checks the device identity and base attributes.
func (d *Device) Validate() error {
	if d.CategoryID == "" {
		return Validationf(CodeInvalidDevice, "device must name a category")
	}
	if d.Name == "" {
		return Validationf(CodeInvalidDevice, "device name is required")
	}
	for k := range d.Attributes {
		if !IsReservedField(k) {
			return Validationf(CodeInvalidDevice, "attribute %q is not a base device attribute", k)
		}
	}
	return nil
}

// Clone returns a copy of the device. Specification values are copied
// shallowly.
func (d *Device) Clone() *Device {
	cp := *d
	cp.Attributes = maps.Clone(d.Attributes)
	cp.Specifications = maps.Clone(d.Specifications)
	cp.Revalidate = append([]string(nil), d.Revalidate...)
	return &cp
}

// DeviceValidation is the result of checking a device against its schema.
type DeviceValidation struct {
	DeviceID      string       `json:"device_id"`
	CategoryID    string       `json:"category_id"`
	SchemaVersion string       `json:"schema_version"`
	Valid         bool         `json:"valid"`
	Issues        []FieldIssue `json:"issues,omitempty"`
}

// FieldIssue is one problem found while validating a device.
type FieldIssue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Device issue codes.
const (
	IssueMissingRequired = "MISSING_REQUIRED"
	IssueUnknownField    = "UNKNOWN_FIELD"
	IssueInvalidValue    = "INVALID_VALUE"
	IssueValidator       = "VALIDATOR"
	IssueRevalidate      = "NEEDS_REVALIDATION"
)
