package registry

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// ValidateDevice checks a device against the schema version it is bound to
// (the latest active version when unbound), with inheritance resolved.
// Problems with the device data are reported as issues; only a missing
// schema or an index failure is returned as an error.
func (r *Registry) ValidateDevice(ctx context.Context, d *types.Device) (*types.DeviceValidation, error) {
	schema, err := r.ResolveSchema(ctx, d.CategoryID, d.SchemaVersion)
	if err != nil {
		return nil, err
	}

	res := &types.DeviceValidation{
		DeviceID:      d.DeviceID,
		CategoryID:    d.CategoryID,
		SchemaVersion: schema.Version,
	}
	issue := func(field, code, format string, args ...any) {
		res.Issues = append(res.Issues, types.FieldIssue{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	for _, name := range schema.RequiredFields {
		if _, ok := d.Value(name); !ok {
			issue(name, types.IssueMissingRequired, "required field %s is missing", name)
		}
	}

	vc := types.ValidationContext{CategoryID: d.CategoryID, SchemaVersion: schema.Version, DeviceID: d.DeviceID}
	for name, value := range d.Specifications {
		def, ok := schema.Fields[name]
		if !ok {
			issue(name, types.IssueUnknownField, "field %s is not defined by %s@%s", name, schema.CategoryID, schema.Version)
			continue
		}
		if value == nil {
			continue
		}
		if err := def.ValidateValue(value); err != nil {
			code := types.IssueInvalidValue
			if slices.Contains(d.Revalidate, name) {
				code = types.IssueRevalidate
			}
			issue(name, code, "%v", err)
			continue
		}
		for _, v := range r.validatorsFor(def.Type) {
			if out := v.ValidateField(ctx, value, def, vc); !out.Valid {
				issue(name, types.IssueValidator, "%s", out.Message)
			}
		}
	}

	slices.SortFunc(res.Issues, func(a, b types.FieldIssue) int {
		return cmp.Or(cmp.Compare(a.Field, b.Field), cmp.Compare(a.Code, b.Code))
	})
	res.Valid = len(res.Issues) == 0
	return res, nil
}
