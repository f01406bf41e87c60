package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// AddDevice stores a device after checking it against its schema. An
// unbound device is bound to the latest active version of its category.
// A device with issues is rejected with CodeInvalidSpecifications.
func (c *Catalog) AddDevice(ctx context.Context, d *types.Device) (*types.Device, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	schema, err := c.registry.MustGetSchema(ctx, d.CategoryID, d.SchemaVersion)
	if err != nil {
		return nil, err
	}
	dev := d.Clone()
	dev.SchemaVersion = schema.Version
	dev.Revalidate = nil

	v, err := c.registry.ValidateDevice(ctx, dev)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, types.Validationf(types.CodeInvalidSpecifications, "device %s: %s", dev.Name, summarize(v.Issues))
	}

	if err := c.store.SaveDevice(ctx, dev); err != nil {
		return nil, fmt.Errorf("save device: %w", err)
	}
	c.logger.InfoContext(ctx, "device added", "device", dev.DeviceID,
		"category", dev.CategoryID, "version", dev.SchemaVersion)
	return dev, nil
}

// GetDevice returns a device with its specifications.
func (c *Catalog) GetDevice(ctx context.Context, id string) (*types.Device, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.device(ctx, id)
}

// ValidateDevice checks a stored device against its schema version.
func (c *Catalog) ValidateDevice(ctx context.Context, id string) (*types.DeviceValidation, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	d, err := c.device(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.registry.ValidateDevice(ctx, d)
}

func (c *Catalog) device(ctx context.Context, id string) (*types.Device, error) {
	d, err := c.store.LoadDeviceWithSpecifications(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load device %s: %w", id, err)
	}
	if d == nil {
		return nil, types.NotFoundf(types.CodeDeviceNotFound, "device %s not found", id)
	}
	return d, nil
}

func summarize(issues []types.FieldIssue) string {
	parts := make([]string, len(issues))
	for i, is := range issues {
		parts[i] = is.Message
	}
	return strings.Join(parts, "; ")
}
