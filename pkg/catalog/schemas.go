package catalog

import (
	"context"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// GetSchema returns a version of a category, or its latest active version
// when version is empty. A missing schema is an ErrNotFound-kind error.
func (c *Catalog) GetSchema(ctx context.Context, categoryID, version string) (*types.CategorySchema, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.registry.MustGetSchema(ctx, categoryID, version)
}

// GetAllSchemas lists schema versions matching filter.
func (c *Catalog) GetAllSchemas(ctx context.Context, filter types.SchemaFilter) ([]*types.CategorySchema, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.registry.GetAllSchemas(ctx, filter)
}

// Versions lists the versions of a category, oldest first.
func (c *Catalog) Versions(ctx context.Context, categoryID string) ([]string, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.registry.Versions(ctx, categoryID)
}

// RegisterSchema registers a new category or category version.
func (c *Catalog) RegisterSchema(ctx context.Context, schema *types.CategorySchema) (*types.CategorySchema, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.registry.RegisterSchema(ctx, schema)
}

// UpdateSchema registers the next version of a category with u applied.
// When ops is non-nil a pending migration from the superseded version is
// recorded as well.
func (c *Catalog) UpdateSchema(ctx context.Context, categoryID string, u types.SchemaUpdate, ops []types.MigrationOperation) (*types.CategorySchema, *types.Migration, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer done()
	return c.registry.UpdateSchema(ctx, categoryID, u, ops)
}

// DeprecateSchema marks a version deprecated.
func (c *Catalog) DeprecateSchema(ctx context.Context, categoryID, version, message string) (*types.CategorySchema, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.registry.DeprecateSchema(ctx, categoryID, version, message)
}

// ResolveSchema returns a schema with every ancestor's fields merged in.
func (c *Catalog) ResolveSchema(ctx context.Context, categoryID, version string) (*types.CategorySchema, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.registry.ResolveSchema(ctx, categoryID, version)
}

// CreateCategoryFromTemplate registers version 1.0 of a new category seeded
// from a template.
func (c *Catalog) CreateCategoryFromTemplate(ctx context.Context, templateID string, custom types.Customizations) (*types.CategorySchema, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	tmpl := c.templates.Get(templateID)
	if tmpl == nil {
		return nil, types.NotFoundf(types.CodeTemplateNotFound, "template %s not found", templateID)
	}
	return c.registry.CreateCategoryFromTemplate(ctx, tmpl, custom)
}

// RegisterValidator adds a field validator plug-in for fields of type t,
// or for every field when t is empty.
func (c *Catalog) RegisterValidator(t types.FieldType, v types.FieldValidator) {
	c.registry.RegisterValidator(t, v)
}
