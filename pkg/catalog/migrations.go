package catalog

import (
	"context"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// CreateMigration records a pending migration.
func (c *Catalog) CreateMigration(ctx context.Context, req types.MigrationRequest) (*types.Migration, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.migrations.CreateMigration(ctx, req)
}

func (c *Catalog) GetMigration(ctx context.Context, id string) (*types.Migration, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.migrations.GetMigration(ctx, id)
}

// ListMigrations lists the migrations of a category, or every migration
// when categoryID is empty.
func (c *Catalog) ListMigrations(ctx context.Context, categoryID string) ([]*types.Migration, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.migrations.ListMigrations(ctx, categoryID)
}

// ApplyMigration moves the category to the migration's target version and
// cleans the stored specifications.
func (c *Catalog) ApplyMigration(ctx context.Context, id string) (*types.ApplyResult, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.migrations.ApplyMigration(ctx, id)
}

func (c *Catalog) RollbackMigration(ctx context.Context, id string) (*types.Migration, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.migrations.RollbackMigration(ctx, id)
}

func (c *Catalog) DeleteMigration(ctx context.Context, id string) error {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	return c.migrations.DeleteMigration(ctx, id)
}

// AnalyzeImpact reports what a proposed change would do to stored data
// without changing anything.
func (c *Catalog) AnalyzeImpact(ctx context.Context, categoryID, currentVersion string, changes types.ProposedChanges) (*types.ImpactReport, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.impact.AnalyzeImpact(ctx, categoryID, currentVersion, changes)
}

// AnalyzeMigration is AnalyzeImpact for a recorded migration.
func (c *Catalog) AnalyzeMigration(ctx context.Context, id string) (*types.ImpactReport, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	m, err := c.migrations.GetMigration(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.impact.AnalyzeMigration(ctx, m)
}
