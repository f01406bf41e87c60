package catalog

import (
	"context"

	"github.com/mesh-intelligence/devcatalog/internal/compat"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// Pair and PairResult are the input and output of CheckMany.
type (
	Pair       = compat.Pair
	PairResult = compat.PairResult
)

// CreateRule validates and stores a compatibility rule.
func (c *Catalog) CreateRule(ctx context.Context, rule *types.CompatibilityRule) (*types.CompatibilityRule, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.compat.CreateRule(ctx, rule)
}

// ListRules lists rules touching a category, or every rule when categoryID
// is empty.
func (c *Catalog) ListRules(ctx context.Context, categoryID string) ([]*types.CompatibilityRule, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.compat.ListRules(ctx, categoryID)
}

// CheckCompatibility evaluates every rule between the categories of two
// devices and aggregates the verdicts.
func (c *Catalog) CheckCompatibility(ctx context.Context, sourceDeviceID, targetDeviceID string) (*types.CompatibilityResult, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.compat.CheckCompatibility(ctx, sourceDeviceID, targetDeviceID)
}

func (c *Catalog) CheckMany(ctx context.Context, pairs []Pair) ([]PairResult, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.compat.CheckMany(ctx, pairs)
}
