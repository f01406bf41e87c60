package compat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/devcatalog/internal/logging"
	"github.com/mesh-intelligence/devcatalog/internal/memory"
	"github.com/mesh-intelligence/devcatalog/internal/metrics"
	"github.com/mesh-intelligence/devcatalog/internal/registry"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

type fixture struct {
	store  *memory.Store
	reg    *registry.Registry
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	reg := registry.New(store, registry.WithLogger(logging.Discard()))
	for _, s := range []*types.CategorySchema{
		{CategoryID: "monitor", Version: "1.0", Name: "Monitor", Fields: map[string]types.FieldDefinition{
			"maxResolution": types.NewField("maxResolution", types.FieldString),
			"ports":         {Name: "ports", Type: types.FieldArray, Constraints: &types.ArrayConstraints{ElementType: types.FieldString}},
		}},
		{CategoryID: "gpu", Version: "1.0", Name: "Graphics Card", Fields: map[string]types.FieldDefinition{
			"maxResolution": types.NewField("maxResolution", types.FieldString),
			"outputs":       {Name: "outputs", Type: types.FieldArray, Constraints: &types.ArrayConstraints{ElementType: types.FieldString}},
			"tdp":           types.NewField("tdp", types.FieldNumber),
		}},
	} {
		_, err := reg.RegisterSchema(ctx, s)
		require.NoError(t, err)
	}
	eng := New(reg, store, append([]Option{WithLogger(logging.Discard())}, opts...)...)
	return &fixture{store: store, reg: reg, engine: eng}
}

func (f *fixture) device(t *testing.T, id, category string, specs map[string]any) {
	t.Helper()
	require.NoError(t, f.store.SaveDevice(context.Background(), &types.Device{
		DeviceID: id, CategoryID: category, SchemaVersion: "1.0",
		Name: id, Brand: "Acme", Specifications: specs,
	}))
}

func (f *fixture) rule(t *testing.T, r types.CompatibilityRule) *types.CompatibilityRule {
	t.Helper()
	require.NoError(t, f.store.SaveCompatibilityRule(context.Background(), &r))
	return &r
}

func resolutionRule() types.CompatibilityRule {
	return types.CompatibilityRule{
		SourceCategoryID: "gpu", SourceField: "maxResolution",
		TargetCategoryID: "monitor", TargetField: "maxResolution",
		Condition:         "source === target",
		CompatibilityType: types.CompatibilityFull,
		Message:           "Resolutions match",
	}
}

func TestCheckCompatibility_ResolutionExample(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.device(t, "gpu-4k", "gpu", map[string]any{"maxResolution": "4K"})
	f.device(t, "gpu-hd", "gpu", map[string]any{"maxResolution": "1080p"})
	f.device(t, "mon-4k", "monitor", map[string]any{"maxResolution": "4K"})
	r := f.rule(t, resolutionRule())

	res, err := f.engine.CheckCompatibility(ctx, "gpu-4k", "mon-4k")
	require.NoError(t, err)
	assert.Equal(t, types.CompatibilityFull, res.CompatibilityType)
	assert.Equal(t, "Resolutions match", res.Message)
	assert.Equal(t, []types.RuleEvaluation{{RuleID: r.RuleID, Matched: true, Outcome: types.OutcomeEvaluated}}, res.EvaluatedRules)

	res, err = f.engine.CheckCompatibility(ctx, "gpu-hd", "mon-4k")
	require.NoError(t, err)
	assert.Equal(t, types.CompatibilityNone, res.CompatibilityType)
	assert.Equal(t, "Resolutions match", res.Message)
	require.Len(t, res.EvaluatedRules, 1)
	assert.False(t, res.EvaluatedRules[0].Matched)
}

func TestCheckCompatibility_ReverseDirection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.device(t, "gpu", "gpu", map[string]any{"outputs": []any{"HDMI", "DP"}})
	f.device(t, "mon", "monitor", map[string]any{"ports": []any{"dp", "VGA"}})
	f.rule(t, types.CompatibilityRule{
		SourceCategoryID: "gpu", SourceField: "outputs",
		TargetCategoryID: "monitor", TargetField: "ports",
		Condition:         "source.some(o => target.includes(o))",
		CompatibilityType: types.CompatibilityFull,
	})

	res, err := f.engine.CheckCompatibility(ctx, "mon", "gpu")
	require.NoError(t, err)
	require.Len(t, res.EvaluatedRules, 1)
	assert.True(t, res.EvaluatedRules[0].Reversed)
	assert.True(t, res.EvaluatedRules[0].Matched, "string membership ignores case")
	assert.Equal(t, types.CompatibilityFull, res.CompatibilityType)
	assert.Equal(t, "Devices are fully compatible", res.Message)
}

func TestCheckCompatibility_NoRules(t *testing.T) {
	f := newFixture(t)
	f.device(t, "a", "gpu", nil)
	f.device(t, "b", "monitor", nil)

	res, err := f.engine.CheckCompatibility(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, types.CompatibilityNone, res.CompatibilityType)
	assert.Equal(t, MsgNoData, res.Message)
	assert.Empty(t, res.EvaluatedRules)
}

func TestCheckCompatibility_MissingDevice(t *testing.T) {
	f := newFixture(t)
	f.device(t, "a", "gpu", nil)

	_, err := f.engine.CheckCompatibility(context.Background(), "a", "ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, types.CodeDeviceNotFound, types.CodeOf(err))
}

func TestCheckCompatibility_Dominance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.device(t, "gpu", "gpu", map[string]any{"maxResolution": "4K", "tdp": 250})
	f.device(t, "mon", "monitor", map[string]any{"maxResolution": "4k"})

	f.rule(t, types.CompatibilityRule{
		SourceCategoryID: "gpu", SourceField: "maxResolution",
		TargetCategoryID: "monitor", TargetField: "maxResolution",
		Condition: "source === target", CompatibilityType: types.CompatibilityFull,
		Limitations: []string{"HDR untested"},
	})
	f.rule(t, types.CompatibilityRule{
		SourceCategoryID: "gpu", SourceField: "tdp",
		TargetCategoryID: "monitor", TargetField: "name",
		Condition: "source > 200", CompatibilityType: types.CompatibilityPartial,
		Message:         "High power draw",
		Limitations:     []string{"HDR untested", "Needs 650W PSU"},
		Recommendations: []string{"Check PSU"},
	})

	res, err := f.engine.CheckCompatibility(ctx, "gpu", "mon")
	require.NoError(t, err)
	assert.Equal(t, types.CompatibilityPartial, res.CompatibilityType)
	assert.Equal(t, "High power draw", res.Message)
	assert.Equal(t, []string{"HDR untested", "Needs 650W PSU"}, res.Limitations)
	assert.Equal(t, []string{"Check PSU"}, res.Recommendations)
}

func TestCheckCompatibility_MalformedRuleIsSkipped(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	f := newFixture(t, WithMetrics(m))
	f.device(t, "gpu", "gpu", map[string]any{"maxResolution": "4K"})
	f.device(t, "mon", "monitor", map[string]any{"maxResolution": "4K"})

	bad := f.rule(t, types.CompatibilityRule{
		SourceCategoryID: "gpu", SourceField: "maxResolution",
		TargetCategoryID: "monitor", TargetField: "maxResolution",
		Condition: "source.explode()", CompatibilityType: types.CompatibilityNone,
	})
	good := f.rule(t, resolutionRule())

	res, err := f.engine.CheckCompatibility(ctx, "gpu", "mon")
	require.NoError(t, err)
	assert.Equal(t, types.CompatibilityFull, res.CompatibilityType)

	byID := map[string]types.RuleEvaluation{}
	for _, ev := range res.EvaluatedRules {
		byID[ev.RuleID] = ev
	}
	assert.Equal(t, types.OutcomeError, byID[bad.RuleID].Outcome)
	assert.NotEmpty(t, byID[bad.RuleID].Error)
	assert.Equal(t, types.OutcomeEvaluated, byID[good.RuleID].Outcome)
	assert.True(t, byID[good.RuleID].Matched)
}

func TestCheckCompatibility_InsufficientData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.device(t, "gpu", "gpu", map[string]any{"maxResolution": "4K"})
	f.device(t, "mon", "monitor", map[string]any{})
	f.rule(t, resolutionRule())

	res, err := f.engine.CheckCompatibility(ctx, "gpu", "mon")
	require.NoError(t, err)
	assert.Equal(t, types.CompatibilityNone, res.CompatibilityType)
	assert.Equal(t, MsgInsufficient, res.Message)
	require.Len(t, res.EvaluatedRules, 1)
	assert.Equal(t, types.OutcomeInsufficientData, res.EvaluatedRules[0].Outcome)
}

func TestCheckCompatibility_StaleRuleStillEvaluated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.device(t, "gpu", "gpu", map[string]any{"maxResolution": "4K"})
	f.device(t, "mon", "monitor", map[string]any{"maxResolution": "4K"})
	f.rule(t, resolutionRule())
	_, err := f.store.FlagRulesReferencingField(ctx, "monitor", "maxResolution", "field removed")
	require.NoError(t, err)

	res, err := f.engine.CheckCompatibility(ctx, "gpu", "mon")
	require.NoError(t, err)
	require.Len(t, res.EvaluatedRules, 1)
	assert.True(t, res.EvaluatedRules[0].Stale)
	assert.Equal(t, types.CompatibilityFull, res.CompatibilityType)
}

func TestCheckCompatibility_FieldDroppedFromBoundSchema(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.reg.RegisterSchema(ctx, &types.CategorySchema{
		CategoryID: "monitor", Version: "1.1", Name: "Monitor",
		Fields: map[string]types.FieldDefinition{
			"ports": {Name: "ports", Type: types.FieldArray, Constraints: &types.ArrayConstraints{ElementType: types.FieldString}},
		},
	})
	require.NoError(t, err)

	f.device(t, "gpu", "gpu", map[string]any{"maxResolution": "4K"})
	f.device(t, "mon-old", "monitor", map[string]any{"maxResolution": "4K"})
	require.NoError(t, f.store.SaveDevice(ctx, &types.Device{
		DeviceID: "mon-new", CategoryID: "monitor", SchemaVersion: "1.1",
		Name: "mon-new", Brand: "Acme", Specifications: map[string]any{"maxResolution": "4K"},
	}))
	f.rule(t, resolutionRule())

	res, err := f.engine.CheckCompatibility(ctx, "gpu", "mon-new")
	require.NoError(t, err)
	require.Len(t, res.EvaluatedRules, 1)
	assert.Equal(t, types.OutcomeInsufficientData, res.EvaluatedRules[0].Outcome,
		"leftover value of a dropped field is not evaluated")
	assert.Equal(t, MsgInsufficient, res.Message)

	res, err = f.engine.CheckCompatibility(ctx, "gpu", "mon-old")
	require.NoError(t, err)
	assert.Equal(t, types.CompatibilityFull, res.CompatibilityType)
}

func TestCheckCompatibility_UnknownBoundVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.device(t, "gpu", "gpu", map[string]any{"maxResolution": "4K"})
	require.NoError(t, f.store.SaveDevice(ctx, &types.Device{
		DeviceID: "mon", CategoryID: "monitor", SchemaVersion: "9.9",
		Name: "mon", Brand: "Acme", Specifications: map[string]any{"maxResolution": "4K"},
	}))
	f.rule(t, resolutionRule())

	res, err := f.engine.CheckCompatibility(ctx, "gpu", "mon")
	require.NoError(t, err)
	require.Len(t, res.EvaluatedRules, 1)
	assert.Equal(t, types.OutcomeInsufficientData, res.EvaluatedRules[0].Outcome)
}

func TestCheckCompatibility_ConcurrentChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.device(t, "gpu", "gpu", map[string]any{"maxResolution": "4K"})
	f.device(t, "mon", "monitor", map[string]any{"maxResolution": "4K"})
	f.rule(t, resolutionRule())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.CheckCompatibility(ctx, "gpu", "mon")
			assert.NoError(t, err)
			assert.Equal(t, types.CompatibilityFull, res.CompatibilityType)
		}()
	}
	wg.Wait()
}

func TestCheckMany(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithConcurrency(2))
	f.device(t, "gpu", "gpu", map[string]any{"maxResolution": "4K"})
	f.device(t, "mon", "monitor", map[string]any{"maxResolution": "4K"})
	f.rule(t, resolutionRule())

	out, err := f.engine.CheckMany(ctx, []Pair{
		{SourceDeviceID: "gpu", TargetDeviceID: "mon"},
		{SourceDeviceID: "gpu", TargetDeviceID: "ghost"},
		{SourceDeviceID: "mon", TargetDeviceID: "gpu"},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, types.CompatibilityFull, out[0].Result.CompatibilityType)
	assert.ErrorIs(t, out[1].Err, types.ErrNotFound)
	assert.Nil(t, out[1].Result)
	assert.Equal(t, "mon", out[2].SourceDeviceID)
	assert.Equal(t, types.CompatibilityFull, out[2].Result.CompatibilityType)
}

func TestCreateRule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	valid := resolutionRule()

	got, err := f.engine.CreateRule(ctx, &valid)
	require.NoError(t, err)
	assert.NotEmpty(t, got.RuleID)

	rules, err := f.engine.ListRules(ctx, "gpu")
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	base := resolutionRule()
	base.SourceField = "name"
	_, err = f.engine.CreateRule(ctx, &base)
	assert.NoError(t, err, "reserved base attributes are always readable")

	tests := []struct {
		name   string
		modify func(*types.CompatibilityRule)
		kind   error
	}{
		{"unknown source field", func(r *types.CompatibilityRule) { r.SourceField = "vram" }, types.ErrValidation},
		{"unknown target category", func(r *types.CompatibilityRule) { r.TargetCategoryID = "toaster" }, types.ErrNotFound},
		{"bad type", func(r *types.CompatibilityRule) { r.CompatibilityType = "maybe" }, types.ErrValidation},
		{"disallowed identifier", func(r *types.CompatibilityRule) { r.Condition = "process.exit() || true" }, types.ErrConditionEvaluation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := resolutionRule()
			tc.modify(&r)
			_, err := f.engine.CreateRule(ctx, &r)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}
