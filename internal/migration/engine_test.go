package migration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/devcatalog/internal/logging"
	"github.com/mesh-intelligence/devcatalog/internal/memory"
	"github.com/mesh-intelligence/devcatalog/internal/registry"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

type fixture struct {
	store    *memory.Store
	registry *registry.Registry
	engine   *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	reg := registry.New(store, registry.WithLogger(logging.Discard()))
	eng := New(reg, store, append([]Option{WithLogger(logging.Discard())}, opts...)...)
	reg.SetMigrationRecorder(eng)

	_, err := reg.RegisterSchema(context.Background(), monitorSchema())
	require.NoError(t, err)
	return &fixture{store: store, registry: reg, engine: eng}
}

func monitorSchema() *types.CategorySchema {
	return &types.CategorySchema{
		CategoryID: "monitor",
		Version:    "1.0",
		Name:       "Monitor",
		Fields: map[string]types.FieldDefinition{
			"resolution": types.NewField("resolution", types.FieldString),
			"panel":      types.NewField("panel", types.FieldString),
		},
		RequiredFields: []string{"name", "brand", "resolution"},
	}
}

func refreshRate() types.FieldDefinition {
	return types.FieldDefinition{
		Name: "refreshRate",
		Type: types.FieldNumber,
		Constraints: &types.NumberConstraints{
			Min: types.Float(30),
			Max: types.Float(240),
		},
	}
}

func (f *fixture) addMonitors(t *testing.T, n int, specs map[string]any) {
	t.Helper()
	for i := range n {
		d := &types.Device{
			DeviceID:       fmt.Sprintf("mon-%d", i),
			CategoryID:     "monitor",
			SchemaVersion:  "1.0",
			Name:           fmt.Sprintf("Monitor %d", i),
			Brand:          "Acme",
			Specifications: map[string]any{},
		}
		for k, v := range specs {
			d.Specifications[k] = v
		}
		require.NoError(t, f.store.SaveDevice(context.Background(), d))
	}
}

func (f *fixture) device(t *testing.T, id string) *types.Device {
	t.Helper()
	d, err := f.store.LoadDeviceWithSpecifications(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func TestCreateMigration_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	add := []types.MigrationOperation{types.AddField(refreshRate())}

	tests := []struct {
		name string
		req  types.MigrationRequest
		kind error
		code string
	}{
		{"unknown category", types.MigrationRequest{CategoryID: "toaster", Operations: add},
			types.ErrNotFound, types.CodeSchemaNotFound},
		{"no operations", types.MigrationRequest{CategoryID: "monitor"},
			types.ErrValidation, types.CodeEmptyOperations},
		{"stale from version", types.MigrationRequest{CategoryID: "monitor", FromVersion: "0.9", Operations: add},
			types.ErrValidation, types.CodeVersionMismatch},
		{"target not after source", types.MigrationRequest{CategoryID: "monitor", ToVersion: "1.0", Operations: add},
			types.ErrValidation, types.CodeInvalidVersion},
		{"add existing field", types.MigrationRequest{CategoryID: "monitor",
			Operations: []types.MigrationOperation{types.AddField(types.NewField("panel", types.FieldString))}},
			types.ErrValidation, types.CodeInvalidOperation},
		{"remove unknown field", types.MigrationRequest{CategoryID: "monitor",
			Operations: []types.MigrationOperation{{Kind: types.OpRemoveField, Field: "hdr"}}},
			types.ErrValidation, types.CodeInvalidOperation},
		{"add reserved field", types.MigrationRequest{CategoryID: "monitor",
			Operations: []types.MigrationOperation{types.AddField(types.NewField("color", types.FieldString))}},
			types.ErrValidation, types.CodeReservedField},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateMigration(ctx, tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, tc.code, types.CodeOf(err))
		})
	}

	all, err := f.engine.ListMigrations(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all, "rejected requests are not recorded")
}

func TestCreateMigration_Defaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{{Kind: types.OpRemoveField, Field: "panel"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.MigrationID)
	assert.Equal(t, "1.0", m.FromVersion)
	assert.Equal(t, "1.1", m.ToVersion)
	assert.Equal(t, types.MigrationPending, m.Status())
	require.NotNil(t, m.Operations[0].OldDefinition, "removed definition is remembered")
	assert.Equal(t, types.FieldString, m.Operations[0].OldDefinition.Type)

	got, err := f.engine.GetMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.Equal(t, m.Operations, got.Operations)
}

func TestApplyMigration_MonitorScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{types.AddField(refreshRate())},
	})
	require.NoError(t, err)

	res, err := f.engine.ApplyMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.True(t, res.SchemaCreated)
	assert.Empty(t, res.Warnings)
	require.NotNil(t, res.Migration.AppliedAt)

	latest, err := f.registry.GetSchema(ctx, "monitor", "")
	require.NoError(t, err)
	assert.Equal(t, "1.1", latest.Version)
	assert.Contains(t, latest.Fields, "refreshRate")
	assert.Equal(t, []string{"name", "brand", "resolution"}, latest.RequiredFields)

	original, err := f.registry.GetSchema(ctx, "monitor", "1.0")
	require.NoError(t, err)
	assert.NotContains(t, original.Fields, "refreshRate")
	assert.Equal(t, "1.0", original.Version)
}

func TestApplyMigration_StateMachine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }))

	m, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{types.AddField(refreshRate())},
	})
	require.NoError(t, err)

	_, err = f.engine.ApplyMigration(ctx, m.MigrationID)
	require.NoError(t, err)

	stored, err := f.engine.GetMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	require.NotNil(t, stored.AppliedAt)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), *stored.AppliedAt)

	_, err = f.engine.ApplyMigration(ctx, m.MigrationID)
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, types.CodeMigrationApplied, types.CodeOf(err))

	err = f.engine.DeleteMigration(ctx, m.MigrationID)
	assert.ErrorIs(t, err, types.ErrInvalidState)

	pending, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{types.AddField(types.NewField("hdr", types.FieldBoolean))},
	})
	require.NoError(t, err)
	require.NoError(t, f.engine.DeleteMigration(ctx, pending.MigrationID))
	_, err = f.engine.GetMigration(ctx, pending.MigrationID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = f.engine.ApplyMigration(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRollbackMigration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{types.AddField(refreshRate())},
	})
	require.NoError(t, err)

	_, err = f.engine.RollbackMigration(ctx, m.MigrationID)
	assert.ErrorIs(t, err, types.ErrInvalidState, "pending migrations cannot be rolled back")
	assert.Equal(t, types.CodeMigrationNotApplied, types.CodeOf(err))

	_, err = f.engine.ApplyMigration(ctx, m.MigrationID)
	require.NoError(t, err)

	rb, err := f.engine.RollbackMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.NotEqual(t, m.MigrationID, rb.MigrationID)
	assert.Equal(t, m.MigrationID, rb.RollbackOf)
	assert.Equal(t, types.MigrationPending, rb.Status())
	assert.Equal(t, "1.1", rb.FromVersion)
	assert.Equal(t, "1.2", rb.ToVersion)
	require.Len(t, rb.Operations, 1)
	assert.Equal(t, types.OpRemoveField, rb.Operations[0].Kind)
	assert.Equal(t, "refreshRate", rb.Operations[0].Field)

	original, err := f.engine.GetMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.True(t, original.IsApplied(), "the original is not changed")
	require.Len(t, original.Operations, 1)
	assert.Equal(t, types.OpAddField, original.Operations[0].Kind)

	_, err = f.engine.ApplyMigration(ctx, rb.MigrationID)
	require.NoError(t, err)
	latest, err := f.registry.GetSchema(ctx, "monitor", "")
	require.NoError(t, err)
	assert.Equal(t, "1.2", latest.Version)
	assert.NotContains(t, latest.Fields, "refreshRate")
}

func TestApplyMigration_RemoveFieldCleansInPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithPageSize(2))
	f.addMonitors(t, 5, map[string]any{"resolution": "4K", "panel": "IPS"})

	rule := &types.CompatibilityRule{
		SourceCategoryID: "monitor", SourceField: "panel",
		TargetCategoryID: "gpu", TargetField: "outputs",
		Condition: "source === target", CompatibilityType: types.CompatibilityFull,
	}
	require.NoError(t, f.store.SaveCompatibilityRule(ctx, rule))

	m, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{{Kind: types.OpRemoveField, Field: "panel"}},
	})
	require.NoError(t, err)

	res, err := f.engine.ApplyMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"panel": 5}, res.RemovedValues)
	assert.Equal(t, []string{rule.RuleID}, res.StaleRules)
	assert.Empty(t, res.Warnings)

	for i := range 5 {
		d := f.device(t, fmt.Sprintf("mon-%d", i))
		assert.NotContains(t, d.Specifications, "panel")
		assert.Equal(t, "4K", d.Specifications["resolution"])
	}

	rules, err := f.store.LoadRules(ctx, "monitor")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Stale)
	assert.Contains(t, rules[0].StaleReason, "panel")

	again, err := f.engine.purge(ctx, "monitor", "panel")
	require.NoError(t, err)
	assert.Zero(t, again, "cleanup of an absent field is a no-op")
}

func TestApplyMigration_TypeChangeFlagsRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addMonitors(t, 3, map[string]any{"resolution": "4K", "panel": "IPS"})

	old := types.NewField("panel", types.FieldString)
	next := types.FieldDefinition{Name: "panel", Type: types.FieldEnum,
		Constraints: &types.EnumConstraints{Options: []string{"IPS", "VA", "TN"}}}

	m, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{types.ModifyField(old, next)},
	})
	require.NoError(t, err)

	res, err := f.engine.ApplyMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"panel": 3}, res.FlaggedRecords)
	assert.Empty(t, res.RemovedValues)

	d := f.device(t, "mon-0")
	assert.Equal(t, "IPS", d.Specifications["panel"], "values are never coerced")
	assert.Equal(t, []string{"panel"}, d.Revalidate)
}

func TestApplyMigration_ConstraintChangeLeavesData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addMonitors(t, 2, map[string]any{"resolution": "4K"})

	old := types.NewField("resolution", types.FieldString)
	next := types.FieldDefinition{Name: "resolution", Type: types.FieldString,
		Constraints: &types.StringConstraints{MaxLength: types.Int(8)}}
	m, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{types.ModifyField(old, next)},
	})
	require.NoError(t, err)

	res, err := f.engine.ApplyMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.Empty(t, res.FlaggedRecords)
	assert.Empty(t, f.device(t, "mon-1").Revalidate)
}

// flakyStore fails cleanup after the first page.
type flakyStore struct {
	*memory.Store
	calls int
}

func (s *flakyStore) DeleteFieldFromSpecifications(ctx context.Context, categoryID, field string, limit int) (int, error) {
	s.calls++
	if s.calls > 1 {
		return 0, errors.New("database is locked")
	}
	return s.Store.DeleteFieldFromSpecifications(ctx, categoryID, field, limit)
}

func TestApplyMigration_PartialCleanupStillApplies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addMonitors(t, 3, map[string]any{"resolution": "4K", "panel": "IPS"})

	flaky := &flakyStore{Store: f.store}
	eng := New(f.registry, flaky, WithLogger(logging.Discard()), WithPageSize(2))

	m, err := eng.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{{Kind: types.OpRemoveField, Field: "panel"}},
	})
	require.NoError(t, err)

	res, err := eng.ApplyMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RemovedValues["panel"])
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "database is locked")

	stored, err := eng.GetMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.True(t, stored.IsApplied(), "the schema transition stands")
	assert.Equal(t, res.Warnings, stored.Warnings)

	latest, err := f.registry.GetSchema(ctx, "monitor", "")
	require.NoError(t, err)
	assert.NotContains(t, latest.Fields, "panel")

	// Retrying the cleanup finishes the remaining record.
	n, err := f.engine.purge(ctx, "monitor", "panel")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApplyMigration_FailedSchemaTransitionStaysPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m := &types.Migration{
		CategoryID:  "monitor",
		FromVersion: "1.0",
		ToVersion:   "1.1",
		Operations:  []types.MigrationOperation{types.AddField(types.NewField("panel", types.FieldString))},
	}
	require.NoError(t, f.store.SaveMigration(ctx, m))

	_, err := f.engine.ApplyMigration(ctx, m.MigrationID)
	assert.ErrorIs(t, err, types.ErrValidation)

	stored, err := f.engine.GetMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.False(t, stored.IsApplied())
}

func TestApplyMigration_CancelledContextLeavesPending(t *testing.T) {
	f := newFixture(t)
	m, err := f.engine.CreateMigration(context.Background(), types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{types.AddField(refreshRate())},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.engine.ApplyMigration(ctx, m.MigrationID)
	assert.ErrorIs(t, err, context.Canceled)

	stored, err := f.engine.GetMigration(context.Background(), m.MigrationID)
	require.NoError(t, err)
	assert.False(t, stored.IsApplied())
}

func TestUpdateSchema_RecordsLinkedMigration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addMonitors(t, 2, map[string]any{"resolution": "4K", "panel": "IPS"})

	next, m, err := f.registry.UpdateSchema(ctx, "monitor",
		types.SchemaUpdate{RemoveFields: []string{"panel"}},
		[]types.MigrationOperation{{Kind: types.OpRemoveField, Field: "panel"}})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "1.1", next.Version)
	assert.Equal(t, "1.0", m.FromVersion)
	assert.Equal(t, "1.1", m.ToVersion)
	assert.Equal(t, types.MigrationPending, m.Status())

	res, err := f.engine.ApplyMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.False(t, res.SchemaCreated, "the update already registered the target")
	assert.Equal(t, 2, res.RemovedValues["panel"])

	list, err := f.engine.ListMigrations(ctx, "monitor")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsApplied())
}

func TestApplyMigration_RebindsRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithPageSize(2))
	f.addMonitors(t, 5, map[string]any{"resolution": "4K", "panel": "IPS"})

	m, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{{Kind: types.OpRemoveField, Field: "resolution"}},
	})
	require.NoError(t, err)

	res, err := f.engine.ApplyMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.Equal(t, 5, res.ReboundRecords)

	n, err := f.store.CountSpecifications(ctx, "monitor", "1.1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	n, err = f.store.CountSpecifications(ctx, "monitor", "1.0")
	require.NoError(t, err)
	assert.Zero(t, n)

	d := f.device(t, "mon-3")
	assert.Equal(t, "1.1", d.SchemaVersion)
	assert.NotContains(t, d.Specifications, "resolution")

	v, err := f.registry.ValidateDevice(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "1.1", v.SchemaVersion)
	assert.Empty(t, v.Issues, "a removed required field is no longer demanded")
}

func TestCreateMigration_TargetTaken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{types.AddField(refreshRate())},
	})
	require.NoError(t, err)

	_, err = f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{{Kind: types.OpRemoveField, Field: "panel"}},
	})
	assert.ErrorIs(t, err, types.ErrDuplicate, "a pending migration already targets 1.1")
	assert.Equal(t, types.CodeTargetTaken, types.CodeOf(err))

	second, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		ToVersion:  "1.2",
		Operations: []types.MigrationOperation{{Kind: types.OpRemoveField, Field: "panel"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "1.2", second.ToVersion)
}

func TestApplyMigration_TargetMismatchStaysPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addMonitors(t, 2, map[string]any{"resolution": "4K", "panel": "IPS"})

	_, err := f.registry.RegisterSchema(ctx, &types.CategorySchema{
		CategoryID: "monitor", Version: "1.1", Name: "Monitor",
		Fields: map[string]types.FieldDefinition{
			"resolution": types.NewField("resolution", types.FieldString),
			"panel":      types.NewField("panel", types.FieldString),
			"hdr":        types.NewField("hdr", types.FieldBoolean),
		},
		RequiredFields: []string{"name", "brand", "resolution"},
	})
	require.NoError(t, err)

	m := &types.Migration{
		CategoryID:  "monitor",
		FromVersion: "1.0",
		ToVersion:   "1.1",
		Operations:  []types.MigrationOperation{{Kind: types.OpRemoveField, Field: "panel"}},
	}
	require.NoError(t, f.store.SaveMigration(ctx, m))

	_, err = f.engine.ApplyMigration(ctx, m.MigrationID)
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, types.CodeTargetMismatch, types.CodeOf(err))

	stored, err := f.engine.GetMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.False(t, stored.IsApplied())
	d := f.device(t, "mon-0")
	assert.Equal(t, "IPS", d.Specifications["panel"], "data is untouched")
	assert.Equal(t, "1.0", d.SchemaVersion)
}

func TestRecordMigration_OperationsMustProduceTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.registry.UpdateSchema(ctx, "monitor",
		types.SchemaUpdate{RemoveFields: []string{"panel"}},
		[]types.MigrationOperation{types.AddField(refreshRate())})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, types.CodeTargetMismatch, types.CodeOf(err))
}

func TestRollbackMigration_SkipsPendingTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{types.AddField(refreshRate())},
	})
	require.NoError(t, err)
	_, err = f.engine.ApplyMigration(ctx, m.MigrationID)
	require.NoError(t, err)

	pending, err := f.engine.CreateMigration(ctx, types.MigrationRequest{
		CategoryID: "monitor",
		Operations: []types.MigrationOperation{types.AddField(types.NewField("hdr", types.FieldBoolean))},
	})
	require.NoError(t, err)
	require.Equal(t, "1.2", pending.ToVersion)

	rb, err := f.engine.RollbackMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.Equal(t, "1.3", rb.ToVersion)
}
