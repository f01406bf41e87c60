package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func monitorSchema(version string) *types.CategorySchema {
	return &types.CategorySchema{
		CategoryID: "monitor",
		Version:    version,
		Name:       "Monitor",
		Fields: map[string]types.FieldDefinition{
			"resolution": types.NewField("resolution", types.FieldString),
			"refreshRate": {
				Name:        "refreshRate",
				Type:        types.FieldNumber,
				Constraints: &types.NumberConstraints{Min: types.Float(30), Max: types.Float(240)},
			},
		},
		RequiredFields: []string{"name", "resolution"},
		CreatedAt:      time.Now().UTC(),
	}
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(filepath.Join(dir, DBFile))
	require.NoError(t, err, "database file should exist after Open")
	assert.False(t, info.IsDir())
	assert.Equal(t, filepath.Join(dir, DBFile), s.Path())
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, s1.SaveSchema(ctx, monitorSchema("1.0")))
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, dir)
	require.NoError(t, err, "reopening an up-to-date database must succeed")
	defer s2.Close()

	schemas, err := s2.LoadSchemas(ctx)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "monitor", schemas[0].CategoryID)
}

func TestOpen_RequiresDataDir(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrDataDirRequired)
}

func TestClose_Idempotent(t *testing.T) {
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.LoadSchemas(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.SaveSchema(context.Background(), monitorSchema("1.0")), ErrClosed)
}

func TestSchemas_RoundTripAndUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v1 := monitorSchema("1.0")
	require.NoError(t, s.SaveSchema(ctx, v1))
	require.NoError(t, s.SaveSchema(ctx, monitorSchema("1.1")))

	v1.Deprecated = true
	v1.DeprecationMessage = "use 1.1"
	require.NoError(t, s.SaveSchema(ctx, v1), "saving the same version again updates it")

	schemas, err := s.LoadSchemas(ctx)
	require.NoError(t, err)
	require.Len(t, schemas, 2)

	byVersion := map[string]*types.CategorySchema{}
	for _, sc := range schemas {
		byVersion[sc.Version] = sc
	}
	got := byVersion["1.0"]
	require.NotNil(t, got)
	assert.True(t, got.Deprecated)
	assert.Equal(t, "use 1.1", got.DeprecationMessage)
	assert.True(t, got.Fields["refreshRate"].Equal(v1.Fields["refreshRate"]), "constraints survive storage")
	assert.Equal(t, []string{"name", "resolution"}, got.RequiredFields)
}

func TestMigrations_CRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := &types.Migration{
		CategoryID:  "monitor",
		FromVersion: "1.0",
		ToVersion:   "1.1",
		Operations:  []types.MigrationOperation{types.AddField(types.NewField("hdr", types.FieldBoolean))},
	}
	require.NoError(t, s.SaveMigration(ctx, m))
	require.NotEmpty(t, m.MigrationID, "an id is assigned")

	got, err := s.LoadMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	assert.Equal(t, "monitor", got.CategoryID)
	assert.False(t, got.IsApplied())
	require.Len(t, got.Operations, 1)
	assert.Equal(t, types.OpAddField, got.Operations[0].Kind)
	assert.Equal(t, types.FieldBoolean, got.Operations[0].Definition.Type)

	applied := time.Now().UTC()
	require.NoError(t, got.MarkApplied(applied))
	got.Warnings = []string{"1 record could not be cleaned"}
	require.NoError(t, s.SaveMigration(ctx, got))

	again, err := s.LoadMigration(ctx, m.MigrationID)
	require.NoError(t, err)
	require.NotNil(t, again.AppliedAt)
	assert.WithinDuration(t, applied, *again.AppliedAt, time.Microsecond)
	assert.Equal(t, got.Warnings, again.Warnings)

	other := &types.Migration{CategoryID: "cable", FromVersion: "1.0", ToVersion: "1.1",
		Operations: []types.MigrationOperation{{Kind: types.OpRemoveField, Field: "length"}}}
	require.NoError(t, s.SaveMigration(ctx, other))

	all, err := s.LoadMigrations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, m.MigrationID, all[0].MigrationID, "oldest first")

	monitors, err := s.LoadMigrations(ctx, "monitor")
	require.NoError(t, err)
	assert.Len(t, monitors, 1)

	require.NoError(t, s.DeleteMigration(ctx, m.MigrationID))
	_, err = s.LoadMigration(ctx, m.MigrationID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, types.CodeMigrationNotFound, types.CodeOf(err))

	err = s.DeleteMigration(ctx, m.MigrationID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDevices_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d, err := s.LoadDeviceWithSpecifications(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, d, "absent device is nil without error")

	dev := &types.Device{
		CategoryID:     "monitor",
		SchemaVersion:  "1.0",
		Name:           "UltraView 27",
		Brand:          "Acme",
		Attributes:     map[string]any{"price": 299.0},
		Specifications: map[string]any{"resolution": "4K", "refreshRate": 144.0},
	}
	require.NoError(t, s.SaveDevice(ctx, dev))
	require.NotEmpty(t, dev.DeviceID)

	got, err := s.LoadDeviceWithSpecifications(ctx, dev.DeviceID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "UltraView 27", got.Name)
	assert.Equal(t, "Acme", got.Brand)
	assert.Equal(t, 299.0, got.Attributes["price"])
	assert.Equal(t, "4K", got.Specifications["resolution"])
	assert.Equal(t, 144.0, got.Specifications["refreshRate"])
	assert.Empty(t, got.Revalidate)

	n, err := s.CountDevices(ctx, "monitor")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountSpecifications(ctx, "monitor", "1.0")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountSpecifications(ctx, "monitor", "1.1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func saveMonitors(t *testing.T, s *Store, n int, withHDR func(i int) bool) {
	t.Helper()
	for i := range n {
		specs := map[string]any{"resolution": "1080p"}
		if withHDR(i) {
			specs["hdr"] = true
		}
		require.NoError(t, s.SaveDevice(context.Background(), &types.Device{
			CategoryID:     "monitor",
			SchemaVersion:  "1.0",
			Name:           "Monitor",
			Specifications: specs,
		}))
	}
}

func TestDeleteFieldFromSpecifications_Pages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	saveMonitors(t, s, 7, func(i int) bool { return i != 3 })

	var pages []int
	for {
		n, err := s.DeleteFieldFromSpecifications(ctx, "monitor", "hdr", 4)
		require.NoError(t, err)
		pages = append(pages, n)
		if n < 4 {
			break
		}
	}
	assert.Equal(t, []int{4, 2}, pages)

	n, err := s.DeleteFieldFromSpecifications(ctx, "monitor", "hdr", 4)
	require.NoError(t, err)
	assert.Zero(t, n, "already removed everywhere")

	n, err = s.DeleteFieldFromSpecifications(ctx, "monitor", "resolution", 100)
	require.NoError(t, err)
	assert.Equal(t, 7, n, "other fields are untouched")

	_, err = s.DeleteFieldFromSpecifications(ctx, "monitor", "hdr", 0)
	assert.Error(t, err)
}

func TestMarkSpecificationsForRevalidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	saveMonitors(t, s, 3, func(i int) bool { return i == 0 })

	n, err := s.MarkSpecificationsForRevalidation(ctx, "monitor", "hdr")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Flagging twice does not duplicate the entry.
	_, err = s.MarkSpecificationsForRevalidation(ctx, "monitor", "hdr")
	require.NoError(t, err)

	var flagged int
	for _, id := range deviceIDs(t, s) {
		d, err := s.LoadDeviceWithSpecifications(ctx, id)
		require.NoError(t, err)
		if len(d.Revalidate) > 0 {
			assert.Equal(t, []string{"hdr"}, d.Revalidate)
			flagged++
		}
	}
	assert.Equal(t, 1, flagged)
}

func deviceIDs(t *testing.T, s *Store) []string {
	t.Helper()
	rows, err := s.db.Query("SELECT device_id FROM devices ORDER BY rowid")
	require.NoError(t, err)
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

func TestRules_LoadAndFlag(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	hdmi := &types.CompatibilityRule{
		SourceCategoryID:  "gaming-console",
		TargetCategoryID:  "monitor",
		SourceField:       "maxResolution",
		TargetField:       "resolution",
		Condition:         "source == target",
		CompatibilityType: types.CompatibilityFull,
		Limitations:       []string{"needs HDMI 2.1"},
	}
	cable := &types.CompatibilityRule{
		SourceCategoryID:  "cable",
		TargetCategoryID:  "monitor",
		SourceField:       "connector",
		TargetField:       "ports",
		Condition:         "target.includes(source)",
		CompatibilityType: types.CompatibilityPartial,
	}
	require.NoError(t, s.SaveCompatibilityRule(ctx, hdmi))
	require.NoError(t, s.SaveCompatibilityRule(ctx, cable))
	require.NotEmpty(t, hdmi.RuleID)

	rules, err := s.LoadCompatibilityRules(ctx, "gaming-console", "monitor")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"needs HDMI 2.1"}, rules[0].Limitations)
	assert.Equal(t, types.CompatibilityFull, rules[0].CompatibilityType)

	rules, err = s.LoadCompatibilityRules(ctx, "monitor", "gaming-console")
	require.NoError(t, err)
	assert.Empty(t, rules, "direction matters")

	rules, err = s.LoadRules(ctx, "monitor")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
	rules, err = s.LoadRules(ctx, "cable")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	rules, err = s.LoadRules(ctx, "")
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	ids, err := s.FlagRulesReferencingField(ctx, "monitor", "resolution", "field removed in 1.1")
	require.NoError(t, err)
	assert.Equal(t, []string{hdmi.RuleID}, ids)

	rules, err = s.LoadCompatibilityRules(ctx, "gaming-console", "monitor")
	require.NoError(t, err)
	assert.True(t, rules[0].Stale)
	assert.Equal(t, "field removed in 1.1", rules[0].StaleReason)

	ids, err = s.FlagRulesReferencingField(ctx, "gaming-console", "resolution", "x")
	require.NoError(t, err)
	assert.Empty(t, ids, "field name must match on the same side as the category")
}

func TestRebindSpecifications_Pages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	saveMonitors(t, s, 7, func(int) bool { return false })

	var pages []int
	for {
		n, err := s.RebindSpecifications(ctx, "monitor", "1.0", "1.1", 4)
		require.NoError(t, err)
		pages = append(pages, n)
		if n < 4 {
			break
		}
	}
	assert.Equal(t, []int{4, 3}, pages)

	n, err := s.CountSpecifications(ctx, "monitor", "1.1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	n, err = s.CountSpecifications(ctx, "monitor", "1.0")
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range deviceIDs(t, s) {
		d, err := s.LoadDeviceWithSpecifications(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "1.1", d.SchemaVersion, "device and specification rows move together")
	}

	_, err = s.RebindSpecifications(ctx, "monitor", "1.0", "1.1", 0)
	assert.Error(t, err)
}
