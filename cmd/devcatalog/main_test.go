package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/devcatalog/internal/logging"
	"github.com/mesh-intelligence/devcatalog/pkg/catalog"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

type cliEnv struct {
	configDir string
	dataDir   string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	t.Setenv("DEVCATALOG_CONFIG_DIR", "")
	t.Setenv("DEVCATALOG_DATA_DIR", "")
	return cliEnv{configDir: t.TempDir(), dataDir: t.TempDir()}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(catalog.WithLogger(logging.Discard()))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e cliEnv) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := e.run(t, append(args, "--json")...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func (e cliEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.configDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitSuccess},
		{"usage", usageError{errors.New("bad flag")}, exitUserError},
		{"validation", types.Validationf(types.CodeEmptyFields, "no fields"), exitUserError},
		{"not found", types.NotFoundf(types.CodeDeviceNotFound, "gone"), exitUserError},
		{"invalid state", types.InvalidStatef(types.CodeMigrationApplied, "applied"), exitUserError},
		{"duplicate", types.Duplicatef(types.CodeDuplicateCategory, "taken"), exitUserError},
		{"system", errors.New("disk full"), exitSysError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "devcatalog "+catalog.Version+"\n", out)
}

func TestInit(t *testing.T) {
	env := newCLIEnv(t)

	var status struct {
		ConfigFile    string `json:"config_file"`
		ConfigWritten bool   `json:"config_written"`
		Backend       string `json:"backend"`
	}
	env.runJSON(t, &status, "init")
	assert.True(t, status.ConfigWritten)
	assert.Equal(t, types.BackendSQLite, status.Backend)

	data, err := os.ReadFile(status.ConfigFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend: sqlite")
	assert.FileExists(t, filepath.Join(env.dataDir, "catalog.db"))

	env.runJSON(t, &status, "init")
	assert.False(t, status.ConfigWritten, "init keeps an existing config")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
backend: memory
page_size: 50
timeout: 3s
data_dir: db
log:
  level: info
`), 0o644))
	t.Setenv("DEVCATALOG_DATA_DIR", "")
	t.Setenv("DEVCATALOG_LOG_LEVEL", "debug")

	cfg, err := loadConfig(dir, "")
	require.NoError(t, err)
	assert.Equal(t, types.BackendMemory, cfg.Backend)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, "3s", cfg.Timeout.String())
	assert.Equal(t, filepath.Join(dir, "db"), cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level, "environment beats config.yaml")

	cfg, err = loadConfig(t.TempDir(), "/flag/data")
	require.NoError(t, err)
	assert.Equal(t, types.BackendSQLite, cfg.Backend, "defaults without config.yaml")
	assert.Equal(t, "/flag/data", cfg.DataDir)
}

func TestUsageErrors(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "schema", "get")
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = env.run(t, "compat", "check", "a", "b", "c")
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = env.run(t, "schema", "list", "--no-such-flag")
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = env.run(t, "rule", "add", "--source", "gpu", "--target", "monitor.x", "--condition", "true")
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestCatalogWorkflow(t *testing.T) {
	env := newCLIEnv(t)

	var schema types.CategorySchema
	env.runJSON(t, &schema, "schema", "from-template", "monitor", "--id", "monitor")
	assert.Equal(t, "1.0", schema.Version)

	_, err := env.run(t, "schema", "from-template", "monitor", "--id", "monitor")
	assert.Equal(t, exitUserError, exitCode(err), "duplicate category")

	var dev types.Device
	env.runJSON(t, &dev, "device", "add", "--category", "monitor", "--name", "UltraGear 27", "--brand", "LG",
		"--spec", "resolution=2560x1440", "--spec", "refreshRate=165", "--spec", "hdr=true")
	require.NotEmpty(t, dev.DeviceID)
	assert.Equal(t, true, dev.Specifications["hdr"])
	assert.Equal(t, 165.0, dev.Specifications["refreshRate"])

	_, err = env.run(t, "device", "add", "--category", "monitor", "--name", "No Resolution")
	assert.Equal(t, exitUserError, exitCode(err))

	ops := env.writeFile(t, "ops.yaml", `
- kind: remove_field
  field: hdr
- kind: add_field
  field: vesaMount
  definition: {type: boolean}
`)
	var m types.Migration
	env.runJSON(t, &m, "migration", "create", "monitor", "-f", ops)
	assert.Equal(t, "1.1", m.ToVersion)
	require.Len(t, m.Operations, 2)

	var report types.ImpactReport
	env.runJSON(t, &report, "migration", "impact", m.MigrationID)
	assert.Equal(t, 1, report.AffectedDevices)
	assert.NotEmpty(t, report.BreakingChanges)

	var res types.ApplyResult
	env.runJSON(t, &res, "migration", "apply", m.MigrationID)
	assert.Equal(t, 1, res.RemovedValues["hdr"])

	_, err = env.run(t, "migration", "apply", m.MigrationID)
	assert.Equal(t, exitUserError, exitCode(err), "already applied")

	var got types.Device
	env.runJSON(t, &got, "device", "get", dev.DeviceID)
	assert.NotContains(t, got.Specifications, "hdr")

	var latest types.CategorySchema
	env.runJSON(t, &latest, "schema", "get", "monitor")
	assert.Equal(t, "1.1", latest.Version)
	assert.Contains(t, latest.Fields, "vesaMount")

	var list []*types.Migration
	env.runJSON(t, &list, "migration", "list", "monitor")
	assert.Len(t, list, 1)

	out, err := env.run(t, "schema", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "monitor")
}

func TestCompatWorkflow(t *testing.T) {
	env := newCLIEnv(t)

	var s types.CategorySchema
	env.runJSON(t, &s, "schema", "from-template", "graphics-card", "--id", "gpu")
	env.runJSON(t, &s, "schema", "from-template", "monitor", "--id", "monitor")

	var rule types.CompatibilityRule
	env.runJSON(t, &rule, "rule", "add",
		"--source", "gpu.maxResolution", "--target", "monitor.maxResolution",
		"--condition", "source === target", "--type", "full", "--message", "Resolutions match")
	require.NotEmpty(t, rule.RuleID)

	_, err := env.run(t, "rule", "add",
		"--source", "gpu.maxResolution", "--target", "monitor.nope",
		"--condition", "source === target")
	assert.Equal(t, exitUserError, exitCode(err), "unknown target field")

	var gpu, mon types.Device
	env.runJSON(t, &gpu, "device", "add", "--category", "gpu", "--name", "RTX 4080", "--brand", "NVIDIA",
		"--spec", "chipset=AD103", "--spec", "maxResolution=4K")
	env.runJSON(t, &mon, "device", "add", "--category", "monitor", "--name", "UltraGear 27", "--brand", "LG",
		"--spec", "resolution=2560x1440", "--spec", "maxResolution=1440p")

	var res types.CompatibilityResult
	env.runJSON(t, &res, "compat", "check", gpu.DeviceID, mon.DeviceID)
	assert.Equal(t, types.CompatibilityNone, res.CompatibilityType)
	require.Len(t, res.EvaluatedRules, 1)
	assert.False(t, res.EvaluatedRules[0].Matched)

	out, err := env.run(t, "compat", "check", gpu.DeviceID, mon.DeviceID, gpu.DeviceID, "missing", "--json")
	assert.Equal(t, exitUserError, exitCode(err))
	var batch []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	require.Len(t, batch, 2)
	assert.NotContains(t, batch[0], "error")
	assert.Contains(t, batch[1], "error")
}

func TestTemplateCommands(t *testing.T) {
	env := newCLIEnv(t)

	var ts []*types.Template
	env.runJSON(t, &ts, "template", "search", "phone", "--tag", "audio")
	require.Len(t, ts, 1)
	assert.Equal(t, "headphones", ts[0].ID)

	env.runJSON(t, &ts, "template", "list")
	assert.Len(t, ts, 7)

	_, err := env.run(t, "template", "show", "toaster")
	assert.Equal(t, exitUserError, exitCode(err))
}
