package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/devcatalog/internal/logging"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := New(append([]Option{WithLogger(logging.Discard())}, opts...)...)
	require.NoError(t, err)
	return m
}

func ids(ts []*types.Template) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func TestBuiltins(t *testing.T) {
	m := newManager(t)

	all := m.All()
	require.Len(t, all, 7)
	assert.Equal(t, "monitor", all[0].ID, "most popular first")

	mon := m.Get("monitor")
	require.NotNil(t, mon)
	assert.Equal(t, "Monitor", mon.Name)
	require.Contains(t, mon.BaseSchema.Fields, "refreshRate")
	rr := mon.BaseSchema.Fields["refreshRate"]
	assert.Equal(t, "refreshRate", rr.Name, "names default to map keys")
	nc, ok := rr.Constraints.(*types.NumberConstraints)
	require.True(t, ok)
	assert.Equal(t, 30.0, *nc.Min)
	assert.Equal(t, []string{"name", "brand", "resolution"}, mon.BaseSchema.RequiredFields)

	for _, tmpl := range all {
		assert.NoError(t, tmpl.Validate(), tmpl.ID)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	m := newManager(t)
	a := m.Get("monitor")
	delete(a.BaseSchema.Fields, "resolution")
	a.Tags[0] = "changed"

	b := m.Get("monitor")
	assert.Contains(t, b.BaseSchema.Fields, "resolution")
	assert.Equal(t, "display", b.Tags[0])

	assert.Nil(t, m.Get("toaster"))
}

func TestRegister(t *testing.T) {
	m := newManager(t, WithoutBuiltins())
	tmpl := &types.Template{
		ID:   "toaster",
		Name: "Toaster",
		BaseSchema: types.CategorySchema{
			Name:   "Toaster",
			Fields: map[string]types.FieldDefinition{"slots": types.NewField("slots", types.FieldNumber)},
		},
	}
	require.NoError(t, m.Register(tmpl))

	err := m.Register(tmpl)
	assert.ErrorIs(t, err, types.ErrDuplicate)
	assert.Equal(t, types.CodeDuplicateTemplate, types.CodeOf(err))

	err = m.Register(&types.Template{ID: "empty", Name: "Empty"})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, types.CodeInvalidTemplate, types.CodeOf(err))

	assert.Equal(t, []string{"toaster"}, ids(m.All()))
}

func TestSearch(t *testing.T) {
	m := newManager(t)

	tests := []struct {
		name  string
		query string
		tags  []string
		want  []string
	}{
		{"query matches name ignoring case", "MONITOR", nil, []string{"monitor"}},
		{"query matches description", "handheld", nil, []string{"gaming-console"}},
		{"tag only", "", []string{"portable"}, []string{"smartphone", "laptop", "headphones"}},
		{"query and tag both apply", "phone", []string{"audio"}, []string{"headphones"}},
		{"every tag required", "", []string{"gaming", "pc"}, []string{"graphics-card"}},
		{"no match", "toaster", nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(m.Search(tc.query, tc.tags))
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}

	assert.Len(t, m.Search("", nil), 7, "empty search returns the catalog")
}

func TestLoadFile(t *testing.T) {
	m := newManager(t)
	path := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  - id: projector
    name: Projector
    description: Home cinema projectors.
    tags: [display]
    popularity: 10
    base_schema:
      name: Projector
      fields:
        lumens:
          type: number
          constraints: {min: 100}
      required_fields: [name, lumens]
`), 0o644))

	n, err := m.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	p := m.Get("projector")
	require.NotNil(t, p)
	assert.Equal(t, types.FieldNumber, p.BaseSchema.Fields["lumens"].Type)

	_, err = m.LoadFile(path)
	assert.ErrorIs(t, err, types.ErrDuplicate)

	_, err = m.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("templates: {"), 0o644))
	_, err = m.LoadFile(bad)
	assert.ErrorIs(t, err, types.ErrValidation)
}
