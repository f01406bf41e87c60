// Package template holds the catalog of starter schemas new categories are
// created from. A built-in catalog is embedded; more templates can be
// registered at runtime or loaded from YAML files of the same shape.
package template

import (
	"cmp"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

//go:embed templates.yaml
var builtin []byte

// document is the top level of a template file.
type document struct {
	Templates []*types.Template `yaml:"templates"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithoutBuiltins starts the manager with an empty catalog.
func WithoutBuiltins() Option {
	return func(m *Manager) { m.skipBuiltins = true }
}

// Manager is a concurrency-safe template catalog. Templates are copied on
// the way in and out.
type Manager struct {
	logger       *slog.Logger
	skipBuiltins bool

	mu        sync.RWMutex
	templates map[string]*types.Template
}

// New returns a manager holding the built-in templates.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		logger:    slog.Default(),
		templates: make(map[string]*types.Template),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "template")
	if m.skipBuiltins {
		return m, nil
	}
	tmpls, err := Parse(builtin)
	if err != nil {
		return nil, fmt.Errorf("built-in templates: %w", err)
	}
	for _, t := range tmpls {
		if err := m.Register(t); err != nil {
			return nil, fmt.Errorf("built-in templates: %w", err)
		}
	}
	return m, nil
}

// Parse decodes a template document. Templates are not validated.
func Parse(data []byte) ([]*types.Template, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.WithCause(types.Validationf(types.CodeInvalidTemplate, "decode templates"), err)
	}
	return doc.Templates, nil
}

// Get returns a copy of the template, or nil when id is unknown.
func (m *Manager) Get(id string) *types.Template {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return nil
	}
	return t.Clone()
}

// All returns every template, most popular first.
func (m *Manager) All() []*types.Template {
	return m.Search("", nil)
}

// Register adds a template. The id must be unused.
func (m *Manager) Register(t *types.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.ID]; ok {
		return types.Duplicatef(types.CodeDuplicateTemplate, "template %s already exists", t.ID)
	}
	m.templates[t.ID] = t.Clone()
	m.logger.Debug("template registered", "template", t.ID)
	return nil
}

// Search returns the templates whose name or description contains query,
// ignoring case, and that carry every tag in tags. An empty query and no
// tags select the whole catalog. Results are ordered by popularity, then
// name.
func (m *Manager) Search(query string, tags []string) []*types.Template {
	q := strings.ToLower(strings.TrimSpace(query))
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Template
	for _, t := range m.templates {
		if q != "" &&
			!strings.Contains(strings.ToLower(t.Name), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			continue
		}
		if !hasTags(t, tags) {
			continue
		}
		out = append(out, t.Clone())
	}
	slices.SortFunc(out, func(a, b *types.Template) int {
		return cmp.Or(cmp.Compare(b.Popularity, a.Popularity), cmp.Compare(a.Name, b.Name))
	})
	return out
}

func hasTags(t *types.Template, tags []string) bool {
	for _, want := range tags {
		if !slices.ContainsFunc(t.Tags, func(have string) bool { return strings.EqualFold(have, want) }) {
			return false
		}
	}
	return true
}

// LoadFile registers every template in a YAML file and returns how many
// were added. Registration stops at the first invalid or duplicate
// template; the ones before it stay registered.
func (m *Manager) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read templates: %w", err)
	}
	tmpls, err := Parse(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for i, t := range tmpls {
		if err := m.Register(t); err != nil {
			return i, fmt.Errorf("%s: %w", path, err)
		}
	}
	m.logger.Info("templates loaded", "path", path, "count", len(tmpls))
	return len(tmpls), nil
}
