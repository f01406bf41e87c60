// Package registry is the authoritative index of category schema versions.
//
// The registry loads every stored schema once, keeps them indexed by
// (category, version) with a pointer to the latest non-deprecated version of
// each category, and routes every mutation through the store before the
// index changes. Readers never see a schema that is stored but not indexed,
// or indexed but not stored.
package registry

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/mesh-intelligence/devcatalog/internal/cache"
	"github.com/mesh-intelligence/devcatalog/internal/metrics"
	"github.com/mesh-intelligence/devcatalog/internal/tracing"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// MigrationRecorder turns the operations handed to UpdateSchema into a
// migration record linking the superseded and the new version.
type MigrationRecorder interface {
	RecordMigration(ctx context.Context, categoryID, fromVersion, toVersion string, ops []types.MigrationOperation) (*types.Migration, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithTracer sets the tracer used for mutation spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithResolvedTTL sets how long resolved (inherited) schemas stay cached.
func WithResolvedTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.resolvedTTL = ttl }
}

// Registry indexes category schemas. The zero value is not usable; call New.
type Registry struct {
	store       types.SchemaStore
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *metrics.Metrics
	now         func() time.Time
	resolvedTTL time.Duration
	resolved    *cache.Cache[*types.CategorySchema]

	initGroup singleflight.Group
	loaded    atomic.Bool

	recorderMu sync.RWMutex
	recorder   MigrationRecorder

	mu       sync.RWMutex
	versions map[string]map[string]*types.CategorySchema // category -> version -> schema
	latest   map[string]string                           // category -> latest active version

	validatorsMu sync.RWMutex
	validators   map[types.FieldType][]types.FieldValidator
}

// New returns a registry backed by store. The store is not read until the
// first call that needs the index.
func New(store types.SchemaStore, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		logger:      slog.Default(),
		tracer:      tracing.NoopTracer(),
		now:         time.Now,
		resolvedTTL: cache.DefaultExpiration,
		versions:    make(map[string]map[string]*types.CategorySchema),
		latest:      make(map[string]string),
		validators:  make(map[types.FieldType][]types.FieldValidator),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	r.resolved = cache.New[*types.CategorySchema]("resolved-schemas", r.resolvedTTL, cache.DefaultCleanupInterval, r.logger)
	return r
}

// SetMigrationRecorder wires the component that records migrations for
// UpdateSchema. It is set after construction because the recorder usually
// depends on the registry.
func (r *Registry) SetMigrationRecorder(rec MigrationRecorder) {
	r.recorderMu.Lock()
	defer r.recorderMu.Unlock()
	r.recorder = rec
}

func (r *Registry) migrationRecorder() MigrationRecorder {
	r.recorderMu.RLock()
	defer r.recorderMu.RUnlock()
	return r.recorder
}

// Initialize loads every stored schema into the index. It is idempotent and
// concurrent callers share a single load. A failed load is retried by the
// next call.
func (r *Registry) Initialize(ctx context.Context) error {
	if r.loaded.Load() {
		return nil
	}
	_, err, _ := r.initGroup.Do("init", func() (any, error) {
		if r.loaded.Load() {
			return nil, nil
		}
		schemas, err := r.store.LoadSchemas(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		for _, s := range schemas {
			r.indexLocked(s)
		}
		r.loaded.Store(true)
		r.logger.DebugContext(ctx, "schemas loaded", "count", len(schemas), "categories", len(r.versions))
		return nil, nil
	})
	return err
}

// indexLocked adds s to the index and recomputes the latest pointer of its
// category. The caller holds mu for writing.
func (r *Registry) indexLocked(s *types.CategorySchema) {
	byVersion, ok := r.versions[s.CategoryID]
	if !ok {
		byVersion = make(map[string]*types.CategorySchema)
		r.versions[s.CategoryID] = byVersion
	}
	byVersion[s.Version] = s
	r.relinkLocked(s.CategoryID)
}

func (r *Registry) relinkLocked(categoryID string) {
	best := ""
	for v, s := range r.versions[categoryID] {
		if s.Deprecated {
			continue
		}
		if best == "" || types.CompareVersions(v, best) > 0 {
			best = v
		}
	}
	if best == "" {
		delete(r.latest, categoryID)
		return
	}
	r.latest[categoryID] = best
}

// lookupLocked returns the indexed schema without copying. An empty version
// selects the latest active version. The caller holds mu.
func (r *Registry) lookupLocked(categoryID, version string) *types.CategorySchema {
	byVersion := r.versions[categoryID]
	if version == "" {
		v, ok := r.latest[categoryID]
		if !ok {
			return nil
		}
		return byVersion[v]
	}
	if s, ok := byVersion[version]; ok {
		return s
	}
	for v, s := range byVersion {
		if types.CompareVersions(v, version) == 0 {
			return s
		}
	}
	return nil
}

// GetSchema returns a copy of the given version of a category, or of its
// latest active version when version is empty. A category or version with
// no schema yields nil and no error.
func (r *Registry) GetSchema(ctx context.Context, categoryID, version string) (*types.CategorySchema, error) {
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.lookupLocked(categoryID, version)
	if s == nil {
		return nil, nil
	}
	return s.Clone(), nil
}

// MustGetSchema is GetSchema with a missing schema reported as an
// ErrNotFound-kind error.
func (r *Registry) MustGetSchema(ctx context.Context, categoryID, version string) (*types.CategorySchema, error) {
	s, err := r.GetSchema(ctx, categoryID, version)
	if err != nil {
		return nil, err
	}
	if s == nil {
		if version == "" {
			return nil, types.NotFoundf(types.CodeSchemaNotFound, "category %s has no active schema", categoryID)
		}
		return nil, types.NotFoundf(types.CodeSchemaNotFound, "schema %s@%s not found", categoryID, version)
	}
	return s, nil
}

// GetAllSchemas returns copies of every version matching filter, ordered by
// category and then version.
func (r *Registry) GetAllSchemas(ctx context.Context, filter types.SchemaFilter) ([]*types.CategorySchema, error) {
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*types.CategorySchema
	for _, byVersion := range r.versions {
		for _, s := range byVersion {
			if filter.Match(s) {
				out = append(out, s.Clone())
			}
		}
	}
	sortSchemas(out)
	return out, nil
}

// Versions returns every version of a category in ascending order.
func (r *Registry) Versions(ctx context.Context, categoryID string) ([]string, error) {
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.versions[categoryID]))
	for v := range r.versions[categoryID] {
		out = append(out, v)
	}
	slices.SortFunc(out, types.CompareVersions)
	return out, nil
}

func sortSchemas(ss []*types.CategorySchema) {
	slices.SortFunc(ss, func(a, b *types.CategorySchema) int {
		if a.CategoryID != b.CategoryID {
			if a.CategoryID < b.CategoryID {
				return -1
			}
			return 1
		}
		return types.CompareVersions(a.Version, b.Version)
	})
}

// RegisterValidator adds a field validator for fields of type t, or for
// every field when t is empty.
func (r *Registry) RegisterValidator(t types.FieldType, v types.FieldValidator) {
	r.validatorsMu.Lock()
	defer r.validatorsMu.Unlock()
	r.validators[t] = append(r.validators[t], v)
}

func (r *Registry) validatorsFor(t types.FieldType) []types.FieldValidator {
	r.validatorsMu.RLock()
	defer r.validatorsMu.RUnlock()
	return slices.Concat(r.validators[""], r.validators[t])
}

// invalidate drops every cached resolution. Inheritance crosses categories,
// so any mutation may change any resolved schema.
func (r *Registry) invalidate(ctx context.Context) {
	r.resolved.Flush(ctx)
}
