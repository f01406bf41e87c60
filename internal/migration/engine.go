// Package migration sequences structural changes to category schemas and
// cleans up stored device data after them.
//
// A migration is a schema-level event first. Applying one registers the
// target schema version strictly: if that fails the migration stays pending.
// The data cleanup that follows is best effort. Failures there are logged,
// recorded as warnings on the migration and never undo records already
// processed.
package migration

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/devcatalog/internal/metrics"
	"github.com/mesh-intelligence/devcatalog/internal/tracing"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// SchemaRegistry is the part of the schema registry the engine needs.
type SchemaRegistry interface {
	GetSchema(ctx context.Context, categoryID, version string) (*types.CategorySchema, error)
	RegisterSchema(ctx context.Context, schema *types.CategorySchema) (*types.CategorySchema, error)
	Versions(ctx context.Context, categoryID string) ([]string, error)
}

// Store is the persistence the engine reads and cleans.
type Store interface {
	types.MigrationStore
	types.SpecificationStore
	types.RuleStore
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPageSize bounds how many specification records one cleanup statement
// touches. Values below 1 select types.DefaultPageSize.
func WithPageSize(n int) Option {
	return func(e *Engine) { e.pageSize = n }
}

// WithClock replaces time.Now for CreatedAt and AppliedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine creates, applies and reverses migrations.
type Engine struct {
	registry SchemaRegistry
	store    Store
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	pageSize int
	now      func() time.Time
}

// New returns an engine over the given registry and store.
func New(registry SchemaRegistry, store Store, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		store:    store,
		logger:   slog.Default(),
		tracer:   tracing.NoopTracer(),
		pageSize: types.DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pageSize < 1 {
		e.pageSize = types.DefaultPageSize
	}
	e.logger = e.logger.With("component", "migration")
	return e
}

// GetMigration returns one migration.
func (e *Engine) GetMigration(ctx context.Context, id string) (*types.Migration, error) {
	return e.store.LoadMigration(ctx, id)
}

// ListMigrations returns the migrations of a category, or of every category
// when categoryID is empty, oldest first.
func (e *Engine) ListMigrations(ctx context.Context, categoryID string) ([]*types.Migration, error) {
	return e.store.LoadMigrations(ctx, categoryID)
}
