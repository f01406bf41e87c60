// Package catalog wires the schema registry, migration engine, impact
// analyzer, compatibility engine and template manager over one store.
// Callers use Open to attach a Catalog and Close to release it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mesh-intelligence/devcatalog/internal/compat"
	"github.com/mesh-intelligence/devcatalog/internal/impact"
	"github.com/mesh-intelligence/devcatalog/internal/logging"
	"github.com/mesh-intelligence/devcatalog/internal/memory"
	"github.com/mesh-intelligence/devcatalog/internal/metrics"
	"github.com/mesh-intelligence/devcatalog/internal/migration"
	"github.com/mesh-intelligence/devcatalog/internal/registry"
	"github.com/mesh-intelligence/devcatalog/internal/sqlite"
	"github.com/mesh-intelligence/devcatalog/internal/template"
	"github.com/mesh-intelligence/devcatalog/internal/tracing"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// Version is the devcatalog release.
const Version = "0.3.0"

// shutdownTimeout bounds the trace flush in Close.
const shutdownTimeout = 5 * time.Second

// ErrClosed is returned by operations on a closed Catalog.
var ErrClosed = errors.New("catalog is closed")

// Option configures Open.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	logOutput io.Writer
	store     types.Store
}

// WithLogger uses l instead of building a logger from Config.Log.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLogOutput sets where a logger built from Config.Log writes when no
// log file is configured. The default is stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithStore attaches an already open store instead of the configured
// backend. The Catalog takes ownership and closes it.
func WithStore(s types.Store) Option {
	return func(o *options) { o.store = s }
}

// Catalog is the attached device catalog. It is safe for concurrent use.
type Catalog struct {
	cfg    types.Config
	logger *slog.Logger

	store      types.Store
	registry   *registry.Registry
	migrations *migration.Engine
	impact     *impact.Analyzer
	compat     *compat.Engine
	templates  *template.Manager

	metrics   *metrics.Metrics
	provider  *tracing.Provider
	logCloser io.Closer

	mu     sync.RWMutex
	closed bool
}

// Open validates cfg, opens the store and loads the schema index.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Catalog{cfg: cfg, metrics: metrics.New(), logger: o.logger}
	if c.logger == nil {
		logger, closer, err := logging.New(cfg.Log, o.logOutput)
		if err != nil {
			return nil, fmt.Errorf("configure logging: %w", err)
		}
		c.logger, c.logCloser = logger, closer
	}

	c.store = o.store
	if err := c.attach(ctx); err != nil {
		return nil, errors.Join(err, c.release())
	}
	c.logger.Info("catalog opened", "backend", cfg.Backend, "data_dir", cfg.DataDir)
	return c, nil
}

func (c *Catalog) attach(ctx context.Context) error {
	provider, err := tracing.NewProvider(ctx, c.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("configure tracing: %w", err)
	}
	c.provider = provider

	if c.store == nil {
		if c.store, err = openStore(ctx, c.cfg); err != nil {
			return err
		}
	}

	tracer := provider.Tracer()
	c.registry = registry.New(c.store,
		registry.WithLogger(c.logger),
		registry.WithTracer(tracer),
		registry.WithMetrics(c.metrics),
	)
	c.migrations = migration.New(c.registry, c.store,
		migration.WithLogger(c.logger),
		migration.WithTracer(tracer),
		migration.WithMetrics(c.metrics),
		migration.WithPageSize(c.cfg.EffectivePageSize()),
	)
	c.registry.SetMigrationRecorder(c.migrations)
	c.impact = impact.New(c.registry, c.store,
		impact.WithLogger(c.logger),
		impact.WithTracer(tracer),
	)
	c.compat = compat.New(c.registry, c.store,
		compat.WithLogger(c.logger),
		compat.WithTracer(tracer),
		compat.WithMetrics(c.metrics),
	)

	if c.templates, err = template.New(template.WithLogger(c.logger)); err != nil {
		return err
	}
	for _, path := range c.cfg.TemplateFiles {
		if _, err := c.templates.LoadFile(path); err != nil {
			return err
		}
	}

	if err := c.registry.Initialize(ctx); err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg types.Config) (types.Store, error) {
	switch cfg.Backend {
	case types.BackendMemory:
		return memory.New(), nil
	case types.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, types.ErrBackendUnknown
	}
}

// Close releases the store, flushes traces and writes the metrics file.
// Close is idempotent.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("catalog closed")
	return c.release()
}

func (c *Catalog) release() error {
	var errs []error
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if c.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := c.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		cancel()
	}
	if c.cfg.MetricsFile != "" {
		if err := c.metrics.WriteFile(c.cfg.MetricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	if c.logCloser != nil {
		if err := c.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log: %w", err))
		}
	}
	return errors.Join(errs...)
}

// begin guards an operation: it fails on a closed catalog and applies the
// configured timeout. The returned release must be called.
func (c *Catalog) begin(ctx context.Context) (context.Context, func(), error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, nil, ErrClosed
	}
	if c.cfg.Timeout <= 0 {
		return ctx, c.mu.RUnlock, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	return ctx, func() {
		cancel()
		c.mu.RUnlock()
	}, nil
}

// Config returns the configuration the catalog was opened with.
func (c *Catalog) Config() types.Config {
	return c.cfg
}

// Metrics exposes the catalog counters.
func (c *Catalog) Metrics() *metrics.Metrics {
	return c.metrics
}
