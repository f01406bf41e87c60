// Package impact assesses proposed schema changes before they are applied.
// Analysis only reads: it counts the records a change touches and grades
// the change, and it reports lookup failures as warnings instead of errors
// so callers always get a report to render.
package impact

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/devcatalog/internal/tracing"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// recordsPerSecond is the cleanup throughput assumed for estimates.
const recordsPerSecond = 1000

// SchemaSource resolves the current version when the caller leaves it out.
type SchemaSource interface {
	GetSchema(ctx context.Context, categoryID, version string) (*types.CategorySchema, error)
}

// Store is the read-only persistence the analyzer counts against.
type Store interface {
	CountDevices(ctx context.Context, categoryID string) (int, error)
	CountSpecifications(ctx context.Context, categoryID, version string) (int, error)
	LoadRules(ctx context.Context, categoryID string) ([]*types.CompatibilityRule, error)
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(a *Analyzer) { a.tracer = t }
}

// Analyzer produces impact reports.
type Analyzer struct {
	schemas SchemaSource
	store   Store
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New returns an analyzer.
func New(schemas SchemaSource, store Store, opts ...Option) *Analyzer {
	a := &Analyzer{
		schemas: schemas,
		store:   store,
		logger:  slog.Default(),
		tracer:  tracing.NoopTracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "impact")
	return a
}

// AnalyzeImpact grades the proposed changes against the records bound to
// categoryID at currentVersion (the latest active version when empty).
//
// Removing a field is breaking. So is adding a required field, since
// existing records fail validation until backfilled. Modifying a field is
// a warning and adding an optional field is informational. Severity is high
// with any breaking change and medium with only warnings. Only changes with
// no removals and no modifications can be migrated automatically.
//
// Only cancellation of ctx is returned as an error.
func (a *Analyzer) AnalyzeImpact(ctx context.Context, categoryID, currentVersion string, changes types.ProposedChanges) (_ *types.ImpactReport, err error) {
	ctx, span := a.tracer.Start(ctx, "impact.AnalyzeImpact", trace.WithAttributes(
		attribute.String("category", categoryID),
	))
	defer func() { tracing.End(span, err) }()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	r := &types.ImpactReport{
		CategoryID:      categoryID,
		CurrentVersion:  currentVersion,
		BreakingChanges: []string{},
		Warnings:        []string{},
		Info:            []string{},
	}
	warn := func(format string, args ...any) {
		r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
	}

	if r.CurrentVersion == "" {
		s, err := a.schemas.GetSchema(ctx, categoryID, "")
		switch {
		case err != nil:
			a.logger.WarnContext(ctx, "schema lookup failed", "category", categoryID, "error", err)
			warn("Current schema could not be read: %v", err)
		case s == nil:
			warn("Category %s has no active schema", categoryID)
		default:
			r.CurrentVersion = s.Version
		}
	}

	if n, err := a.store.CountDevices(ctx, categoryID); err != nil {
		a.logger.WarnContext(ctx, "device count failed", "category", categoryID, "error", err)
		warn("Affected devices could not be counted: %v", err)
	} else {
		r.AffectedDevices = n
	}
	if r.CurrentVersion != "" {
		if n, err := a.store.CountSpecifications(ctx, categoryID, r.CurrentVersion); err != nil {
			a.logger.WarnContext(ctx, "specification count failed", "category", categoryID, "error", err)
			warn("Affected records could not be counted: %v", err)
		} else {
			r.AffectedRecords = n
		}
	}

	removed := slices.Sorted(slices.Values(changes.RemovedFields))
	for _, f := range removed {
		r.BreakingChanges = append(r.BreakingChanges,
			fmt.Sprintf("Removing field %s deletes its stored values", f))
		warn("%d records will lose their %s value", r.AffectedRecords, f)
	}

	for _, f := range slices.Sorted(maps.Keys(changes.NewFields)) {
		def := changes.NewFields[f]
		if def.Required {
			r.BreakingChanges = append(r.BreakingChanges,
				fmt.Sprintf("New required field %s: %d existing records fail validation until backfilled", f, r.AffectedRecords))
			continue
		}
		r.Info = append(r.Info, fmt.Sprintf("New optional field %s (%s)", f, def.Type))
	}

	for _, f := range slices.Sorted(maps.Keys(changes.ModifiedFields)) {
		c := changes.ModifiedFields[f]
		if c.Old.Type != c.New.Type {
			warn("Field %s changes type from %s to %s; %d records will need re-validation", f, c.Old.Type, c.New.Type, r.AffectedRecords)
			continue
		}
		warn("Field %s changes constraints; existing values on %d records may violate them", f, r.AffectedRecords)
	}

	if len(removed) > 0 {
		r.AffectedRules = a.rulesReading(ctx, categoryID, removed, warn)
		for _, id := range r.AffectedRules {
			warn("Compatibility rule %s reads a removed field and will be flagged stale", id)
		}
	}

	if changes.Empty() {
		r.Info = append(r.Info, "No changes proposed")
	}

	switch {
	case len(r.BreakingChanges) > 0:
		r.Severity = types.SeverityHigh
	case len(r.Warnings) > 0:
		r.Severity = types.SeverityMedium
	default:
		r.Severity = types.SeverityLow
	}
	r.CanAutoMigrate = len(changes.RemovedFields) == 0 && len(changes.ModifiedFields) == 0
	r.EstimatedSeconds = estimate(r.AffectedRecords, len(changes.RemovedFields)+len(changes.ModifiedFields))

	span.SetAttributes(
		attribute.String("severity", string(r.Severity)),
		attribute.Int("warnings", len(r.Warnings)),
	)
	a.logger.DebugContext(ctx, "impact analyzed",
		"category", categoryID, "version", r.CurrentVersion,
		"severity", r.Severity, "records", r.AffectedRecords)
	return r, nil
}

// AnalyzeMigration analyzes the operations of a recorded migration against
// its source version.
func (a *Analyzer) AnalyzeMigration(ctx context.Context, m *types.Migration) (*types.ImpactReport, error) {
	return a.AnalyzeImpact(ctx, m.CategoryID, m.FromVersion, ChangesFromOperations(m.Operations))
}

// ChangesFromOperations converts migration operations to the proposed
// change form. A modify_field without an old definition is compared with
// an empty one.
func ChangesFromOperations(ops []types.MigrationOperation) types.ProposedChanges {
	var c types.ProposedChanges
	for _, op := range ops {
		switch op.Kind {
		case types.OpAddField:
			if op.Definition == nil {
				continue
			}
			if c.NewFields == nil {
				c.NewFields = make(map[string]types.FieldDefinition)
			}
			c.NewFields[op.Field] = op.Definition.Clone()
		case types.OpRemoveField:
			c.RemovedFields = append(c.RemovedFields, op.Field)
		case types.OpModifyField:
			if op.NewDefinition == nil {
				continue
			}
			if c.ModifiedFields == nil {
				c.ModifiedFields = make(map[string]types.FieldChange)
			}
			fc := types.FieldChange{New: op.NewDefinition.Clone()}
			if op.OldDefinition != nil {
				fc.Old = op.OldDefinition.Clone()
			}
			c.ModifiedFields[op.Field] = fc
		}
	}
	return c
}

// rulesReading returns the ids of rules reading any of fields of category.
func (a *Analyzer) rulesReading(ctx context.Context, categoryID string, fields []string, warn func(string, ...any)) []string {
	rules, err := a.store.LoadRules(ctx, categoryID)
	if err != nil {
		a.logger.WarnContext(ctx, "rule lookup failed", "category", categoryID, "error", err)
		warn("Compatibility rules could not be checked: %v", err)
		return nil
	}
	var ids []string
	for _, rule := range rules {
		for _, f := range fields {
			if rule.References(categoryID, f) {
				ids = append(ids, rule.RuleID)
				break
			}
		}
	}
	slices.Sort(ids)
	return ids
}

// estimate returns the seconds needed to rewrite records once per data
// changing operation, rounded up.
func estimate(records, ops int) int {
	work := records * ops
	return (work + recordsPerSecond - 1) / recordsPerSecond
}
