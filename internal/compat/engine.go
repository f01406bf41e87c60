// Package compat decides whether two devices are compatible by evaluating
// the compatibility rules declared between their categories.
//
// Checks are read-only and degrade instead of failing: a pair without rules
// is reported as "none", and a rule with missing values or a broken
// condition is skipped and recorded without affecting the other rules.
package compat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/devcatalog/internal/cache"
	"github.com/mesh-intelligence/devcatalog/internal/condition"
	"github.com/mesh-intelligence/devcatalog/internal/metrics"
	"github.com/mesh-intelligence/devcatalog/internal/tracing"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// Result messages that do not come from a rule.
const (
	MsgNoData       = "No compatibility data available"
	MsgInsufficient = "Insufficient data to determine compatibility"
)

// defaultMessages stand in for rules without a message.
var defaultMessages = map[types.CompatibilityType]string{
	types.CompatibilityFull:    "Devices are fully compatible",
	types.CompatibilityPartial: "Devices are partially compatible",
	types.CompatibilityNone:    "Devices are not compatible",
}

// SchemaResolver resolves a category's schema with inherited fields.
type SchemaResolver interface {
	ResolveSchema(ctx context.Context, categoryID, version string) (*types.CategorySchema, error)
}

// Store is the persistence the engine reads devices and rules from.
type Store interface {
	types.RuleStore
	LoadDeviceWithSpecifications(ctx context.Context, id string) (*types.Device, error)
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

// WithConcurrency bounds the parallel checks of CheckMany.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithProgramTTL sets how long compiled conditions stay cached.
func WithProgramTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.programTTL = ttl }
}

// Engine evaluates compatibility rules.
type Engine struct {
	schemas     SchemaResolver
	store       Store
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *metrics.Metrics
	concurrency int
	programTTL  time.Duration
	programs    *cache.Cache[*condition.Program]
}

// New returns an engine.
func New(schemas SchemaResolver, store Store, opts ...Option) *Engine {
	e := &Engine{
		schemas:     schemas,
		store:       store,
		logger:      slog.Default(),
		tracer:      tracing.NoopTracer(),
		concurrency: 8,
		programTTL:  cache.DefaultExpiration,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	e.logger = e.logger.With("component", "compat")
	e.programs = cache.New[*condition.Program]("conditions", e.programTTL, cache.DefaultCleanupInterval, e.logger)
	return e
}

// CheckCompatibility evaluates every rule declared between the categories
// of the two devices, in either direction. A rule declared from the target's
// category to the source's is evaluated with the roles swapped.
//
// Each evaluated rule yields its compatibility type when its condition holds
// and "none" when it does not. The overall verdict is the most restrictive
// of these. Limitations and recommendations of every evaluated rule are
// merged without duplicates.
func (e *Engine) CheckCompatibility(ctx context.Context, sourceDeviceID, targetDeviceID string) (_ *types.CompatibilityResult, err error) {
	ctx, span := e.tracer.Start(ctx, "compat.CheckCompatibility", trace.WithAttributes(
		attribute.String("source", sourceDeviceID),
		attribute.String("target", targetDeviceID),
	))
	defer func() { tracing.End(span, err) }()

	src, err := e.device(ctx, sourceDeviceID)
	if err != nil {
		return nil, err
	}
	tgt, err := e.device(ctx, targetDeviceID)
	if err != nil {
		return nil, err
	}

	rules, err := e.rulesBetween(ctx, src.CategoryID, tgt.CategoryID)
	if err != nil {
		return nil, err
	}
	srcBound, err := e.bind(ctx, src)
	if err != nil {
		return nil, err
	}
	tgtBound, err := e.bind(ctx, tgt)
	if err != nil {
		return nil, err
	}

	res := &types.CompatibilityResult{
		SourceDeviceID:  sourceDeviceID,
		TargetDeviceID:  targetDeviceID,
		Limitations:     []string{},
		Recommendations: []string{},
		EvaluatedRules:  []types.RuleEvaluation{},
	}
	if len(rules) == 0 {
		res.CompatibilityType = types.CompatibilityNone
		res.Message = MsgNoData
		e.metrics.Verdict(string(res.CompatibilityType))
		return res, nil
	}

	var verdict types.CompatibilityType
	var message string
	for _, dr := range rules {
		ev, outcome := e.evaluate(ctx, dr, srcBound, tgtBound)
		res.EvaluatedRules = append(res.EvaluatedRules, ev)
		if ev.Outcome != types.OutcomeEvaluated {
			continue
		}
		if types.MostRestrictive(verdict, outcome) != verdict {
			verdict = outcome
			message = dr.rule.Message
			if message == "" {
				message = defaultMessages[outcome]
			}
		}
		res.Limitations = appendUnique(res.Limitations, dr.rule.Limitations...)
		res.Recommendations = appendUnique(res.Recommendations, dr.rule.Recommendations...)
	}

	if verdict == "" {
		verdict = types.CompatibilityNone
		message = MsgInsufficient
	}
	res.CompatibilityType = verdict
	res.Message = message

	e.metrics.Verdict(string(verdict))
	span.SetAttributes(attribute.String("verdict", string(verdict)))
	e.logger.DebugContext(ctx, "compatibility checked",
		"source", sourceDeviceID, "target", targetDeviceID,
		"verdict", verdict, "rules", len(rules))
	return res, nil
}

func (e *Engine) device(ctx context.Context, id string) (*types.Device, error) {
	d, err := e.store.LoadDeviceWithSpecifications(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load device %s: %w", id, err)
	}
	if d == nil {
		return nil, types.NotFoundf(types.CodeDeviceNotFound, "device %s not found", id)
	}
	return d, nil
}

// boundDevice is a device with the resolved schema version it is bound to.
// A nil schema defines no fields.
type boundDevice struct {
	*types.Device
	schema *types.CategorySchema
}

// value reads field only if the bound schema still defines it. Values left
// behind by a field the schema dropped are not evaluated.
func (b boundDevice) value(field string) (any, bool) {
	if !types.IsReservedField(field) {
		if b.schema == nil {
			return nil, false
		}
		if _, ok := b.schema.Fields[field]; !ok {
			return nil, false
		}
	}
	return b.Device.Value(field)
}

// bind resolves the schema d is bound to. A schema that cannot be found
// leaves the device without defined fields; storage failures are returned.
func (e *Engine) bind(ctx context.Context, d *types.Device) (boundDevice, error) {
	s, err := e.schemas.ResolveSchema(ctx, d.CategoryID, d.SchemaVersion)
	if err != nil {
		if !types.IsUserError(err) {
			return boundDevice{}, fmt.Errorf("resolve schema of device %s: %w", d.DeviceID, err)
		}
		e.logger.WarnContext(ctx, "bound schema unavailable",
			"device", d.DeviceID, "schema", d.CategoryID+"@"+d.SchemaVersion, "error", err)
		s = nil
	}
	return boundDevice{Device: d, schema: s}, nil
}

// directedRule is a rule with the direction it applies in.
type directedRule struct {
	rule     *types.CompatibilityRule
	reversed bool
}

// rulesBetween loads the rules from a to b and from b to a. A rule found
// in both lookups, as happens when a equals b, is kept once.
func (e *Engine) rulesBetween(ctx context.Context, a, b string) ([]directedRule, error) {
	forward, err := e.store.LoadCompatibilityRules(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("load rules %s->%s: %w", a, b, err)
	}
	out := make([]directedRule, 0, len(forward))
	seen := make(map[string]bool, len(forward))
	for _, r := range forward {
		seen[r.RuleID] = true
		out = append(out, directedRule{rule: r})
	}
	if a == b {
		return out, nil
	}
	backward, err := e.store.LoadCompatibilityRules(ctx, b, a)
	if err != nil {
		return nil, fmt.Errorf("load rules %s->%s: %w", b, a, err)
	}
	for _, r := range backward {
		if !seen[r.RuleID] {
			seen[r.RuleID] = true
			out = append(out, directedRule{rule: r, reversed: true})
		}
	}
	return out, nil
}

// evaluate runs one rule. A field missing from the device's values or from
// its bound schema leaves the rule with insufficient data. The returned type
// is meaningful only when the evaluation outcome is OutcomeEvaluated.
func (e *Engine) evaluate(ctx context.Context, dr directedRule, src, tgt boundDevice) (types.RuleEvaluation, types.CompatibilityType) {
	r := dr.rule
	ev := types.RuleEvaluation{RuleID: r.RuleID, Reversed: dr.reversed, Stale: r.Stale}

	from, to := src, tgt
	if dr.reversed {
		from, to = tgt, src
	}
	sv, okS := from.value(r.SourceField)
	tv, okT := to.value(r.TargetField)
	if !okS || !okT {
		ev.Outcome = types.OutcomeInsufficientData
		return ev, ""
	}

	prog, err := e.program(ctx, r.Condition)
	if err == nil {
		ev.Matched, err = prog.Eval(sv, tv)
	}
	if err != nil {
		ev.Matched = false
		ev.Outcome = types.OutcomeError
		ev.Error = err.Error()
		e.metrics.ConditionError()
		e.logger.WarnContext(ctx, "rule skipped", "rule", r.RuleID, "error", err)
		return ev, ""
	}

	ev.Outcome = types.OutcomeEvaluated
	if ev.Matched {
		return ev, r.CompatibilityType
	}
	return ev, types.CompatibilityNone
}

// program returns the compiled condition, compiling it on first use.
func (e *Engine) program(ctx context.Context, src string) (*condition.Program, error) {
	return e.programs.GetOrLoad(ctx, src, 0, func(context.Context) (*condition.Program, error) {
		return condition.Compile(src)
	})
}

func appendUnique(dst []string, items ...string) []string {
	for _, s := range items {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}
