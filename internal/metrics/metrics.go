// Package metrics holds the Prometheus counters of the catalog core. Each
// Metrics value owns its own registry so catalogs and tests stay isolated.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "devcatalog"

// Metrics groups the catalog counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	SchemasRegistered   *prometheus.CounterVec // by category
	MigrationsApplied   *prometheus.CounterVec // by category
	MigrationWarnings   *prometheus.CounterVec // by category
	ValuesRemoved       *prometheus.CounterVec // by category, field
	RecordsFlagged      *prometheus.CounterVec // by category, field
	RulesFlagged        prometheus.Counter
	CompatibilityChecks *prometheus.CounterVec // by verdict
	ConditionErrors     prometheus.Counter
}

// New creates the counters on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SchemasRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "schemas_registered_total",
			Help: "Schema versions registered.",
		}, []string{"category"}),
		MigrationsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "migrations_applied_total",
			Help: "Migrations marked applied.",
		}, []string{"category"}),
		MigrationWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "migration_warnings_total",
			Help: "Non-fatal warnings produced while applying migrations.",
		}, []string{"category"}),
		ValuesRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "specification_values_removed_total",
			Help: "Specification values removed by remove_field operations.",
		}, []string{"category", "field"}),
		RecordsFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "specification_records_flagged_total",
			Help: "Specification records flagged for re-validation after a type change.",
		}, []string{"category", "field"}),
		RulesFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "compatibility_rules_flagged_stale_total",
			Help: "Compatibility rules flagged stale by field removal.",
		}),
		CompatibilityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "compatibility_checks_total",
			Help: "Compatibility checks by verdict.",
		}, []string{"verdict"}),
		ConditionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "condition_errors_total",
			Help: "Rules skipped because their condition failed to compile or evaluate.",
		}),
	}
	m.registry.MustRegister(
		m.SchemasRegistered, m.MigrationsApplied, m.MigrationWarnings,
		m.ValuesRemoved, m.RecordsFlagged, m.RulesFlagged,
		m.CompatibilityChecks, m.ConditionErrors,
	)
	return m
}

// Registry exposes the underlying registry as a gatherer.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteFile writes every counter to path in the node exporter textfile
// format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

// SchemaRegistered counts a registered schema version.
func (m *Metrics) SchemaRegistered(category string) {
	if m != nil {
		m.SchemasRegistered.WithLabelValues(category).Inc()
	}
}

// MigrationApplied counts an applied migration and its warnings.
func (m *Metrics) MigrationApplied(category string, warnings int) {
	if m == nil {
		return
	}
	m.MigrationsApplied.WithLabelValues(category).Inc()
	m.MigrationWarnings.WithLabelValues(category).Add(float64(warnings))
}

// Removed counts specification values removed for field.
func (m *Metrics) Removed(category, field string, n int) {
	if m != nil && n > 0 {
		m.ValuesRemoved.WithLabelValues(category, field).Add(float64(n))
	}
}

// Flagged counts records flagged for re-validation.
func (m *Metrics) Flagged(category, field string, n int) {
	if m != nil && n > 0 {
		m.RecordsFlagged.WithLabelValues(category, field).Add(float64(n))
	}
}

// StaleRules counts rules flagged stale.
func (m *Metrics) StaleRules(n int) {
	if m != nil && n > 0 {
		m.RulesFlagged.Add(float64(n))
	}
}

// Verdict counts a compatibility verdict.
func (m *Metrics) Verdict(verdict string) {
	if m != nil {
		m.CompatibilityChecks.WithLabelValues(verdict).Inc()
	}
}

// ConditionError counts a skipped rule.
func (m *Metrics) ConditionError() {
	if m != nil {
		m.ConditionErrors.Inc()
	}
}
