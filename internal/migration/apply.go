package migration

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/devcatalog/internal/tracing"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// ApplyMigration applies a pending migration. The target schema version is
// derived and registered first unless it already exists; any failure up to
// that point returns an error and leaves the migration pending. The
// operations are then carried out in order against stored data:
//
//   - add_field changes nothing; existing records simply lack the field.
//   - remove_field deletes the field's values page by page and flags the
//     compatibility rules reading it as stale.
//   - modify_field flags records for re-validation when the type changes.
//     Values are never coerced.
//
// Cleanup failures become warnings. The records bound to the source version
// are then rebound to the target version, and the migration is marked
// applied.
func (e *Engine) ApplyMigration(ctx context.Context, id string) (_ *types.ApplyResult, err error) {
	ctx, span := e.tracer.Start(ctx, "migration.ApplyMigration", trace.WithAttributes(
		attribute.String("migration", id),
	))
	defer func() { tracing.End(span, err) }()

	m, err := e.store.LoadMigration(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsApplied() {
		return nil, types.InvalidStatef(types.CodeMigrationApplied,
			"migration %s already applied at %s", id, m.AppliedAt.Format(time.RFC3339))
	}
	span.SetAttributes(attribute.String("category", m.CategoryID))

	created, err := e.ensureTarget(ctx, m)
	if err != nil {
		return nil, err
	}

	res := &types.ApplyResult{SchemaCreated: created}
	for _, op := range m.Operations {
		switch op.Kind {
		case types.OpRemoveField:
			e.removeField(ctx, m.CategoryID, op.Field, res)
		case types.OpModifyField:
			if op.TypeChanged() {
				e.flagField(ctx, m.CategoryID, op, res)
			}
		}
	}

	// A cancelled context leaves the migration pending; cleanup is
	// idempotent, so applying again finishes the job.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A failed rebind also leaves the migration pending; records already
	// moved are skipped when it is applied again.
	res.ReboundRecords, err = e.rebind(ctx, m)
	if err != nil {
		return nil, err
	}

	m.Warnings = append(m.Warnings, res.Warnings...)
	if err := m.MarkApplied(e.now()); err != nil {
		return nil, err
	}
	if err := e.store.SaveMigration(ctx, m); err != nil {
		return nil, fmt.Errorf("mark migration %s applied: %w", id, err)
	}
	res.Migration = m

	e.metrics.MigrationApplied(m.CategoryID, len(res.Warnings))
	e.logger.InfoContext(ctx, "migration applied",
		"migration", id, "category", m.CategoryID, "from", m.FromVersion, "to", m.ToVersion,
		"rebound", res.ReboundRecords, "warnings", len(res.Warnings), "stale_rules", len(res.StaleRules))
	return res, nil
}

// ensureTarget registers the migration's target version derived from its
// source version. An existing target must carry the derived fields, or a
// different change already claimed that version. It reports whether a
// schema was registered.
func (e *Engine) ensureTarget(ctx context.Context, m *types.Migration) (bool, error) {
	base, err := e.registry.GetSchema(ctx, m.CategoryID, m.FromVersion)
	if err != nil {
		return false, err
	}
	if base == nil {
		return false, types.NotFoundf(types.CodeSchemaNotFound, "schema %s@%s not found", m.CategoryID, m.FromVersion)
	}
	next, _, err := types.DeriveSchema(base, m.ToVersion, m.Operations)
	if err != nil {
		return false, err
	}

	target, err := e.registry.GetSchema(ctx, m.CategoryID, m.ToVersion)
	if err != nil {
		return false, err
	}
	if target != nil {
		if diff := types.DiffFields(target.Fields, next.Fields); len(diff) > 0 {
			return false, types.InvalidStatef(types.CodeTargetMismatch,
				"migration %s: %s@%s exists with different fields (%s)", m.MigrationID, m.CategoryID, m.ToVersion, diff[0].Description)
		}
		return false, nil
	}
	if _, err := e.registry.RegisterSchema(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// rebind moves the category's records from the migration's source version
// onto its target version, pageSize devices at a time.
func (e *Engine) rebind(ctx context.Context, m *types.Migration) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := e.store.RebindSpecifications(ctx, m.CategoryID, m.FromVersion, m.ToVersion, e.pageSize)
		total += n
		if err != nil {
			return total, fmt.Errorf("rebind %s records %s->%s: %w", m.CategoryID, m.FromVersion, m.ToVersion, err)
		}
		if n < e.pageSize {
			return total, nil
		}
	}
}

// removeField deletes a field's stored values in pages and flags the rules
// that read it.
func (e *Engine) removeField(ctx context.Context, categoryID, field string, res *types.ApplyResult) {
	removed, err := e.purge(ctx, categoryID, field)
	setCount(&res.RemovedValues, field, removed)
	e.metrics.Removed(categoryID, field, removed)
	if err != nil {
		e.logger.WarnContext(ctx, "field cleanup incomplete",
			"category", categoryID, "field", field, "removed", removed, "error", err)
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("removing %s from stored specifications stopped after %d records: %v", field, removed, err))
	}

	reason := fmt.Sprintf("field %s removed from category %s", field, categoryID)
	ids, err := e.store.FlagRulesReferencingField(ctx, categoryID, field, reason)
	if err != nil {
		e.logger.WarnContext(ctx, "rule flagging failed", "category", categoryID, "field", field, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("flagging rules that read %s failed: %v", field, err))
		return
	}
	res.StaleRules = append(res.StaleRules, ids...)
	e.metrics.StaleRules(len(ids))
	if len(ids) > 0 {
		e.logger.InfoContext(ctx, "rules flagged stale", "category", categoryID, "field", field, "rules", ids)
	}
}

// purge removes field from every specification record of the category, at
// most pageSize records per statement. A field that is already absent
// yields 0.
func (e *Engine) purge(ctx context.Context, categoryID, field string) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := e.store.DeleteFieldFromSpecifications(ctx, categoryID, field, e.pageSize)
		total += n
		if err != nil {
			return total, err
		}
		e.logger.DebugContext(ctx, "cleanup page", "category", categoryID, "field", field, "removed", n)
		if n < e.pageSize {
			return total, nil
		}
	}
}

// flagField marks the records holding a value for a retyped field.
func (e *Engine) flagField(ctx context.Context, categoryID string, op types.MigrationOperation, res *types.ApplyResult) {
	n, err := e.store.MarkSpecificationsForRevalidation(ctx, categoryID, op.Field)
	if err != nil {
		e.logger.WarnContext(ctx, "revalidation flagging failed", "category", categoryID, "field", op.Field, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("flagging %s values for re-validation failed: %v", op.Field, err))
		return
	}
	setCount(&res.FlaggedRecords, op.Field, n)
	e.metrics.Flagged(categoryID, op.Field, n)
	if n > 0 {
		e.logger.InfoContext(ctx, "records flagged for re-validation",
			"category", categoryID, "field", op.Field,
			"from", op.OldDefinition.Type, "to", op.NewDefinition.Type, "records", n)
	}
}

func setCount(m *map[string]int, key string, n int) {
	if *m == nil {
		*m = make(map[string]int)
	}
	(*m)[key] += n
}
