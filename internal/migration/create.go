package migration

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/devcatalog/internal/tracing"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// CreateMigration records a pending migration from the category's current
// active version. An empty FromVersion means the current version and an
// empty ToVersion means the next minor version after it. The operations
// are checked against the current schema, and remove and modify operations
// without an old definition get one filled in so they can be rolled back.
func (e *Engine) CreateMigration(ctx context.Context, req types.MigrationRequest) (_ *types.Migration, err error) {
	ctx, span := e.tracer.Start(ctx, "migration.CreateMigration", trace.WithAttributes(
		attribute.String("category", req.CategoryID),
	))
	defer func() { tracing.End(span, err) }()

	cur, err := e.registry.GetSchema(ctx, req.CategoryID, "")
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, types.NotFoundf(types.CodeSchemaNotFound, "category %s has no active schema", req.CategoryID)
	}
	if len(req.Operations) == 0 {
		return nil, types.Validationf(types.CodeEmptyOperations, "migration for %s has no operations", req.CategoryID)
	}
	from := req.FromVersion
	if from == "" {
		from = cur.Version
	}
	if types.CompareVersions(from, cur.Version) != 0 {
		return nil, types.Validationf(types.CodeVersionMismatch,
			"migration for %s starts at %s but the current version is %s", req.CategoryID, from, cur.Version)
	}
	return e.record(ctx, cur, req.ToVersion, req.Operations, "", false)
}

// RecordMigration links two existing versions with a pending migration. It
// is called by the registry after an update has registered toVersion, so
// fromVersion is not required to be current.
func (e *Engine) RecordMigration(ctx context.Context, categoryID, fromVersion, toVersion string, ops []types.MigrationOperation) (*types.Migration, error) {
	if len(ops) == 0 {
		return nil, types.Validationf(types.CodeEmptyOperations, "migration for %s has no operations", categoryID)
	}
	base, err := e.registry.GetSchema(ctx, categoryID, fromVersion)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, types.NotFoundf(types.CodeSchemaNotFound, "schema %s@%s not found", categoryID, fromVersion)
	}
	return e.record(ctx, base, toVersion, ops, "", true)
}

// record validates ops against base and saves a pending migration from
// base.Version to toVersion. A linked migration describes a target version
// that is already registered, and its operations must produce that
// version's fields. Otherwise toVersion must be unclaimed by any schema or
// pending migration of the category.
func (e *Engine) record(ctx context.Context, base *types.CategorySchema, toVersion string, ops []types.MigrationOperation, rollbackOf string, linked bool) (*types.Migration, error) {
	if toVersion == "" {
		next, err := types.NextVersion(base.Version)
		if err != nil {
			return nil, err
		}
		toVersion = next
	}
	if !types.ValidVersion(toVersion) {
		return nil, types.Validationf(types.CodeInvalidVersion, "invalid target version %q", toVersion)
	}
	if types.CompareVersions(toVersion, base.Version) <= 0 {
		return nil, types.Validationf(types.CodeInvalidVersion,
			"target version %s does not follow %s", toVersion, base.Version)
	}

	derived, filled, err := types.DeriveSchema(base, toVersion, ops)
	if err != nil {
		return nil, err
	}
	if linked {
		if err := e.checkLinkedTarget(ctx, derived); err != nil {
			return nil, err
		}
	} else if err := e.checkTargetFree(ctx, base.CategoryID, toVersion); err != nil {
		return nil, err
	}

	m := &types.Migration{
		CategoryID:  base.CategoryID,
		FromVersion: base.Version,
		ToVersion:   toVersion,
		Operations:  slices.Clone(filled),
		CreatedAt:   e.now().UTC(),
		RollbackOf:  rollbackOf,
	}
	if err := e.store.SaveMigration(ctx, m); err != nil {
		return nil, fmt.Errorf("save migration for %s: %w", base.CategoryID, err)
	}
	e.logger.InfoContext(ctx, "migration created",
		"migration", m.MigrationID, "category", m.CategoryID,
		"from", m.FromVersion, "to", m.ToVersion, "operations", len(m.Operations))
	return m, nil
}

// DeleteMigration removes a pending migration. Applied migrations are part
// of the category's history and cannot be deleted.
func (e *Engine) DeleteMigration(ctx context.Context, id string) error {
	m, err := e.store.LoadMigration(ctx, id)
	if err != nil {
		return err
	}
	if m.IsApplied() {
		return types.InvalidStatef(types.CodeMigrationApplied, "migration %s is applied and cannot be deleted", id)
	}
	if err := e.store.DeleteMigration(ctx, id); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "migration deleted", "migration", id, "category", m.CategoryID)
	return nil
}

// RollbackMigration produces a new pending migration with the inverse
// operations of an applied one. It starts at the rolled back migration's
// target version and ends at a version above every existing version of the
// category. The original migration is not changed.
func (e *Engine) RollbackMigration(ctx context.Context, id string) (_ *types.Migration, err error) {
	ctx, span := e.tracer.Start(ctx, "migration.RollbackMigration", trace.WithAttributes(
		attribute.String("migration", id),
	))
	defer func() { tracing.End(span, err) }()

	m, err := e.store.LoadMigration(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.IsApplied() {
		return nil, types.InvalidStatef(types.CodeMigrationNotApplied, "migration %s is not applied", id)
	}
	inverse, err := types.InverseOperations(m.Operations)
	if err != nil {
		return nil, err
	}

	base, err := e.registry.GetSchema(ctx, m.CategoryID, m.ToVersion)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, types.NotFoundf(types.CodeSchemaNotFound, "schema %s@%s not found", m.CategoryID, m.ToVersion)
	}
	versions, err := e.registry.Versions(ctx, m.CategoryID)
	if err != nil {
		return nil, err
	}
	highest := versions[len(versions)-1]
	pending, err := e.pendingTargets(ctx, m.CategoryID)
	if err != nil {
		return nil, err
	}
	for _, v := range pending {
		if types.CompareVersions(v, highest) > 0 {
			highest = v
		}
	}
	to, err := types.NextVersion(highest)
	if err != nil {
		return nil, err
	}

	rb, err := e.record(ctx, base, to, inverse, m.MigrationID, false)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "rollback created", "migration", rb.MigrationID, "rollback_of", id)
	return rb, nil
}

// checkTargetFree fails when toVersion is already a schema version of the
// category or the target of one of its pending migrations.
func (e *Engine) checkTargetFree(ctx context.Context, categoryID, toVersion string) error {
	s, err := e.registry.GetSchema(ctx, categoryID, toVersion)
	if err != nil {
		return err
	}
	if s != nil {
		return types.Duplicatef(types.CodeTargetTaken,
			"schema %s@%s already exists", categoryID, toVersion)
	}
	ms, err := e.store.LoadMigrations(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("load migrations of %s: %w", categoryID, err)
	}
	for _, m := range ms {
		if !m.IsApplied() && types.CompareVersions(m.ToVersion, toVersion) == 0 {
			return types.Duplicatef(types.CodeTargetTaken,
				"pending migration %s already targets %s@%s", m.MigrationID, categoryID, toVersion)
		}
	}
	return nil
}

// checkLinkedTarget fails unless the registered target version has the
// fields derived from the migration's operations.
func (e *Engine) checkLinkedTarget(ctx context.Context, derived *types.CategorySchema) error {
	target, err := e.registry.GetSchema(ctx, derived.CategoryID, derived.Version)
	if err != nil {
		return err
	}
	if target == nil {
		return types.NotFoundf(types.CodeSchemaNotFound, "schema %s@%s not found", derived.CategoryID, derived.Version)
	}
	if diff := types.DiffFields(target.Fields, derived.Fields); len(diff) > 0 {
		return types.Validationf(types.CodeTargetMismatch,
			"operations do not produce the fields of %s@%s: %s", derived.CategoryID, derived.Version, diff[0].Description)
	}
	return nil
}

// pendingTargets returns the target versions of the category's pending
// migrations.
func (e *Engine) pendingTargets(ctx context.Context, categoryID string) ([]string, error) {
	ms, err := e.store.LoadMigrations(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load migrations of %s: %w", categoryID, err)
	}
	var out []string
	for _, m := range ms {
		if !m.IsApplied() {
			out = append(out, m.ToVersion)
		}
	}
	return out, nil
}
