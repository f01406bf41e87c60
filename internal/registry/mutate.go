package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/devcatalog/internal/tracing"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// ErrNoRecorder is returned by UpdateSchema when migration operations are
// supplied but no MigrationRecorder is wired.
var ErrNoRecorder = errors.New("no migration recorder configured")

// RegisterSchema validates and stores a new schema version and indexes it.
// The stored copy has CreatedAt set and no InheritedFields.
func (r *Registry) RegisterSchema(ctx context.Context, schema *types.CategorySchema) (_ *types.CategorySchema, err error) {
	ctx, span := r.tracer.Start(ctx, "registry.RegisterSchema", trace.WithAttributes(
		attribute.String("category", schema.CategoryID),
		attribute.String("version", schema.Version),
	))
	defer func() { tracing.End(span, err) }()

	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registerLocked(ctx, schema.Clone())
}

// registerLocked validates, persists and indexes s, which the caller owns.
// The caller holds mu for writing.
func (r *Registry) registerLocked(ctx context.Context, s *types.CategorySchema) (*types.CategorySchema, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if r.lookupLocked(s.CategoryID, s.Version) != nil {
		return nil, types.Validationf(types.CodeDuplicateVersion, "schema %s@%s already exists", s.CategoryID, s.Version)
	}
	if err := r.checkParentLocked(s); err != nil {
		return nil, err
	}

	s.InheritedFields = nil
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now().UTC()
	}
	if err := r.store.SaveSchema(ctx, s); err != nil {
		return nil, fmt.Errorf("save schema %s@%s: %w", s.CategoryID, s.Version, err)
	}
	r.indexLocked(s)
	r.invalidate(ctx)

	r.metrics.SchemaRegistered(s.CategoryID)
	r.logger.InfoContext(ctx, "schema registered",
		"category", s.CategoryID, "version", s.Version, "fields", len(s.Fields))
	return s.Clone(), nil
}

// checkParentLocked verifies that the parent chain of s resolves and that
// every required name is defined once inherited fields are merged.
func (r *Registry) checkParentLocked(s *types.CategorySchema) error {
	if s.ParentID == "" {
		return nil
	}
	merged, err := r.resolveLocked(s)
	if err != nil {
		return err
	}
	for _, name := range s.RequiredFields {
		if _, ok := merged.Fields[name]; !ok && !types.IsReservedField(name) {
			return types.Validationf(types.CodeInvalidSchema,
				"category %s: required field %q is not defined by the schema or its parents", s.CategoryID, name)
		}
	}
	return nil
}

// CreateCategoryFromTemplate copies the template's base schema, applies
// the customizations and registers the result as version 1.0 of a new
// category. Without an explicit CategoryID, the id is derived from the name
// and made unique with a short random suffix.
func (r *Registry) CreateCategoryFromTemplate(ctx context.Context, tmpl *types.Template, c types.Customizations) (_ *types.CategorySchema, err error) {
	ctx, span := r.tracer.Start(ctx, "registry.CreateCategoryFromTemplate", trace.WithAttributes(
		attribute.String("template", tmpl.ID),
	))
	defer func() { tracing.End(span, err) }()

	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	s, err := customize(tmpl, c)
	if err != nil {
		return nil, err
	}

	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.CategoryID != "" {
		if _, taken := r.versions[c.CategoryID]; taken {
			return nil, types.Duplicatef(types.CodeDuplicateCategory, "category %s already exists", c.CategoryID)
		}
		s.CategoryID = c.CategoryID
	} else {
		s.CategoryID = slugify(s.Name)
		for {
			if _, taken := r.versions[s.CategoryID]; !taken {
				break
			}
			s.CategoryID = slugify(s.Name) + "-" + uuid.NewString()[:8]
		}
	}
	s.Version = types.InitialVersion

	out, err := r.registerLocked(ctx, s)
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "category created from template", "template", tmpl.ID, "category", out.CategoryID)
	return out, nil
}

// customize applies c to a deep copy of the template's base schema.
func customize(tmpl *types.Template, c types.Customizations) (*types.CategorySchema, error) {
	s := tmpl.BaseSchema.Clone()
	s.Name = tmpl.Name
	if c.Name != "" {
		s.Name = c.Name
	}
	if s.Description == "" {
		s.Description = tmpl.Description
	}
	if c.Description != "" {
		s.Description = c.Description
	}
	if c.ParentID != "" {
		s.ParentID = c.ParentID
	}
	if s.Fields == nil {
		s.Fields = make(map[string]types.FieldDefinition, len(c.Fields))
	}
	for k, f := range c.Fields {
		if f.Name == "" {
			f.Name = k
		}
		s.Fields[k] = f.Clone()
	}
	for _, k := range c.RemoveFields {
		if _, ok := s.Fields[k]; !ok {
			return nil, types.Validationf(types.CodeInvalidField, "template %s has no field %q to remove", tmpl.ID, k)
		}
		delete(s.Fields, k)
		s.RequiredFields = slices.DeleteFunc(s.RequiredFields, func(name string) bool { return name == k })
	}
	for _, k := range c.RequiredFields {
		if !slices.Contains(s.RequiredFields, k) {
			s.RequiredFields = append(s.RequiredFields, k)
		}
	}
	s.Deprecated = false
	s.DeprecationMessage = ""
	s.PreviousVersion = ""
	s.CreatedAt = time.Time{}
	return s, nil
}

// slugify lowercases name and joins its alphanumeric runs with dashes.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "category"
	}
	return b.String()
}

// UpdateSchema registers a new version of a category with u merged over its
// latest active version. The superseded version stays queryable and is only
// deprecated when u.Deprecated is set. When ops is non-nil the recorder
// produces a pending migration from the superseded to the new version.
func (r *Registry) UpdateSchema(ctx context.Context, categoryID string, u types.SchemaUpdate, ops []types.MigrationOperation) (_ *types.CategorySchema, _ *types.Migration, err error) {
	ctx, span := r.tracer.Start(ctx, "registry.UpdateSchema", trace.WithAttributes(
		attribute.String("category", categoryID),
	))
	defer func() { tracing.End(span, err) }()

	rec := r.migrationRecorder()
	if ops != nil && rec == nil {
		return nil, nil, ErrNoRecorder
	}
	if err := r.Initialize(ctx); err != nil {
		return nil, nil, err
	}

	next, prev, err := r.update(ctx, categoryID, u)
	if err != nil {
		return nil, nil, err
	}
	if ops == nil {
		return next, nil, nil
	}

	m, err := rec.RecordMigration(ctx, categoryID, prev, next.Version, ops)
	if err != nil {
		return next, nil, fmt.Errorf("record migration %s %s->%s: %w", categoryID, prev, next.Version, err)
	}
	return next, m, nil
}

// update registers the merged version and returns it with the version it
// superseded.
func (r *Registry) update(ctx context.Context, categoryID string, u types.SchemaUpdate) (*types.CategorySchema, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.lookupLocked(categoryID, "")
	if cur == nil {
		return nil, "", types.NotFoundf(types.CodeSchemaNotFound, "category %s has no active schema", categoryID)
	}
	next, err := u.ApplyTo(cur)
	if err != nil {
		return nil, "", err
	}
	var deprecated *types.CategorySchema
	if u.Deprecated {
		deprecated = cur.Clone()
		deprecated.Deprecated = true
		deprecated.DeprecationMessage = u.DeprecationMessage
		if deprecated.DeprecationMessage == "" {
			deprecated.DeprecationMessage = "superseded by " + next.Version
		}
	}

	out, err := r.registerLocked(ctx, next)
	if err != nil {
		return nil, "", err
	}
	if deprecated != nil {
		// The new version is already registered; a failure here leaves the
		// superseded version active and is reported to the caller.
		if err := r.store.SaveSchema(ctx, deprecated); err != nil {
			return out, cur.Version, fmt.Errorf("deprecate schema %s@%s: %w", categoryID, cur.Version, err)
		}
		r.indexLocked(deprecated)
		r.invalidate(ctx)
	}
	return out, cur.Version, nil
}

// DeprecateSchema marks a version deprecated. Deprecated versions remain
// resolvable by explicit version but are never the latest. Deprecating an
// already deprecated version only replaces a non-empty message.
func (r *Registry) DeprecateSchema(ctx context.Context, categoryID, version, message string) (_ *types.CategorySchema, err error) {
	ctx, span := r.tracer.Start(ctx, "registry.DeprecateSchema", trace.WithAttributes(
		attribute.String("category", categoryID),
		attribute.String("version", version),
	))
	defer func() { tracing.End(span, err) }()

	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.lookupLocked(categoryID, version)
	if cur == nil {
		return nil, types.NotFoundf(types.CodeSchemaNotFound, "schema %s@%s not found", categoryID, version)
	}
	if cur.Deprecated && (message == "" || message == cur.DeprecationMessage) {
		return cur.Clone(), nil
	}

	next := cur.Clone()
	next.Deprecated = true
	if message != "" {
		next.DeprecationMessage = message
	}
	if err := r.store.SaveSchema(ctx, next); err != nil {
		return nil, fmt.Errorf("deprecate schema %s@%s: %w", categoryID, cur.Version, err)
	}
	r.indexLocked(next)
	r.invalidate(ctx)

	r.logger.InfoContext(ctx, "schema deprecated", "category", categoryID, "version", cur.Version)
	return next.Clone(), nil
}
