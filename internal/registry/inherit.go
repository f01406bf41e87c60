package registry

import (
	"context"
	"slices"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// InheritFromParent returns schema with the fields and required names of
// its ancestors merged in. Ancestors are the latest active versions of each
// parent category, walked transitively. The farthest ancestor is merged
// first, so nearer schemas win on name collisions and the schema's own
// fields win over all of them. A schema without a parent is returned
// unchanged.
func (r *Registry) InheritFromParent(ctx context.Context, schema *types.CategorySchema) (*types.CategorySchema, error) {
	if schema.ParentID == "" {
		return schema.Clone(), nil
	}
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(schema)
}

// ResolveSchema looks up a version (latest when empty) and returns it with
// inheritance resolved. Results are cached until the next mutation.
func (r *Registry) ResolveSchema(ctx context.Context, categoryID, version string) (*types.CategorySchema, error) {
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.lookupLocked(categoryID, version)
	if s == nil {
		if version == "" {
			return nil, types.NotFoundf(types.CodeSchemaNotFound, "category %s has no active schema", categoryID)
		}
		return nil, types.NotFoundf(types.CodeSchemaNotFound, "schema %s@%s not found", categoryID, version)
	}

	// The cache is filled under the read lock so a concurrent mutation
	// flushes after, never before, this entry lands.
	key := s.CategoryID + "@" + s.Version
	resolved, err := r.resolved.GetOrLoad(ctx, key, 0, func(context.Context) (*types.CategorySchema, error) {
		return r.resolveLocked(s)
	})
	if err != nil {
		return nil, err
	}
	return resolved.Clone(), nil
}

// resolveLocked merges the ancestors of s. The caller holds mu.
func (r *Registry) resolveLocked(s *types.CategorySchema) (*types.CategorySchema, error) {
	out := s.Clone()
	if s.ParentID == "" {
		return out, nil
	}

	visited := map[string]bool{s.CategoryID: true}
	var chain []*types.CategorySchema
	for cur := s; cur.ParentID != ""; {
		if visited[cur.ParentID] {
			return nil, types.CyclicInheritancef("category %s: inheritance cycle through %s", s.CategoryID, cur.ParentID)
		}
		parent := r.lookupLocked(cur.ParentID, "")
		if parent == nil {
			return nil, types.NotFoundf(types.CodeParentNotFound, "category %s: ancestor %s has no active schema", s.CategoryID, cur.ParentID)
		}
		visited[cur.ParentID] = true
		chain = append(chain, parent)
		cur = parent
	}

	fields := make(map[string]types.FieldDefinition)
	var required []string
	for _, ancestor := range slices.Backward(chain) {
		for k, f := range ancestor.Fields {
			fields[k] = f.Clone()
		}
		required = appendUnique(required, ancestor.RequiredFields...)
	}

	var inherited []string
	for k := range fields {
		if _, own := s.Fields[k]; !own {
			inherited = append(inherited, k)
		}
	}
	for k, f := range s.Fields {
		fields[k] = f.Clone()
	}
	slices.Sort(inherited)

	out.Fields = fields
	out.RequiredFields = appendUnique(required, s.RequiredFields...)
	out.InheritedFields = inherited
	return out, nil
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		if !slices.Contains(dst, n) {
			dst = append(dst, n)
		}
	}
	return dst
}
