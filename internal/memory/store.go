// Package memory implements an in-process catalog store. Every value is
// cloned on the way in and out, so callers never share state with the
// store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory store is closed")

type schemaKey struct{ category, version string }

// Store implements types.Store in memory.
type Store struct {
	mu     sync.RWMutex
	closed bool
	seq    int64

	schemas    map[schemaKey]*types.CategorySchema
	migrations map[string]*entry[*types.Migration]
	devices    map[string]*entry[*types.Device]
	rules      map[string]*entry[*types.CompatibilityRule]
}

// entry keeps insertion order for stable listings.
type entry[T any] struct {
	seq int64
	v   T
}

var _ types.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		schemas:    make(map[schemaKey]*types.CategorySchema),
		migrations: make(map[string]*entry[*types.Migration]),
		devices:    make(map[string]*entry[*types.Device]),
		rules:      make(map[string]*entry[*types.CompatibilityRule]),
	}
}

// Close marks the store closed. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) rlock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (s *Store) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

// sorted returns the values of m in insertion order.
func sorted[T any](m map[string]*entry[T], keep func(T) bool) []T {
	es := make([]*entry[T], 0, len(m))
	for _, e := range m {
		if keep == nil || keep(e.v) {
			es = append(es, e)
		}
	}
	sort.Slice(es, func(i, j int) bool { return es[i].seq < es[j].seq })
	out := make([]T, len(es))
	for i, e := range es {
		out[i] = e.v
	}
	return out
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// LoadSchemas returns every stored schema version.
func (s *Store) LoadSchemas(ctx context.Context) ([]*types.CategorySchema, error) {
	if err := s.rlock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	out := make([]*types.CategorySchema, 0, len(s.schemas))
	for _, sc := range s.schemas {
		out = append(out, sc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CategoryID != out[j].CategoryID {
			return out[i].CategoryID < out[j].CategoryID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SaveSchema upserts on (CategoryID, Version).
func (s *Store) SaveSchema(ctx context.Context, schema *types.CategorySchema) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	s.schemas[schemaKey{schema.CategoryID, schema.Version}] = schema.Clone()
	return nil
}

// LoadMigrations returns the migrations of categoryID, or all of them,
// oldest first.
func (s *Store) LoadMigrations(ctx context.Context, categoryID string) ([]*types.Migration, error) {
	if err := s.rlock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	ms := sorted(s.migrations, func(m *types.Migration) bool {
		return categoryID == "" || m.CategoryID == categoryID
	})
	for i, m := range ms {
		ms[i] = m.Clone()
	}
	return ms, nil
}

// LoadMigration returns one migration by id.
func (s *Store) LoadMigration(ctx context.Context, id string) (*types.Migration, error) {
	if err := s.rlock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	e, ok := s.migrations[id]
	if !ok {
		return nil, types.NotFoundf(types.CodeMigrationNotFound, "migration %s not found", id)
	}
	return e.v.Clone(), nil
}

// SaveMigration upserts a migration. An empty MigrationID or CreatedAt is
// assigned.
func (s *Store) SaveMigration(ctx context.Context, m *types.Migration) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if m.MigrationID == "" {
		m.MigrationID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if e, ok := s.migrations[m.MigrationID]; ok {
		e.v = m.Clone()
		return nil
	}
	s.migrations[m.MigrationID] = &entry[*types.Migration]{seq: s.next(), v: m.Clone()}
	return nil
}

// DeleteMigration removes a migration.
func (s *Store) DeleteMigration(ctx context.Context, id string) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, ok := s.migrations[id]; !ok {
		return types.NotFoundf(types.CodeMigrationNotFound, "migration %s not found", id)
	}
	delete(s.migrations, id)
	return nil
}

// CountDevices returns the number of devices in categoryID.
func (s *Store) CountDevices(ctx context.Context, categoryID string) (int, error) {
	if err := s.rlock(ctx); err != nil {
		return 0, err
	}
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.devices {
		if e.v.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

// CountSpecifications returns the number of specification records of
// categoryID bound to version.
func (s *Store) CountSpecifications(ctx context.Context, categoryID, version string) (int, error) {
	if err := s.rlock(ctx); err != nil {
		return 0, err
	}
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.devices {
		if e.v.CategoryID == categoryID && e.v.SchemaVersion == version {
			n++
		}
	}
	return n, nil
}

// DeleteFieldFromSpecifications removes field from at most limit records
// of categoryID that still hold it.
func (s *Store) DeleteFieldFromSpecifications(ctx context.Context, categoryID, field string, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("delete %s from %s: limit must be positive", field, categoryID)
	}
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	now := time.Now().UTC()
	n := 0
	for _, d := range sorted(s.devices, nil) {
		if n == limit {
			break
		}
		if d.CategoryID != categoryID {
			continue
		}
		if _, ok := d.Specifications[field]; !ok {
			continue
		}
		delete(d.Specifications, field)
		d.UpdatedAt = now
		n++
	}
	return n, nil
}

// MarkSpecificationsForRevalidation flags every record of categoryID
// holding a value for field and returns how many hold one.
func (s *Store) MarkSpecificationsForRevalidation(ctx context.Context, categoryID, field string) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.devices {
		d := e.v
		if d.CategoryID != categoryID {
			continue
		}
		if _, ok := d.Specifications[field]; !ok {
			continue
		}
		n++
		if !slices.Contains(d.Revalidate, field) {
			d.Revalidate = append(d.Revalidate, field)
		}
	}
	return n, nil
}

// LoadCompatibilityRules returns the rules declared from source to target.
func (s *Store) LoadCompatibilityRules(ctx context.Context, sourceCategoryID, targetCategoryID string) ([]*types.CompatibilityRule, error) {
	return s.loadRules(ctx, func(r *types.CompatibilityRule) bool {
		return r.SourceCategoryID == sourceCategoryID && r.TargetCategoryID == targetCategoryID
	})
}

// LoadRules returns the rules touching categoryID, or all rules.
func (s *Store) LoadRules(ctx context.Context, categoryID string) ([]*types.CompatibilityRule, error) {
	return s.loadRules(ctx, func(r *types.CompatibilityRule) bool {
		return categoryID == "" || r.SourceCategoryID == categoryID || r.TargetCategoryID == categoryID
	})
}

func (s *Store) loadRules(ctx context.Context, keep func(*types.CompatibilityRule) bool) ([]*types.CompatibilityRule, error) {
	if err := s.rlock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	rs := sorted(s.rules, keep)
	for i, r := range rs {
		rs[i] = r.Clone()
	}
	return rs, nil
}

// SaveCompatibilityRule upserts a rule. An empty RuleID is assigned.
func (s *Store) SaveCompatibilityRule(ctx context.Context, r *types.CompatibilityRule) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if r.RuleID == "" {
		r.RuleID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if e, ok := s.rules[r.RuleID]; ok {
		e.v = r.Clone()
		return nil
	}
	s.rules[r.RuleID] = &entry[*types.CompatibilityRule]{seq: s.next(), v: r.Clone()}
	return nil
}

// FlagRulesReferencingField marks stale every rule reading field of
// categoryID and returns their ids in ascending order.
func (s *Store) FlagRulesReferencingField(ctx context.Context, categoryID, field, reason string) ([]string, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	var ids []string
	for id, e := range s.rules {
		if e.v.References(categoryID, field) {
			e.v.Stale = true
			e.v.StaleReason = reason
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// RebindSpecifications moves at most limit devices of categoryID from
// fromVersion to toVersion.
func (s *Store) RebindSpecifications(ctx context.Context, categoryID, fromVersion, toVersion string, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("rebind %s@%s: limit must be positive", categoryID, fromVersion)
	}
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	now := time.Now().UTC()
	n := 0
	for _, d := range sorted(s.devices, nil) {
		if n == limit {
			break
		}
		if d.CategoryID != categoryID || d.SchemaVersion != fromVersion {
			continue
		}
		d.SchemaVersion = toVersion
		d.UpdatedAt = now
		n++
	}
	return n, nil
}

// LoadDeviceWithSpecifications returns the device, or nil when absent.
func (s *Store) LoadDeviceWithSpecifications(ctx context.Context, id string) (*types.Device, error) {
	if err := s.rlock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	e, ok := s.devices[id]
	if !ok {
		return nil, nil
	}
	return e.v.Clone(), nil
}

// SaveDevice upserts a device. An empty DeviceID is assigned.
func (s *Store) SaveDevice(ctx context.Context, d *types.Device) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if d.DeviceID == "" {
		d.DeviceID = newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	cp := d.Clone()
	if cp.Specifications == nil {
		cp.Specifications = map[string]any{}
	}
	if e, ok := s.devices[d.DeviceID]; ok {
		e.v = cp
		return nil
	}
	s.devices[d.DeviceID] = &entry[*types.Device]{seq: s.next(), v: cp}
	return nil
}
