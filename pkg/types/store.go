package types

import "context"

// SchemaStore persists schema versions. SaveSchema upserts on
// (CategoryID, Version).
type SchemaStore interface {
	LoadSchemas(ctx context.Context) ([]*CategorySchema, error)
	SaveSchema(ctx context.Context, s *CategorySchema) error
}

// MigrationStore persists migration records.
type MigrationStore interface {
	// LoadMigrations returns the migrations of categoryID, or all
	// migrations when categoryID is empty, oldest first.
	LoadMigrations(ctx context.Context, categoryID string) ([]*Migration, error)

	// LoadMigration returns an ErrNotFound-kind error for an unknown id.
	LoadMigration(ctx context.Context, id string) (*Migration, error)

	SaveMigration(ctx context.Context, m *Migration) error

	// DeleteMigration returns an ErrNotFound-kind error for an unknown id.
	DeleteMigration(ctx context.Context, id string) error
}

// SpecificationStore reads and cleans the specification records of
// devices.
type SpecificationStore interface {
	CountDevices(ctx context.Context, categoryID string) (int, error)
	CountSpecifications(ctx context.Context, categoryID, version string) (int, error)

	// DeleteFieldFromSpecifications removes field from at most limit
	// records of categoryID that still carry it and returns how many were
	// changed. Callers page until the result is below limit; a field that
	// is already absent everywhere yields 0.
	DeleteFieldFromSpecifications(ctx context.Context, categoryID, field string, limit int) (int, error)

	// MarkSpecificationsForRevalidation flags every record of categoryID
	// holding a value for field and returns the number flagged.
	MarkSpecificationsForRevalidation(ctx context.Context, categoryID, field string) (int, error)

	// RebindSpecifications moves at most limit devices of categoryID bound
	// to fromVersion onto toVersion and returns how many moved. Callers
	// page until the result is below limit.
	RebindSpecifications(ctx context.Context, categoryID, fromVersion, toVersion string, limit int) (int, error)
}

// RuleStore persists compatibility rules.
type RuleStore interface {
	// LoadCompatibilityRules returns rules declared from source to target.
	LoadCompatibilityRules(ctx context.Context, sourceCategoryID, targetCategoryID string) ([]*CompatibilityRule, error)

	// LoadRules returns rules touching categoryID on either side, or all
	// rules when categoryID is empty.
	LoadRules(ctx context.Context, categoryID string) ([]*CompatibilityRule, error)

	SaveCompatibilityRule(ctx context.Context, r *CompatibilityRule) error

	// FlagRulesReferencingField marks stale every rule reading field of
	// categoryID and returns their ids.
	FlagRulesReferencingField(ctx context.Context, categoryID, field, reason string) ([]string, error)
}

// DeviceStore persists devices with their specifications.
type DeviceStore interface {
	// LoadDeviceWithSpecifications returns nil and no error when the
	// device does not exist.
	LoadDeviceWithSpecifications(ctx context.Context, id string) (*Device, error)
	SaveDevice(ctx context.Context, d *Device) error
}

// Store is the persistence collaborator of the catalog core.
type Store interface {
	SchemaStore
	MigrationStore
	SpecificationStore
	RuleStore
	DeviceStore

	// Close releases backend resources.
	Close() error
}
