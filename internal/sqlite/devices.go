package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// LoadDeviceWithSpecifications returns the device and its specification
// record, or nil when the device does not exist.
func (s *Store) LoadDeviceWithSpecifications(ctx context.Context, id string) (*types.Device, error) {
	var d *types.Device
	err := s.read(func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT d.device_id, d.category_id, d.schema_version, d.name, d.brand, d.model,
				d.attributes, d.created_at, d.updated_at,
				s.schema_version, s.spec_values, s.revalidate
			FROM devices d
			LEFT JOIN specifications s ON s.device_id = d.device_id
			WHERE d.device_id = ?`, id)
		var err error
		d, err = hydrateDevice(row)
		if errors.Is(err, sql.ErrNoRows) {
			d = nil
			return nil
		}
		return err
	})
	return d, err
}

// SaveDevice inserts or replaces a device and its specification record.
// An empty DeviceID is assigned.
func (s *Store) SaveDevice(ctx context.Context, d *types.Device) error {
	now := time.Now().UTC()
	if d.DeviceID == "" {
		d.DeviceID = generateUUID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	attrs := d.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	attributes, err := marshalJSON(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes of %s: %w", d.DeviceID, err)
	}
	specs := d.Specifications
	if specs == nil {
		specs = map[string]any{}
	}
	values, err := marshalJSON(specs)
	if err != nil {
		return fmt.Errorf("encode specifications of %s: %w", d.DeviceID, err)
	}
	revalidate, err := marshalList(d.Revalidate)
	if err != nil {
		return fmt.Errorf("encode revalidate of %s: %w", d.DeviceID, err)
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO devices (device_id, category_id, schema_version, name, brand, model,
				attributes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (device_id) DO UPDATE SET
				category_id = excluded.category_id,
				schema_version = excluded.schema_version,
				name = excluded.name,
				brand = excluded.brand,
				model = excluded.model,
				attributes = excluded.attributes,
				updated_at = excluded.updated_at`,
			d.DeviceID, d.CategoryID, d.SchemaVersion, d.Name, d.Brand, d.Model,
			attributes, formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("save device %s: %w", d.DeviceID, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO specifications (device_id, category_id, schema_version, spec_values, revalidate, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (device_id) DO UPDATE SET
				category_id = excluded.category_id,
				schema_version = excluded.schema_version,
				spec_values = excluded.spec_values,
				revalidate = excluded.revalidate,
				updated_at = excluded.updated_at`,
			d.DeviceID, d.CategoryID, d.SchemaVersion, values, revalidate, formatTime(d.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("save specifications of %s: %w", d.DeviceID, err)
		}
		return nil
	})
}

func hydrateDevice(row scanner) (*types.Device, error) {
	var (
		d                            types.Device
		attributes                   string
		createdAt, updatedAt         string
		specVersion, values, revalid sql.NullString
	)
	err := row.Scan(&d.DeviceID, &d.CategoryID, &d.SchemaVersion, &d.Name, &d.Brand, &d.Model,
		&attributes, &createdAt, &updatedAt,
		&specVersion, &values, &revalid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}

	if err := json.Unmarshal([]byte(attributes), &d.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes of %s: %w", d.DeviceID, err)
	}
	if len(d.Attributes) == 0 {
		d.Attributes = nil
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", d.DeviceID, err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", d.DeviceID, err)
	}

	if values.Valid {
		if err := json.Unmarshal([]byte(values.String), &d.Specifications); err != nil {
			return nil, fmt.Errorf("decode specifications of %s: %w", d.DeviceID, err)
		}
		if specVersion.Valid && specVersion.String != "" {
			d.SchemaVersion = specVersion.String
		}
	}
	if revalid.Valid {
		if d.Revalidate, err = unmarshalList(revalid.String); err != nil {
			return nil, fmt.Errorf("decode revalidate of %s: %w", d.DeviceID, err)
		}
	}
	return &d, nil
}
