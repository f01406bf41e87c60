package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CountDevices returns the number of devices in categoryID.
func (s *Store) CountDevices(ctx context.Context, categoryID string) (int, error) {
	var n int
	err := s.read(func() error {
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM devices WHERE category_id = ?", categoryID).Scan(&n)
		if err != nil {
			return fmt.Errorf("count devices of %s: %w", categoryID, err)
		}
		return nil
	})
	return n, err
}

// CountSpecifications returns the number of specification records of
// categoryID bound to version.
func (s *Store) CountSpecifications(ctx context.Context, categoryID, version string) (int, error) {
	var n int
	err := s.read(func() error {
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM specifications WHERE category_id = ? AND schema_version = ?",
			categoryID, version).Scan(&n)
		if err != nil {
			return fmt.Errorf("count specifications of %s@%s: %w", categoryID, version, err)
		}
		return nil
	})
	return n, err
}

// DeleteFieldFromSpecifications removes field from at most limit records of
// categoryID that still hold it. Each page commits on its own.
func (s *Store) DeleteFieldFromSpecifications(ctx context.Context, categoryID, field string, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("delete %s from %s: limit must be positive", field, categoryID)
	}
	path := fieldPath(field)
	var n int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE specifications
			SET spec_values = json_remove(spec_values, ?), updated_at = ?
			WHERE rowid IN (
				SELECT rowid FROM specifications
				WHERE category_id = ? AND json_type(spec_values, ?) IS NOT NULL
				ORDER BY rowid
				LIMIT ?
			)`,
			path, formatTime(time.Now()), categoryID, path, limit,
		)
		if err != nil {
			return fmt.Errorf("delete %s from %s: %w", field, categoryID, err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

// MarkSpecificationsForRevalidation adds field to the revalidate list of
// every record of categoryID holding a value for it and returns how many
// records hold one.
func (s *Store) MarkSpecificationsForRevalidation(ctx context.Context, categoryID, field string) (int, error) {
	path := fieldPath(field)
	var n int
	err := s.write(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM specifications
			WHERE category_id = ? AND json_type(spec_values, ?) IS NOT NULL`,
			categoryID, path).Scan(&n)
		if err != nil {
			return fmt.Errorf("count %s values in %s: %w", field, categoryID, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE specifications
			SET revalidate = json_insert(revalidate, '$[#]', ?), updated_at = ?
			WHERE category_id = ?
				AND json_type(spec_values, ?) IS NOT NULL
				AND NOT EXISTS (SELECT 1 FROM json_each(specifications.revalidate) WHERE value = ?)`,
			field, formatTime(time.Now()), categoryID, path, field,
		)
		if err != nil {
			return fmt.Errorf("flag %s values in %s: %w", field, categoryID, err)
		}
		return nil
	})
	return n, err
}

// RebindSpecifications moves at most limit devices of categoryID bound to
// fromVersion onto toVersion. The device row and its specification record
// move together. Each page commits on its own.
func (s *Store) RebindSpecifications(ctx context.Context, categoryID, fromVersion, toVersion string, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("rebind %s@%s: limit must be positive", categoryID, fromVersion)
	}
	now := formatTime(time.Now())
	var n int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		page := `SELECT device_id FROM specifications
			WHERE category_id = ? AND schema_version = ?
			ORDER BY rowid
			LIMIT ?`
		_, err := tx.ExecContext(ctx,
			`UPDATE devices SET schema_version = ?, updated_at = ?
			WHERE device_id IN (`+page+`)`,
			toVersion, now, categoryID, fromVersion, limit,
		)
		if err != nil {
			return fmt.Errorf("rebind devices of %s@%s: %w", categoryID, fromVersion, err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE specifications SET schema_version = ?, updated_at = ?
			WHERE device_id IN (`+page+`)`,
			toVersion, now, categoryID, fromVersion, limit,
		)
		if err != nil {
			return fmt.Errorf("rebind specifications of %s@%s: %w", categoryID, fromVersion, err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}
