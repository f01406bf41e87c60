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

const migrationColumns = `migration_id, category_id, from_version, to_version, operations,
	rollback_of, warnings, created_at, applied_at`

// LoadMigrations returns the migrations of categoryID, or every migration
// when categoryID is empty, oldest first.
func (s *Store) LoadMigrations(ctx context.Context, categoryID string) ([]*types.Migration, error) {
	query := "SELECT " + migrationColumns + " FROM migrations"
	var args []any
	if categoryID != "" {
		query += " WHERE category_id = ?"
		args = append(args, categoryID)
	}
	query += " ORDER BY created_at, rowid"

	var out []*types.Migration
	err := s.read(func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query migrations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			m, err := hydrateMigration(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

// LoadMigration returns one migration by id.
func (s *Store) LoadMigration(ctx context.Context, id string) (*types.Migration, error) {
	var m *types.Migration
	err := s.read(func() error {
		row := s.db.QueryRowContext(ctx,
			"SELECT "+migrationColumns+" FROM migrations WHERE migration_id = ?", id)
		var err error
		m, err = hydrateMigration(row)
		if errors.Is(err, sql.ErrNoRows) {
			return types.NotFoundf(types.CodeMigrationNotFound, "migration %s not found", id)
		}
		return err
	})
	return m, err
}

// SaveMigration inserts or replaces a migration record. An empty
// MigrationID or CreatedAt is assigned.
func (s *Store) SaveMigration(ctx context.Context, m *types.Migration) error {
	if m.MigrationID == "" {
		m.MigrationID = generateUUID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	ops, err := marshalJSON(m.Operations)
	if err != nil {
		return fmt.Errorf("encode operations of %s: %w", m.MigrationID, err)
	}
	warnings, err := marshalList(m.Warnings)
	if err != nil {
		return fmt.Errorf("encode warnings of %s: %w", m.MigrationID, err)
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO migrations (`+migrationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (migration_id) DO UPDATE SET
				category_id = excluded.category_id,
				from_version = excluded.from_version,
				to_version = excluded.to_version,
				operations = excluded.operations,
				rollback_of = excluded.rollback_of,
				warnings = excluded.warnings,
				applied_at = excluded.applied_at`,
			m.MigrationID, m.CategoryID, m.FromVersion, m.ToVersion, ops,
			nullString(m.RollbackOf), warnings, formatTime(m.CreatedAt), nullTime(m.AppliedAt),
		)
		if err != nil {
			return fmt.Errorf("save migration %s: %w", m.MigrationID, err)
		}
		return nil
	})
}

// DeleteMigration removes a migration record.
func (s *Store) DeleteMigration(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM migrations WHERE migration_id = ?", id)
		if err != nil {
			return fmt.Errorf("delete migration %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete migration %s: %w", id, err)
		}
		if n == 0 {
			return types.NotFoundf(types.CodeMigrationNotFound, "migration %s not found", id)
		}
		return nil
	})
}

func hydrateMigration(row scanner) (*types.Migration, error) {
	var (
		m                   types.Migration
		ops, warnings       string
		createdAt           string
		rollbackOf, applied sql.NullString
	)
	err := row.Scan(&m.MigrationID, &m.CategoryID, &m.FromVersion, &m.ToVersion, &ops,
		&rollbackOf, &warnings, &createdAt, &applied)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan migration: %w", err)
	}

	if err := json.Unmarshal([]byte(ops), &m.Operations); err != nil {
		return nil, fmt.Errorf("decode operations of %s: %w", m.MigrationID, err)
	}
	if m.Warnings, err = unmarshalList(warnings); err != nil {
		return nil, fmt.Errorf("decode warnings of %s: %w", m.MigrationID, err)
	}
	m.RollbackOf = rollbackOf.String
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", m.MigrationID, err)
	}
	if applied.Valid {
		t, err := parseTime(applied.String)
		if err != nil {
			return nil, fmt.Errorf("parse applied_at of %s: %w", m.MigrationID, err)
		}
		m.AppliedAt = &t
	}
	return &m, nil
}
