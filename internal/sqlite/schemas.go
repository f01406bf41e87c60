package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// LoadSchemas returns every stored schema version.
func (s *Store) LoadSchemas(ctx context.Context) ([]*types.CategorySchema, error) {
	var out []*types.CategorySchema
	err := s.read(func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT definition, created_at FROM schemas ORDER BY category_id, created_at, rowid")
		if err != nil {
			return fmt.Errorf("query schemas: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			schema, err := hydrateSchema(rows)
			if err != nil {
				return err
			}
			out = append(out, schema)
		}
		return rows.Err()
	})
	return out, err
}

// SaveSchema inserts or replaces the row for (CategoryID, Version).
func (s *Store) SaveSchema(ctx context.Context, schema *types.CategorySchema) error {
	definition, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema %s@%s: %w", schema.CategoryID, schema.Version, err)
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO schemas (category_id, version, parent_id, deprecated, definition, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (category_id, version) DO UPDATE SET
				parent_id = excluded.parent_id,
				deprecated = excluded.deprecated,
				definition = excluded.definition`,
			schema.CategoryID, schema.Version, nullString(schema.ParentID), boolInt(schema.Deprecated),
			string(definition), formatTime(schema.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("save schema %s@%s: %w", schema.CategoryID, schema.Version, err)
		}
		return nil
	})
}

func hydrateSchema(row scanner) (*types.CategorySchema, error) {
	var definition, createdAt string
	if err := row.Scan(&definition, &createdAt); err != nil {
		return nil, fmt.Errorf("scan schema: %w", err)
	}
	var schema types.CategorySchema
	if err := json.Unmarshal([]byte(definition), &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if schema.CreatedAt.IsZero() {
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse schema created_at: %w", err)
		}
		schema.CreatedAt = t
	}
	return &schema, nil
}
