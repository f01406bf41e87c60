package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

const ruleColumns = `rule_id, source_category_id, target_category_id, source_field, target_field,
	condition, compatibility_type, message, limitations, recommendations, stale, stale_reason, created_at`

// LoadCompatibilityRules returns the rules declared from source to target.
func (s *Store) LoadCompatibilityRules(ctx context.Context, sourceCategoryID, targetCategoryID string) ([]*types.CompatibilityRule, error) {
	return s.queryRules(ctx,
		"SELECT "+ruleColumns+` FROM compatibility_rules
		WHERE source_category_id = ? AND target_category_id = ?
		ORDER BY created_at, rowid`,
		sourceCategoryID, targetCategoryID)
}

// LoadRules returns the rules touching categoryID on either side, or all
// rules when categoryID is empty.
func (s *Store) LoadRules(ctx context.Context, categoryID string) ([]*types.CompatibilityRule, error) {
	if categoryID == "" {
		return s.queryRules(ctx, "SELECT "+ruleColumns+" FROM compatibility_rules ORDER BY created_at, rowid")
	}
	return s.queryRules(ctx,
		"SELECT "+ruleColumns+` FROM compatibility_rules
		WHERE source_category_id = ? OR target_category_id = ?
		ORDER BY created_at, rowid`,
		categoryID, categoryID)
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]*types.CompatibilityRule, error) {
	var out []*types.CompatibilityRule
	err := s.read(func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query rules: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			r, err := hydrateRule(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// SaveCompatibilityRule inserts or replaces a rule. An empty RuleID is
// assigned.
func (s *Store) SaveCompatibilityRule(ctx context.Context, r *types.CompatibilityRule) error {
	if r.RuleID == "" {
		r.RuleID = generateUUID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	limitations, err := marshalList(r.Limitations)
	if err != nil {
		return fmt.Errorf("encode limitations of %s: %w", r.RuleID, err)
	}
	recommendations, err := marshalList(r.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations of %s: %w", r.RuleID, err)
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO compatibility_rules (`+ruleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (rule_id) DO UPDATE SET
				source_category_id = excluded.source_category_id,
				target_category_id = excluded.target_category_id,
				source_field = excluded.source_field,
				target_field = excluded.target_field,
				condition = excluded.condition,
				compatibility_type = excluded.compatibility_type,
				message = excluded.message,
				limitations = excluded.limitations,
				recommendations = excluded.recommendations,
				stale = excluded.stale,
				stale_reason = excluded.stale_reason`,
			r.RuleID, r.SourceCategoryID, r.TargetCategoryID, r.SourceField, r.TargetField,
			r.Condition, string(r.CompatibilityType), r.Message, limitations, recommendations,
			boolInt(r.Stale), r.StaleReason, formatTime(r.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("save rule %s: %w", r.RuleID, err)
		}
		return nil
	})
}

// FlagRulesReferencingField marks stale every rule reading field of
// categoryID and returns their ids in ascending order.
func (s *Store) FlagRulesReferencingField(ctx context.Context, categoryID, field, reason string) ([]string, error) {
	var ids []string
	err := s.write(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT rule_id FROM compatibility_rules
			WHERE (source_category_id = ? AND source_field = ?)
				OR (target_category_id = ? AND target_field = ?)`,
			categoryID, field, categoryID, field)
		if err != nil {
			return fmt.Errorf("find rules reading %s.%s: %w", categoryID, field, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan rule id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			_, err := tx.ExecContext(ctx,
				"UPDATE compatibility_rules SET stale = 1, stale_reason = ? WHERE rule_id = ?",
				reason, id)
			if err != nil {
				return fmt.Errorf("flag rule %s: %w", id, err)
			}
		}
		return nil
	})
	slices.Sort(ids)
	return ids, err
}

func hydrateRule(row scanner) (*types.CompatibilityRule, error) {
	var (
		r                        types.CompatibilityRule
		compatType               string
		limitations, recommended string
		stale                    int
		createdAt                string
	)
	err := row.Scan(&r.RuleID, &r.SourceCategoryID, &r.TargetCategoryID, &r.SourceField, &r.TargetField,
		&r.Condition, &compatType, &r.Message, &limitations, &recommended, &stale, &r.StaleReason, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	r.CompatibilityType = types.CompatibilityType(compatType)
	r.Stale = stale != 0
	if r.Limitations, err = unmarshalList(limitations); err != nil {
		return nil, fmt.Errorf("decode limitations of %s: %w", r.RuleID, err)
	}
	if r.Recommendations, err = unmarshalList(recommended); err != nil {
		return nil, fmt.Errorf("decode recommendations of %s: %w", r.RuleID, err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", r.RuleID, err)
	}
	return &r, nil
}
