package compat

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/devcatalog/internal/condition"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// CreateRule validates and stores a rule. Both fields must exist in the
// resolved active schema of their category (reserved base attributes always
// exist), and the condition must compile. Stale state is never accepted
// from the caller.
func (e *Engine) CreateRule(ctx context.Context, rule *types.CompatibilityRule) (*types.CompatibilityRule, error) {
	r := rule.Clone()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkField(ctx, r.SourceCategoryID, r.SourceField); err != nil {
		return nil, err
	}
	if err := e.checkField(ctx, r.TargetCategoryID, r.TargetField); err != nil {
		return nil, err
	}
	prog, err := e.program(ctx, r.Condition)
	if err != nil {
		return nil, err
	}

	r.Stale = false
	r.StaleReason = ""
	if err := e.store.SaveCompatibilityRule(ctx, r); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}
	e.logger.InfoContext(ctx, "rule created",
		"rule", r.RuleID, "source", r.SourceCategoryID+"."+r.SourceField,
		"target", r.TargetCategoryID+"."+r.TargetField, "condition", prog.String())
	return r.Clone(), nil
}

func (e *Engine) checkField(ctx context.Context, categoryID, field string) error {
	s, err := e.schemas.ResolveSchema(ctx, categoryID, "")
	if err != nil {
		return err
	}
	if _, ok := s.Fields[field]; ok || types.IsReservedField(field) {
		return nil
	}
	return types.Validationf(types.CodeInvalidRule, "category %s@%s has no field %q", categoryID, s.Version, field)
}

// ListRules returns the rules touching a category on either side, or every
// rule when categoryID is empty.
func (e *Engine) ListRules(ctx context.Context, categoryID string) ([]*types.CompatibilityRule, error) {
	return e.store.LoadRules(ctx, categoryID)
}

// ValidateCondition compiles a condition without storing anything.
func ValidateCondition(src string) error {
	_, err := condition.Compile(src)
	return err
}
