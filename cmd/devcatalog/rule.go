package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/devcatalog/pkg/catalog"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

func newRuleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Author compatibility rules",
	}
	cmd.AddCommand(newRuleAddCmd(a), newRuleListCmd(a))
	return cmd
}

func newRuleAddCmd(a *app) *cobra.Command {
	var (
		source, target string
		kind           string
		rule           types.CompatibilityRule
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a compatibility rule",
		Example: `  devcatalog rule add --source gpu.maxResolution --target monitor.maxResolution \
    --condition "source === target" --type full --message "Resolutions match"
  devcatalog rule add --source gpu.outputs --target monitor.ports \
    --condition "source.some(o => target.includes(o))" --type partial \
    --limitation "Adapter may be required"`,
		Args: exactArgs(0),
		RunE: a.withCatalog(func(cmd *cobra.Command, _ []string, c *catalog.Catalog) error {
			var err error
			if rule.SourceCategoryID, rule.SourceField, err = splitFieldRef(source); err != nil {
				return err
			}
			if rule.TargetCategoryID, rule.TargetField, err = splitFieldRef(target); err != nil {
				return err
			}
			rule.CompatibilityType = types.CompatibilityType(kind)
			r, err := c.CreateRule(cmd.Context(), &rule)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), r, func(w io.Writer) {
				fmt.Fprintln(w, "Created rule", titleStyle.Render(r.RuleID))
			})
		}),
	}
	cmd.Flags().StringVar(&source, "source", "", "source category.field (required)")
	cmd.Flags().StringVar(&target, "target", "", "target category.field (required)")
	cmd.Flags().StringVar(&rule.Condition, "condition", "", "condition over source and target (required)")
	cmd.Flags().StringVar(&kind, "type", string(types.CompatibilityFull), "verdict when the condition holds: full, partial or none")
	cmd.Flags().StringVar(&rule.Message, "message", "", "message reported with the verdict")
	cmd.Flags().StringArrayVar(&rule.Limitations, "limitation", nil, "limitation to report (repeatable)")
	cmd.Flags().StringArrayVar(&rule.Recommendations, "recommendation", nil, "recommendation to report (repeatable)")
	for _, f := range []string{"source", "target", "condition"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

// splitFieldRef splits "category.field".
func splitFieldRef(ref string) (string, string, error) {
	category, field, ok := strings.Cut(ref, ".")
	if !ok || category == "" || field == "" {
		return "", "", usageError{fmt.Errorf("expected category.field, got %q", ref)}
	}
	return category, field, nil
}

func newRuleListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [category]",
		Short: "List rules touching a category, or every rule",
		Args:  wrapArgs(cobra.MaximumNArgs(1)),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			var category string
			if len(args) == 1 {
				category = args[0]
			}
			rules, err := c.ListRules(cmd.Context(), category)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), rules, func(w io.Writer) {
				rows := make([][]string, len(rules))
				for i, r := range rules {
					state := ""
					if r.Stale {
						state = warningStyle.Render("stale")
					}
					rows[i] = []string{
						r.RuleID,
						r.SourceCategoryID + "." + r.SourceField,
						r.TargetCategoryID + "." + r.TargetField,
						r.Condition,
						string(r.CompatibilityType),
						state,
					}
				}
				renderTable(w, []string{"ID", "SOURCE", "TARGET", "CONDITION", "TYPE", "STATE"}, rows)
			})
		}),
	}
}
