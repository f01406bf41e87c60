package main

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/devcatalog/pkg/catalog"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

func newMigrationCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migration",
		Short: "Create, inspect and apply schema migrations",
	}
	cmd.AddCommand(
		newMigrationCreateCmd(a),
		newMigrationListCmd(a),
		newMigrationImpactCmd(a),
		newMigrationApplyCmd(a),
		newMigrationRollbackCmd(a),
		newMigrationDeleteCmd(a),
	)
	return cmd
}

func newMigrationCreateCmd(a *app) *cobra.Command {
	var (
		file string
		req  types.MigrationRequest
	)
	cmd := &cobra.Command{
		Use:   "create <category> -f <operations.yaml>",
		Short: "Record a pending migration",
		Long: `Create records a pending migration for a category. The file holds a list
of operations:

  - kind: add_field
    field: hdr
    definition: {type: boolean}
  - kind: remove_field
    field: ports
  - kind: modify_field
    field: refreshRate
    new_definition: {type: number, constraints: {min: 60}}

The migration starts at the latest active version unless --from is given
and targets the next minor version unless --to is given.`,
		Args: exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			var ops []types.MigrationOperation
			if err := decodeFile(file, &ops); err != nil {
				return err
			}
			req.CategoryID = args[0]
			req.Operations = nameDefinitions(ops)
			m, err := c.CreateMigration(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), m, func(w io.Writer) { renderMigration(w, m) })
		}),
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "operations file (required)")
	cmd.Flags().StringVar(&req.FromVersion, "from", "", "version the migration starts from")
	cmd.Flags().StringVar(&req.ToVersion, "to", "", "version the migration produces")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// nameDefinitions names unnamed definitions after their operation's field.
func nameDefinitions(ops []types.MigrationOperation) []types.MigrationOperation {
	for i := range ops {
		for _, d := range []*types.FieldDefinition{ops[i].Definition, ops[i].OldDefinition, ops[i].NewDefinition} {
			if d != nil && d.Name == "" {
				d.Name = ops[i].Field
			}
		}
	}
	return ops
}

func newMigrationListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [category]",
		Short: "List migrations, oldest first",
		Args:  wrapArgs(cobra.MaximumNArgs(1)),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			var category string
			if len(args) == 1 {
				category = args[0]
			}
			ms, err := c.ListMigrations(cmd.Context(), category)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), ms, func(w io.Writer) {
				rows := make([][]string, len(ms))
				for i, m := range ms {
					rows[i] = []string{m.MigrationID, m.CategoryID, m.FromVersion + " -> " + m.ToVersion, fmt.Sprint(len(m.Operations)), m.Status()}
				}
				renderTable(w, []string{"ID", "CATEGORY", "VERSIONS", "OPS", "STATUS"}, rows)
			})
		}),
	}
}

func newMigrationImpactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "impact <migration-id>",
		Short: "Report what applying a migration would do to stored data",
		Args:  exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			r, err := c.AnalyzeMigration(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), r, func(w io.Writer) { renderImpact(w, r) })
		}),
	}
}

func renderImpact(w io.Writer, r *types.ImpactReport) {
	fmt.Fprintf(w, "%s@%s  severity %s\n", titleStyle.Render(r.CategoryID), r.CurrentVersion,
		severityStyle(r.Severity).Render(string(r.Severity)))
	fmt.Fprintf(w, "  devices: %d  records: %d  auto-migrate: %t  estimated: %ds\n",
		r.AffectedDevices, r.AffectedRecords, r.CanAutoMigrate, r.EstimatedSeconds)
	renderList(w, "Breaking changes", r.BreakingChanges, errorStyle)
	renderList(w, "Warnings", r.Warnings, warningStyle)
	renderList(w, "Info", r.Info, mutedStyle)
	renderList(w, "Affected rules", r.AffectedRules, warningStyle)
}

func newMigrationApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <migration-id>",
		Short: "Apply a pending migration",
		Args:  exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			res, err := c.ApplyMigration(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), res, func(w io.Writer) {
				renderMigration(w, res.Migration)
				for _, field := range slices.Sorted(maps.Keys(res.RemovedValues)) {
					fmt.Fprintf(w, "  removed %s from %d records\n", field, res.RemovedValues[field])
				}
				for _, field := range slices.Sorted(maps.Keys(res.FlaggedRecords)) {
					fmt.Fprintf(w, "  flagged %d records for revalidation of %s\n", res.FlaggedRecords[field], field)
				}
				fmt.Fprintf(w, "  rebound %d records to %s\n", res.ReboundRecords, res.Migration.ToVersion)
				renderList(w, "Stale rules", res.StaleRules, warningStyle)
			})
		}),
	}
}

func newMigrationRollbackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <migration-id>",
		Short: "Record a pending migration reversing an applied one",
		Args:  exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			m, err := c.RollbackMigration(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), m, func(w io.Writer) { renderMigration(w, m) })
		}),
	}
}

func newMigrationDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <migration-id>",
		Short: "Delete a pending migration",
		Args:  exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			if err := c.DeleteMigration(cmd.Context(), args[0]); err != nil {
				return err
			}
			out := map[string]string{"deleted": args[0]}
			return a.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintln(w, "Deleted migration", args[0])
			})
		}),
	}
}
