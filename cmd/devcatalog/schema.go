package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/devcatalog/pkg/catalog"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Register, evolve and inspect category schemas",
	}
	cmd.AddCommand(
		newSchemaGetCmd(a, false),
		newSchemaGetCmd(a, true),
		newSchemaListCmd(a),
		newSchemaRegisterCmd(a),
		newSchemaFromTemplateCmd(a),
		newSchemaUpdateCmd(a),
		newSchemaDeprecateCmd(a),
	)
	return cmd
}

// newSchemaGetCmd builds "get", or "resolve" when resolve is set.
func newSchemaGetCmd(a *app, resolve bool) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "get <category>",
		Short: "Show a schema version (default: the latest active one)",
		Args:  exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			get := c.GetSchema
			if resolve {
				get = c.ResolveSchema
			}
			s, err := get(cmd.Context(), args[0], version)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), s, func(w io.Writer) { renderSchema(w, s) })
		}),
	}
	if resolve {
		cmd.Use = "resolve <category>"
		cmd.Short = "Show a schema with its inherited fields merged in"
	}
	cmd.Flags().StringVar(&version, "version", "", "schema version")
	return cmd
}

func newSchemaListCmd(a *app) *cobra.Command {
	var (
		parent     string
		deprecated string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schema versions",
		Args:  exactArgs(0),
		RunE: a.withCatalog(func(cmd *cobra.Command, _ []string, c *catalog.Catalog) error {
			var filter types.SchemaFilter
			if cmd.Flags().Changed("parent") {
				filter.ParentID = &parent
			}
			switch deprecated {
			case "":
			case "true", "false":
				d := deprecated == "true"
				filter.Deprecated = &d
			default:
				return usageError{fmt.Errorf("--deprecated must be true or false, got %q", deprecated)}
			}
			schemas, err := c.GetAllSchemas(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), schemas, func(w io.Writer) {
				rows := make([][]string, len(schemas))
				for i, s := range schemas {
					state := "active"
					if s.Deprecated {
						state = "deprecated"
					}
					rows[i] = []string{s.CategoryID, s.Version, s.Name, s.ParentID, fmt.Sprint(len(s.Fields)), state}
				}
				renderTable(w, []string{"CATEGORY", "VERSION", "NAME", "PARENT", "FIELDS", "STATE"}, rows)
			})
		}),
	}
	cmd.Flags().StringVar(&parent, "parent", "", "only children of this category (empty for roots)")
	cmd.Flags().StringVar(&deprecated, "deprecated", "", "filter by deprecation (true or false)")
	return cmd
}

func newSchemaRegisterCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "register -f <schema.yaml>",
		Short: "Register a category schema from a YAML or JSON file",
		Args:  exactArgs(0),
		RunE: a.withCatalog(func(cmd *cobra.Command, _ []string, c *catalog.Catalog) error {
			var s types.CategorySchema
			if err := decodeFile(file, &s); err != nil {
				return err
			}
			out, err := c.RegisterSchema(cmd.Context(), &s)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), out, func(w io.Writer) { renderSchema(w, out) })
		}),
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "schema file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSchemaFromTemplateCmd(a *app) *cobra.Command {
	var custom types.Customizations
	cmd := &cobra.Command{
		Use:   "from-template <template>",
		Short: "Create a category from a template",
		Example: `  devcatalog schema from-template monitor --name "Gaming Monitor"
  devcatalog schema from-template laptop --id ultrabook --remove ports`,
		Args: exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			s, err := c.CreateCategoryFromTemplate(cmd.Context(), args[0], custom)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), s, func(w io.Writer) { renderSchema(w, s) })
		}),
	}
	cmd.Flags().StringVar(&custom.CategoryID, "id", "", "category id (default: derived from the name)")
	cmd.Flags().StringVar(&custom.Name, "name", "", "category name (default: the template name)")
	cmd.Flags().StringVar(&custom.Description, "description", "", "category description")
	cmd.Flags().StringVar(&custom.ParentID, "parent", "", "parent category")
	cmd.Flags().StringSliceVar(&custom.RemoveFields, "remove", nil, "template fields to drop")
	cmd.Flags().StringSliceVar(&custom.RequiredFields, "require", nil, "additional required fields")
	return cmd
}

func newSchemaUpdateCmd(a *app) *cobra.Command {
	var (
		file    string
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "update <category> -f <update.yaml>",
		Short: "Register the next version of a category",
		Long: `Update merges the changes in the file over the latest active version and
registers the result as a new version. With --migrate a pending migration
holding the field difference is recorded as well.`,
		Args: exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			var u types.SchemaUpdate
			if err := decodeFile(file, &u); err != nil {
				return err
			}
			var ops []types.MigrationOperation
			if migrate {
				cur, err := c.GetSchema(cmd.Context(), args[0], "")
				if err != nil {
					return err
				}
				next, err := u.ApplyTo(cur)
				if err != nil {
					return err
				}
				ops = types.DiffFields(cur.Fields, next.Fields)
				if len(ops) == 0 {
					ops = nil
				}
			}
			s, m, err := c.UpdateSchema(cmd.Context(), args[0], u, ops)
			if err != nil {
				return err
			}
			out := struct {
				Schema    *types.CategorySchema `json:"schema"`
				Migration *types.Migration      `json:"migration,omitempty"`
			}{s, m}
			return a.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
				renderSchema(w, s)
				if m != nil {
					renderMigration(w, m)
				}
			})
		}),
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "update file (required)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "record a migration for the field changes")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSchemaDeprecateCmd(a *app) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "deprecate <category> <version>",
		Short: "Deprecate a schema version",
		Args:  exactArgs(2),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			s, err := c.DeprecateSchema(cmd.Context(), args[0], args[1], message)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), s, func(w io.Writer) {
				fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("%s@%s deprecated", s.CategoryID, s.Version)))
			})
		}),
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "deprecation message")
	return cmd
}
