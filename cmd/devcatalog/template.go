package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/devcatalog/pkg/catalog"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

func newTemplateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Browse the category templates",
	}

	var tags []string
	list := &cobra.Command{
		Use:   "list",
		Short: "List templates, most popular first",
		Args:  exactArgs(0),
		RunE: a.withCatalog(func(cmd *cobra.Command, _ []string, c *catalog.Catalog) error {
			return a.emitTemplates(cmd.OutOrStdout(), c.SearchTemplates("", tags))
		}),
	}
	list.Flags().StringSliceVar(&tags, "tag", nil, "only templates carrying every tag")

	var searchTags []string
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Find templates by name or description",
		Example: `  devcatalog template search monitor
  devcatalog template search "" --tag portable --tag audio`,
		Args: exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			return a.emitTemplates(cmd.OutOrStdout(), c.SearchTemplates(args[0], searchTags))
		}),
	}
	search.Flags().StringSliceVar(&searchTags, "tag", nil, "only templates carrying every tag")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a template and its starter schema",
		Args:  exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			t := c.Template(args[0])
			if t == nil {
				return types.NotFoundf(types.CodeTemplateNotFound, "template %s not found", args[0])
			}
			return a.emit(cmd.OutOrStdout(), t, func(w io.Writer) {
				fmt.Fprintln(w, titleStyle.Render(t.Name), mutedStyle.Render("("+t.ID+")"))
				fmt.Fprintln(w, t.Description)
				if len(t.Tags) > 0 {
					fmt.Fprintln(w, mutedStyle.Render("tags: "+strings.Join(t.Tags, ", ")))
				}
				renderSchema(w, &t.BaseSchema)
			})
		}),
	}

	cmd.AddCommand(list, search, show)
	return cmd
}

func (a *app) emitTemplates(w io.Writer, ts []*types.Template) error {
	return a.emit(w, ts, func(w io.Writer) {
		rows := make([][]string, len(ts))
		for i, t := range ts {
			rows[i] = []string{t.ID, t.Name, fmt.Sprint(t.Popularity), strings.Join(t.Tags, ","), fmt.Sprint(len(t.BaseSchema.Fields))}
		}
		renderTable(w, []string{"ID", "NAME", "POPULARITY", "TAGS", "FIELDS"}, rows)
	})
}
