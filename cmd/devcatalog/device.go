package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/devcatalog/pkg/catalog"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

func newDeviceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Add and validate devices",
	}
	cmd.AddCommand(newDeviceAddCmd(a), newDeviceGetCmd(a), newDeviceValidateCmd(a))
	return cmd
}

func newDeviceAddCmd(a *app) *cobra.Command {
	var (
		dev   types.Device
		specs []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a device to a category",
		Long: `Add files a device under a category. Specifications are key=value pairs;
values that parse as JSON are stored as such, anything else as a string.`,
		Example: `  devcatalog device add --category monitor --name "UltraGear 27" --brand LG \
    --spec resolution=2560x1440 --spec refreshRate=165 --spec hdr=true`,
		Args: exactArgs(0),
		RunE: a.withCatalog(func(cmd *cobra.Command, _ []string, c *catalog.Catalog) error {
			parsed, err := parseSpecs(specs)
			if err != nil {
				return err
			}
			dev.Specifications = parsed
			d, err := c.AddDevice(cmd.Context(), &dev)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), d, func(w io.Writer) {
				fmt.Fprintf(w, "Added device %s (%s@%s)\n", titleStyle.Render(d.DeviceID), d.CategoryID, d.SchemaVersion)
			})
		}),
	}
	cmd.Flags().StringVar(&dev.CategoryID, "category", "", "category id (required)")
	cmd.Flags().StringVar(&dev.SchemaVersion, "version", "", "schema version (default: latest active)")
	cmd.Flags().StringVar(&dev.Name, "name", "", "device name (required)")
	cmd.Flags().StringVar(&dev.Brand, "brand", "", "brand")
	cmd.Flags().StringVar(&dev.Model, "model", "", "model")
	cmd.Flags().StringArrayVar(&specs, "spec", nil, "specification key=value (repeatable)")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// parseSpecs turns key=value pairs into specification values.
func parseSpecs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, usageError{fmt.Errorf("invalid spec %q (expected key=value)", p)}
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		out[key] = parsed
	}
	return out, nil
}

func newDeviceGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <device-id>",
		Short: "Show a device and its specifications",
		Args:  exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			d, err := c.GetDevice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), d, func(w io.Writer) {
				fmt.Fprintf(w, "%s  %s %s\n", titleStyle.Render(d.Name), d.Brand, d.Model)
				fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%s  %s@%s", d.DeviceID, d.CategoryID, d.SchemaVersion)))
				rows := make([][]string, 0, len(d.Specifications))
				for k, v := range d.Specifications {
					rows = append(rows, []string{k, fmt.Sprint(v)})
				}
				sortRows(rows)
				renderTable(w, []string{"FIELD", "VALUE"}, rows)
				renderList(w, "Needs revalidation", d.Revalidate, warningStyle)
			})
		}),
	}
}

func newDeviceValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <device-id>",
		Short: "Check a stored device against its schema",
		Args:  exactArgs(1),
		RunE: a.withCatalog(func(cmd *cobra.Command, args []string, c *catalog.Catalog) error {
			v, err := c.ValidateDevice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), v, func(w io.Writer) {
				if v.Valid {
					fmt.Fprintln(w, successStyle.Render("valid"), mutedStyle.Render(v.CategoryID+"@"+v.SchemaVersion))
					return
				}
				fmt.Fprintln(w, errorStyle.Render("invalid"), mutedStyle.Render(v.CategoryID+"@"+v.SchemaVersion))
				rows := make([][]string, len(v.Issues))
				for i, is := range v.Issues {
					rows[i] = []string{is.Field, is.Code, is.Message}
				}
				renderTable(w, []string{"FIELD", "CODE", "MESSAGE"}, rows)
			})
		}),
	}
}
