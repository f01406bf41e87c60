package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/devcatalog/internal/paths"
	"github.com/mesh-intelligence/devcatalog/pkg/catalog"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and data directories",
		Long: `Init writes a default config.yaml into the configuration directory when
none exists, then opens the catalog once so the data directory and its
database are created.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(a.configDir, 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			configPath := paths.ConfigFile(a.configDir)
			wrote, err := writeConfigIfMissing(configPath, a.cfg)
			if err != nil {
				return err
			}
			return a.withCatalog(func(cmd *cobra.Command, _ []string, c *catalog.Catalog) error {
				status := struct {
					ConfigFile    string `json:"config_file"`
					ConfigWritten bool   `json:"config_written"`
					Backend       string `json:"backend"`
					DataDir       string `json:"data_dir"`
				}{configPath, wrote, c.Config().Backend, c.Config().DataDir}
				return a.emit(cmd.OutOrStdout(), status, func(w io.Writer) {
					fmt.Fprintln(w, successStyle.Render("devcatalog initialized"))
					fmt.Fprintln(w, "  config:", configPath)
					fmt.Fprintln(w, "  data:  ", status.DataDir)
				})
			})(cmd, nil)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the devcatalog version",
		Args:  exactArgs(0),
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "devcatalog", catalog.Version)
		},
	}
}
