package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/devcatalog/internal/paths"
	"github.com/mesh-intelligence/devcatalog/pkg/catalog"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// usageError marks bad flags or arguments.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// exitCode maps an error to exitUserError for bad input and for the
// validation, not-found, invalid-state, duplicate and inheritance kinds,
// and to exitSysError otherwise.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ue usageError
	if errors.As(err, &ue) || types.IsUserError(err) {
		return exitUserError
	}
	return exitSysError
}

// app holds the global flags and the configuration shared by subcommands.
type app struct {
	configDir string
	dataDir   string
	jsonOut   bool

	cfg  types.Config
	opts []catalog.Option
}

func newRootCmd(opts ...catalog.Option) *cobra.Command {
	a := &app{opts: opts}
	root := &cobra.Command{
		Use:   "devcatalog",
		Short: "Manage device categories, schema migrations and compatibility rules",
		Long: `devcatalog keeps a catalog of device categories whose schemas evolve
through versioned migrations, the devices filed under them, and the rules
that decide whether two devices work together.`,
		Version:           catalog.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $"+paths.EnvConfigDir+" or the platform config dir)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (default: $"+paths.EnvDataDir+", config.yaml, or the platform data dir)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "output as JSON")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newTemplateCmd(a),
		newSchemaCmd(a),
		newMigrationCmd(a),
		newRuleCmd(a),
		newDeviceCmd(a),
		newCompatCmd(a),
	)
	return root
}

// setup resolves the directories and loads config.yaml.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return err
	}
	a.configDir = configDir
	a.cfg, err = loadConfig(configDir, a.dataDir)
	return err
}

// withCatalog opens the catalog around fn and closes it afterwards.
func (a *app) withCatalog(fn func(cmd *cobra.Command, args []string, c *catalog.Catalog) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		opts := append([]catalog.Option{catalog.WithLogOutput(cmd.ErrOrStderr())}, a.opts...)
		c, err := catalog.Open(cmd.Context(), a.cfg, opts...)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, c.Close()) }()
		return fn(cmd, args, c)
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.ExactArgs(n))
}

func wrapArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
