package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mysql-hotbackup/internal/application"
	"mysql-hotbackup/internal/backup"
	"mysql-hotbackup/internal/config"
	"mysql-hotbackup/internal/engine"
)

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// rootOptions holds the state shared by every subcommand of one invocation
type rootOptions struct {
	cfgFile string
	loader  *config.Loader

	verbose bool
	quiet   bool

	// inverted display flags, applied only when set on the command line
	noColor    bool
	noIcons    bool
	noProgress bool

	// extra options for the application, used by tests
	appOptions []application.Option
}

// reportedError marks an error already shown to the operator
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Execute builds the command tree and runs it. This is called by main.main().
func Execute() {
	root := newRootCommand(&rootOptions{})
	if err := root.ExecuteContext(context.Background()); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status. An interrupted backup
// exits like a process killed by SIGINT.
func exitCode(err error) int {
	if backup.IsCancelled(err) {
		return 130
	}
	return 1
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	if opts.loader == nil {
		opts.loader = config.NewLoader()
	}

	root := &cobra.Command{
		Use:   "mysql-hotbackup",
		Short: "Hot backup of a running MySQL server's data directories",
		Long: `mysql-hotbackup copies the data directories of a running MySQL server into
a backup target while the server keeps serving traffic.

The directories to copy are discovered from the server variables datadir,
tokudb_data_dir, tokudb_log_dir and log_bin_basename. Directories nested in
another backed-up directory are copied once as part of their parent.

Examples:
  # Show which directories would be copied where
  mysql-hotbackup plan /backup/2024-06-01

  # Back up, limiting reads to 50 MiB/s
  mysql-hotbackup backup /backup/2024-06-01 --throttle 52428800

  # Pack the backup and upload it to the configured storage
  mysql-hotbackup archive /backup/2024-06-01

  # Back up a stopped server from configured paths only
  mysql-hotbackup backup /backup/cold --offline --datadir /var/lib/mysql`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose && opts.quiet {
				return fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/"+config.ConfigName+".yaml)")

	// server connection
	flags.String("host", "", "MySQL server host")
	flags.Int("port", 0, "MySQL server port")
	flags.String("socket", "", "MySQL server unix socket, used instead of host and port")
	flags.StringP("user", "u", "", "MySQL user")
	flags.String("password", "", "MySQL password (prefer "+config.EnvPrefix+"_SERVER_PASSWORD)")

	// directory overrides
	flags.Bool("offline", false, "do not contact the server, use the configured directories only")
	flags.String("datadir", "", "data directory, overrides the server's datadir")
	flags.String("tokudb-data-dir", "", "overrides the server's tokudb_data_dir")
	flags.String("tokudb-log-dir", "", "overrides the server's tokudb_log_dir")
	flags.String("log-bin-basename", "", "overrides the server's log_bin_basename")

	// logging
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress non-error output")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("log-format", "", "log format (text, json)")

	// display
	flags.BoolVar(&opts.noColor, "no-color", false, "disable color output")
	flags.BoolVar(&opts.noIcons, "no-icons", false, "disable Unicode icons")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "disable the live status line")
	flags.String("theme", "", "color theme (dark, light, high-contrast, auto, none)")
	flags.String("format", "", "output format (table, json, yaml, compact)")
	flags.String("table-style", "", "table style (default, rounded, border, minimal)")
	flags.Int("max-table-width", 0, "maximum table width (40-300)")

	bindFlags(opts, flags, map[string]string{
		"host":             "server.host",
		"port":             "server.port",
		"socket":           "server.socket",
		"user":             "server.username",
		"password":         "server.password",
		"offline":          "directories.offline",
		"datadir":          "directories.datadir",
		"tokudb-data-dir":  "directories.tokudb_data_dir",
		"tokudb-log-dir":   "directories.tokudb_log_dir",
		"log-bin-basename": "directories.log_bin_basename",
		"log-file":         "log_file",
		"log-format":       "log_format",
		"theme":            "display.theme",
		"format":           "display.output_format",
		"table-style":      "display.table_style",
		"max-table-width":  "display.max_table_width",
	})

	root.AddCommand(
		newPlanCommand(opts),
		newBackupCommand(opts),
		newArchiveCommand(opts),
		newUnpackCommand(opts),
		newListCommand(opts),
		newPruneCommand(opts),
		newKeygenCommand(opts),
		newCheckCommand(opts),
		newVersionCommand(),
		newConfigCommand(opts),
	)
	return root
}

// bindFlags binds flags to configuration keys. Only flags set on the
// command line override the config file and environment.
func bindFlags(opts *rootOptions, flags *pflag.FlagSet, keys map[string]string) {
	v := opts.loader.Viper()
	for name, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

// loadConfig reads the configuration with command line flags applied
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	v := opts.loader.Viper()
	flags := cmd.Flags()

	if opts.verbose {
		v.Set("log_level", "verbose")
		v.Set("display.verbose", true)
	}
	if opts.quiet {
		v.Set("log_level", "quiet")
		v.Set("display.quiet", true)
	}
	if flags.Changed("no-color") {
		v.Set("display.color_enabled", !opts.noColor)
	}
	if flags.Changed("no-icons") {
		v.Set("display.use_icons", !opts.noIcons)
	}
	if flags.Changed("no-progress") {
		v.Set("display.show_progress", !opts.noProgress)
	}

	cfg, err := opts.loader.Load(opts.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	cfg.Display.Writer = cmd.OutOrStdout()
	return cfg, nil
}

// runWithApp loads the configuration, creates the application and runs fn.
// Failures of fn are reported with troubleshooting hints.
func runWithApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, app *application.Application) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	appOpts := append([]application.Option{
		application.WithOverrides(config.NewViperProvider(opts.loader.Viper())),
		application.WithErrorOutput(cmd.ErrOrStderr()),
	}, opts.appOptions...)
	app, err := application.New(cfg, appOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()

	if used := opts.loader.ConfigFileUsed(); used != "" {
		app.Logger().WithField("config_file", used).Debug("Using config file")
	}

	if err := fn(cmd.Context(), app); err != nil {
		app.ReportError(err)
		return &reportedError{err: err}
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for mysql-hotbackup and its copy engine",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mysql-hotbackup version %s\n", version)
			fmt.Fprintf(out, "Engine: %s\n", backup.EngineVersion(engine.NewCopyEngine()))
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	var (
		output  string
		showEnv bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Print a commented configuration template that can be used with the --config flag.

With --output the effective configuration (file, environment and flags
combined) is written to a new file instead. With --env the environment
variables that are read are listed.

Examples:
  # Generate a config file
  mysql-hotbackup config > ~/.mysql-hotbackup.yaml

  # Save the effective configuration
  mysql-hotbackup config --output /etc/mysql-hotbackup.yaml --datadir /var/lib/mysql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case showEnv:
				fmt.Fprintln(out, strings.Join(config.EnvironmentVariables(), "\n"))
			case output != "":
				cfg, err := loadConfig(cmd, opts)
				if err != nil {
					return err
				}
				if err := config.WriteConfig(cfg, output); err != nil {
					return err
				}
				fmt.Fprintf(out, "Configuration written to %s\n", output)
			default:
				fmt.Fprint(out, config.GenerateConfigTemplate())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the effective configuration to a new file")
	cmd.Flags().BoolVar(&showEnv, "env", false, "list the environment variables that are read")
	return cmd
}
