package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"mysql-hotbackup/internal/application"
)

var errNotReady = errors.New("not ready to back up")

func newBackupCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup [target]",
		Short: "Copy the server's data directories into a backup target",
		Long: `Copy every data directory of the server into target while the server runs.

The target directory may already exist but the per-directory destinations
inside it must not. When target is omitted, backup.target from the
configuration is used. Only one backup runs at a time on a host; a second
invocation fails on the lock file instead of waiting.

Interrupting the command (Ctrl+C) stops the copy and leaves no manifest,
so a partial backup is never mistaken for a complete one.

Examples:
  # Back up into a dated directory
  mysql-hotbackup backup /backup/2024-06-01

  # Throttle reads and write a JSON manifest
  mysql-hotbackup backup /backup/2024-06-01 --throttle 104857600 --manifest json

  # Keep an audit trail of every run
  mysql-hotbackup backup /backup/nightly --audit-log /var/log/mysql-hotbackup/audit.log`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(opts, cmd.Flags(), map[string]string{
				"throttle":  "backup.throttle",
				"manifest":  "backup.manifest_format",
				"lock-file": "backup.lock_file",
				"audit-log": "backup.audit_log",
			})
			target := ""
			if len(args) > 0 {
				target = args[0]
			}
			return runWithApp(cmd, opts, func(ctx context.Context, app *application.Application) error {
				_, err := app.Backup(ctx, target)
				return err
			})
		},
	}

	cmd.Flags().Uint64("throttle", 0, "maximum read rate in bytes per second (0 = unlimited)")
	cmd.Flags().String("manifest", "", "manifest format written into the target (yaml, json, none)")
	cmd.Flags().String("lock-file", "", "lock file preventing concurrent backups")
	cmd.Flags().String("audit-log", "", "append a JSON audit record of the run to this file")
	return cmd
}

func newPlanCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [target]",
		Short: "Show which directories a backup would copy",
		Long: `Resolve the source directories from the server (or the configured
overrides) and print them with their roles. Directories nested inside
another source are shown as covered by their parent.

With a target the destination of every directory is shown as well. Nothing
is created or copied.

Examples:
  mysql-hotbackup plan
  mysql-hotbackup plan /backup/2024-06-01 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) > 0 {
				target = args[0]
			}
			return runWithApp(cmd, opts, func(ctx context.Context, app *application.Application) error {
				_, err := app.Plan(ctx, target)
				return err
			})
		},
	}
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	var skipTopology bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the configuration before running a backup",
		Long: `Run preflight checks: the backup target and lock file locations, the
encryption key, the archive storage and, unless --skip-topology is given,
the server's directory layout.

The command exits non-zero when a backup would fail. Storage problems only
degrade the result since they affect archive offload, not the backup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			healthy := false
			err := runWithApp(cmd, opts, func(ctx context.Context, app *application.Application) error {
				result, err := app.Check(ctx, skipTopology)
				if err != nil {
					return err
				}
				healthy = result.Healthy()
				return nil
			})
			if err != nil {
				return err
			}
			if !healthy {
				// the failed checks are already printed
				return &reportedError{err: errNotReady}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipTopology, "skip-topology", false, "do not resolve the server's directories")
	return cmd
}
