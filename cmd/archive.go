package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"mysql-hotbackup/internal/application"
	"mysql-hotbackup/internal/archive"
)

// addStorageFlags adds the flags of the commands talking to archive storage
func addStorageFlags(cmd *cobra.Command) map[string]string {
	cmd.Flags().String("storage", "", "storage provider (local, s3, azure, gcs)")
	cmd.Flags().String("prefix", "", "key prefix inside the storage")
	cmd.Flags().String("local-path", "", "base directory of the local storage provider")
	return map[string]string{
		"storage":    "storage.provider",
		"prefix":     "storage.prefix",
		"local-path": "storage.local.base_path",
	}
}

// addKeyFlags adds the encryption key flags. A key file given on the
// command line selects the file key source.
func addKeyFlags(cmd *cobra.Command) map[string]string {
	cmd.Flags().String("key-source", "", "where the encryption key comes from (env, file, passphrase)")
	cmd.Flags().String("key-file", "", "read the encryption key from this file")
	return map[string]string{
		"key-source": "archive.encryption.key_source",
		"key-file":   "archive.encryption.key_path",
	}
}

func bindArchiveFlags(cmd *cobra.Command, opts *rootOptions, keys ...map[string]string) {
	for _, k := range keys {
		bindFlags(opts, cmd.Flags(), k)
	}
	if cmd.Flags().Changed("key-file") && !cmd.Flags().Changed("key-source") {
		opts.loader.Viper().Set("archive.encryption.key_source", archive.KeySourceFile)
	}
}

func newArchiveCommand(opts *rootOptions) *cobra.Command {
	var storageKeys, keyKeys map[string]string

	cmd := &cobra.Command{
		Use:   "archive <backup-dir>",
		Short: "Pack a finished backup and upload it to storage",
		Long: `Pack a backup directory into a single tar stream, compress and optionally
encrypt it, and upload it to the configured storage under
<prefix><backup-name>.tar[.gz|.lz4|.zst][.enc].

The stream is uploaded while it is produced; nothing is written to local
disk. A backup without a manifest is archived with a warning.

Examples:
  # Archive to the local storage directory with zstd
  mysql-hotbackup archive /backup/2024-06-01

  # Encrypted upload to S3
  mysql-hotbackup archive /backup/2024-06-01 --storage s3 --encrypt --key-file /etc/mysql-hotbackup/archive.key`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindArchiveFlags(cmd, opts, map[string]string{
				"compression": "archive.compression",
				"level":       "archive.level",
				"encrypt":     "archive.encryption.enabled",
			}, storageKeys, keyKeys)
			return runWithApp(cmd, opts, func(ctx context.Context, app *application.Application) error {
				_, err := app.Archive(ctx, args[0])
				return err
			})
		},
	}

	cmd.Flags().String("compression", "", "compression algorithm (none, gzip, lz4, zstd)")
	cmd.Flags().Int("level", 0, "compression level (0 = algorithm default)")
	cmd.Flags().Bool("encrypt", false, "encrypt the archive with AES-256-GCM")
	storageKeys = addStorageFlags(cmd)
	keyKeys = addKeyFlags(cmd)
	return cmd
}

func newUnpackCommand(opts *rootOptions) *cobra.Command {
	var (
		fromStorage          bool
		storageKeys, keyKeys map[string]string
	)

	cmd := &cobra.Command{
		Use:   "unpack <archive> <dir>",
		Short: "Restore an archive into a directory",
		Long: `Decrypt, decompress and extract an archive into dir, which must not exist
or be empty. The compression and encryption are taken from the archive
name. With --from-storage the archive is a key of the configured storage,
otherwise a local file.

The manifest of the restored backup is verified when present.

Examples:
  mysql-hotbackup unpack 2024-06-01.tar.zst /restore/2024-06-01 --from-storage
  mysql-hotbackup unpack /tmp/2024-06-01.tar.gz.enc /restore/2024-06-01 --key-file archive.key`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindArchiveFlags(cmd, opts, storageKeys, keyKeys)
			return runWithApp(cmd, opts, func(ctx context.Context, app *application.Application) error {
				_, err := app.Unpack(ctx, args[0], args[1], fromStorage)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&fromStorage, "from-storage", false, "read the archive from the configured storage")
	storageKeys = addStorageFlags(cmd)
	keyKeys = addKeyFlags(cmd)
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var storageKeys map[string]string

	cmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List the archives in storage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindArchiveFlags(cmd, opts, storageKeys)
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			return runWithApp(cmd, opts, func(ctx context.Context, app *application.Application) error {
				_, err := app.List(ctx, prefix)
				return err
			})
		},
	}
	storageKeys = addStorageFlags(cmd)
	return cmd
}

func newKeygenCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen <path>",
		Short: "Generate an archive encryption key",
		Long: `Write a new random 256-bit key, hex encoded, to path with owner-only
permissions. An existing file is never overwritten.

Example:
  mysql-hotbackup keygen /etc/mysql-hotbackup/archive.key
  mysql-hotbackup archive /backup/2024-06-01 --encrypt --key-file /etc/mysql-hotbackup/archive.key`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, app *application.Application) error {
				return app.Keygen(args[0])
			})
		},
	}
}

func newPruneCommand(opts *rootOptions) *cobra.Command {
	var (
		dryRun      bool
		storageKeys map[string]string
	)

	cmd := &cobra.Command{
		Use:   "prune [prefix]",
		Short: "Delete archives the retention rules no longer keep",
		Long: `Apply storage.retention to the archives in storage. An archive is kept when
any rule keeps it and the newest archive is always kept. Objects that are
not archives are never touched.

Examples:
  # Show what keeping 7 archives would delete
  mysql-hotbackup prune --keep 7 --dry-run

  # Keep a month of archives plus one per week for three months
  mysql-hotbackup prune --max-age 720h --keep-weekly 12`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindArchiveFlags(cmd, opts, storageKeys, map[string]string{
				"keep":         "storage.retention.max_archives",
				"max-age":      "storage.retention.max_age",
				"keep-daily":   "storage.retention.keep_daily",
				"keep-weekly":  "storage.retention.keep_weekly",
				"keep-monthly": "storage.retention.keep_monthly",
			})
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			return runWithApp(cmd, opts, func(ctx context.Context, app *application.Application) error {
				_, err := app.Prune(ctx, prefix, dryRun)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only list the archives that would be deleted")
	cmd.Flags().Int("keep", 0, "keep the newest N archives")
	cmd.Flags().Duration("max-age", 0, "keep archives younger than this")
	cmd.Flags().Int("keep-daily", 0, "keep the newest archive of each of the last N days")
	cmd.Flags().Int("keep-weekly", 0, "keep the newest archive of each of the last N weeks")
	cmd.Flags().Int("keep-monthly", 0, "keep the newest archive of each of the last N months")
	storageKeys = addStorageFlags(cmd)
	return cmd
}
