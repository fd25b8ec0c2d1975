// Package backup resolves which directories of a MySQL server make up a hot
// backup and drives a backup engine over them.
//
// A run goes through three steps:
//
// 1. Discover reads the primary data directory and the optional storage
// engine data, storage engine log and binary log directories from a
// ConfigProvider.
//
// 2. SourceSet.Verify compares every pair of directories. A directory that is
// already covered by another one is marked redundant. Overlaps that cannot be
// backed up safely, such as the data directory sitting inside the storage
// engine's data directory, are rejected with a TOPOLOGY_ERROR.
//
// 3. Materialize maps every remaining directory to a fixed subdirectory of
// the backup target, CreateAll creates them, and the Engine copies the trees.
//
// Example usage:
//
//	invoker, err := backup.NewInvoker(backup.InvokerConfig{
//		Provider: provider,
//		Engine:   engine.NewCopyEngine(),
//	})
//	if err != nil {
//		return err
//	}
//
//	status := backup.NewStatusBoard()
//	manifest, err := invoker.Run(ctx, "/backups/2024-01-01", status)
//	if backup.IsTopologyError(err) {
//		return fmt.Errorf("fix the directory layout first: %w", err)
//	}
package backup
