package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"

	"mysql-hotbackup/internal/archive"
	"mysql-hotbackup/internal/backup"
	appErrors "mysql-hotbackup/internal/errors"
	"mysql-hotbackup/internal/storage"
)

// ArchiveReport describes an archive offloaded to storage
type ArchiveReport struct {
	ManifestID string          `json:"manifest_id,omitempty" yaml:"manifest_id,omitempty"`
	Location   string          `json:"location" yaml:"location"`
	Archive    *archive.Result `json:"archive" yaml:"archive"`
}

// Archive packs a finished backup directory and uploads it to the
// configured storage. The stream is compressed and encrypted on the fly,
// nothing is staged on local disk.
func (app *Application) Archive(ctx context.Context, backupDir string) (*ArchiveReport, error) {
	info, err := os.Stat(backupDir)
	if err != nil {
		return nil, backup.NewValidationError("backup directory is not accessible", err).WithContext("path", backupDir)
	}
	if !info.IsDir() {
		return nil, backup.NewValidationError(backupDir+" is not a directory", nil)
	}

	report := &ArchiveReport{}
	manifest, err := backup.ReadManifest(backupDir)
	switch {
	case errors.Is(err, backup.ErrNoManifest):
		app.display.Warning(fmt.Sprintf("%s has no backup manifest, it may be incomplete", backupDir))
	case err != nil:
		return nil, err
	default:
		report.ManifestID = manifest.ID
	}

	ctx, stop := app.withShutdown(ctx)
	defer stop()

	provider, err := app.storageProvider(ctx)
	if err != nil {
		return nil, err
	}

	backupLogger, err := app.newBackupLogger()
	if err != nil {
		return nil, err
	}
	defer backupLogger.Close()

	archiver := archive.NewArchiver(app.config.Archive, app.logger)
	key := archiver.FileName(backupDir)
	metadata := map[string]string{
		"compression": string(app.config.Archive.Compression),
		"encrypted":   strconv.FormatBool(app.config.Archive.Encryption.Enabled),
	}
	if report.ManifestID != "" {
		metadata["manifest-id"] = report.ManifestID
	}

	done := backupLogger.LogStorageOperation(ctx, "upload", string(app.config.Storage.Provider), key)

	board := backup.NewStatusBoard()
	status := app.display.StartStatusLine(board)

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := archiver.Create(gctx, backupDir, pw, func(name string) {
			board.Publish("Archiving " + name)
		})
		report.Archive = result
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := provider.Upload(gctx, key, pr, metadata)
		// unblocks the writer if the upload stopped early
		pr.CloseWithError(err)
		return err
	})
	err = g.Wait()
	status.Stop("")

	if err != nil {
		done(err, nil)
		return nil, err
	}
	report.Location = provider.Location(key)
	done(nil, map[string]interface{}{
		"archive_bytes": report.Archive.ArchiveBytes,
		"files":         report.Archive.Contents.Files,
	})

	app.printArchive(report)
	return report, nil
}

func (app *Application) printArchive(report *ArchiveReport) {
	if app.display.GetConfig().Format().IsStructured() {
		app.display.PrintValue(report)
		return
	}
	result := report.Archive
	app.display.PrintTable([]string{"FILES", "BYTES", "ARCHIVE BYTES", "RATIO"}, [][]string{{
		strconv.Itoa(result.Contents.Files),
		strconv.FormatInt(result.Contents.Bytes, 10),
		strconv.FormatInt(result.ArchiveBytes, 10),
		fmt.Sprintf("%.2f", result.CompressionRatio),
	}})
	app.display.Success(fmt.Sprintf("Archive stored at %s", report.Location))
}

// Unpack restores an archive into dst, which must not exist or be empty.
// With fromStorage set, source is a key of the configured storage;
// otherwise it is a local file. The manifest of the unpacked backup is
// verified when one is present.
func (app *Application) Unpack(ctx context.Context, source, dst string, fromStorage bool) (*archive.PackStats, error) {
	ctx, stop := app.withShutdown(ctx)
	defer stop()

	var r io.ReadCloser
	if fromStorage {
		provider, err := app.storageProvider(ctx)
		if err != nil {
			return nil, err
		}
		if r, err = provider.Download(ctx, source); err != nil {
			return nil, err
		}
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, appErrors.WrapError(err, "failed to open archive "+source)
		}
		r = f
	}
	defer r.Close()

	board := backup.NewStatusBoard()
	status := app.display.StartStatusLine(board)
	archiver := archive.NewArchiver(app.config.Archive, app.logger)
	stats, err := archiver.Extract(ctx, source, r, dst, func(name string) {
		board.Publish("Extracting " + name)
	})
	status.Stop("")
	if err != nil {
		return nil, err
	}

	manifest, err := backup.ReadManifest(dst)
	switch {
	case errors.Is(err, backup.ErrNoManifest):
		app.display.Warning("The archive holds no backup manifest")
	case err != nil:
		return stats, err
	default:
		app.display.Info(fmt.Sprintf("Manifest %s verified", manifest.ID))
	}

	if app.display.GetConfig().Format().IsStructured() {
		app.display.PrintValue(stats)
	} else {
		app.display.Success(fmt.Sprintf("Unpacked %d files (%d bytes) into %s", stats.Files, stats.Bytes, dst))
	}
	return stats, nil
}

// List prints the archives in storage under prefix
func (app *Application) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	provider, err := app.storageProvider(ctx)
	if err != nil {
		return nil, err
	}
	objects, err := provider.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	if app.display.GetConfig().Format().IsStructured() {
		app.display.PrintValue(objects)
		return objects, nil
	}
	rows := make([][]string, 0, len(objects))
	for _, obj := range objects {
		rows = append(rows, []string{obj.Key, strconv.FormatInt(obj.Size, 10), obj.Modified.Format("2006-01-02 15:04:05")})
	}
	app.display.PrintTable([]string{"KEY", "SIZE", "MODIFIED"}, rows)
	return objects, nil
}

// Keygen writes a new random archive encryption key to path. An existing
// file is never overwritten.
func (app *Application) Keygen(path string) error {
	km := archive.NewKeyManager(&app.config.Archive.Encryption)
	key, err := km.GenerateKey()
	if err != nil {
		return err
	}
	if err := km.SaveKeyToFile(key, path); err != nil {
		return err
	}
	app.logger.WithField("path", path).Info("Encryption key generated")
	app.display.Success(fmt.Sprintf("Encryption key written to %s", path))
	return nil
}

// Prune deletes the archives under prefix that the storage retention rules
// no longer keep. With dryRun set the expired archives are only listed.
func (app *Application) Prune(ctx context.Context, prefix string, dryRun bool) (*storage.RetentionResult, error) {
	provider, err := app.storageProvider(ctx)
	if err != nil {
		return nil, err
	}

	result, err := storage.ApplyRetention(ctx, provider, app.config.Storage.Retention, prefix, dryRun)
	if result == nil {
		return nil, err
	}
	for _, obj := range result.Expired {
		app.logger.WithFields(map[string]interface{}{
			"key":     obj.Key,
			"size":    obj.Size,
			"dry_run": dryRun,
		}).Info("Archive expired")
	}

	if app.display.GetConfig().Format().IsStructured() {
		app.display.PrintValue(result)
		return result, err
	}
	rows := make([][]string, 0, len(result.Kept)+len(result.Expired))
	for _, obj := range result.Kept {
		rows = append(rows, []string{obj.Key, strconv.FormatInt(obj.Size, 10), "kept"})
	}
	action := "deleted"
	if dryRun {
		action = "would delete"
	}
	for _, obj := range result.Expired {
		rows = append(rows, []string{obj.Key, strconv.FormatInt(obj.Size, 10), action})
	}
	app.display.PrintTable([]string{"KEY", "SIZE", "ACTION"}, rows)

	if err != nil {
		return result, err
	}
	if dryRun {
		app.display.Info(fmt.Sprintf("%d archives (%d bytes) would be deleted", len(result.Expired), result.FreedBytes))
	} else {
		app.display.Success(fmt.Sprintf("Deleted %d archives, freed %d bytes", len(result.Expired), result.FreedBytes))
	}
	return result, nil
}
