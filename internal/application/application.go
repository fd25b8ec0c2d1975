package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"mysql-hotbackup/internal/backup"
	"mysql-hotbackup/internal/config"
	"mysql-hotbackup/internal/database"
	"mysql-hotbackup/internal/display"
	"mysql-hotbackup/internal/engine"
	appErrors "mysql-hotbackup/internal/errors"
	"mysql-hotbackup/internal/logging"
	"mysql-hotbackup/internal/storage"
)

// Application wires the configuration, the server connection and the
// backup core for one command invocation
type Application struct {
	config    *config.Config
	logger    *logging.Logger
	display   display.DisplayService
	dbService database.DatabaseService
	engine    backup.Engine
	overrides backup.ConfigProvider
	storage   storage.Provider
	stderr    io.Writer
}

// Option customizes an Application
type Option func(*Application)

// WithLogger replaces the logger built from the configuration
func WithLogger(logger *logging.Logger) Option {
	return func(app *Application) { app.logger = logger }
}

// WithDisplay replaces the display built from the configuration
func WithDisplay(ds display.DisplayService) Option {
	return func(app *Application) { app.display = ds }
}

// WithDatabaseService replaces the MySQL connection service
func WithDatabaseService(svc database.DatabaseService) Option {
	return func(app *Application) { app.dbService = svc }
}

// WithEngine replaces the copy engine
func WithEngine(e backup.Engine) Option {
	return func(app *Application) { app.engine = e }
}

// WithOverrides sets the provider consulted before the server. By default
// the directories section of the configuration is used.
func WithOverrides(provider backup.ConfigProvider) Option {
	return func(app *Application) { app.overrides = provider }
}

// WithStorage replaces the storage provider built from the configuration
func WithStorage(provider storage.Provider) Option {
	return func(app *Application) { app.storage = provider }
}

// WithErrorOutput sets where ReportError writes, os.Stderr by default
func WithErrorOutput(w io.Writer) Option {
	return func(app *Application) { app.stderr = w }
}

// New creates an application for a loaded and validated configuration
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	app := &Application{config: cfg, stderr: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}

	if app.logger == nil {
		logger, err := logging.NewLogger(cfg.LoggerConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		app.logger = logger
	}
	if app.display == nil {
		app.display = display.NewDisplayService(&cfg.Display)
	}
	if app.dbService == nil {
		app.dbService = database.NewServiceWithLogger(app.logger)
	}
	if app.engine == nil {
		app.engine = engine.NewCopyEngine()
	}
	if app.overrides == nil {
		app.overrides = config.StaticProvider(cfg.Directories.Variables())
	}

	return app, nil
}

// Logger returns the application logger
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// Display returns the display service
func (app *Application) Display() display.DisplayService {
	return app.display
}

// Close releases the log file, if any
func (app *Application) Close() error {
	return app.logger.Close()
}

// EngineVersion reports the version of the configured copy engine
func (app *Application) EngineVersion() string {
	return backup.EngineVersion(app.engine)
}

// configProvider returns where server variables are read from. In offline
// mode only the configured directories are used; otherwise they override
// what a live server reports. The returned function releases the connection.
func (app *Application) configProvider(ctx context.Context) (backup.ConfigProvider, func(), error) {
	if app.config.Directories.Offline {
		app.logger.Debug("Offline mode, server variables come from the configuration")
		return app.overrides, func() {}, nil
	}

	db, err := app.dbService.Connect(ctx, app.config.Server)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, backup.NewCancelledError(err)
		}
		return nil, nil, err
	}
	provider := config.NewOverrideProvider(app.overrides, database.NewVariableProvider(db, app.logger))
	return provider, func() { app.dbService.Close(db) }, nil
}

func (app *Application) newBackupLogger() (*backup.BackupLogger, error) {
	return backup.NewBackupLogger(backup.BackupLoggerConfig{
		Logger:         app.logger,
		AuditLogFile:   app.config.Backup.AuditLog,
		EnableAuditLog: app.config.Backup.AuditLog != "",
	})
}

func (app *Application) newInvoker(provider backup.ConfigProvider, logger *backup.BackupLogger) (*backup.Invoker, error) {
	format, err := backup.ParseManifestFormat(app.config.Backup.ManifestFormat)
	if err != nil {
		return nil, backup.NewValidationError("invalid manifest format", err)
	}
	return backup.NewInvoker(backup.InvokerConfig{
		Provider:       provider,
		Engine:         app.engine,
		Logger:         logger,
		Throttle:       app.config.Backup.Throttle,
		ManifestFormat: format,
	})
}

func (app *Application) storageProvider(ctx context.Context) (storage.Provider, error) {
	if app.storage != nil {
		return app.storage, nil
	}
	provider, err := storage.NewProvider(ctx, app.config.Storage)
	if err != nil {
		return nil, appErrors.NewAppError(appErrors.ErrorTypeStorage, "failed to create storage provider", err)
	}
	app.storage = provider
	return provider, nil
}

// withShutdown returns a context that SIGINT or SIGTERM cancels, and the
// function that stops listening
func (app *Application) withShutdown(ctx context.Context) (context.Context, func()) {
	handler := appErrors.NewGracefulShutdownHandler()
	ctx = handler.Context(ctx)
	handler.RegisterShutdownFunc(func() error {
		app.logger.Warn("Interrupted, stopping the running operation")
		return nil
	})
	handler.Start()
	return ctx, handler.Stop
}

// ReportError prints err for the operator along with hints for its kind
func (app *Application) ReportError(err error) {
	if err == nil {
		return
	}

	var backupErr *backup.BackupError
	if errors.As(err, &backupErr) {
		app.logger.WithFields(map[string]interface{}{
			"error_type": string(backupErr.Type),
			"context":    backupErr.Context,
		}).Error("Operation failed")
		fmt.Fprintf(app.stderr, "Error: %s\n", backupErr.Error())
		app.provideTroubleshootingHints(backupErr.Type)
		return
	}

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		app.logger.WithFields(map[string]interface{}{
			"error_type":  string(appErr.Type),
			"recoverable": appErr.IsRecoverable(),
			"context":     appErr.Context,
		}).Error("Operation failed")
		fmt.Fprintf(app.stderr, "Error: %s\n", appErrors.FormatUserError(appErr))
		if appErr.Type == appErrors.ErrorTypeConnection {
			app.printHints(
				"Check that the MySQL server is running",
				"Verify the server host and port",
				"Set directories.offline to back up without a server connection")
		}
		return
	}

	fmt.Fprintf(app.stderr, "Error: %v\n", err)
}

func (app *Application) provideTroubleshootingHints(errorType backup.BackupErrorType) {
	switch errorType {
	case backup.BackupErrorTypeConfiguration:
		app.printHints(
			"The server must report an absolute datadir",
			"Pin the directory with directories.datadir if the server reports a relative path")
	case backup.BackupErrorTypeTopology:
		app.printHints(
			"A data directory nested inside another one cannot be backed up",
			"Move the nested directory or point tokudb_data_dir at the data directory itself")
	case backup.BackupErrorTypeDestination:
		app.printHints(
			"The backup target must not contain directories of a previous run",
			"Check that the target filesystem is writable and has free space")
	case backup.BackupErrorTypeLock:
		app.printHints(
			"Another backup is running on this host",
			"Remove the lock file only if no mysql-hotbackup process is alive")
	case backup.BackupErrorTypeCancelled:
		app.printHints("The partial backup in the target directory is incomplete and should be deleted")
	case backup.BackupErrorTypeEngine:
		app.printHints(
			"The partial backup in the target directory is incomplete and should be deleted",
			"Check the log for the file the engine failed on")
	}
}

func (app *Application) printHints(hints ...string) {
	fmt.Fprintf(app.stderr, "\nTroubleshooting hints:\n")
	for _, hint := range hints {
		fmt.Fprintf(app.stderr, "- %s\n", hint)
	}
}
