package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mysql-hotbackup/internal/archive"
	"mysql-hotbackup/internal/backup"
	"mysql-hotbackup/internal/database"
	"mysql-hotbackup/internal/display"
	"mysql-hotbackup/internal/logging"
	"mysql-hotbackup/internal/storage"
)

// DefaultLockFileName is created in the temp directory unless backup.lock_file is set
const DefaultLockFileName = "mysql-hotbackup.lock"

// DefaultLocalStoragePath receives archives when the local provider has no base path
const DefaultLocalStoragePath = "./archives"

// Config is the complete application configuration
type Config struct {
	Server      database.DatabaseConfig `mapstructure:"server" yaml:"server"`
	Directories DirectoriesConfig       `mapstructure:"directories" yaml:"directories"`
	Backup      BackupConfig            `mapstructure:"backup" yaml:"backup"`
	Archive     archive.Config          `mapstructure:"archive" yaml:"archive"`
	Storage     storage.Config          `mapstructure:"storage" yaml:"storage"`
	Display     display.DisplayConfig   `mapstructure:"display" yaml:"display"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	LogFile   string `mapstructure:"log_file" yaml:"log_file"`
}

// DirectoriesConfig pins server directory variables. With Offline set the
// server is never contacted and only these values are used; otherwise a
// non-empty value overrides what the server reports.
type DirectoriesConfig struct {
	Offline        bool   `mapstructure:"offline" yaml:"offline"`
	DataDir        string `mapstructure:"datadir" yaml:"datadir"`
	AuxDataDir     string `mapstructure:"tokudb_data_dir" yaml:"tokudb_data_dir"`
	AuxLogDir      string `mapstructure:"tokudb_log_dir" yaml:"tokudb_log_dir"`
	BinlogBasename string `mapstructure:"log_bin_basename" yaml:"log_bin_basename"`
}

// Variables returns the configured values keyed by server variable name.
// Empty values are left out.
func (dc DirectoriesConfig) Variables() map[string]string {
	vars := make(map[string]string)
	for name, value := range map[string]string{
		backup.VariableDataDir:        dc.DataDir,
		backup.VariableAuxDataDir:     dc.AuxDataDir,
		backup.VariableAuxLogDir:      dc.AuxLogDir,
		backup.VariableBinlogBasename: dc.BinlogBasename,
	} {
		if value != "" {
			vars[name] = value
		}
	}
	return vars
}

// BackupConfig controls a backup run
type BackupConfig struct {
	Target         string `mapstructure:"target" yaml:"target"`
	Throttle       uint64 `mapstructure:"throttle" yaml:"throttle"`
	LockFile       string `mapstructure:"lock_file" yaml:"lock_file"`
	ManifestFormat string `mapstructure:"manifest_format" yaml:"manifest_format"`
	AuditLog       string `mapstructure:"audit_log" yaml:"audit_log"`
}

// SetDefaults fills unset values across all sections
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Backup.SetDefaults()
	c.Archive.SetDefaults()
	c.Storage.SetDefaults()
	if c.Storage.Local.BasePath == "" {
		c.Storage.Local.BasePath = DefaultLocalStoragePath
	}
	c.Display.SetDefaults()

	if c.LogLevel == "" {
		c.LogLevel = string(logging.LogLevelNormal)
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// SetDefaults sets default values for backup configuration
func (bc *BackupConfig) SetDefaults() {
	if bc.LockFile == "" {
		bc.LockFile = filepath.Join(os.TempDir(), DefaultLockFileName)
	}
	if bc.ManifestFormat == "" {
		bc.ManifestFormat = string(backup.ManifestFormatYAML)
	}
}

// Validate validates the backup configuration
func (bc *BackupConfig) Validate() error {
	var errs []error

	if bc.Target != "" && !filepath.IsAbs(bc.Target) {
		errs = append(errs, fmt.Errorf("target %q must be an absolute path", bc.Target))
	}
	if bc.LockFile == "" {
		errs = append(errs, errors.New("lock_file is required"))
	}
	if _, err := backup.ParseManifestFormat(bc.ManifestFormat); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Validate validates the directory overrides
func (dc *DirectoriesConfig) Validate() error {
	if dc.Offline && dc.DataDir == "" {
		return errors.New("datadir is required in offline mode")
	}
	return nil
}

// Validate checks every section and reports all problems at once. The
// server section is only checked when the server will be contacted.
func (c *Config) Validate() error {
	var errs []error

	if !c.Directories.Offline {
		if err := c.Server.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("server: %w", err))
		}
	}
	if err := c.Directories.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("directories: %w", err))
	}
	if err := c.Backup.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("backup: %w", err))
	}
	if err := c.Archive.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("archive: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := c.Display.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("display: %w", err))
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q, must be text or json", c.LogFormat))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// LoggerConfig converts the log settings to a logging.Config
func (c *Config) LoggerConfig() logging.Config {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		level = logging.LogLevelNormal
	}
	return logging.Config{
		Level:   level,
		Format:  c.LogFormat,
		LogFile: c.LogFile,
	}
}

func parseLogLevel(name string) (logging.LogLevel, error) {
	switch level := logging.LogLevel(strings.ToLower(name)); level {
	case logging.LogLevelQuiet, logging.LogLevelNormal, logging.LogLevelVerbose, logging.LogLevelDebug:
		return level, nil
	}
	return "", fmt.Errorf("invalid log level %q, must be one of quiet, normal, verbose, debug", name)
}

// ValidationError lists every configuration problem found
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "configuration validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return e.Errors
}
