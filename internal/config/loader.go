package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"mysql-hotbackup/internal/archive"
	"mysql-hotbackup/internal/backup"
	"mysql-hotbackup/internal/storage"
)

const (
	// EnvPrefix prefixes every environment variable the loader reads
	EnvPrefix = "MYSQL_HOTBACKUP"
	// ConfigName is the default config file name, searched in $HOME and the working directory
	ConfigName = ".mysql-hotbackup"
)

// Loader reads the configuration from file, environment and bound flags
type Loader struct {
	viper *viper.Viper
}

// NewLoader creates a loader over a fresh viper instance
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader over v, typically the instance cobra
// flags are bound to
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{viper: v}
}

// Viper returns the underlying viper instance
func (l *Loader) Viper() *viper.Viper {
	return l.viper
}

// Load reads configPath, or the default config file when configPath is
// empty, and returns the validated configuration. A missing default config
// file is not an error.
func (l *Loader) Load(configPath string) (*Config, error) {
	l.setupViper(configPath)
	l.setDefaults()

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ConfigFileUsed returns the file the last Load read, if any
func (l *Loader) ConfigFileUsed() string {
	return l.viper.ConfigFileUsed()
}

func (l *Loader) setupViper(configPath string) {
	if configPath != "" {
		l.viper.SetConfigFile(configPath)
	} else {
		l.viper.SetConfigName(ConfigName)
		l.viper.SetConfigType("yaml")
		l.viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.viper.AddConfigPath(home)
		}
	}

	l.viper.SetEnvPrefix(EnvPrefix)
	l.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.viper.AutomaticEnv()
}

// defaultSettings lists every key with its default. AutomaticEnv only
// resolves keys viper already knows, so keys without a useful default are
// listed with their zero value.
func defaultSettings() map[string]interface{} {
	return map[string]interface{}{
		"server.host":     "localhost",
		"server.port":     3306,
		"server.socket":   "",
		"server.username": "root",
		"server.password": "",
		"server.timeout":  "30s",

		"directories.offline":          false,
		"directories.datadir":          "",
		"directories.tokudb_data_dir":  "",
		"directories.tokudb_log_dir":   "",
		"directories.log_bin_basename": "",

		"backup.target":          "",
		"backup.throttle":        0,
		"backup.lock_file":       filepath.Join(os.TempDir(), DefaultLockFileName),
		"backup.manifest_format": string(backup.ManifestFormatYAML),
		"backup.audit_log":       "",

		"archive.compression":            string(archive.CompressionTypeZstd),
		"archive.level":                  0,
		"archive.encryption.enabled":     false,
		"archive.encryption.key_source":  archive.KeySourceEnv,
		"archive.encryption.key_path":    "",
		"archive.encryption.key_env_var": "MYSQL_HOTBACKUP_ENCRYPTION_KEY",

		"storage.provider":             string(storage.ProviderLocal),
		"storage.prefix":               storage.DefaultPrefix,
		"storage.local.base_path":      DefaultLocalStoragePath,
		"storage.local.permissions":    0750,
		"storage.s3.bucket":            "",
		"storage.s3.region":            "us-east-1",
		"storage.s3.access_key":        "",
		"storage.s3.secret_key":        "",
		"storage.s3.endpoint":          "",
		"storage.s3.force_path_style":  false,
		"storage.azure.account_name":   "",
		"storage.azure.account_key":    "",
		"storage.azure.container_name": "",
		"storage.gcs.bucket":           "",
		"storage.gcs.credentials_path": "",
		"storage.gcs.project_id":       "",

		"storage.retention.max_archives": 0,
		"storage.retention.max_age":      "0s",
		"storage.retention.keep_daily":   0,
		"storage.retention.keep_weekly":  0,
		"storage.retention.keep_monthly": 0,

		"display.color_enabled":   true,
		"display.theme":           "dark",
		"display.output_format":   "table",
		"display.use_icons":       true,
		"display.show_progress":   true,
		"display.verbose":         false,
		"display.quiet":           false,
		"display.table_style":     "default",
		"display.max_table_width": 120,

		"log_level":  "normal",
		"log_format": "text",
		"log_file":   "",
	}
}

func (l *Loader) setDefaults() {
	for key, value := range defaultSettings() {
		l.viper.SetDefault(key, value)
	}
}

// EnvironmentVariables lists the environment variables the loader reads
func EnvironmentVariables() []string {
	settings := defaultSettings()
	vars := make([]string, 0, len(settings))
	for key := range settings {
		vars = append(vars, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
	sort.Strings(vars)
	return vars
}

// WriteConfig marshals config as YAML to path. An existing file is never
// overwritten. The file may hold credentials, so it is private to the owner.
func WriteConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return f.Close()
}

// GenerateConfigTemplate returns a commented sample configuration
func GenerateConfigTemplate() string {
	return `# mysql-hotbackup configuration
# Every key can also be set through MYSQL_HOTBACKUP_<SECTION>_<KEY>,
# e.g. MYSQL_HOTBACKUP_SERVER_PASSWORD.

# Server whose directories are backed up
server:
  host: localhost
  port: 3306
  socket: ""              # takes precedence over host and port
  username: root
  password: ""            # prefer MYSQL_HOTBACKUP_SERVER_PASSWORD
  timeout: 30s

# Directory variables. Non-empty values override what the server reports.
# With offline: true the server is not contacted at all.
directories:
  offline: false
  datadir: ""
  tokudb_data_dir: ""
  tokudb_log_dir: ""
  log_bin_basename: ""

backup:
  target: ""              # absolute, existing target root
  throttle: 0             # bytes per second, 0 = unlimited
  lock_file: ""           # defaults to mysql-hotbackup.lock in the temp dir
  manifest_format: yaml   # yaml, json or none
  audit_log: ""           # JSON audit trail, disabled when empty

archive:
  compression: zstd       # none, gzip, lz4, zstd
  level: 0                # 0 = algorithm default
  encryption:
    enabled: false
    key_source: env       # env, file, passphrase
    key_path: ""
    key_env_var: MYSQL_HOTBACKUP_ENCRYPTION_KEY

storage:
  provider: local         # local, s3, azure, gcs
  prefix: backups/
  local:
    base_path: ./archives
  s3:
    bucket: ""
    region: us-east-1
    endpoint: ""          # S3 compatible services
    force_path_style: false
  azure:
    account_name: ""
    account_key: ""
    container_name: ""
  gcs:
    bucket: ""
    credentials_path: ""
    project_id: ""
  # Used by prune. An archive survives when any rule keeps it.
  retention:
    max_archives: 0       # keep the newest N archives
    max_age: 0s           # keep archives younger than this, e.g. 720h
    keep_daily: 0
    keep_weekly: 0
    keep_monthly: 0

display:
  color_enabled: true
  theme: dark             # dark, light, high-contrast, auto
  output_format: table    # table, json, yaml, compact
  use_icons: true
  show_progress: true
  table_style: default    # default, rounded, border, minimal
  max_table_width: 120

log_level: normal         # quiet, normal, verbose, debug
log_format: text          # text or json
log_file: ""
`
}
