package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-hotbackup/internal/archive"
	"mysql-hotbackup/internal/backup"
	"mysql-hotbackup/internal/database"
	"mysql-hotbackup/internal/logging"
	"mysql-hotbackup/internal/storage"
)

func validConfig() *Config {
	config := &Config{
		Server: database.DatabaseConfig{Host: "localhost", Username: "backup"},
	}
	config.SetDefaults()
	return config
}

func TestConfig_SetDefaults(t *testing.T) {
	config := &Config{}
	config.SetDefaults()

	assert.Equal(t, 3306, config.Server.Port)
	assert.Equal(t, filepath.Join(os.TempDir(), DefaultLockFileName), config.Backup.LockFile)
	assert.Equal(t, string(backup.ManifestFormatYAML), config.Backup.ManifestFormat)
	assert.Equal(t, archive.CompressionTypeZstd, config.Archive.Compression)
	assert.Equal(t, storage.ProviderLocal, config.Storage.Provider)
	assert.Equal(t, DefaultLocalStoragePath, config.Storage.Local.BasePath)
	assert.Equal(t, "normal", config.LogLevel)
	assert.Equal(t, "text", config.LogFormat)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr []string
	}{
		{
			name:   "defaults with server",
			modify: func(*Config) {},
		},
		{
			name: "offline skips the server section",
			modify: func(c *Config) {
				c.Server = database.DatabaseConfig{}
				c.Directories = DirectoriesConfig{Offline: true, DataDir: "/var/lib/mysql"}
			},
		},
		{
			name: "offline needs datadir",
			modify: func(c *Config) {
				c.Directories.Offline = true
			},
			wantErr: []string{"datadir is required"},
		},
		{
			name: "relative target",
			modify: func(c *Config) {
				c.Backup.Target = "backups/run1"
			},
			wantErr: []string{"must be an absolute path"},
		},
		{
			name: "several problems reported together",
			modify: func(c *Config) {
				c.Server.Username = ""
				c.Backup.ManifestFormat = "xml"
				c.LogLevel = "loud"
				c.LogFormat = "xml"
			},
			wantErr: []string{"server:", "manifest format", "log level", "log format"},
		},
		{
			name: "archive compression",
			modify: func(c *Config) {
				c.Archive.Compression = "bzip2"
			},
			wantErr: []string{"archive:"},
		},
		{
			name: "storage section",
			modify: func(c *Config) {
				c.Storage.Provider = storage.ProviderS3
			},
			wantErr: []string{"storage:", "s3.bucket"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(config)

			err := config.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestDirectoriesConfig_Variables(t *testing.T) {
	dc := DirectoriesConfig{DataDir: "/var/lib/mysql", AuxLogDir: "/var/log/tokudb"}

	assert.Equal(t, map[string]string{
		backup.VariableDataDir:   "/var/lib/mysql",
		backup.VariableAuxLogDir: "/var/log/tokudb",
	}, dc.Variables())
	assert.Empty(t, DirectoriesConfig{}.Variables())
}

func TestConfig_LoggerConfig(t *testing.T) {
	config := validConfig()
	config.LogLevel = "DEBUG"
	config.LogFormat = "json"
	config.LogFile = "/tmp/hotbackup.log"

	lc := config.LoggerConfig()
	assert.Equal(t, logging.LogLevelDebug, lc.Level)
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, "/tmp/hotbackup.log", lc.LogFile)

	config.LogLevel = "bogus"
	assert.Equal(t, logging.LogLevelNormal, config.LoggerConfig().Level)
}
