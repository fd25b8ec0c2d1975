package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DatabaseConfig holds the parameters for connecting to the server being
// backed up. Socket takes precedence over Host and Port.
type DatabaseConfig struct {
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Socket   string        `mapstructure:"socket" yaml:"socket"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"password"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Validate checks if the database configuration has all required parameters
func (dc *DatabaseConfig) Validate() error {
	var errs []error

	if dc.Socket == "" {
		if dc.Host == "" {
			errs = append(errs, errors.New("host or socket is required"))
		}
		if dc.Port <= 0 || dc.Port > 65535 {
			errs = append(errs, errors.New("port must be between 1 and 65535"))
		}
	}

	if dc.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}

	if dc.Timeout <= 0 {
		dc.Timeout = 30 * time.Second
	}

	if len(errs) > 0 {
		return fmt.Errorf("database configuration validation failed: %v", errs)
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (dc *DatabaseConfig) SetDefaults() {
	if dc.Port == 0 {
		dc.Port = 3306
	}
	if dc.Timeout == 0 {
		dc.Timeout = 30 * time.Second
	}
}

// Address returns host:port or the socket path, for logs
func (dc *DatabaseConfig) Address() string {
	if dc.Socket != "" {
		return dc.Socket
	}
	return fmt.Sprintf("%s:%d", dc.Host, dc.Port)
}

// DSN returns the Data Source Name for MySQL connection. No default schema
// is selected; server variables are global.
func (dc *DatabaseConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = dc.Username
	cfg.Passwd = dc.Password
	if dc.Socket != "" {
		cfg.Net = "unix"
		cfg.Addr = dc.Socket
	} else {
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", dc.Host, dc.Port)
	}
	cfg.Timeout = dc.Timeout
	cfg.ReadTimeout = dc.Timeout
	cfg.ParseTime = true
	return cfg.FormatDSN()
}
