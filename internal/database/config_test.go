package database

import (
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestDatabaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  DatabaseConfig
		wantErr bool
	}{
		{
			name: "valid config",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				Username: "backup",
				Password: "password",
				Timeout:  30 * time.Second,
			},
			wantErr: false,
		},
		{
			name: "socket without host",
			config: DatabaseConfig{
				Socket:   "/run/mysqld/mysqld.sock",
				Username: "backup",
			},
			wantErr: false,
		},
		{
			name: "missing host",
			config: DatabaseConfig{
				Port:     3306,
				Username: "backup",
			},
			wantErr: true,
		},
		{
			name: "invalid port",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     70000,
				Username: "backup",
			},
			wantErr: true,
		},
		{
			name: "missing username",
			config: DatabaseConfig{
				Host: "localhost",
				Port: 3306,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig_ValidateSetsTimeout(t *testing.T) {
	config := DatabaseConfig{Host: "localhost", Port: 3306, Username: "backup"}
	if err := config.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to default to 30s, got %v", config.Timeout)
	}
}

func TestDatabaseConfig_SetDefaults(t *testing.T) {
	config := DatabaseConfig{}
	config.SetDefaults()

	if config.Port != 3306 {
		t.Errorf("Expected default port 3306, got %d", config.Port)
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", config.Timeout)
	}

	config = DatabaseConfig{Port: 3307}
	config.SetDefaults()
	if config.Port != 3307 {
		t.Errorf("Expected explicit port to be kept, got %d", config.Port)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	config := DatabaseConfig{
		Host:     "db.internal",
		Port:     3307,
		Username: "backup",
		Password: "p@ss:word",
		Timeout:  5 * time.Second,
	}

	dsn := config.DSN()
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("DSN %q does not parse: %v", dsn, err)
	}
	if parsed.Net != "tcp" || parsed.Addr != "db.internal:3307" {
		t.Errorf("Unexpected address %s(%s)", parsed.Net, parsed.Addr)
	}
	if parsed.User != "backup" || parsed.Passwd != "p@ss:word" {
		t.Errorf("Unexpected credentials %s/%s", parsed.User, parsed.Passwd)
	}
	if parsed.DBName != "" {
		t.Errorf("Expected no default schema, got %s", parsed.DBName)
	}
	if parsed.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", parsed.Timeout)
	}
}

func TestDatabaseConfig_DSNSocket(t *testing.T) {
	config := DatabaseConfig{
		Host:     "ignored",
		Port:     3306,
		Socket:   "/run/mysqld/mysqld.sock",
		Username: "backup",
	}

	dsn := config.DSN()
	if !strings.Contains(dsn, "unix(/run/mysqld/mysqld.sock)") {
		t.Errorf("Expected unix socket address in %q", dsn)
	}
	if config.Address() != "/run/mysqld/mysqld.sock" {
		t.Errorf("Expected socket address, got %s", config.Address())
	}
}

func TestDatabaseConfig_Address(t *testing.T) {
	config := DatabaseConfig{Host: "localhost", Port: 3306}
	if got := config.Address(); got != "localhost:3306" {
		t.Errorf("Expected localhost:3306, got %s", got)
	}
}
