package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   LogLevel
	}{
		{
			name: "default config",
			config: Config{
				Level:  LogLevelNormal,
				Format: "text",
			},
			want: LogLevelNormal,
		},
		{
			name: "verbose config",
			config: Config{
				Level:  LogLevelVerbose,
				Format: "json",
			},
			want: LogLevelVerbose,
		},
		{
			name: "quiet config",
			config: Config{
				Level:  LogLevelQuiet,
				Format: "text",
			},
			want: LogLevelQuiet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf

			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Errorf("NewLogger() error = %v", err)
				return
			}

			if logger.GetLevel() != tt.want {
				t.Errorf("NewLogger() level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	var buf bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "hotbackup.log")

	logger, err := NewLogger(Config{
		Level:   LogLevelNormal,
		Output:  &buf,
		LogFile: logFile,
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("written twice")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "written twice") {
		t.Errorf("Expected log file to contain message, got: %s", data)
	}
	if !strings.Contains(buf.String(), "written twice") {
		t.Errorf("Expected output to contain message, got: %s", buf.String())
	}
}

func TestNewLoggerWithBadFile(t *testing.T) {
	_, err := NewLogger(Config{
		Level:   LogLevelNormal,
		LogFile: filepath.Join(t.TempDir(), "missing", "hotbackup.log"),
	})
	if err == nil {
		t.Error("NewLogger() expected error for unwritable log file")
	}
}

func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()
	if logger == nil {
		t.Fatal("NewDefaultLogger() returned nil")
	}

	if logger.GetLevel() != LogLevelNormal {
		t.Errorf("NewDefaultLogger() level = %v, want %v", logger.GetLevel(), LogLevelNormal)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.WithFields(map[string]interface{}{
		"role":  "primary_data",
		"count": 4,
	}).Info("test message")

	output := buf.String()
	if !strings.Contains(output, "role=primary_data") {
		t.Errorf("Expected output to contain role=primary_data, got: %s", output)
	}
	if !strings.Contains(output, "count=4") {
		t.Errorf("Expected output to contain count=4, got: %s", output)
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	ctx := CreateContextWithRequestID(context.Background(), "test-request-123")
	logger.WithContext(ctx).Info("test message with context")

	output := buf.String()
	if !strings.Contains(output, "request_id=test-request-123") {
		t.Errorf("Expected output to contain request_id=test-request-123, got: %s", output)
	}
}

func TestLogDatabaseConnection(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.LogDatabaseConnection("localhost", 3306, true, 100*time.Millisecond, nil)
	output := buf.String()
	if !strings.Contains(output, "Database connection established") {
		t.Errorf("Expected success message, got: %s", output)
	}
	if !strings.Contains(output, "host=localhost") {
		t.Errorf("Expected host=localhost, got: %s", output)
	}

	buf.Reset()

	logger.LogDatabaseConnection("localhost", 3306, false, 5*time.Second, errors.New("connection timeout"))
	output = buf.String()
	if !strings.Contains(output, "Database connection failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "connection timeout") {
		t.Errorf("Expected error message, got: %s", output)
	}
}

func TestLogVariableLookup(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.LogVariableLookup("datadir", true, nil)
	if output := buf.String(); !strings.Contains(output, "variable=datadir") {
		t.Errorf("Expected variable=datadir, got: %s", output)
	}

	buf.Reset()
	logger.LogVariableLookup("tokudb_log_dir", false, errors.New("access denied"))
	output := buf.String()
	if !strings.Contains(output, "Server variable lookup failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "access denied") {
		t.Errorf("Expected error message, got: %s", output)
	}
}

func TestLogTopologyVerification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name:     "accepted",
			contains: []string{"Source directories resolved", "candidates=3", "valid=2"},
		},
		{
			name:     "rejected",
			err:      errors.New("aux_data directory /data is located inside primary_data directory /var/lib/mysql"),
			contains: []string{"Source directory layout rejected", "level=error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(Config{
				Level:  LogLevelNormal,
				Output: &buf,
				Format: "text",
			})
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}

			logger.LogTopologyVerification(3, 2, tt.err)

			output := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(output, want) {
					t.Errorf("Expected output to contain %q, got: %s", want, output)
				}
			}
		})
	}
}

func TestLogDestinationCreation(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{
		Level:  LogLevelNormal,
		Output: &buf,
		Format: "json",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.LogDestinationCreation("/backups/b1", []string{"/backups/b1/mysql_data_dir", "/backups/b1/mysql_log_bin"}, nil)
	output := buf.String()
	if !strings.Contains(output, `"destinations":"/backups/b1/mysql_data_dir,/backups/b1/mysql_log_bin"`) {
		t.Errorf("Expected destinations field, got: %s", output)
	}

	buf.Reset()
	logger.LogDestinationCreation("/backups/b1", nil, errors.New("file exists"))
	if output := buf.String(); !strings.Contains(output, "Destination directory creation failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
}

func TestLogEngineRun(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	finish := logger.LogEngineRun(2)
	if output := buf.String(); !strings.Contains(output, "operation=engine_backup") {
		t.Errorf("Expected engine operation, got: %s", output)
	}

	buf.Reset()
	finish(errors.New("Backup failed (errno=28): no space left on device"))
	output := buf.String()
	if !strings.Contains(output, "Operation failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "source_count=2") {
		t.Errorf("Expected source_count=2, got: %s", output)
	}
}

func TestSetLevel(t *testing.T) {
	logger := NewDefaultLogger()

	logger.SetLevel(LogLevelVerbose)
	if logger.GetLevel() != LogLevelVerbose {
		t.Errorf("SetLevel() failed, got %v, want %v", logger.GetLevel(), LogLevelVerbose)
	}

	logger.SetLevel(LogLevelQuiet)
	if logger.GetLevel() != LogLevelQuiet {
		t.Errorf("SetLevel() failed, got %v, want %v", logger.GetLevel(), LogLevelQuiet)
	}
}

func TestIsLevelEnabled(t *testing.T) {
	tests := []struct {
		name        string
		loggerLevel LogLevel
		testLevel   LogLevel
		want        bool
	}{
		{"quiet logger, error level", LogLevelQuiet, LogLevelQuiet, true},
		{"quiet logger, normal level", LogLevelQuiet, LogLevelNormal, false},
		{"normal logger, normal level", LogLevelNormal, LogLevelNormal, true},
		{"normal logger, verbose level", LogLevelNormal, LogLevelVerbose, false},
		{"verbose logger, verbose level", LogLevelVerbose, LogLevelVerbose, true},
		{"verbose logger, debug level", LogLevelVerbose, LogLevelDebug, false},
		{"debug logger, debug level", LogLevelDebug, LogLevelDebug, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(Config{
				Level:  tt.loggerLevel,
				Output: &buf,
				Format: "text",
			})
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}

			if got := logger.IsLevelEnabled(tt.testLevel); got != tt.want {
				t.Errorf("IsLevelEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogOperationStart(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	fields := map[string]interface{}{
		"archive": "b1.tar.zst",
	}

	finishFunc := logger.LogOperationStart("archive_pack", fields)

	output := buf.String()
	if !strings.Contains(output, "Operation started") {
		t.Errorf("Expected start message, got: %s", output)
	}
	if !strings.Contains(output, "archive=b1.tar.zst") {
		t.Errorf("Expected archive=b1.tar.zst, got: %s", output)
	}

	buf.Reset()
	finishFunc(nil)
	output = buf.String()
	if !strings.Contains(output, "Operation completed") {
		t.Errorf("Expected completion message, got: %s", output)
	}
	if !strings.Contains(output, "success=true") {
		t.Errorf("Expected success=true, got: %s", output)
	}

	finishFunc2 := logger.LogOperationStart("archive_unpack", fields)
	buf.Reset()

	finishFunc2(errors.New("operation failed"))
	output = buf.String()
	if !strings.Contains(output, "Operation failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "success=false") {
		t.Errorf("Expected success=false, got: %s", output)
	}
}

func TestGetRequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	if id := GetRequestIDFromContext(ctx); id != "" {
		t.Errorf("GetRequestIDFromContext() = %v, want empty string", id)
	}

	ctx = CreateContextWithRequestID(ctx, "test-456")
	if id := GetRequestIDFromContext(ctx); id != "test-456" {
		t.Errorf("GetRequestIDFromContext() = %v, want %v", id, "test-456")
	}
}

func TestSanitizeDSN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "with password",
			input: "backup:s3cr3t@tcp(localhost:3306)/",
			want:  "backup:***@tcp(localhost:3306)/",
		},
		{
			name:  "password containing at sign",
			input: "backup:p@ss@tcp(db:3306)/mysql",
			want:  "backup:***@tcp(db:3306)/mysql",
		},
		{
			name:  "no password",
			input: "backup@tcp(localhost:3306)/",
			want:  "backup@tcp(localhost:3306)/",
		},
		{
			name:  "no credentials",
			input: "tcp(localhost:3306)/",
			want:  "tcp(localhost:3306)/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeDSN(tt.input); got != tt.want {
				t.Errorf("SanitizeDSN() = %v, want %v", got, tt.want)
			}
		})
	}
}
