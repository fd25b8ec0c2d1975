package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except critical errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows detailed operational information
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows all debug information
	LogLevelDebug LogLevel = "debug"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Logger provides structured logging capabilities
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
	file   *os.File
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	Output     io.Writer
	Format     string // "text" or "json"
	ShowCaller bool
	LogFile    string
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	if config.Output != nil {
		logger.SetOutput(config.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	logger.SetLevel(toLogrusLevel(config.Level))

	if config.ShowCaller {
		logger.SetReportCaller(true)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})
	}

	l := &Logger{
		logger: logger,
		level:  config.Level,
	}

	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}

		if config.Output == nil {
			logger.SetOutput(io.MultiWriter(os.Stderr, file))
		} else {
			logger.SetOutput(io.MultiWriter(config.Output, file))
		}
		l.file = file
	}

	return l, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelNormal,
		Output: os.Stderr,
		Format: "text",
	})
	return logger
}

// NewDiscardLogger creates a logger that drops everything, for tests and
// machine-readable output modes
func NewDiscardLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelQuiet,
		Output: io.Discard,
	})
	return logger
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelQuiet:
		return logrus.ErrorLevel
	case LogLevelVerbose:
		return logrus.DebugLevel
	case LogLevelDebug:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// Close closes the log file, if one was opened
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// WithContext returns a logger with context fields
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.logger.WithContext(ctx)
	if requestID := GetRequestIDFromContext(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	return entry
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns a logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// Backup operation logging methods

// LogDatabaseConnection logs database connection attempts
func (l *Logger) LogDatabaseConnection(host string, port int, success bool, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "database_connection",
		"host":      host,
		"port":      port,
		"duration":  duration.String(),
		"success":   success,
	}

	if success {
		l.logger.WithFields(fields).Info("Database connection established")
	} else {
		if err != nil {
			fields["error"] = err.Error()
		}
		l.logger.WithFields(fields).Error("Database connection failed")
	}
}

// LogVariableLookup logs a server variable read
func (l *Logger) LogVariableLookup(name string, found bool, err error) {
	fields := logrus.Fields{
		"operation": "variable_lookup",
		"variable":  name,
		"found":     found,
	}
	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Warn("Server variable lookup failed")
		return
	}
	l.logger.WithFields(fields).Debug("Server variable looked up")
}

// LogTopologyVerification logs the result of checking the source directories
func (l *Logger) LogTopologyVerification(candidates, valid int, err error) {
	fields := logrus.Fields{
		"operation":  "topology_verification",
		"candidates": candidates,
		"valid":      valid,
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Source directory layout rejected")
		return
	}
	l.logger.WithFields(fields).Info("Source directories resolved")
}

// LogDestinationCreation logs the creation of destination directories
func (l *Logger) LogDestinationCreation(root string, paths []string, err error) {
	fields := logrus.Fields{
		"operation":    "destination_creation",
		"target_root":  root,
		"destinations": strings.Join(paths, ","),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Destination directory creation failed")
		return
	}
	l.logger.WithFields(fields).Info("Destination directories created")
}

// LogEngineRun logs the start of an engine call and returns a function that
// logs its outcome
func (l *Logger) LogEngineRun(sourceCount int) func(error) {
	return l.LogOperationStart("engine_backup", map[string]interface{}{
		"source_count": sourceCount,
	})
}

// Standard logging methods

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.logger.SetLevel(toLogrusLevel(level))
}

// IsLevelEnabled checks if a log level is enabled
func (l *Logger) IsLevelEnabled(level LogLevel) bool {
	switch level {
	case LogLevelQuiet:
		return l.logger.IsLevelEnabled(logrus.ErrorLevel)
	case LogLevelNormal:
		return l.logger.IsLevelEnabled(logrus.InfoLevel)
	case LogLevelVerbose:
		return l.logger.IsLevelEnabled(logrus.DebugLevel)
	case LogLevelDebug:
		return l.logger.IsLevelEnabled(logrus.TraceLevel)
	default:
		return false
	}
}

// LogOperationStart logs the start of an operation and returns a function to log completion
func (l *Logger) LogOperationStart(operation string, fields map[string]interface{}) func(error) {
	startTime := time.Now()

	logFields := logrus.Fields{
		"operation": operation,
		"status":    "started",
	}
	for k, v := range fields {
		logFields[k] = v
	}

	l.logger.WithFields(logFields).Debug("Operation started")

	return func(err error) {
		logFields["status"] = "completed"
		logFields["duration"] = time.Since(startTime).String()

		if err != nil {
			logFields["error"] = err.Error()
			logFields["success"] = false
			l.logger.WithFields(logFields).Error("Operation failed")
		} else {
			logFields["success"] = true
			l.logger.WithFields(logFields).Info("Operation completed")
		}
	}
}

// CreateContextWithRequestID creates a context with a request ID for tracing
func CreateContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestIDFromContext extracts request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SanitizeDSN masks the password of a MySQL DSN (user:password@tcp(...)/db)
func SanitizeDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	credentials := dsn[:at]
	colon := strings.Index(credentials, ":")
	if colon < 0 {
		return dsn
	}
	return credentials[:colon] + ":***" + dsn[at:]
}
