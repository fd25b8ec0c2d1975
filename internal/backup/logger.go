package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mysql-hotbackup/internal/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BackupLogger provides structured logging for backup runs with correlation
// IDs and an optional audit trail
type BackupLogger struct {
	logger        *logging.Logger
	auditLogger   *logrus.Logger
	auditFile     *os.File
	correlationID string
}

// BackupLoggerConfig holds configuration for backup logging
type BackupLoggerConfig struct {
	Logger         *logging.Logger
	AuditLogFile   string
	CorrelationID  string
	EnableAuditLog bool
}

// LogEntry represents a structured log entry for a backup operation
type LogEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	Operation     string                 `json:"operation"`
	RunID         string                 `json:"run_id,omitempty"`
	Status        string                 `json:"status"`
	Duration      string                 `json:"duration,omitempty"`
	Success       bool                   `json:"success"`
	Error         string                 `json:"error,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewBackupLogger creates a new backup logger with correlation ID support
func NewBackupLogger(config BackupLoggerConfig) (*BackupLogger, error) {
	correlationID := config.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	bl := &BackupLogger{
		logger:        logger,
		correlationID: correlationID,
	}

	if config.EnableAuditLog && config.AuditLogFile != "" {
		auditDir := filepath.Dir(config.AuditLogFile)
		if err := os.MkdirAll(auditDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}

		auditFile, err := os.OpenFile(config.AuditLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}

		auditLogger := logrus.New()
		auditLogger.SetOutput(auditFile)
		auditLogger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
		auditLogger.SetLevel(logrus.InfoLevel)

		bl.auditLogger = auditLogger
		bl.auditFile = auditFile
	}

	return bl, nil
}

// GetCorrelationID returns the current correlation ID
func (bl *BackupLogger) GetCorrelationID() string {
	return bl.correlationID
}

// Logger returns the underlying application logger
func (bl *BackupLogger) Logger() *logging.Logger {
	return bl.logger
}

// Close releases the audit log file
func (bl *BackupLogger) Close() error {
	if bl.auditFile == nil {
		return nil
	}
	err := bl.auditFile.Close()
	bl.auditFile = nil
	return err
}

// LogRunStart logs the start of a backup run and returns a function that
// logs its outcome
func (bl *BackupLogger) LogRunStart(ctx context.Context, runID, targetRoot string) func(error, *Manifest) {
	startTime := time.Now()

	entry := LogEntry{
		Timestamp:     startTime,
		CorrelationID: bl.correlationID,
		Operation:     "backup_run",
		RunID:         runID,
		Status:        "started",
		Success:       true,
		Metadata: map[string]interface{}{
			"target_root": targetRoot,
		},
	}

	bl.logStructured(entry)
	bl.logAudit(ctx, "backup", "run", "started", map[string]interface{}{
		"run_id":      runID,
		"target_root": targetRoot,
	})

	return func(err error, manifest *Manifest) {
		duration := time.Since(startTime)
		entry.Timestamp = time.Now()
		entry.Status = "completed"
		entry.Duration = duration.String()
		entry.Success = err == nil

		result := "success"
		if err != nil {
			entry.Error = err.Error()
			entry.Status = "failed"
			result = "failure"
			if IsCancelled(err) {
				entry.Status = "cancelled"
				result = "cancelled"
			}
		}

		if manifest != nil {
			entry.Metadata["source_count"] = len(manifest.Sources)
			entry.Metadata["engine_version"] = manifest.EngineVersion
		}

		bl.logStructured(entry)
		bl.logAudit(ctx, "backup", "run", result, map[string]interface{}{
			"run_id":      runID,
			"target_root": targetRoot,
			"duration":    duration.String(),
			"error":       entry.Error,
		})
	}
}

// LogSourceSet logs the outcome of discovery and topology verification
func (bl *BackupLogger) LogSourceSet(set *SourceSet, verifyErr error) {
	for _, skipped := range set.Skipped() {
		bl.logger.WithFields(map[string]interface{}{
			"correlation_id": bl.correlationID,
			"role":           skipped.Role.String(),
			"variable":       skipped.Variable,
			"value":          skipped.Value,
			"reason":         skipped.Reason,
		}).Warn("Optional source directory ignored")
	}

	for _, entry := range set.Entries() {
		bl.logger.WithFields(map[string]interface{}{
			"correlation_id": bl.correlationID,
			"role":           entry.Role.String(),
			"path":           entry.Path,
			"valid":          entry.Valid,
		}).Debug("Source directory")
	}

	bl.logger.LogTopologyVerification(len(set.Entries()), len(set.ValidEntries()), verifyErr)
}

// LogDestinations logs the destination directories of a run
func (bl *BackupLogger) LogDestinations(plan *DestinationPlan, createErr error) {
	bl.logger.LogDestinationCreation(plan.Root, plan.Paths(), createErr)
}

// LogStorageOperation logs an archive upload or download
func (bl *BackupLogger) LogStorageOperation(ctx context.Context, operation, provider, key string) func(error, map[string]interface{}) {
	startTime := time.Now()

	entry := LogEntry{
		Timestamp:     startTime,
		CorrelationID: bl.correlationID,
		Operation:     "storage_" + operation,
		Status:        "started",
		Success:       true,
		Metadata: map[string]interface{}{
			"provider": provider,
			"key":      key,
		},
	}

	bl.logStructured(entry)

	return func(err error, metadata map[string]interface{}) {
		entry.Timestamp = time.Now()
		entry.Status = "completed"
		entry.Duration = time.Since(startTime).String()
		entry.Success = err == nil
		if err != nil {
			entry.Error = err.Error()
			entry.Status = "failed"
		}
		for k, v := range metadata {
			entry.Metadata[k] = v
		}

		bl.logStructured(entry)

		result := "success"
		if err != nil {
			result = "failure"
		}
		bl.logAudit(ctx, "archive", operation, result, map[string]interface{}{
			"provider": provider,
			"key":      key,
		})
	}
}

// logStructured logs a structured log entry
func (bl *BackupLogger) logStructured(entry LogEntry) {
	fields := logrus.Fields{
		"correlation_id": entry.CorrelationID,
		"operation":      entry.Operation,
		"status":         entry.Status,
		"success":        entry.Success,
	}

	if entry.RunID != "" {
		fields["run_id"] = entry.RunID
	}
	if entry.Duration != "" {
		fields["duration"] = entry.Duration
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}

	for k, v := range entry.Metadata {
		fields[k] = v
	}

	logEntry := bl.logger.WithFields(fields)

	if entry.Success {
		if entry.Status == "started" {
			logEntry.Debug("Backup operation started")
		} else {
			logEntry.Info("Backup operation completed successfully")
		}
	} else {
		logEntry.Error("Backup operation failed")
	}
}

// logAudit logs an audit trail entry
func (bl *BackupLogger) logAudit(ctx context.Context, resource, action, result string, details map[string]interface{}) {
	if bl.auditLogger == nil {
		return
	}

	fields := logrus.Fields{
		"correlation_id": bl.correlationID,
		"operation":      fmt.Sprintf("%s_%s", resource, action),
		"resource":       resource,
		"action":         action,
		"result":         result,
		"details":        details,
	}
	if requestID := logging.GetRequestIDFromContext(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	if host, err := os.Hostname(); err == nil {
		fields["host"] = host
	}

	bl.auditLogger.WithFields(fields).Info("Audit log entry")
}
