package backup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupError(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewDestinationError("/backup/run1/mysql_data_dir", cause)

	assert.Equal(t, BackupErrorTypeDestination, err.Type)
	assert.Equal(t, "/backup/run1/mysql_data_dir", err.Context["path"])
	assert.Equal(t,
		"DESTINATION_ERROR: failed to create destination directory /backup/run1/mysql_data_dir (caused by: permission denied)",
		err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestNewTopologyErrorMessage(t *testing.T) {
	same := NewTopologyError(
		CandidateEntry{Role: RoleAuxLog, Path: "/data/logs"},
		CandidateEntry{Role: RoleBinlogDir, Path: "/data/logs"},
	)
	assert.Equal(t, "TOPOLOGY_ERROR: aux_log directory /data/logs is the same as binlog directory /data/logs", same.Error())

	nested := NewTopologyError(
		CandidateEntry{Role: RolePrimaryData, Path: "/var/lib/mysql"},
		CandidateEntry{Role: RoleAuxData, Path: "/var/lib"},
	)
	assert.Equal(t, "TOPOLOGY_ERROR: primary_data directory /var/lib/mysql is located inside aux_data directory /var/lib", nested.Error())
}

func TestNewEngineError(t *testing.T) {
	failed := NewEngineError(5, "Input/output error")
	assert.Equal(t, BackupErrorTypeEngine, failed.Type)
	assert.Equal(t, 5, failed.Context["engine_code"])
	assert.Contains(t, failed.Error(), "Backup failed (errno=5): Input/output error")

	aborted := NewEngineError(AbortCode, "backup aborted")
	assert.Equal(t, BackupErrorTypeCancelled, aborted.Type)

	var failure *EngineFailure
	require.True(t, errors.As(aborted, &failure))
	assert.Equal(t, AbortCode, failure.Code)
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		config      bool
		topology    bool
		destination bool
		engine      bool
		cancelled   bool
		permanent   bool
	}{
		{name: "config", err: NewConfigurationError("missing", nil), config: true, permanent: true},
		{name: "topology", err: NewTopologyError(CandidateEntry{}, CandidateEntry{}), topology: true, permanent: true},
		{name: "destination", err: NewDestinationError("/x", nil), destination: true},
		{name: "engine", err: NewEngineError(28, "disk full"), engine: true},
		{name: "cancelled", err: NewEngineError(AbortCode, "aborted"), cancelled: true},
		{name: "cancelled before engine", err: NewCancelledError(context.Canceled), cancelled: true},
		{name: "validation", err: NewValidationError("bad", nil), permanent: true},
		{name: "wrapped", err: fmt.Errorf("run: %w", NewEngineError(AbortCode, "aborted")), cancelled: true},
		{name: "plain", err: errors.New("boom")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.config, IsConfigError(tt.err))
			assert.Equal(t, tt.topology, IsTopologyError(tt.err))
			assert.Equal(t, tt.destination, IsDestinationError(tt.err))
			assert.Equal(t, tt.engine, IsEngineError(tt.err))
			assert.Equal(t, tt.cancelled, IsCancelled(tt.err))
			assert.Equal(t, tt.permanent, IsPermanent(tt.err))
		})
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("target_root", "must be absolute", "backups")
	assert.Equal(t, "validation error for field 'target_root': must be absolute", errs.Error())

	errs.Add("throttle", "must be positive", -1)
	assert.True(t, errs.HasErrors())
	assert.Contains(t, errs.Error(), "2 validation errors")
}
