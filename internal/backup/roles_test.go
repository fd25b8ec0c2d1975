package backup

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSourceRoleNames(t *testing.T) {
	tests := []struct {
		role   SourceRole
		name   string
		suffix string
	}{
		{RolePrimaryData, "primary_data", "mysql_data_dir"},
		{RoleAuxData, "aux_data", "tokudb_data_dir"},
		{RoleAuxLog, "aux_log", "tokudb_log_dir"},
		{RoleBinlogDir, "binlog", "mysql_log_bin"},
	}

	suffixes := make(map[string]bool)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.role.String())
			assert.Equal(t, tt.suffix, tt.role.Suffix())

			parsed, err := ParseSourceRole(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.role, parsed)
		})
		suffixes[tt.role.Suffix()] = true
	}

	assert.Len(t, suffixes, MaxSourceCount, "every role needs its own destination suffix")
	assert.Equal(t, "role(9)", SourceRole(9).String())
}

func TestParseSourceRoleUnknown(t *testing.T) {
	_, err := ParseSourceRole("redo_log")
	assert.Error(t, err)
}

func TestSourceRoleSerialization(t *testing.T) {
	entry := CandidateEntry{Role: RoleBinlogDir, Path: "/var/log/mysql", Valid: true}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"binlog","path":"/var/log/mysql","valid":true}`, string(data))

	var decoded CandidateEntry
	require.NoError(t, yaml.Unmarshal([]byte("role: aux_log\npath: /data/log\nvalid: false\n"), &decoded))
	assert.Equal(t, RoleAuxLog, decoded.Role)
	assert.Equal(t, "/data/log", decoded.Path)

	_, err = json.Marshal(CandidateEntry{Role: SourceRole(7)})
	assert.Error(t, err)
}

func TestSourceRoleOutranks(t *testing.T) {
	tests := []struct {
		role  SourceRole
		other SourceRole
		want  bool
	}{
		{RolePrimaryData, RoleAuxData, true},
		{RolePrimaryData, RoleBinlogDir, true},
		{RoleAuxData, RolePrimaryData, false},
		{RoleAuxData, RoleAuxLog, true},
		{RoleAuxData, RoleBinlogDir, true},
		{RoleAuxLog, RoleBinlogDir, false},
		{RoleBinlogDir, RoleAuxLog, false},
		{RoleAuxLog, RoleAuxData, false},
	}

	for _, tt := range tests {
		t.Run(tt.role.String()+"_vs_"+tt.other.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.outranks(tt.other))
		})
	}
}
