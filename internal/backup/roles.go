package backup

import (
	"fmt"
	"strings"
)

// SourceRole identifies why a directory takes part in a backup
type SourceRole int

const (
	// RolePrimaryData is the server data directory. It is always present.
	RolePrimaryData SourceRole = iota
	// RoleAuxData is the storage engine's separate data directory
	RoleAuxData
	// RoleAuxLog is the storage engine's separate log directory
	RoleAuxLog
	// RoleBinlogDir is the directory holding the binary logs
	RoleBinlogDir
)

// MaxSourceCount is one primary directory plus the three optional roles
const MaxSourceCount = 4

// Server variables the roles are discovered from
const (
	VariableDataDir        = "datadir"
	VariableAuxDataDir     = "tokudb_data_dir"
	VariableAuxLogDir      = "tokudb_log_dir"
	VariableBinlogBasename = "log_bin_basename"
)

var roleNames = map[SourceRole]string{
	RolePrimaryData: "primary_data",
	RoleAuxData:     "aux_data",
	RoleAuxLog:      "aux_log",
	RoleBinlogDir:   "binlog",
}

var roleSuffixes = map[SourceRole]string{
	RolePrimaryData: "mysql_data_dir",
	RoleAuxData:     "tokudb_data_dir",
	RoleAuxLog:      "tokudb_log_dir",
	RoleBinlogDir:   "mysql_log_bin",
}

// String returns the role name used in logs and manifests
func (r SourceRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Suffix returns the destination subdirectory name for the role
func (r SourceRole) Suffix() string {
	return roleSuffixes[r]
}

// MarshalText lets roles serialize by name in JSON and YAML output
func (r SourceRole) MarshalText() ([]byte, error) {
	if _, ok := roleNames[r]; !ok {
		return nil, fmt.Errorf("unknown source role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText parses a role name
func (r *SourceRole) UnmarshalText(text []byte) error {
	role, err := ParseSourceRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// ParseSourceRole converts a role name back to a SourceRole
func ParseSourceRole(name string) (SourceRole, error) {
	for role, roleName := range roleNames {
		if strings.EqualFold(roleName, name) {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown source role %q", name)
}

// outranks reports whether r wins a same-directory tie against other
func (r SourceRole) outranks(other SourceRole) bool {
	switch r {
	case RolePrimaryData:
		return true
	case RoleAuxData:
		return other != RolePrimaryData
	default:
		return false
	}
}
