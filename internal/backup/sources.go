package backup

import (
	"context"
	"errors"
	"fmt"
)

// ConfigProvider looks up server configuration values by variable name.
// ok is false when the variable is not configured at all.
type ConfigProvider interface {
	Variable(ctx context.Context, name string) (value string, ok bool, err error)
}

// CandidateEntry is one directory considered for the backup
type CandidateEntry struct {
	Role  SourceRole `json:"role" yaml:"role"`
	Path  string     `json:"path" yaml:"path"`
	Valid bool       `json:"valid" yaml:"valid"`
}

// SkippedSource records an optional directory that discovery left out
type SkippedSource struct {
	Role     SourceRole `json:"role" yaml:"role"`
	Variable string     `json:"variable" yaml:"variable"`
	Value    string     `json:"value,omitempty" yaml:"value,omitempty"`
	Reason   string     `json:"reason" yaml:"reason"`
}

// SourceSet is the ordered set of source directories of one backup run.
// Entries are never removed; redundant ones are only marked invalid so that
// positions stay stable.
type SourceSet struct {
	entries []CandidateEntry
	skipped []SkippedSource
}

type optionalSource struct {
	role     SourceRole
	variable string
	resolve  func(value string) (string, bool)
}

// Discovery order of the optional roles
var optionalSources = []optionalSource{
	{role: RoleAuxData, variable: VariableAuxDataDir, resolve: NormalizeDirectory},
	{role: RoleAuxLog, variable: VariableAuxLogDir, resolve: NormalizeDirectory},
	{role: RoleBinlogDir, variable: VariableBinlogBasename, resolve: resolveBinlogDirectory},
}

func resolveBinlogDirectory(value string) (string, bool) {
	if _, ok := NormalizeDirectory(value); !ok {
		return "", false
	}
	return binlogDirectory(value)
}

// Discover reads the primary data directory and the optional auxiliary
// directories from provider. Only the primary directory is required.
func Discover(ctx context.Context, provider ConfigProvider) (*SourceSet, error) {
	if provider == nil {
		return nil, NewConfigurationError("configuration provider is required", nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, NewCancelledError(err)
	}

	value, ok, err := provider.Variable(ctx, VariableDataDir)
	if err != nil {
		if cerr := cancellation(ctx, err); cerr != nil {
			return nil, cerr
		}
		return nil, NewConfigurationError("failed to read primary data directory", err).
			WithContext("variable", VariableDataDir)
	}
	if !ok || value == "" {
		return nil, NewConfigurationError("primary data directory is not configured", nil).
			WithContext("variable", VariableDataDir)
	}
	dataDir, ok := NormalizeDirectory(value)
	if !ok {
		return nil, NewConfigurationError(
			fmt.Sprintf("primary data directory %q is not an absolute path", value), nil).
			WithContext("variable", VariableDataDir)
	}

	set := &SourceSet{
		entries: make([]CandidateEntry, 0, MaxSourceCount),
	}
	set.entries = append(set.entries, CandidateEntry{Role: RolePrimaryData, Path: dataDir, Valid: true})

	for _, source := range optionalSources {
		value, ok, err := provider.Variable(ctx, source.variable)
		switch {
		case err != nil:
			if cerr := cancellation(ctx, err); cerr != nil {
				return nil, cerr
			}
			set.skip(source, "", fmt.Sprintf("lookup failed: %v", err))
			continue
		case !ok || value == "":
			continue
		}

		dir, ok := source.resolve(value)
		if !ok {
			set.skip(source, value, "not an absolute path")
			continue
		}
		set.entries = append(set.entries, CandidateEntry{Role: source.role, Path: dir, Valid: true})
	}

	return set, nil
}

// cancellation returns a CANCELLED error when a lookup failed because ctx
// was cancelled or timed out, nil otherwise
func cancellation(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return NewCancelledError(ctx.Err())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError(err)
	}
	return nil
}

func (s *SourceSet) skip(source optionalSource, value, reason string) {
	s.skipped = append(s.skipped, SkippedSource{
		Role:     source.role,
		Variable: source.variable,
		Value:    value,
		Reason:   reason,
	})
}

// NewSourceSet builds a set from already resolved entries. The first entry
// must be the primary data directory and roles must not repeat.
func NewSourceSet(entries ...CandidateEntry) (*SourceSet, error) {
	if len(entries) == 0 || entries[0].Role != RolePrimaryData {
		return nil, NewConfigurationError("the primary data directory must come first", nil)
	}
	if len(entries) > MaxSourceCount {
		return nil, NewConfigurationError(
			fmt.Sprintf("at most %d source directories are supported, got %d", MaxSourceCount, len(entries)), nil)
	}

	seen := make(map[SourceRole]bool, len(entries))
	set := &SourceSet{entries: make([]CandidateEntry, 0, len(entries))}
	for _, entry := range entries {
		if seen[entry.Role] {
			return nil, NewConfigurationError(fmt.Sprintf("duplicate %s directory", entry.Role), nil)
		}
		seen[entry.Role] = true

		path, ok := NormalizeDirectory(entry.Path)
		if !ok {
			return nil, NewConfigurationError(
				fmt.Sprintf("%s directory %q is not an absolute path", entry.Role, entry.Path), nil)
		}
		set.entries = append(set.entries, CandidateEntry{Role: entry.Role, Path: path, Valid: true})
	}
	return set, nil
}

// Verify classifies every pair of entries and marks redundant directories
// invalid. It returns a topology error for overlaps no rule allows. Every
// pair is judged on the configured paths and marks are applied only after
// the whole pass, so repeated calls and discovery order agree.
func (s *SourceSet) Verify() error {
	n := len(s.entries)
	if n == 0 || s.entries[0].Role != RolePrimaryData {
		return NewConfigurationError("source set has no primary data directory", nil)
	}

	redundant := make([]bool, n)
	for i := 0; i < n; i++ {
		child := s.entries[i]
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			parent := s.entries[j]
			if !Contains(parent.Path, child.Path) {
				continue
			}

			same := child.Path == parent.Path
			switch {
			case parent.Role == RolePrimaryData:
				redundant[i] = true
			case child.Role == RoleAuxLog && parent.Role == RoleAuxData:
				redundant[i] = true
			case same && child.Role.outranks(parent.Role):
				redundant[j] = true
			case same && parent.Role.outranks(child.Role):
				// settled when the pair is visited the other way round
			default:
				return NewTopologyError(child, parent)
			}
		}
	}

	for i := range s.entries {
		s.entries[i].Valid = !redundant[i]
	}
	return nil
}

// ValidEntries returns the entries that still have to be copied, in
// discovery order. Destinations are paired with them by position.
func (s *SourceSet) ValidEntries() []CandidateEntry {
	valid := make([]CandidateEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.Valid {
			valid = append(valid, entry)
		}
	}
	return valid
}

// Entries returns a copy of every entry, including redundant ones
func (s *SourceSet) Entries() []CandidateEntry {
	entries := make([]CandidateEntry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Skipped returns the optional directories discovery ignored and why
func (s *SourceSet) Skipped() []SkippedSource {
	skipped := make([]SkippedSource, len(s.skipped))
	copy(skipped, s.skipped)
	return skipped
}

// Primary returns the primary data directory entry. ok is false for a set
// that was not built by Discover or NewSourceSet.
func (s *SourceSet) Primary() (entry CandidateEntry, ok bool) {
	if len(s.entries) == 0 {
		return CandidateEntry{}, false
	}
	return s.entries[0], true
}

// Paths returns the paths of the valid entries
func Paths(entries []CandidateEntry) []string {
	paths := make([]string, len(entries))
	for i, entry := range entries {
		paths[i] = entry.Path
	}
	return paths
}
