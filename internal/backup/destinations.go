package backup

import (
	"fmt"
	"os"
	"path/filepath"
)

// DestinationMode is the permission set requested for destination
// directories, before the process umask applies
const DestinationMode os.FileMode = 0777

// DirCreator creates a single directory. It must fail if path already exists.
type DirCreator interface {
	Mkdir(path string, perm os.FileMode) error
}

// OSDirCreator creates directories on the local filesystem
type OSDirCreator struct{}

// Mkdir implements DirCreator
func (OSDirCreator) Mkdir(path string, perm os.FileMode) error {
	return os.Mkdir(path, perm)
}

// Destination pairs a source directory with the directory it is copied to
type Destination struct {
	Role   SourceRole `json:"role" yaml:"role"`
	Source string     `json:"source" yaml:"source"`
	Path   string     `json:"path" yaml:"path"`
}

// DestinationPlan holds one destination per valid source, in source order
type DestinationPlan struct {
	Root         string        `json:"root" yaml:"root"`
	Destinations []Destination `json:"destinations" yaml:"destinations"`
}

// Materialize derives the destination directory of every entry under
// targetRoot. Each role has its own fixed subdirectory name, so the paths
// never collide.
func Materialize(targetRoot string, entries []CandidateEntry) (*DestinationPlan, error) {
	root, ok := NormalizeDirectory(targetRoot)
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("backup target %q must be an absolute path", targetRoot), nil)
	}

	plan := &DestinationPlan{
		Root:         root,
		Destinations: make([]Destination, 0, len(entries)),
	}
	for _, entry := range entries {
		plan.Destinations = append(plan.Destinations, Destination{
			Role:   entry.Role,
			Source: entry.Path,
			Path:   filepath.Join(root, entry.Role.Suffix()),
		})
	}
	return plan, nil
}

// Sources returns the source paths in plan order
func (p *DestinationPlan) Sources() []string {
	sources := make([]string, len(p.Destinations))
	for i, d := range p.Destinations {
		sources[i] = d.Source
	}
	return sources
}

// Paths returns the destination paths in plan order
func (p *DestinationPlan) Paths() []string {
	paths := make([]string, len(p.Destinations))
	for i, d := range p.Destinations {
		paths[i] = d.Path
	}
	return paths
}

// CreateAll creates every destination directory in order and stops at the
// first failure. Directories created before the failure are left in place.
func (p *DestinationPlan) CreateAll(creator DirCreator) error {
	if creator == nil {
		creator = OSDirCreator{}
	}
	for _, d := range p.Destinations {
		if err := creator.Mkdir(d.Path, DestinationMode); err != nil {
			return NewDestinationError(d.Path, err).WithContext("role", d.Role.String())
		}
	}
	return nil
}
