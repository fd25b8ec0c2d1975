package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFormat selects how the run manifest is serialized
type ManifestFormat string

const (
	ManifestFormatNone ManifestFormat = "none"
	ManifestFormatJSON ManifestFormat = "json"
	ManifestFormatYAML ManifestFormat = "yaml"
)

// ManifestBaseName is the file name of the manifest, without extension
const ManifestBaseName = "backup_manifest"

// ErrNoManifest is the cause reported when a directory holds no manifest
var ErrNoManifest = errors.New("no backup manifest")

// Manifest describes a completed backup run. It is written into the target
// root after the engine succeeded.
type Manifest struct {
	ID            string           `json:"id" yaml:"id"`
	CorrelationID string           `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
	StartedAt     time.Time        `json:"started_at" yaml:"started_at"`
	CompletedAt   time.Time        `json:"completed_at" yaml:"completed_at"`
	TargetRoot    string           `json:"target_root" yaml:"target_root"`
	EngineVersion string           `json:"engine_version" yaml:"engine_version"`
	Throttle      uint64           `json:"throttle_bytes_per_second,omitempty" yaml:"throttle_bytes_per_second,omitempty"`
	Sources       []CandidateEntry `json:"sources" yaml:"sources"`
	Destinations  []Destination    `json:"destinations" yaml:"destinations"`
	Checksum      string           `json:"checksum" yaml:"checksum"`
}

// ParseManifestFormat validates a manifest format name
func ParseManifestFormat(name string) (ManifestFormat, error) {
	switch ManifestFormat(strings.ToLower(name)) {
	case ManifestFormatNone, "":
		return ManifestFormatNone, nil
	case ManifestFormatJSON:
		return ManifestFormatJSON, nil
	case ManifestFormatYAML, "yml":
		return ManifestFormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported manifest format %q", name)
	}
}

// Validate checks that the manifest describes a usable backup
func (m *Manifest) Validate() error {
	var errs ValidationErrors

	if m.ID == "" {
		errs.Add("id", "manifest ID is required", m.ID)
	}
	if m.TargetRoot == "" {
		errs.Add("target_root", "target root is required", m.TargetRoot)
	}
	if len(m.Destinations) == 0 {
		errs.Add("destinations", "at least one destination is required", nil)
	}
	if m.CompletedAt.Before(m.StartedAt) {
		errs.Add("completed_at", "completion time precedes start time", m.CompletedAt)
	}

	valid := 0
	for _, s := range m.Sources {
		if s.Valid {
			valid++
		}
	}
	if valid != len(m.Destinations) {
		errs.Add("destinations", fmt.Sprintf("expected %d destinations, got %d", valid, len(m.Destinations)), len(m.Destinations))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// CalculateChecksum sets the checksum over every other field
func (m *Manifest) CalculateChecksum() error {
	temp := *m
	temp.Checksum = ""

	data, err := json.Marshal(temp)
	if err != nil {
		return NewValidationError("failed to marshal manifest for checksum calculation", err)
	}

	hash := sha256.Sum256(data)
	m.Checksum = hex.EncodeToString(hash[:])
	return nil
}

// VerifyChecksum verifies the manifest's checksum
func (m *Manifest) VerifyChecksum() bool {
	original := m.Checksum
	if err := m.CalculateChecksum(); err != nil {
		m.Checksum = original
		return false
	}
	calculated := m.Checksum
	m.Checksum = original
	return original == calculated
}

// Marshal serializes the manifest in the given format
func (m *Manifest) Marshal(format ManifestFormat) ([]byte, error) {
	switch format {
	case ManifestFormatJSON:
		return json.MarshalIndent(m, "", "  ")
	case ManifestFormatYAML:
		return yaml.Marshal(m)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
}

// ManifestPath returns where the manifest of targetRoot is stored
func ManifestPath(targetRoot string, format ManifestFormat) string {
	return filepath.Join(targetRoot, ManifestBaseName+"."+string(format))
}

// WriteManifest stores the manifest in its target root and returns the path
func WriteManifest(m *Manifest, format ManifestFormat) (string, error) {
	if format == ManifestFormatNone {
		return "", nil
	}
	if err := m.CalculateChecksum(); err != nil {
		return "", err
	}

	data, err := m.Marshal(format)
	if err != nil {
		return "", NewValidationError("failed to serialize manifest", err)
	}

	path := ManifestPath(m.TargetRoot, format)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", NewDestinationError(path, err)
	}
	return path, nil
}

// ReadManifest loads the manifest stored in dir, trying YAML then JSON
func ReadManifest(dir string) (*Manifest, error) {
	for _, format := range []ManifestFormat{ManifestFormatYAML, ManifestFormatJSON} {
		path := ManifestPath(dir, format)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, NewValidationError("failed to read manifest", err).WithContext("path", path)
		}

		var m Manifest
		if format == ManifestFormatJSON {
			err = json.Unmarshal(data, &m)
		} else {
			err = yaml.Unmarshal(data, &m)
		}
		if err != nil {
			return nil, NewValidationError("failed to parse manifest", err).WithContext("path", path)
		}
		if !m.VerifyChecksum() {
			return nil, NewValidationError("manifest checksum verification failed", nil).WithContext("path", path)
		}
		if err := m.Validate(); err != nil {
			return nil, NewValidationError("invalid manifest", err).WithContext("path", path)
		}
		return &m, nil
	}
	return nil, NewValidationError(fmt.Sprintf("no manifest found in %s", dir), ErrNoManifest)
}
