package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest(root string) *Manifest {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Manifest{
		ID:            "run-1",
		CorrelationID: "corr-1",
		StartedAt:     started,
		CompletedAt:   started.Add(5 * time.Minute),
		TargetRoot:    root,
		EngineVersion: "copy-1.0",
		Sources: []CandidateEntry{
			{Role: RolePrimaryData, Path: "/var/lib/mysql", Valid: true},
			{Role: RoleAuxData, Path: "/var/lib/mysql", Valid: false},
			{Role: RoleBinlogDir, Path: "/var/log/mysql", Valid: true},
		},
		Destinations: []Destination{
			{Role: RolePrimaryData, Source: "/var/lib/mysql", Path: filepath.Join(root, "mysql_data_dir")},
			{Role: RoleBinlogDir, Source: "/var/log/mysql", Path: filepath.Join(root, "mysql_log_bin")},
		},
	}
}

func TestParseManifestFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    ManifestFormat
		wantErr bool
	}{
		{"", ManifestFormatNone, false},
		{"none", ManifestFormatNone, false},
		{"JSON", ManifestFormatJSON, false},
		{"yaml", ManifestFormatYAML, false},
		{"yml", ManifestFormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseManifestFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Manifest)
		wantErr string
	}{
		{"valid", func(*Manifest) {}, ""},
		{"missing id", func(m *Manifest) { m.ID = "" }, "id"},
		{"missing root", func(m *Manifest) { m.TargetRoot = "" }, "target_root"},
		{"completion before start", func(m *Manifest) { m.CompletedAt = m.StartedAt.Add(-time.Second) }, "completed_at"},
		{"destination count mismatch", func(m *Manifest) { m.Destinations = m.Destinations[:1] }, "expected 2 destinations, got 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testManifest("/backup/run1")
			tt.modify(m)

			err := m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManifestChecksum(t *testing.T) {
	m := testManifest("/backup/run1")
	require.NoError(t, m.CalculateChecksum())
	assert.Len(t, m.Checksum, 64)
	assert.True(t, m.VerifyChecksum())

	m.Destinations[0].Path = "/elsewhere"
	assert.False(t, m.VerifyChecksum())
}

func TestWriteAndReadManifest(t *testing.T) {
	for _, format := range []ManifestFormat{ManifestFormatJSON, ManifestFormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			root := t.TempDir()
			m := testManifest(root)

			path, err := WriteManifest(m, format)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root, "backup_manifest."+string(format)), path)

			loaded, err := ReadManifest(root)
			require.NoError(t, err)
			assert.Equal(t, m.Sources, loaded.Sources)
			assert.Equal(t, m.Checksum, loaded.Checksum)
			assert.True(t, m.StartedAt.Equal(loaded.StartedAt))
		})
	}
}

func TestWriteManifestNone(t *testing.T) {
	root := t.TempDir()
	path, err := WriteManifest(testManifest(root), ManifestFormatNone)
	require.NoError(t, err)
	assert.Empty(t, path)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadManifestDetectsTampering(t *testing.T) {
	root := t.TempDir()
	_, err := WriteManifest(testManifest(root), ManifestFormatJSON)
	require.NoError(t, err)

	path := ManifestPath(root, ManifestFormatJSON)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "copy-1.0", "copy-9.9", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0644))

	_, err = ReadManifest(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum")
}

func TestReadManifestMissing(t *testing.T) {
	_, err := ReadManifest(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no manifest found")
}
