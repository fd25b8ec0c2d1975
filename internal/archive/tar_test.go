package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeBackupDir lays out a finished backup target
func makeBackupDir(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "run1")
	files := map[string]string{
		"mysql_data_dir/ibdata1":              "system tablespace",
		"mysql_data_dir/shop/orders.ibd":      "rows",
		"mysql_log_bin/mysql-bin.000001":      "events",
		"backup_manifest.yaml":                "id: test\n",
		"tokudb_log_dir/log000000001.tokulog": "toku",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0640))
	}
	require.NoError(t, os.Symlink("ibdata1", filepath.Join(root, "mysql_data_dir", "ibdata-link")))
	return root
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	src := makeBackupDir(t)

	var buf bytes.Buffer
	var packed []string
	stats, err := Pack(context.Background(), src, &buf, func(name string) { packed = append(packed, name) })
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Files)
	assert.Equal(t, 1, stats.Symlinks)
	assert.Equal(t, 4, stats.Directories)
	assert.Equal(t, int64(len("system tablespace")+len("rows")+len("events")+len("id: test\n")+len("toku")), stats.Bytes)
	assert.Contains(t, packed, "mysql_data_dir/shop/orders.ibd")

	dst := filepath.Join(t.TempDir(), "restore")
	unpacked, err := Unpack(context.Background(), &buf, dst, nil)
	require.NoError(t, err)
	assert.Equal(t, stats, unpacked)

	content, err := os.ReadFile(filepath.Join(dst, "mysql_data_dir", "shop", "orders.ibd"))
	require.NoError(t, err)
	assert.Equal(t, "rows", string(content))

	info, err := os.Stat(filepath.Join(dst, "mysql_data_dir", "ibdata1"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	link, err := os.Readlink(filepath.Join(dst, "mysql_data_dir", "ibdata-link"))
	require.NoError(t, err)
	assert.Equal(t, "ibdata1", link)
}

func TestPack_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	_, err := Pack(context.Background(), file, &bytes.Buffer{}, nil)
	assert.True(t, IsFormatError(err))

	_, err = Pack(context.Background(), filepath.Join(t.TempDir(), "missing"), &bytes.Buffer{}, nil)
	assert.Error(t, err)
}

func TestPack_Canceled(t *testing.T) {
	src := makeBackupDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Pack(ctx, src, &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnpack_TargetNotEmpty(t *testing.T) {
	src := makeBackupDir(t)
	var buf bytes.Buffer
	_, err := Pack(context.Background(), src, &buf, nil)
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale"), []byte("x"), 0600))

	_, err = Unpack(context.Background(), &buf, dst, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrExist)
}

func tarStream(t *testing.T, headers ...*tar.Header) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, hdr := range headers {
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg && hdr.Size > 0 {
			_, err := tw.Write(bytes.Repeat([]byte("x"), int(hdr.Size)))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return &buf
}

func TestUnpack_RejectsUnsafeEntries(t *testing.T) {
	tests := []struct {
		name    string
		headers []*tar.Header
	}{
		{
			name:    "parent traversal",
			headers: []*tar.Header{{Name: "../escape", Typeflag: tar.TypeReg, Mode: 0600, Size: 1}},
		},
		{
			name:    "nested traversal",
			headers: []*tar.Header{{Name: "mysql_data_dir/../../escape", Typeflag: tar.TypeReg, Mode: 0600, Size: 1}},
		},
		{
			name:    "absolute name",
			headers: []*tar.Header{{Name: "/etc/passwd", Typeflag: tar.TypeReg, Mode: 0600, Size: 1}},
		},
		{
			name: "through symlink",
			headers: []*tar.Header{
				{Name: "out", Typeflag: tar.TypeSymlink, Linkname: "/tmp", Mode: 0777},
				{Name: "out/file", Typeflag: tar.TypeReg, Mode: 0600, Size: 1},
			},
		},
		{
			name:    "device",
			headers: []*tar.Header{{Name: "null", Typeflag: tar.TypeChar, Mode: 0600}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), "restore")
			_, err := Unpack(context.Background(), tarStream(t, tt.headers...), dst, nil)
			require.Error(t, err)
			assert.True(t, IsFormatError(err), "got %v", err)
		})
	}
}

func TestUnpack_CorruptStream(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "restore")
	_, err := Unpack(context.Background(), bytes.NewReader(bytes.Repeat([]byte{0x42}, 1024)), dst, nil)
	assert.True(t, IsFormatError(err))
}

func TestSafeName(t *testing.T) {
	symlinks := map[string]bool{"mysql_data_dir/link": true}

	valid := []string{"a", "a/b", "a/b/", "./a", "mysql_data_dir/linked"}
	for _, name := range valid {
		_, err := safeName(name, symlinks)
		assert.NoError(t, err, name)
	}

	invalid := []string{"", ".", "..", "../a", "/a", "a/../../b", "mysql_data_dir/link/x"}
	for _, name := range invalid {
		_, err := safeName(name, symlinks)
		assert.Error(t, err, name)
	}

	names := []string{}
	for _, name := range valid {
		cleaned, _ := safeName(name, symlinks)
		names = append(names, cleaned)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a", "a", "a/b", "a/b", "mysql_data_dir/linked"}, names)
}
