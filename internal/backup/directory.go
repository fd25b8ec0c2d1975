package backup

import (
	"path/filepath"
	"strings"
)

// NormalizeDirectory cleans an absolute directory path so that it never ends
// with a separator. ok is false for empty or relative paths.
func NormalizeDirectory(path string) (string, bool) {
	if path == "" || !filepath.IsAbs(path) {
		return "", false
	}
	return filepath.Clean(path), true
}

// Contains reports whether child is parent itself or lies somewhere below it.
// Matching is done on whole path segments: /var/lib/mysql2 is not inside
// /var/lib/mysql. Both arguments must already be normalized.
func Contains(parent, child string) bool {
	if parent == child {
		return true
	}
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(child, prefix)
}

// binlogDirectory derives the directory holding the binary logs from the
// binlog base name. A value without a separator past the first byte has no
// usable directory.
func binlogDirectory(basename string) (string, bool) {
	idx := strings.LastIndex(basename, string(filepath.Separator))
	if idx <= 0 {
		return "", false
	}
	return NormalizeDirectory(basename[:idx])
}
