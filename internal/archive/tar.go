package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PackStats counts what went into or came out of a tar stream
type PackStats struct {
	Files       int   `json:"files" yaml:"files"`
	Directories int   `json:"directories" yaml:"directories"`
	Symlinks    int   `json:"symlinks" yaml:"symlinks"`
	Bytes       int64 `json:"bytes" yaml:"bytes"`
}

// FileFunc is called with the slash separated name of every packed or
// unpacked entry
type FileFunc func(name string)

// Pack writes the tree under root to w as a tar stream. Names are relative
// to root. Sockets, pipes and devices are skipped.
func Pack(ctx context.Context, root string, w io.Writer, onFile FileFunc) (*PackStats, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, NewIOError("failed to stat backup directory", root, err)
	}
	if !info.IsDir() {
		return nil, NewFormatError("backup path is not a directory", root)
	}

	stats := &PackStats{}
	tw := tar.NewWriter(w)

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		var link string
		switch {
		case info.IsDir():
			stats.Directories++
		case info.Mode()&os.ModeSymlink != 0:
			if link, err = os.Readlink(path); err != nil {
				return err
			}
			stats.Symlinks++
		case info.Mode().IsRegular():
			stats.Files++
		default:
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			n, err := copyFileTo(tw, path)
			if err != nil {
				return err
			}
			stats.Bytes += n
		}

		if onFile != nil {
			onFile(name)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, NewIOError("failed to pack backup", root, err)
	}

	if err := tw.Close(); err != nil {
		return nil, NewIOError("failed to finish tar stream", root, err)
	}
	return stats, nil
}

func copyFileTo(w io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// Unpack extracts a tar stream written by Pack into dst, which must not
// exist or be empty. Entries that would land outside dst are rejected.
func Unpack(ctx context.Context, r io.Reader, dst string, onFile FileFunc) (*PackStats, error) {
	if err := prepareTarget(dst); err != nil {
		return nil, err
	}

	stats := &PackStats{}
	symlinks := make(map[string]bool)
	tr := tar.NewReader(r)
	copyBuffer := make([]byte, 1<<20)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, NewFormatError(fmt.Sprintf("corrupt tar stream: %v", err), dst)
		}

		name, err := safeName(hdr.Name, symlinks)
		if err != nil {
			return nil, err
		}
		target := filepath.Join(dst, filepath.FromSlash(name))
		mode := os.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0700); err != nil {
				return nil, NewIOError("failed to create directory", target, err)
			}
			stats.Directories++
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
				return nil, NewIOError("failed to create directory", filepath.Dir(target), err)
			}
			n, err := writeFile(target, mode, tr, copyBuffer)
			if err != nil {
				return nil, NewIOError("failed to extract file", target, err)
			}
			stats.Files++
			stats.Bytes += n
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
				return nil, NewIOError("failed to create directory", filepath.Dir(target), err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return nil, NewIOError("failed to create symlink", target, err)
			}
			symlinks[name] = true
			stats.Symlinks++
		default:
			return nil, NewFormatError(fmt.Sprintf("bad file type %c for %q", hdr.Typeflag, hdr.Name), dst)
		}

		if hdr.Typeflag == tar.TypeReg && !hdr.ModTime.IsZero() {
			if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
				return nil, NewIOError("failed to set modification time", target, err)
			}
		}
		if onFile != nil {
			onFile(name)
		}
	}

	return stats, nil
}

// safeName cleans an entry name and rejects absolute names, names that
// climb out of the target and names below an extracted symlink
func safeName(name string, symlinks map[string]bool) (string, error) {
	cleaned := strings.TrimSuffix(filepath.ToSlash(filepath.Clean(filepath.FromSlash(name))), "/")
	if cleaned == "" || cleaned == "." || filepath.IsAbs(name) || strings.HasPrefix(name, "/") ||
		cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", NewFormatError(fmt.Sprintf("bad name %q in archive", name), "")
	}
	for dir := cleaned; ; {
		i := strings.LastIndex(dir, "/")
		if i < 0 {
			break
		}
		dir = dir[:i]
		if symlinks[dir] {
			return "", NewFormatError(fmt.Sprintf("entry %q is below symlink %q", name, dir), "")
		}
	}
	return cleaned, nil
}

func prepareTarget(dst string) error {
	entries, err := os.ReadDir(dst)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dst, 0750); err != nil {
			return NewIOError("failed to create target directory", dst, err)
		}
		return nil
	case err != nil:
		return NewIOError("failed to read target directory", dst, err)
	case len(entries) > 0:
		return NewIOError("target directory is not empty", dst, os.ErrExist)
	}
	return nil
}

func writeFile(path string, mode os.FileMode, r io.Reader, buf []byte) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return 0, err
	}
	n, err := io.CopyBuffer(f, r, buf)
	if err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}
