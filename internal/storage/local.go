package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const metadataSuffix = ".metadata.json"

// LocalProvider stores archives in a directory tree
type LocalProvider struct {
	basePath    string
	prefix      string
	permissions os.FileMode
}

// NewLocalProvider creates the base directory if needed
func NewLocalProvider(config LocalConfig, prefix string) (*LocalProvider, error) {
	if config.BasePath == "" {
		return nil, NewConfigError("local storage base path is required", nil)
	}
	if config.Permissions == 0 {
		config.Permissions = 0750
	}

	provider := &LocalProvider{
		basePath:    filepath.Clean(config.BasePath),
		prefix:      prefix,
		permissions: config.Permissions,
	}
	if err := os.MkdirAll(provider.basePath, provider.permissions); err != nil {
		return nil, newStorageError(ProviderLocal, "init", provider.basePath, err)
	}
	return provider, nil
}

func (lp *LocalProvider) path(key string) (string, error) {
	name, err := objectKey(lp.prefix, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(lp.basePath, filepath.FromSlash(name)), nil
}

// Upload writes r to a temporary file and renames it into place
func (lp *LocalProvider) Upload(ctx context.Context, key string, r io.Reader, metadata map[string]string) error {
	path, err := lp.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), lp.permissions); err != nil {
		return newStorageError(ProviderLocal, "upload", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return newStorageError(ProviderLocal, "upload", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return newStorageError(ProviderLocal, "upload", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return newStorageError(ProviderLocal, "upload", key, err)
	}
	if err := tmp.Close(); err != nil {
		return newStorageError(ProviderLocal, "upload", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0640); err != nil {
		return newStorageError(ProviderLocal, "upload", key, err)
	}

	if len(metadata) > 0 {
		data, err := json.MarshalIndent(metadata, "", "  ")
		if err != nil {
			return newStorageError(ProviderLocal, "upload", key, err)
		}
		if err := os.WriteFile(path+metadataSuffix, data, 0640); err != nil {
			return newStorageError(ProviderLocal, "upload", key, err)
		}
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return newStorageError(ProviderLocal, "upload", key, err)
	}
	return nil
}

// Download opens a stored archive
func (lp *LocalProvider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := lp.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newStorageError(ProviderLocal, "download", key, ErrNotFound)
		}
		return nil, newStorageError(ProviderLocal, "download", key, err)
	}
	return f, nil
}

// Delete removes an archive and its metadata
func (lp *LocalProvider) Delete(ctx context.Context, key string) error {
	path, err := lp.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newStorageError(ProviderLocal, "delete", key, ErrNotFound)
		}
		return newStorageError(ProviderLocal, "delete", key, err)
	}
	if err := os.Remove(path + metadataSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return newStorageError(ProviderLocal, "delete", key, err)
	}
	return nil
}

// List returns the archives whose key starts with prefix, sorted by key
func (lp *LocalProvider) List(ctx context.Context, prefix string) ([]Object, error) {
	root := filepath.Join(lp.basePath, filepath.FromSlash(lp.prefix))
	var objects []Object

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, metadataSuffix) || strings.HasPrefix(name, ".upload-") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, sanitizeKey(prefix)) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size(), Modified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, newStorageError(ProviderLocal, "list", prefix, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// HealthCheck verifies that the base directory is writable
func (lp *LocalProvider) HealthCheck(ctx context.Context) error {
	marker, err := os.CreateTemp(lp.basePath, ".health-*")
	if err != nil {
		return newStorageError(ProviderLocal, "health check", lp.basePath, err)
	}
	marker.Close()
	return os.Remove(marker.Name())
}

// Location returns the file path of key
func (lp *LocalProvider) Location(key string) string {
	path, err := lp.path(key)
	if err != nil {
		return ""
	}
	return path
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
