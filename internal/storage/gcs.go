package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSProvider stores archives in a Google Cloud Storage bucket
type GCSProvider struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSProvider creates a client from a credentials file, or from the
// default credentials when none is configured
func NewGCSProvider(ctx context.Context, config GCSConfig, prefix string) (*GCSProvider, error) {
	if config.Bucket == "" {
		return nil, NewConfigError("GCS bucket is required", nil)
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}
	if config.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(config.ProjectID))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, newStorageError(ProviderGCS, "init", config.Bucket, err)
	}

	return &GCSProvider{
		client:     client,
		bucketName: config.Bucket,
		prefix:     prefix,
	}, nil
}

// Upload streams r into a new object
func (gp *GCSProvider) Upload(ctx context.Context, key string, r io.Reader, metadata map[string]string) error {
	name, err := objectKey(gp.prefix, key)
	if err != nil {
		return err
	}

	writer := gp.client.Bucket(gp.bucketName).Object(name).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.Metadata = metadata

	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return newStorageError(ProviderGCS, "upload", key, err)
	}
	if err := writer.Close(); err != nil {
		return newStorageError(ProviderGCS, "upload", key, err)
	}
	return nil
}

// Download opens an object for reading
func (gp *GCSProvider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := objectKey(gp.prefix, key)
	if err != nil {
		return nil, err
	}

	reader, err := gp.client.Bucket(gp.bucketName).Object(name).NewReader(ctx)
	if err != nil {
		return nil, newStorageError(ProviderGCS, "download", key, translateGCSError(err))
	}
	return reader, nil
}

// Delete removes an object
func (gp *GCSProvider) Delete(ctx context.Context, key string) error {
	name, err := objectKey(gp.prefix, key)
	if err != nil {
		return err
	}

	if err := gp.client.Bucket(gp.bucketName).Object(name).Delete(ctx); err != nil {
		return newStorageError(ProviderGCS, "delete", key, translateGCSError(err))
	}
	return nil
}

// List returns the objects under the provider prefix plus prefix
func (gp *GCSProvider) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object

	it := gp.client.Bucket(gp.bucketName).Objects(ctx, &storage.Query{Prefix: gp.prefix + sanitizeKey(prefix)})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, newStorageError(ProviderGCS, "list", prefix, err)
		}
		objects = append(objects, Object{
			Key:      strings.TrimPrefix(attrs.Name, gp.prefix),
			Size:     attrs.Size,
			Modified: attrs.Updated,
		})
	}
	return objects, nil
}

// HealthCheck verifies that the bucket is reachable and listable
func (gp *GCSProvider) HealthCheck(ctx context.Context) error {
	bucket := gp.client.Bucket(gp.bucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		return newStorageError(ProviderGCS, "health check", gp.bucketName, err)
	}

	it := bucket.Objects(ctx, &storage.Query{Prefix: gp.prefix})
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return newStorageError(ProviderGCS, "health check", gp.bucketName, err)
	}
	return nil
}

// Location returns the gs:// URL of key
func (gp *GCSProvider) Location(key string) string {
	name, err := objectKey(gp.prefix, key)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("gs://%s/%s", gp.bucketName, name)
}

// Close releases the client
func (gp *GCSProvider) Close() error {
	return gp.client.Close()
}

func translateGCSError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
