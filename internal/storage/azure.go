package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureProvider stores archives in an Azure Blob Storage container
type AzureProvider struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
}

// NewAzureProvider creates a provider authenticated with the account key
func NewAzureProvider(config AzureConfig, prefix string) (*AzureProvider, error) {
	if config.AccountName == "" || config.AccountKey == "" || config.ContainerName == "" {
		return nil, NewConfigError("Azure account name, account key and container are required", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, newStorageError(ProviderAzure, "init", config.ContainerName, err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, newStorageError(ProviderAzure, "init", config.ContainerName, err)
	}

	return &AzureProvider{
		containerURL:  azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		containerName: config.ContainerName,
		prefix:        prefix,
	}, nil
}

// Upload streams r into a block blob
func (ap *AzureProvider) Upload(ctx context.Context, key string, r io.Reader, metadata map[string]string) error {
	name, err := objectKey(ap.prefix, key)
	if err != nil {
		return err
	}

	blobURL := ap.containerURL.NewBlockBlobURL(name)
	_, err = azblob.UploadStreamToBlockBlob(ctx, r, blobURL, azblob.UploadStreamToBlockBlobOptions{
		BufferSize: 4 * 1024 * 1024,
		MaxBuffers: 4,
		Metadata:   azblob.Metadata(metadata),
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/octet-stream",
		},
	})
	if err != nil {
		return newStorageError(ProviderAzure, "upload", key, err)
	}
	return nil
}

// Download opens a blob for reading with retries on broken connections
func (ap *AzureProvider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := objectKey(ap.prefix, key)
	if err != nil {
		return nil, err
	}

	blobURL := ap.containerURL.NewBlockBlobURL(name)
	response, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, newStorageError(ProviderAzure, "download", key, translateAzureError(err))
	}
	return response.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20}), nil
}

// Delete removes a blob and its snapshots
func (ap *AzureProvider) Delete(ctx context.Context, key string) error {
	name, err := objectKey(ap.prefix, key)
	if err != nil {
		return err
	}

	blobURL := ap.containerURL.NewBlockBlobURL(name)
	if _, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{}); err != nil {
		return newStorageError(ProviderAzure, "delete", key, translateAzureError(err))
	}
	return nil
}

// List returns the blobs under the provider prefix plus prefix
func (ap *AzureProvider) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object

	for marker := (azblob.Marker{}); marker.NotDone(); {
		response, err := ap.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: ap.prefix + sanitizeKey(prefix),
		})
		if err != nil {
			return nil, newStorageError(ProviderAzure, "list", prefix, err)
		}

		for _, blob := range response.Segment.BlobItems {
			object := Object{
				Key:      strings.TrimPrefix(blob.Name, ap.prefix),
				Modified: blob.Properties.LastModified,
			}
			if blob.Properties.ContentLength != nil {
				object.Size = *blob.Properties.ContentLength
			}
			objects = append(objects, object)
		}

		marker = response.NextMarker
	}
	return objects, nil
}

// HealthCheck verifies that the container is reachable
func (ap *AzureProvider) HealthCheck(ctx context.Context) error {
	if _, err := ap.containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{}); err != nil {
		return newStorageError(ProviderAzure, "health check", ap.containerName, err)
	}
	return nil
}

// Location returns the azure:// URL of key
func (ap *AzureProvider) Location(key string) string {
	name, err := objectKey(ap.prefix, key)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("azure://%s/%s", ap.containerName, name)
}

func translateAzureError(err error) error {
	var storageErr azblob.StorageError
	if errors.As(err, &storageErr) && storageErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
