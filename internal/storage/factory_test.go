package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	local, err := NewProvider(ctx, Config{Provider: "local", Local: LocalConfig{BasePath: filepath.Join(t.TempDir(), "b")}})
	require.NoError(t, err)
	assert.IsType(t, &LocalProvider{}, local)

	s3, err := NewProvider(ctx, Config{Provider: ProviderS3, S3: S3Config{
		Bucket: "bucket", Region: "eu-central-1", AccessKey: "AKIA", SecretKey: "secret",
	}})
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/backups/x.tar", s3.Location("x.tar"))

	azure, err := NewProvider(ctx, Config{Provider: ProviderAzure, Azure: AzureConfig{
		AccountName: "account", AccountKey: "c2VjcmV0", ContainerName: "backups",
	}})
	require.NoError(t, err)
	assert.Equal(t, "azure://backups/backups/x.tar", azure.Location("x.tar"))

	_, err = NewProvider(ctx, Config{Provider: ProviderS3})
	assert.Error(t, err)

	_, err = NewProvider(ctx, Config{Provider: "tape"})
	assert.Error(t, err)
}

func TestSupportedProviders(t *testing.T) {
	assert.Equal(t, []ProviderType{ProviderLocal, ProviderS3, ProviderAzure, ProviderGCS}, SupportedProviders())
}
