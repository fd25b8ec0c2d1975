package storage

import (
	"context"
	"fmt"
)

// NewProvider creates the provider selected by config
func NewProvider(ctx context.Context, config Config) (Provider, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case ProviderLocal:
		return NewLocalProvider(config.Local, config.Prefix)
	case ProviderS3:
		return NewS3Provider(config.S3, config.Prefix)
	case ProviderAzure:
		return NewAzureProvider(config.Azure, config.Prefix)
	case ProviderGCS:
		return NewGCSProvider(ctx, config.GCS, config.Prefix)
	}
	return nil, NewConfigError(fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
}

// SupportedProviders lists the provider types NewProvider accepts
func SupportedProviders() []ProviderType {
	return []ProviderType{ProviderLocal, ProviderS3, ProviderAzure, ProviderGCS}
}
