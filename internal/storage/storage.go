// Package storage offloads backup archives to local or cloud object
// storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ProviderType names a storage backend
type ProviderType string

const (
	ProviderLocal ProviderType = "LOCAL"
	ProviderS3    ProviderType = "S3"
	ProviderAzure ProviderType = "AZURE"
	ProviderGCS   ProviderType = "GCS"
)

// DefaultPrefix is prepended to every object key
const DefaultPrefix = "backups/"

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("object not found")

// Object describes one stored archive
type Object struct {
	Key      string    `json:"key" yaml:"key"`
	Size     int64     `json:"size" yaml:"size"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

// Provider stores archives under keys relative to the provider prefix
type Provider interface {
	Upload(ctx context.Context, key string, r io.Reader, metadata map[string]string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	HealthCheck(ctx context.Context) error
	Location(key string) string
}

// Config selects and configures the storage backend
type Config struct {
	Provider ProviderType `mapstructure:"provider" yaml:"provider"`
	Prefix   string       `mapstructure:"prefix" yaml:"prefix"`
	Local    LocalConfig  `mapstructure:"local" yaml:"local"`
	S3       S3Config     `mapstructure:"s3" yaml:"s3"`
	Azure    AzureConfig  `mapstructure:"azure" yaml:"azure"`
	GCS      GCSConfig    `mapstructure:"gcs" yaml:"gcs"`

	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
}

// LocalConfig for local file system storage
type LocalConfig struct {
	BasePath    string      `mapstructure:"base_path" yaml:"base_path"`
	Permissions os.FileMode `mapstructure:"permissions" yaml:"permissions"`
}

// S3Config for Amazon S3 and S3 compatible storage
type S3Config struct {
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Region         string `mapstructure:"region" yaml:"region"`
	AccessKey      string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey      string `mapstructure:"secret_key" yaml:"secret_key"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey    string `mapstructure:"account_key" yaml:"account_key"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path"`
	ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
}

// ParseProviderType accepts the provider name in any case
func ParseProviderType(s string) (ProviderType, error) {
	p := ProviderType(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case ProviderLocal, ProviderS3, ProviderAzure, ProviderGCS:
		return p, nil
	}
	return "", NewConfigError(fmt.Sprintf("unsupported storage provider: %s", s), nil)
}

// SetDefaults sets default values for the storage configuration
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderLocal
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Local.Permissions == 0 {
		c.Local.Permissions = 0750
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
}

// Validate checks the section of the selected provider only
func (c *Config) Validate() error {
	provider, err := ParseProviderType(string(c.Provider))
	if err != nil {
		return err
	}
	c.Provider = provider

	var problems []string
	switch provider {
	case ProviderLocal:
		if c.Local.BasePath == "" {
			problems = append(problems, "local.base_path is required")
		}
	case ProviderS3:
		if c.S3.Bucket == "" {
			problems = append(problems, "s3.bucket is required")
		}
		if c.S3.Region == "" {
			problems = append(problems, "s3.region is required")
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			problems = append(problems, "s3.access_key and s3.secret_key must be set together")
		}
	case ProviderAzure:
		if c.Azure.AccountName == "" {
			problems = append(problems, "azure.account_name is required")
		}
		if c.Azure.AccountKey == "" {
			problems = append(problems, "azure.account_key is required")
		}
		if c.Azure.ContainerName == "" {
			problems = append(problems, "azure.container_name is required")
		}
	case ProviderGCS:
		if c.GCS.Bucket == "" {
			problems = append(problems, "gcs.bucket is required")
		}
	}

	if len(problems) > 0 {
		return NewConfigError("invalid storage configuration: "+strings.Join(problems, "; "), nil)
	}
	return c.Retention.Validate()
}

// StorageError wraps a backend failure with the key it concerns
type StorageError struct {
	Provider ProviderType
	Op       string
	Key      string
	Err      error
}

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("storage %s %s", strings.ToLower(string(e.Provider)), e.Op)
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newStorageError(provider ProviderType, op, key string, err error) *StorageError {
	return &StorageError{Provider: provider, Op: op, Key: key, Err: err}
}

// ConfigError reports an unusable storage configuration
type ConfigError struct {
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{Message: message, Cause: cause}
}

// objectKey joins the prefix and a sanitized key
func objectKey(prefix, key string) (string, error) {
	key = sanitizeKey(key)
	if key == "" {
		return "", NewConfigError("object key cannot be empty", nil)
	}
	return prefix + key, nil
}

// sanitizeKey keeps keys slash separated and free of parent references
func sanitizeKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "/")
	parts := strings.Split(key, "/")
	kept := parts[:0]
	for _, part := range parts {
		part = strings.ReplaceAll(strings.TrimSpace(part), " ", "_")
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}
