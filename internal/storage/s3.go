package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Provider stores archives in an S3 bucket. Uploads are multipart so
// archives are streamed without being buffered whole.
type S3Provider struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Provider creates a provider from static keys, or from the default
// credential chain when no keys are configured
func NewS3Provider(config S3Config, prefix string) (*S3Provider, error) {
	if config.Bucket == "" || config.Region == "" {
		return nil, NewConfigError("S3 bucket and region are required", nil)
	}

	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}
	if config.ForcePathStyle {
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, newStorageError(ProviderS3, "init", config.Bucket, err)
	}

	return NewS3ProviderWithClient(s3.New(sess), config.Bucket, prefix), nil
}

// NewS3ProviderWithClient creates a provider on an existing client
func NewS3ProviderWithClient(client s3iface.S3API, bucket, prefix string) *S3Provider {
	return &S3Provider{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// Upload streams r to the bucket
func (sp *S3Provider) Upload(ctx context.Context, key string, r io.Reader, metadata map[string]string) error {
	name, err := objectKey(sp.prefix, key)
	if err != nil {
		return err
	}

	input := &s3manager.UploadInput{
		Bucket:      aws.String(sp.bucket),
		Key:         aws.String(name),
		Body:        r,
		ContentType: aws.String("application/octet-stream"),
	}
	if len(metadata) > 0 {
		input.Metadata = aws.StringMap(metadata)
	}

	if _, err := sp.uploader.UploadWithContext(ctx, input); err != nil {
		return newStorageError(ProviderS3, "upload", key, err)
	}
	return nil
}

// Download opens an object for reading
func (sp *S3Provider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := objectKey(sp.prefix, key)
	if err != nil {
		return nil, err
	}

	result, err := sp.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(sp.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, newStorageError(ProviderS3, "download", key, translateS3Error(err))
	}
	return result.Body, nil
}

// Delete removes an object
func (sp *S3Provider) Delete(ctx context.Context, key string) error {
	name, err := objectKey(sp.prefix, key)
	if err != nil {
		return err
	}

	// DeleteObject succeeds for missing keys
	if _, err := sp.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(sp.bucket),
		Key:    aws.String(name),
	}); err != nil {
		return newStorageError(ProviderS3, "delete", key, translateS3Error(err))
	}

	if _, err := sp.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(sp.bucket),
		Key:    aws.String(name),
	}); err != nil {
		return newStorageError(ProviderS3, "delete", key, err)
	}
	return nil
}

// List returns the objects under the provider prefix plus prefix
func (sp *S3Provider) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(sp.bucket),
		Prefix: aws.String(sp.prefix + sanitizeKey(prefix)),
	}
	err := sp.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				objects = append(objects, Object{
					Key:      strings.TrimPrefix(aws.StringValue(obj.Key), sp.prefix),
					Size:     aws.Int64Value(obj.Size),
					Modified: aws.TimeValue(obj.LastModified),
				})
			}
			return true
		})
	if err != nil {
		return nil, newStorageError(ProviderS3, "list", prefix, err)
	}
	return objects, nil
}

// HealthCheck verifies that the bucket is reachable and listable
func (sp *S3Provider) HealthCheck(ctx context.Context) error {
	if _, err := sp.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(sp.bucket),
	}); err != nil {
		return newStorageError(ProviderS3, "health check", sp.bucket, err)
	}

	if _, err := sp.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(sp.bucket),
		Prefix:  aws.String(sp.prefix),
		MaxKeys: aws.Int64(1),
	}); err != nil {
		return newStorageError(ProviderS3, "health check", sp.bucket, err)
	}
	return nil
}

// Location returns the s3:// URL of key
func (sp *S3Provider) Location(key string) string {
	name, err := objectKey(sp.prefix, key)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("s3://%s/%s", sp.bucket, name)
}

func translateS3Error(err error) error {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return fmt.Errorf("%w: %s", ErrNotFound, aerr.Message())
		}
	}
	return err
}
