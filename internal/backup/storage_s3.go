package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3StorageProvider keeps artifacts as objects in an S3 bucket
type S3StorageProvider struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3StorageProvider creates an S3 provider
func NewS3StorageProvider(config *S3Config) (*S3StorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("S3 storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid S3 storage configuration", err)
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	return &S3StorageProvider{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: "backups/",
	}, nil
}

// Put uploads the artifact to S3
func (s3p *S3StorageProvider) Put(ctx context.Context, backupID string, data []byte) (string, error) {
	if backupID == "" {
		return "", NewValidationError("backup ID cannot be empty", nil)
	}

	key := s3p.objectKey(backupID)
	_, err := s3p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]*string{
			"backup-id": aws.String(backupID),
		},
	})
	if err != nil {
		return "", NewStorageError("failed to upload artifact to S3", err)
	}

	return fmt.Sprintf("s3://%s/%s", s3p.bucket, key), nil
}

// Get downloads the artifact from S3
func (s3p *S3StorageProvider) Get(ctx context.Context, backupID string) ([]byte, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	result, err := s3p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(s3p.objectKey(backupID)),
	})
	if err != nil {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found in S3", backupID), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, NewStorageError("failed to read artifact from S3", err)
	}

	return data, nil
}

// Delete removes the artifact from S3
func (s3p *S3StorageProvider) Delete(ctx context.Context, backupID string) error {
	if backupID == "" {
		return NewValidationError("backup ID cannot be empty", nil)
	}

	_, err := s3p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(s3p.objectKey(backupID)),
	})
	if err != nil {
		return NewStorageError("failed to delete artifact from S3", err)
	}

	return nil
}

// List returns the ids of every stored artifact
func (s3p *S3StorageProvider) List(ctx context.Context) ([]string, error) {
	var ids []string

	err := s3p.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s3p.bucket),
		Prefix: aws.String(s3p.prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			if id := s3p.idFromKey(aws.StringValue(obj.Key)); id != "" {
				ids = append(ids, id)
			}
		}
		return true
	})
	if err != nil {
		return nil, NewStorageError("failed to list artifacts in S3", err)
	}

	return ids, nil
}

// HealthCheck verifies the bucket exists and is listable
func (s3p *S3StorageProvider) HealthCheck(ctx context.Context) error {
	_, err := s3p.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s3p.bucket),
	})
	if err != nil {
		return NewStorageError("S3 health check failed: bucket not accessible", err)
	}

	_, err = s3p.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s3p.bucket),
		Prefix:  aws.String(s3p.prefix),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return NewStorageError("S3 health check failed: cannot list objects", err)
	}

	return nil
}

func (s3p *S3StorageProvider) objectKey(backupID string) string {
	sanitized := strings.ReplaceAll(backupID, " ", "_")
	sanitized = strings.ReplaceAll(sanitized, "\\", "_")
	return s3p.prefix + sanitized + artifactExtension
}

func (s3p *S3StorageProvider) idFromKey(key string) string {
	if !strings.HasPrefix(key, s3p.prefix) || !strings.HasSuffix(key, artifactExtension) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(key, s3p.prefix), artifactExtension)
}
