package backup

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorageProvider keeps artifacts as objects in a Google Cloud Storage
// bucket
type GCSStorageProvider struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSStorageProvider creates a GCS provider. Without an explicit
// credentials path the client falls back to application default credentials.
func NewGCSStorageProvider(ctx context.Context, config *GCSConfig) (*GCSStorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("GCS storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid GCS storage configuration", err)
	}

	var client *storage.Client
	var err error
	if config.CredentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(config.CredentialsPath))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	return &GCSStorageProvider{
		client:     client,
		bucketName: config.Bucket,
		prefix:     "backups/",
	}, nil
}

// Put uploads the artifact to GCS
func (gcsp *GCSStorageProvider) Put(ctx context.Context, backupID string, data []byte) (string, error) {
	if backupID == "" {
		return "", NewValidationError("backup ID cannot be empty", nil)
	}

	objectName := gcsp.objectName(backupID)
	writer := gcsp.client.Bucket(gcsp.bucketName).Object(objectName).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.Metadata = map[string]string{
		"backup-id": backupID,
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return "", NewStorageError("failed to write artifact to GCS", err)
	}
	if err := writer.Close(); err != nil {
		return "", NewStorageError("failed to upload artifact to GCS", err)
	}

	return fmt.Sprintf("gs://%s/%s", gcsp.bucketName, objectName), nil
}

// Get downloads the artifact from GCS
func (gcsp *GCSStorageProvider) Get(ctx context.Context, backupID string) ([]byte, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	reader, err := gcsp.client.Bucket(gcsp.bucketName).Object(gcsp.objectName(backupID)).NewReader(ctx)
	if err != nil {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found in GCS", backupID), err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewStorageError("failed to read artifact from GCS", err)
	}

	return data, nil
}

// Delete removes the artifact from GCS
func (gcsp *GCSStorageProvider) Delete(ctx context.Context, backupID string) error {
	if backupID == "" {
		return NewValidationError("backup ID cannot be empty", nil)
	}

	err := gcsp.client.Bucket(gcsp.bucketName).Object(gcsp.objectName(backupID)).Delete(ctx)
	if err != nil {
		return NewStorageError("failed to delete artifact from GCS", err)
	}

	return nil
}

// List returns the ids of every stored artifact
func (gcsp *GCSStorageProvider) List(ctx context.Context) ([]string, error) {
	var ids []string

	it := gcsp.client.Bucket(gcsp.bucketName).Objects(ctx, &storage.Query{Prefix: gcsp.prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, NewStorageError("failed to list artifacts in GCS", err)
		}
		if id := gcsp.idFromObjectName(attrs.Name); id != "" {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// HealthCheck verifies the bucket is accessible
func (gcsp *GCSStorageProvider) HealthCheck(ctx context.Context) error {
	_, err := gcsp.client.Bucket(gcsp.bucketName).Attrs(ctx)
	if err != nil {
		return NewStorageError("GCS health check failed: bucket not accessible", err)
	}
	return nil
}

// Close releases the underlying GCS client
func (gcsp *GCSStorageProvider) Close() error {
	return gcsp.client.Close()
}

func (gcsp *GCSStorageProvider) objectName(backupID string) string {
	sanitized := strings.ReplaceAll(backupID, " ", "_")
	sanitized = strings.ReplaceAll(sanitized, "\\", "_")
	return gcsp.prefix + sanitized + artifactExtension
}

func (gcsp *GCSStorageProvider) idFromObjectName(name string) string {
	if !strings.HasPrefix(name, gcsp.prefix) || !strings.HasSuffix(name, artifactExtension) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, gcsp.prefix), artifactExtension)
}
