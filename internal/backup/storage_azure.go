package backup

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureStorageProvider keeps artifacts as block blobs in an Azure container
type AzureStorageProvider struct {
	containerURL azblob.ContainerURL
	prefix       string
}

// NewAzureStorageProvider creates an Azure Blob Storage provider
func NewAzureStorageProvider(config *AzureConfig) (*AzureStorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("Azure storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid Azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewStorageError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureStorageProvider{
		containerURL: azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		prefix:       "backups/",
	}, nil
}

// Put uploads the artifact to Azure
func (azp *AzureStorageProvider) Put(ctx context.Context, backupID string, data []byte) (string, error) {
	if backupID == "" {
		return "", NewValidationError("backup ID cannot be empty", nil)
	}

	blobName := azp.blobName(backupID)
	blobURL := azp.containerURL.NewBlockBlobURL(blobName)

	_, err := azblob.UploadBufferToBlockBlob(ctx, data, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
		Metadata: azblob.Metadata{
			"backupid": backupID,
		},
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/octet-stream",
		},
	})
	if err != nil {
		return "", NewStorageError("failed to upload artifact to Azure", err)
	}

	return fmt.Sprintf("azure://%s/%s", azp.containerURL.String(), blobName), nil
}

// Get downloads the artifact from Azure
func (azp *AzureStorageProvider) Get(ctx context.Context, backupID string) ([]byte, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	blobURL := azp.containerURL.NewBlockBlobURL(azp.blobName(backupID))

	response, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found in Azure", backupID), err)
	}

	body := response.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, NewStorageError("failed to read artifact from Azure", err)
	}

	return data, nil
}

// Delete removes the artifact from Azure
func (azp *AzureStorageProvider) Delete(ctx context.Context, backupID string) error {
	if backupID == "" {
		return NewValidationError("backup ID cannot be empty", nil)
	}

	blobURL := azp.containerURL.NewBlockBlobURL(azp.blobName(backupID))
	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		return NewStorageError("failed to delete artifact from Azure", err)
	}

	return nil
}

// List returns the ids of every stored artifact
func (azp *AzureStorageProvider) List(ctx context.Context) ([]string, error) {
	var ids []string

	for marker := (azblob.Marker{}); marker.NotDone(); {
		listing, err := azp.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: azp.prefix,
		})
		if err != nil {
			return nil, NewStorageError("failed to list artifacts in Azure", err)
		}

		for _, blob := range listing.Segment.BlobItems {
			if id := azp.idFromBlobName(blob.Name); id != "" {
				ids = append(ids, id)
			}
		}

		marker = listing.NextMarker
	}

	return ids, nil
}

// HealthCheck verifies the container is accessible
func (azp *AzureStorageProvider) HealthCheck(ctx context.Context) error {
	_, err := azp.containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{})
	if err != nil {
		return NewStorageError("Azure health check failed: container not accessible", err)
	}
	return nil
}

func (azp *AzureStorageProvider) blobName(backupID string) string {
	sanitized := strings.ReplaceAll(backupID, " ", "_")
	sanitized = strings.ReplaceAll(sanitized, "\\", "_")
	return azp.prefix + sanitized + artifactExtension
}

func (azp *AzureStorageProvider) idFromBlobName(name string) string {
	if !strings.HasPrefix(name, azp.prefix) || !strings.HasSuffix(name, artifactExtension) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, azp.prefix), artifactExtension)
}
