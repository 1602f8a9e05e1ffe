package backup

import (
	"context"
	"fmt"
	"os"
)

// StorageProvider stores opaque backup artifacts by id. Providers do not
// interpret artifact contents; integrity is the manager's concern.
type StorageProvider interface {
	// Put stores an artifact and returns its provider-specific location
	Put(ctx context.Context, backupID string, data []byte) (string, error)
	// Get retrieves a stored artifact
	Get(ctx context.Context, backupID string) ([]byte, error)
	// Delete removes a stored artifact
	Delete(ctx context.Context, backupID string) error
	// List returns the ids of every stored artifact
	List(ctx context.Context) ([]string, error)
	// HealthCheck verifies the provider is accessible and writable
	HealthCheck(ctx context.Context) error
}

// StorageConfig defines storage provider configuration
type StorageConfig struct {
	Provider StorageProviderType `yaml:"provider" json:"provider"`
	Local    *LocalConfig        `yaml:"local,omitempty" json:"local,omitempty"`
	S3       *S3Config           `yaml:"s3,omitempty" json:"s3,omitempty"`
	Azure    *AzureConfig        `yaml:"azure,omitempty" json:"azure,omitempty"`
	GCS      *GCSConfig          `yaml:"gcs,omitempty" json:"gcs,omitempty"`
}

// Validate checks that the selected provider has its configuration present
func (c *StorageConfig) Validate() error {
	switch c.Provider {
	case StorageProviderLocal:
		if c.Local == nil {
			return fmt.Errorf("local storage selected but not configured")
		}
		return c.Local.Validate()
	case StorageProviderS3:
		if c.S3 == nil {
			return fmt.Errorf("s3 storage selected but not configured")
		}
		return c.S3.Validate()
	case StorageProviderAzure:
		if c.Azure == nil {
			return fmt.Errorf("azure storage selected but not configured")
		}
		return c.Azure.Validate()
	case StorageProviderGCS:
		if c.GCS == nil {
			return fmt.Errorf("gcs storage selected but not configured")
		}
		return c.GCS.Validate()
	default:
		return fmt.Errorf("unsupported storage provider: %s", c.Provider)
	}
}

// LocalConfig for local file system storage
type LocalConfig struct {
	BasePath    string      `yaml:"base_path" json:"base_path"`
	Permissions os.FileMode `yaml:"permissions" json:"permissions"`
}

// Validate checks the local storage configuration
func (c *LocalConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("local storage base_path cannot be empty")
	}
	return nil
}

// S3Config for Amazon S3 storage
type S3Config struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"-"`
}

// Validate checks the S3 storage configuration
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket cannot be empty")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region cannot be empty")
	}
	return nil
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `yaml:"account_name" json:"account_name"`
	AccountKey    string `yaml:"account_key" json:"-"`
	ContainerName string `yaml:"container_name" json:"container_name"`
}

// Validate checks the Azure storage configuration
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account_name cannot be empty")
	}
	if c.AccountKey == "" {
		return fmt.Errorf("azure account_key cannot be empty")
	}
	if c.ContainerName == "" {
		return fmt.Errorf("azure container_name cannot be empty")
	}
	return nil
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	CredentialsPath string `yaml:"credentials_path,omitempty" json:"credentials_path,omitempty"`
	ProjectID       string `yaml:"project_id,omitempty" json:"project_id,omitempty"`
}

// Validate checks the GCS storage configuration
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket cannot be empty")
	}
	return nil
}

// NewStorageProvider creates the provider selected by the configuration
func NewStorageProvider(ctx context.Context, config StorageConfig) (StorageProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid storage configuration", err)
	}

	switch config.Provider {
	case StorageProviderLocal:
		return NewLocalStorageProvider(config.Local)
	case StorageProviderS3:
		return NewS3StorageProvider(config.S3)
	case StorageProviderAzure:
		return NewAzureStorageProvider(config.Azure)
	case StorageProviderGCS:
		return NewGCSStorageProvider(ctx, config.GCS)
	default:
		return nil, NewConfigurationError(fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
	}
}
