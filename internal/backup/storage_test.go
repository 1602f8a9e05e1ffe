package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  StorageConfig
		wantErr bool
	}{
		{
			name:    "local configured",
			config:  StorageConfig{Provider: StorageProviderLocal, Local: &LocalConfig{BasePath: "/var/backups"}},
			wantErr: false,
		},
		{
			name:    "local missing section",
			config:  StorageConfig{Provider: StorageProviderLocal},
			wantErr: true,
		},
		{
			name:    "s3 configured",
			config:  StorageConfig{Provider: StorageProviderS3, S3: &S3Config{Bucket: "backups", Region: "eu-west-1"}},
			wantErr: false,
		},
		{
			name:    "s3 missing region",
			config:  StorageConfig{Provider: StorageProviderS3, S3: &S3Config{Bucket: "backups"}},
			wantErr: true,
		},
		{
			name: "azure configured",
			config: StorageConfig{Provider: StorageProviderAzure, Azure: &AzureConfig{
				AccountName: "acct", AccountKey: "key", ContainerName: "backups",
			}},
			wantErr: false,
		},
		{
			name:    "azure missing key",
			config:  StorageConfig{Provider: StorageProviderAzure, Azure: &AzureConfig{AccountName: "acct", ContainerName: "backups"}},
			wantErr: true,
		},
		{
			name:    "gcs configured",
			config:  StorageConfig{Provider: StorageProviderGCS, GCS: &GCSConfig{Bucket: "backups"}},
			wantErr: false,
		},
		{
			name:    "gcs missing bucket",
			config:  StorageConfig{Provider: StorageProviderGCS, GCS: &GCSConfig{}},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			config:  StorageConfig{Provider: "ftp"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
