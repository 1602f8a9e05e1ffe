package backup

import (
	"fmt"
	"time"
)

// BackupType describes what a backup captures
type BackupType string

const (
	BackupTypeFull       BackupType = "full"
	BackupTypeIncremental BackupType = "incremental"
	BackupTypeSchemaOnly BackupType = "schema_only"
	BackupTypeDataOnly   BackupType = "data_only"
)

// IsValid reports whether the backup type is one of the known values
func (t BackupType) IsValid() bool {
	switch t {
	case BackupTypeFull, BackupTypeIncremental, BackupTypeSchemaOnly, BackupTypeDataOnly:
		return true
	default:
		return false
	}
}

// CompressionType selects the artifact compression algorithm
type CompressionType string

const (
	CompressionTypeNone CompressionType = "none"
	CompressionTypeGzip CompressionType = "gzip"
	CompressionTypeLZ4  CompressionType = "lz4"
	CompressionTypeZstd CompressionType = "zstd"
)

// StorageProviderType selects where artifacts are kept
type StorageProviderType string

const (
	StorageProviderLocal StorageProviderType = "local"
	StorageProviderS3    StorageProviderType = "s3"
	StorageProviderAzure StorageProviderType = "azure"
	StorageProviderGCS   StorageProviderType = "gcs"
)

// DefaultRetentionDays applies when a backup declares no retention of its own
const DefaultRetentionDays = 30

// Record is the catalog entry for one stored backup artifact. The artifact
// itself lives with the storage provider; the record carries everything needed
// to find, verify, and expire it.
type Record struct {
	ID             string          `json:"id"`
	Version        string          `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	Type           BackupType      `json:"type"`
	Size           int64           `json:"size"`
	CompressedSize int64           `json:"compressed_size"`
	Compression    CompressionType `json:"compression"`
	Encrypted      bool            `json:"encrypted"`
	Location       string          `json:"location"`
	Checksum       string          `json:"checksum"`
	RetentionDays  int             `json:"retention_days"`
	CreatedBy      string          `json:"created_by,omitempty"`
	Description    string          `json:"description,omitempty"`
	Label          string          `json:"label,omitempty"`
}

// Validate checks the record's declared content
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("backup id cannot be empty")
	}
	if r.Version == "" {
		return fmt.Errorf("backup %s: version cannot be empty", r.ID)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("backup %s: invalid backup type %q", r.ID, r.Type)
	}
	if r.Checksum == "" {
		return fmt.Errorf("backup %s: checksum cannot be empty", r.ID)
	}
	if r.RetentionDays < 0 {
		return fmt.Errorf("backup %s: retention days cannot be negative", r.ID)
	}
	return nil
}

// EffectiveRetention resolves the retention window with the package default
func (r *Record) EffectiveRetention() int {
	if r.RetentionDays > 0 {
		return r.RetentionDays
	}
	return DefaultRetentionDays
}

// ExpiresAt returns the instant after which the backup may be pruned
func (r *Record) ExpiresAt() time.Time {
	return r.CreatedAt.Add(time.Duration(r.EffectiveRetention()) * 24 * time.Hour)
}

// Expired reports whether the backup is past its retention window at now
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt())
}
