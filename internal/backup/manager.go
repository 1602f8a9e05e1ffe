package backup

import (
	"context"
	"fmt"
	"os/user"
	"time"

	"github.com/google/uuid"

	"mysql-migrate/internal/checksum"
	"mysql-migrate/internal/executor"
	"mysql-migrate/internal/logging"
	"mysql-migrate/internal/migration"
)

// DefaultRestoreTimeout bounds each restore statement. Restores replay whole
// snapshots, so the bound is wider than a migration step timeout.
const DefaultRestoreTimeout = 10 * time.Minute

// Catalog is the narrow view of the history ledger the manager needs. The
// concrete implementation lives in internal/history.
type Catalog interface {
	// AppendBackup durably records a backup. It must not return until the
	// record is flushed.
	AppendBackup(record Record) error
	// FindBackup returns the record for a backup id
	FindBackup(backupID string) (*Record, error)
	// ListBackups returns every recorded backup, oldest first
	ListBackups() []Record
	// RemoveBackup drops a backup record, typically after pruning
	RemoveBackup(backupID string) error
	// AppendResult durably records a restore attempt
	AppendResult(result migration.ExecutionResult) error
}

// CreateOptions controls one backup creation
type CreateOptions struct {
	Version       string
	Label         string
	Type          BackupType
	Description   string
	RetentionDays int
}

// Manager runs the backup pipeline: snapshot, compress, encrypt, store,
// catalog. It also restores artifacts back through the statement executor.
// Backups outlive the migrations that triggered them; retention is the only
// thing that removes them.
type Manager struct {
	catalog        Catalog
	executor       executor.StatementExecutor
	snapshotter    Snapshotter
	storage        StorageProvider
	compression    *CompressionManager
	encryption     *EncryptionManager
	algorithm      CompressionType
	restoreTimeout time.Duration
	logger         *logging.Logger
}

// ManagerConfig selects the manager's pipeline settings
type ManagerConfig struct {
	Compression    CompressionType
	Encryption     *EncryptionConfig
	RestoreTimeout time.Duration
}

// NewManager constructs a backup manager with explicit collaborators
func NewManager(catalog Catalog, exec executor.StatementExecutor, snapshotter Snapshotter, storage StorageProvider, logger *logging.Logger, config ManagerConfig) *Manager {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	algorithm := config.Compression
	if algorithm == "" {
		algorithm = CompressionTypeGzip
	}
	restoreTimeout := config.RestoreTimeout
	if restoreTimeout <= 0 {
		restoreTimeout = DefaultRestoreTimeout
	}
	return &Manager{
		catalog:        catalog,
		executor:       exec,
		snapshotter:    snapshotter,
		storage:        storage,
		compression:    NewCompressionManager(),
		encryption:     NewEncryptionManager(config.Encryption),
		algorithm:      algorithm,
		restoreTimeout: restoreTimeout,
		logger:         logger,
	}
}

// Create captures a backup and catalogs it. The stored artifact's checksum is
// computed over the final stored bytes, after compression and encryption, so
// any later corruption is caught before the artifact is interpreted.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Record, error) {
	if opts.Version == "" {
		return nil, NewValidationError("backup version cannot be empty", nil)
	}
	backupType := opts.Type
	if backupType == "" {
		backupType = BackupTypeFull
	}
	if !backupType.IsValid() {
		return nil, NewValidationError(fmt.Sprintf("invalid backup type %q", backupType), nil)
	}

	start := time.Now()
	backupID := "backup-" + uuid.New().String()

	snapshot, err := m.snapshotter.Snapshot(ctx, backupType)
	if err != nil {
		return nil, err
	}

	compressed, err := m.compression.Compress(snapshot, m.algorithm)
	if err != nil {
		return nil, err
	}

	artifact, err := m.encryption.Encrypt(compressed)
	if err != nil {
		return nil, err
	}

	location, err := m.storage.Put(ctx, backupID, artifact)
	if err != nil {
		return nil, err
	}

	record := Record{
		ID:             backupID,
		Version:        opts.Version,
		CreatedAt:      time.Now().UTC(),
		Type:           backupType,
		Size:           int64(len(snapshot)),
		CompressedSize: int64(len(artifact)),
		Compression:    m.algorithm,
		Encrypted:      m.encryption.IsEnabled(),
		Location:       location,
		Checksum:       checksum.SumBytes(artifact),
		RetentionDays:  opts.RetentionDays,
		CreatedBy:      currentUser(),
		Description:    opts.Description,
		Label:          opts.Label,
	}
	if record.RetentionDays == 0 {
		record.RetentionDays = DefaultRetentionDays
	}

	if err := record.Validate(); err != nil {
		return nil, NewValidationError("invalid backup record", err)
	}

	if err := m.catalog.AppendBackup(record); err != nil {
		return nil, NewStorageError("failed to catalog backup", err)
	}

	m.logger.LogBackupCreated(backupID, opts.Version, record.CompressedSize, time.Since(start))
	return &record, nil
}

// CreateBackup captures a full backup for the given version. It satisfies the
// migration orchestration's backup point contract.
func (m *Manager) CreateBackup(ctx context.Context, version, label string) (string, error) {
	record, err := m.Create(ctx, CreateOptions{
		Version: version,
		Label:   label,
		Type:    BackupTypeFull,
	})
	if err != nil {
		return "", err
	}
	return record.ID, nil
}

// Restore replays a stored backup through the statement executor. Integrity
// is checked before anything else touches the artifact: a checksum mismatch
// aborts with no statements executed. The attempt is recorded in the ledger
// either way.
func (m *Manager) Restore(ctx context.Context, backupID string) (*migration.ExecutionResult, error) {
	record, err := m.catalog.FindBackup(backupID)
	if err != nil {
		return nil, err
	}

	artifact, err := m.storage.Get(ctx, backupID)
	if err != nil {
		return nil, err
	}

	// The integrity gate. Nothing downstream sees a corrupt artifact.
	if checksum.SumBytes(artifact) != record.Checksum {
		return nil, NewCorruptionError(
			fmt.Sprintf("backup %s failed checksum verification: artifact was modified after it was stored", backupID), nil).
			WithContext("backup_id", backupID).
			WithContext("expected_checksum", record.Checksum)
	}

	result := migration.NewExecutionResult(migration.RestoreID(backupID))

	compressed, err := m.encryption.Decrypt(artifact)
	if err != nil {
		return nil, err
	}

	snapshot, err := m.compression.Decompress(compressed, record.Compression)
	if err != nil {
		return nil, err
	}

	statements, err := m.snapshotter.RestoreStatements(snapshot)
	if err != nil {
		return nil, err
	}

	for _, statement := range statements {
		outcome, execErr := m.executor.Execute(ctx, statement, m.restoreTimeout)
		if execErr != nil {
			result.AddError(migration.ErrCodeRestoreFailed, "restore statement failed", execErr.Error())
			break
		}
		result.RecordsProcessed += outcome.RowsAffected
		result.RecordsAffected += outcome.RowsAffected
	}

	result.Finalize()

	var firstErr error
	if len(result.Errors) > 0 {
		firstErr = fmt.Errorf("%s: %s", result.Errors[0].Code, result.Errors[0].Message)
	}
	m.logger.LogRestore(backupID, result.Duration, firstErr)

	if err := m.catalog.AppendResult(*result); err != nil {
		return result, NewStorageError("failed to record restore attempt", err)
	}

	return result, nil
}

// Verify re-checks a stored artifact against its cataloged checksum without
// interpreting it
func (m *Manager) Verify(ctx context.Context, backupID string) error {
	record, err := m.catalog.FindBackup(backupID)
	if err != nil {
		return err
	}

	artifact, err := m.storage.Get(ctx, backupID)
	if err != nil {
		return err
	}

	if checksum.SumBytes(artifact) != record.Checksum {
		return NewCorruptionError(
			fmt.Sprintf("backup %s failed checksum verification", backupID), nil).
			WithContext("backup_id", backupID)
	}

	return nil
}

// List returns every cataloged backup, oldest first
func (m *Manager) List() []Record {
	return m.catalog.ListBackups()
}

// PruneExpired deletes artifacts past their retention window and drops their
// catalog records. It returns the pruned backup ids.
func (m *Manager) PruneExpired(ctx context.Context, now time.Time) ([]string, error) {
	var pruned []string

	for _, record := range m.catalog.ListBackups() {
		if !record.Expired(now) {
			continue
		}

		if err := m.storage.Delete(ctx, record.ID); err != nil {
			// A missing artifact is already gone; anything else stops the prune
			if !IsType(err, BackupErrorTypeNotFound) {
				return pruned, err
			}
		}

		if err := m.catalog.RemoveBackup(record.ID); err != nil {
			return pruned, NewStorageError("failed to drop pruned backup record", err)
		}

		pruned = append(pruned, record.ID)
		m.logger.WithFields(map[string]interface{}{
			"backup_id":  record.ID,
			"version":    record.Version,
			"created_at": record.CreatedAt,
		}).Info("Expired backup pruned")
	}

	return pruned, nil
}

// currentUser best-effort resolves who is running the tool
func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
