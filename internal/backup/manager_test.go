package backup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-migrate/internal/migration"
)

// memoryCatalog is an in-memory Catalog for manager tests
type memoryCatalog struct {
	records []Record
	results []migration.ExecutionResult
}

func (c *memoryCatalog) AppendBackup(record Record) error {
	c.records = append(c.records, record)
	return nil
}

func (c *memoryCatalog) FindBackup(backupID string) (*Record, error) {
	for i := range c.records {
		if c.records[i].ID == backupID {
			record := c.records[i]
			return &record, nil
		}
	}
	return nil, NewNotFoundError(fmt.Sprintf("backup %s is not recorded", backupID), nil)
}

func (c *memoryCatalog) ListBackups() []Record {
	return append([]Record(nil), c.records...)
}

func (c *memoryCatalog) RemoveBackup(backupID string) error {
	for i := range c.records {
		if c.records[i].ID == backupID {
			c.records = append(c.records[:i], c.records[i+1:]...)
			return nil
		}
	}
	return NewNotFoundError(fmt.Sprintf("backup %s is not recorded", backupID), nil)
}

func (c *memoryCatalog) AppendResult(result migration.ExecutionResult) error {
	c.results = append(c.results, result)
	return nil
}

// memoryStorage keeps artifacts in a map and allows scripted corruption
type memoryStorage struct {
	artifacts map[string][]byte
	putErr    error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{artifacts: make(map[string][]byte)}
}

func (s *memoryStorage) Put(_ context.Context, backupID string, data []byte) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.artifacts[backupID] = append([]byte(nil), data...)
	return "memory://" + backupID, nil
}

func (s *memoryStorage) Get(_ context.Context, backupID string) ([]byte, error) {
	data, ok := s.artifacts[backupID]
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found", backupID), nil)
	}
	return append([]byte(nil), data...), nil
}

func (s *memoryStorage) Delete(_ context.Context, backupID string) error {
	if _, ok := s.artifacts[backupID]; !ok {
		return NewNotFoundError(fmt.Sprintf("backup %s not found", backupID), nil)
	}
	delete(s.artifacts, backupID)
	return nil
}

func (s *memoryStorage) List(context.Context) ([]string, error) {
	var ids []string
	for id := range s.artifacts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memoryStorage) HealthCheck(context.Context) error { return nil }

// fixedSnapshotter returns a fixed artifact and statement list
type fixedSnapshotter struct {
	artifact   []byte
	statements []string
	err        error
}

func (f *fixedSnapshotter) Snapshot(context.Context, BackupType) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.artifact, nil
}

func (f *fixedSnapshotter) RestoreStatements([]byte) ([]string, error) {
	return f.statements, nil
}

type managerFixture struct {
	catalog     *memoryCatalog
	storage     *memoryStorage
	snapshotter *fixedSnapshotter
	exec        *queryExecutor
	manager     *Manager
}

func newManagerFixture(t *testing.T, config ManagerConfig) *managerFixture {
	t.Helper()
	catalog := &memoryCatalog{}
	storage := newMemoryStorage()
	snapshotter := &fixedSnapshotter{
		artifact:   []byte(`{"statements":["CREATE TABLE widgets (id INT)"]}`),
		statements: []string{"CREATE TABLE widgets (id INT)"},
	}
	exec := newQueryExecutor()
	return &managerFixture{
		catalog:     catalog,
		storage:     storage,
		snapshotter: snapshotter,
		exec:        exec,
		manager:     NewManager(catalog, exec, snapshotter, storage, nil, config),
	}
}

func TestManager_Create(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{})

	record, err := f.manager.Create(context.Background(), CreateOptions{
		Version:     "1.0.0",
		Label:       "pre-migration",
		Description: "before widget table change",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "1.0.0", record.Version)
	assert.Equal(t, BackupTypeFull, record.Type, "type defaults to full")
	assert.Equal(t, CompressionTypeGzip, record.Compression, "compression defaults to gzip")
	assert.Equal(t, DefaultRetentionDays, record.RetentionDays)
	assert.False(t, record.Encrypted)
	assert.NotEmpty(t, record.Checksum)

	// The artifact landed in storage and the record in the catalog
	stored, err := f.storage.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
	require.Len(t, f.catalog.records, 1)
}

func TestManager_Create_Validation(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{})

	_, err := f.manager.Create(context.Background(), CreateOptions{})
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeValidation))

	_, err = f.manager.Create(context.Background(), CreateOptions{Version: "1.0.0", Type: BackupType("partial")})
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeValidation))
}

func TestManager_Create_StorageFailureNothingCataloged(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{})
	f.storage.putErr = NewStorageError("bucket unreachable", nil)

	_, err := f.manager.Create(context.Background(), CreateOptions{Version: "1.0.0"})
	require.Error(t, err)
	assert.Empty(t, f.catalog.records, "a failed store must leave no catalog entry")
}

func TestManager_CreateBackup_BackupPointContract(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{})

	backupID, err := f.manager.CreateBackup(context.Background(), "1.0.0", "pre-migration")
	require.NoError(t, err)
	assert.NotEmpty(t, backupID)

	record, err := f.catalog.FindBackup(backupID)
	require.NoError(t, err)
	assert.Equal(t, BackupTypeFull, record.Type)
	assert.Equal(t, "pre-migration", record.Label)
}

func TestManager_RestoreRoundTrip(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{
		Compression: CompressionTypeZstd,
		Encryption: &EncryptionConfig{
			Enabled: true, KeySource: "passphrase", Passphrase: "secret",
		},
	})

	record, err := f.manager.Create(context.Background(), CreateOptions{Version: "1.0.0"})
	require.NoError(t, err)
	assert.True(t, record.Encrypted)

	result, err := f.manager.Restore(context.Background(), record.ID)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, migration.RestoreID(record.ID), result.ID)
	assert.Equal(t, []string{"CREATE TABLE widgets (id INT)"}, f.exec.execed)

	// The restore attempt is recorded in the catalog's history
	require.Len(t, f.catalog.results, 1)
	assert.True(t, f.catalog.results[0].Success)
}

func TestManager_Restore_CorruptArtifactExecutesNothing(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{})

	record, err := f.manager.Create(context.Background(), CreateOptions{Version: "1.0.0"})
	require.NoError(t, err)

	// Flip a byte in the stored artifact after the checksum was recorded
	artifact := f.storage.artifacts[record.ID]
	artifact[0] ^= 0xff

	_, err = f.manager.Restore(context.Background(), record.ID)
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeCorruption))
	assert.Empty(t, f.exec.execed, "a corrupt artifact must never reach the executor")
}

func TestManager_Restore_UnknownBackup(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{})

	_, err := f.manager.Restore(context.Background(), "backup-404")
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeNotFound))
}

func TestManager_Restore_FailedStatementRecorded(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{})
	f.snapshotter.statements = []string{"STMT-1", "STMT-2"}
	f.exec.errs["STMT-1"] = fmt.Errorf("table already exists")

	record, err := f.manager.Create(context.Background(), CreateOptions{Version: "1.0.0"})
	require.NoError(t, err)

	result, err := f.manager.Restore(context.Background(), record.ID)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, migration.ErrCodeRestoreFailed, result.Errors[0].Code)
	assert.NotContains(t, f.exec.execed, "STMT-2", "restore halts on the first failed statement")
	require.Len(t, f.catalog.results, 1)
	assert.False(t, f.catalog.results[0].Success)
}

func TestManager_Verify(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{})

	record, err := f.manager.Create(context.Background(), CreateOptions{Version: "1.0.0"})
	require.NoError(t, err)

	assert.NoError(t, f.manager.Verify(context.Background(), record.ID))

	f.storage.artifacts[record.ID][0] ^= 0xff
	err = f.manager.Verify(context.Background(), record.ID)
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeCorruption))
}

func TestManager_PruneExpired(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{})

	expired, err := f.manager.Create(context.Background(), CreateOptions{Version: "1.0.0", RetentionDays: 7})
	require.NoError(t, err)
	fresh, err := f.manager.Create(context.Background(), CreateOptions{Version: "1.1.0", RetentionDays: 90})
	require.NoError(t, err)

	now := time.Now().UTC().Add(30 * 24 * time.Hour)
	pruned, err := f.manager.PruneExpired(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, []string{expired.ID}, pruned)
	_, err = f.catalog.FindBackup(expired.ID)
	assert.Error(t, err)
	_, err = f.catalog.FindBackup(fresh.ID)
	assert.NoError(t, err)
	_, hasExpired := f.storage.artifacts[expired.ID]
	assert.False(t, hasExpired)
}

func TestManager_PruneExpired_MissingArtifactTolerated(t *testing.T) {
	f := newManagerFixture(t, ManagerConfig{})

	record, err := f.manager.Create(context.Background(), CreateOptions{Version: "1.0.0", RetentionDays: 1})
	require.NoError(t, err)

	// The artifact vanished out from under the catalog
	delete(f.storage.artifacts, record.ID)

	pruned, err := f.manager.PruneExpired(context.Background(), time.Now().UTC().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{record.ID}, pruned)
}
