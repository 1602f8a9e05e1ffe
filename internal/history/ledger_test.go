package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-migrate/internal/backup"
	"mysql-migrate/internal/errors"
	"mysql-migrate/internal/migration"
)

func ledgerPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "migration-history.json")
}

func finishedResult(id string, success bool) migration.ExecutionResult {
	result := migration.NewExecutionResult(id)
	if !success {
		result.AddError(migration.ErrCodeStepFailed, "step failed", "boom")
	}
	result.Finalize()
	return *result
}

func testRecord(id, version string) backup.Record {
	return backup.Record{
		ID:        id,
		Version:   version,
		CreatedAt: time.Now().UTC(),
		Type:      backup.BackupTypeFull,
		Size:      1024,
		Location:  "/backups/" + id + ".bak",
		Checksum:  "abc123",
	}
}

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	path := ledgerPath(t)

	ledger, err := Open(path, nil)
	require.NoError(t, err)

	assert.Empty(t, ledger.ResultsFor("1.0.0"))
	assert.Empty(t, ledger.ListBackups())
	assert.Equal(t, path, ledger.Path())

	// Opening alone does not create the file
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpen_EmptyPathRejected(t *testing.T) {
	_, err := Open("", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestOpen_CorruptFileRejected(t *testing.T) {
	path := ledgerPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Open(path, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
}

func TestLedger_AppendResult_SurvivesReopen(t *testing.T) {
	path := ledgerPath(t)

	ledger, err := Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, ledger.AppendResult(finishedResult("1.0.0", false)))
	require.NoError(t, ledger.AppendResult(finishedResult("1.0.0", true)))

	reopened, err := Open(path, nil)
	require.NoError(t, err)

	attempts := reopened.ResultsFor("1.0.0")
	require.Len(t, attempts, 2)
	assert.False(t, attempts[0].Success, "append order is preserved")
	assert.True(t, attempts[1].Success)
	assert.True(t, reopened.HasSucceeded("1.0.0"))
}

func TestLedger_HasSucceeded(t *testing.T) {
	ledger, err := Open(ledgerPath(t), nil)
	require.NoError(t, err)

	assert.False(t, ledger.HasSucceeded("1.0.0"))

	require.NoError(t, ledger.AppendResult(finishedResult("1.0.0", false)))
	assert.False(t, ledger.HasSucceeded("1.0.0"), "a failed attempt does not mark the version applied")

	require.NoError(t, ledger.AppendResult(finishedResult("1.0.0", true)))
	assert.True(t, ledger.HasSucceeded("1.0.0"))
}

func TestLedger_BackupRecords(t *testing.T) {
	path := ledgerPath(t)
	ledger, err := Open(path, nil)
	require.NoError(t, err)

	record := testRecord("backup-1", "1.0.0")
	require.NoError(t, ledger.AppendBackup(record))

	found, err := ledger.FindBackup("backup-1")
	require.NoError(t, err)
	assert.Equal(t, record.Location, found.Location)

	_, err = ledger.FindBackup("backup-404")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	require.Len(t, reopened.ListBackups(), 1)
}

func TestLedger_ListBackups_SortedByCreation(t *testing.T) {
	ledger, err := Open(ledgerPath(t), nil)
	require.NoError(t, err)

	older := testRecord("backup-old", "1.0.0")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := testRecord("backup-new", "1.1.0")

	require.NoError(t, ledger.AppendBackup(newer))
	require.NoError(t, ledger.AppendBackup(older))

	listed := ledger.ListBackups()
	require.Len(t, listed, 2)
	assert.Equal(t, "backup-old", listed[0].ID)
	assert.Equal(t, "backup-new", listed[1].ID)
}

func TestLedger_RemoveBackup(t *testing.T) {
	path := ledgerPath(t)
	ledger, err := Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, ledger.AppendBackup(testRecord("backup-1", "1.0.0")))
	require.NoError(t, ledger.AppendResult(finishedResult("1.0.0", true)))

	require.NoError(t, ledger.RemoveBackup("backup-1"))
	assert.Empty(t, ledger.ListBackups())

	// Execution history is untouched by backup pruning
	assert.Len(t, ledger.ResultsFor("1.0.0"), 1)

	err = ledger.RemoveBackup("backup-1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	assert.Empty(t, reopened.ListBackups())
}

func TestLedger_Export_DeepCopy(t *testing.T) {
	ledger, err := Open(ledgerPath(t), nil)
	require.NoError(t, err)

	require.NoError(t, ledger.AppendResult(finishedResult("1.0.0", true)))
	require.NoError(t, ledger.AppendBackup(testRecord("backup-1", "1.0.0")))

	exported := ledger.Export()
	exported.History["1.0.0"][0].ID = "mutated"
	exported.Backups[0].ID = "mutated"

	assert.Equal(t, "1.0.0", ledger.ResultsFor("1.0.0")[0].ID)
	_, err = ledger.FindBackup("backup-1")
	assert.NoError(t, err)
}

func TestLedger_Summarize(t *testing.T) {
	ledger, err := Open(ledgerPath(t), nil)
	require.NoError(t, err)

	require.NoError(t, ledger.AppendResult(finishedResult("1.0.0", true)))
	require.NoError(t, ledger.AppendResult(finishedResult("1.0.0", false)))
	require.NoError(t, ledger.AppendResult(finishedResult("2.0.0", true)))
	require.NoError(t, ledger.AppendBackup(testRecord("backup-1", "1.0.0")))

	summary := ledger.Summarize()
	assert.Equal(t, 2, summary.Entries)
	assert.Equal(t, 3, summary.Attempts)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Backups)
	assert.False(t, summary.LastUpdated.IsZero())
}

func TestLedger_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.json")

	ledger, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, ledger.AppendResult(finishedResult("1.0.0", true)))

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
