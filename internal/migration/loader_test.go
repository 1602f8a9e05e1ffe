package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDefinition = `version: "1.2.0"
description: add audit table
dependencies:
  - "1.1.0"
estimated_duration: 5m
risk: medium
requires_downtime: false
backup_required: true
rollback_script: DROP TABLE audit_log
validation_queries:
  - SELECT COUNT(*) FROM audit_log
steps:
  - id: create-audit-table
    kind: schema
    script: CREATE TABLE audit_log (id BIGINT PRIMARY KEY)
    rollback_script: DROP TABLE audit_log
    timeout: 90s
  - id: seed-audit-rows
    kind: data
    script: INSERT INTO audit_log SELECT id FROM events
    on_error: retry
    max_retries: 2
    batch_size: 1000
`

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeDefinition(t, t.TempDir(), "1.2.0.yaml", sampleDefinition)

	set, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "1.2.0", set.Version)
	assert.Equal(t, []string{"1.1.0"}, set.Dependencies)
	assert.Equal(t, 5*time.Minute, set.EstimatedDuration)
	assert.Equal(t, RiskMedium, set.Risk)
	assert.True(t, set.BackupRequired)
	assert.Equal(t, "DROP TABLE audit_log", set.RollbackScript)

	require.Len(t, set.Steps, 2)
	assert.Equal(t, StepKindSchema, set.Steps[0].Kind)
	assert.Equal(t, 90*time.Second, set.Steps[0].Timeout)
	assert.Equal(t, PolicyRetry, set.Steps[1].OnError)
	assert.Equal(t, 2, set.Steps[1].MaxRetries)
	assert.Equal(t, 1000, set.Steps[1].BatchSize)

	// A definition without a checksum is sealed at load time
	assert.True(t, set.VerifyChecksum())
}

func TestLoadFile_DeclaredChecksumKept(t *testing.T) {
	content := sampleDefinition + "checksum: deadbeef\n"
	path := writeDefinition(t, t.TempDir(), "1.2.0.yaml", content)

	set, err := LoadFile(path)
	require.NoError(t, err)

	// The bogus declared checksum survives loading so registration rejects it
	assert.Equal(t, "deadbeef", set.Checksum)
	assert.False(t, set.VerifyChecksum())

	registry := NewRegistry(newMemoryLedger(), nil)
	assert.Error(t, registry.Register(set))
}

func TestLoadFile_RoundTripThroughRegistry(t *testing.T) {
	path := writeDefinition(t, t.TempDir(), "1.2.0.yaml", sampleDefinition)

	set, err := LoadFile(path)
	require.NoError(t, err)

	registry := NewRegistry(newMemoryLedger(), nil)
	require.NoError(t, registry.Register(sealedSet("1.1.0", nil)))
	require.NoError(t, registry.Register(set))
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	badYAML := writeDefinition(t, dir, "bad.yaml", "version: [unclosed")
	_, err = LoadFile(badYAML)
	assert.Error(t, err)

	badDuration := writeDefinition(t, dir, "duration.yaml", "version: \"1.0.0\"\nestimated_duration: soon\nsteps:\n  - id: s1\n    script: SELECT 1\n")
	_, err = LoadFile(badDuration)
	assert.Error(t, err)

	badTimeout := writeDefinition(t, dir, "timeout.yaml", "version: \"1.0.0\"\nsteps:\n  - id: s1\n    script: SELECT 1\n    timeout: whenever\n")
	_, err = LoadFile(badTimeout)
	assert.Error(t, err)
}

func TestLoadDir_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()

	writeDefinition(t, dir, "b.yaml", "version: \"1.10.0\"\nsteps:\n  - id: s1\n    script: SELECT 1\n")
	writeDefinition(t, dir, "a.yml", "version: \"1.9.0\"\nsteps:\n  - id: s1\n    script: SELECT 1\n")
	writeDefinition(t, dir, "notes.txt", "not a migration")

	sets, err := LoadDir(dir)
	require.NoError(t, err)

	require.Len(t, sets, 2)
	assert.Equal(t, "1.9.0", sets[0].Version)
	assert.Equal(t, "1.10.0", sets[1].Version)
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
