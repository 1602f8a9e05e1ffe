package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-migrate/internal/backup"
	"mysql-migrate/internal/logging"
)

func validConfig() *Config {
	config := &Config{}
	config.Target.Host = "localhost"
	config.Target.Username = "root"
	config.Target.Database = "app_db"
	config.SetDefaults()
	return config
}

func TestConfig_SetDefaults(t *testing.T) {
	config := validConfig()

	assert.Equal(t, "migration-history.json", config.LedgerPath)
	assert.Equal(t, "migrations", config.MigrationsDir)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, backup.StorageProviderLocal, config.Backup.Storage.Provider)
	require.NotNil(t, config.Backup.Storage.Local)
	assert.Equal(t, "backups", config.Backup.Storage.Local.BasePath)
	assert.Equal(t, backup.CompressionTypeGzip, config.Backup.Compression)
	assert.Equal(t, backup.DefaultRetentionDays, config.Backup.RetentionDays)
	assert.Equal(t, logging.LogLevelNormal, config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	noTarget := &Config{}
	noTarget.SetDefaults()
	assert.Error(t, noTarget.Validate())

	conflicting := validConfig()
	conflicting.Verbose = true
	conflicting.Quiet = true
	assert.Error(t, conflicting.Validate())

	badRetention := validConfig()
	badRetention.Backup.RetentionDays = -1
	assert.Error(t, badRetention.Validate())

	badEncryption := validConfig()
	badEncryption.Backup.Encryption = &backup.EncryptionConfig{Enabled: true, KeySource: "vault"}
	assert.Error(t, badEncryption.Validate())

	badStorage := validConfig()
	badStorage.Backup.Storage.Provider = backup.StorageProviderS3
	badStorage.Backup.Storage.S3 = nil
	assert.Error(t, badStorage.Validate())
}

func TestConfig_EffectiveLogLevel(t *testing.T) {
	config := validConfig()
	assert.Equal(t, logging.LogLevelNormal, config.EffectiveLogLevel())

	config.Verbose = true
	assert.Equal(t, logging.LogLevelVerbose, config.EffectiveLogLevel())

	config.Verbose = false
	config.Quiet = true
	assert.Equal(t, logging.LogLevelQuiet, config.EffectiveLogLevel())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `target:
  host: db.internal
  port: 3307
  username: migrator
  database: app_db
ledger_path: /var/lib/migrate/history.json
backup:
  compression: zstd
  retention_days: 14
logging:
  level: verbose
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", config.Target.Host)
	assert.Equal(t, 3307, config.Target.Port)
	assert.Equal(t, "/var/lib/migrate/history.json", config.LedgerPath)
	assert.Equal(t, backup.CompressionTypeZstd, config.Backup.Compression)
	assert.Equal(t, 14, config.Backup.RetentionDays)
	assert.Equal(t, logging.LogLevelVerbose, config.Logging.Level)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("target: [unclosed"), 0o600))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}

func TestWriteSample_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, WriteSample(path))

	config, err := LoadFile(path)
	require.NoError(t, err)

	config.SetDefaults()
	assert.NoError(t, config.Validate(), "the sample configuration must validate")
	assert.Equal(t, "localhost", config.Target.Host)
}
