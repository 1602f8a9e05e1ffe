package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const artifactExtension = ".bak"

// LocalStorageProvider keeps artifacts as files under a base directory
type LocalStorageProvider struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalStorageProvider creates a local provider, ensuring the base
// directory exists
func NewLocalStorageProvider(config *LocalConfig) (*LocalStorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("local storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid local storage configuration", err)
	}

	permissions := config.Permissions
	if permissions == 0 {
		permissions = 0750
	}

	provider := &LocalStorageProvider{
		basePath:    config.BasePath,
		permissions: permissions,
	}

	if err := os.MkdirAll(provider.basePath, provider.permissions); err != nil {
		return nil, NewStorageError("failed to create base directory", err)
	}

	return provider, nil
}

// Put writes the artifact to disk and fsyncs it before returning
func (lsp *LocalStorageProvider) Put(ctx context.Context, backupID string, data []byte) (string, error) {
	if backupID == "" {
		return "", NewValidationError("backup ID cannot be empty", nil)
	}

	path := lsp.artifactPath(backupID)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return "", NewStorageError("failed to create artifact file", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return "", NewStorageError("failed to write artifact file", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return "", NewStorageError("failed to sync artifact file", err)
	}
	if err := file.Close(); err != nil {
		return "", NewStorageError("failed to close artifact file", err)
	}

	return path, nil
}

// Get reads a stored artifact
func (lsp *LocalStorageProvider) Get(ctx context.Context, backupID string) ([]byte, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	path := lsp.artifactPath(backupID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewNotFoundError(fmt.Sprintf("backup %s not found", backupID), err)
		}
		return nil, NewStorageError("failed to read artifact file", err)
	}

	return data, nil
}

// Delete removes a stored artifact
func (lsp *LocalStorageProvider) Delete(ctx context.Context, backupID string) error {
	if backupID == "" {
		return NewValidationError("backup ID cannot be empty", nil)
	}

	path := lsp.artifactPath(backupID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return NewNotFoundError(fmt.Sprintf("backup %s not found", backupID), err)
		}
		return NewStorageError("failed to delete artifact file", err)
	}

	return nil
}

// List returns the ids of every stored artifact
func (lsp *LocalStorageProvider) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(lsp.basePath)
	if err != nil {
		return nil, NewStorageError("failed to list artifacts", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), artifactExtension) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), artifactExtension))
	}

	return ids, nil
}

// HealthCheck verifies the base directory is writable
func (lsp *LocalStorageProvider) HealthCheck(ctx context.Context) error {
	testFile := filepath.Join(lsp.basePath, ".health_check")

	if err := os.WriteFile(testFile, []byte("health_check"), 0640); err != nil {
		return NewStorageError("health check failed: cannot write to base directory", err)
	}
	if _, err := os.ReadFile(testFile); err != nil {
		return NewStorageError("health check failed: cannot read from base directory", err)
	}

	os.Remove(testFile)
	return nil
}

// BasePath returns the directory artifacts are stored under
func (lsp *LocalStorageProvider) BasePath() string {
	return lsp.basePath
}

// artifactPath maps a backup id to its file, sanitized against traversal
func (lsp *LocalStorageProvider) artifactPath(backupID string) string {
	sanitized := strings.ReplaceAll(backupID, "/", "_")
	sanitized = strings.ReplaceAll(sanitized, "\\", "_")
	sanitized = strings.ReplaceAll(sanitized, "..", "_")
	return filepath.Join(lsp.basePath, sanitized+artifactExtension)
}
