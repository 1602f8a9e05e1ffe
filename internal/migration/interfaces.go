package migration

import "context"

// Ledger is the narrow view of the history ledger the registry and runner
// need. The concrete implementation lives in internal/history.
type Ledger interface {
	// AppendResult durably records an execution attempt. It must not return
	// until the record is flushed.
	AppendResult(result ExecutionResult) error
	// ResultsFor returns all recorded attempts for a history id, oldest first
	ResultsFor(id string) []ExecutionResult
	// HasSucceeded reports whether the version has at least one successful
	// execution on record
	HasSucceeded(version string) bool
}

// BackupPoint creates a pre-change snapshot and returns its backup id. The
// concrete implementation lives in internal/backup.
type BackupPoint interface {
	CreateBackup(ctx context.Context, version, label string) (string, error)
}
