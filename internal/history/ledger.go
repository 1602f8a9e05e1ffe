// Package history keeps the durable, append-only record of every execution
// attempt and every backup. The ledger is the audit trail: entries are added,
// never rewritten.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mysql-migrate/internal/backup"
	"mysql-migrate/internal/errors"
	"mysql-migrate/internal/logging"
	"mysql-migrate/internal/migration"
)

// Document is the ledger's on-disk shape. History maps a history id (a
// version, rollback-<version>, or restore-<backup-id>) to its attempts in
// append order.
type Document struct {
	History     map[string][]migration.ExecutionResult `json:"history"`
	Backups     []backup.Record                        `json:"backups"`
	LastUpdated time.Time                              `json:"last_updated"`
}

// Ledger is a file-backed history store. Every append rewrites the file
// atomically and does not return until the new contents are flushed, so a
// crash can lose at most the in-flight append, never recorded history.
//
// It serves both the migration orchestration (execution results) and the
// backup manager (backup catalog).
type Ledger struct {
	mu     sync.Mutex
	path   string
	doc    Document
	logger *logging.Logger
}

// Open loads the ledger at path, creating an empty one if the file does not
// exist yet
func Open(path string, logger *logging.Logger) (*Ledger, error) {
	if path == "" {
		return nil, errors.NewAppError(errors.ErrorTypeConfiguration, "ledger path cannot be empty", nil)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	ledger := &Ledger{
		path:   path,
		logger: logger,
		doc: Document{
			History: make(map[string][]migration.ExecutionResult),
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ledger, nil
		}
		return nil, errors.NewAppError(errors.ErrorTypeStorage, "failed to read history ledger", err).
			WithContext("path", path)
	}

	if err := json.Unmarshal(data, &ledger.doc); err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeStorage, "history ledger is corrupt", err).
			WithContext("path", path)
	}
	if ledger.doc.History == nil {
		ledger.doc.History = make(map[string][]migration.ExecutionResult)
	}

	logger.WithFields(map[string]interface{}{
		"path":    path,
		"entries": len(ledger.doc.History),
		"backups": len(ledger.doc.Backups),
	}).Debug("History ledger loaded")

	return ledger, nil
}

// AppendResult durably records an execution attempt
func (l *Ledger) AppendResult(result migration.ExecutionResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.doc.History[result.ID] = append(l.doc.History[result.ID], result)
	if err := l.flushLocked(); err != nil {
		// Roll the in-memory append back so memory matches disk
		attempts := l.doc.History[result.ID]
		l.doc.History[result.ID] = attempts[:len(attempts)-1]
		return err
	}
	return nil
}

// ResultsFor returns all recorded attempts for a history id, oldest first
func (l *Ledger) ResultsFor(id string) []migration.ExecutionResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	attempts := l.doc.History[id]
	out := make([]migration.ExecutionResult, len(attempts))
	copy(out, attempts)
	return out
}

// HasSucceeded reports whether the version has at least one successful
// execution on record
func (l *Ledger) HasSucceeded(version string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, attempt := range l.doc.History[version] {
		if attempt.Success {
			return true
		}
	}
	return false
}

// AppendBackup durably records a backup
func (l *Ledger) AppendBackup(record backup.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.doc.Backups = append(l.doc.Backups, record)
	if err := l.flushLocked(); err != nil {
		l.doc.Backups = l.doc.Backups[:len(l.doc.Backups)-1]
		return err
	}
	return nil
}

// FindBackup returns the record for a backup id
func (l *Ledger) FindBackup(backupID string) (*backup.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.doc.Backups {
		if l.doc.Backups[i].ID == backupID {
			record := l.doc.Backups[i]
			return &record, nil
		}
	}

	return nil, errors.NewAppError(errors.ErrorTypeNotFound,
		fmt.Sprintf("backup %s is not recorded", backupID), nil).
		WithContext("backup_id", backupID)
}

// ListBackups returns every recorded backup, oldest first
func (l *Ledger) ListBackups() []backup.Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]backup.Record, len(l.doc.Backups))
	copy(out, l.doc.Backups)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// RemoveBackup drops a backup record. This is the one deliberate exception to
// append-only: pruned artifacts no longer exist, so their catalog entries go
// with them. Execution history is never removed.
func (l *Ledger) RemoveBackup(backupID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.doc.Backups {
		if l.doc.Backups[i].ID == backupID {
			removed := l.doc.Backups[i]
			l.doc.Backups = append(l.doc.Backups[:i], l.doc.Backups[i+1:]...)
			if err := l.flushLocked(); err != nil {
				l.doc.Backups = append(l.doc.Backups[:i], append([]backup.Record{removed}, l.doc.Backups[i:]...)...)
				return err
			}
			return nil
		}
	}

	return errors.NewAppError(errors.ErrorTypeNotFound,
		fmt.Sprintf("backup %s is not recorded", backupID), nil).
		WithContext("backup_id", backupID)
}

// Export returns a deep snapshot of the full ledger document for audits
func (l *Ledger) Export() Document {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := Document{
		History:     make(map[string][]migration.ExecutionResult, len(l.doc.History)),
		Backups:     make([]backup.Record, len(l.doc.Backups)),
		LastUpdated: l.doc.LastUpdated,
	}
	for id, attempts := range l.doc.History {
		copied := make([]migration.ExecutionResult, len(attempts))
		copy(copied, attempts)
		out.History[id] = copied
	}
	copy(out.Backups, l.doc.Backups)
	return out
}

// Summary aggregates counts for status displays
type Summary struct {
	Entries     int       `json:"entries"`
	Attempts    int       `json:"attempts"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Backups     int       `json:"backups"`
	LastUpdated time.Time `json:"last_updated"`
}

// Summarize returns aggregate counts over the whole ledger
func (l *Ledger) Summarize() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	summary := Summary{
		Entries:     len(l.doc.History),
		Backups:     len(l.doc.Backups),
		LastUpdated: l.doc.LastUpdated,
	}
	for _, attempts := range l.doc.History {
		summary.Attempts += len(attempts)
		for _, attempt := range attempts {
			if attempt.Success {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
		}
	}
	return summary
}

// Path returns the ledger file location
func (l *Ledger) Path() string {
	return l.path
}

// flushLocked rewrites the ledger file atomically: write a sibling temp file,
// fsync it, then rename over the original. Callers must hold the mutex.
func (l *Ledger) flushLocked() error {
	l.doc.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(&l.doc, "", "  ")
	if err != nil {
		return errors.NewAppError(errors.ErrorTypeStorage, "failed to serialize history ledger", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.NewAppError(errors.ErrorTypeStorage, "failed to create ledger directory", err).
			WithContext("path", dir)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return errors.NewAppError(errors.ErrorTypeStorage, "failed to create ledger temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewAppError(errors.ErrorTypeStorage, "failed to write history ledger", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewAppError(errors.ErrorTypeStorage, "failed to sync history ledger", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewAppError(errors.ErrorTypeStorage, "failed to close ledger temp file", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return errors.NewAppError(errors.ErrorTypeStorage, "failed to replace history ledger", err).
			WithContext("path", l.path)
	}

	return nil
}
