package migration

import (
	"context"
	"sync"
	"time"

	"mysql-migrate/internal/executor"
)

// fakeExecutor records every script and query it receives. Failures are
// scripted per statement so tests can drive retry and policy behavior.
type fakeExecutor struct {
	mu           sync.Mutex
	execScripts  []string
	queryQueries []string
	attempts     map[string]int
	execErr      func(script string, attempt int) error
	queryFn      func(query string) (*executor.QueryResult, error)
	rowsAffected int64
	rowsSeq      []int64
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{attempts: make(map[string]int), rowsAffected: 1}
}

func (f *fakeExecutor) Execute(_ context.Context, script string, _ time.Duration) (*executor.ExecOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.execScripts = append(f.execScripts, script)
	f.attempts[script]++

	if f.execErr != nil {
		if err := f.execErr(script, f.attempts[script]); err != nil {
			return nil, err
		}
	}
	if len(f.rowsSeq) > 0 {
		rows := f.rowsSeq[0]
		f.rowsSeq = f.rowsSeq[1:]
		return &executor.ExecOutcome{RowsAffected: rows}, nil
	}
	return &executor.ExecOutcome{RowsAffected: f.rowsAffected}, nil
}

func (f *fakeExecutor) Query(_ context.Context, query string) (*executor.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queryQueries = append(f.queryQueries, query)

	if f.queryFn != nil {
		return f.queryFn(query)
	}
	return &executor.QueryResult{Success: true}, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.execScripts) + len(f.queryQueries)
}

// memoryLedger is an in-memory Ledger for runner and registry tests
type memoryLedger struct {
	mu      sync.Mutex
	results map[string][]ExecutionResult
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{results: make(map[string][]ExecutionResult)}
}

func (l *memoryLedger) AppendResult(result ExecutionResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results[result.ID] = append(l.results[result.ID], result)
	return nil
}

func (l *memoryLedger) ResultsFor(id string) []ExecutionResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ExecutionResult(nil), l.results[id]...)
}

func (l *memoryLedger) HasSucceeded(version string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, result := range l.results[version] {
		if result.Success {
			return true
		}
	}
	return false
}

func (l *memoryLedger) entryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, results := range l.results {
		count += len(results)
	}
	return count
}

// fakeBackupPoint counts backup requests and can be scripted to fail
type fakeBackupPoint struct {
	mu    sync.Mutex
	calls int
	id    string
	err   error
}

func (b *fakeBackupPoint) CreateBackup(_ context.Context, _, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	if b.id != "" {
		return b.id, nil
	}
	return "backup-test", nil
}

func (b *fakeBackupPoint) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// sealedSet builds a minimal valid, sealed migration set for tests
func sealedSet(version string, deps []string, steps ...MigrationStep) *MigrationSet {
	if len(steps) == 0 {
		steps = []MigrationStep{{
			ID:     "create-table",
			Kind:   StepKindSchema,
			Script: "CREATE TABLE widgets (id INT PRIMARY KEY)",
		}}
	}
	set := &MigrationSet{
		Version:      version,
		Description:  "test migration " + version,
		Dependencies: deps,
		Steps:        steps,
	}
	set.Seal()
	return set
}

// markApplied records a successful execution so HasSucceeded reports true
func markApplied(ledger *memoryLedger, version string) {
	result := NewExecutionResult(version)
	result.Finalize()
	_ = ledger.AppendResult(*result)
}
