package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/blang/semver/v4"

	"mysql-migrate/internal/checksum"
)

// RiskLevel classifies how dangerous a migration set is to apply
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// rank orders risk levels so aggregation can take the maximum
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// MaxRisk returns the higher of two risk levels
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// IsValid reports whether the risk level is one of the known values
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	default:
		return false
	}
}

// ErrorPolicy controls how the executor reacts to a failing step
type ErrorPolicy string

const (
	// PolicyFail aborts the remaining steps of the set
	PolicyFail ErrorPolicy = "fail"
	// PolicyContinue records the error and proceeds to the next step
	PolicyContinue ErrorPolicy = "continue"
	// PolicyRetry re-attempts the step a bounded number of times before
	// falling back to the configured exhaustion policy
	PolicyRetry ErrorPolicy = "retry"
)

// StepKind describes what a step changes. Informational only; it does not
// alter execution semantics.
type StepKind string

const (
	StepKindSchema     StepKind = "schema"
	StepKindData       StepKind = "data"
	StepKindIndex      StepKind = "index"
	StepKindConstraint StepKind = "constraint"
	StepKindFunction   StepKind = "function"
	StepKindProcedure  StepKind = "procedure"
)

// DefaultStepTimeout applies when a step declares no timeout of its own
const DefaultStepTimeout = 30 * time.Second

// DefaultMaxRetries bounds PolicyRetry re-attempts per step
const DefaultMaxRetries = 3

// MigrationStep is one atomic unit of change within a set. Steps execute in
// declaration order; DependsOn is an informational ordering hint only.
type MigrationStep struct {
	ID              string        `json:"id"`
	Kind            StepKind      `json:"kind"`
	Script          string        `json:"script"`
	RollbackScript  string        `json:"rollback_script,omitempty"`
	ValidationQuery string        `json:"validation_query,omitempty"`
	Timeout         time.Duration `json:"timeout"`
	BatchSize       int           `json:"batch_size,omitempty"`
	OnError         ErrorPolicy   `json:"on_error"`
	MaxRetries      int           `json:"max_retries,omitempty"`
	DependsOn       []string      `json:"depends_on,omitempty"`
}

// Validate checks a step's declared content
func (s *MigrationStep) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("step id cannot be empty")
	}
	if s.Script == "" {
		return fmt.Errorf("step %s: script cannot be empty", s.ID)
	}
	switch s.OnError {
	case PolicyFail, PolicyContinue, PolicyRetry, "":
	default:
		return fmt.Errorf("step %s: invalid error policy %q", s.ID, s.OnError)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("step %s: timeout cannot be negative", s.ID)
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("step %s: batch size cannot be negative", s.ID)
	}
	return nil
}

// EffectiveTimeout resolves the step timeout with the package default
func (s *MigrationStep) EffectiveTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultStepTimeout
}

// EffectivePolicy resolves the error policy with the fail default
func (s *MigrationStep) EffectivePolicy() ErrorPolicy {
	if s.OnError == "" {
		return PolicyFail
	}
	return s.OnError
}

// EffectiveMaxRetries bounds the retry count for PolicyRetry steps
func (s *MigrationStep) EffectiveMaxRetries() int {
	if s.MaxRetries > 0 {
		return s.MaxRetries
	}
	return DefaultMaxRetries
}

// MigrationSet is a named, checksummed bundle of ordered steps with declared
// dependencies on other versions. Sets are immutable once registered.
type MigrationSet struct {
	Version           string          `json:"version"`
	Description       string          `json:"description"`
	Dependencies      []string        `json:"dependencies,omitempty"`
	Steps             []MigrationStep `json:"steps"`
	RollbackScript    string          `json:"rollback_script,omitempty"`
	ValidationQueries []string        `json:"validation_queries,omitempty"`
	EstimatedDuration time.Duration   `json:"estimated_duration,omitempty"`
	Risk              RiskLevel       `json:"risk"`
	RequiresDowntime  bool            `json:"requires_downtime"`
	BackupRequired    bool            `json:"backup_required"`
	Checksum          string          `json:"checksum"`
}

// Validate checks the set's declared content, not registry-level invariants
func (ms *MigrationSet) Validate() error {
	if ms.Version == "" {
		return fmt.Errorf("migration version cannot be empty")
	}
	if len(ms.Steps) == 0 {
		return fmt.Errorf("migration %s must declare at least one step", ms.Version)
	}
	if ms.Risk != "" && !ms.Risk.IsValid() {
		return fmt.Errorf("migration %s: invalid risk level %q", ms.Version, ms.Risk)
	}

	seen := make(map[string]bool, len(ms.Steps))
	for i := range ms.Steps {
		step := &ms.Steps[i]
		if err := step.Validate(); err != nil {
			return err
		}
		if seen[step.ID] {
			return fmt.Errorf("migration %s: duplicate step id %q", ms.Version, step.ID)
		}
		seen[step.ID] = true
	}

	for _, dep := range ms.Dependencies {
		if dep == ms.Version {
			return fmt.Errorf("migration %s cannot depend on itself", ms.Version)
		}
	}

	return nil
}

// EffectiveRisk resolves the risk level with the low default
func (ms *MigrationSet) EffectiveRisk() RiskLevel {
	if ms.Risk == "" {
		return RiskLow
	}
	return ms.Risk
}

// ComputeChecksum recomputes the fingerprint over the set's declared content:
// version, description, and every step's identifying fields. Dependencies and
// execution hints (risk, downtime, backup flags) are deliberately excluded so
// that re-classifying a set's risk does not invalidate its fingerprint.
func (ms *MigrationSet) ComputeChecksum() string {
	fields := make([]string, 0, 2+len(ms.Steps)*4)
	fields = append(fields, ms.Version, ms.Description)
	for i := range ms.Steps {
		step := &ms.Steps[i]
		fields = append(fields, step.ID, string(step.Kind), step.Script, step.RollbackScript)
	}
	return checksum.Sum(fields...)
}

// VerifyChecksum reports whether the recorded checksum matches a recomputation
func (ms *MigrationSet) VerifyChecksum() bool {
	return ms.Checksum != "" && ms.Checksum == ms.ComputeChecksum()
}

// Seal computes and records the set's checksum. Callers constructing sets in
// code use this instead of hand-computing the fingerprint.
func (ms *MigrationSet) Seal() {
	ms.Checksum = ms.ComputeChecksum()
}

// Execution error codes recorded in ExecutionResult.Errors
const (
	ErrCodeStepFailed       = "STEP_FAILED"
	ErrCodeStepRollback     = "STEP_ROLLBACK_FAILED"
	ErrCodeBackupFailed     = "BACKUP_FAILED"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeRollbackFailed   = "ROLLBACK_FAILED"
	ErrCodeRestoreFailed    = "RESTORE_FAILED"
)

// ExecutionError is one structured error accumulated during an execution
type ExecutionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ExecutionResult is the immutable record of one attempt to apply, roll back,
// or restore. Results are appended to the history ledger and never mutated
// afterwards.
type ExecutionResult struct {
	ID               string           `json:"id"`
	Success          bool             `json:"success"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      time.Time        `json:"completed_at"`
	Duration         time.Duration    `json:"duration"`
	RecordsProcessed int64            `json:"records_processed"`
	RecordsAffected  int64            `json:"records_affected"`
	Errors           []ExecutionError `json:"errors,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
	RollbackPoint    string           `json:"rollback_point,omitempty"`
	DryRun           bool             `json:"dry_run,omitempty"`
}

// NewExecutionResult starts a result record for the given target id
func NewExecutionResult(id string) *ExecutionResult {
	return &ExecutionResult{
		ID:        id,
		StartedAt: time.Now().UTC(),
	}
}

// AddError appends a structured error
func (er *ExecutionResult) AddError(code, message, detail string) {
	er.Errors = append(er.Errors, ExecutionError{Code: code, Message: message, Detail: detail})
}

// AddWarning appends a warning
func (er *ExecutionResult) AddWarning(warning string) {
	er.Warnings = append(er.Warnings, warning)
}

// Finalize stamps timing and derives success: true iff no errors accumulated
func (er *ExecutionResult) Finalize() {
	er.CompletedAt = time.Now().UTC()
	er.Duration = er.CompletedAt.Sub(er.StartedAt)
	er.Success = len(er.Errors) == 0
}

// RollbackID returns the history id convention for rollback attempts
func RollbackID(version string) string {
	return "rollback-" + version
}

// RestoreID returns the history id convention for restore attempts
func RestoreID(backupID string) string {
	return "restore-" + backupID
}

// CompareVersions orders version identifiers. Identifiers that parse as
// semantic versions compare semantically ("1.10.0" after "1.9.0"); anything
// else falls back to lexicographic comparison.
func CompareVersions(a, b string) int {
	av, aerr := semver.ParseTolerant(a)
	bv, berr := semver.ParseTolerant(b)
	if aerr == nil && berr == nil {
		if c := av.Compare(bv); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	}
	return strings.Compare(a, b)
}
