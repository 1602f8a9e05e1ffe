package migration

import (
	"context"
	"fmt"
	"time"

	"mysql-migrate/internal/errors"
	"mysql-migrate/internal/executor"
	"mysql-migrate/internal/logging"
)

// ExecuteOptions controls a single execution attempt
type ExecuteOptions struct {
	// DryRun simulates the execution: no statements run, no backup is taken,
	// and nothing is appended to the ledger. The returned result has the same
	// shape as a real run.
	DryRun bool
	// Force bypasses the already-applied guard
	Force bool
	// BackupBefore overrides the set's BackupRequired flag when non-nil
	BackupBefore *bool
	// ValidateAfter runs the set's validation queries after the steps
	ValidateAfter bool
	// Timeout overrides every step's declared timeout when positive
	Timeout time.Duration
	// BatchSize overrides every step's declared batch size when positive
	BatchSize int
}

// RunnerConfig holds orchestration policy knobs
type RunnerConfig struct {
	// RetryExhausted decides what a PolicyRetry step becomes once its
	// attempts are exhausted: PolicyFail halts the set (default),
	// PolicyContinue records the error and proceeds.
	RetryExhausted ErrorPolicy
}

// Runner orchestrates execution of one migration set: precondition checks,
// backup, ordered step execution, post-validation, and durable recording.
// Callers must serialize Runner, RollbackCoordinator, and backup operations
// against the same target store; the framework assumes a single in-flight
// pipeline per store.
type Runner struct {
	registry *Registry
	ledger   Ledger
	executor executor.StatementExecutor
	backups  BackupPoint
	logger   *logging.Logger
	config   RunnerConfig
}

// NewRunner constructs a runner with explicit collaborators. The backup point
// may be nil when no set requires backups; executions that do require one
// then fail closed.
func NewRunner(registry *Registry, ledger Ledger, exec executor.StatementExecutor, backups BackupPoint, logger *logging.Logger, config RunnerConfig) *Runner {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if config.RetryExhausted == "" {
		config.RetryExhausted = PolicyFail
	}
	return &Runner{
		registry: registry,
		ledger:   ledger,
		executor: exec,
		backups:  backups,
		logger:   logger,
		config:   config,
	}
}

// Execute applies one registered migration set. Precondition failures
// (unknown version, unmet dependency, already applied) return an error with
// no side effects. Once execution starts, failures accumulate in the result's
// error list; the result is recorded in the ledger unless this is a dry run.
func (r *Runner) Execute(ctx context.Context, version string, opts ExecuteOptions) (*ExecutionResult, error) {
	set, err := r.registry.Get(version)
	if err != nil {
		return nil, err
	}

	// Precondition: every dependency has a successful execution on record
	for _, dep := range set.Dependencies {
		if !r.ledger.HasSucceeded(dep) {
			return nil, errors.NewAppError(errors.ErrorTypeUnmetDependency,
				fmt.Sprintf("migration %s requires %s to be applied first", version, dep), nil).
				WithContext("version", version).
				WithContext("dependency", dep)
		}
	}

	// Precondition: idempotence guard unless forced
	if r.ledger.HasSucceeded(version) && !opts.Force {
		return nil, errors.NewAppError(errors.ErrorTypeAlreadyApplied,
			fmt.Sprintf("migration %s has already been applied", version), nil).
			WithContext("version", version)
	}

	result := NewExecutionResult(version)
	result.DryRun = opts.DryRun

	// Backup before any step runs. A failed required backup aborts the
	// execution: never proceed unprotected.
	backupNeeded := set.BackupRequired
	if opts.BackupBefore != nil {
		backupNeeded = *opts.BackupBefore
	}
	if backupNeeded && !opts.DryRun {
		if r.backups == nil {
			result.AddError(ErrCodeBackupFailed, "backup required but no backup manager is configured", "")
		} else {
			backupID, backupErr := r.backups.CreateBackup(ctx, version, "pre-migration")
			if backupErr != nil {
				result.AddError(ErrCodeBackupFailed,
					fmt.Sprintf("pre-migration backup failed for %s", version), backupErr.Error())
			} else {
				result.RollbackPoint = backupID
			}
		}
		if len(result.Errors) > 0 {
			return r.finish(result, set, opts)
		}
	}

	r.runSteps(ctx, set, opts, result)

	// Post-validation only applies to real runs that reached this point
	if opts.ValidateAfter && !opts.DryRun {
		r.runValidationQueries(ctx, set.ValidationQueries, result)
	}

	return r.finish(result, set, opts)
}

// finish finalizes the result, records it durably (real runs only), and logs
func (r *Runner) finish(result *ExecutionResult, set *MigrationSet, opts ExecuteOptions) (*ExecutionResult, error) {
	result.Finalize()

	var firstErr error
	if len(result.Errors) > 0 {
		firstErr = fmt.Errorf("%s: %s", result.Errors[0].Code, result.Errors[0].Message)
	}
	r.logger.LogMigrationExecution(set.Version, len(set.Steps), result.Duration, opts.DryRun, result.Success, firstErr)

	if opts.DryRun {
		return result, nil
	}

	if err := r.ledger.AppendResult(*result); err != nil {
		return result, errors.WrapError(err, fmt.Sprintf("failed to record execution of %s", set.Version))
	}
	return result, nil
}

// runSteps executes each step in declaration order, honoring its error policy
func (r *Runner) runSteps(ctx context.Context, set *MigrationSet, opts ExecuteOptions, result *ExecutionResult) {
	for i := range set.Steps {
		step := &set.Steps[i]

		if opts.DryRun {
			// Simulated outcome: same shape, no executor calls
			result.AddWarning(fmt.Sprintf("dry-run: step %s (%s) not executed", step.ID, step.Kind))
			continue
		}

		halt := r.runStep(ctx, set.Version, step, opts, result)
		if halt {
			return
		}
	}
}

// runStep executes one step and reports whether the set must halt
func (r *Runner) runStep(ctx context.Context, version string, step *MigrationStep, opts ExecuteOptions, result *ExecutionResult) bool {
	timeout := step.EffectiveTimeout()
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	batch := step.BatchSize
	if opts.BatchSize > 0 {
		batch = opts.BatchSize
	}

	policy := step.EffectivePolicy()
	attempts := 1
	if policy == PolicyRetry {
		attempts = 1 + step.EffectiveMaxRetries()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		affected, err := r.executeChunks(ctx, step.Script, timeout, batch)
		r.logger.LogStepExecution(version, step.ID, attempt, time.Since(start), err)

		if err == nil {
			result.RecordsProcessed += affected
			result.RecordsAffected += affected
			return r.validateStep(ctx, step, policy, result)
		}
		lastErr = err
	}

	// The step failed every attempt. Attempt the declared step-level rollback
	// best-effort before deciding whether to halt.
	result.AddError(ErrCodeStepFailed,
		fmt.Sprintf("step %s failed", step.ID), lastErr.Error())

	if step.RollbackScript != "" {
		if _, rbErr := r.executor.Execute(ctx, step.RollbackScript, timeout); rbErr != nil {
			result.AddError(ErrCodeStepRollback,
				fmt.Sprintf("rollback of step %s failed", step.ID), rbErr.Error())
		}
	}

	effective := policy
	if policy == PolicyRetry {
		effective = r.config.RetryExhausted
	}
	return effective != PolicyContinue
}

// executeChunks runs the script once, or, for batched steps, repeatedly until
// a pass affects fewer rows than the batch size. Batched scripts bound their
// own chunk with LIMIT; a full chunk means more rows remain.
func (r *Runner) executeChunks(ctx context.Context, script string, timeout time.Duration, batch int) (int64, error) {
	var total int64
	for {
		outcome, err := r.executor.Execute(ctx, script, timeout)
		if err != nil {
			return total, err
		}
		total += outcome.RowsAffected
		if batch <= 0 || outcome.RowsAffected < int64(batch) {
			return total, nil
		}
	}
}

// validateStep runs the step's own validation query, if any. A failing
// post-step check is an error; whether it halts follows the step's policy.
func (r *Runner) validateStep(ctx context.Context, step *MigrationStep, policy ErrorPolicy, result *ExecutionResult) bool {
	if step.ValidationQuery == "" {
		return false
	}

	qr, err := r.executor.Query(ctx, step.ValidationQuery)
	if err != nil {
		result.AddError(ErrCodeValidationFailed,
			fmt.Sprintf("validation query for step %s could not run", step.ID), err.Error())
	} else if !qr.Success {
		result.AddError(ErrCodeValidationFailed,
			fmt.Sprintf("validation query for step %s failed", step.ID), qr.Err)
	} else {
		result.RecordsProcessed += int64(len(qr.Data))
		return false
	}

	return policy != PolicyContinue
}

// runValidationQueries runs the set-level post-apply checks. Failures are
// recorded; they never trigger an automatic rollback.
func (r *Runner) runValidationQueries(ctx context.Context, queries []string, result *ExecutionResult) {
	for _, query := range queries {
		qr, err := r.executor.Query(ctx, query)
		switch {
		case err != nil:
			result.AddError(ErrCodeValidationFailed, "post-apply validation query could not run", err.Error())
		case !qr.Success:
			result.AddError(ErrCodeValidationFailed, "post-apply validation query failed", qr.Err)
		default:
			result.RecordsProcessed += int64(len(qr.Data))
		}
	}
}
