package migration

import (
	"context"
	"fmt"
	"time"

	"mysql-migrate/internal/errors"
	"mysql-migrate/internal/executor"
	"mysql-migrate/internal/logging"
)

// DefaultRollbackTimeout bounds the whole-set rollback script. Rollbacks may
// undo many steps in one script, so the bound is wider than a step timeout.
const DefaultRollbackTimeout = 5 * time.Minute

// RollbackCoordinator reverses a previously applied migration set using its
// declared whole-set rollback script. Rollback attempts are first-class
// history entries; they never delete or rewrite prior entries.
type RollbackCoordinator struct {
	registry *Registry
	ledger   Ledger
	executor executor.StatementExecutor
	backups  BackupPoint
	logger   *logging.Logger
	timeout  time.Duration
}

// NewRollbackCoordinator constructs a coordinator with explicit collaborators
func NewRollbackCoordinator(registry *Registry, ledger Ledger, exec executor.StatementExecutor, backups BackupPoint, logger *logging.Logger) *RollbackCoordinator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &RollbackCoordinator{
		registry: registry,
		ledger:   ledger,
		executor: exec,
		backups:  backups,
		logger:   logger,
		timeout:  DefaultRollbackTimeout,
	}
}

// SetTimeout overrides the rollback script timeout
func (rc *RollbackCoordinator) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		rc.timeout = timeout
	}
}

// Rollback reverses version using its declared rollback script. A pre-rollback
// backup is always taken regardless of the set's own backup flag; rollback is
// inherently higher-risk and always protected. Validation failures after the
// revert are recorded as errors but never trigger another rollback.
func (rc *RollbackCoordinator) Rollback(ctx context.Context, version, reason string) (*ExecutionResult, error) {
	set, err := rc.registry.Get(version)
	if err != nil {
		return nil, err
	}

	if set.RollbackScript == "" {
		return nil, errors.NewAppError(errors.ErrorTypeRollbackNotAvailable,
			fmt.Sprintf("migration %s declares no rollback script", version), nil).
			WithContext("version", version)
	}

	result := NewExecutionResult(RollbackID(version))
	if reason != "" {
		result.AddWarning("rollback reason: " + reason)
	}

	// Fail closed: no rollback proceeds without its protective backup
	if rc.backups == nil {
		result.AddError(ErrCodeBackupFailed, "no backup manager configured for pre-rollback backup", "")
	} else {
		backupID, backupErr := rc.backups.CreateBackup(ctx, version, "pre-rollback")
		if backupErr != nil {
			result.AddError(ErrCodeBackupFailed,
				fmt.Sprintf("pre-rollback backup failed for %s", version), backupErr.Error())
		} else {
			result.RollbackPoint = backupID
		}
	}

	if len(result.Errors) == 0 {
		outcome, execErr := rc.executor.Execute(ctx, set.RollbackScript, rc.timeout)
		if execErr != nil {
			result.AddError(ErrCodeRollbackFailed,
				fmt.Sprintf("rollback script for %s failed", version), execErr.Error())
		} else {
			result.RecordsProcessed += outcome.RowsAffected
			result.RecordsAffected += outcome.RowsAffected

			// Confirm the reverted state still satisfies the set's checks
			for _, query := range set.ValidationQueries {
				qr, qErr := rc.executor.Query(ctx, query)
				switch {
				case qErr != nil:
					result.AddError(ErrCodeValidationFailed, "post-rollback validation query could not run", qErr.Error())
				case !qr.Success:
					result.AddError(ErrCodeValidationFailed, "post-rollback validation query failed", qr.Err)
				default:
					result.RecordsProcessed += int64(len(qr.Data))
				}
			}
		}
	}

	result.Finalize()

	var firstErr error
	if len(result.Errors) > 0 {
		firstErr = fmt.Errorf("%s: %s", result.Errors[0].Code, result.Errors[0].Message)
	}
	rc.logger.LogRollback(version, reason, result.Duration, result.Success, firstErr)

	// Failed rollbacks are recorded too; the audit trail is never dropped
	if err := rc.ledger.AppendResult(*result); err != nil {
		return result, errors.WrapError(err, fmt.Sprintf("failed to record rollback of %s", version))
	}

	return result, nil
}
