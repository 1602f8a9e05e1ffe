// Package executor defines the statement execution boundary between the
// migration framework and the target store. The framework never parses or
// interprets scripts; it only observes success, failure, timing, and affected
// row counts through this interface.
package executor

import (
	"context"
	"database/sql"
	"time"

	"mysql-migrate/internal/errors"
	"mysql-migrate/internal/logging"
)

// ExecOutcome describes one completed statement execution
type ExecOutcome struct {
	RowsAffected int64         `json:"rows_affected"`
	Duration     time.Duration `json:"duration"`
}

// QueryResult holds the outcome of a validation query. Columns preserves the
// result set's column order, which the row maps cannot.
type QueryResult struct {
	Success bool                     `json:"success"`
	Columns []string                 `json:"columns,omitempty"`
	Data    []map[string]interface{} `json:"data,omitempty"`
	Err     string                   `json:"error,omitempty"`
}

// StatementExecutor executes opaque change scripts and validation queries
// against the target store. Implementations must honor the supplied timeout
// by canceling the in-flight call at the boundary.
type StatementExecutor interface {
	Execute(ctx context.Context, script string, timeout time.Duration) (*ExecOutcome, error)
	Query(ctx context.Context, query string) (*QueryResult, error)
}

// SQLExecutor implements StatementExecutor on top of database/sql with the
// MySQL driver.
type SQLExecutor struct {
	db           *sql.DB
	logger       *logging.Logger
	queryTimeout time.Duration
}

// NewSQLExecutor creates a SQL-backed statement executor
func NewSQLExecutor(db *sql.DB, logger *logging.Logger) *SQLExecutor {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SQLExecutor{
		db:           db,
		logger:       logger,
		queryTimeout: 30 * time.Second,
	}
}

// SetQueryTimeout overrides the timeout applied to validation queries
func (se *SQLExecutor) SetQueryTimeout(timeout time.Duration) {
	if timeout > 0 {
		se.queryTimeout = timeout
	}
}

// Execute runs a change script with the given timeout. Exceeding the timeout
// cancels the in-flight call and surfaces a timeout error rather than a hang.
func (se *SQLExecutor) Execute(ctx context.Context, script string, timeout time.Duration) (*ExecOutcome, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := se.db.ExecContext(ctx, script)
	duration := time.Since(start)

	se.logger.LogStatementExecution(script, duration, err)

	if err != nil {
		classifier := errors.NewErrorClassifier()
		return nil, classifier.ClassifyError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		// Some statements (DDL on certain engines) report no affected count
		affected = 0
	}

	return &ExecOutcome{
		RowsAffected: affected,
		Duration:     duration,
	}, nil
}

// Query runs a validation query and materializes its rows. Query errors are
// reported inside the result rather than as a Go error so that validation
// callers always receive a result-shaped value; the error return is reserved
// for context cancellation.
func (se *SQLExecutor) Query(ctx context.Context, query string) (*QueryResult, error) {
	queryCtx, cancel := context.WithTimeout(ctx, se.queryTimeout)
	defer cancel()

	rows, err := se.db.QueryContext(queryCtx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewAppError(errors.ErrorTypeInterruption, "query canceled", ctx.Err())
		}
		return &QueryResult{Success: false, Err: err.Error()}, nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return &QueryResult{Success: false, Err: err.Error()}, nil
	}

	var data []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return &QueryResult{Success: false, Err: err.Error()}, nil
		}

		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
			} else {
				row[column] = values[i]
			}
		}
		data = append(data, row)
	}

	if err := rows.Err(); err != nil {
		return &QueryResult{Success: false, Err: err.Error()}, nil
	}

	return &QueryResult{Success: true, Columns: columns, Data: data}, nil
}
