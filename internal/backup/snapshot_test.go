package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-migrate/internal/executor"
)

// queryExecutor returns canned results keyed by query text
type queryExecutor struct {
	results map[string]*executor.QueryResult
	errs    map[string]error
	execed  []string
}

func newQueryExecutor() *queryExecutor {
	return &queryExecutor{
		results: make(map[string]*executor.QueryResult),
		errs:    make(map[string]error),
	}
}

func (q *queryExecutor) Execute(_ context.Context, script string, _ time.Duration) (*executor.ExecOutcome, error) {
	q.execed = append(q.execed, script)
	if err, ok := q.errs[script]; ok {
		return nil, err
	}
	return &executor.ExecOutcome{RowsAffected: 1}, nil
}

func (q *queryExecutor) Query(_ context.Context, query string) (*executor.QueryResult, error) {
	if err, ok := q.errs[query]; ok {
		return nil, err
	}
	if qr, ok := q.results[query]; ok {
		return qr, nil
	}
	return &executor.QueryResult{Success: true}, nil
}

func rowsOf(column string, values ...interface{}) *executor.QueryResult {
	qr := &executor.QueryResult{Success: true, Columns: []string{column}}
	for _, value := range values {
		qr.Data = append(qr.Data, map[string]interface{}{column: value})
	}
	return qr
}

func TestSQLSnapshotter_Snapshot(t *testing.T) {
	exec := newQueryExecutor()
	exec.results["DUMP-SCHEMA"] = rowsOf("ddl", "CREATE TABLE widgets (id INT)")
	exec.results["DUMP-DATA"] = rowsOf("id", int64(1), int64(2))
	exec.results["STMT-QUERY"] = rowsOf("statement", "CREATE TABLE widgets (id INT)", "INSERT INTO widgets VALUES (1)")

	snapshotter := NewSQLSnapshotter(exec, []DumpQuery{
		{Name: "schema", Query: "DUMP-SCHEMA", SchemaOnly: true},
		{Name: "data", Query: "DUMP-DATA"},
	}, "STMT-QUERY")

	artifact, err := snapshotter.Snapshot(context.Background(), BackupTypeFull)
	require.NoError(t, err)

	var doc struct {
		BackupType BackupType `json:"backup_type"`
		Captures   []struct {
			Name string                   `json:"name"`
			Rows []map[string]interface{} `json:"rows"`
		} `json:"captures"`
		Statements []string `json:"statements"`
	}
	require.NoError(t, json.Unmarshal(artifact, &doc))

	assert.Equal(t, BackupTypeFull, doc.BackupType)
	require.Len(t, doc.Captures, 2)
	assert.Equal(t, "schema", doc.Captures[0].Name)
	assert.Len(t, doc.Captures[1].Rows, 2)
	assert.Equal(t, []string{"CREATE TABLE widgets (id INT)", "INSERT INTO widgets VALUES (1)"}, doc.Statements)
}

func TestSQLSnapshotter_SnapshotStatementColumnOrder(t *testing.T) {
	// Multi-column statement rows must always yield the first column, never
	// whichever key a map walk happens to hit
	exec := newQueryExecutor()
	exec.results["STMT-QUERY"] = &executor.QueryResult{
		Success: true,
		Columns: []string{"statement", "note"},
		Data: []map[string]interface{}{
			{"statement": "CREATE TABLE widgets (id INT)", "note": "ignore me"},
			{"statement": "INSERT INTO widgets VALUES (1)", "note": "ignore me too"},
		},
	}

	snapshotter := NewSQLSnapshotter(exec, nil, "STMT-QUERY")

	for i := 0; i < 10; i++ {
		artifact, err := snapshotter.Snapshot(context.Background(), BackupTypeFull)
		require.NoError(t, err)

		var doc struct {
			Statements []string `json:"statements"`
		}
		require.NoError(t, json.Unmarshal(artifact, &doc))
		assert.Equal(t, []string{"CREATE TABLE widgets (id INT)", "INSERT INTO widgets VALUES (1)"}, doc.Statements)
	}
}

func TestSQLSnapshotter_SnapshotStatementRowsWithoutColumns(t *testing.T) {
	exec := newQueryExecutor()
	exec.results["STMT-QUERY"] = &executor.QueryResult{
		Success: true,
		Data:    []map[string]interface{}{{"statement": "CREATE TABLE widgets (id INT)"}},
	}

	snapshotter := NewSQLSnapshotter(exec, nil, "STMT-QUERY")
	_, err := snapshotter.Snapshot(context.Background(), BackupTypeFull)
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeSnapshot))
}

func TestSQLSnapshotter_SnapshotTypeFilters(t *testing.T) {
	exec := newQueryExecutor()
	exec.results["DUMP-SCHEMA"] = rowsOf("ddl", "CREATE TABLE widgets (id INT)")
	exec.results["DUMP-DATA"] = rowsOf("id", int64(1))

	snapshotter := NewSQLSnapshotter(exec, []DumpQuery{
		{Name: "schema", Query: "DUMP-SCHEMA", SchemaOnly: true},
		{Name: "data", Query: "DUMP-DATA"},
	}, "")

	captureNames := func(artifact []byte) []string {
		var doc struct {
			Captures []struct {
				Name string `json:"name"`
			} `json:"captures"`
		}
		require.NoError(t, json.Unmarshal(artifact, &doc))
		var names []string
		for _, capture := range doc.Captures {
			names = append(names, capture.Name)
		}
		return names
	}

	schemaOnly, err := snapshotter.Snapshot(context.Background(), BackupTypeSchemaOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"schema"}, captureNames(schemaOnly))

	dataOnly, err := snapshotter.Snapshot(context.Background(), BackupTypeDataOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"data"}, captureNames(dataOnly))

	full, err := snapshotter.Snapshot(context.Background(), BackupTypeFull)
	require.NoError(t, err)
	assert.Equal(t, []string{"schema", "data"}, captureNames(full))
}

func TestSQLSnapshotter_SnapshotErrors(t *testing.T) {
	exec := newQueryExecutor()
	exec.errs["BROKEN"] = fmt.Errorf("connection lost")

	snapshotter := NewSQLSnapshotter(exec, []DumpQuery{{Name: "broken", Query: "BROKEN"}}, "")
	_, err := snapshotter.Snapshot(context.Background(), BackupTypeFull)
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeSnapshot))

	exec2 := newQueryExecutor()
	exec2.results["FAILING"] = &executor.QueryResult{Success: false, Err: "no such table"}
	snapshotter2 := NewSQLSnapshotter(exec2, []DumpQuery{{Name: "failing", Query: "FAILING"}}, "")
	_, err = snapshotter2.Snapshot(context.Background(), BackupTypeFull)
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeSnapshot))
}

func TestSQLSnapshotter_RestoreStatements(t *testing.T) {
	snapshotter := NewSQLSnapshotter(newQueryExecutor(), nil, "")

	artifact := []byte(`{"statements":["CREATE TABLE a (id INT)","INSERT INTO a VALUES (1)"]}`)
	statements, err := snapshotter.RestoreStatements(artifact)
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "INSERT INTO a VALUES (1)"}, statements)

	_, err = snapshotter.RestoreStatements([]byte("{garbage"))
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeRestore))
}
