package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockExecutor(t *testing.T) (*SQLExecutor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLExecutor(db, nil), mock
}

func TestSQLExecutor_Execute(t *testing.T) {
	exec, mock := newMockExecutor(t)

	mock.ExpectExec("ALTER TABLE users ADD COLUMN age INT").
		WillReturnResult(sqlmock.NewResult(0, 3))

	outcome, err := exec.Execute(context.Background(), "ALTER TABLE users ADD COLUMN age INT", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, int64(3), outcome.RowsAffected)
	assert.GreaterOrEqual(t, outcome.Duration, time.Duration(0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLExecutor_Execute_Error(t *testing.T) {
	exec, mock := newMockExecutor(t)

	mock.ExpectExec("DROP TABLE missing").
		WillReturnError(fmt.Errorf("table does not exist"))

	_, err := exec.Execute(context.Background(), "DROP TABLE missing", time.Minute)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLExecutor_Execute_NoAffectedCount(t *testing.T) {
	exec, mock := newMockExecutor(t)

	// DDL on some engines reports no affected row count
	mock.ExpectExec("CREATE TABLE widgets").
		WillReturnResult(sqlmock.NewErrorResult(fmt.Errorf("no affected rows")))

	outcome, err := exec.Execute(context.Background(), "CREATE TABLE widgets (id INT)", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, outcome.RowsAffected)
}

func TestSQLExecutor_Query(t *testing.T) {
	exec, mock := newMockExecutor(t)

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "alpha").
		AddRow(int64(2), "beta")
	mock.ExpectQuery("SELECT id, name FROM widgets").WillReturnRows(rows)

	qr, err := exec.Query(context.Background(), "SELECT id, name FROM widgets")
	require.NoError(t, err)

	assert.True(t, qr.Success)
	assert.Equal(t, []string{"id", "name"}, qr.Columns)
	require.Len(t, qr.Data, 2)
	assert.Equal(t, int64(1), qr.Data[0]["id"])
	assert.Equal(t, "alpha", qr.Data[0]["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLExecutor_Query_ByteColumnsBecomeStrings(t *testing.T) {
	exec, mock := newMockExecutor(t)

	rows := sqlmock.NewRows([]string{"name"}).AddRow([]byte("raw bytes"))
	mock.ExpectQuery("SELECT name FROM widgets").WillReturnRows(rows)

	qr, err := exec.Query(context.Background(), "SELECT name FROM widgets")
	require.NoError(t, err)
	assert.Equal(t, "raw bytes", qr.Data[0]["name"])
}

func TestSQLExecutor_Query_ErrorInsideResult(t *testing.T) {
	exec, mock := newMockExecutor(t)

	mock.ExpectQuery("SELECT broken").WillReturnError(fmt.Errorf("syntax error"))

	qr, err := exec.Query(context.Background(), "SELECT broken")
	require.NoError(t, err, "query failures surface inside the result, not as a Go error")

	assert.False(t, qr.Success)
	assert.Contains(t, qr.Err, "syntax error")
}

func TestSQLExecutor_Query_CanceledContext(t *testing.T) {
	exec, mock := newMockExecutor(t)

	mock.ExpectQuery("SELECT 1").WillReturnError(context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Query(ctx, "SELECT 1")
	assert.Error(t, err, "cancellation is a real error, not a query failure")
}
