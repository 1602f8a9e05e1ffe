package backup

import (
	"context"
	"encoding/json"
	"time"

	"mysql-migrate/internal/executor"
)

// Snapshotter captures the target store's state as an opaque artifact and
// turns a captured artifact back into executable restore statements.
type Snapshotter interface {
	// Snapshot captures the state selected by the backup type
	Snapshot(ctx context.Context, backupType BackupType) ([]byte, error)
	// RestoreStatements extracts the ordered statements that rebuild the
	// captured state
	RestoreStatements(artifact []byte) ([]string, error)
}

// DumpQuery is one named query whose rows are captured into a snapshot
type DumpQuery struct {
	Name  string `yaml:"name" json:"name"`
	Query string `yaml:"query" json:"query"`
	// SchemaOnly marks queries that capture structure rather than rows, so
	// schema-only and data-only backups can filter on it
	SchemaOnly bool `yaml:"schema_only" json:"schema_only"`
}

// snapshotDocument is the serialized artifact format
type snapshotDocument struct {
	CreatedAt  time.Time         `json:"created_at"`
	BackupType BackupType        `json:"backup_type"`
	Captures   []snapshotCapture `json:"captures"`
	// Statements rebuild the captured state when executed in order. They come
	// from the statement query: each row's first column is one statement.
	Statements []string `json:"statements"`
}

type snapshotCapture struct {
	Name string                   `json:"name"`
	Rows []map[string]interface{} `json:"rows"`
}

// SQLSnapshotter captures state by running configured dump queries through
// the statement executor. The statement query must yield rows whose first
// column is an executable statement, in execution order.
type SQLSnapshotter struct {
	executor       executor.StatementExecutor
	dumpQueries    []DumpQuery
	statementQuery string
}

// NewSQLSnapshotter creates a snapshotter over the given executor
func NewSQLSnapshotter(exec executor.StatementExecutor, dumpQueries []DumpQuery, statementQuery string) *SQLSnapshotter {
	return &SQLSnapshotter{
		executor:       exec,
		dumpQueries:    dumpQueries,
		statementQuery: statementQuery,
	}
}

// Snapshot captures the state selected by the backup type
func (s *SQLSnapshotter) Snapshot(ctx context.Context, backupType BackupType) ([]byte, error) {
	doc := snapshotDocument{
		CreatedAt:  time.Now().UTC(),
		BackupType: backupType,
	}

	for _, dump := range s.dumpQueries {
		if !includeDump(backupType, dump) {
			continue
		}

		qr, err := s.executor.Query(ctx, dump.Query)
		if err != nil {
			return nil, NewSnapshotError("dump query could not run: "+dump.Name, err)
		}
		if !qr.Success {
			return nil, NewSnapshotError("dump query failed: "+dump.Name+": "+qr.Err, nil)
		}

		doc.Captures = append(doc.Captures, snapshotCapture{
			Name: dump.Name,
			Rows: qr.Data,
		})
	}

	if s.statementQuery != "" {
		qr, err := s.executor.Query(ctx, s.statementQuery)
		if err != nil {
			return nil, NewSnapshotError("statement query could not run", err)
		}
		if !qr.Success {
			return nil, NewSnapshotError("statement query failed: "+qr.Err, nil)
		}
		if len(qr.Data) > 0 && len(qr.Columns) == 0 {
			return nil, NewSnapshotError("statement query result carries no column order", nil)
		}
		for _, row := range qr.Data {
			if statement, ok := row[qr.Columns[0]].(string); ok && statement != "" {
				doc.Statements = append(doc.Statements, statement)
			}
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, NewSnapshotError("failed to serialize snapshot", err)
	}

	return data, nil
}

// RestoreStatements extracts the ordered restore statements from an artifact
func (s *SQLSnapshotter) RestoreStatements(artifact []byte) ([]string, error) {
	var doc snapshotDocument
	if err := json.Unmarshal(artifact, &doc); err != nil {
		return nil, NewRestoreError("failed to parse snapshot artifact", err)
	}
	return doc.Statements, nil
}

// includeDump applies the backup type's capture filter
func includeDump(backupType BackupType, dump DumpQuery) bool {
	switch backupType {
	case BackupTypeSchemaOnly:
		return dump.SchemaOnly
	case BackupTypeDataOnly:
		return !dump.SchemaOnly
	default:
		return true
	}
}
