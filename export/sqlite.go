package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/logger"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteExporter writes each record as a JSON document row:
//
//	CREATE TABLE <table> (id INTEGER PRIMARY KEY, run_id TEXT, data TEXT)
//
// Rows are inserted in dataset order inside one transaction.
type SQLiteExporter struct {
	DSN        string
	Table      string
	RunID      string
	KeepStats  bool
	KeepHashes bool
	Log        *logger.Logger
}

// Export implements Exporter. It returns "sqlite://<dsn>#<table>".
func (e *SQLiteExporter) Export(ctx context.Context, ds *dataset.Dataset) (string, error) {
	if strings.TrimSpace(e.DSN) == "" {
		return "", fmt.Errorf("sqlite: DSN must not be empty")
	}
	table := e.Table
	if table == "" {
		table = "records"
	}
	if !tableName.MatchString(table) {
		return "", fmt.Errorf("sqlite: invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", e.DSN)
	if err != nil {
		return "", fmt.Errorf("sqlite: open: %w", err)
	}
	defer db.Close()

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, run_id TEXT NOT NULL, data TEXT NOT NULL)", table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("sqlite: create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (run_id, data) VALUES (?, ?)", table))
	if err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range Strip(ds, e.KeepStats, e.KeepHashes).Records() {
		b, err := json.Marshal(r)
		if err != nil {
			_ = tx.Rollback()
			return "", fmt.Errorf("sqlite: record %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, e.RunID, string(b)); err != nil {
			_ = tx.Rollback()
			return "", fmt.Errorf("sqlite: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("sqlite: commit: %w", err)
	}
	if e.Log != nil {
		e.Log.Info("dataset exported", logger.Fields("table", table, logger.FieldRecordsOut, ds.Len()))
	}
	return fmt.Sprintf("sqlite://%s#%s", e.DSN, table), nil
}
