package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"klinevault/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ DatasetWriter = SQLiteWriter{}

// SQLiteWriter writes a table into a fresh SQLite database file. The time
// key becomes the INTEGER PRIMARY KEY, so the database itself enforces the
// uniqueness contract; other columns are TEXT, with empty join cells stored
// as NULL.
type SQLiteWriter struct{}

// Write writes t to a new database at path, replacing any existing file.
func (SQLiteWriter) Write(ctx context.Context, path string, t *domain.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := writeSQLite(ctx, db, t); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeSQLite(ctx context.Context, db *sql.DB, t *domain.Table) error {
	name := SQLiteTableName(t.Kind)

	defs := make([]string, len(t.Columns))
	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c)
		marks[i] = "?"
		if i == 0 {
			defs[i] = cols[i] + " INTEGER PRIMARY KEY"
		} else {
			defs[i] = cols[i] + " TEXT"
		}
	}

	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(cols, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for _, r := range t.Rows {
		args[0] = r.Time
		for j, v := range r.Values {
			if v == "" {
				args[j+1] = nil
			} else {
				args[j+1] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting time %d: %w", r.Time, err)
		}
	}
	return tx.Commit()
}

// SQLiteTableName is the table a stream's dataset is written to.
func SQLiteTableName(kind domain.StreamKind) string {
	return string(kind)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
