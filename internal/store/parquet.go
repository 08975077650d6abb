package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"klinevault/internal/domain"
)

// Compile-time interface check.
var _ DatasetWriter = ParquetWriter{}

const parquetBatchSize = 4096

// ParquetWriter writes a table as a flat Parquet file: the time key as
// INT64, every other column as a UTF-8 string holding the source text, so
// numeric precision is preserved exactly.
type ParquetWriter struct{}

// Write writes t to path as Parquet.
func (ParquetWriter) Write(ctx context.Context, path string, t *domain.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	schema, pos := tableSchema(t)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := parquet.NewWriter(f, schema)

	err = writeParquetRows(ctx, w, t, pos)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// tableSchema builds a Parquet schema for t and maps each table column to
// its leaf column index. Parquet groups order fields by name, so the
// indexes differ from table order.
func tableSchema(t *domain.Table) (*parquet.Schema, []int) {
	group := parquet.Group{}
	for i, c := range t.Columns {
		if i == 0 {
			group[c] = parquet.Int(64)
		} else {
			group[c] = parquet.String()
		}
	}
	schema := parquet.NewSchema(string(t.Kind), group)

	byName := make(map[string]int, len(t.Columns))
	for i, f := range schema.Fields() {
		byName[f.Name()] = i
	}
	pos := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		pos[i] = byName[c]
	}
	return schema, pos
}

func writeParquetRows(ctx context.Context, w *parquet.Writer, t *domain.Table, pos []int) error {
	batch := make([]parquet.Row, 0, parquetBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.WriteRows(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return ctx.Err()
	}

	for _, r := range t.Rows {
		row := make(parquet.Row, len(pos))
		row[pos[0]] = parquet.Int64Value(r.Time).Level(0, 0, pos[0])
		for j, v := range r.Values {
			c := pos[j+1]
			row[c] = parquet.ByteArrayValue([]byte(v)).Level(0, 0, c)
		}
		batch = append(batch, row)
		if len(batch) == parquetBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// ReadParquetFile reads every row of a Parquet file into T, whose fields
// are matched to columns by their parquet tags.
func ReadParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
