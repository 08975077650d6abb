package store

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"klinevault/internal/domain"
)

// Compile-time interface check.
var _ DatasetWriter = CSVWriter{}

// CSVWriter writes a header row followed by one record per row.
type CSVWriter struct{}

// Write writes t to path as CSV.
func (CSVWriter) Write(ctx context.Context, path string, t *domain.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	cw := csv.NewWriter(bw)
	err = writeCSV(ctx, cw, t)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeCSV(ctx context.Context, cw *csv.Writer, t *domain.Table) error {
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for i := range t.Rows {
		if i%10000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := cw.Write(t.Record(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a file written by CSVWriter back into a table.
func ReadCSV(path string, kind domain.StreamKind) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cr.FieldsPerRecord = len(header)

	t := &domain.Table{Kind: kind, Columns: header, Source: filepath.Base(path)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("time key %q: %w", rec[0], err)
		}
		t.Rows = append(t.Rows, domain.Row{Time: ts, Values: rec[1:]})
	}
	return t, nil
}
