package store

import (
	"context"
	"fmt"
	"strings"

	"klinevault/internal/domain"
)

// Format is an output file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatSQLite  Format = "sqlite"
)

// ParseFormat returns the Format named by s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatParquet, FormatSQLite:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Ext returns the file extension, including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatParquet:
		return ".parquet"
	case FormatSQLite:
		return ".db"
	default:
		return ".csv"
	}
}

// DatasetWriter writes a table to a single file, replacing any existing one.
type DatasetWriter interface {
	Write(ctx context.Context, path string, t *domain.Table) error
}

// NewWriter returns the writer for f.
func NewWriter(f Format) (DatasetWriter, error) {
	switch f {
	case FormatCSV:
		return CSVWriter{}, nil
	case FormatParquet:
		return ParquetWriter{}, nil
	case FormatSQLite:
		return SQLiteWriter{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", f)
}

// FileName builds the output file name from the selection parameters:
//
//	<SYMBOL>_<interval>_<span>[_<secondary>...]<ext>
func FileName(symbol string, iv domain.Interval, span string, joined []domain.StreamKind, f Format) string {
	parts := []string{strings.ToUpper(symbol), string(iv), span}
	for _, k := range joined {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, "_") + f.Ext()
}
