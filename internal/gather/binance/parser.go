package binance

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"klinevault/internal/domain"
	"klinevault/internal/gather"
)

// MaxParseRetries is how many times the parser re-checks a missing or empty
// file before giving up.
const MaxParseRetries = 1

const metricsTimeLayout = "2006-01-02 15:04:05"

// Parser reads extracted CSV files into tables carrying a canonical schema.
type Parser struct {
	retryDelay time.Duration
	log        *slog.Logger
}

// NewParser creates a Parser that waits retryDelay before re-checking a
// missing or empty file.
func NewParser(retryDelay time.Duration) *Parser {
	return &Parser{
		retryDelay: retryDelay,
		log:        slog.Default().With("component", "parser"),
	}
}

// Parse reads entry and renames its columns to schema. Source column order
// is assumed to match the schema; only arity and value types are checked. A
// header row, when present, is detected by a non-numeric time field and
// dropped.
func (p *Parser) Parse(ctx context.Context, entry domain.ExtractedEntry, schema domain.Schema) (*domain.Table, error) {
	if err := p.waitForContent(ctx, entry.Path); err != nil {
		return nil, err
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", entry.Name, err)
	}
	defer f.Close()

	table, err := ReadTable(f, entry.Kind, schema)
	if err != nil {
		return nil, fmt.Errorf("parsing %s from %s: %w", entry.Name, entry.Archive, err)
	}
	table.Source = entry.Archive
	return table, nil
}

// waitForContent allows the file to appear (or fill) at most
// MaxParseRetries times, sleeping retryDelay in between.
func (p *Parser) waitForContent(ctx context.Context, path string) error {
	for attempt := 0; ; attempt++ {
		if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
			return nil
		}
		if attempt >= MaxParseRetries {
			return fmt.Errorf("%w: %s", gather.ErrEmptyFile, path)
		}
		p.log.Warn("file missing or empty, retrying", "path", path, "delay", p.retryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retryDelay):
		}
	}
}

// ReadTable parses CSV content from r against schema.
func ReadTable(r io.Reader, kind domain.StreamKind, schema domain.Schema) (*domain.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	table := &domain.Table{Kind: kind, Columns: schema.Names()}
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) != len(schema) {
			return nil, fmt.Errorf("line %d: %d fields, want %d", line, len(rec), len(schema))
		}

		ts, err := parseTimeKey(schema[0].Kind, rec[0])
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d column %s: %w", line, schema[0].Name, err)
		}

		values := make([]string, len(rec)-1)
		for i := 1; i < len(rec); i++ {
			v := strings.TrimSpace(rec[i])
			if err := checkValue(schema[i].Kind, v); err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, schema[i].Name, err)
			}
			values[i-1] = v
		}
		table.Rows = append(table.Rows, domain.Row{Time: ts, Values: values})
	}
	return table, nil
}

func parseTimeKey(kind domain.ColumnKind, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if kind == domain.ColumnDateTime {
		t, err := time.ParseInLocation(metricsTimeLayout, s, time.UTC)
		if err != nil {
			return 0, err
		}
		return t.UnixMilli(), nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func checkValue(kind domain.ColumnKind, s string) error {
	switch kind {
	case domain.ColumnInt, domain.ColumnTime:
		_, err := strconv.ParseInt(s, 10, 64)
		return err
	case domain.ColumnDecimal:
		if s == "" {
			return nil
		}
		_, err := decimal.NewFromString(s)
		return err
	}
	return nil
}
