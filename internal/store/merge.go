// Package store merges parsed archive tables into one validated dataset and
// writes it to a single output file (CSV, Parquet or SQLite).
package store

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"klinevault/internal/domain"
)

// ErrInconsistent is returned when a merged dataset still has duplicate rows
// or a non-increasing time key after sorting. It is the only fatal data
// error: the source published data the pipeline cannot reconcile.
var ErrInconsistent = errors.New("inconsistent dataset")

// Report summarises one merged stream.
type Report struct {
	Kind       domain.StreamKind
	Tables     int
	Rows       int
	Duplicates int  // rows identical to an earlier row
	Unique     bool // time key has no repeats
	Sorted     bool // time key strictly increasing
	Resorted   bool // a sort was applied
}

// OK reports whether the stream satisfies the output contract.
func (r Report) OK() bool {
	return r.Unique && r.Sorted && r.Duplicates == 0
}

// Concat appends the rows of tables in the given order. Columns come from
// the first table, or from kind's canonical schema when there is none.
func Concat(kind domain.StreamKind, tables []*domain.Table) *domain.Table {
	out := &domain.Table{Kind: kind, Columns: domain.SchemaFor(kind).Names()}
	n := 0
	for _, t := range tables {
		n += t.Len()
	}
	out.Rows = make([]domain.Row, 0, n)
	for i, t := range tables {
		if i == 0 && len(t.Columns) > 0 {
			out.Columns = t.Columns
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out
}

// Inspect computes duplicate, uniqueness and ordering facts for t without
// modifying it.
func Inspect(t *domain.Table) Report {
	rep := Report{Kind: t.Kind, Rows: t.Len(), Unique: true, Sorted: true}

	seenRows := make(map[string]struct{}, len(t.Rows))
	seenKeys := make(map[int64]struct{}, len(t.Rows))
	for i, r := range t.Rows {
		k := rowKey(r)
		if _, ok := seenRows[k]; ok {
			rep.Duplicates++
		} else {
			seenRows[k] = struct{}{}
		}
		if _, ok := seenKeys[r.Time]; ok {
			rep.Unique = false
		} else {
			seenKeys[r.Time] = struct{}{}
		}
		if i > 0 && t.Rows[i-1].Time >= r.Time {
			rep.Sorted = false
		}
	}
	return rep
}

func rowKey(r domain.Row) string {
	return strconv.FormatInt(r.Time, 10) + "\x1f" + strings.Join(r.Values, "\x1f")
}

// Merge concatenates tables, sorts by time key only if it is not already
// strictly increasing, and validates the result. An error wrapping
// ErrInconsistent is returned with the merged table when duplicates or
// repeated time keys survive the sort.
func Merge(kind domain.StreamKind, tables []*domain.Table) (*domain.Table, Report, error) {
	t := Concat(kind, tables)
	rep := Inspect(t)
	rep.Tables = len(tables)

	if !rep.Sorted {
		sort.SliceStable(t.Rows, func(i, j int) bool { return t.Rows[i].Time < t.Rows[j].Time })
		rep.Resorted = true
		after := Inspect(t)
		rep.Sorted, rep.Unique = after.Sorted, after.Unique
	}

	if !rep.OK() {
		return t, rep, fmt.Errorf("%w: %s has %d duplicate rows (unique=%t, sorted=%t)",
			ErrInconsistent, kind, rep.Duplicates, rep.Unique, rep.Sorted)
	}
	return t, rep, nil
}
