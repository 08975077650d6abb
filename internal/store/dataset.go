package store

import (
	"fmt"
	"log/slog"

	"klinevault/internal/domain"
)

// Dataset is the merged, validated output of one run.
type Dataset struct {
	Table   *domain.Table
	Reports []Report
	// Joined lists the secondary streams merged into Table, in join order.
	Joined  []domain.StreamKind
	Matched map[domain.StreamKind]int
}

// Assemble merges the kline tables, merges each secondary stream, and left
// joins the secondaries onto klines by time key. Any stream failing
// validation aborts with an error wrapping ErrInconsistent.
func Assemble(tables map[domain.StreamKind][]*domain.Table, secondaries []domain.StreamKind, log *slog.Logger) (*Dataset, error) {
	if log == nil {
		log = slog.Default()
	}

	primary, rep, err := Merge(domain.StreamKlines, tables[domain.StreamKlines])
	logReport(log, rep)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Table:   primary,
		Reports: []Report{rep},
		Matched: make(map[domain.StreamKind]int),
	}

	for _, kind := range secondaries {
		sec, srep, err := Merge(kind, tables[kind])
		logReport(log, srep)
		ds.Reports = append(ds.Reports, srep)
		if err != nil {
			return nil, err
		}
		if sec.Len() == 0 {
			log.Warn("secondary stream has no rows, joined columns will be empty", "stream", kind)
		}

		joined, matched, err := LeftJoin(ds.Table, sec, JoinSpecFor(kind))
		if err != nil {
			return nil, fmt.Errorf("joining %s: %w", kind, err)
		}
		ds.Table = joined
		ds.Joined = append(ds.Joined, kind)
		ds.Matched[kind] = matched
		log.Info("joined stream", "stream", kind, "rows", joined.Len(), "matched", matched)
	}

	if len(ds.Joined) > 0 {
		final := Inspect(ds.Table)
		if !final.OK() {
			return nil, fmt.Errorf("%w: joined dataset (duplicates=%d, unique=%t, sorted=%t)",
				ErrInconsistent, final.Duplicates, final.Unique, final.Sorted)
		}
	}
	return ds, nil
}

func logReport(log *slog.Logger, r Report) {
	log.Info("merged stream",
		"stream", r.Kind,
		"tables", r.Tables,
		"rows", r.Rows,
		"duplicates", r.Duplicates,
		"unique", r.Unique,
		"sorted", r.Sorted,
		"resorted", r.Resorted,
	)
}
