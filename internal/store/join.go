package store

import (
	"fmt"

	"klinevault/internal/domain"
)

// JoinSpec names the columns a secondary stream contributes to a join.
type JoinSpec struct {
	Columns []string
	Prefix  string
}

// JoinSpecFor returns the designated value columns of a secondary stream.
func JoinSpecFor(kind domain.StreamKind) JoinSpec {
	switch kind {
	case domain.StreamPremiumIndex:
		return JoinSpec{Columns: []string{"open", "high", "low", "close"}, Prefix: "pi_"}
	case domain.StreamMetrics:
		return JoinSpec{Columns: []string{
			"sum_open_interest",
			"sum_open_interest_value",
			"count_toptrader_long_short_ratio",
			"sum_toptrader_long_short_ratio",
			"count_long_short_ratio",
			"sum_taker_long_short_vol_ratio",
		}}
	}
	return JoinSpec{}
}

// LeftJoin returns primary extended with spec's columns from secondary,
// matched on the time key. Primary rows without a match get empty cells.
// The secondary time key must be unique. It also returns how many primary
// rows found a match.
func LeftJoin(primary, secondary *domain.Table, spec JoinSpec) (*domain.Table, int, error) {
	idx := make([]int, len(spec.Columns))
	for i, name := range spec.Columns {
		idx[i] = -1
		for j, c := range secondary.Columns {
			if j > 0 && c == name {
				idx[i] = j - 1 // Values excludes the time key
			}
		}
		if idx[i] < 0 {
			return nil, 0, fmt.Errorf("join column %q not in %s columns", name, secondary.Kind)
		}
	}

	byTime := make(map[int64][]string, len(secondary.Rows))
	for _, r := range secondary.Rows {
		if _, dup := byTime[r.Time]; dup {
			return nil, 0, fmt.Errorf("%w: %s time key %d repeats", ErrInconsistent, secondary.Kind, r.Time)
		}
		byTime[r.Time] = r.Values
	}

	out := &domain.Table{
		Kind:    primary.Kind,
		Columns: append(append([]string{}, primary.Columns...), prefixed(spec)...),
		Rows:    make([]domain.Row, len(primary.Rows)),
	}

	matched := 0
	for i, r := range primary.Rows {
		values := make([]string, len(r.Values), len(r.Values)+len(idx))
		copy(values, r.Values)
		sv, ok := byTime[r.Time]
		if ok {
			matched++
		}
		for _, j := range idx {
			if ok {
				values = append(values, sv[j])
			} else {
				values = append(values, "")
			}
		}
		out.Rows[i] = domain.Row{Time: r.Time, Values: values}
	}
	return out, matched, nil
}

func prefixed(spec JoinSpec) []string {
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = spec.Prefix + c
	}
	return cols
}
