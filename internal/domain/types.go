// Package domain defines the core types shared across klinevault: markets,
// kline intervals, archive stream kinds, canonical column schemas, and the
// in-memory table representation produced by parsing archive contents.
package domain

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Market
// ---------------------------------------------------------------------------

// Market identifies which archive tree a symbol is published under.
type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "futures"
)

// ParseMarket normalises s and returns the matching Market.
func ParseMarket(s string) (Market, error) {
	switch Market(strings.ToLower(strings.TrimSpace(s))) {
	case MarketSpot:
		return MarketSpot, nil
	case MarketFutures:
		return MarketFutures, nil
	}
	return "", fmt.Errorf("unknown market %q (want spot or futures)", s)
}

// ---------------------------------------------------------------------------
// Interval
// ---------------------------------------------------------------------------

// Interval is a kline granularity token such as "1m" or "4h".
type Interval string

// Intervals lists every granularity the archive publishes, shortest first.
var Intervals = []Interval{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d"}

// ParseInterval normalises s and returns it if it is a published granularity.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Intervals {
		if iv == known {
			return iv, nil
		}
	}
	return "", fmt.Errorf("unknown interval %q (want one of %v)", s, Intervals)
}

// Minutes returns the interval length in minutes, or 0 for an invalid token.
func (iv Interval) Minutes() int {
	s := string(iv)
	if len(s) < 2 {
		return 0
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0
	}
	switch s[len(s)-1] {
	case 'm':
		return n
	case 'h':
		return n * 60
	case 'd':
		return n * 24 * 60
	}
	return 0
}

// ---------------------------------------------------------------------------
// Stream kinds
// ---------------------------------------------------------------------------

// StreamKind distinguishes the archive families: each has its own URL
// template and canonical schema.
type StreamKind string

const (
	StreamKlines       StreamKind = "klines"
	StreamPremiumIndex StreamKind = "premium_index"
	StreamMetrics      StreamKind = "metrics"
)

// ParseStreamKind accepts the canonical names plus a few common spellings.
func ParseStreamKind(s string) (StreamKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "klines", "kline":
		return StreamKlines, nil
	case "premium_index", "premium-index", "premiumindex", "premium":
		return StreamPremiumIndex, nil
	case "metrics":
		return StreamMetrics, nil
	}
	return "", fmt.Errorf("unknown stream kind %q", s)
}

// ---------------------------------------------------------------------------
// Schemas
// ---------------------------------------------------------------------------

// ColumnKind is the value type a column must parse as.
type ColumnKind int

const (
	// ColumnTime is the epoch-millisecond time key. Always column 0.
	ColumnTime ColumnKind = iota
	ColumnInt
	ColumnDecimal
	ColumnString
	// ColumnDateTime is a "YYYY-MM-DD HH:MM:SS" UTC timestamp that is
	// converted to an epoch-millisecond time key on read.
	ColumnDateTime
)

// Column is a single named, typed column of a canonical schema.
type Column struct {
	Name string
	Kind ColumnKind
}

// Schema is the ordered canonical column list for one stream kind.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// KlineSchema is shared by spot and futures kline archives.
var KlineSchema = Schema{
	{"open_time", ColumnTime},
	{"open", ColumnDecimal},
	{"high", ColumnDecimal},
	{"low", ColumnDecimal},
	{"close", ColumnDecimal},
	{"volume", ColumnDecimal},
	{"close_time", ColumnInt},
	{"quote_volume", ColumnDecimal},
	{"count", ColumnInt},
	{"taker_buy_volume", ColumnDecimal},
	{"taker_buy_quote_volume", ColumnDecimal},
	{"ignore", ColumnString},
}

// PremiumIndexSchema has kline arity but its volume fields are unused by the
// publisher; prices are premium index values rather than trade prices.
var PremiumIndexSchema = Schema{
	{"open_time", ColumnTime},
	{"open", ColumnDecimal},
	{"high", ColumnDecimal},
	{"low", ColumnDecimal},
	{"close", ColumnDecimal},
	{"volume", ColumnString},
	{"close_time", ColumnInt},
	{"quote_volume", ColumnString},
	{"count", ColumnString},
	{"taker_buy_volume", ColumnString},
	{"taker_buy_quote_volume", ColumnString},
	{"ignore", ColumnString},
}

// MetricsSchema covers the 5-minute open-interest and long/short ratio
// archives published for futures symbols.
var MetricsSchema = Schema{
	{"create_time", ColumnDateTime},
	{"symbol", ColumnString},
	{"sum_open_interest", ColumnDecimal},
	{"sum_open_interest_value", ColumnDecimal},
	{"count_toptrader_long_short_ratio", ColumnDecimal},
	{"sum_toptrader_long_short_ratio", ColumnDecimal},
	{"count_long_short_ratio", ColumnDecimal},
	{"sum_taker_long_short_vol_ratio", ColumnDecimal},
}

// SchemaFor returns the canonical schema of kind.
func SchemaFor(kind StreamKind) Schema {
	switch kind {
	case StreamPremiumIndex:
		return PremiumIndexSchema
	case StreamMetrics:
		return MetricsSchema
	default:
		return KlineSchema
	}
}

// ---------------------------------------------------------------------------
// Requests and tables
// ---------------------------------------------------------------------------

// ArchiveRequest is one daily archive to fetch. Built by the planner and
// never mutated afterwards.
type ArchiveRequest struct {
	URL    string
	Kind   StreamKind
	Day    time.Time
	Schema Schema
}

// FileName returns the archive's base file name taken from its URL.
func (r ArchiveRequest) FileName() string {
	return path.Base(r.URL)
}

// Row is one parsed record. Time is the epoch-millisecond time key; Values
// holds the remaining columns in schema order as their source text.
type Row struct {
	Time   int64
	Values []string
}

// Table is an ordered set of rows sharing one schema. Columns[0] names the
// time key.
type Table struct {
	Kind    StreamKind
	Columns []string
	Rows    []Row
	Source  string
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Record returns row i rendered as strings in column order.
func (t *Table) Record(i int) []string {
	r := t.Rows[i]
	rec := make([]string, 0, len(r.Values)+1)
	rec = append(rec, strconv.FormatInt(r.Time, 10))
	return append(rec, r.Values...)
}

// DownloadedArchive is a fetched archive payload on local disk. It is owned
// by the task that fetched it and deleted once extracted.
type DownloadedArchive struct {
	Request ArchiveRequest
	Path    string
	Size    int64
}

// ExtractedEntry is one file unpacked from an archive. Path is unique
// process-wide even when archives contain entries with identical names.
type ExtractedEntry struct {
	Path    string
	Name    string
	Archive string
	Kind    StreamKind
}
