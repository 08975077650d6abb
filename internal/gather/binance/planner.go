// Package binance gathers daily kline, premium-index and metrics archives
// from the public Binance data repository: it plans the archive URLs, fetches
// them concurrently, unpacks them and parses the contained CSV files.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"klinevault/internal/domain"
	"klinevault/internal/gather"
)

const (
	// MetricsMinMinutes is the shortest kline interval that metrics (published
	// every five minutes) can be joined against.
	MetricsMinMinutes = 5

	dateLayout = "2006-01-02"
)

// Selection describes which archives the caller wants. Exactly one of Days,
// All or Range selects the days.
type Selection struct {
	Symbol   string
	Interval domain.Interval
	Market   domain.Market

	Days  int
	All   bool
	Range *gather.DateRange

	// Streams lists auxiliary streams to fetch alongside klines. Streams the
	// market/interval combination does not publish are dropped.
	Streams []domain.StreamKind
}

// Span names the selected days for output file naming.
func (s Selection) Span() string {
	switch {
	case s.All:
		return "all"
	case s.Range != nil:
		return s.Range.Start.UTC().Format(dateLayout) + "_" + s.Range.End.UTC().Format(dateLayout)
	default:
		return fmt.Sprintf("%dd", s.Days)
	}
}

// Prober reports whether an archive exists without downloading it.
type Prober interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// Planner turns a Selection into archive requests, one per day per stream,
// newest day first.
type Planner struct {
	baseURL      string
	prober       Prober
	maxProbeDays int
	now          func() time.Time
	log          *slog.Logger
}

// NewPlanner creates a Planner for the repository rooted at baseURL. prober
// is only used by "all" selections and may be nil otherwise.
func NewPlanner(baseURL string, prober Prober, maxProbeDays int) *Planner {
	return &Planner{
		baseURL:      strings.TrimRight(baseURL, "/"),
		prober:       prober,
		maxProbeDays: maxProbeDays,
		now:          time.Now,
		log:          slog.Default().With("component", "planner"),
	}
}

// SetClock overrides the planner's notion of now.
func (p *Planner) SetClock(now func() time.Time) { p.now = now }

// Yesterday returns the start of the previous UTC day.
func (p *Planner) Yesterday() time.Time {
	n := p.now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// EffectiveStreams returns the auxiliary streams of sel that are published
// for its market and interval.
func EffectiveStreams(sel Selection) []domain.StreamKind {
	var out []domain.StreamKind
	seen := make(map[domain.StreamKind]bool)
	for _, k := range sel.Streams {
		if seen[k] {
			continue
		}
		seen[k] = true
		switch k {
		case domain.StreamPremiumIndex:
			if sel.Market == domain.MarketFutures {
				out = append(out, k)
			}
		case domain.StreamMetrics:
			if sel.Market == domain.MarketFutures && sel.Interval.Minutes() >= MetricsMinMinutes {
				out = append(out, k)
			}
		}
	}
	return out
}

// Plan validates sel and returns the archive requests to fetch.
func (p *Planner) Plan(ctx context.Context, sel Selection) ([]domain.ArchiveRequest, error) {
	sel.Symbol = strings.ToUpper(strings.TrimSpace(sel.Symbol))
	if sel.Symbol == "" {
		return nil, errors.New("symbol must not be empty")
	}
	if _, err := domain.ParseInterval(string(sel.Interval)); err != nil {
		return nil, err
	}
	if _, err := domain.ParseMarket(string(sel.Market)); err != nil {
		return nil, err
	}

	days, err := p.days(ctx, sel)
	if err != nil {
		return nil, err
	}

	aux := EffectiveStreams(sel)
	if len(aux) < len(sel.Streams) {
		p.log.Warn("dropping streams not published for this market/interval",
			"requested", sel.Streams, "kept", aux, "market", sel.Market, "interval", sel.Interval)
	}

	reqs := make([]domain.ArchiveRequest, 0, len(days)*(1+len(aux)))
	for _, day := range days {
		reqs = append(reqs, p.request(sel, domain.StreamKlines, day))
		for _, k := range aux {
			reqs = append(reqs, p.request(sel, k, day))
		}
	}
	return reqs, nil
}

// days returns the selected days, newest first.
func (p *Planner) days(ctx context.Context, sel Selection) ([]time.Time, error) {
	switch {
	case sel.All:
		return p.probeDays(ctx, sel)

	case sel.Range != nil:
		n := sel.Range.Days()
		if n == 0 {
			return nil, fmt.Errorf("date range end %s is before start %s",
				sel.Range.End.Format(dateLayout), sel.Range.Start.Format(dateLayout))
		}
		end := sel.Range.End.UTC()
		end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
		if y := p.Yesterday(); end.After(y) {
			return nil, fmt.Errorf("date range end %s is after the latest published day %s",
				end.Format(dateLayout), y.Format(dateLayout))
		}
		return walkBack(end, n), nil

	case sel.Days > 0:
		return walkBack(p.Yesterday(), sel.Days), nil
	}
	return nil, errors.New("day count must be positive (or select all days / a date range)")
}

// probeDays walks backward from yesterday and stops at the first day whose
// kline archive cannot be confirmed. Gaps in the published history therefore
// truncate the result.
func (p *Planner) probeDays(ctx context.Context, sel Selection) ([]time.Time, error) {
	if p.prober == nil {
		return nil, errors.New("all-days selection requires a prober")
	}

	var days []time.Time
	day := p.Yesterday()
	for i := 0; i < p.maxProbeDays; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		url := p.URL(sel.Symbol, sel.Interval, sel.Market, domain.StreamKlines, day)
		ok, err := p.prober.Exists(ctx, url)
		if err != nil {
			p.log.Warn("probe failed, stopping", "url", url, "err", err)
			break
		}
		if !ok {
			p.log.Info("first unavailable day reached", "day", day.Format(dateLayout))
			break
		}
		days = append(days, day)
		day = day.AddDate(0, 0, -1)
	}

	if len(days) == 0 {
		return nil, fmt.Errorf("no archives published for %s %s", sel.Symbol, sel.Interval)
	}
	if len(days) == p.maxProbeDays {
		p.log.Warn("probe limit reached", "days", p.maxProbeDays)
	}
	return days, nil
}

func walkBack(from time.Time, n int) []time.Time {
	days := make([]time.Time, n)
	for i := range days {
		days[i] = from.AddDate(0, 0, -i)
	}
	return days
}

func (p *Planner) request(sel Selection, kind domain.StreamKind, day time.Time) domain.ArchiveRequest {
	return domain.ArchiveRequest{
		URL:    p.URL(sel.Symbol, sel.Interval, sel.Market, kind, day),
		Kind:   kind,
		Day:    day,
		Schema: domain.SchemaFor(kind),
	}
}

// URL renders the archive URL of one stream for one day.
//
//	klines:        <base>/data/{spot|futures/um}/daily/klines/<SYM>/<iv>/<SYM>-<iv>-<date>.zip
//	premium_index: <base>/data/futures/um/daily/premiumIndexKlines/<SYM>/<iv>/<SYM>-<iv>-<date>.zip
//	metrics:       <base>/data/futures/um/daily/metrics/<SYM>/<SYM>-metrics-<date>.zip
func (p *Planner) URL(symbol string, iv domain.Interval, market domain.Market, kind domain.StreamKind, day time.Time) string {
	date := day.UTC().Format(dateLayout)
	switch kind {
	case domain.StreamPremiumIndex:
		return fmt.Sprintf("%s/data/futures/um/daily/premiumIndexKlines/%s/%s/%s-%s-%s.zip",
			p.baseURL, symbol, iv, symbol, iv, date)
	case domain.StreamMetrics:
		return fmt.Sprintf("%s/data/futures/um/daily/metrics/%s/%s-metrics-%s.zip",
			p.baseURL, symbol, symbol, date)
	default:
		return fmt.Sprintf("%s/data/%s/daily/klines/%s/%s/%s-%s-%s.zip",
			p.baseURL, marketPath(market), symbol, iv, symbol, iv, date)
	}
}

func marketPath(m domain.Market) string {
	if m == domain.MarketFutures {
		return "futures/um"
	}
	return "spot"
}
