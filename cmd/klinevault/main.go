package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"klinevault/internal/config"
	"klinevault/internal/domain"
	"klinevault/internal/gather"
	"klinevault/internal/gather/binance"
	"klinevault/internal/store"
	"klinevault/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default $KLINEVAULT_CONFIG or config/klinevault.yaml)")
	symbol := flag.String("symbol", "", "symbol, e.g. BTCUSDT")
	interval := flag.String("interval", "1m", fmt.Sprintf("kline interval %v", domain.Intervals))
	market := flag.String("market", "futures", "market: spot or futures")
	days := flag.String("days", "1", `number of days ending yesterday, or "all"`)
	start := flag.String("start", "", "range start YYYY-MM-DD (with -end; overrides -days)")
	end := flag.String("end", "", "range end YYYY-MM-DD")
	streams := flag.String("streams", "", "comma-separated auxiliary streams to join: premium_index,metrics")
	format := flag.String("format", "", "output format: csv, parquet or sqlite (default from config)")
	outDir := flag.String("out", "", "output directory (default from config)")
	workers := flag.Int("workers", 0, "worker cap (default from config)")
	flag.Parse()

	path := *cfgPath
	if path == "" {
		path = "config/klinevault.yaml"
		if p := os.Getenv("KLINEVAULT_CONFIG"); p != "" {
			path = p
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *format != "" {
		cfg.Output.Format = *format
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *workers > 0 {
		cfg.Gather.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, closer := util.NewLogger(util.LogOptions{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer closer.Close()
	util.SetDefault(logger)

	sel, err := buildSelection(*symbol, *interval, *market, *days, *start, *end, *streams)
	if err != nil {
		log.Fatalf("invalid selection: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out, err := run(ctx, cfg, sel)
	if err != nil {
		slog.Error("run failed", "err", err)
		closer.Close()
		os.Exit(1)
	}
	slog.Info("dataset written", "path", out)
}

// run plans, gathers, merges and writes one dataset, returning the output
// file path.
func run(ctx context.Context, cfg *config.Config, sel binance.Selection) (string, error) {
	f, err := store.ParseFormat(cfg.Output.Format)
	if err != nil {
		return "", err
	}
	writer, err := store.NewWriter(f)
	if err != nil {
		return "", err
	}

	g := binance.NewArchiveGatherer(binance.Options{
		Client:          &http.Client{Timeout: cfg.Source.Timeout},
		Workers:         cfg.Gather.Workers,
		FetchRetries:    cfg.Gather.FetchRetries,
		RetryDelay:      cfg.Gather.RetryDelay,
		ParseRetryDelay: cfg.Gather.ParseRetryDelay,
		TempDir:         cfg.Gather.TempDir,
		KeepTemp:        cfg.Gather.KeepTemp,
	})
	planner := binance.NewPlanner(cfg.Source.BaseURL, g.Fetcher(), cfg.Gather.MaxProbeDays)

	reqs, err := planner.Plan(ctx, sel)
	if err != nil {
		return "", fmt.Errorf("planning: %w", err)
	}

	results, err := g.Gather(ctx, reqs)
	if err != nil {
		return "", fmt.Errorf("gathering: %w", err)
	}
	if results.Rows(domain.StreamKlines) == 0 {
		return "", errors.New("no kline rows gathered")
	}

	ds, err := store.Assemble(results, binance.EffectiveStreams(sel), slog.Default())
	if err != nil {
		return "", err
	}

	out := filepath.Join(cfg.Output.Dir,
		store.FileName(strings.ToUpper(sel.Symbol), sel.Interval, sel.Span(), ds.Joined, f))
	if err := writer.Write(ctx, out, ds.Table); err != nil {
		return "", err
	}
	return out, nil
}

func buildSelection(symbol, interval, market, days, start, end, streams string) (binance.Selection, error) {
	var sel binance.Selection

	sel.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if sel.Symbol == "" {
		return sel, errors.New("-symbol is required")
	}

	iv, err := domain.ParseInterval(interval)
	if err != nil {
		return sel, err
	}
	sel.Interval = iv

	m, err := domain.ParseMarket(market)
	if err != nil {
		return sel, err
	}
	sel.Market = m

	switch {
	case start != "" || end != "":
		if start == "" || end == "" {
			return sel, errors.New("-start and -end must be given together")
		}
		s, err := time.Parse("2006-01-02", start)
		if err != nil {
			return sel, fmt.Errorf("parsing -start: %w", err)
		}
		e, err := time.Parse("2006-01-02", end)
		if err != nil {
			return sel, fmt.Errorf("parsing -end: %w", err)
		}
		sel.Range = &gather.DateRange{Start: s, End: e}
	case strings.EqualFold(days, "all"):
		sel.All = true
	default:
		n, err := strconv.Atoi(strings.TrimSpace(days))
		if err != nil || n <= 0 {
			return sel, fmt.Errorf("-days must be a positive integer or \"all\", got %q", days)
		}
		sel.Days = n
	}

	for _, s := range strings.Split(streams, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		k, err := domain.ParseStreamKind(s)
		if err != nil {
			return sel, err
		}
		if k != domain.StreamKlines {
			sel.Streams = append(sel.Streams, k)
		}
	}
	return sel, nil
}
