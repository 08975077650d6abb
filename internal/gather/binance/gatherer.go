package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"klinevault/internal/domain"
	"klinevault/internal/gather"
	"klinevault/internal/util"
)

// Compile-time interface check.
var _ gather.Gatherer = (*ArchiveGatherer)(nil)

// DefaultWorkers is the worker cap used when Options.Workers is zero.
const DefaultWorkers = 40

// Options configures an ArchiveGatherer.
type Options struct {
	Client          *http.Client
	Workers         int
	FetchRetries    int           // extra attempts on transport errors; 0 disables
	RetryDelay      time.Duration // base delay between fetch attempts
	ParseRetryDelay time.Duration
	TempDir         string // parent of the per-run temp tree; "" = os.TempDir()
	KeepTemp        bool
}

// ArchiveGatherer runs fetch, extract and parse for many archives on a
// bounded worker pool.
type ArchiveGatherer struct {
	fetcher   *Fetcher
	extractor *Extractor
	parser    *Parser
	opts      Options
	log       *slog.Logger
}

// NewArchiveGatherer creates an ArchiveGatherer from opts.
func NewArchiveGatherer(opts Options) *ArchiveGatherer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &ArchiveGatherer{
		fetcher:   NewFetcher(opts.Client),
		extractor: NewExtractor(),
		parser:    NewParser(opts.ParseRetryDelay),
		opts:      opts,
		log:       slog.Default().With("gatherer", "binance-archive"),
	}
}

// Name returns the gatherer identifier.
func (g *ArchiveGatherer) Name() string { return "binance-archive" }

// Fetcher exposes the gatherer's HTTP fetcher, e.g. for use as a Prober.
func (g *ArchiveGatherer) Fetcher() *Fetcher { return g.fetcher }

// runState is owned by one Gather call and shared by its tasks.
type runState struct {
	dir       string
	processed *entrySet

	fetched  atomic.Int64
	notFound atomic.Int64
	failed   atomic.Int64
}

// taskResult is tagged with the stream kind fixed at submission time.
type taskResult struct {
	kind   domain.StreamKind
	tables []*domain.Table
}

// Gather fetches, extracts and parses every request. A failing task only
// loses its own archive. The temp tree is removed once all tasks finished,
// unless KeepTemp is set or the context was cancelled.
func (g *ArchiveGatherer) Gather(ctx context.Context, reqs []domain.ArchiveRequest) (gather.Results, error) {
	results := make(gather.Results)
	if len(reqs) == 0 {
		return results, nil
	}

	dir, err := os.MkdirTemp(g.opts.TempDir, "klinevault-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	run := &runState{dir: dir, processed: newEntrySet()}

	reqCh := make(chan domain.ArchiveRequest, len(reqs))
	for _, r := range reqs {
		reqCh <- r
	}
	close(reqCh)

	resultCh := make(chan taskResult, len(reqs))
	var (
		wg       sync.WaitGroup
		runStart = time.Now()
	)

	workers := min(g.opts.Workers, len(reqs))
	g.log.Info("starting gather", "archives", len(reqs), "workers", workers, "tempDir", dir)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range reqCh {
				if ctx.Err() != nil {
					return
				}
				resultCh <- g.runTask(ctx, run, req)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	tables, rows := 0, 0
	for res := range resultCh {
		results[res.kind] = append(results[res.kind], res.tables...)
		tables += len(res.tables)
		for _, t := range res.tables {
			rows += t.Len()
		}
	}

	if ctx.Err() != nil {
		g.log.Warn("gather cancelled, keeping temp dir", "tempDir", dir)
		return nil, ctx.Err()
	}

	if g.opts.KeepTemp {
		g.log.Info("keeping temp dir", "tempDir", dir)
	} else if err := os.RemoveAll(dir); err != nil {
		g.log.Warn("removing temp dir", "tempDir", dir, "err", err)
	}

	g.log.Info("gather complete",
		"archives", len(reqs),
		"fetched", run.fetched.Load(),
		"notFound", run.notFound.Load(),
		"failed", run.failed.Load(),
		"entries", run.processed.Len(),
		"tables", tables,
		"rows", rows,
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	return results, nil
}

// runTask performs fetch, extract and parse for one archive. Every failure
// is logged and degrades to an empty result.
func (g *ArchiveGatherer) runTask(ctx context.Context, run *runState, req domain.ArchiveRequest) (res taskResult) {
	res.kind = req.Kind
	log := g.log.With("archive", req.FileName())

	defer func() {
		if r := recover(); r != nil {
			run.failed.Add(1)
			log.Error("task panicked", "url", req.URL, "panic", r)
			res.tables = nil
		}
	}()

	archive, err := g.fetch(ctx, run, req)
	if errors.Is(err, gather.ErrNotFound) {
		run.notFound.Add(1)
		log.Warn("archive not available, skipping day", "url", req.URL, "err", err)
		return res
	}
	if err != nil {
		run.failed.Add(1)
		log.Error("fetch failed", "url", req.URL, "err", err)
		return res
	}
	run.fetched.Add(1)

	entries, err := g.extractor.Extract(archive, run.dir)
	if err != nil {
		run.failed.Add(1)
		log.Error("extract failed", "url", req.URL, "err", err)
		return res
	}

	for _, entry := range entries {
		if !run.processed.Claim(entry.Path) {
			log.Debug("entry already processed", "entry", entry.Path)
			continue
		}
		table, err := g.parser.Parse(ctx, entry, req.Schema)
		os.Remove(entry.Path)
		if err != nil {
			log.Error("parse failed, skipping entry", "entry", entry.Name, "err", err)
			continue
		}
		res.tables = append(res.tables, table)
	}

	log.Debug("archive done", "entries", len(entries), "tables", len(res.tables))
	return res
}

// fetch downloads req, retrying transport errors FetchRetries times.
// Non-2xx answers are never retried.
func (g *ArchiveGatherer) fetch(ctx context.Context, run *runState, req domain.ArchiveRequest) (domain.DownloadedArchive, error) {
	var archive domain.DownloadedArchive
	err := util.Retry(ctx, g.opts.FetchRetries+1, g.opts.RetryDelay, func() error {
		a, err := g.fetcher.Fetch(ctx, req, run.dir)
		if errors.Is(err, gather.ErrNotFound) {
			return util.Permanent(err)
		}
		if err != nil {
			return err
		}
		archive = a
		return nil
	})
	return archive, err
}
