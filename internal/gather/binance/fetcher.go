package binance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"klinevault/internal/domain"
	"klinevault/internal/gather"
)

// Compile-time interface check.
var _ Prober = (*Fetcher)(nil)

// Fetcher downloads single archives over HTTP. It never retries; retry
// policy belongs to the caller.
type Fetcher struct {
	client *http.Client
	log    *slog.Logger
}

// NewFetcher creates a Fetcher using client, or http.DefaultClient if nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		client: client,
		log:    slog.Default().With("component", "fetcher"),
	}
}

// Fetch downloads req into dir under a uuid-prefixed copy of the archive's
// file name. A non-2xx answer yields an error wrapping gather.ErrNotFound.
func (f *Fetcher) Fetch(ctx context.Context, req domain.ArchiveRequest, dir string) (domain.DownloadedArchive, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return domain.DownloadedArchive{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return domain.DownloadedArchive{}, fmt.Errorf("GET %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		f.log.Debug("archive unavailable", "url", req.URL, "status", resp.StatusCode)
		return domain.DownloadedArchive{}, fmt.Errorf("%w: %s (status %d)", gather.ErrNotFound, req.URL, resp.StatusCode)
	}

	path := filepath.Join(dir, uuid.NewString()+"_"+req.FileName())
	out, err := os.Create(path)
	if err != nil {
		return domain.DownloadedArchive{}, fmt.Errorf("creating %s: %w", path, err)
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return domain.DownloadedArchive{}, fmt.Errorf("writing %s: %w", req.FileName(), err)
	}

	return domain.DownloadedArchive{Request: req, Path: path, Size: n}, nil
}

// Exists issues a HEAD request and reports whether the archive is published.
func (f *Fetcher) Exists(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299, nil
}
