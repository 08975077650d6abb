package main

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinevault/internal/config"
	"klinevault/internal/domain"
	"klinevault/internal/store"
)

func TestBuildSelection(t *testing.T) {
	sel, err := buildSelection(" btcusdt ", "5m", "futures", "3", "", "", "premium_index, metrics")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", sel.Symbol)
	assert.Equal(t, domain.Interval("5m"), sel.Interval)
	assert.Equal(t, domain.MarketFutures, sel.Market)
	assert.Equal(t, 3, sel.Days)
	assert.Equal(t, []domain.StreamKind{domain.StreamPremiumIndex, domain.StreamMetrics}, sel.Streams)

	sel, err = buildSelection("ETHUSDT", "1h", "spot", "ALL", "", "", "")
	require.NoError(t, err)
	assert.True(t, sel.All)
	assert.Empty(t, sel.Streams)

	sel, err = buildSelection("ETHUSDT", "1d", "spot", "1", "2024-01-01", "2024-01-31", "")
	require.NoError(t, err)
	require.NotNil(t, sel.Range)
	assert.Equal(t, 31, sel.Range.Days())
}

func TestBuildSelectionErrors(t *testing.T) {
	tests := []struct {
		name                                          string
		symbol, iv, market, days, start, end, streams string
	}{
		{"no symbol", "", "1m", "spot", "1", "", "", ""},
		{"bad interval", "BTCUSDT", "7m", "spot", "1", "", "", ""},
		{"bad market", "BTCUSDT", "1m", "options", "1", "", "", ""},
		{"zero days", "BTCUSDT", "1m", "spot", "0", "", "", ""},
		{"trailing junk", "BTCUSDT", "1m", "spot", "3x", "", "", ""},
		{"half range", "BTCUSDT", "1m", "spot", "1", "2024-01-01", "", ""},
		{"bad date", "BTCUSDT", "1m", "spot", "1", "2024-13-01", "2024-12-01", ""},
		{"bad stream", "BTCUSDT", "1m", "spot", "1", "", "", "trades"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildSelection(tt.symbol, tt.iv, tt.market, tt.days, tt.start, tt.end, tt.streams)
			assert.Error(t, err)
		})
	}
}

func klineArchive(t *testing.T, name string, day time.Time, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		ot := day.UnixMilli() + int64(i)*60000
		fmt.Fprintf(w, "%d,1.0,2.0,0.5,1.5,10,%d,15,3,5,7.5,0\n", ot, ot+59999)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRunWritesDataset(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d3 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	files := map[string][]byte{
		"/data/futures/um/daily/klines/BTCUSDT/1m/BTCUSDT-1m-2024-01-01.zip": klineArchive(t, "BTCUSDT-1m-2024-01-01.csv", d1, 10),
		"/data/futures/um/daily/klines/BTCUSDT/1m/BTCUSDT-1m-2024-01-03.zip": klineArchive(t, "BTCUSDT-1m-2024-01-03.csv", d3, 10),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Source.BaseURL = srv.URL
	cfg.Output.Dir = t.TempDir()
	cfg.Gather.TempDir = t.TempDir()
	cfg.Gather.ParseRetryDelay = time.Millisecond

	sel, err := buildSelection("BTCUSDT", "1m", "futures", "", "2024-01-01", "2024-01-03", "")
	require.NoError(t, err)

	out, err := run(context.Background(), cfg, sel)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Output.Dir, "BTCUSDT_1m_"+sel.Span()+".csv"), out)

	got, err := store.ReadCSV(out, domain.StreamKlines)
	require.NoError(t, err)
	require.Equal(t, 20, got.Len())
	assert.Equal(t, d1.UnixMilli(), got.Rows[0].Time)
	assert.Equal(t, d3.UnixMilli(), got.Rows[10].Time)

	rep := store.Inspect(got)
	assert.True(t, rep.OK())
}

func TestRunFailsWithoutKlines(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := config.Default()
	cfg.Source.BaseURL = srv.URL
	cfg.Output.Dir = t.TempDir()
	cfg.Gather.TempDir = t.TempDir()

	sel, err := buildSelection("BTCUSDT", "1m", "spot", "", "2024-01-01", "2024-01-02", "")
	require.NoError(t, err)

	_, err = run(context.Background(), cfg, sel)
	assert.ErrorContains(t, err, "no kline rows")
}
