package binance

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinevault/internal/domain"
	"klinevault/internal/gather"
)

func TestFetcherFetch(t *testing.T) {
	srv := newArchiveServer(t)
	srv.put("/a/BTCUSDT-1m-2024-01-01.zip", []byte("payload"))
	dir := t.TempDir()
	f := NewFetcher(srv.Client())

	req := domain.ArchiveRequest{URL: srv.URL + "/a/BTCUSDT-1m-2024-01-01.zip", Kind: domain.StreamKlines}
	a1, err := f.Fetch(context.Background(), req, dir)
	require.NoError(t, err)
	a2, err := f.Fetch(context.Background(), req, dir)
	require.NoError(t, err)

	assert.NotEqual(t, a1.Path, a2.Path, "concurrent downloads of one name must not collide")
	for _, a := range []domain.DownloadedArchive{a1, a2} {
		assert.Equal(t, dir, filepath.Dir(a.Path))
		assert.True(t, strings.HasSuffix(a.Path, "_BTCUSDT-1m-2024-01-01.zip"), a.Path)
		assert.Equal(t, int64(7), a.Size)
		data, err := os.ReadFile(a.Path)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	}
}

func TestFetcherNotFound(t *testing.T) {
	srv := newArchiveServer(t)
	dir := t.TempDir()

	_, err := NewFetcher(srv.Client()).Fetch(context.Background(),
		domain.ArchiveRequest{URL: srv.URL + "/missing.zip"}, dir)
	require.ErrorIs(t, err, gather.ErrNotFound)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestFetcherTransportError(t *testing.T) {
	srv := newArchiveServer(t)
	url := srv.URL + "/x.zip"
	srv.Close()

	_, err := NewFetcher(nil).Fetch(context.Background(), domain.ArchiveRequest{URL: url}, t.TempDir())
	require.Error(t, err)
	assert.NotErrorIs(t, err, gather.ErrNotFound)
}

func TestFetcherExists(t *testing.T) {
	srv := newArchiveServer(t)
	srv.put("/here.zip", []byte("z"))
	f := NewFetcher(srv.Client())

	ok, err := f.Exists(context.Background(), srv.URL+"/here.zip")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Exists(context.Background(), srv.URL+"/gone.zip")
	require.NoError(t, err)
	assert.False(t, ok)
}
