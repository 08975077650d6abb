package binance

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minuteMs = int64(time.Minute / time.Millisecond)

// zipBytes builds an in-memory archive holding the given name -> content
// entries in order.
func zipBytes(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(e[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// klineCSV renders n one-minute kline rows starting at day, optionally
// preceded by the publisher's header line.
func klineCSV(day time.Time, n int, header bool) string {
	var sb strings.Builder
	if header {
		sb.WriteString("open_time,open,high,low,close,volume,close_time,quote_volume,count,taker_buy_volume,taker_buy_quote_volume,ignore\n")
	}
	start := day.UnixMilli()
	for i := 0; i < n; i++ {
		ot := start + int64(i)*minuteMs
		fmt.Fprintf(&sb, "%d,42000.%d,42010.5,41990.25,42005.%d,12.345,%d,518000.12,%d,6.1,256000.5,0\n",
			ot, i, i, ot+minuteMs-1, 100+i)
	}
	return sb.String()
}

// premiumCSV renders n one-minute premium index rows starting at day.
func premiumCSV(day time.Time, n int) string {
	var sb strings.Builder
	sb.WriteString("open_time,open,high,low,close,volume,close_time,quote_volume,count,taker_buy_volume,taker_buy_quote_volume,ignore\n")
	start := day.UnixMilli()
	for i := 0; i < n; i++ {
		ot := start + int64(i)*minuteMs
		fmt.Fprintf(&sb, "%d,-0.0001%d,0.0002,-0.0003,0.0001%d,0,%d,0,12,0,0,0\n", ot, i, i, ot+minuteMs-1)
	}
	return sb.String()
}

// archiveServer serves registered paths and answers 404 otherwise. It
// counts requests per path.
type archiveServer struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
}

func newArchiveServer(t *testing.T) *archiveServer {
	t.Helper()
	s := &archiveServer{files: make(map[string][]byte), hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		body, ok := s.files[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *archiveServer) put(path string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = body
}

func (s *archiveServer) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}
