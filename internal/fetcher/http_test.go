package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/hmpi-cli/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2,
		},
		DefaultRPS: 1000,
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ncols 1\nnrows 1\n"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "nested", "pop.asc")
	n, err := newTestFetcher().DownloadToFile(context.Background(), srv.URL+"/pop.asc", path)
	require.NoError(t, err)
	assert.Equal(t, int64(16), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ncols 1\nnrows 1\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")
}

func TestDownloadToFile_ErrorLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "missing.zip")
	_, err := newTestFetcher().DownloadToFile(context.Background(), srv.URL, path)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadIfChanged_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"etag1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"etag2"`)
		_, _ = w.Write([]byte("new"))
	}))
	defer srv.Close()

	body, etag, changed, err := newTestFetcher().DownloadIfChanged(context.Background(), srv.URL, `"etag1"`)
	require.NoError(t, err)
	assert.Nil(t, body)
	assert.False(t, changed)
	assert.Equal(t, `"etag1"`, etag)
}

func TestDownloadIfChanged_Changed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"etag2"`)
		_, _ = w.Write([]byte("new content"))
	}))
	defer srv.Close()

	body, etag, changed, err := newTestFetcher().DownloadIfChanged(context.Background(), srv.URL, `"etag1"`)
	require.NoError(t, err)
	require.NotNil(t, body)
	defer body.Close() //nolint:errcheck

	assert.True(t, changed)
	assert.Equal(t, `"etag2"`, etag)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))
}

func TestDownloadIfChanged_NoETagSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	body, etag, changed, err := newTestFetcher().DownloadIfChanged(context.Background(), srv.URL, "")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck
	assert.True(t, changed)
	assert.Empty(t, etag)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such file"))
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRateLimiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{
		RateLimiters: map[string]*rate.Limiter{
			srv.Listener.Addr().String(): rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		},
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		body, err := f.Download(context.Background(), srv.URL)
		require.NoError(t, err)
		_ = body.Close()
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestLimiterFor_SharedPerHost(t *testing.T) {
	f := newTestFetcher()
	a := f.limiterFor("https://power.larc.nasa.gov/api/a")
	b := f.limiterFor("https://power.larc.nasa.gov/api/b")
	c := f.limiterFor("https://example.com/")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, "hmpi-cli/1.0", f.opts.UserAgent)
	assert.Equal(t, 10*time.Minute, f.client.Timeout)
	assert.Equal(t, 3, f.opts.Retry.MaxAttempts)
}

func TestDownload_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher().Download(ctx, srv.URL)
	require.Error(t, err)
}

func TestMulti_For(t *testing.T) {
	m := NewMulti(HTTPOptions{}, FTPOptions{})

	f, err := m.For("https://example.com/a.zip")
	require.NoError(t, err)
	assert.Same(t, m.HTTP, f)

	f, err = m.For("ftp://ftp.example.com/a.zip")
	require.NoError(t, err)
	assert.Same(t, m.FTP, f)

	_, err = m.For("s3://bucket/a.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestMulti_DownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("abc"))
	}))
	defer srv.Close()

	m := &Multi{HTTP: newTestFetcher(), FTP: NewFTPFetcher(FTPOptions{})}
	path := filepath.Join(t.TempDir(), "out.bin")
	n, err := m.DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
