package snapshot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/seowatch/internal/logging"
)

func newTestFetcher() *Fetcher {
	opts := DefaultOptions()
	opts.RequestsPerSec = 100
	opts.Timeout = 5 * time.Second
	return New(opts, logging.Discard())
}

func TestSnapshotSinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Write([]byte("User-agent: *\nDisallow: /private/\nSitemap: http://example.com/sitemap.xml\n"))
		case "/":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Write([]byte(samplePage))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	snap, err := newTestFetcher().Snapshot(context.Background(), server.URL+"/")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, snap.StatusCode)
	assert.Equal(t, "Fresh Pantry Recipes", snap.Title)
	assert.Equal(t, "DENY", snap.Headers["X-Frame-Options"])
	assert.True(t, snap.Robots.Fetched)
	assert.True(t, snap.Robots.Allowed)
	assert.Equal(t, []string{"http://example.com/sitemap.xml"}, snap.Robots.Sitemaps)
	assert.Greater(t, snap.Timing.TransferBytes, int64(0))
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestSnapshotRespectsRobots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>Private page</body></html>`))
	}))
	defer server.Close()

	snap, err := newTestFetcher().Snapshot(context.Background(), server.URL+"/private/page")
	require.NoError(t, err)
	assert.False(t, snap.Robots.Allowed)
}

func TestSnapshotUnavailable(t *testing.T) {
	binary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer binary.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name string
		url  string
	}{
		{name: "invalid URL", url: "not-a-url"},
		{name: "unsupported scheme", url: "ftp://example.com/file"},
		{name: "connection refused", url: closedURL + "/"},
		{name: "non html", url: binary.URL + "/doc.pdf"},
	}

	f := newTestFetcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := f.Snapshot(context.Background(), tt.url)
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.Nil(t, snap)
		})
	}
}
