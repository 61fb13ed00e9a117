package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"tmdb image host", "https://image.tmdb.org/t/p/w500/abc.jpg", "image.tmdb.org"},
		{"mixed case", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := ingestItemsTotal
	Init()
	require.NotNil(t, first)
	assert.Same(t, first, ingestItemsTotal)
}

func TestObserveItemAndRun(t *testing.T) {
	Init()
	before := testutil.ToFloat64(ingestItemsTotal.WithLabelValues("detail_failed"))
	ObserveItem("detail_failed")
	assert.Equal(t, before+1, testutil.ToFloat64(ingestItemsTotal.WithLabelValues("detail_failed")))

	ObserveRun("complete", 10, 10, 9, 1)
	assert.Equal(t, 9.0, testutil.ToFloat64(ingestLastRunItems.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ingestLastRunItems.WithLabelValues("failed")))
}

func TestObserveDownloadCountsBytes(t *testing.T) {
	Init()
	before := testutil.ToFloat64(assetBytesTotal.WithLabelValues("img.test"))
	ObserveDownload("https://img.test/w500/a.jpg", "ok", 2048)
	ObserveDownload("https://img.test/w500/b.jpg", "failed", 0)
	assert.Equal(t, before+2048, testutil.ToFloat64(assetBytesTotal.WithLabelValues("img.test")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(assetDownloadsTotal.WithLabelValues("img.test", "failed")), 1.0)
}

func TestObserveRemoteRequestAndThrottle(t *testing.T) {
	Init()
	ObserveRemoteRequest("/configuration", "ok", 20*time.Millisecond)
	ObserveThrottle(500 * time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("/configuration", "ok")), 1.0)
	assert.Positive(t, testutil.CollectAndCount(throttlePauseSeconds))
}

func TestWriteTextfile(t *testing.T) {
	ObserveRun("aborted", 0, 0, 0, 0)
	path := filepath.Join(t.TempDir(), "catalog.prom")

	require.NoError(t, WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "catalog_ingest_runs_total")
}

func TestWriteTextfileBadPath(t *testing.T) {
	Init()
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "catalog.prom"))
	require.Error(t, err)
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://image.tmdb.org", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
