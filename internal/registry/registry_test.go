package registry

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/graphweave/graphweave/internal/cache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	return &Client{
		gh:          gh,
		httpClient:  server.Client(),
		rateLimiter: rate.NewLimiter(rate.Limit(100), 1),
		owner:       "testorg",
		repo:        "bundles",
		manifestURL: server.URL + "/manifest.json",
	}
}

func TestFetchAvailableBundlesMergesWithoutDedup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"bundles": [
			{"bundle_name": "phoenix-1.7-abc.cgc", "repo": "phoenixframework/phoenix",
			 "download_url": "https://example.com/phoenix-1.7-abc.cgc",
			 "generated_at": "2026-08-01T00:00:00Z"}
		]}`))
	})
	mux.HandleFunc("/repos/testorg/bundles/releases", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[
			{"tag_name": "bundles-latest", "assets": []},
			{"tag_name": "bundles-20260824", "assets": [
				{"name": "phoenix-1.7-abc.cgc", "size": 1048576,
				 "browser_download_url": "https://example.com/weekly/phoenix-1.7-abc.cgc",
				 "updated_at": "2026-08-24T00:00:00Z"},
				{"name": "checksums.txt", "size": 10,
				 "browser_download_url": "https://example.com/weekly/checksums.txt"}
			]},
			{"tag_name": "bundles-20260817", "assets": [
				{"name": "old-1.0-zzz.cgc", "size": 1,
				 "browser_download_url": "https://example.com/weekly/old.cgc"}
			]}
		]`))
	})

	client := testClient(t, mux)
	client.log = testLogger()

	bundles := client.FetchAvailableBundles(context.Background())

	// same bundle from both sources is kept twice
	require.Len(t, bundles, 2)
	assert.Equal(t, "on-demand", bundles[0].Source)
	assert.Equal(t, "phoenix-1.7-abc", bundles[0].FullName)
	assert.Equal(t, "phoenix", bundles[0].Name)
	assert.Equal(t, "weekly", bundles[1].Source)
	assert.Equal(t, "phoenix-1.7-abc", bundles[1].FullName)
	assert.Equal(t, "1.7", bundles[1].Version)
	assert.Equal(t, "abc", bundles[1].Commit)
	assert.Equal(t, int64(1048576), bundles[1].SizeBytes)
}

func TestFetchAvailableBundlesSurvivesManifestFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/repos/testorg/bundles/releases", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"tag_name": "bundles-20260824", "assets": [
			{"name": "ecto-3.11-def.cgc", "size": 5,
			 "browser_download_url": "https://example.com/ecto.cgc",
			 "updated_at": "2026-08-24T00:00:00Z"}
		]}]`))
	})

	client := testClient(t, mux)
	client.log = testLogger()

	bundles := client.FetchAvailableBundles(context.Background())
	require.Len(t, bundles, 1)
	assert.Equal(t, "ecto", bundles[0].Name)
}

func TestFetchAvailableBundlesFallsBackToCache(t *testing.T) {
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	online := http.NewServeMux()
	online.HandleFunc("/manifest.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"bundles": [
			{"bundle_name": "phoenix-1.7-abc.cgc", "repo": "phoenixframework/phoenix",
			 "download_url": "https://example.com/phoenix-1.7-abc.cgc",
			 "generated_at": "2026-08-01T00:00:00Z"}
		]}`))
	})
	online.HandleFunc("/repos/testorg/bundles/releases", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	})

	client := testClient(t, online).WithCache(store)
	client.log = testLogger()
	require.Len(t, client.FetchAvailableBundles(context.Background()), 1)

	// both registry sources down, same cache file
	offline := testClient(t, http.NotFoundHandler()).WithCache(store)
	offline.log = testLogger()

	cached := offline.FetchAvailableBundles(context.Background())
	require.Len(t, cached, 1)
	assert.Equal(t, "phoenix", cached[0].Name)
	assert.Equal(t, "phoenix-1.7-abc", cached[0].FullName)
}

func TestSelectBundleExactFullName(t *testing.T) {
	bundles := []Bundle{
		{Name: "flask", FullName: "flask-main-abc123", DownloadURL: "u1", GeneratedAt: "2026-01-01T00:00:00Z"},
		{Name: "flask", FullName: "flask-main-def456", DownloadURL: "u2", GeneratedAt: "2026-02-01T00:00:00Z"},
	}

	b, err := SelectBundle(bundles, "Flask-Main-ABC123")
	require.NoError(t, err)
	assert.Equal(t, "u1", b.DownloadURL)
}

func TestSelectBundleBaseNamePicksMostRecent(t *testing.T) {
	bundles := []Bundle{
		{Name: "flask", FullName: "flask-main-abc123", DownloadURL: "old", GeneratedAt: "2026-01-01T00:00:00Z"},
		{Name: "flask", FullName: "flask-main-def456", DownloadURL: "new", GeneratedAt: "2026-02-01T00:00:00Z"},
		{Name: "django", FullName: "django-main-xyz", DownloadURL: "other", GeneratedAt: "2026-03-01T00:00:00Z"},
	}

	b, err := SelectBundle(bundles, "flask")
	require.NoError(t, err)
	assert.Equal(t, "new", b.DownloadURL)
}

func TestSelectBundleNotFound(t *testing.T) {
	bundles := []Bundle{{Name: "flask", FullName: "flask-main-abc"}}

	_, err := SelectBundle(bundles, "rails")
	assert.ErrorContains(t, err, "not found")

	_, err = SelectBundle(nil, "flask")
	assert.ErrorContains(t, err, "could not fetch")
}

func TestSelectBundleMissingURL(t *testing.T) {
	bundles := []Bundle{{Name: "flask", FullName: "flask-main-abc", GeneratedAt: "2026-01-01T00:00:00Z"}}
	_, err := SelectBundle(bundles, "flask-main-abc")
	assert.ErrorContains(t, err, "no download URL")
}

func TestDownload(t *testing.T) {
	payload := []byte("bundle-bytes-payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))
	t.Cleanup(server.Close)

	client := &Client{streamClient: server.Client()}
	out := filepath.Join(t.TempDir(), "bundle.cgc")

	var received int
	err := client.Download(context.Background(), server.URL, out, func(n int) { received += n })
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, len(payload), received)
}

func TestDownloadRemovesPartialFileOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("partial"))
		// close the connection mid-body
		hj, ok := w.(http.Hijacker)
		if ok {
			conn, _, _ := hj.Hijack()
			conn.Close()
		}
	}))
	t.Cleanup(server.Close)

	client := &Client{streamClient: &http.Client{Timeout: 5 * time.Second}}
	out := filepath.Join(t.TempDir(), "bundle.cgc")

	err := client.Download(context.Background(), server.URL, out, nil)
	require.Error(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client := &Client{streamClient: server.Client()}
	out := filepath.Join(t.TempDir(), "bundle.cgc")

	err := client.Download(context.Background(), server.URL, out, nil)
	require.Error(t, err)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadClientHasNoBodyDeadline(t *testing.T) {
	client := NewClient("", "owner", "repo", 10)

	// the metadata client keeps its overall deadline
	assert.NotZero(t, client.httpClient.Timeout)
	// the streaming client must not, or long downloads get cut off
	assert.Zero(t, client.streamClient.Timeout)
}
