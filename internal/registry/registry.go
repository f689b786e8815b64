package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"

	"github.com/graphweave/graphweave/internal/cache"
	"github.com/graphweave/graphweave/internal/errors"
)

const (
	// manifestTag is the rolling release holding the on-demand manifest
	manifestTag = "on-demand-bundles"

	// weeklyTagPrefix marks weekly pre-built bundle releases (bundles-YYYYMMDD)
	weeklyTagPrefix = "bundles-"

	// bundleExt is the packaged graph bundle extension
	bundleExt = ".cgc"

	// bundleCacheBucket holds the last successfully fetched bundle list
	bundleCacheBucket = "bundles"
)

// Bundle describes one downloadable pre-built graph bundle.
type Bundle struct {
	Name        string `json:"name"`        // base package name, e.g. "phoenix"
	FullName    string `json:"full_name"`   // complete name with version, e.g. "phoenix-1.7-abc123"
	Repo        string `json:"repo"`        // source repository
	BundleName  string `json:"bundle_name"` // asset file name with extension
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	SizeBytes   int64  `json:"size_bytes"`
	DownloadURL string `json:"download_url"`
	GeneratedAt string `json:"generated_at"` // RFC3339; lexical order is chronological
	Source      string `json:"source"`       // "on-demand" or "weekly"
}

type manifest struct {
	Bundles []Bundle `json:"bundles"`
}

// Client fetches bundle metadata and artifacts from the registry's
// GitHub releases, with client-side API rate limiting.
type Client struct {
	gh *github.Client
	// httpClient bounds the whole request and fits small metadata
	// fetches; streamClient has no overall deadline because
	// http.Client.Timeout also covers the body read, which would cut
	// off large bundle downloads. Cancellation comes from ctx.
	httpClient   *http.Client
	streamClient *http.Client
	rateLimiter  *rate.Limiter
	cache        *cache.Store // optional offline fallback
	owner        string
	repo         string
	manifestURL  string
	log          *slog.Logger
}

// NewClient creates a registry client. token may be empty for anonymous
// access; rateLimit is requests per second against the GitHub API.
func NewClient(token, owner, repo string, rateLimit int) *Client {
	gh := github.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}

	return &Client{
		gh:         gh,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		owner:       owner,
		repo:        repo,
		manifestURL: fmt.Sprintf("https://github.com/%s/%s/releases/download/%s/manifest.json", owner, repo, manifestTag),
		log:         slog.Default().With("component", "bundle_registry"),
	}
}

// WithCache attaches a local store. Successful fetches refresh it and
// a fully failed fetch falls back to the last cached list.
func (c *Client) WithCache(store *cache.Store) *Client {
	c.cache = store
	return c
}

// FetchAvailableBundles merges on-demand manifest bundles with the
// most recent weekly release's assets. All versions are preserved, no
// deduplication. A failure fetching either source degrades to the other.
func (c *Client) FetchAvailableBundles(ctx context.Context) []Bundle {
	var all []Bundle

	manifestBundles, err := c.fetchManifestBundles(ctx)
	if err != nil {
		c.log.Warn("could not fetch on-demand bundles from manifest", "error", err)
	}
	all = append(all, manifestBundles...)

	weekly, err := c.fetchWeeklyBundles(ctx)
	if err != nil {
		c.log.Warn("could not fetch weekly bundles", "error", err)
	}
	all = append(all, weekly...)

	for i := range all {
		normalizeBundle(&all[i])
	}

	if c.cache != nil {
		cacheKey := c.owner + "/" + c.repo
		if len(all) > 0 {
			if err := c.cache.Put(bundleCacheBucket, cacheKey, all); err != nil {
				c.log.Warn("bundle cache write failed", "error", err)
			}
		} else {
			var cached []Bundle
			if err := c.cache.Get(bundleCacheBucket, cacheKey, &cached); err == nil && len(cached) > 0 {
				c.log.Warn("registry unreachable, serving cached bundle list", "bundles", len(cached))
				return cached
			}
		}
	}
	return all
}

func (c *Client) fetchManifestBundles(ctx context.Context) ([]Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.manifestURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NetworkError(err, "manifest fetch")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest fetch returned %s", resp.Status)
	}

	var m manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	bundles := m.Bundles
	for i := range bundles {
		bundles[i].Source = "on-demand"
		if bundles[i].BundleName != "" {
			bundles[i].FullName = strings.TrimSuffix(bundles[i].BundleName, bundleExt)
		}
	}
	return bundles, nil
}

func (c *Client) fetchWeeklyBundles(ctx context.Context) ([]Bundle, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	releases, _, err := c.gh.Repositories.ListReleases(ctx, c.owner, c.repo, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}

	// releases come newest first; the first weekly tag is the current one
	var latest *github.RepositoryRelease
	for _, r := range releases {
		tag := r.GetTagName()
		if strings.HasPrefix(tag, weeklyTagPrefix) && tag != "bundles-latest" {
			latest = r
			break
		}
	}
	if latest == nil {
		return nil, nil
	}

	var bundles []Bundle
	for _, asset := range latest.Assets {
		name := asset.GetName()
		if !strings.HasSuffix(name, bundleExt) {
			continue
		}

		fullName := strings.TrimSuffix(name, bundleExt)
		parts := strings.Split(fullName, "-")

		b := Bundle{
			Name:        parts[0],
			FullName:    fullName,
			Repo:        parts[0] + "/" + parts[0],
			BundleName:  name,
			Version:     "latest",
			Commit:      "unknown",
			SizeBytes:   int64(asset.GetSize()),
			DownloadURL: asset.GetBrowserDownloadURL(),
			GeneratedAt: asset.GetUpdatedAt().Format(time.RFC3339),
			Source:      "weekly",
		}
		if len(parts) > 1 {
			b.Version = parts[1]
		}
		if len(parts) > 2 {
			b.Commit = parts[2]
		}
		bundles = append(bundles, b)
	}
	return bundles, nil
}

// normalizeBundle fills the name fields every lookup depends on.
func normalizeBundle(b *Bundle) {
	if b.Name == "" {
		if i := strings.LastIndex(b.Repo, "/"); i >= 0 {
			b.Name = b.Repo[i+1:]
		} else {
			full := b.FullName
			if full == "" {
				full = strings.TrimSuffix(b.BundleName, bundleExt)
			}
			b.Name = strings.SplitN(full, "-", 2)[0]
		}
	}
	if b.FullName == "" {
		if b.BundleName != "" {
			b.FullName = strings.TrimSuffix(b.BundleName, bundleExt)
		} else {
			b.FullName = b.Name
		}
	}
}

// SelectBundle resolves a bundle by name: exact full_name match first,
// then base-name match picking the most recently generated version.
func SelectBundle(bundles []Bundle, name string) (*Bundle, error) {
	if len(bundles) == 0 {
		return nil, fmt.Errorf("could not fetch bundle registry")
	}

	lower := strings.ToLower(name)

	for i := range bundles {
		if strings.ToLower(bundles[i].FullName) == lower {
			if bundles[i].DownloadURL == "" {
				return nil, fmt.Errorf("no download URL found for bundle %q", name)
			}
			return &bundles[i], nil
		}
	}

	var matching []Bundle
	for _, b := range bundles {
		if strings.ToLower(b.Name) == lower {
			matching = append(matching, b)
		}
	}
	if len(matching) == 0 {
		return nil, fmt.Errorf("bundle %q not found in registry", name)
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].GeneratedAt > matching[j].GeneratedAt
	})
	best := matching[0]
	if best.DownloadURL == "" {
		return nil, fmt.Errorf("no download URL found for bundle %q", name)
	}
	return &best, nil
}

// FindBundle fetches the registry and resolves name to a bundle.
func (c *Client) FindBundle(ctx context.Context, name string) (*Bundle, error) {
	return SelectBundle(c.FetchAvailableBundles(ctx), name)
}

// Download streams a bundle artifact to outputPath. The partial file is
// removed on any failure. progress, when non-nil, receives chunk sizes.
func (c *Client) Download(ctx context.Context, url, outputPath string, progress func(int)) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return errors.NetworkError(err, "download request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %s", resp.Status)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	defer func() {
		closeErr := out.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	buf := make([]byte, 8192)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("write bundle: %w", writeErr)
			}
			if progress != nil {
				progress(n)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read bundle: %w", readErr)
		}
	}
}
