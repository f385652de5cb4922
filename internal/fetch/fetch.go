package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	appLog "racesched/internal/log"
)

const (
	defaultCacheDir = "./var/cache"
	defaultTimeout  = 15 * time.Second
	defaultUA       = "racesched/1.0"
	maxBodyBytes    = 16 << 20
)

// Source is one season document to fetch.
type Source struct {
	Year int
	URL  string
}

// SeasonURL expands the "{year}" placeholder of a URL template.
func SeasonURL(template string, year int) string {
	return strings.ReplaceAll(template, "{year}", strconv.Itoa(year))
}

// Result contains the outcome of fetching a single season.
type Result struct {
	Source    Source
	Body      []byte // raw schedule document, fresh or cached
	FromCache bool   // true if the cached body was served
}

// StatusError is returned for a non-2xx response with no cache to fall back on.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "unexpected HTTP status: " + e.Status
}

// cacheEntry holds HTTP cache metadata for a single URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Options configures a Fetcher. Zero values select defaults.
type Options struct {
	CacheDir   string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	UserAgent  string
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Fetcher downloads season documents with conditional requests
// (ETag / Last-Modified) backed by a disk cache.
type Fetcher struct {
	client     *http.Client
	cacheDir   string
	retries    int
	retryDelay time.Duration
	userAgent  string
}

func NewFetcher(opts Options) *Fetcher {
	if opts.CacheDir == "" {
		opts.CacheDir = defaultCacheDir
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUA
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Fetcher{
		client:     client,
		cacheDir:   opts.CacheDir,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		userAgent:  opts.UserAgent,
	}
}

// FetchSeason fetches one season document. Network errors and 5xx
// responses are retried; if every attempt fails, a cached body is served
// when one exists.
func (f *Fetcher) FetchSeason(ctx context.Context, src Source) (Result, error) {
	if src.URL == "" {
		return Result{}, errors.New("source URL is empty")
	}

	cachePath := f.cachePathForURL(src.URL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return Result{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	appLog.Info("season fetch start", "year", src.Year, "url", logURL(src.URL))

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			appLog.Warn("season fetch retry", "year", src.Year, "attempt", attempt, "err", lastErr)
			if err := sleep(ctx, time.Duration(attempt)*f.retryDelay); err != nil {
				return Result{}, err
			}
		}

		res, retry, err := f.attempt(ctx, src, cachePath, meta, cachedBody)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}

	if len(cachedBody) > 0 {
		appLog.Error("season fetch failed, using cached body", lastErr, "year", src.Year, "url", logURL(src.URL))
		return Result{Source: src, Body: cachedBody, FromCache: true}, nil
	}
	return Result{}, fmt.Errorf("fetch season %d: %w", src.Year, lastErr)
}

// attempt performs one request. retry reports whether the failure is
// worth another try.
func (f *Fetcher) attempt(ctx context.Context, src Source, cachePath string, meta cacheEntry, cachedBody []byte) (res Result, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, false, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	// Conditional headers only make sense when the cached body still exists.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return Result{}, false, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("season fetch not modified; using cache", "year", src.Year, "url", logURL(src.URL))
		return Result{Source: src, Body: cachedBody, FromCache: true}, false, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return Result{}, true, err
		}

		newMeta := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// The fresh body is still good.
			appLog.Error("season cache save failed", err, "year", src.Year, "url", logURL(src.URL))
		}

		appLog.Info("season fetch success", "year", src.Year, "url", logURL(src.URL), "status", resp.StatusCode, "bytes", len(body))
		return Result{Source: src, Body: body}, false, nil

	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		serr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		return Result{}, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, serr
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *Fetcher) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.json"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.json"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// logURL drops query string and credentials before a URL is logged.
func logURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable url)"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
