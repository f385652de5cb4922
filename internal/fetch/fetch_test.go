package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const doc = `{"round_number":{"0":1}}`

func newTestFetcher(t *testing.T, retries int) *Fetcher {
	t.Helper()
	return NewFetcher(Options{
		CacheDir:   t.TempDir(),
		Timeout:    2 * time.Second,
		Retries:    retries,
		RetryDelay: time.Millisecond,
	})
}

func TestSeasonURL(t *testing.T) {
	got := SeasonURL("https://example.com/{year}/schedule_{year}.json", 2024)
	if got != "https://example.com/2024/schedule_2024.json" {
		t.Fatalf("SeasonURL = %q", got)
	}
}

func TestFetchSeasonCachesAndRevalidates(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)
	src := Source{Year: 2024, URL: srv.URL + "/schedule_2024.json"}

	first, err := f.FetchSeason(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if first.FromCache || string(first.Body) != doc {
		t.Fatalf("first fetch = %+v", first)
	}

	second, err := f.FetchSeason(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if !second.FromCache || string(second.Body) != doc {
		t.Fatalf("second fetch = %+v, want cached body", second)
	}
	if hits.Load() != 2 {
		t.Fatalf("server hits = %d, want 2", hits.Load())
	}
}

func TestFetchSeasonFallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1)
	src := Source{Year: 2025, URL: srv.URL}

	if _, err := f.FetchSeason(context.Background(), src); err != nil {
		t.Fatal(err)
	}

	fail.Store(true)
	res, err := f.FetchSeason(context.Background(), src)
	if err != nil {
		t.Fatalf("expected cache fallback, got %v", err)
	}
	if !res.FromCache || string(res.Body) != doc {
		t.Fatalf("res = %+v", res)
	}
}

func TestFetchSeasonStatusErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, 3).FetchSeason(context.Background(), Source{Year: 1999, URL: srv.URL})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 StatusError", err)
	}
}

func TestFetchSeasonRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	res, err := newTestFetcher(t, 2).FetchSeason(context.Background(), Source{Year: 2026, URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache || hits.Load() != 3 {
		t.Fatalf("res = %+v after %d hits", res, hits.Load())
	}
}

func TestFetchSeasonContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestFetcher(t, 5).FetchSeason(ctx, Source{Year: 2026, URL: srv.URL}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestLogURLStripsSecrets(t *testing.T) {
	got := logURL("https://user:pw@example.com/s_2024.json?token=abc#x")
	if got != "https://example.com/s_2024.json" {
		t.Fatalf("logURL = %q", got)
	}
}
