package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "racesched.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != defaultListen || cfg.Output.Indent != 4 || !cfg.Output.Calendar {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	// Second load reads the file back.
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Source.URL != cfg.Source.URL || again.RefreshCron != cfg.RefreshCron {
		t.Errorf("reloaded config differs: %+v", again)
	}
}

func TestLoadPartialIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "racesched.yaml")
	yml := `
seasons: [2024, 2025]
on_error: SKIP
source:
  url: https://example.com/schedule_{year}.json
s3:
  endpoint: ""
  bucket: schedules
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OnError != "skip" {
		t.Errorf("OnError = %q", cfg.OnError)
	}
	if cfg.Source.TimeoutSeconds != defaultTimeoutSec || cfg.Source.CacheDir != defaultCacheDir {
		t.Errorf("source defaults not applied: %+v", cfg.Source)
	}
	if cfg.S3 != nil {
		t.Errorf("S3 without endpoint should be disabled, got %+v", cfg.S3)
	}
	if got := cfg.Years(time.Now()); len(got) != 2 || got[0] != 2024 || got[1] != 2025 {
		t.Errorf("Years() = %v", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"cron":        "refresh: \"every day\"\n",
		"policy":      "on_error: retry\n",
		"placeholder": "source:\n  url: https://example.com/schedule.json\n",
		"season":      "seasons: [24]\n",
	}
	for name, yml := range cases {
		path := filepath.Join(t.TempDir(), name+".yaml")
		if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load succeeded, want error", name)
		}
	}
}

func TestYearsDefaultsToCurrent(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	if got := cfg.Years(now); len(got) != 1 || got[0] != 2026 {
		t.Fatalf("Years() = %v, want [2026]", got)
	}
}

func TestWriteFileAtomicLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2024.json")
	if err := WriteFileAtomic(path, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	b, _ := os.ReadFile(path)
	if string(b) != "[]" {
		t.Errorf("content = %q", b)
	}
}
