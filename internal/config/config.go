package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// YearPlaceholder is substituted with the season year in Source.URL.
const YearPlaceholder = "{year}"

const (
	defaultListen      = "127.0.0.1:8080"
	defaultRefreshCron = "0 */6 * * *"
	defaultSourceURL   = "https://raw.githubusercontent.com/theOehrly/f1schedule/master/schedule_" + YearPlaceholder + ".json"
	defaultCacheDir    = "./var/cache"
	defaultOutputDir   = "./data"
	defaultIndent      = 4
	defaultTimeoutSec  = 15
	defaultRetries     = 2
	defaultRetryDelay  = 500
)

// SourceConfig describes where season documents are fetched from.
type SourceConfig struct {
	// URL is a template; "{year}" is replaced by the season.
	URL            string `yaml:"url" json:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	Retries        int    `yaml:"retries" json:"retries"`
	RetryDelayMs   int    `yaml:"retry_delay_ms" json:"retry_delay_ms"`
	CacheDir       string `yaml:"cache_dir" json:"cache_dir"`
	UserAgent      string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
}

func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func (s SourceConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}

// OutputConfig controls the local files written per season.
type OutputConfig struct {
	Dir    string `yaml:"dir" json:"dir"`
	Indent int    `yaml:"indent" json:"indent"`
	// Calendar additionally writes <year>.ics next to <year>.json.
	Calendar bool `yaml:"calendar" json:"calendar"`
}

// S3Config enables uploading season files to an S3-compatible bucket.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"-"`
	UseTLS    bool   `yaml:"use_tls" json:"use_tls"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Seasons to sync. Empty means the current UTC year.
	Seasons []int `yaml:"seasons" json:"seasons"`

	// RefreshCron is a standard 5-field cron spec for daemon mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// OnError is "abort" (a bad round fails the season) or "skip".
	OnError string `yaml:"on_error" json:"on_error"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Source SourceConfig `yaml:"source" json:"source"`
	Output OutputConfig `yaml:"output" json:"output"`

	S3        *S3Config        `yaml:"s3,omitempty" json:"s3,omitempty"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Seasons:     []int{},
		RefreshCron: defaultRefreshCron,
		OnError:     "abort",
		LogLevel:    "info",
		Source: SourceConfig{
			URL:            defaultSourceURL,
			TimeoutSeconds: defaultTimeoutSec,
			Retries:        defaultRetries,
			RetryDelayMs:   defaultRetryDelay,
			CacheDir:       defaultCacheDir,
		},
		Output: OutputConfig{
			Dir:      defaultOutputDir,
			Indent:   defaultIndent,
			Calendar: true,
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs
// still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Seasons == nil {
		c.Seasons = []int{}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	c.OnError = strings.ToLower(strings.TrimSpace(c.OnError))
	if c.OnError == "" {
		c.OnError = "abort"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Source.URL == "" {
		c.Source.URL = defaultSourceURL
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = defaultTimeoutSec
	}
	if c.Source.Retries < 0 {
		c.Source.Retries = 0
	}
	if c.Source.RetryDelayMs <= 0 {
		c.Source.RetryDelayMs = defaultRetryDelay
	}
	if c.Source.CacheDir == "" {
		c.Source.CacheDir = defaultCacheDir
	}

	if c.Output.Dir == "" {
		c.Output.Dir = defaultOutputDir
	}
	if c.Output.Indent <= 0 {
		c.Output.Indent = defaultIndent
	}

	// An S3 block without a bucket or endpoint is treated as disabled.
	if c.S3 != nil && (c.S3.Endpoint == "" || c.S3.Bucket == "") {
		c.S3 = nil
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	switch c.OnError {
	case "abort", "skip":
	default:
		errs = append(errs, fmt.Errorf("on_error %q: want abort or skip", c.OnError))
	}
	if !strings.Contains(c.Source.URL, YearPlaceholder) {
		errs = append(errs, fmt.Errorf("source.url %q: missing %s placeholder", c.Source.URL, YearPlaceholder))
	}
	for _, y := range c.Seasons {
		if y < 1950 || y > 9999 {
			errs = append(errs, fmt.Errorf("season %d out of range", y))
		}
	}
	return errors.Join(errs...)
}

// Years returns the configured seasons, or the current year when none are set.
func (c *Config) Years(now time.Time) []int {
	if len(c.Seasons) == 0 {
		return []int{now.UTC().Year()}
	}
	out := make([]int, len(c.Seasons))
	copy(out, c.Seasons)
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is decoded, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Still hand back the defaults so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
