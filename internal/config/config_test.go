package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TMDB.APIBaseURL != "https://api.themoviedb.org/3" {
		t.Fatalf("unexpected api base url %q", cfg.TMDB.APIBaseURL)
	}
	if cfg.TMDB.Language != "ru-RU" || cfg.TMDB.DefaultPosterSize != "w500" {
		t.Fatalf("unexpected tmdb defaults: %+v", cfg.TMDB)
	}
	if cfg.Ingest.MaxItems != 1000 || cfg.Ingest.MaxPages != 1 {
		t.Fatalf("unexpected ingest limits: %+v", cfg.Ingest)
	}
	if cfg.Ingest.Delay != 500*time.Millisecond {
		t.Fatalf("expected 500ms delay, got %v", cfg.Ingest.Delay)
	}
	if cfg.Ingest.ThrottleMode != "fixed" || cfg.Storage.Provider != ProviderLocal {
		t.Fatalf("unexpected throttle/provider defaults")
	}
	if cfg.TMDB.MaxRetries != 0 {
		t.Fatalf("retries must be opt-in, got %d", cfg.TMDB.MaxRetries)
	}
	if got := cfg.TMDBTimeout(); got != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", got)
	}
	if err := cfg.RequireTMDB(); err == nil {
		t.Fatal("expected missing token to be reported")
	}
	if err := cfg.RequireRecommend(); err == nil {
		t.Fatal("expected missing api key to be reported")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
tmdb:
  access_token: token-from-file
  language: en-US
  max_retries: 2
ingest:
  max_items: 20
  max_pages: 3
  delay: 2s
  throttle_mode: interval
  output_dir: out
storage:
  provider: gcs
  gcs_bucket: posters-bucket
  prefix: runs
pubsub:
  project_id: demo
  topic_name: runs
server:
  port: 9090
  cors_origin: "*"
news:
  headless: true
  wait_selector: div.news_title
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TMDB.AccessToken != "token-from-file" || cfg.TMDB.Language != "en-US" || cfg.TMDB.MaxRetries != 2 {
		t.Fatalf("expected tmdb overrides, got %+v", cfg.TMDB)
	}
	if cfg.Ingest.MaxItems != 20 || cfg.Ingest.MaxPages != 3 || cfg.Ingest.Delay != 2*time.Second {
		t.Fatalf("expected ingest overrides, got %+v", cfg.Ingest)
	}
	if cfg.Storage.Provider != ProviderGCS || cfg.Storage.GCSBucket != "posters-bucket" {
		t.Fatalf("expected gcs storage, got %+v", cfg.Storage)
	}
	if cfg.Server.Port != 9090 || cfg.Server.CORSOrigin != "*" {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.News.Headless || cfg.News.WaitSelector != "div.news_title" {
		t.Fatalf("expected news overrides, got %+v", cfg.News)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
	if err := cfg.RequireTMDB(); err != nil {
		t.Fatalf("RequireTMDB() error = %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CATALOG_TMDB_ACCESS_TOKEN", "env-token")
	t.Setenv("CATALOG_INGEST_MAX_ITEMS", "7")
	t.Setenv("CATALOG_RECOMMEND_API_KEY", "env-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TMDB.AccessToken != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.TMDB.AccessToken)
	}
	if cfg.Ingest.MaxItems != 7 {
		t.Fatalf("expected env max items, got %d", cfg.Ingest.MaxItems)
	}
	if cfg.Recommend.APIKey != "env-key" {
		t.Fatalf("expected env api key, got %q", cfg.Recommend.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad base url", func(c *Config) { c.TMDB.APIBaseURL = "not a url" }, "tmdb.api_base_url"},
		{"zero timeout", func(c *Config) { c.TMDB.TimeoutSeconds = 0 }, "tmdb.timeout_seconds"},
		{"negative retries", func(c *Config) { c.TMDB.MaxRetries = -1 }, "tmdb.max_retries"},
		{"zero items", func(c *Config) { c.Ingest.MaxItems = 0 }, "ingest.max_items"},
		{"zero pages", func(c *Config) { c.Ingest.MaxPages = 0 }, "ingest.max_pages"},
		{"negative delay", func(c *Config) { c.Ingest.Delay = -time.Second }, "ingest.delay"},
		{"unknown throttle", func(c *Config) { c.Ingest.ThrottleMode = "jitter" }, "ingest.throttle_mode"},
		{"empty output dir", func(c *Config) { c.Ingest.OutputDir = " " }, "ingest.output_dir"},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = ProviderGCS }, "storage.gcs_bucket"},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "s3" }, "storage.provider"},
		{"pubsub without topic", func(c *Config) {
			c.PubSub.ProjectID = "p"
			c.PubSub.TopicName = ""
		}, "pubsub.topic_name"},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad news url", func(c *Config) { c.News.URL = "/news" }, "news.url"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "chatty" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
