// Package config loads and validates catalog-ingest configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Storage providers.
const (
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	TMDB      TMDBConfig      `mapstructure:"tmdb"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Server    ServerConfig    `mapstructure:"server"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	News      NewsConfig      `mapstructure:"news"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// TMDBConfig points the catalog client at the remote API.
type TMDBConfig struct {
	APIBaseURL        string `mapstructure:"api_base_url"`
	AccessToken       string `mapstructure:"access_token"`
	Language          string `mapstructure:"language"`
	DefaultPosterSize string `mapstructure:"default_poster_size"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
	UserAgent         string `mapstructure:"user_agent"`
}

// IngestConfig governs the ingestion loop.
type IngestConfig struct {
	MaxItems      int           `mapstructure:"max_items"`
	MaxPages      int           `mapstructure:"max_pages"`
	Delay         time.Duration `mapstructure:"delay"`
	ThrottleMode  string        `mapstructure:"throttle_mode"`
	OutputDir     string        `mapstructure:"output_dir"`
	ManifestName  string        `mapstructure:"manifest_name"`
	MaxAssetBytes int64         `mapstructure:"max_asset_bytes"`
}

// StorageConfig selects where downloaded assets land.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run summary notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls batch metric export.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

// RecommendConfig configures the text generation backend.
type RecommendConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// NewsConfig configures the news listing scraper.
type NewsConfig struct {
	URL            string `mapstructure:"url"`
	OutputPath     string `mapstructure:"output_path"`
	Headless       bool   `mapstructure:"headless"`
	AutoHeadless   bool   `mapstructure:"auto_headless"`
	WaitSelector   string `mapstructure:"wait_selector"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tmdb.api_base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.access_token", "")
	v.SetDefault("tmdb.language", "ru-RU")
	v.SetDefault("tmdb.default_poster_size", "w500")
	v.SetDefault("tmdb.timeout_seconds", 15)
	v.SetDefault("tmdb.max_retries", 0)
	v.SetDefault("tmdb.user_agent", "catalog-ingest/0.1")
	v.SetDefault("ingest.max_items", 1000)
	v.SetDefault("ingest.max_pages", 1)
	v.SetDefault("ingest.delay", "500ms")
	v.SetDefault("ingest.throttle_mode", "fixed")
	v.SetDefault("ingest.output_dir", "posters")
	v.SetDefault("ingest.manifest_name", "movies.json")
	v.SetDefault("ingest.max_asset_bytes", 20<<20)
	v.SetDefault("storage.provider", ProviderLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "catalog-runs")
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origin", "http://localhost:3000")
	v.SetDefault("recommend.api_key", "")
	v.SetDefault("recommend.model", "gemini-2.0-flash")
	v.SetDefault("recommend.timeout_seconds", 60)
	v.SetDefault("news.url", "https://kg-portal.ru/news/")
	v.SetDefault("news.output_path", "news_data.json")
	v.SetDefault("news.headless", false)
	v.SetDefault("news.auto_headless", false)
	v.SetDefault("news.wait_selector", "div.news_box")
	v.SetDefault("news.user_agent", "catalog-ingest/0.1")
	v.SetDefault("news.timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces structural limits. Credentials are checked by the
// command that needs them.
func (c Config) Validate() error {
	if err := validateURL("tmdb.api_base_url", c.TMDB.APIBaseURL); err != nil {
		return err
	}
	if c.TMDB.TimeoutSeconds <= 0 {
		return fmt.Errorf("tmdb.timeout_seconds must be > 0")
	}
	if c.TMDB.MaxRetries < 0 {
		return fmt.Errorf("tmdb.max_retries must be >= 0")
	}
	if c.Ingest.MaxItems <= 0 {
		return fmt.Errorf("ingest.max_items must be > 0")
	}
	if c.Ingest.MaxPages <= 0 {
		return fmt.Errorf("ingest.max_pages must be > 0")
	}
	if c.Ingest.Delay < 0 {
		return fmt.Errorf("ingest.delay must be >= 0")
	}
	switch c.Ingest.ThrottleMode {
	case "fixed", "interval":
	default:
		return fmt.Errorf("ingest.throttle_mode must be fixed or interval, got %q", c.Ingest.ThrottleMode)
	}
	if c.Ingest.MaxAssetBytes < 0 {
		return fmt.Errorf("ingest.max_asset_bytes must be >= 0")
	}
	switch c.Storage.Provider {
	case ProviderLocal:
		if strings.TrimSpace(c.Ingest.OutputDir) == "" {
			return fmt.Errorf("ingest.output_dir must be set for the local provider")
		}
	case ProviderGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("storage.provider must be local, gcs or memory, got %q", c.Storage.Provider)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Recommend.TimeoutSeconds < 0 {
		return fmt.Errorf("recommend.timeout_seconds must be >= 0")
	}
	if err := validateURL("news.url", c.News.URL); err != nil {
		return err
	}
	if c.News.TimeoutSeconds <= 0 {
		return fmt.Errorf("news.timeout_seconds must be > 0")
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	return nil
}

// RequireTMDB reports whether the ingest credentials are present.
func (c Config) RequireTMDB() error {
	if strings.TrimSpace(c.TMDB.AccessToken) == "" {
		return errors.New("tmdb.access_token must be set (CATALOG_TMDB_ACCESS_TOKEN)")
	}
	return nil
}

// RequireRecommend reports whether the generation credentials are present.
func (c Config) RequireRecommend() error {
	if strings.TrimSpace(c.Recommend.APIKey) == "" {
		return errors.New("recommend.api_key must be set (CATALOG_RECOMMEND_API_KEY)")
	}
	return nil
}

// TMDBTimeout converts the request timeout into a duration.
func (c Config) TMDBTimeout() time.Duration {
	return time.Duration(c.TMDB.TimeoutSeconds) * time.Second
}

// NewsTimeout converts the news fetch timeout into a duration.
func (c Config) NewsTimeout() time.Duration {
	return time.Duration(c.News.TimeoutSeconds) * time.Second
}

// RecommendTimeout converts the generation timeout into a duration.
func (c Config) RecommendTimeout() time.Duration {
	return time.Duration(c.Recommend.TimeoutSeconds) * time.Second
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}
