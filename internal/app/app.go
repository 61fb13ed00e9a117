// Package app initializes and holds long-lived services, acting as the
// dependency injection container for the commands.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/api"
	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/clock/system"
	"github.com/JakeFAU/catalog-ingest/internal/config"
	"github.com/JakeFAU/catalog-ingest/internal/download"
	collyfetcher "github.com/JakeFAU/catalog-ingest/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/catalog-ingest/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-ingest/internal/hash/sha256"
	"github.com/JakeFAU/catalog-ingest/internal/headless/detector"
	"github.com/JakeFAU/catalog-ingest/internal/id/uuid"
	"github.com/JakeFAU/catalog-ingest/internal/ingest"
	"github.com/JakeFAU/catalog-ingest/internal/news"
	"github.com/JakeFAU/catalog-ingest/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/catalog-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-ingest/internal/recommend"
	gcsstorage "github.com/JakeFAU/catalog-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/catalog-ingest/internal/storage/local"
	memorystorage "github.com/JakeFAU/catalog-ingest/internal/storage/memory"
	"github.com/JakeFAU/catalog-ingest/internal/telemetry"
	"github.com/JakeFAU/catalog-ingest/internal/tmdb"
)

// ServiceName identifies this process in traces.
const ServiceName = "catalog-ingest"

// App holds the shared services for one command invocation.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	fetcher      *collyfetcher.Fetcher
	assetFetcher *collyfetcher.Fetcher
	store        catalog.BlobStore
	publisher    catalog.Publisher
	closers      []func()
}

// New creates the App. Remote clients are only dialed when the configuration
// selects them.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.TMDB.UserAgent,
			Timeout:   cfg.TMDBTimeout(),
		}),
		assetFetcher: newAssetFetcher(cfg),
	}

	tp, err := telemetry.InitTracerProvider(ctx, ServiceName)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	})

	store, err := a.newBlobStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	publisher, err := a.newPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.publisher = publisher

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
	)
	return a, nil
}

// newAssetFetcher builds the poster fetcher. Its body cap sits past
// ingest.max_asset_bytes so the downloader sees oversized assets instead of
// silently truncated ones.
func newAssetFetcher(cfg config.Config) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.TMDB.UserAgent,
		Timeout:     cfg.TMDBTimeout(),
		MaxBodySize: download.BodyLimit(cfg.Ingest.MaxAssetBytes),
	})
}

func (a *App) newBlobStore(ctx context.Context) (catalog.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case config.ProviderGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("gcs client close failed", zap.Error(err))
			}
		})
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		return store, nil
	case config.ProviderMemory:
		return memorystorage.NewBlobStore(), nil
	default:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Ingest.OutputDir})
		if err != nil {
			return nil, fmt.Errorf("init local store: %w", err)
		}
		return store, nil
	}
}

// newPublisher returns nil when no Pub/Sub project is configured; the loop
// then skips publishing.
func (a *App) newPublisher(ctx context.Context) (catalog.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := pubsubpublisher.New(client.Publisher(a.cfg.PubSub.TopicName))
	a.closers = append(a.closers, func() {
		publisher.Stop()
		if err := client.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	})
	return publisher, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// BlobStore returns the configured asset store.
func (a *App) BlobStore() catalog.BlobStore {
	return a.store
}

// Publisher returns the run summary publisher, nil when publishing is off.
func (a *App) Publisher() catalog.Publisher {
	return a.publisher
}

// IngestLoop wires the catalog client, resolver, downloader and throttle into
// a Loop that reports each item to recorder.
func (a *App) IngestLoop(recorder ingest.Recorder) (*ingest.Loop, error) {
	if err := a.cfg.RequireTMDB(); err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrFatalConfig, err)
	}
	client, err := tmdb.NewClient(a.fetcher, tmdb.Options{
		BaseURL:     a.cfg.TMDB.APIBaseURL,
		AccessToken: a.cfg.TMDB.AccessToken,
		Language:    a.cfg.TMDB.Language,
		MaxRetries:  a.cfg.TMDB.MaxRetries,
		Logger:      a.logger.Named("tmdb"),
	})
	if err != nil {
		return nil, fmt.Errorf("init catalog client: %w", err)
	}
	resolver := tmdb.NewResolver(client, a.cfg.TMDB.DefaultPosterSize, a.logger.Named("resolver"))

	downloader, err := download.New(a.assetFetcher, a.store, download.Options{
		MaxBytes: a.cfg.Ingest.MaxAssetBytes,
		Hasher:   sha256.New(),
		Logger:   a.logger.Named("download"),
	})
	if err != nil {
		return nil, fmt.Errorf("init downloader: %w", err)
	}

	throttle, err := ratelimit.New(a.cfg.Ingest.ThrottleMode, a.cfg.Ingest.Delay)
	if err != nil {
		return nil, fmt.Errorf("init throttle: %w", err)
	}

	loop, err := ingest.New(
		resolver,
		client,
		downloader,
		throttle,
		recorder,
		a.publisher,
		system.New(),
		uuid.New(),
		ingest.Config{
			MaxItems: a.cfg.Ingest.MaxItems,
			MaxPages: a.cfg.Ingest.MaxPages,
			Topic:    a.cfg.PubSub.TopicName,
		},
		a.logger.Named("ingest"),
	)
	if err != nil {
		return nil, fmt.Errorf("init ingest loop: %w", err)
	}
	return loop, nil
}

// ManifestWriter returns a writer that stores the run manifest next to the
// assets.
func (a *App) ManifestWriter() *ingest.ManifestWriter {
	return ingest.NewManifestWriter(a.store, a.cfg.Ingest.ManifestName)
}

// NewsScraper builds the news scraper. With news.headless the page is always
// rendered by Chrome; with news.auto_headless Chrome is only used when the
// direct fetch looks client-rendered. The returned release func shuts the
// browser down.
func (a *App) NewsScraper() (*news.Scraper, func(), error) {
	release := func() {}
	var renderer *headlessfetcher.Renderer
	if a.cfg.News.Headless || a.cfg.News.AutoHeadless {
		r, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         a.cfg.News.UserAgent,
			NavigationTimeout: a.cfg.NewsTimeout(),
			WaitSelector:      a.cfg.News.WaitSelector,
			SettleDelay:       time.Second,
		})
		if err != nil {
			return nil, release, fmt.Errorf("init headless renderer: %w", err)
		}
		renderer = r
		release = r.Close
	}

	var fetcher catalog.Fetcher
	if a.cfg.News.Headless {
		fetcher = renderer
	} else {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: a.cfg.News.UserAgent,
			Timeout:   a.cfg.NewsTimeout(),
		})
	}

	scraper, err := news.NewScraper(fetcher, system.New(), news.Config{
		URL:       a.cfg.News.URL,
		UserAgent: a.cfg.News.UserAgent,
	}, a.logger.Named("news"))
	if err != nil {
		release()
		return nil, func() {}, fmt.Errorf("init news scraper: %w", err)
	}
	if a.cfg.News.AutoHeadless && !a.cfg.News.Headless {
		scraper.WithFallback(renderer, detector.NewHeuristic(0, a.cfg.News.WaitSelector))
	}
	return scraper, release, nil
}

// NewsOutput returns the store and object name news records are saved to.
// The local provider writes news.output_path as given; other providers use
// it as the object name.
func (a *App) NewsOutput() (catalog.BlobStore, string, error) {
	if a.cfg.Storage.Provider != config.ProviderLocal && a.cfg.Storage.Provider != "" {
		return a.store, filepath.ToSlash(a.cfg.News.OutputPath), nil
	}
	dir, name := filepath.Split(a.cfg.News.OutputPath)
	if dir == "" {
		dir = "."
	}
	store, err := localstorage.New(localstorage.Config{BaseDir: dir})
	if err != nil {
		return nil, "", fmt.Errorf("init news store: %w", err)
	}
	return store, name, nil
}

// RecommendServer builds the HTTP server backed by Gemini.
func (a *App) RecommendServer(ctx context.Context) (*api.Server, error) {
	if err := a.cfg.RequireRecommend(); err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrFatalConfig, err)
	}
	generator, err := recommend.NewGemini(ctx, recommend.GeminiConfig{
		APIKey:  a.cfg.Recommend.APIKey,
		Model:   a.cfg.Recommend.Model,
		Timeout: a.cfg.RecommendTimeout(),
	}, a.logger.Named("recommend"))
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}
	return a.NewServer(generator), nil
}

// NewServer wraps generator in the HTTP API.
func (a *App) NewServer(generator recommend.Generator) *api.Server {
	return api.NewServer(generator, api.Config{
		CORSOrigin: a.cfg.Server.CORSOrigin,
	}, a.logger.Named("api"))
}

// Close shuts down remote clients in reverse order and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}
