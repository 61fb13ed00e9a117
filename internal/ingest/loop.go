// Package ingest runs the catalog ingestion batch: resolve asset settings,
// list popular items, normalize each detail record and download its poster.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/metrics"
	"github.com/JakeFAU/catalog-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-ingest/internal/tmdb"
)

// Defaults applied by New.
const (
	DefaultMaxItems = 1000
	DefaultMaxPages = 1
)

const publishTimeout = 10 * time.Second

const tracerName = "github.com/JakeFAU/catalog-ingest/internal/ingest"

// Resolver produces the asset configuration for a run.
type Resolver interface {
	Resolve(ctx context.Context) (catalog.CatalogConfig, error)
}

// Catalog lists items and fetches their detail payloads.
type Catalog interface {
	Popular(ctx context.Context, page int) (tmdb.Page, error)
	MovieDetail(ctx context.Context, id int64) (map[string]any, error)
}

// Downloader persists a single asset.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) catalog.DownloadResult
}

// Recorder receives every item record as soon as it is final.
type Recorder interface {
	Record(rec catalog.ItemRecord)
}

// Config controls Loop behavior.
type Config struct {
	MaxItems  int
	MaxPages  int
	Extractor tmdb.Extractor
	// Topic receives the run summary when a publisher is configured.
	Topic string
}

// Loop executes one ingestion run at a time. It is not safe for concurrent
// use; items are processed strictly in listing order.
type Loop struct {
	resolver   Resolver
	catalog    Catalog
	downloader Downloader
	throttle   ratelimit.Throttle
	recorder   Recorder
	publisher  catalog.Publisher
	clock      catalog.Clock
	ids        catalog.IDGenerator
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Loop. Recorder and publisher may be nil.
func New(
	resolver Resolver,
	items Catalog,
	downloader Downloader,
	throttle ratelimit.Throttle,
	recorder Recorder,
	publisher catalog.Publisher,
	clock catalog.Clock,
	ids catalog.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) (*Loop, error) {
	if resolver == nil || items == nil || downloader == nil {
		return nil, errors.New("ingest: resolver, catalog and downloader are required")
	}
	if clock == nil || ids == nil {
		return nil, errors.New("ingest: clock and id generator are required")
	}
	if cfg.MaxItems < 0 || cfg.MaxPages < 0 {
		return nil, fmt.Errorf("ingest: limits must be >= 0 (max_items=%d, max_pages=%d)", cfg.MaxItems, cfg.MaxPages)
	}
	if cfg.MaxItems == 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if throttle == nil {
		throttle = ratelimit.NewFixed(ratelimit.DefaultDelay)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		resolver:   resolver,
		catalog:    items,
		downloader: downloader,
		throttle:   throttle,
		recorder:   recorder,
		publisher:  publisher,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Run performs a single pass. The returned summary is always populated; the
// error is non-nil only when the run aborted or was canceled. Per-item
// failures are counted, never returned.
func (l *Loop) Run(ctx context.Context) (catalog.RunSummary, error) {
	runID, err := l.ids.NewID()
	if err != nil {
		return catalog.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := catalog.RunSummary{
		RunID:     runID,
		State:     catalog.RunStateStart,
		StartedAt: l.clock.Now(),
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingest.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID))

	logger := l.logger.With(zap.String("run_id", runID))
	logger.Info("ingestion run starting",
		zap.Int("max_items", l.cfg.MaxItems),
		zap.Int("max_pages", l.cfg.MaxPages),
	)

	runErr := l.run(ctx, &summary, logger)
	span.SetAttributes(
		attribute.String("state", string(summary.State)),
		attribute.Int("attempted", summary.Attempted),
		attribute.Int("failed", summary.Failed),
	)
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
	}
	l.finish(ctx, &summary, runErr, logger)
	return summary, runErr
}

func (l *Loop) run(ctx context.Context, summary *catalog.RunSummary, logger *zap.Logger) error {
	cfg, err := l.resolver.Resolve(ctx)
	if err != nil {
		summary.State = catalog.RunStateAborted
		if !errors.Is(err, catalog.ErrFatalConfig) {
			err = fmt.Errorf("%w: %w", catalog.ErrFatalConfig, err)
		}
		return err
	}
	summary.Config = cfg

	summary.State = catalog.RunStateListing
	items, err := l.list(ctx, logger)
	if err != nil {
		summary.State = catalog.RunStateAborted
		return err
	}
	summary.Listed = len(items)
	if len(items) == 0 {
		logger.Warn("listing returned no items")
	}

	summary.State = catalog.RunStateItems
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			summary.State = catalog.RunStateCanceled
			return fmt.Errorf("run canceled after %d items: %w", summary.Attempted+summary.Skipped, err)
		}

		rec := l.processItem(ctx, cfg, i+1, item, logger)
		tally(summary, rec)
		metrics.ObserveItem(string(rec.Status))
		if l.recorder != nil {
			l.recorder.Record(rec)
		}
		if rec.Status == catalog.ItemStatusSkipped {
			continue
		}

		if err := l.throttle.Pause(ctx); err != nil {
			summary.State = catalog.RunStateCanceled
			return fmt.Errorf("run canceled after %d items: %w", summary.Attempted+summary.Skipped, err)
		}
	}

	summary.State = catalog.RunStateComplete
	return nil
}

// list gathers summaries from up to MaxPages pages. Only a failure of the
// first page aborts the run.
func (l *Loop) list(ctx context.Context, logger *zap.Logger) ([]catalog.ItemSummary, error) {
	var items []catalog.ItemSummary
	for page := 1; page <= l.cfg.MaxPages && len(items) < l.cfg.MaxItems; page++ {
		result, err := l.catalog.Popular(ctx, page)
		if err != nil {
			if page == 1 {
				if errors.Is(err, catalog.ErrListing) {
					return nil, err
				}
				return nil, fmt.Errorf("%w: %w", catalog.ErrListing, err)
			}
			logger.Warn("listing page failed, keeping items gathered so far",
				zap.Int("page", page),
				zap.Int("items", len(items)),
				zap.Error(err),
			)
			break
		}
		items = append(items, result.Results...)
		logger.Debug("listing page fetched",
			zap.Int("page", page),
			zap.Int("results", len(result.Results)),
			zap.Int("total_pages", result.TotalPages),
		)
		if result.LastPage() {
			break
		}
	}
	if len(items) > l.cfg.MaxItems {
		items = items[:l.cfg.MaxItems]
	}
	return items, nil
}

// processItem handles one listed item. It never panics.
func (l *Loop) processItem(
	ctx context.Context,
	cfg catalog.CatalogConfig,
	position int,
	item catalog.ItemSummary,
	logger *zap.Logger,
) (rec catalog.ItemRecord) {
	rec = catalog.ItemRecord{Position: position, Summary: item}
	logger = logger.With(zap.Int("position", position), zap.Int64("item_id", item.ID))

	defer func() {
		if r := recover(); r != nil {
			rec.Status = catalog.ItemStatusPanicked
			rec.Error = fmt.Sprint(r)
			logger.Error("item processing panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if !item.HasID() {
		rec.Status = catalog.ItemStatusSkipped
		logger.Info("skipping listing entry without id", zap.String("title", item.Title))
		return rec
	}

	payload, err := l.catalog.MovieDetail(ctx, item.ID)
	if err != nil {
		rec.Status = catalog.ItemStatusDetailFailed
		rec.Error = err.Error()
		logger.Warn("detail unavailable, skipping item", zap.Error(err))
		return rec
	}

	detail := l.cfg.Extractor.ExtractDetail(item.ID, payload)
	rec.Detail = &detail
	if len(detail.Defaulted) > 0 {
		logger.Debug("detail fields defaulted", zap.Strings("fields", detail.Defaulted))
	}

	switch {
	case !detail.HasAsset():
		rec.Status = catalog.ItemStatusNoAsset
		logger.Info("item has no poster", zap.String("title", detail.Title))
		return rec
	case cfg.AssetBaseURL == "":
		rec.Status = catalog.ItemStatusDownloadFailed
		rec.Error = "cannot build asset url: base url unresolved"
		logger.Warn("cannot build poster url", zap.String("title", detail.Title))
		return rec
	}

	url := cfg.AssetURL(detail.AssetPath)
	dest := catalog.AssetFilename(detail.Title, detail.AssetPath)
	result := l.downloader.Download(ctx, url, dest)
	rec.Download = &result
	if !result.OK {
		rec.Status = catalog.ItemStatusDownloadFailed
		rec.Error = result.Error
		return rec
	}

	rec.Status = catalog.ItemStatusCompleted
	logger.Info("item ingested",
		zap.String("title", detail.Title),
		zap.String("release_year", detail.ReleaseYear),
		zap.String("rating", detail.Rating.String()),
		zap.String("file", dest),
	)
	return rec
}

func tally(summary *catalog.RunSummary, rec catalog.ItemRecord) {
	switch {
	case rec.Status == catalog.ItemStatusSkipped:
		summary.Skipped++
		return
	case rec.Status.Succeeded():
		summary.Completed++
	default:
		summary.Failed++
	}
	summary.Attempted++
	if rec.Download != nil && rec.Download.OK {
		summary.Downloaded++
		summary.Bytes += rec.Download.Bytes
	}
}

func (l *Loop) finish(ctx context.Context, summary *catalog.RunSummary, runErr error, logger *zap.Logger) {
	summary.FinishedAt = l.clock.Now()
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	metrics.ObserveRun(string(summary.State), summary.Listed, summary.Attempted, summary.Completed, summary.Failed)

	fields := []zap.Field{
		zap.String("state", string(summary.State)),
		zap.Int("listed", summary.Listed),
		zap.Int("attempted", summary.Attempted),
		zap.Int("completed", summary.Completed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("downloaded", summary.Downloaded),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	}
	if runErr != nil {
		logger.Error("ingestion run ended early", append(fields, zap.Error(runErr))...)
	} else {
		logger.Info("ingestion run complete", fields...)
	}

	l.publish(ctx, *summary, logger)
}

func (l *Loop) publish(ctx context.Context, summary catalog.RunSummary, logger *zap.Logger) {
	if l.publisher == nil || l.cfg.Topic == "" {
		return
	}
	// The summary is still worth sending after an interrupt.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	msgID, err := l.publisher.Publish(pubCtx, l.cfg.Topic, summary)
	if err != nil {
		logger.Warn("publish run summary failed", zap.String("topic", l.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("run summary published", zap.String("topic", l.cfg.Topic), zap.String("message_id", msgID))
}
