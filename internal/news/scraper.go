package news

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/metrics"
)

// DefaultURL is the listing page scraped when none is configured.
const DefaultURL = "https://kg-portal.ru/news/"

// ErrNoRecords means a scrape produced nothing, so existing output is kept.
var ErrNoRecords = errors.New("no news records extracted")

// Config controls a Scraper.
type Config struct {
	URL              string
	UserAgent        string
	TitlePlaceholder string
}

// Scraper fetches a listing page and extracts its records.
type Scraper struct {
	fetcher catalog.Fetcher
	clock   catalog.Clock
	cfg     Config
	base    *url.URL
	logger  *zap.Logger

	fallback catalog.Fetcher
	promoter Promoter
}

// NewScraper builds a Scraper.
func NewScraper(fetcher catalog.Fetcher, clock catalog.Clock, cfg Config, logger *zap.Logger) (*Scraper, error) {
	if fetcher == nil || clock == nil {
		return nil, errors.New("news: fetcher and clock are required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("news: invalid url %q", cfg.URL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{fetcher: fetcher, clock: clock, cfg: cfg, base: base, logger: logger}, nil
}

// Promoter decides whether a fetched page must be rendered before extraction.
type Promoter interface {
	ShouldPromote(resp catalog.FetchResponse) bool
}

// WithFallback makes Scrape re-fetch the page through fallback, typically a
// headless renderer, when promoter flags the first response or it yields no
// records.
func (s *Scraper) WithFallback(fallback catalog.Fetcher, promoter Promoter) *Scraper {
	s.fallback = fallback
	s.promoter = promoter
	return s
}

// Scrape fetches the page and returns its records.
func (s *Scraper) Scrape(ctx context.Context) ([]Record, error) {
	resp, records, err := s.scrapeWith(ctx, s.fetcher)
	if err != nil {
		return nil, err
	}
	if s.fallback != nil && (len(records) == 0 || (s.promoter != nil && s.promoter.ShouldPromote(resp))) {
		s.logger.Info("promoting news page to headless render",
			zap.String("url", resp.URL),
			zap.Int("records", len(records)),
		)
		rendered, renderedRecords, renderErr := s.scrapeWith(ctx, s.fallback)
		switch {
		case renderErr != nil:
			s.logger.Warn("headless render failed; keeping direct fetch", zap.Error(renderErr))
		case len(renderedRecords) >= len(records):
			resp, records = rendered, renderedRecords
		}
	}
	metrics.ObserveNewsRecords(len(records))
	s.logger.Info("news page scraped",
		zap.String("url", resp.URL),
		zap.Int("records", len(records)),
		zap.Bool("headless", resp.UsedHeadless),
	)
	return records, nil
}

func (s *Scraper) scrapeWith(ctx context.Context, fetcher catalog.Fetcher) (catalog.FetchResponse, []Record, error) {
	req := catalog.FetchRequest{URL: s.cfg.URL, Headers: http.Header{}}
	if s.cfg.UserAgent != "" {
		req.Headers.Set("User-Agent", s.cfg.UserAgent)
	}
	resp, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return resp, nil, fmt.Errorf("fetch news page: %w", err)
	}

	base := s.base
	if final, parseErr := url.Parse(resp.URL); parseErr == nil && final.Host != "" {
		base = final
	}
	extractor := Extractor{Base: base, TitlePlaceholder: s.cfg.TitlePlaceholder}
	records, err := extractor.ExtractHTML(resp.Body, s.clock.Now())
	if err != nil {
		return resp, nil, err
	}
	return resp, records, nil
}

// Save writes records as indented JSON to name in store. An empty slice is
// rejected with ErrNoRecords so a failed scrape never clobbers good output.
func Save(ctx context.Context, store catalog.BlobStore, name string, records []Record) (string, error) {
	if len(records) == 0 {
		return "", ErrNoRecords
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return "", fmt.Errorf("encode news records: %w", err)
	}
	uri, err := store.PutObject(ctx, name, "application/json", &buf)
	if err != nil {
		return "", fmt.Errorf("save news records: %w", err)
	}
	return uri, nil
}
