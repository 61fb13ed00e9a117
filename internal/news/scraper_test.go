package news

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/clock/system"
	collyfetcher "github.com/JakeFAU/catalog-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-ingest/internal/headless/detector"
	"github.com/JakeFAU/catalog-ingest/internal/storage/memory"
)

func newsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/news/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "news-test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listingHTML))
	})
	mux.HandleFunc("/down/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewScraperValidation(t *testing.T) {
	t.Parallel()

	fetcher := collyfetcher.New(collyfetcher.Config{})
	_, err := NewScraper(nil, system.New(), Config{}, nil)
	require.Error(t, err)
	_, err = NewScraper(fetcher, system.New(), Config{URL: "not-a-url"}, nil)
	require.Error(t, err)

	s, err := NewScraper(fetcher, system.New(), Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, s.cfg.URL)
}

func TestScrapeResolvesAgainstPage(t *testing.T) {
	t.Parallel()

	srv := newsServer(t)
	clk := system.NewStepping(time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), time.Second)
	s, err := NewScraper(collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}), clk, Config{
		URL:       srv.URL + "/news/",
		UserAgent: "news-test-agent",
	}, nil)
	require.NoError(t, err)

	records, err := s.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "news_20240512_1", records[0].ID)
	assert.Equal(t, srv.URL+"/news/80001-premera", *records[0].Link)
	assert.Equal(t, []string{srv.URL + "/img/a.jpg"}, records[0].Images)
}

func TestScrapeTransportFailure(t *testing.T) {
	t.Parallel()

	srv := newsServer(t)
	s, err := NewScraper(collyfetcher.New(collyfetcher.Config{}), system.New(), Config{URL: srv.URL + "/down/"}, nil)
	require.NoError(t, err)

	_, err = s.Scrape(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, catalog.StatusCode(err))
}

func TestSave(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	link := "https://kg-portal.ru/news/1?a=1&b=2"
	records := []Record{{ID: "news_20240512_1", Title: "Премьера <18+>", Link: &link, Images: []string{}}}

	uri, err := Save(context.Background(), store, "news.json", records)
	require.NoError(t, err)
	assert.Equal(t, "memory://news.json", uri)

	obj, ok := store.Get("news.json")
	require.True(t, ok)
	body := string(obj.Data)
	assert.Contains(t, body, "Премьера <18+>")
	assert.Contains(t, body, "a=1&b=2")
	assert.Contains(t, body, "\n        \"id\"")

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(obj.Data, &decoded))
	assert.Nil(t, decoded[0]["author"])
}

func TestSaveRefusesEmpty(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	_, err := Save(context.Background(), store, "news.json", nil)
	require.ErrorIs(t, err, ErrNoRecords)
	assert.Empty(t, store.Paths())
}

type pageFetcher struct {
	body     string
	headless bool
	err      error
	calls    int
}

func (p *pageFetcher) Fetch(_ context.Context, req catalog.FetchRequest) (catalog.FetchResponse, error) {
	p.calls++
	if p.err != nil {
		return catalog.FetchResponse{}, p.err
	}
	return catalog.FetchResponse{
		URL:          req.URL,
		StatusCode:   http.StatusOK,
		Body:         []byte(p.body),
		UsedHeadless: p.headless,
	}, nil
}

func TestScrapePromotesToFallback(t *testing.T) {
	t.Parallel()

	direct := &pageFetcher{body: `<html><body><div id="app"></div></body></html>`}
	rendered := &pageFetcher{body: listingHTML, headless: true}
	scraper, err := NewScraper(direct, system.New(), Config{URL: "https://news.example/news/"}, nil)
	require.NoError(t, err)
	scraper.WithFallback(rendered, detector.NewHeuristic(0, "div.news_box"))

	records, err := scraper.Scrape(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, records)
	assert.Equal(t, 1, direct.calls)
	assert.Equal(t, 1, rendered.calls)
}

func TestScrapeSkipsFallbackWhenContentPresent(t *testing.T) {
	t.Parallel()

	direct := &pageFetcher{body: listingHTML}
	rendered := &pageFetcher{body: listingHTML, headless: true}
	scraper, err := NewScraper(direct, system.New(), Config{URL: "https://news.example/news/"}, nil)
	require.NoError(t, err)
	scraper.WithFallback(rendered, detector.NewHeuristic(0, "div.news_box"))

	_, err = scraper.Scrape(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rendered.calls)
}

func TestScrapeKeepsDirectResultWhenFallbackFails(t *testing.T) {
	t.Parallel()

	direct := &pageFetcher{body: `<html><body></body></html>`}
	rendered := &pageFetcher{err: errors.New("chrome missing")}
	scraper, err := NewScraper(direct, system.New(), Config{URL: "https://news.example/news/"}, nil)
	require.NoError(t, err)
	scraper.WithFallback(rendered, nil)

	records, err := scraper.Scrape(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, rendered.calls)
}
