// Package tmdb talks to The Movie Database v3 API: authenticated JSON GETs,
// asset configuration discovery and detail normalization.
package tmdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/metrics"
)

// DefaultBaseURL is the public v3 API root.
const DefaultBaseURL = "https://api.themoviedb.org/3"

const (
	defaultRetryInitial = 500 * time.Millisecond
	maxBodySnippet      = 256
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	AccessToken string
	// Language is sent with listing and detail calls, e.g. "ru-RU".
	Language string
	// MaxRetries bounds extra attempts for temporary transport failures.
	// Zero issues exactly one request per call.
	MaxRetries   int
	RetryInitial time.Duration
	Logger       *zap.Logger
}

// Client performs authenticated GETs against the catalog API.
type Client struct {
	fetcher catalog.Fetcher
	baseURL string
	token   string
	lang    string
	retries int
	initial time.Duration
	logger  *zap.Logger
}

// NewClient wires a Client on top of fetcher.
func NewClient(fetcher catalog.Fetcher, opts Options) (*Client, error) {
	if fetcher == nil {
		return nil, errors.New("tmdb: fetcher is required")
	}
	if strings.TrimSpace(opts.AccessToken) == "" {
		return nil, errors.New("tmdb: access token is required")
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("tmdb: max retries must be >= 0, got %d", opts.MaxRetries)
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("tmdb: invalid base url %q: %w", opts.BaseURL, err)
	}
	initial := opts.RetryInitial
	if initial <= 0 {
		initial = defaultRetryInitial
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		fetcher: fetcher,
		baseURL: base,
		token:   opts.AccessToken,
		lang:    opts.Language,
		retries: opts.MaxRetries,
		initial: initial,
		logger:  logger,
	}, nil
}

// Fetch GETs endpoint with params and decodes the body as a JSON object.
// Failures are *catalog.TransportError or *catalog.DecodeError; both are
// logged here and left to the caller to skip or abort on.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	target := c.endpointURL(endpoint, params)
	start := time.Now()

	resp, err := c.get(ctx, target)
	if err != nil {
		metrics.ObserveRemoteRequest(endpoint, "transport_error", time.Since(start))
		c.logger.Warn("catalog request failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", catalog.StatusCode(err)),
			zap.Error(err),
		)
		return nil, err
	}

	payload, err := decodeObject(target, resp.Body)
	if err != nil {
		metrics.ObserveRemoteRequest(endpoint, "decode_error", time.Since(start))
		c.logger.Warn("catalog response not decodable",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.ObserveRemoteRequest(endpoint, "ok", time.Since(start))
	c.logger.Debug("catalog request ok",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return payload, nil
}

// Configuration fetches the API configuration document.
func (c *Client) Configuration(ctx context.Context) (map[string]any, error) {
	return c.Fetch(ctx, "/configuration", nil)
}

// Popular fetches one page of the popularity-ranked movie listing.
func (c *Client) Popular(ctx context.Context, page int) (Page, error) {
	params := c.languageParams()
	params.Set("page", strconv.Itoa(page))
	payload, err := c.Fetch(ctx, "/movie/popular", params)
	if err != nil {
		return Page{}, err
	}
	return parsePage(payload)
}

// MovieDetail fetches a movie with its credits and videos appended.
func (c *Client) MovieDetail(ctx context.Context, id int64) (map[string]any, error) {
	params := c.languageParams()
	params.Set("append_to_response", "credits,videos")
	return c.Fetch(ctx, "/movie/"+strconv.FormatInt(id, 10), params)
}

func (c *Client) languageParams() url.Values {
	params := url.Values{}
	if c.lang != "" {
		params.Set("language", c.lang)
	}
	return params
}

func (c *Client) endpointURL(endpoint string, params url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return target
}

func (c *Client) get(ctx context.Context, target string) (catalog.FetchResponse, error) {
	req := catalog.FetchRequest{
		URL: target,
		Headers: http.Header{
			"Authorization": {"Bearer " + c.token},
			"Accept":        {"application/json"},
		},
	}

	attempt := 0
	op := func() (catalog.FetchResponse, error) {
		attempt++
		resp, err := c.fetcher.Fetch(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return resp, backoff.Permanent(err)
		}
		return resp, err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Info("retrying catalog request",
			zap.String("url", redactQuery(target)),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	resp, err := backoff.RetryNotifyWithData(op, c.policy(ctx), notify)
	if err != nil {
		if !catalog.IsTransport(err) {
			err = &catalog.TransportError{URL: target, Err: err}
		}
		return catalog.FetchResponse{}, err
	}
	return resp, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	if c.retries == 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initial
	eb.MaxInterval = 10 * time.Second
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.retries)), ctx)
}

func retryable(err error) bool {
	var te *catalog.TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.Temporary()
}

func decodeObject(target string, body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, &catalog.DecodeError{URL: target, Body: snippet(body), Err: err}
	}
	if dec.More() {
		return nil, &catalog.DecodeError{URL: target, Body: snippet(body), Err: errors.New("trailing data after JSON value")}
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, &catalog.DecodeError{
			URL:  target,
			Body: snippet(body),
			Err:  fmt.Errorf("expected JSON object, got %T", value),
		}
	}
	return obj, nil
}

func snippet(body []byte) string {
	if len(body) <= maxBodySnippet {
		return string(body)
	}
	return string(body[:maxBodySnippet]) + "..."
}

// redactQuery drops the query string so api keys passed as params never hit logs.
func redactQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
