// Package download fetches remote assets and persists them to a blob store.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/metrics"
)

// Options configures a Downloader.
type Options struct {
	// MaxBytes rejects assets larger than this; zero disables the check.
	MaxBytes int64
	Hasher   catalog.Hasher
	Logger   *zap.Logger
}

// BodyLimit returns the fetcher body cap for assets limited to maxBytes. The
// cap sits one byte past the limit so an oversized body stays detectable
// after the transport truncates it. Zero maxBytes means no cap.
func BodyLimit(maxBytes int64) int {
	if maxBytes <= 0 {
		return -1
	}
	return int(maxBytes) + 1
}

// Downloader GETs an asset and writes it to a destination path.
type Downloader struct {
	fetcher  catalog.Fetcher
	store    catalog.BlobStore
	hasher   catalog.Hasher
	maxBytes int64
	logger   *zap.Logger
}

// New builds a Downloader.
func New(fetcher catalog.Fetcher, store catalog.BlobStore, opts Options) (*Downloader, error) {
	if fetcher == nil {
		return nil, errors.New("download: fetcher is required")
	}
	if store == nil {
		return nil, errors.New("download: blob store is required")
	}
	if opts.MaxBytes < 0 {
		return nil, fmt.Errorf("download: max bytes must be >= 0, got %d", opts.MaxBytes)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		fetcher:  fetcher,
		store:    store,
		hasher:   opts.Hasher,
		maxBytes: opts.MaxBytes,
		logger:   logger,
	}, nil
}

// Download fetches url and writes it to destPath, overwriting any existing
// object. It never returns an error: failures are logged, counted and
// reported through the result with OK set to false.
func (d *Downloader) Download(ctx context.Context, url, destPath string) catalog.DownloadResult {
	result := catalog.DownloadResult{URL: url, Path: destPath}
	logger := d.logger.With(zap.String("url", url), zap.String("path", destPath))

	resp, err := d.fetcher.Fetch(ctx, catalog.FetchRequest{URL: url})
	if err == nil {
		err = d.checkResponse(url, resp)
	}
	if err != nil {
		metrics.ObserveDownload(url, "transport_error", 0)
		logger.Warn("asset download failed",
			zap.Int("status", catalog.StatusCode(err)),
			zap.Error(err),
		)
		result.Error = err.Error()
		return result
	}

	contentType := detectContentType(resp)
	if !strings.HasPrefix(contentType, "image/") {
		logger.Warn("asset does not look like an image", zap.String("content_type", contentType))
	}
	result.ContentType = contentType
	result.Bytes = int64(len(resp.Body))
	if d.hasher != nil {
		if sum, hashErr := d.hasher.Hash(resp.Body); hashErr == nil {
			result.Checksum = sum
		}
	}

	uri, err := d.store.PutObject(ctx, destPath, contentType, bytes.NewReader(resp.Body))
	if err != nil {
		if !catalog.IsStorage(err) {
			err = &catalog.StorageError{Path: destPath, Err: err}
		}
		metrics.ObserveDownload(url, "storage_error", 0)
		logger.Warn("asset write failed", zap.Error(err))
		result.Error = err.Error()
		return result
	}

	metrics.ObserveDownload(url, "ok", result.Bytes)
	logger.Info("asset saved",
		zap.String("uri", uri),
		zap.String("size", humanize.Bytes(uint64(result.Bytes))),
		zap.String("content_type", contentType),
		zap.Duration("duration", resp.Duration),
	)
	result.OK = true
	result.URI = uri
	return result
}

func (d *Downloader) checkResponse(url string, resp catalog.FetchResponse) error {
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &catalog.TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	if d.maxBytes <= 0 {
		return nil
	}
	size := int64(len(resp.Body))
	if declared, err := strconv.ParseInt(resp.Headers.Get("Content-Length"), 10, 64); err == nil && declared > size {
		size = declared
	}
	if size > d.maxBytes {
		return &catalog.TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err: fmt.Errorf("asset is %s, limit is %s",
				humanize.Bytes(uint64(size)), humanize.Bytes(uint64(d.maxBytes))),
		}
	}
	return nil
}

// detectContentType sniffs the body, falling back to the declared header
// when sniffing is inconclusive.
func detectContentType(resp catalog.FetchResponse) string {
	detected := mimetype.Detect(resp.Body)
	if detected.Is("application/octet-stream") || detected.Is("text/plain") {
		if declared := resp.Headers.Get("Content-Type"); declared != "" {
			return declared
		}
	}
	return detected.String()
}
