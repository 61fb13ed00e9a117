package tmdb

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

// OriginalSize is the size token used when the API advertises none.
const OriginalSize = "original"

// DefaultPosterSize is the preferred poster width.
const DefaultPosterSize = "w500"

// ConfigSource returns the raw configuration document.
type ConfigSource interface {
	Configuration(ctx context.Context) (map[string]any, error)
}

// Resolver discovers asset-serving parameters once per run.
type Resolver struct {
	source    ConfigSource
	preferred string
	logger    *zap.Logger
}

// NewResolver builds a Resolver preferring the given size token.
func NewResolver(source ConfigSource, preferred string, logger *zap.Logger) *Resolver {
	if preferred == "" {
		preferred = DefaultPosterSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, preferred: preferred, logger: logger}
}

// Resolve fetches the configuration document and selects the base URL and
// size token. Any failure wraps catalog.ErrFatalConfig.
func (r *Resolver) Resolve(ctx context.Context) (catalog.CatalogConfig, error) {
	payload, err := r.source.Configuration(ctx)
	if err != nil {
		return catalog.CatalogConfig{}, fmt.Errorf("%w: configuration request: %w", catalog.ErrFatalConfig, err)
	}

	images, _ := payload["images"].(map[string]any)
	base, ok := stringField(images, "secure_base_url")
	if !ok {
		base, ok = stringField(images, "base_url")
	}
	if !ok {
		return catalog.CatalogConfig{}, fmt.Errorf("%w: images base url missing", catalog.ErrFatalConfig)
	}

	sizes := stringList(images["poster_sizes"])
	cfg := catalog.CatalogConfig{
		AssetBaseURL:   base,
		AssetSizeToken: SelectSizeToken(sizes, r.preferred),
	}
	r.logger.Info("asset configuration resolved",
		zap.String("base_url", cfg.AssetBaseURL),
		zap.String("size", cfg.AssetSizeToken),
		zap.Strings("available_sizes", sizes),
	)
	return cfg, nil
}

// SelectSizeToken picks preferred when available, else the second-to-last
// token, else the first, else OriginalSize.
func SelectSizeToken(available []string, preferred string) string {
	for _, size := range available {
		if size == preferred {
			return size
		}
	}
	switch {
	case len(available) >= 2:
		return available[len(available)-2]
	case len(available) == 1:
		return available[0]
	default:
		return OriginalSize
	}
}

func stringList(raw any) []string {
	entries, _ := raw.([]any)
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if s, ok := entry.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
