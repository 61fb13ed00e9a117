package tmdb

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

// DefaultOverview replaces a missing overview.
const DefaultOverview = "Описание отсутствует."

const (
	castLimit   = 3
	missingName = "?"
	directorJob = "Director"
)

// Page is one page of a ranked listing.
type Page struct {
	Page         int
	TotalPages   int
	TotalResults int
	Results      []catalog.ItemSummary
}

// LastPage reports whether no further pages exist after this one.
func (p Page) LastPage() bool {
	return len(p.Results) == 0 || (p.TotalPages > 0 && p.Page >= p.TotalPages)
}

// parsePage reads a listing payload. A payload without a results array is a
// listing failure, not an empty page.
func parsePage(payload map[string]any) (Page, error) {
	rows, ok := payload["results"].([]any)
	if !ok {
		return Page{}, fmt.Errorf("%w: response has no results array", catalog.ErrListing)
	}
	page := Page{
		Page:         int(intOrZero(payload, "page")),
		TotalPages:   int(intOrZero(payload, "total_pages")),
		TotalResults: int(intOrZero(payload, "total_results")),
	}
	page.Results = make([]catalog.ItemSummary, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			page.Results = append(page.Results, catalog.ItemSummary{})
			continue
		}
		id, _ := intField(obj, "id")
		title, _ := stringField(obj, "title")
		page.Results = append(page.Results, catalog.ItemSummary{ID: id, Title: title})
	}
	return page, nil
}

// Extractor normalizes detail payloads.
type Extractor struct {
	// OverviewPlaceholder replaces a missing overview; DefaultOverview when empty.
	OverviewPlaceholder string
}

// ExtractDetail normalizes a detail payload. Missing fields get documented
// defaults and are listed in Defaulted; extraction itself never fails.
func (e Extractor) ExtractDetail(id int64, payload map[string]any) catalog.ItemDetail {
	detail := catalog.ItemDetail{ID: id}
	if payloadID, ok := intField(payload, "id"); ok {
		detail.ID = payloadID
	}
	defaulted := func(field string) {
		detail.Defaulted = append(detail.Defaulted, field)
	}

	if title, ok := stringField(payload, "title"); ok {
		detail.Title = title
	} else {
		detail.Title = "unknown_movie_" + strconv.FormatInt(detail.ID, 10)
		defaulted("title")
	}

	if date, ok := stringField(payload, "release_date"); ok {
		detail.ReleaseYear = firstRunes(date, 4)
	} else {
		detail.ReleaseYear = catalog.NotAvailable
		defaulted("release_date")
	}

	if overview, ok := stringField(payload, "overview"); ok {
		detail.Overview = overview
	} else {
		detail.Overview = e.overviewPlaceholder()
		defaulted("overview")
	}

	if vote, ok := floatField(payload, "vote_average"); ok {
		detail.Rating = catalog.Rating{Value: vote, Valid: true}
	} else {
		defaulted("vote_average")
	}

	detail.Genres = namesOf(payload["genres"])
	if _, ok := payload["genres"].([]any); !ok {
		defaulted("genres")
	}

	if assetPath, ok := stringField(payload, "poster_path"); ok {
		detail.AssetPath = assetPath
	} else {
		defaulted("poster_path")
	}

	credits, ok := payload["credits"].(map[string]any)
	if !ok {
		defaulted("credits")
	}
	detail.CastNames = castNames(credits["cast"])
	detail.DirectorNames = directorNames(credits["crew"])

	return detail
}

func (e Extractor) overviewPlaceholder() string {
	if e.OverviewPlaceholder != "" {
		return e.OverviewPlaceholder
	}
	return DefaultOverview
}

func castNames(raw any) []string {
	members, _ := raw.([]any)
	names := make([]string, 0, castLimit)
	for _, member := range members {
		if len(names) == castLimit {
			break
		}
		names = append(names, memberName(member))
	}
	return names
}

func directorNames(raw any) []string {
	members, _ := raw.([]any)
	names := []string{}
	for _, member := range members {
		obj, ok := member.(map[string]any)
		if !ok {
			continue
		}
		if job, _ := stringField(obj, "job"); job == directorJob {
			names = append(names, memberName(obj))
		}
	}
	return names
}

func memberName(member any) string {
	obj, ok := member.(map[string]any)
	if !ok {
		return missingName
	}
	if name, ok := stringField(obj, "name"); ok {
		return name
	}
	return missingName
}

func namesOf(raw any) []string {
	entries, _ := raw.([]any)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := stringField(obj, "name"); ok {
			names = append(names, name)
		}
	}
	return names
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func stringField(obj map[string]any, key string) (string, bool) {
	s, ok := obj[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func intField(obj map[string]any, key string) (int64, bool) {
	switch v := obj[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

func intOrZero(obj map[string]any, key string) int64 {
	n, _ := intField(obj, key)
	return n
}

func floatField(obj map[string]any, key string) (float64, bool) {
	switch v := obj[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
