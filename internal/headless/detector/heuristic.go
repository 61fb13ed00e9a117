// Package detector decides when a fetched page needs a headless re-render.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

const defaultThreshold = 2048

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
	// Marker is a CSS selector that only matches server-rendered content.
	// When set, its absence alone triggers promotion.
	Marker string
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int, marker string) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold, Marker: strings.TrimSpace(marker)}
}

var spaRoots = []string{"#__next", "#root", "#app", "[data-reactroot]"}

// ShouldPromote decides whether a headless fetch is required. Responses that
// were already rendered, or that failed, are never promoted.
func (h *Heuristic) ShouldPromote(resp catalog.FetchResponse) bool {
	if resp.UsedHeadless || resp.StatusCode != http.StatusOK {
		return false
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if h.Marker != "" {
		return doc.Find(h.Marker).Length() == 0
	}
	if len(body) < h.BodyLengthThreshold && scriptShare(doc, len(body)) >= 25 {
		return true
	}
	for _, sel := range spaRoots {
		if root := doc.Find(sel); root.Length() > 0 && strings.TrimSpace(root.Text()) == "" {
			return true
		}
	}
	return false
}

// scriptShare is the percentage of the document taken up by script elements.
func scriptShare(doc *goquery.Document, total int) int {
	if total == 0 {
		return 0
	}
	covered := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		html, err := goquery.OuterHtml(s)
		if err == nil {
			covered += len(html)
		}
	})
	return covered * 100 / total
}
