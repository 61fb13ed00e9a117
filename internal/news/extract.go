// Package news scrapes news listing pages into structured records.
package news

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTitle replaces a missing headline.
const DefaultTitle = "Нет заголовка"

// Selectors used on the listing page.
const (
	itemSelector     = "div.news_box"
	titleSelector    = "h2.news_title"
	categorySelector = "div.cat"
	dateSelector     = "div.date"
	authorSelector   = "a.author"
	viewsSelector    = "div.views"
	textSelector     = "div.news_text"
	pictureSelector  = "picture"
)

// Record is one scraped news item. Pointer fields are nil when the page did
// not carry them and encode as JSON null.
type Record struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Link     *string  `json:"link"`
	Category *string  `json:"category"`
	Date     *string  `json:"date"`
	Author   *string  `json:"author"`
	Views    *string  `json:"views"`
	Text     *string  `json:"text"`
	Images   []string `json:"images"`
}

// Extractor turns a listing document into records.
type Extractor struct {
	// Base resolves relative links and image sources.
	Base *url.URL
	// TitlePlaceholder replaces missing titles; DefaultTitle when empty.
	TitlePlaceholder string
}

// ExtractHTML parses body and extracts its records.
func (e Extractor) ExtractHTML(body []byte, now time.Time) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse news html: %w", err)
	}
	return e.Extract(doc, now), nil
}

// Extract never fails; structural mismatches yield nil fields.
func (e Extractor) Extract(doc *goquery.Document, now time.Time) []Record {
	stamp := now.Format("20060102")
	records := []Record{}
	doc.Find(itemSelector).Each(func(i int, item *goquery.Selection) {
		records = append(records, e.record(item, fmt.Sprintf("news_%s_%d", stamp, i+1)))
	})
	return records
}

func (e Extractor) record(item *goquery.Selection, id string) Record {
	rec := Record{ID: id, Title: e.titlePlaceholder()}

	title := item.Find(titleSelector).First()
	if title.Length() > 0 {
		rec.Title = strings.TrimSpace(title.Text())
		if href, ok := title.Parent().Attr("href"); ok {
			rec.Link = e.resolve(href)
		}
	}
	rec.Category = textOf(item, categorySelector)
	rec.Date = textOf(item, dateSelector)
	rec.Author = textOf(item, authorSelector)
	rec.Views = textOf(item, viewsSelector)
	rec.Text = textOf(item, textSelector)
	rec.Images = e.images(item.Find(pictureSelector).First())
	return rec
}

// images returns JPEG sources when the picture has any, otherwise every
// source, deduplicated in document order.
func (e Extractor) images(picture *goquery.Selection) []string {
	all := []string{}
	jpegs := []string{}
	seen := map[string]bool{}
	add := func(raw string) {
		resolved := e.resolve(raw)
		if resolved == nil || seen[*resolved] {
			return
		}
		seen[*resolved] = true
		all = append(all, *resolved)
		if isJPEG(*resolved) {
			jpegs = append(jpegs, *resolved)
		}
	}

	if picture.Length() == 0 {
		return all
	}
	if src, ok := picture.Find("img").First().Attr("src"); ok {
		add(src)
	}
	picture.Find("source").Each(func(_ int, source *goquery.Selection) {
		srcset, ok := source.Attr("srcset")
		if !ok {
			return
		}
		if candidate := firstSrcsetURL(srcset); candidate != "" {
			add(candidate)
		}
	})
	if len(jpegs) > 0 {
		return jpegs
	}
	return all
}

func (e Extractor) resolve(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	resolved := ref.String()
	if e.Base != nil {
		resolved = e.Base.ResolveReference(ref).String()
	}
	return &resolved
}

func (e Extractor) titlePlaceholder() string {
	if e.TitlePlaceholder != "" {
		return e.TitlePlaceholder
	}
	return DefaultTitle
}

func textOf(item *goquery.Selection, selector string) *string {
	sel := item.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	text := strings.TrimSpace(sel.Text())
	return &text
}

// firstSrcsetURL returns the URL of the first srcset candidate.
func firstSrcsetURL(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isJPEG(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg")
}
