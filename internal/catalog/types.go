// Package catalog defines the core types shared by the ingestion pipeline.
package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// NotAvailable is the placeholder used for scalar fields the remote API omitted.
const NotAvailable = "N/A"

// CatalogConfig holds the asset-serving parameters discovered once before a run.
// It is produced by the resolver and only ever passed by value afterwards.
type CatalogConfig struct {
	AssetBaseURL   string `json:"asset_base_url"`
	AssetSizeToken string `json:"asset_size_token"`
}

// AssetURL joins base, size token and asset path the way the image origin expects.
func (c CatalogConfig) AssetURL(assetPath string) string {
	return c.AssetBaseURL + c.AssetSizeToken + assetPath
}

// ItemSummary is the minimal identity of an entry in a popularity listing.
// ID is zero when the listing row carried no usable id.
type ItemSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// HasID reports whether the summary can be used to request detail.
func (s ItemSummary) HasID() bool {
	return s.ID > 0
}

// Rating is a vote average that may be missing.
type Rating struct {
	Value float64
	Valid bool
}

// String renders the rating or NotAvailable.
func (r Rating) String() string {
	if !r.Valid {
		return NotAvailable
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// MarshalJSON encodes a number, or the NotAvailable string when missing.
func (r Rating) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(r.Value)
}

// ItemDetail is the normalized view of a single detail response.
type ItemDetail struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	ReleaseYear   string   `json:"release_year"`
	Overview      string   `json:"overview"`
	Rating        Rating   `json:"rating"`
	Genres        []string `json:"genres"`
	AssetPath     string   `json:"poster_path,omitempty"`
	CastNames     []string `json:"cast"`
	DirectorNames []string `json:"directors"`
	// Defaulted lists the source fields that were missing and substituted.
	Defaulted []string `json:"defaulted,omitempty"`
}

// HasAsset reports whether the detail references a downloadable asset.
func (d ItemDetail) HasAsset() bool {
	return d.AssetPath != ""
}

// DownloadResult describes one asset download attempt.
type DownloadResult struct {
	OK          bool   `json:"ok"`
	URL         string `json:"url"`
	Path        string `json:"path"`
	URI         string `json:"uri,omitempty"`
	Bytes       int64  `json:"bytes,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ItemStatus is the outcome of processing one listed item.
type ItemStatus string

// Item outcomes recorded in the manifest.
const (
	ItemStatusCompleted      ItemStatus = "completed"
	ItemStatusNoAsset        ItemStatus = "no_asset"
	ItemStatusSkipped        ItemStatus = "skipped"
	ItemStatusDetailFailed   ItemStatus = "detail_failed"
	ItemStatusDownloadFailed ItemStatus = "download_failed"
	ItemStatusPanicked       ItemStatus = "panicked"
)

// Succeeded reports whether the status counts towards completed items.
func (s ItemStatus) Succeeded() bool {
	return s == ItemStatusCompleted || s == ItemStatusNoAsset
}

// ItemRecord is the normalized output row written for each processed item.
type ItemRecord struct {
	Position int             `json:"position"`
	Summary  ItemSummary     `json:"summary"`
	Status   ItemStatus      `json:"status"`
	Detail   *ItemDetail     `json:"detail,omitempty"`
	Download *DownloadResult `json:"download,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// RunState is a lifecycle state of an ingestion run.
type RunState string

// Run states; complete is only reachable by traversing every listed item.
const (
	RunStateStart    RunState = "start"
	RunStateListing  RunState = "list_page"
	RunStateItems    RunState = "items"
	RunStateComplete RunState = "complete"
	RunStateAborted  RunState = "aborted"
	RunStateCanceled RunState = "canceled"
)

// RunSummary is reported at the end of every run, including aborted ones.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	State      RunState      `json:"state"`
	Config     CatalogConfig `json:"config"`
	Listed     int           `json:"listed"`
	Attempted  int           `json:"attempted"`
	Completed  int           `json:"completed"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Downloaded int           `json:"downloaded"`
	Bytes      int64         `json:"bytes"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Error      string        `json:"error,omitempty"`
}

// Attributes labels the summary when it is published as a message.
func (s RunSummary) Attributes() map[string]string {
	return map[string]string{
		"run_id": s.RunID,
		"state":  string(s.State),
	}
}

// FetchRequest captures everything needed to GET a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
