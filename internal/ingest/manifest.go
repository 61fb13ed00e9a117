package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

// DefaultManifestName is the object name of the run manifest.
const DefaultManifestName = "movies.json"

// Manifest is the document written after a run.
type Manifest struct {
	Run   catalog.RunSummary   `json:"run"`
	Items []catalog.ItemRecord `json:"items"`
}

// ManifestWriter collects item records and writes them as one indented JSON
// document next to the downloaded assets.
type ManifestWriter struct {
	store catalog.BlobStore
	name  string

	mu      sync.Mutex
	records []catalog.ItemRecord
}

// NewManifestWriter writes to name in store; DefaultManifestName when empty.
func NewManifestWriter(store catalog.BlobStore, name string) *ManifestWriter {
	if name == "" {
		name = DefaultManifestName
	}
	return &ManifestWriter{store: store, name: name}
}

// Record implements Recorder.
func (w *ManifestWriter) Record(rec catalog.ItemRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
}

// Records returns a copy of the collected records.
func (w *ManifestWriter) Records() []catalog.ItemRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]catalog.ItemRecord(nil), w.records...)
}

// Write persists the manifest and returns its URI. Runs that listed nothing
// still produce a manifest so the outcome is visible.
func (w *ManifestWriter) Write(ctx context.Context, summary catalog.RunSummary) (string, error) {
	doc := Manifest{Run: summary, Items: w.Records()}
	if doc.Items == nil {
		doc.Items = []catalog.ItemRecord{}
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	uri, err := w.store.PutObject(ctx, w.name, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("write manifest %s: %w", w.name, err)
	}
	return uri, nil
}
