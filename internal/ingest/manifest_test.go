package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
	"github.com/JakeFAU/catalog-ingest/internal/storage/memory"
)

func TestManifestWriterWritesIndentedJSON(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	writer := NewManifestWriter(store, "")
	writer.Record(catalog.ItemRecord{
		Position: 1,
		Summary:  catalog.ItemSummary{ID: 1, Title: "A"},
		Status:   catalog.ItemStatusCompleted,
		Detail: &catalog.ItemDetail{
			ID:          1,
			Title:       "A",
			ReleaseYear: catalog.NotAvailable,
			Rating:      catalog.Rating{},
		},
	})
	writer.Record(catalog.ItemRecord{Position: 2, Status: catalog.ItemStatusSkipped})

	uri, err := writer.Write(context.Background(), catalog.RunSummary{RunID: "run-1", State: catalog.RunStateComplete})
	require.NoError(t, err)
	assert.Equal(t, "memory://movies.json", uri)

	obj, ok := store.Get(DefaultManifestName)
	require.True(t, ok)
	assert.Equal(t, "application/json", obj.ContentType)
	assert.Contains(t, string(obj.Data), "\n  \"run\": {")

	var doc struct {
		Run   map[string]any   `json:"run"`
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(obj.Data, &doc))
	assert.Equal(t, "run-1", doc.Run["run_id"])
	require.Len(t, doc.Items, 2)
	detail, ok := doc.Items[0]["detail"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, catalog.NotAvailable, detail["rating"])
}

func TestManifestWriterEmptyRun(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	_, err := NewManifestWriter(store, "run.json").Write(context.Background(), catalog.RunSummary{State: catalog.RunStateAborted})
	require.NoError(t, err)

	obj, ok := store.Get("run.json")
	require.True(t, ok)
	assert.Contains(t, string(obj.Data), `"items": []`)
}

type rejectingStore struct{}

func (rejectingStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	return "", &catalog.StorageError{Path: path, Err: errors.New("read-only file system")}
}

func TestManifestWriterStorageFailure(t *testing.T) {
	t.Parallel()

	_, err := NewManifestWriter(rejectingStore{}, "").Write(context.Background(), catalog.RunSummary{})
	require.Error(t, err)
	assert.True(t, catalog.IsStorage(err))
}
