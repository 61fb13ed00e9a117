package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-ingest/internal/catalog"
)

func TestBlobStorePutAndGet(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "b.jpg", "image/jpeg", strings.NewReader("one"))
	require.NoError(t, err)
	assert.Equal(t, "memory://b.jpg", uri)

	_, err = store.PutObject(context.Background(), "b.jpg", "image/png", strings.NewReader("two"))
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "a.jpg", "", strings.NewReader("three"))
	require.NoError(t, err)

	obj, ok := store.Get("b.jpg")
	require.True(t, ok)
	assert.Equal(t, "two", string(obj.Data))
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, store.Paths())

	_, ok = store.Get("missing.jpg")
	assert.False(t, ok)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("eof too soon") }

func TestBlobStoreReadFailure(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), "x.jpg", "", brokenReader{})
	require.Error(t, err)
	assert.True(t, catalog.IsStorage(err))
	assert.Empty(t, store.Paths())
}
