package catalog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	transport := fmt.Errorf("fetch detail: %w", &TransportError{URL: "https://api/movie/1", StatusCode: 404, Err: errors.New("Not Found")})
	decode := fmt.Errorf("fetch detail: %w", &DecodeError{URL: "https://api/movie/1", Err: errors.New("bad json")})
	storage := &StorageError{Path: "a.jpg", Err: errors.New("disk full")}

	assert.True(t, IsTransport(transport))
	assert.False(t, IsDecode(transport))
	assert.Equal(t, 404, StatusCode(transport))

	assert.True(t, IsDecode(decode))
	assert.Equal(t, 0, StatusCode(decode))

	assert.True(t, IsStorage(storage))
	assert.Contains(t, storage.Error(), "disk full")
}

func TestTransportErrorTemporary(t *testing.T) {
	t.Parallel()

	assert.True(t, (&TransportError{StatusCode: 0}).Temporary())
	assert.True(t, (&TransportError{StatusCode: 429}).Temporary())
	assert.True(t, (&TransportError{StatusCode: 503}).Temporary())
	assert.False(t, (&TransportError{StatusCode: 404}).Temporary())
	assert.False(t, (&TransportError{StatusCode: 401}).Temporary())
}

func TestRatingJSON(t *testing.T) {
	t.Parallel()

	missing, err := Rating{}.MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `"N/A"`, string(missing))

	present, err := Rating{Value: 7.25, Valid: true}.MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `7.25`, string(present))
	assert.Equal(t, "7.25", Rating{Value: 7.25, Valid: true}.String())
}

func TestCatalogConfigAssetURL(t *testing.T) {
	t.Parallel()

	cfg := CatalogConfig{AssetBaseURL: "https://img/", AssetSizeToken: "w500"}
	assert.Equal(t, "https://img/w500/abc.jpg", cfg.AssetURL("/abc.jpg"))
}
