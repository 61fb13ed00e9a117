package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/3/configuration", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"images":{"secure_base_url":%q,"poster_sizes":["w92","w500","original"]}}`, base+"/img/")
	})
	mux.HandleFunc("/3/movie/popular", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"page":1,"total_pages":1,"results":[{"id":1,"title":"Test: Movie?"},{"title":"no id"}]}`)
	})
	mux.HandleFunc("/3/movie/1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":1,"title":"Test: Movie?","release_date":"2020-05-01","vote_average":7.5,"poster_path":"/abc.jpg"}`)
	})
	mux.HandleFunc("/img/w500/abc.jpg", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pngBytes)
	})
	srv := httptest.NewServer(mux)
	base = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestIngestCommand(t *testing.T) {
	srv := newCatalogServer(t)
	outDir := t.TempDir()
	textfile := filepath.Join(t.TempDir(), "ingest.prom")
	cfgPath := writeConfig(t, fmt.Sprintf(`
tmdb:
  api_base_url: %s/3
  access_token: test-token
ingest:
  delay: 0s
  output_dir: %s
metrics:
  textfile_path: %s
logging:
  development: false
`, srv.URL, outDir, textfile))

	out, err := execute(t, "--config", cfgPath, "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, "complete: listed=2 attempted=1 completed=1 failed=0 skipped=1 downloaded=1")

	poster, err := os.ReadFile(filepath.Join(outDir, "Test Movie.jpg"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, poster)

	raw, err := os.ReadFile(filepath.Join(outDir, "movies.json"))
	require.NoError(t, err)
	var manifest struct {
		Run struct {
			State string `json:"state"`
		} `json:"run"`
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, "complete", manifest.Run.State)
	assert.Len(t, manifest.Items, 2)

	_, err = os.Stat(textfile)
	require.NoError(t, err)
}

func TestIngestCommandWithoutToken(t *testing.T) {
	cfgPath := writeConfig(t, fmt.Sprintf(`
ingest:
  output_dir: %s
logging:
  development: false
`, t.TempDir()))

	_, err := execute(t, "--config", cfgPath, "ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tmdb.access_token")
}

func TestNewsCommand(t *testing.T) {
	page := `<html><body>
<div class="news_box">
  <a href="/news/1"><h2 class="news_title">Премьера недели</h2></a>
  <div class="cat">Кино</div>
  <div class="news_text">Текст новости</div>
</div>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)

	output := filepath.Join(t.TempDir(), "news_data.json")
	cfgPath := writeConfig(t, fmt.Sprintf(`
ingest:
  output_dir: %s
news:
  url: %s/news/
  output_path: %s
logging:
  development: false
`, t.TempDir(), srv.URL, output))

	out, err := execute(t, "--config", cfgPath, "news")
	require.NoError(t, err)
	assert.Contains(t, out, "saved 1 news records")

	raw, err := os.ReadFile(output)
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Премьера недели", records[0]["title"])
	assert.Equal(t, srv.URL+"/news/1", records[0]["link"])
}

func TestNewsCommandEmptyKeepsOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>nothing here</p></body></html>`)
	}))
	t.Cleanup(srv.Close)

	output := filepath.Join(t.TempDir(), "news_data.json")
	require.NoError(t, os.WriteFile(output, []byte(`["old"]`), 0o600))
	cfgPath := writeConfig(t, fmt.Sprintf(`
ingest:
  output_dir: %s
news:
  url: %s
  output_path: %s
logging:
  development: false
`, t.TempDir(), srv.URL, output))

	out, err := execute(t, "--config", cfgPath, "news")
	require.NoError(t, err)
	assert.Contains(t, out, "no news records extracted")

	raw, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, `["old"]`, string(raw))
}

func TestServeCommandWithoutKey(t *testing.T) {
	cfgPath := writeConfig(t, fmt.Sprintf(`
ingest:
  output_dir: %s
logging:
  development: false
`, t.TempDir()))

	_, err := execute(t, "--config", cfgPath, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recommend.api_key")
}

func TestBadConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "news")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
