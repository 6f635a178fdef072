package download_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/qcommerce-evals/business/download"
	"github.com/ardanlabs/qcommerce-evals/foundation/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const confirmPage = `<!DOCTYPE html><html><body>
<p>Google Drive can't scan this file for viruses.</p>
<form id="other-form" action="/wrong"><input type="hidden" name="x" value="y"></form>
<form id="download-form" action="/download" method="get">
  <input type="submit" value="Download anyway">
  <input type="hidden" name="id" value="FILE">
  <input type="hidden" name="export" value="download">
  <input type="hidden" name="confirm" value="t">
  <input type="hidden" name="uuid" value="abc-123">
</form>
</body></html>`

func newServer(t *testing.T, payload []byte) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/uc", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "download_warning", Value: "ok", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, confirmPage)
	})

	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("id") != "FILE" || q.Get("confirm") != "t" || q.Get("uuid") != "abc-123" {
			http.Error(w, "bad confirmation", http.StatusBadRequest)
			return
		}
		if c, err := r.Cookie("download_warning"); err != nil || c.Value != "ok" {
			http.Error(w, "missing cookie", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		w.Write(payload)
	})

	mux.HandleFunc("/direct", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(payload)
	})

	mux.HandleFunc("/noform", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>quota exceeded</body></html>")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestDownloadFollowsConfirmation(t *testing.T) {
	payload := bytes.Repeat([]byte("duckdb"), 100_000)
	srv := newServer(t, payload)

	dest := filepath.Join(t.TempDir(), "data", "qc_pune.duckdb")

	var progress bytes.Buffer
	n, err := download.Download(t.Context(), logger.Discard(), download.Options{
		URL:      srv.URL + "/uc?export=download&id=FILE",
		Dest:     dest,
		Progress: &progress,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	assert.Contains(t, progress.String(), "qc_pune.duckdb: ")
	assert.Contains(t, progress.String(), "(100%)")

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are removed")
}

func TestDownloadExisting(t *testing.T) {
	srv := newServer(t, []byte("new"))

	dest := filepath.Join(t.TempDir(), "qc.duckdb")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	opts := download.Options{URL: srv.URL + "/direct", Dest: dest}

	_, err := download.Download(t.Context(), logger.Discard(), opts)
	require.ErrorIs(t, err, download.ErrExists)

	opts.Force = true
	_, err = download.Download(t.Context(), logger.Discard(), opts)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestDownloadFailures(t *testing.T) {
	srv := newServer(t, []byte("x"))
	dir := t.TempDir()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"no form", srv.URL + "/noform", "download-form not found"},
		{"not found", srv.URL + "/missing", "404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_"))

			_, err := download.Download(t.Context(), logger.Discard(), download.Options{URL: tt.url, Dest: dest})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.NoFileExists(t, dest)
		})
	}
}

func TestDriveURL(t *testing.T) {
	assert.Equal(t, "https://drive.google.com/uc?export=download&id=abc", download.DriveURL("abc"))
}
