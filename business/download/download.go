// Package download fetches the analytics snapshot from Google Drive.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
)

// ChunkSize is how many bytes are read from the response per write.
const ChunkSize = 128 * 1024

// ErrExists is returned when the destination is present and force is off.
var ErrExists = errors.New("file already exists")

// DriveURL returns the direct download address of a Drive file.
func DriveURL(fileID string) string {
	return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(fileID)
}

// Options configures a download.
type Options struct {
	URL      string
	Dest     string
	Force    bool
	Client   *http.Client // nil uses a client with a cookie jar
	Progress io.Writer    // nil disables progress output
}

// Download saves the file at opts.URL to opts.Dest. Large Drive files answer
// with a virus scan confirmation page first; its form is followed to reach
// the file. The data is written to a temporary file renamed into place on
// success. It returns the number of bytes written.
func Download(ctx context.Context, log *slog.Logger, opts Options) (int64, error) {
	if _, err := os.Stat(opts.Dest); err == nil && !opts.Force {
		return 0, fmt.Errorf("%s: %w", opts.Dest, ErrExists)
	}

	client := opts.Client
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return 0, fmt.Errorf("cookie jar: %w", err)
		}
		client = &http.Client{Jar: jar, Timeout: 30 * time.Minute}
	}

	if err := os.MkdirAll(filepath.Dir(opts.Dest), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}

	log.Info("download", "status", "started", "dest", opts.Dest)

	resp, err := get(ctx, client, opts.URL)
	if err != nil {
		return 0, err
	}

	if isHTML(resp) {
		confirm, err := confirmURL(resp)
		resp.Body.Close()
		if err != nil {
			return 0, err
		}

		log.Info("download", "status", "confirming", "url", confirm)

		if resp, err = get(ctx, client, confirm); err != nil {
			return 0, err
		}

		if isHTML(resp) {
			resp.Body.Close()
			return 0, errors.New("download: confirmation returned a page instead of the file")
		}
	}
	defer resp.Body.Close()

	n, err := save(resp, opts.Dest, opts.Progress)
	if err != nil {
		return 0, err
	}

	log.Info("download", "status", "completed", "dest", opts.Dest, "size", humanize.Bytes(uint64(n)))

	return n, nil
}

func get(ctx context.Context, client *http.Client, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: %s", req.URL.Redacted(), resp.Status)
	}

	return resp, nil
}

func isHTML(resp *http.Response) bool {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mt == "text/html"
}

// confirmURL reads the download-form of a confirmation page and returns its
// action with the hidden inputs as the query string.
func confirmURL(resp *http.Response) (string, error) {
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse confirmation page: %w", err)
	}

	form := doc.Find("form#download-form").First()
	if form.Length() == 0 {
		return "", errors.New("parse confirmation page: download-form not found")
	}

	action, _ := form.Attr("action")

	values := url.Values{}
	form.Find(`input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok {
			return
		}
		value, _ := s.Attr("value")
		values.Set(name, value)
	})

	target, err := resp.Request.URL.Parse(action)
	if err != nil {
		return "", fmt.Errorf("parse form action: %w", err)
	}
	target.RawQuery = values.Encode()

	return target.String(), nil
}

func save(resp *http.Response, dest string, progress io.Writer) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}

	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	p := newProgress(progress, filepath.Base(dest), resp.ContentLength)

	buf := make([]byte, ChunkSize)
	var written int64

	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				return 0, fmt.Errorf("write: %w", err)
			}
			written += int64(n)
			p.update(written)
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return 0, fmt.Errorf("read: %w", rerr)
		}
	}

	p.done(written)

	if resp.ContentLength > 0 && written != resp.ContentLength {
		return 0, fmt.Errorf("short download: got %d of %d bytes", written, resp.ContentLength)
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("rename: %w", err)
	}

	return written, nil
}

// =============================================================================

type progress struct {
	w     io.Writer
	name  string
	total int64
	last  time.Time
}

func newProgress(w io.Writer, name string, total int64) *progress {
	return &progress{w: w, name: name, total: total}
}

func (p *progress) update(n int64) {
	if p.w == nil || time.Since(p.last) < 200*time.Millisecond {
		return
	}
	p.last = time.Now()
	p.print(n)
}

func (p *progress) done(n int64) {
	if p.w == nil {
		return
	}
	p.print(n)
	fmt.Fprintln(p.w)
}

func (p *progress) print(n int64) {
	if p.total > 0 {
		fmt.Fprintf(p.w, "\r%s: %s / %s (%d%%)", p.name, humanize.Bytes(uint64(n)), humanize.Bytes(uint64(p.total)), n*100/p.total)
		return
	}
	fmt.Fprintf(p.w, "\r%s: %s", p.name, humanize.Bytes(uint64(n)))
}
