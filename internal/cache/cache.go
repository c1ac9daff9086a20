// Package cache implements the conditional-download, content-addressed
// local cache described in the downloader component: a cache path derived
// one-to-one from the URL, conditional GET via If-Modified-Since, and
// atomic write-then-rename so no worker ever observes a partial file.
package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"

	"github.com/dwdopendata/brightsky/internal/log"
)

// FetchError wraps a network or HTTP failure that survived every retry.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cache: fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Cache is a content-addressed local mirror of remote files, keyed by URL.
type Cache struct {
	Dir        string
	Client     *http.Client
	MaxRetries int
}

// New builds a Cache rooted at dir. A zero MaxRetries falls back to 5.
func New(dir string, maxRetries int) *Cache {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Cache{
		Dir:        dir,
		Client:     &http.Client{Timeout: 60 * time.Second},
		MaxRetries: maxRetries,
	}
}

// Path derives the stable, one-to-one cache path for a URL: the host and
// path components of the URL joined under the cache directory. A URL whose
// path ends in "/" (a directory index) is stored as "index.html" inside that
// directory, so it never occupies the path of the directory itself.
func (c *Cache) Path(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("cache: parsing URL %q: %w", rawURL, err)
	}
	segments := append([]string{c.Dir, u.Host}, strings.Split(strings.TrimPrefix(u.Path, "/"), "/")...)
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		segments = append(segments, "index.html")
	}
	return filepath.Join(segments...), nil
}

// Fetch performs a conditional download of url, returning the local path to
// the (possibly already-cached) file. On a 304 response the cached file is
// returned unmodified. On a 200 response the body is written to a temp file
// in the same directory and renamed into place, and the file's mtime is set
// to the server's Last-Modified header.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (string, error) {
	path, err := c.Path(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("cache: creating cache directory: %w", err)
	}

	var result string
	operation := func() error {
		downloaded, err := c.attempt(ctx, rawURL, path)
		if err != nil {
			return err
		}
		result = downloaded
		return nil
	}

	if err := c.retry(ctx, rawURL, operation); err != nil {
		return "", err
	}
	return result, nil
}

func (c *Cache) retry(ctx context.Context, rawURL string, operation backoff.Operation) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.MaxRetries)), ctx)
	var lastErr error
	err := backoff.RetryNotify(operation, bo, func(err error, wait time.Duration) {
		lastErr = err
		log.Warnf("cache: fetch of %s failed, retrying in %s: %v", rawURL, wait, err)
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return &FetchError{URL: rawURL, Err: lastErr}
	}
	return nil
}

// attempt performs a single conditional-download attempt.
func (c *Cache) attempt(ctx context.Context, rawURL, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("cache: building request: %w", err))
	}

	if fi, err := os.Stat(path); err == nil {
		req.Header.Set("If-Modified-Since", fi.ModTime().UTC().Format(http.TimeFormat))
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		log.Debugf("cache: %s not modified, using cached copy", rawURL)
		return path, nil
	case http.StatusOK:
		return path, c.writeAtomic(resp, path, rawURL)
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return "", fmt.Errorf("cache: %s returned %d", rawURL, resp.StatusCode)
	default:
		return "", backoff.Permanent(fmt.Errorf("cache: %s returned %d", rawURL, resp.StatusCode))
	}
}

func (c *Cache) writeAtomic(resp *http.Response, path, rawURL string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("cache: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("cache: writing body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: closing temp file: %w", err)
	}

	lastModified := time.Now().UTC()
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if parsed, err := http.ParseTime(lm); err == nil {
			lastModified = parsed
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("cache: renaming into place: %w", err)
	}
	if err := os.Chtimes(path, lastModified, lastModified); err != nil {
		return fmt.Errorf("cache: setting mtime: %w", err)
	}

	log.Debugf("cache: downloaded %s to %s (%s)", rawURL, path, humanize.Bytes(uint64(n)))
	return nil
}

// Remove deletes the cached file for url, used by the ingest pipeline after
// a successful parse when KeepDownloads is false.
func (c *Cache) Remove(rawURL string) error {
	path, err := c.Path(rawURL)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: removing %s: %w", path, err)
	}
	return nil
}
