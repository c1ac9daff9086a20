package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPathDerivation(t *testing.T) {
	c := New(t.TempDir(), 1)
	path, err := c.Path("https://opendata.dwd.de/weather/local_forecasts/mos/file.kmz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(c.Dir, "opendata.dwd.de", "weather", "local_forecasts", "mos", "file.kmz")
	if path != want {
		t.Errorf("got %q, want %q", path, want)
	}
}

func TestFetchConditional(t *testing.T) {
	body := "hello world"
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if ims := r.Header.Get("If-Modified-Since"); ims != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := New(t.TempDir(), 1)
	ctx := context.Background()

	path, err := c.Fetch(ctx, srv.URL+"/file.txt")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading cached file: %v", err)
	}
	if string(data) != body {
		t.Errorf("got %q, want %q", data, body)
	}

	path2, err := c.Fetch(ctx, srv.URL+"/file.txt")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if path2 != path {
		t.Errorf("expected same path, got %q and %q", path, path2)
	}
	if hits != 2 {
		t.Errorf("expected 2 server hits (200 then 304), got %d", hits)
	}
}

func TestFetchPermanentErrorNotRetried(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(t.TempDir(), 3)
	_, err := c.Fetch(context.Background(), srv.URL+"/missing.txt")
	if err == nil {
		t.Fatal("expected error")
	}
	if hits != 1 {
		t.Errorf("expected exactly 1 attempt for a permanent 404, got %d", hits)
	}
}
