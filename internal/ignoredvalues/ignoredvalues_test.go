package ignoredvalues

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.ForURL("https://example.com/x")) != 0 {
		t.Errorf("expected empty map for missing file")
	}
}

func TestLoadAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ignored.yaml")
	content := `
https://opendata.dwd.de/file.zip:
  "2023-06-01T12:00:00Z":
    precipitation: -0.1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ts := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	value := -0.1
	nulled := false
	m.Apply("https://opendata.dwd.de/file.zip", ts,
		func(field string) (float64, bool) {
			if field == "precipitation" {
				return value, true
			}
			return 0, false
		},
		func(field string) {
			if field == "precipitation" {
				nulled = true
			}
		},
	)
	if !nulled {
		t.Errorf("expected precipitation to be nulled")
	}
}

func TestApplyStaleOverrideDoesNotNull(t *testing.T) {
	m := &Map{byURL: map[string]TimestampValues{
		"u": {
			time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC): {"temperature": 5},
		},
	}}
	nulled := false
	m.Apply("u", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		func(string) (float64, bool) { return 7, true },
		func(string) { nulled = true },
	)
	if nulled {
		t.Errorf("stale override should not null a changed value")
	}
}
