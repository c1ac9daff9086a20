package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dwdopendata/brightsky/internal/cache"
	"github.com/dwdopendata/brightsky/internal/store"
)

// memoryLedger is an in-memory stand-in for the parsed-files table.
type memoryLedger struct {
	fingerprints map[string]store.Fingerprint
}

func (l *memoryLedger) Fingerprints(context.Context) (map[string]store.Fingerprint, error) {
	return l.fingerprints, nil
}

func newIndexServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><pre>
<a href="../">../</a>
<a href="hourly/">hourly/</a>
<a href="MOSMIX_S_LATEST_240.kmz">MOSMIX_S_LATEST_240.kmz</a>          27-Jul-2026 09:21             1234
<a href="README.txt">README.txt</a>                                    01-Jan-2026 00:00               10
</pre></body></html>`)
	})
	mux.HandleFunc("/hourly/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><pre>
<a href="../">../</a>
<a href="stundenwerte_TU_00044_akt.zip">stundenwerte_TU_00044_akt.zip</a>  26-Jul-2026 18:05            55678
</pre></body></html>`)
	})
	return httptest.NewServer(mux)
}

func TestPollEmitsChangedFiles(t *testing.T) {
	srv := newIndexServer(t)
	defer srv.Close()

	p := &Poller{
		Seeds:   []string{srv.URL + "/"},
		Fetcher: cache.New(t.TempDir(), 1),
		Ledger:  &memoryLedger{},
	}

	jobs, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2 (README has no parser)", len(jobs))
	}

	byParser := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		byParser[j.Parser] = j
	}

	mosmix, ok := byParser["mosmix"]
	if !ok {
		t.Fatal("missing mosmix job")
	}
	if mosmix.URL != srv.URL+"/MOSMIX_S_LATEST_240.kmz" {
		t.Errorf("mosmix URL = %q", mosmix.URL)
	}
	wantTime := time.Date(2026, 7, 27, 9, 21, 0, 0, time.UTC)
	if !mosmix.LastModified.Equal(wantTime) || mosmix.FileSize != 1234 {
		t.Errorf("mosmix fingerprint = (%v, %d), want (%v, 1234)", mosmix.LastModified, mosmix.FileSize, wantTime)
	}

	if _, ok := byParser["temperature_observations"]; !ok {
		t.Error("missing temperature job from the subdirectory walk")
	}
}

func TestPollSkipsUnchangedFingerprints(t *testing.T) {
	srv := newIndexServer(t)
	defer srv.Close()

	ledger := &memoryLedger{}
	p := &Poller{
		Seeds:   []string{srv.URL + "/"},
		Fetcher: cache.New(t.TempDir(), 1),
		Ledger:  ledger,
	}

	first, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first poll: got %d jobs, want 2", len(first))
	}

	// Record the fingerprints the way persistence would after a
	// successful ingest; an unchanged listing then yields nothing.
	ledger.fingerprints = make(map[string]store.Fingerprint, len(first))
	for _, j := range first {
		ledger.fingerprints[j.URL] = store.Fingerprint{LastModified: j.LastModified, FileSize: j.FileSize}
	}

	second, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second poll: got %d jobs, want 0", len(second))
	}
}

func TestPollSkipsArchivesBeforeMinDate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><pre>
<a href="stundenwerte_TU_00044_19500101_19551231_hist.zip">stundenwerte_TU_00044_19500101_19551231_hist.zip</a>  01-Jan-2026 00:00  99
</pre></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := &Poller{
		Seeds:   []string{srv.URL + "/"},
		Fetcher: cache.New(t.TempDir(), 1),
		Ledger:  &memoryLedger{},
		MinDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	jobs, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("got %d jobs, want 0 for an archive entirely before the minimum date", len(jobs))
	}
}
