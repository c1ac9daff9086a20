// Package poller walks remote HTTP directory listings, diffs each file's
// (last_modified, file_size) fingerprint against the parsed-files ledger,
// and emits a parse job for every file that is new or changed. The poller
// never writes the ledger; persistence does that when a file's records
// commit.
package poller

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/dwdopendata/brightsky/internal/log"
	"github.com/dwdopendata/brightsky/internal/parsers"
	"github.com/dwdopendata/brightsky/internal/store"
)

// DefaultSeeds lists the DWD open-data directory trees the pipeline
// ingests: the MOSMIX_S station forecasts, the current surface
// observations, and the recent + historical hourly climate archives for
// each measured element.
var DefaultSeeds = []string{
	"https://opendata.dwd.de/weather/local_forecasts/mos/MOSMIX_S/all_stations/kml/",
	"https://opendata.dwd.de/weather/weather_reports/poi/",
	"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/hourly/air_temperature/recent/",
	"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/hourly/air_temperature/historical/",
	"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/hourly/precipitation/recent/",
	"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/hourly/precipitation/historical/",
	"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/hourly/wind/recent/",
	"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/hourly/wind/historical/",
	"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/hourly/sun/recent/",
	"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/hourly/sun/historical/",
	"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/hourly/pressure/recent/",
	"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/hourly/pressure/historical/",
}

// fileInfoPattern matches the "last modified" timestamp and byte size in
// the text node that follows a file's anchor in the server's index page.
var fileInfoPattern = regexp.MustCompile(`(\d{2}-\w{3}-\d{4} \d{2}:\d{2})\s+(\d+)`)

const fileInfoLayout = "02-Jan-2006 15:04"

// Job describes one changed remote file awaiting download and parsing.
type Job struct {
	URL          string    `json:"url"`
	Parser       string    `json:"parser"`
	LastModified time.Time `json:"last_modified"`
	FileSize     int64     `json:"file_size"`
}

// Fetcher downloads a URL to a local file. Satisfied by cache.Cache.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// LedgerReader loads the parsed-files ledger for change detection.
// Satisfied by store.Store.
type LedgerReader interface {
	Fingerprints(ctx context.Context) (map[string]store.Fingerprint, error)
}

// Poller enumerates the seed directory trees and yields jobs for files
// whose fingerprint differs from the ledger.
type Poller struct {
	Seeds   []string
	Fetcher Fetcher
	Ledger  LedgerReader
	MinDate time.Time
	MaxDate time.Time
}

// Poll walks every seed and returns the list of changed files.
func (p *Poller) Poll(ctx context.Context) ([]Job, error) {
	var jobs []Job
	err := p.Walk(ctx, func(j Job) error {
		jobs = append(jobs, j)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Walk streams changed files to emit as they are discovered. Subdirectory
// walks fan out concurrently with bounded parallelism; emit calls are
// serialized, so a blocking emit (a full queue) applies backpressure to the
// whole walk.
func (p *Poller) Walk(ctx context.Context, emit func(Job) error) error {
	fingerprints, err := p.Ledger.Fingerprints(ctx)
	if err != nil {
		return fmt.Errorf("poller: loading ledger: %w", err)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)

	// Bound index fetches with a semaphore acquired inside each goroutine.
	// errgroup's own SetLimit would deadlock here: a directory goroutine
	// spawns its subdirectories, and a parent blocked in Go while holding
	// the last slot would wait on children that can never start.
	sem := make(chan struct{}, 4)

	var walkDir func(dirURL string)
	walkDir = func(dirURL string) {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()
			return p.walkOne(ctx, dirURL, fingerprints, walkDir, func(j Job) error {
				mu.Lock()
				defer mu.Unlock()
				return emit(j)
			})
		})
	}
	for _, seed := range p.Seeds {
		walkDir(seed)
	}
	return g.Wait()
}

// walkOne fetches a single directory index and processes its entries,
// recursing into subdirectories via spawn.
func (p *Poller) walkOne(ctx context.Context, dirURL string, fingerprints map[string]store.Fingerprint, spawn func(string), emit func(Job) error) error {
	base, err := url.Parse(dirURL)
	if err != nil {
		return fmt.Errorf("poller: parsing seed URL %q: %w", dirURL, err)
	}

	indexPath, err := p.Fetcher.Fetch(ctx, dirURL)
	if err != nil {
		return fmt.Errorf("poller: fetching index %s: %w", dirURL, err)
	}
	f, err := os.Open(indexPath)
	if err != nil {
		return fmt.Errorf("poller: opening index %s: %w", indexPath, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return fmt.Errorf("poller: parsing index %s: %w", dirURL, err)
	}

	var emitErr error
	doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || strings.HasPrefix(href, ".") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			log.Warnf("poller: skipping unparseable href %q in %s", href, dirURL)
			return true
		}
		entryURL := base.ResolveReference(ref).String()

		if strings.HasSuffix(href, "/") {
			spawn(entryURL)
			return true
		}

		job, ok := p.fileEntry(sel, entryURL, fingerprints)
		if !ok {
			return true
		}
		if err := emit(job); err != nil {
			emitErr = err
			return false
		}
		return true
	})
	return emitErr
}

// fileEntry turns one file anchor into a job, or reports false when the
// file is unparseable, skipped by its parser, or unchanged per the ledger.
func (p *Poller) fileEntry(sel *goquery.Selection, entryURL string, fingerprints map[string]store.Fingerprint) (Job, bool) {
	lastModified, fileSize, ok := siblingFileInfo(sel)
	if !ok {
		log.Warnf("poller: no timestamp/size found next to %s, skipping", entryURL)
		return Job{}, false
	}

	filename := path.Base(entryURL)
	name, factory, ok := parsers.Dispatch(filename)
	if !ok {
		return Job{}, false
	}
	parser := factory(parsers.Options{
		Path:    filename,
		URL:     entryURL,
		MinDate: p.MinDate,
		MaxDate: p.MaxDate,
	})
	if parser.ShouldSkip() {
		log.Debugf("poller: parser %s skips %s", name, entryURL)
		return Job{}, false
	}

	if fp, ok := fingerprints[entryURL]; ok &&
		fp.LastModified.Equal(lastModified) && fp.FileSize == fileSize {
		return Job{}, false
	}

	return Job{
		URL:          entryURL,
		Parser:       name,
		LastModified: lastModified,
		FileSize:     fileSize,
	}, true
}

// siblingFileInfo parses the "DD-Mon-YYYY HH:MM  <size>" text node that an
// autoindex page places directly after each file link.
func siblingFileInfo(sel *goquery.Selection) (time.Time, int64, bool) {
	for _, node := range sel.Nodes {
		for sibling := node.NextSibling; sibling != nil; sibling = sibling.NextSibling {
			if sibling.Type != html.TextNode {
				break
			}
			m := fileInfoPattern.FindStringSubmatch(sibling.Data)
			if m == nil {
				continue
			}
			lastModified, err := time.ParseInLocation(fileInfoLayout, m[1], time.UTC)
			if err != nil {
				return time.Time{}, 0, false
			}
			fileSize, err := strconv.ParseInt(m[2], 10, 64)
			if err != nil {
				return time.Time{}, 0, false
			}
			return lastModified, fileSize, true
		}
	}
	return time.Time{}, 0, false
}
