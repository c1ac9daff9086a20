// Package ingest glues the pipeline stages together for one file: download
// through the cache, dispatch to a parser, sanitize, persist, and write the
// ledger entry. It is invoked by the worker pool and by the parse CLI
// command, always inside a single cancelable context.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/dwdopendata/brightsky/internal/cache"
	"github.com/dwdopendata/brightsky/internal/config"
	"github.com/dwdopendata/brightsky/internal/ignoredvalues"
	"github.com/dwdopendata/brightsky/internal/log"
	"github.com/dwdopendata/brightsky/internal/parsers"
	"github.com/dwdopendata/brightsky/internal/poller"
	"github.com/dwdopendata/brightsky/internal/store"
)

// Pipeline carries the shared collaborators every ingest needs. The
// ignored-values map is loaded once at construction and never mutated.
type Pipeline struct {
	Cache   *cache.Cache
	Store   *store.Store
	Config  *config.Config
	Ignored *ignoredvalues.Map
}

// New assembles a pipeline from loaded configuration and an open store.
func New(cfg *config.Config, c *cache.Cache, s *store.Store) (*Pipeline, error) {
	ignored, err := ignoredvalues.Load(cfg.IgnoredValuesPath)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Cache: c, Store: s, Config: cfg, Ignored: ignored}, nil
}

// NewParser resolves and constructs the parser for a local file, wiring in
// the pipeline's station locator and ignored-values map.
func (p *Pipeline) NewParser(localPath, url string) (parsers.Parser, string, bool) {
	return parsers.New(path.Base(localPath), parsers.Options{
		Path:    localPath,
		URL:     url,
		MinDate: p.Config.MinDate,
		MaxDate: p.Config.MaxDate,
		Locator: p.Store,
		Ignored: p.Ignored,
	})
}

// Process executes one job end to end. A fetch failure propagates so the
// caller can log it; the file stays off the ledger and is retried on the
// next poll. A malformed file is logged and its ledger entry written, so
// it is not reattempted until its fingerprint changes. A missing forecast
// station is logged without a ledger write, so a later forecast ingest
// unblocks the retry.
func (p *Pipeline) Process(ctx context.Context, job poller.Job) error {
	localPath, err := p.Cache.Fetch(ctx, job.URL)
	if err != nil {
		return err
	}

	parser, name, ok := p.NewParser(localPath, job.URL)
	if !ok {
		return fmt.Errorf("ingest: no parser matches %s", job.URL)
	}
	if parser.ShouldSkip() {
		log.Debugf("ingest: parser %s skips %s", name, job.URL)
		return nil
	}

	iter, err := parser.Parse(ctx)
	if err != nil {
		return p.handleParseFailure(ctx, job, err)
	}

	count, err := p.Store.IngestFile(ctx, iter, job.URL, job.LastModified, job.FileSize)
	if err != nil {
		return p.handleParseFailure(ctx, job, err)
	}
	log.Infof("ingest: %s: persisted %d records via %s", job.URL, count, name)

	if !p.Config.KeepDownloads {
		if err := p.Cache.Remove(job.URL); err != nil {
			log.Warnf("ingest: removing download for %s: %v", job.URL, err)
		}
	}
	return nil
}

func (p *Pipeline) handleParseFailure(ctx context.Context, job poller.Job, err error) error {
	var missingStation *parsers.MissingStationError
	if errors.As(err, &missingStation) {
		log.Warnf("ingest: %s: %v; ledger not updated, will retry after a forecast ingest", job.URL, missingStation)
		return nil
	}

	var parseErr *parsers.ParseError
	if errors.As(err, &parseErr) {
		log.Errorf("ingest: %s: %v", job.URL, parseErr)
		if lerr := p.Store.WriteLedger(ctx, job.URL, job.LastModified, job.FileSize); lerr != nil {
			return lerr
		}
		return nil
	}

	// DB failures and cancellation abort the job; the transaction has
	// rolled back and the next poll retries the file.
	return err
}
