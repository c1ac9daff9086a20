package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dwdopendata/brightsky/internal/cache"
	"github.com/dwdopendata/brightsky/internal/config"
	"github.com/dwdopendata/brightsky/internal/httpapi"
	"github.com/dwdopendata/brightsky/internal/ingest"
	"github.com/dwdopendata/brightsky/internal/log"
	"github.com/dwdopendata/brightsky/internal/poller"
	"github.com/dwdopendata/brightsky/internal/queue"
	"github.com/dwdopendata/brightsky/internal/store"
)

// openPipeline assembles the store, cache, and ingest pipeline shared by
// the parse, poll, and work commands.
func openPipeline(cfg *config.Config) (*ingest.Pipeline, error) {
	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	c := cache.New(cfg.CacheDir, cfg.FetchRetries)
	return ingest.New(cfg, c, s)
}

func cmdParse(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	path := fs.String("path", "", "local file to parse")
	url := fs.String("url", "", "remote file to download and parse")
	export := fs.Bool("export", false, "persist records instead of printing them")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if (*path == "") == (*url == "") {
		fmt.Fprintln(os.Stderr, "parse: exactly one of --path and --url is required")
		return exitUsage
	}

	pipeline, err := openPipeline(cfg)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	defer pipeline.Store.Close()

	localPath, sourceURL := *path, *url
	if *url != "" {
		if localPath, err = pipeline.Cache.Fetch(ctx, *url); err != nil {
			log.Errorf("%v", err)
			return exitRuntime
		}
	} else {
		sourceURL = "file://" + localPath
	}

	parser, name, ok := pipeline.NewParser(localPath, sourceURL)
	if !ok {
		fmt.Fprintf(os.Stderr, "parse: no parser matches %s\n", localPath)
		return exitUsage
	}
	if parser.ShouldSkip() {
		log.Infof("parse: parser %s skips %s", name, localPath)
		return exitOK
	}

	iter, err := parser.Parse(ctx)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	defer iter.Close()

	if *export {
		fi, err := os.Stat(localPath)
		if err != nil {
			log.Errorf("parse: %v", err)
			return exitRuntime
		}
		count, err := pipeline.Store.IngestFile(ctx, iter, sourceURL, fi.ModTime().UTC(), fi.Size())
		if err != nil {
			log.Errorf("%v", err)
			return exitRuntime
		}
		log.Infof("parse: persisted %d records via %s", count, name)
		return exitOK
	}

	encoder := json.NewEncoder(os.Stdout)
	for {
		record, ok, err := iter.Next()
		if err != nil {
			log.Errorf("%v", err)
			return exitRuntime
		}
		if !ok {
			return exitOK
		}
		if err := encoder.Encode(record); err != nil {
			log.Errorf("parse: encoding record: %v", err)
			return exitRuntime
		}
	}
}

func cmdPoll(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("poll", flag.ContinueOnError)
	enqueue := fs.Bool("enqueue", false, "enqueue changed files instead of listing them")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	pipeline, err := openPipeline(cfg)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	defer pipeline.Store.Close()

	p := &poller.Poller{
		Seeds:   poller.DefaultSeeds,
		Fetcher: pipeline.Cache,
		Ledger:  pipeline.Store,
		MinDate: cfg.MinDate,
		MaxDate: cfg.MaxDate,
	}

	if *enqueue {
		q, err := queue.Open(cfg.RedisURL)
		if err != nil {
			log.Errorf("%v", err)
			return exitRuntime
		}
		defer q.Close()

		count := 0
		err = p.Walk(ctx, func(j poller.Job) error {
			count++
			return q.Enqueue(ctx, j)
		})
		if err != nil {
			log.Errorf("poll: %v", err)
			return exitRuntime
		}
		log.Infof("poll: enqueued %d jobs", count)
		return exitOK
	}

	encoder := json.NewEncoder(os.Stdout)
	err = p.Walk(ctx, func(j poller.Job) error {
		return encoder.Encode(j)
	})
	if err != nil {
		log.Errorf("poll: %v", err)
		return exitRuntime
	}
	return exitOK
}

func cmdClean(ctx context.Context, cfg *config.Config, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "clean: takes no arguments")
		return exitUsage
	}
	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	defer s.Close()

	deleted, err := s.Clean(ctx, time.Duration(cfg.RetentionDays)*24*time.Hour)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	log.Infof("clean: deleted %d expired records", deleted)
	return exitOK
}

func cmdWork(ctx context.Context, cfg *config.Config, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "work: takes no arguments")
		return exitUsage
	}
	pipeline, err := openPipeline(cfg)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	defer pipeline.Store.Close()

	q, err := queue.Open(cfg.RedisURL)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	defer q.Close()

	pool := &queue.Pool{Queue: q, Workers: cfg.WorkerCount, Handle: pipeline.Process}
	if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
		log.Errorf("work: %v", err)
		return exitRuntime
	}
	return exitOK
}

func cmdServe(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	bind := fs.String("bind", "127.0.0.1:8000", "HOST:PORT to listen on")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	defer s.Close()

	server := httpapi.New(s, *bind)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		log.Errorf("serve: %v", err)
		return exitRuntime
	}
	return exitOK
}

// queryFlags adds the source-selection flags shared by query and sources.
func queryFlags(fs *flag.FlagSet) (sourceID *int64, dwdStationID, wmoStationID *string, maxDist *float64) {
	sourceID = fs.Int64("source-id", 0, "select a source by its surrogate ID")
	dwdStationID = fs.String("dwd-station-id", "", "select sources by DWD station code")
	wmoStationID = fs.String("wmo-station-id", "", "select sources by WMO station ID")
	maxDist = fs.Float64("max-dist", 0, "geographic search radius in meters")
	return
}

func parseCoordinates(positionals []string, offset int) (*float64, *float64, error) {
	if len(positionals) < offset+2 {
		return nil, nil, nil
	}
	lat, err := strconv.ParseFloat(positionals[offset], 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid latitude %q", positionals[offset])
	}
	lon, err := strconv.ParseFloat(positionals[offset+1], 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid longitude %q", positionals[offset+1])
	}
	return &lat, &lon, nil
}

func parseDateArg(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, want ISO-8601", s)
}

func cmdQuery(ctx context.Context, cfg *config.Config, args []string) int {
	positionals, flagArgs := splitPositionals(args)
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	sourceID, dwdStationID, wmoStationID, maxDist := queryFlags(fs)
	fallback := fs.Bool("fallback", true, "fill missing fields from lower-preference sources")
	if err := fs.Parse(flagArgs); err != nil {
		return exitUsage
	}

	if len(positionals) == 0 || len(positionals) == 2 || len(positionals) > 4 {
		fmt.Fprintln(os.Stderr, "query: want DATE [LAT LON [LAST_DATE]]")
		return exitUsage
	}

	date, err := parseDateArg(positionals[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		return exitUsage
	}
	lat, lon, err := parseCoordinates(positionals, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		return exitUsage
	}
	var lastDate time.Time
	if len(positionals) == 4 {
		if lastDate, err = parseDateArg(positionals[3]); err != nil {
			fmt.Fprintf(os.Stderr, "query: %v\n", err)
			return exitUsage
		}
	}

	criteria := store.SourcesCriteria{
		SourceID:     *sourceID,
		StationCode:  *dwdStationID,
		WMOStationID: *wmoStationID,
		Lat:          lat,
		Lon:          lon,
		MaxDist:      *maxDist,
	}
	if criteria.SourceID == 0 && criteria.StationCode == "" && criteria.WMOStationID == "" && criteria.Lat == nil {
		fmt.Fprintln(os.Stderr, "query: supply coordinates or one of --source-id, --dwd-station-id, --wmo-station-id")
		return exitUsage
	}

	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	defer s.Close()

	result, err := s.Weather(ctx, store.WeatherQuery{
		Date:            date,
		LastDate:        lastDate,
		SourcesCriteria: criteria,
		Fallback:        *fallback,
	})
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	return printJSON(result)
}

func cmdSources(ctx context.Context, cfg *config.Config, args []string) int {
	positionals, flagArgs := splitPositionals(args)
	fs := flag.NewFlagSet("sources", flag.ContinueOnError)
	sourceID, dwdStationID, wmoStationID, maxDist := queryFlags(fs)
	ignoreType := fs.Bool("ignore-type", false, "order geographic results by distance alone")
	if err := fs.Parse(flagArgs); err != nil {
		return exitUsage
	}
	if len(positionals) != 0 && len(positionals) != 2 {
		fmt.Fprintln(os.Stderr, "sources: want [LAT LON]")
		return exitUsage
	}

	lat, lon, err := parseCoordinates(positionals, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sources: %v\n", err)
		return exitUsage
	}

	criteria := store.SourcesCriteria{
		SourceID:     *sourceID,
		StationCode:  *dwdStationID,
		WMOStationID: *wmoStationID,
		Lat:          lat,
		Lon:          lon,
		MaxDist:      *maxDist,
		IgnoreType:   *ignoreType,
	}
	if criteria.SourceID == 0 && criteria.StationCode == "" && criteria.WMOStationID == "" && criteria.Lat == nil {
		fmt.Fprintln(os.Stderr, "sources: supply coordinates or one of --source-id, --dwd-station-id, --wmo-station-id")
		return exitUsage
	}

	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	defer s.Close()

	sources, err := s.Sources(ctx, criteria)
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}
	return printJSON(map[string]interface{}{"sources": sources})
}

func printJSON(v interface{}) int {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		log.Errorf("encoding output: %v", err)
		return exitRuntime
	}
	return exitOK
}
