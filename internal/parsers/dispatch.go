package parsers

import (
	"context"
	"regexp"
	"time"

	"github.com/dwdopendata/brightsky/internal/ignoredvalues"
)

// Options bundles the dependencies every parser needs at construction time.
type Options struct {
	Path    string // local, already-downloaded file path
	URL     string // originating remote URL
	MinDate time.Time
	MaxDate time.Time // zero value means "no upper bound"
	Locator StationLocator
	Ignored *ignoredvalues.Map
}

// Parser is the small, shared interface every concrete format decoder
// implements.
type Parser interface {
	ShouldSkip() bool
	Parse(ctx context.Context) (RecordIter, error)
}

// Factory constructs a Parser for a matched file.
type Factory func(Options) Parser

type registryEntry struct {
	name    string
	pattern *regexp.Regexp
	new     Factory
}

// registry is the ordered filename-pattern -> parser dispatch table; the
// first match wins.
var registry = []registryEntry{
	{"mosmix", regexp.MustCompile(`MOSMIX_S_LATEST_240\.kmz$`), newMOSMIXParser},
	{"current_observations", regexp.MustCompile(`^\w{5}-BEOB\.csv$`), newCurrentObservationsParser},
	{"wind_observations", regexp.MustCompile(`^stundenwerte_FF_`), newWindObservationsParser},
	{"pressure_observations", regexp.MustCompile(`^stundenwerte_P0_`), newPressureObservationsParser},
	{"precipitation_observations", regexp.MustCompile(`^stundenwerte_RR_`), newPrecipitationObservationsParser},
	{"sunshine_observations", regexp.MustCompile(`^stundenwerte_SD_`), newSunshineObservationsParser},
	{"temperature_observations", regexp.MustCompile(`^stundenwerte_TU_`), newTemperatureObservationsParser},
}

// Dispatch resolves the parser name and factory for filename, trying each
// registry entry's pattern in order. ok is false when nothing matches, in
// which case the poller skips the file.
func Dispatch(filename string) (name string, factory Factory, ok bool) {
	for _, e := range registry {
		if e.pattern.MatchString(filename) {
			return e.name, e.new, true
		}
	}
	return "", nil, false
}

// New resolves and constructs a parser for filename in one step. It is a
// convenience wrapper around Dispatch for callers (the ingest pipeline)
// that already know they want a parser instance, not just its name.
func New(filename string, opts Options) (Parser, string, bool) {
	name, factory, ok := Dispatch(filename)
	if !ok {
		return nil, "", false
	}
	return factory(opts), name, true
}
