package parsers

import "context"

// StationLocator resolves a current-observations station code to the
// coordinates of its matching forecast source. Implemented by
// internal/store; an interface here because the current-obs parser needs a
// database lookup but the parsers package must not import the store
// package, which imports this one.
type StationLocator interface {
	LocateForecastStation(ctx context.Context, stationCode string) (lat, lon, height float64, stationName string, err error)
}
