// Package parsers implements the format-specific decoders described in the
// parser family component: MOSMIX forecasts, current observations, and the
// five historical/recent observation variants, dispatched by filename.
package parsers

import "time"

// Record is the normalized, parser-produced shape of one observation or
// forecast point, prior to source resolution. It carries enough identity
// information (ObservationType, StationCode, Lat/Lon/Height) for the
// persistence layer to resolve-or-insert the owning Source row.
type Record struct {
	ObservationType string
	StationCode     string
	WMOStationID    string
	StationName     string
	Lat             float64
	Lon             float64
	Height          float64
	Timestamp       time.Time

	Temperature   *float64
	WindDirection *float64
	WindSpeed     *float64
	Precipitation *float64
	Sunshine      *float64
	PressureMSL   *float64

	// Provenance is a human-readable description of where the record came
	// from (e.g. "MOSMIX_S:2023-06-01T12:00:00Z" or
	// "Observations:Recent:produkt_tu_stunde_..."), logged but not part of
	// the Source identity tuple.
	Provenance string
}

// RecordIter is a pull-based record iterator: callers advance explicitly
// and must Close to release any underlying ZIP handle or CSV reader, even
// on early termination or error.
type RecordIter interface {
	// Next advances to the next record. It returns (record, true, nil) if
	// a record was produced, (zero, false, nil) at clean end of stream, or
	// (zero, false, err) on failure.
	Next() (Record, bool, error)
	Close() error
}

// sliceIter adapts an already-materialized []Record to RecordIter, for
// parsers (like MOSMIX, which must read the whole station list before
// producing any record) where true streaming buys nothing.
type sliceIter struct {
	records []Record
	pos     int
}

func newSliceIter(records []Record) *sliceIter {
	return &sliceIter{records: records}
}

func (it *sliceIter) Next() (Record, bool, error) {
	if it.pos >= len(it.records) {
		return Record{}, false, nil
	}
	r := it.records[it.pos]
	it.pos++
	return r, true, nil
}

func (it *sliceIter) Close() error { return nil }

// funcIter adapts a pull function and a close function to RecordIter, for
// parsers that stream directly off a csv.Reader inside an open zip.File.
type funcIter struct {
	next  func() (Record, bool, error)
	close func() error
}

func (it *funcIter) Next() (Record, bool, error) { return it.next() }
func (it *funcIter) Close() error {
	if it.close == nil {
		return nil
	}
	return it.close()
}
