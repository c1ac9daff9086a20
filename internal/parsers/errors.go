package parsers

import "fmt"

// ParseError wraps a malformed-file failure. A ParseError is logged with
// the file's URL and the job is not retried; the caller still writes the
// ledger entry so reattempts are suppressed until the file's fingerprint
// changes.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsers: parsing %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingStationError is returned by the current-observations parser when
// no forecast source exists for the station referenced by the CSV. The
// caller must not write the ledger entry for this file, so a later
// forecast ingest can unblock a retry.
type MissingStationError struct {
	StationCode string
}

func (e *MissingStationError) Error() string {
	return fmt.Sprintf("parsers: unable to find forecast location for station %q", e.StationCode)
}
