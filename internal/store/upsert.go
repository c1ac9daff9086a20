package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dwdopendata/brightsky/internal/parsers"
)

// upsertSource resolves-or-inserts the source row for r, returning its id.
// The unique index on (observation_type, station_code, lat, lon, height)
// makes this safe under concurrent workers: a losing conflict still returns
// the winning row's id via RETURNING.
func upsertSource(tx *gorm.DB, r *parsers.Record) (int64, error) {
	var wmo *string
	if r.WMOStationID != "" {
		wmo = &r.WMOStationID
	}
	var id int64
	err := tx.Raw(upsertSourceSQL,
		r.ObservationType, r.StationCode, wmo, r.StationName, r.Lat, r.Lon, r.Height,
	).Scan(&id).Error
	if err != nil {
		return 0, &DBError{Op: "upsert source", Err: err}
	}
	return id, nil
}

// upsertWeatherRecord writes one record's measurements, keyed by
// (sourceID, timestamp). Null incoming fields never clobber stored values:
// the statement coalesces each column against what is already there, so
// parsers covering disjoint fields compose into a single row.
func upsertWeatherRecord(tx *gorm.DB, sourceID int64, r *parsers.Record) error {
	err := tx.Exec(upsertWeatherRecordSQL,
		sourceID, r.Timestamp, r.Temperature, r.WindDirection, r.WindSpeed,
		r.Precipitation, r.Sunshine, r.PressureMSL,
	).Error
	if err != nil {
		return &DBError{Op: "upsert weather record", Err: err}
	}
	return nil
}

func writeLedger(tx *gorm.DB, url string, lastModified time.Time, fileSize int64) error {
	err := tx.Exec(upsertLedgerSQL, url, lastModified, fileSize).Error
	if err != nil {
		return &DBError{Op: "write ledger", Err: err}
	}
	return nil
}

// IngestFile persists every record yielded by iter, then writes the ledger
// entry for url, all inside one transaction: either all of a file's records
// become visible together with its ledger entry, or neither does. Records
// are applied in the order iter yields them, which is timestamp order
// within a single file.
func (s *Store) IngestFile(ctx context.Context, iter parsers.RecordIter, url string, lastModified time.Time, fileSize int64) (int, error) {
	defer iter.Close()

	count := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			r, ok, err := iter.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}

			sourceID, err := upsertSource(tx, &r)
			if err != nil {
				return err
			}
			if err := upsertWeatherRecord(tx, sourceID, &r); err != nil {
				return err
			}
			count++
		}
		return writeLedger(tx, url, lastModified, fileSize)
	})
	if err != nil {
		return count, fmt.Errorf("store: ingesting %s: %w", url, err)
	}
	return count, nil
}

// WriteLedger records url's fingerprint outside any record batch. Used when
// a file turned out to be malformed: the entry suppresses reattempts until
// the remote fingerprint changes.
func (s *Store) WriteLedger(ctx context.Context, url string, lastModified time.Time, fileSize int64) error {
	return writeLedger(s.DB.WithContext(ctx), url, lastModified, fileSize)
}

// Fingerprints loads the full parsed-files ledger into memory for the
// poller's change detection.
func (s *Store) Fingerprints(ctx context.Context) (map[string]Fingerprint, error) {
	var rows []ParsedFile
	if err := s.DB.WithContext(ctx).Raw(ledgerFingerprintSQL).Scan(&rows).Error; err != nil {
		return nil, &DBError{Op: "load ledger", Err: err}
	}
	fingerprints := make(map[string]Fingerprint, len(rows))
	for _, row := range rows {
		fingerprints[row.URL] = Fingerprint{LastModified: row.LastModified, FileSize: row.FileSize}
	}
	return fingerprints, nil
}

// LocateForecastStation implements parsers.StationLocator by looking up the
// most recently inserted forecast source for stationCode.
func (s *Store) LocateForecastStation(ctx context.Context, stationCode string) (lat, lon, height float64, stationName string, err error) {
	row := s.DB.WithContext(ctx).Raw(lookupForecastStationSQL, stationCode).Row()
	if err := row.Scan(&lat, &lon, &height, &stationName); err != nil {
		return 0, 0, 0, "", &parsers.MissingStationError{StationCode: stationCode}
	}
	return lat, lon, height, stationName, nil
}
