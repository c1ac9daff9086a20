package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultMaxDist is the geographic search radius, in meters, applied when a
// caller supplies coordinates without an explicit radius.
const DefaultMaxDist = 50000.0

// SourcesCriteria selects sources by exactly one of: surrogate ID, DWD
// station code, WMO station ID, or geographic proximity.
type SourcesCriteria struct {
	SourceID     int64
	StationCode  string
	WMOStationID string

	Lat, Lon *float64
	MaxDist  float64

	// IgnoreType orders geographic results by distance alone instead of
	// observation-type preference first.
	IgnoreType bool
}

// Sources resolves c to an ordered list of candidate sources. Geographic
// lookups return every source within MaxDist meters, ordered by observation
// type preference (current, recent, historical, forecast) and then
// distance. An empty result is a LookupError.
func (s *Store) Sources(ctx context.Context, c SourcesCriteria) ([]SourceResult, error) {
	var results []SourceResult
	var err error

	switch {
	case c.SourceID != 0:
		var sources []Source
		err = s.DB.WithContext(ctx).Raw(sourceByIDSQL, c.SourceID).Scan(&sources).Error
		results = wrapSources(sources)
	case c.StationCode != "":
		var sources []Source
		err = s.DB.WithContext(ctx).Raw(sourcesByStationCodeSQL, c.StationCode).Scan(&sources).Error
		results = wrapSources(sources)
	case c.WMOStationID != "":
		var sources []Source
		err = s.DB.WithContext(ctx).Raw(sourcesByWMOIDSQL, c.WMOStationID).Scan(&sources).Error
		results = wrapSources(sources)
	case c.Lat != nil && c.Lon != nil:
		maxDist := c.MaxDist
		if maxDist <= 0 {
			maxDist = DefaultMaxDist
		}
		query := sourcesByGeoSQL
		if c.IgnoreType {
			query = sourcesByGeoIgnoreTypeSQL
		}
		err = s.DB.WithContext(ctx).Raw(query, *c.Lat, *c.Lon, maxDist).Scan(&results).Error
	default:
		return nil, fmt.Errorf("store: sources query needs an ID, a station code, or coordinates")
	}

	if err != nil {
		return nil, &DBError{Op: "query sources", Err: err}
	}
	if len(results) == 0 {
		return nil, &LookupError{Criteria: describeCriteria(c)}
	}
	return results, nil
}

func wrapSources(sources []Source) []SourceResult {
	results := make([]SourceResult, len(sources))
	for i, src := range sources {
		results[i] = SourceResult{Source: src}
	}
	return results
}

func describeCriteria(c SourcesCriteria) string {
	switch {
	case c.SourceID != 0:
		return fmt.Sprintf("source ID %d", c.SourceID)
	case c.StationCode != "":
		return fmt.Sprintf("station code %q", c.StationCode)
	case c.WMOStationID != "":
		return fmt.Sprintf("WMO station ID %q", c.WMOStationID)
	case c.Lat != nil && c.Lon != nil:
		return fmt.Sprintf("coordinates (%v, %v)", *c.Lat, *c.Lon)
	default:
		return "empty criteria"
	}
}

// WeatherQuery selects weather rows for a time interval and a set of
// candidate sources resolved through SourcesCriteria.
type WeatherQuery struct {
	Date     time.Time
	LastDate time.Time // zero value defaults to Date + 24h

	SourcesCriteria

	// Fallback enables the one-extra-query fill of missing fields from
	// lower-preference sources.
	Fallback bool
}

// WeatherRow is one result row, annotated with the source that contributed
// each fallback-filled field.
type WeatherRow struct {
	WeatherRecord
	FallbackSourceIDs map[string]int64 `json:"fallback_source_ids,omitempty"`
}

// WeatherResult bundles the returned rows with the source rows that
// actually contributed to them.
type WeatherResult struct {
	Weather []WeatherRow   `json:"weather"`
	Sources []SourceResult `json:"sources"`
}

// Weather answers a point-in-time query: for each timestamp in the
// interval, the row from the most-preferred candidate source that has one.
// With Fallback set, missing fields on returned rows are filled from a
// single additional query over the same candidates, restricted to rows
// where all the originally-missing fields are present.
func (s *Store) Weather(ctx context.Context, q WeatherQuery) (*WeatherResult, error) {
	lastDate := q.LastDate
	if lastDate.IsZero() {
		lastDate = q.Date.Add(24 * time.Hour)
	}

	candidates, err := s.Sources(ctx, q.SourcesCriteria)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}

	var primary []WeatherRecord
	err = s.DB.WithContext(ctx).Raw(weatherByRankSQL, ids, q.Date, lastDate).Scan(&primary).Error
	if err != nil {
		return nil, &DBError{Op: "query weather", Err: err}
	}
	if len(primary) == 0 {
		return nil, &LookupError{Criteria: fmt.Sprintf("weather between %s and %s for %s",
			q.Date.Format(time.RFC3339), lastDate.Format(time.RFC3339), describeCriteria(q.SourcesCriteria))}
	}

	rows := make([]WeatherRow, len(primary))
	for i, rec := range primary {
		rows[i] = WeatherRow{WeatherRecord: rec}
	}

	if q.Fallback {
		missing := missingFields(primary)
		if len(missing) > 0 {
			fallback, err := s.fallbackRows(ctx, ids, q.Date, lastDate, missing)
			if err != nil {
				return nil, err
			}
			fillFromFallback(rows, fallback)
		}
	}

	return &WeatherResult{
		Weather: rows,
		Sources: contributingSources(candidates, rows),
	}, nil
}

// missingFields returns the union, over all rows, of nullable fields with
// no value.
func missingFields(rows []WeatherRecord) []string {
	var missing []string
	for _, f := range weatherFields {
		for i := range rows {
			if f.get(&rows[i]) == nil {
				missing = append(missing, f.name)
				break
			}
		}
	}
	return missing
}

func (s *Store) fallbackRows(ctx context.Context, ids []int64, date, lastDate time.Time, fields []string) (map[time.Time]WeatherRecord, error) {
	conditions := make([]string, len(fields))
	for i, f := range fields {
		conditions[i] = f + " IS NOT NULL"
	}
	query := fmt.Sprintf(weatherFallbackSQLTemplate, strings.Join(conditions, " AND "))

	var rows []WeatherRecord
	if err := s.DB.WithContext(ctx).Raw(query, ids, date, lastDate).Scan(&rows).Error; err != nil {
		return nil, &DBError{Op: "query fallback weather", Err: err}
	}

	byTimestamp := make(map[time.Time]WeatherRecord, len(rows))
	for _, row := range rows {
		byTimestamp[row.Timestamp.UTC()] = row
	}
	return byTimestamp, nil
}

// fillFromFallback copies, for each incomplete row, the missing fields from
// the fallback row at the same timestamp, recording the contributing source
// per filled field.
func fillFromFallback(rows []WeatherRow, fallback map[time.Time]WeatherRecord) {
	for i := range rows {
		fb, ok := fallback[rows[i].Timestamp.UTC()]
		if !ok || fb.SourceID == rows[i].SourceID {
			continue
		}
		for _, f := range weatherFields {
			if f.get(&rows[i].WeatherRecord) != nil {
				continue
			}
			v := f.get(&fb)
			if v == nil {
				continue
			}
			f.set(&rows[i].WeatherRecord, v)
			if rows[i].FallbackSourceIDs == nil {
				rows[i].FallbackSourceIDs = make(map[string]int64)
			}
			rows[i].FallbackSourceIDs[f.name] = fb.SourceID
		}
	}
}

// contributingSources filters candidates down to the sources that appear in
// the result, either as a row's owner or as a fallback contributor.
func contributingSources(candidates []SourceResult, rows []WeatherRow) []SourceResult {
	used := make(map[int64]bool)
	for i := range rows {
		used[rows[i].SourceID] = true
		for _, id := range rows[i].FallbackSourceIDs {
			used[id] = true
		}
	}
	var contributing []SourceResult
	for _, c := range candidates {
		if used[c.ID] {
			contributing = append(contributing, c)
		}
	}
	return contributing
}

// Clean deletes forecast and current rows older than the retention horizon.
// Recent and historical observations are never pruned.
func (s *Store) Clean(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	result := s.DB.WithContext(ctx).Exec(cleanWeatherSQL, cutoff)
	if result.Error != nil {
		return 0, &DBError{Op: "clean weather", Err: result.Error}
	}
	return result.RowsAffected, nil
}
