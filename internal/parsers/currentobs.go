package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dwdopendata/brightsky/internal/units"
)

// currentObsElements maps a current-observations CSV column to the Record
// field it populates and the unit converter applied to a parsed value.
var currentObsElements = []struct {
	column    string
	set       func(r *Record, v *float64)
	converter func(float64) float64
}{
	{"dry_bulb_temperature_at_2_meter_above_ground", func(r *Record, v *float64) { r.Temperature = v }, units.CelsiusToKelvin},
	// The feed's wind headers really do contain these stray spaces.
	{"mean_wind_direction_during_last_10 min_at_10_meters_above_ground", func(r *Record, v *float64) { r.WindDirection = v }, nil},
	{"mean_wind_speed_during last_10_min_at_10_meters_above_ground", func(r *Record, v *float64) { r.WindSpeed = v }, units.KmhToMs},
	{"precipitation_amount_last_hour", func(r *Record, v *float64) { r.Precipitation = v }, nil},
	{"pressure_reduced_to_mean_sea_level", func(r *Record, v *float64) { r.PressureMSL = v }, units.HPaToPa},
	{"total_time_of_sunshine_during_last_hour", func(r *Record, v *float64) { r.Sunshine = v }, units.MinutesToSeconds},
}

const (
	currentObsDateColumn = "surface observations"
	currentObsHourColumn = "Parameter description"
)

// CurrentObservationsParser decodes a "<station>-BEOB.csv" current weather
// report. Unlike the historical/recent parsers, the station's coordinates
// are not present in the file and must be resolved from the source history
// recorded for the matching forecast station, via Locator.
type CurrentObservationsParser struct {
	opts Options
}

func newCurrentObservationsParser(opts Options) Parser {
	return &CurrentObservationsParser{opts: opts}
}

func (p *CurrentObservationsParser) ShouldSkip() bool { return false }

func (p *CurrentObservationsParser) Parse(ctx context.Context) (RecordIter, error) {
	f, err := os.Open(p.opts.Path)
	if err != nil {
		return nil, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("opening file: %w", err)}
	}

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		f.Close()
		return nil, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("reading header: %w", err)}
	}
	cols := columnIndex(header)

	firstRow, err := reader.Read()
	if err != nil {
		f.Close()
		return nil, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("reading station ID row: %w", err)}
	}
	stationCode := strings.TrimRight(strings.TrimSpace(firstRow[cols[currentObsDateColumn]]), "_")

	lat, lon, height, stationName, err := p.opts.Locator.LocateForecastStation(ctx, stationCode)
	if err != nil {
		f.Close()
		return nil, &MissingStationError{StationCode: stationCode}
	}

	// Skip the row of German header titles.
	if _, err := reader.Read(); err != nil {
		f.Close()
		return nil, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("reading German header row: %w", err)}
	}

	next := func() (Record, bool, error) {
		row, err := reader.Read()
		if err == io.EOF {
			return Record{}, false, nil
		}
		if err != nil {
			return Record{}, false, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("reading row: %w", err)}
		}

		ts, err := units.ParseGermanDateTime(fmt.Sprintf("%s %s",
			row[cols[currentObsDateColumn]], row[cols[currentObsHourColumn]]))
		if err != nil {
			return Record{}, false, &ParseError{URL: p.opts.URL, Err: err}
		}

		r := Record{
			ObservationType: "current",
			StationCode:     stationCode,
			StationName:     stationName,
			Lat:             lat,
			Lon:             lon,
			Height:          height,
			Timestamp:       ts,
			Provenance:      fmt.Sprintf("CurrentObservations:%s", stationCode),
		}
		for _, el := range currentObsElements {
			raw := strings.TrimSpace(row[cols[el.column]])
			v, err := parseDashes(raw)
			if err != nil {
				return Record{}, false, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("parsing %s %q: %w", el.column, raw, err)}
			}
			if v != nil && el.converter != nil {
				converted := el.converter(*v)
				v = &converted
			}
			el.set(&r, v)
		}
		sanitize(&r)
		return r, true, nil
	}

	return &funcIter{next: next, close: f.Close}, nil
}

// parseDashes parses a current-observations value cell, where "---" denotes
// a missing sample and decimal commas are used in place of decimal points.
func parseDashes(s string) (*float64, error) {
	if s == "---" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
