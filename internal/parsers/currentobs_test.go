package parsers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const currentObsCSV = `surface observations;Parameter description;dry_bulb_temperature_at_2_meter_above_ground;mean_wind_direction_during_last_10 min_at_10_meters_above_ground;mean_wind_speed_during last_10_min_at_10_meters_above_ground;precipitation_amount_last_hour;pressure_reduced_to_mean_sea_level;total_time_of_sunshine_during_last_hour
10382_;---;---;---;---;---;---;---
Datum;Uhrzeit (UTC);Lufttemperatur;Windrichtung;Windgeschwindigkeit;Niederschlag;Luftdruck;Sonnenscheindauer
01.06.23;12:00;23,5;180;36,0;0,0;1013,2;30
01.06.23;13:00;---;190;18,0;---;1013,0;60
`

// stubLocator resolves every station to fixed forecast coordinates, or
// fails when missing is set.
type stubLocator struct {
	missing bool
	code    string
}

func (s *stubLocator) LocateForecastStation(_ context.Context, stationCode string) (float64, float64, float64, string, error) {
	s.code = stationCode
	if s.missing {
		return 0, 0, 0, "", &MissingStationError{StationCode: stationCode}
	}
	return 52.5, 13.4, 40, "BERLIN-TEGEL", nil
}

func writeCurrentObsFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "10382-BEOB.csv")
	if err := os.WriteFile(path, []byte(currentObsCSV), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestCurrentObservationsParse(t *testing.T) {
	locator := &stubLocator{}
	parser := newCurrentObservationsParser(Options{
		Path:    writeCurrentObsFixture(t),
		URL:     "https://example.com/10382-BEOB.csv",
		Locator: locator,
	})

	iter, err := parser.Parse(context.Background())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	records := collectRecords(t, iter)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if locator.code != "10382" {
		t.Errorf("looked up station %q, want 10382 (trailing underscore stripped)", locator.code)
	}

	first := records[0]
	if first.ObservationType != "current" {
		t.Errorf("observation type = %q, want current", first.ObservationType)
	}
	if first.Lat != 52.5 || first.Lon != 13.4 || first.Height != 40 {
		t.Errorf("coordinates = (%v, %v, %v), want forecast station's", first.Lat, first.Lon, first.Height)
	}
	want := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, want)
	}
	if first.Temperature == nil || !almostEqual(*first.Temperature, 296.65) {
		t.Errorf("temperature = %v, want 296.65 K from 23,5 degrees C", first.Temperature)
	}
	if first.WindSpeed == nil || !almostEqual(*first.WindSpeed, 10) {
		t.Errorf("wind speed = %v, want 10 m/s from 36 km/h", first.WindSpeed)
	}
	if first.PressureMSL == nil || !almostEqual(*first.PressureMSL, 101320) {
		t.Errorf("pressure = %v, want 101320 Pa from 1013,2 hPa", first.PressureMSL)
	}
	if first.Sunshine == nil || !almostEqual(*first.Sunshine, 1800) {
		t.Errorf("sunshine = %v, want 1800 s from 30 min", first.Sunshine)
	}

	second := records[1]
	if second.Temperature != nil {
		t.Errorf("temperature = %v, want nil for --- sentinel", *second.Temperature)
	}
	if second.Precipitation != nil {
		t.Errorf("precipitation = %v, want nil for --- sentinel", *second.Precipitation)
	}
}

func TestCurrentObservationsMissingStation(t *testing.T) {
	parser := newCurrentObservationsParser(Options{
		Path:    writeCurrentObsFixture(t),
		URL:     "https://example.com/10382-BEOB.csv",
		Locator: &stubLocator{missing: true},
	})

	_, err := parser.Parse(context.Background())
	var missingErr *MissingStationError
	if !errors.As(err, &missingErr) {
		t.Fatalf("got %v, want MissingStationError", err)
	}
	if missingErr.StationCode != "10382" {
		t.Errorf("station code = %q, want 10382", missingErr.StationCode)
	}
}

func almostEqual(got, want float64) bool {
	diff := got - want
	return diff < 1e-6 && diff > -1e-6
}
