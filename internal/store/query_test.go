package store

import (
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func ts(hour int) time.Time {
	return time.Date(2023, 6, 1, hour, 0, 0, 0, time.UTC)
}

func TestMissingFields(t *testing.T) {
	rows := []WeatherRecord{
		{SourceID: 1, Timestamp: ts(12), Temperature: f(296.65)},
		{SourceID: 1, Timestamp: ts(13), Temperature: f(297.15), PressureMSL: f(101300)},
	}
	missing := missingFields(rows)

	want := map[string]bool{
		"wind_direction": true, "wind_speed": true, "precipitation": true,
		"sunshine": true, "pressure_msl": true,
	}
	if len(missing) != len(want) {
		t.Fatalf("missing = %v", missing)
	}
	for _, name := range missing {
		if !want[name] {
			t.Errorf("unexpected missing field %q", name)
		}
	}
}

func TestFillFromFallback(t *testing.T) {
	rows := []WeatherRow{
		{WeatherRecord: WeatherRecord{SourceID: 1, Timestamp: ts(12), Temperature: f(296.65)}},
		{WeatherRecord: WeatherRecord{SourceID: 1, Timestamp: ts(13), Temperature: f(297.15), PressureMSL: f(101300)}},
	}
	fallback := map[time.Time]WeatherRecord{
		ts(12): {SourceID: 2, Timestamp: ts(12), Temperature: f(290), PressureMSL: f(101320)},
	}

	fillFromFallback(rows, fallback)

	if rows[0].Temperature == nil || *rows[0].Temperature != 296.65 {
		t.Errorf("primary temperature must not be overwritten, got %v", rows[0].Temperature)
	}
	if rows[0].PressureMSL == nil || *rows[0].PressureMSL != 101320 {
		t.Errorf("pressure = %v, want 101320 filled from fallback", rows[0].PressureMSL)
	}
	if got := rows[0].FallbackSourceIDs["pressure_msl"]; got != 2 {
		t.Errorf("fallback source for pressure_msl = %d, want 2", got)
	}
	if _, ok := rows[0].FallbackSourceIDs["temperature"]; ok {
		t.Error("temperature was never missing, must not be attributed to a fallback")
	}

	// No fallback row at 13:00, so the second row stays incomplete.
	if rows[1].WindSpeed != nil || rows[1].FallbackSourceIDs != nil {
		t.Error("row without a fallback match must stay unchanged")
	}
}

func TestFillFromFallbackIgnoresSameSource(t *testing.T) {
	rows := []WeatherRow{
		{WeatherRecord: WeatherRecord{SourceID: 1, Timestamp: ts(12), Temperature: f(296.65)}},
	}
	fallback := map[time.Time]WeatherRecord{
		ts(12): {SourceID: 1, Timestamp: ts(12), Temperature: f(296.65), PressureMSL: f(101320)},
	}

	fillFromFallback(rows, fallback)
	if rows[0].PressureMSL != nil {
		t.Error("a row must not fall back to its own source")
	}
}

func TestContributingSources(t *testing.T) {
	candidates := []SourceResult{
		{Source: Source{ID: 1, ObservationType: "current"}},
		{Source: Source{ID: 2, ObservationType: "recent"}},
		{Source: Source{ID: 3, ObservationType: "forecast"}},
	}
	rows := []WeatherRow{
		{WeatherRecord: WeatherRecord{SourceID: 1, Timestamp: ts(12)},
			FallbackSourceIDs: map[string]int64{"pressure_msl": 3}},
	}

	contributing := contributingSources(candidates, rows)
	if len(contributing) != 2 {
		t.Fatalf("got %d sources, want 2", len(contributing))
	}
	if contributing[0].ID != 1 || contributing[1].ID != 3 {
		t.Errorf("contributing = [%d, %d], want [1, 3] in preference order", contributing[0].ID, contributing[1].ID)
	}
}
