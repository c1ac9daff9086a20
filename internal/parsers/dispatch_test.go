package parsers

import "testing"

func TestDispatch(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		ok       bool
	}{
		{"MOSMIX_S_LATEST_240.kmz", "mosmix", true},
		{"10382-BEOB.csv", "current_observations", true},
		{"stundenwerte_TU_00044_19710301_20231231_hist.zip", "temperature_observations", true},
		{"stundenwerte_TU_00044_akt.zip", "temperature_observations", true},
		{"stundenwerte_RR_00044_akt.zip", "precipitation_observations", true},
		{"stundenwerte_FF_00044_akt.zip", "wind_observations", true},
		{"stundenwerte_SD_00044_akt.zip", "sunshine_observations", true},
		{"stundenwerte_P0_00044_akt.zip", "pressure_observations", true},
		{"README.txt", "", false},
		{"MOSMIX_L_LATEST.kmz", "", false},
	}
	for _, tt := range tests {
		name, _, ok := Dispatch(tt.filename)
		if ok != tt.ok || name != tt.want {
			t.Errorf("Dispatch(%q) = (%q, %v), want (%q, %v)", tt.filename, name, ok, tt.want, tt.ok)
		}
	}
}

func TestSanitize(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	r := &Record{WindDirection: f(370), Precipitation: f(-0.1)}
	sanitize(r)
	if r.WindDirection == nil || *r.WindDirection != 10 {
		t.Errorf("wind direction = %v, want 10", r.WindDirection)
	}
	if r.Precipitation != nil {
		t.Errorf("precipitation = %v, want nil", *r.Precipitation)
	}

	r = &Record{WindDirection: f(-5)}
	sanitize(r)
	if r.WindDirection != nil {
		t.Errorf("wind direction = %v, want nil for negative input", *r.WindDirection)
	}

	r = &Record{WindDirection: f(359.9), Precipitation: f(0)}
	sanitize(r)
	if r.WindDirection == nil || r.Precipitation == nil {
		t.Error("in-range values must pass through unchanged")
	}
}
