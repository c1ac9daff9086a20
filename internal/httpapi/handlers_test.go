package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestParseSourcesCriteria(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{"by source id", "source_id=7", false},
		{"by station code", "dwd_station_id=01766", false},
		{"by wmo id", "wmo_station_id=10315", false},
		{"by coordinates", "lat=52.5&lon=13.4", false},
		{"coordinates with radius", "lat=52.5&lon=13.4&max_dist=2000", false},
		{"no criteria", "", true},
		{"lat without lon", "lat=52.5", true},
		{"bad source id", "source_id=abc", true},
		{"negative radius", "lat=52.5&lon=13.4&max_dist=-1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("parsing query: %v", err)
			}
			_, err = parseSourcesCriteria(params)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseSourcesCriteria(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
		})
	}
}

func TestHandleWeatherRejectsMissingDate(t *testing.T) {
	srv := &Server{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/weather?lat=52.5&lon=13.4", nil)

	srv.handleWeather(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing date", rec.Code)
	}
}

func TestHandleSourcesRejectsMissingCriteria(t *testing.T) {
	srv := &Server{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sources", nil)

	srv.handleSources(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing criteria", rec.Code)
	}
}
