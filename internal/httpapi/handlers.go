package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dwdopendata/brightsky/internal/log"
	"github.com/dwdopendata/brightsky/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("httpapi: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// handleWeather answers GET /weather?date=...&lat=...&lon=... and the
// station-ID variants. Empty results are 404, bad criteria 400.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	date, err := parseDateParam(params, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if date.IsZero() {
		writeError(w, http.StatusBadRequest, "missing required parameter date")
		return
	}
	lastDate, err := parseDateParam(params, "last_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	criteria, err := parseSourcesCriteria(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	fallback := true
	if v := params.Get("fallback"); v != "" {
		if fallback, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid fallback value %q", v)
			return
		}
	}

	result, err := s.store.Weather(r.Context(), store.WeatherQuery{
		Date:            date,
		LastDate:        lastDate,
		SourcesCriteria: criteria,
		Fallback:        fallback,
	})
	if err != nil {
		respondQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSources answers GET /sources with the same criteria surface as the
// sources CLI command.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	criteria, err := parseSourcesCriteria(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	sources, err := s.store.Sources(r.Context(), criteria)
	if err != nil {
		respondQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
}

// handleStatus reports liveness and the most recent log entries from the
// in-memory ring buffers.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.store.DB.DB()
	dbOK := err == nil && sqlDB.PingContext(r.Context()) == nil

	status := http.StatusOK
	if !dbOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"database": dbOK,
		"logs":     s.recentLogs(log.GetLogBuffer()),
		"requests": s.recentLogs(log.GetHTTPLogBuffer()),
	})
}

func (s *Server) recentLogs(buffer *log.LogBuffer) []log.LogEntry {
	if buffer == nil {
		return nil
	}
	entries := buffer.GetLogs(false)
	if len(entries) > 50 {
		entries = entries[len(entries)-50:]
	}
	return entries
}

func respondQueryError(w http.ResponseWriter, err error) {
	var lookupErr *store.LookupError
	if errors.As(err, &lookupErr) {
		writeError(w, http.StatusNotFound, "%v", lookupErr)
		return
	}
	log.Errorf("httpapi: query failed: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// parseSourcesCriteria reads the shared lookup parameters: source_id,
// dwd_station_id, wmo_station_id, or lat/lon with optional max_dist.
func parseSourcesCriteria(params url.Values) (store.SourcesCriteria, error) {
	var c store.SourcesCriteria

	if v := params.Get("source_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, fmt.Errorf("invalid source_id %q", v)
		}
		c.SourceID = id
	}
	c.StationCode = params.Get("dwd_station_id")
	c.WMOStationID = params.Get("wmo_station_id")

	latStr, lonStr := params.Get("lat"), params.Get("lon")
	if (latStr == "") != (lonStr == "") {
		return c, fmt.Errorf("lat and lon must be supplied together")
	}
	if latStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return c, fmt.Errorf("invalid lat %q", latStr)
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return c, fmt.Errorf("invalid lon %q", lonStr)
		}
		c.Lat, c.Lon = &lat, &lon
	}

	if v := params.Get("max_dist"); v != "" {
		maxDist, err := strconv.ParseFloat(v, 64)
		if err != nil || maxDist <= 0 {
			return c, fmt.Errorf("invalid max_dist %q", v)
		}
		c.MaxDist = maxDist
	}
	if v := params.Get("ignore_type"); v != "" {
		ignoreType, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("invalid ignore_type %q", v)
		}
		c.IgnoreType = ignoreType
	}

	if c.SourceID == 0 && c.StationCode == "" && c.WMOStationID == "" && c.Lat == nil {
		return c, fmt.Errorf("missing criteria: supply source_id, dwd_station_id, wmo_station_id, or lat and lon")
	}
	return c, nil
}

func parseDateParam(params url.Values, key string) (time.Time, error) {
	v := params.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid %s value %q, want ISO-8601", key, v)
}
