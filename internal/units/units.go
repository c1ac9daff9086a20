// Package units provides the pure unit-conversion and timestamp-parsing
// helpers shared by every parser in internal/parsers.
package units

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CelsiusToKelvin converts a Celsius temperature to Kelvin.
func CelsiusToKelvin(c float64) float64 {
	return c + 273.15
}

// HPaToPa converts hectopascals to pascals.
func HPaToPa(hpa float64) float64 {
	return hpa * 100
}

// KmhToMs converts kilometers per hour to meters per second.
func KmhToMs(kmh float64) float64 {
	return kmh / 3.6
}

// MinutesToSeconds converts minutes to seconds.
func MinutesToSeconds(min float64) float64 {
	return min * 60
}

// dateOnlyHourLayout is the DWD filename/CSV "YYYYMMDDHH" timestamp form.
const dateOnlyHourLayout = "2006010215"

// ParseTimestamp parses a timestamp in either ISO-8601 or the DWD
// "YYYYMMDDHH" form. Naive inputs (no offset, no "Z") are interpreted as
// UTC, matching the DWD convention that all published timestamps are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == 10 {
		if _, err := strconv.Atoi(s); err == nil {
			t, err := time.ParseInLocation(dateOnlyHourLayout, s, time.UTC)
			if err != nil {
				return time.Time{}, fmt.Errorf("units: parsing %q as YYYYMMDDHH: %w", s, err)
			}
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("units: unrecognized timestamp format %q", s)
}

// ParseGermanDateTime parses the current-observations CSV's "DD.MM.YY HH:MM"
// timestamp, interpreted as UTC.
func ParseGermanDateTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation("02.01.06 15:04", strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("units: parsing %q as DD.MM.YY HH:MM: %w", s, err)
	}
	return t, nil
}

// ParseStationDate parses the historical-observations "YYYYMMDD" date form
// (used in Metadaten_Geographie von_datum columns and _hist.zip filenames),
// interpreted as UTC midnight.
func ParseStationDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("20060102", strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("units: parsing %q as YYYYMMDD: %w", s, err)
	}
	return t, nil
}
