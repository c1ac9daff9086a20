package parsers

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const geographyCSV = `Stations_id;von_datum;bis_datum;Stationshoehe;Geogr.Breite;Geogr.Laenge;Stationsname
44;19710301;20000101;44.0;52.9437;12.8518;Alt Ruppin
44;20000102;;51.0;52.9335;12.8666;Neu Ruppin
`

const temperatureCSV = `STATIONS_ID;MESS_DATUM;QN_9;TT_TU;RF_TU;eor
44;1999123123;3;2.5;89;eor
44;2000010302;3;-999;87;eor
44;2023060112;3;23.5;50;eor
`

func writeObservationsFixture(t *testing.T, filename, product string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), filename)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, content := range map[string]string{
		"Metadaten_Geographie_44.txt":                geographyCSV,
		"produkt_tu_stunde_19710301_20231231_44.txt": product,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing file: %v", err)
	}
	return path
}

func TestTemperatureObservationsParse(t *testing.T) {
	path := writeObservationsFixture(t, "stundenwerte_TU_00044_19710301_20231231_hist.zip", temperatureCSV)
	parser := newTemperatureObservationsParser(Options{
		Path: path,
		URL:  "https://example.com/stundenwerte_TU_00044_19710301_20231231_hist.zip",
	})

	iter, err := parser.Parse(context.Background())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	records := collectRecords(t, iter)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	first := records[0]
	if first.ObservationType != "historical" {
		t.Errorf("observation type = %q, want historical", first.ObservationType)
	}
	if first.StationCode != "44" {
		t.Errorf("station code = %q, want 44", first.StationCode)
	}
	want := time.Date(1999, 12, 31, 23, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, want)
	}
	// Timestamp precedes the 2000-01-02 relocation, so the first location
	// history entry applies.
	if first.Lat != 52.9437 || first.Height != 44.0 || first.StationName != "Alt Ruppin" {
		t.Errorf("location = (%v, %v, %q), want first history entry", first.Lat, first.Height, first.StationName)
	}
	if first.Temperature == nil || !almostEqual(*first.Temperature, 275.65) {
		t.Errorf("temperature = %v, want 275.65 K from 2.5 degrees C", first.Temperature)
	}

	second := records[1]
	if second.Temperature != nil {
		t.Errorf("temperature = %v, want nil for -999 sentinel", *second.Temperature)
	}
	if second.Lat != 52.9335 || second.StationName != "Neu Ruppin" {
		t.Errorf("location = (%v, %q), want second history entry after relocation", second.Lat, second.StationName)
	}

	if records[2].Provenance != "Observations:Historical:produkt_tu_stunde_19710301_20231231_44.txt" {
		t.Errorf("provenance = %q", records[2].Provenance)
	}
}

func TestObservationsMinDateFiltersRows(t *testing.T) {
	path := writeObservationsFixture(t, "stundenwerte_TU_00044_19710301_20231231_hist.zip", temperatureCSV)
	parser := newTemperatureObservationsParser(Options{
		Path:    path,
		URL:     "https://example.com/x.zip",
		MinDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	iter, err := parser.Parse(context.Background())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	records := collectRecords(t, iter)
	if len(records) != 1 {
		t.Fatalf("got %d records, want only the 2023 row", len(records))
	}
}

func TestObservationsRecentType(t *testing.T) {
	path := writeObservationsFixture(t, "stundenwerte_TU_00044_akt.zip", temperatureCSV)
	parser := newTemperatureObservationsParser(Options{Path: path, URL: "https://example.com/x.zip"})

	iter, err := parser.Parse(context.Background())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	records := collectRecords(t, iter)
	if len(records) == 0 || records[0].ObservationType != "recent" {
		t.Fatalf("want observation type recent for _akt.zip")
	}
}

func TestObservationsShouldSkipOldArchive(t *testing.T) {
	parser := newTemperatureObservationsParser(Options{
		Path:    "stundenwerte_TU_00044_19500101_19551231_hist.zip",
		MinDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if !parser.ShouldSkip() {
		t.Error("archive ending 1955 should be skipped with a 2020 minimum date")
	}

	parser = newTemperatureObservationsParser(Options{
		Path:    "stundenwerte_TU_00044_19500101_20231231_hist.zip",
		MinDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if parser.ShouldSkip() {
		t.Error("archive overlapping the minimum date should not be skipped")
	}
}

const windCSV = `STATIONS_ID;MESS_DATUM;QN_3;  F;  D;eor
44;2023060112;3;5.0;370;eor
44;2023060113;3;6.0;800;eor
`

func TestWindObservationsSanitize(t *testing.T) {
	path := writeObservationsFixture(t, "stundenwerte_FF_00044_akt.zip", windCSV)
	parser := newWindObservationsParser(Options{Path: path, URL: "https://example.com/x.zip"})

	iter, err := parser.Parse(context.Background())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	records := collectRecords(t, iter)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].WindDirection == nil || *records[0].WindDirection != 10 {
		t.Errorf("wind direction = %v, want 370 folded to 10", records[0].WindDirection)
	}
	if records[1].WindDirection != nil {
		t.Errorf("wind direction = %v, want nil for 800", *records[1].WindDirection)
	}
}
