package parsers

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const mosmixKML = `<?xml version="1.0" encoding="ISO-8859-1"?>
<kml>
  <Document>
    <ExtendedData>
      <ProductDefinition>
        <ProductID>MOSMIX_S</ProductID>
        <IssueTime>2023-06-01T12:00:00.000Z</IssueTime>
        <ForecastTimeSteps>
          <TimeStep>2023-06-01T13:00:00.000Z</TimeStep>
          <TimeStep>2023-06-01T14:00:00.000Z</TimeStep>
          <TimeStep>2023-06-01T15:00:00.000Z</TimeStep>
        </ForecastTimeSteps>
      </ProductDefinition>
    </ExtendedData>
    <Placemark>
      <name>10382</name>
      <description>BERLIN-TEGEL</description>
      <ExtendedData>
        <Forecast elementName="TTT"><value>  296.65   297.15  -  </value></Forecast>
        <Forecast elementName="DD"><value>  180.0   370.0   90.0  </value></Forecast>
        <Forecast elementName="FF"><value>  5.0   6.0   7.0  </value></Forecast>
        <Forecast elementName="RR1c"><value>  0.0   -0.1   1.2  </value></Forecast>
        <Forecast elementName="SunD1"><value>  3600.0   1800.0   0.0  </value></Forecast>
        <Forecast elementName="PPPP"><value>  101320.0   101300.0   101250.0  </value></Forecast>
      </ExtendedData>
      <Point>
        <coordinates>13.4,52.5,40.0</coordinates>
      </Point>
    </Placemark>
  </Document>
</kml>
`

func writeMOSMIXFixture(t *testing.T, kml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "MOSMIX_S_LATEST_240.kmz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("MOSMIX_S_LATEST_240.kml")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	if _, err := w.Write([]byte(kml)); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing file: %v", err)
	}
	return path
}

func collectRecords(t *testing.T, iter RecordIter) []Record {
	t.Helper()
	defer iter.Close()
	var records []Record
	for {
		r, ok, err := iter.Next()
		if err != nil {
			t.Fatalf("iterating records: %v", err)
		}
		if !ok {
			return records
		}
		records = append(records, r)
	}
}

func TestMOSMIXParse(t *testing.T) {
	path := writeMOSMIXFixture(t, mosmixKML)
	parser := newMOSMIXParser(Options{Path: path, URL: "https://example.com/MOSMIX_S_LATEST_240.kmz"})

	iter, err := parser.Parse(context.Background())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	records := collectRecords(t, iter)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	first := records[0]
	if first.ObservationType != "forecast" {
		t.Errorf("observation type = %q, want forecast", first.ObservationType)
	}
	if first.StationCode != "10382" || first.StationName != "BERLIN-TEGEL" {
		t.Errorf("station = %q/%q", first.StationCode, first.StationName)
	}
	if first.Lat != 52.5 || first.Lon != 13.4 || first.Height != 40.0 {
		t.Errorf("coordinates = (%v, %v, %v), want (52.5, 13.4, 40)", first.Lat, first.Lon, first.Height)
	}
	if first.Provenance != "MOSMIX_S:2023-06-01T12:00:00.000Z" {
		t.Errorf("provenance = %q", first.Provenance)
	}
	want := time.Date(2023, 6, 1, 13, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, want)
	}
	if first.Temperature == nil || *first.Temperature != 296.65 {
		t.Errorf("temperature = %v, want 296.65", first.Temperature)
	}

	// Out-of-range wind direction folds, negative precipitation nulls.
	second := records[1]
	if second.WindDirection == nil || *second.WindDirection != 10.0 {
		t.Errorf("wind direction = %v, want folded 10", second.WindDirection)
	}
	if second.Precipitation != nil {
		t.Errorf("precipitation = %v, want nil", *second.Precipitation)
	}

	// "-" samples are missing values.
	third := records[2]
	if third.Temperature != nil {
		t.Errorf("temperature = %v, want nil for missing sample", *third.Temperature)
	}
	if third.PressureMSL == nil || *third.PressureMSL != 101250.0 {
		t.Errorf("pressure = %v, want 101250", third.PressureMSL)
	}
}

func TestMOSMIXParseRejectsMultiEntryZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MOSMIX_S_LATEST_240.kmz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	zw := zip.NewWriter(f)
	for _, name := range []string{"a.kml", "b.kml"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry: %v", err)
		}
		w.Write([]byte("<kml/>"))
	}
	zw.Close()
	f.Close()

	parser := newMOSMIXParser(Options{Path: path, URL: "https://example.com/x.kmz"})
	if _, err := parser.Parse(context.Background()); err == nil {
		t.Fatal("expected error for zip with two entries")
	}
}
