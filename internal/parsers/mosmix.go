package parsers

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/dwdopendata/brightsky/internal/log"
	"github.com/dwdopendata/brightsky/internal/units"
)

// mosmixElements maps a MOSMIX forecast element name to the Record field it
// populates, in a stable order so sanitize/record-building is deterministic.
var mosmixElements = []struct {
	element string
	set     func(r *Record, v *float64)
}{
	{"TTT", func(r *Record, v *float64) { r.Temperature = v }},
	{"DD", func(r *Record, v *float64) { r.WindDirection = v }},
	{"FF", func(r *Record, v *float64) { r.WindSpeed = v }},
	{"RR1c", func(r *Record, v *float64) { r.Precipitation = v }},
	{"SunD1", func(r *Record, v *float64) { r.Sunshine = v }},
	{"PPPP", func(r *Record, v *float64) { r.PressureMSL = v }},
}

// kmlDocument is the subset of the DWD MOSMIX KML/XML schema this parser
// needs. Field tags omit namespace prefixes: encoding/xml matches a tag
// with no namespace against the element's local name, so the kml:/dwd:
// prefixes in the feed never need stripping.
type kmlDocument struct {
	XMLName           xml.Name    `xml:"kml"`
	ProductID         string      `xml:"Document>ExtendedData>ProductDefinition>ProductID"`
	IssueTime         string      `xml:"Document>ExtendedData>ProductDefinition>IssueTime"`
	ForecastTimeSteps []string    `xml:"Document>ExtendedData>ProductDefinition>ForecastTimeSteps>TimeStep"`
	Placemarks        []placemark `xml:"Document>Placemark"`
}

type placemark struct {
	Name        string       `xml:"name"`
	Description string       `xml:"description"`
	Coordinates string       `xml:"Point>coordinates"`
	Forecasts   []forecastEl `xml:"ExtendedData>Forecast"`
}

type forecastEl struct {
	ElementName string `xml:"elementName,attr"`
	Value       string `xml:"value"`
}

// MOSMIXParser decodes the MOSMIX_S forecast KMZ (a ZIP containing a single
// Latin-1 KML document with a shared time axis and per-station, per-element
// whitespace-separated value lists).
type MOSMIXParser struct {
	opts Options
}

func newMOSMIXParser(opts Options) Parser { return &MOSMIXParser{opts: opts} }

// ShouldSkip is always false for MOSMIX: there is no min/max-date filename
// encoding for the forecast feed, unlike the historical observation files.
func (p *MOSMIXParser) ShouldSkip() bool { return false }

func (p *MOSMIXParser) Parse(ctx context.Context) (RecordIter, error) {
	doc, err := p.readDocument()
	if err != nil {
		return nil, &ParseError{URL: p.opts.URL, Err: err}
	}

	timestamps := make([]string, len(doc.ForecastTimeSteps))
	copy(timestamps, doc.ForecastTimeSteps)

	source := fmt.Sprintf("%s:%s", doc.ProductID, doc.IssueTime)
	log.Debugf("parsers: MOSMIX %d timestamps for source %s", len(timestamps), source)

	var records []Record
	for _, pm := range doc.Placemarks {
		stationRecords, err := p.parseStation(pm, timestamps, source)
		if err != nil {
			return nil, &ParseError{URL: p.opts.URL, Err: err}
		}
		records = append(records, stationRecords...)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })
	return newSliceIter(records), nil
}

// readDocument extracts the single ZIP entry, transcodes it from Latin-1,
// and unmarshals the KML document.
func (p *MOSMIXParser) readDocument() (*kmlDocument, error) {
	zf, err := zip.OpenReader(p.opts.Path)
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	defer zf.Close()

	if len(zf.File) != 1 {
		return nil, fmt.Errorf("unexpected zip content: %d entries", len(zf.File))
	}

	f, err := zf.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("opening zip entry: %w", err)
	}
	defer f.Close()

	// The feed declares ISO-8859-1; CharsetReader transcodes per the
	// document's own header instead of assuming UTF-8.
	decoder := xml.NewDecoder(f)
	decoder.CharsetReader = charset.NewReaderLabel

	var doc kmlDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("unmarshaling KML: %w", err)
	}
	return &doc, nil
}

func (p *MOSMIXParser) parseStation(pm placemark, timestamps []string, source string) ([]Record, error) {
	// Non-geographic-convention ordering: "lon,lat,height".
	parts := strings.Split(strings.TrimSpace(pm.Coordinates), ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("station %q: unexpected coordinates %q", pm.Name, pm.Coordinates)
	}
	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, fmt.Errorf("station %q: parsing longitude: %w", pm.Name, err)
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("station %q: parsing latitude: %w", pm.Name, err)
	}
	height, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, fmt.Errorf("station %q: parsing height: %w", pm.Name, err)
	}

	byElement := make(map[string][]*float64, len(mosmixElements))
	for _, el := range mosmixElements {
		forecast := findForecast(pm.Forecasts, el.element)
		if forecast == nil {
			return nil, fmt.Errorf("station %q: missing forecast element %q", pm.Name, el.element)
		}
		values, err := parseValueList(forecast.Value)
		if err != nil {
			return nil, fmt.Errorf("station %q element %q: %w", pm.Name, el.element, err)
		}
		if len(values) != len(timestamps) {
			return nil, fmt.Errorf("station %q element %q: got %d values, want %d timestamps",
				pm.Name, el.element, len(values), len(timestamps))
		}
		byElement[el.element] = values
	}

	records := make([]Record, 0, len(timestamps))
	for i, tsStr := range timestamps {
		ts, err := units.ParseTimestamp(tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp %q: %w", tsStr, err)
		}
		r := Record{
			ObservationType: "forecast",
			StationCode:     pm.Name,
			StationName:     pm.Description,
			Lat:             lat,
			Lon:             lon,
			Height:          height,
			Timestamp:       ts,
			Provenance:      source,
		}
		for _, el := range mosmixElements {
			el.set(&r, byElement[el.element][i])
		}
		sanitize(&r)
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })
	return records, nil
}

func findForecast(forecasts []forecastEl, element string) *forecastEl {
	for i := range forecasts {
		if forecasts[i].ElementName == element {
			return &forecasts[i]
		}
	}
	return nil
}

// parseValueList parses a MOSMIX whitespace-separated float list, where
// "-" denotes a missing sample.
func parseValueList(s string) ([]*float64, error) {
	fields := strings.Fields(s)
	values := make([]*float64, 0, len(fields))
	for _, f := range fields {
		if f == "-" {
			values = append(values, nil)
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing value %q: %w", f, err)
		}
		values = append(values, &v)
	}
	return values, nil
}
