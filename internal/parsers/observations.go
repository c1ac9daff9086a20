package parsers

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/dwdopendata/brightsky/internal/ignoredvalues"
	"github.com/dwdopendata/brightsky/internal/units"
)

// histFilenamePattern extracts the start/end date range encoded in a
// historical archive's filename, e.g.
// "stundenwerte_TU_00044_19710301_20231231_hist.zip".
var histFilenamePattern = regexp.MustCompile(`_(\d{8})_(\d{8})_hist\.zip$`)

// geographyFilenamePattern matches the per-station metadata file bundled
// alongside the product file in every historical/recent observation ZIP.
var geographyFilenamePattern = regexp.MustCompile(`^Metadaten_Geographie_(\d+)\.txt$`)

// locationRecord is one row of a station's lat/lon/height history, keyed by
// the date from which it applies.
type locationRecord struct {
	validFrom   string // YYYYMMDD, kept as a string for stable sort/compare
	lat         float64
	lon         float64
	height      float64
	stationName string
}

// observationElement binds one CSV column to a Record field and, optionally,
// a unit converter applied after parsing.
type observationElement struct {
	column    string
	set       func(r *Record, v *float64)
	get       func(r *Record) *float64
	converter func(float64) float64
}

// observationsParser is the shared implementation behind the five
// stundenwerte_* historical/recent parsers; only the element list differs
// between them.
type observationsParser struct {
	opts     Options
	elements []observationElement
}

func (p *observationsParser) ShouldSkip() bool {
	m := histFilenamePattern.FindStringSubmatch(p.opts.Path)
	if m == nil {
		return false
	}
	end, err := units.ParseStationDate(m[2])
	if err != nil {
		return false
	}
	if !p.opts.MinDate.IsZero() && end.Before(p.opts.MinDate) {
		return true
	}
	if !p.opts.MaxDate.IsZero() {
		start, err := units.ParseStationDate(m[1])
		if err == nil && start.After(p.opts.MaxDate) {
			return true
		}
	}
	return false
}

func (p *observationsParser) Parse(ctx context.Context) (RecordIter, error) {
	zf, err := zip.OpenReader(p.opts.Path)
	if err != nil {
		return nil, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("opening zip: %w", err)}
	}

	stationCode, err := parseStationCode(zf)
	if err != nil {
		zf.Close()
		return nil, &ParseError{URL: p.opts.URL, Err: err}
	}

	observationType, err := parseObservationType(p.opts.Path)
	if err != nil {
		zf.Close()
		return nil, &ParseError{URL: p.opts.URL, Err: err}
	}

	history, err := p.parseLocationHistory(zf, stationCode)
	if err != nil {
		zf.Close()
		return nil, &ParseError{URL: p.opts.URL, Err: err}
	}

	productFile, err := findProductFile(zf)
	if err != nil {
		zf.Close()
		return nil, &ParseError{URL: p.opts.URL, Err: err}
	}

	f, err := productFile.Open()
	if err != nil {
		zf.Close()
		return nil, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("opening %s: %w", productFile.Name, err)}
	}

	reader := newLatin1CSVReader(f)
	header, err := reader.Read()
	if err != nil {
		f.Close()
		zf.Close()
		return nil, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("reading header: %w", err)}
	}
	cols := columnIndex(header)

	ignored, err := p.ignoredMap()
	if err != nil {
		f.Close()
		zf.Close()
		return nil, &ParseError{URL: p.opts.URL, Err: err}
	}

	source := fmt.Sprintf("Observations:%s:%s", capitalize(observationType), productFile.Name)

	closeAll := func() error {
		cerr := f.Close()
		if zerr := zf.Close(); zerr != nil && cerr == nil {
			cerr = zerr
		}
		return cerr
	}

	next := func() (Record, bool, error) {
		for {
			row, err := reader.Read()
			if err == io.EOF {
				return Record{}, false, nil
			}
			if err != nil {
				return Record{}, false, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("reading row: %w", err)}
			}

			rawTimestamp := strings.TrimSpace(row[cols["MESS_DATUM"]])
			ts, err := units.ParseTimestamp(rawTimestamp)
			if err != nil {
				return Record{}, false, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("parsing MESS_DATUM %q: %w", rawTimestamp, err)}
			}
			if !p.opts.MinDate.IsZero() && ts.Before(p.opts.MinDate) {
				continue
			}
			if !p.opts.MaxDate.IsZero() && ts.After(p.opts.MaxDate) {
				continue
			}

			loc := locationAt(history, ts)
			r := Record{
				ObservationType: observationType,
				StationCode:     stationCode,
				Lat:             loc.lat,
				Lon:             loc.lon,
				Height:          loc.height,
				StationName:     loc.stationName,
				Timestamp:       ts,
				Provenance:      source,
			}
			for _, el := range p.elements {
				raw := strings.TrimSpace(row[cols[el.column]])
				v, err := parseMinus999(raw)
				if err != nil {
					return Record{}, false, &ParseError{URL: p.opts.URL, Err: fmt.Errorf("parsing %s %q: %w", el.column, raw, err)}
				}
				if v != nil && el.converter != nil {
					converted := el.converter(*v)
					v = &converted
				}
				el.set(&r, v)
			}

			ignored.Apply(p.opts.URL, ts,
				func(field string) (float64, bool) {
					for _, el := range p.elements {
						if el.column == field {
							if cur := el.get(&r); cur != nil {
								return *cur, true
							}
						}
					}
					return 0, false
				},
				func(field string) {
					for _, el := range p.elements {
						if el.column == field {
							el.set(&r, nil)
						}
					}
				})
			sanitize(&r)
			return r, true, nil
		}
	}

	return &funcIter{next: next, close: closeAll}, nil
}

func (p *observationsParser) ignoredMap() (*ignoredvalues.Map, error) {
	if p.opts.Ignored != nil {
		return p.opts.Ignored, nil
	}
	return ignoredvalues.LoadOnce("")
}

func (p *observationsParser) parseLocationHistory(zf *zip.ReadCloser, stationCode string) ([]locationRecord, error) {
	filename := fmt.Sprintf("Metadaten_Geographie_%s.txt", stationCode)
	var target *zip.File
	for _, f := range zf.File {
		if f.Name == filename {
			target = f
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("geography metadata %q not found", filename)
	}

	f, err := target.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	defer f.Close()

	reader := newLatin1CSVReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading %s header: %w", filename, err)
	}
	cols := columnIndex(header)

	var history []locationRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filename, err)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(row[cols["Geogr.Breite"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing latitude: %w", err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(row[cols["Geogr.Laenge"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing longitude: %w", err)
		}
		height, err := strconv.ParseFloat(strings.TrimSpace(row[cols["Stationshoehe"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing height: %w", err)
		}
		history = append(history, locationRecord{
			validFrom:   strings.TrimSpace(row[cols["von_datum"]]),
			lat:         lat,
			lon:         lon,
			height:      height,
			stationName: strings.TrimSpace(row[cols["Stationsname"]]),
		})
	}

	// Sort ascending by valid-from date so locationAt's linear scan picks
	// the most recent entry that still precedes the observation timestamp,
	// regardless of the order rows appeared in the file.
	sort.Slice(history, func(i, j int) bool { return history[i].validFrom < history[j].validFrom })
	return history, nil
}

// locationAt returns the last history entry whose valid-from date does not
// exceed ts, or the zero-value entry if ts precedes every recorded date.
func locationAt(history []locationRecord, ts time.Time) locationRecord {
	tsDate := ts.Format("20060102")
	var current locationRecord
	for _, entry := range history {
		if entry.validFrom > tsDate {
			break
		}
		current = entry
	}
	return current
}

func parseStationCode(zf *zip.ReadCloser) (string, error) {
	for _, f := range zf.File {
		if m := geographyFilenamePattern.FindStringSubmatch(f.Name); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("unable to find station metadata file")
}

func parseObservationType(filePath string) (string, error) {
	base := path.Base(filePath)
	switch {
	case strings.HasSuffix(base, "_akt.zip"):
		return "recent", nil
	case strings.HasSuffix(base, "_hist.zip"):
		return "historical", nil
	default:
		return "", fmt.Errorf("unable to determine observation type from filename %q", base)
	}
}

func findProductFile(zf *zip.ReadCloser) (*zip.File, error) {
	var found *zip.File
	count := 0
	for _, f := range zf.File {
		if strings.HasPrefix(f.Name, "produkt_") {
			found = f
			count++
		}
	}
	if count != 1 {
		return nil, fmt.Errorf("expected exactly one produkt_* file, found %d", count)
	}
	return found, nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

func parseMinus999(s string) (*float64, error) {
	if s == "-999" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func newLatin1CSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	reader.Comma = ';'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	return reader
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
