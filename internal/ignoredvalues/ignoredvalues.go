// Package ignoredvalues loads the YAML-configured map of known-bad source
// values to null out during sanitization. The map is loaded once at
// startup into an immutable value threaded through parser construction,
// never a package singleton mutated at runtime.
package ignoredvalues

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwdopendata/brightsky/internal/log"
)

// FieldValues maps a field name to the value that should be nulled out.
type FieldValues map[string]float64

// TimestampValues maps a record timestamp to the fields to null for it.
type TimestampValues map[time.Time]FieldValues

// Map is the full, immutable, loaded-once ignored-values configuration:
// source URL -> timestamp -> field -> bad value.
type Map struct {
	byURL map[string]TimestampValues
}

// rawFile mirrors the on-disk YAML shape: a map of URL to a map of
// ISO-8601 timestamp strings to a map of field name to bad value.
type rawFile map[string]map[string]map[string]float64

// Load reads and parses the ignored-values YAML file at path. A missing
// file is not an error; it simply yields an empty map.
func Load(path string) (*Map, error) {
	m := &Map{byURL: map[string]TimestampValues{}}
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("ignoredvalues: reading %s: %w", path, err)
	}

	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ignoredvalues: parsing %s: %w", path, err)
	}

	for url, byTimestamp := range raw {
		tv := TimestampValues{}
		for tsStr, fields := range byTimestamp {
			ts, err := time.Parse(time.RFC3339, tsStr)
			if err != nil {
				return nil, fmt.Errorf("ignoredvalues: parsing timestamp %q for %s: %w", tsStr, url, err)
			}
			tv[ts.UTC()] = FieldValues(fields)
		}
		m.byURL[url] = tv
	}
	return m, nil
}

// loadOnce guards the process-wide singleton returned by LoadOnce.
var (
	loadOnce   sync.Once
	loadResult *Map
	loadErr    error
)

// LoadOnce loads the ignored-values map exactly once per process and
// returns the cached result on subsequent calls.
func LoadOnce(path string) (*Map, error) {
	loadOnce.Do(func() {
		loadResult, loadErr = Load(path)
	})
	return loadResult, loadErr
}

// ForURL returns the ignored timestamp/field overrides configured for url,
// or an empty TimestampValues if none are configured.
func (m *Map) ForURL(url string) TimestampValues {
	if m == nil {
		return nil
	}
	return m.byURL[url]
}

// Apply nulls out fields whose current value matches the configured bad
// value for (url, timestamp). If a configured override no longer matches
// the record's current value, a warning is logged and no change is made;
// the override is presumed stale rather than still applicable.
func (m *Map) Apply(url string, timestamp time.Time, get func(field string) (float64, bool), null func(field string)) {
	overrides := m.ForURL(url)[timestamp.UTC()]
	for field, badValue := range overrides {
		current, ok := get(field)
		if !ok {
			continue
		}
		if current == badValue {
			null(field)
		} else {
			log.Warnf("ignoredvalues: configured value %v of field %q for %s at %s no longer matches (current %v)",
				badValue, field, url, timestamp, current)
		}
	}
}
