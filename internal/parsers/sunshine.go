package parsers

import "github.com/dwdopendata/brightsky/internal/units"

func newSunshineObservationsParser(opts Options) Parser {
	return &observationsParser{
		opts: opts,
		elements: []observationElement{
			{
				column:    "SD_SO",
				set:       func(r *Record, v *float64) { r.Sunshine = v },
				get:       func(r *Record) *float64 { return r.Sunshine },
				converter: units.MinutesToSeconds,
			},
		},
	}
}
