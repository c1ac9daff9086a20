package parsers

import "github.com/dwdopendata/brightsky/internal/units"

func newTemperatureObservationsParser(opts Options) Parser {
	return &observationsParser{
		opts: opts,
		elements: []observationElement{
			{
				column:    "TT_TU",
				set:       func(r *Record, v *float64) { r.Temperature = v },
				get:       func(r *Record) *float64 { return r.Temperature },
				converter: units.CelsiusToKelvin,
			},
		},
	}
}
