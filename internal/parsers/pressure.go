package parsers

import "github.com/dwdopendata/brightsky/internal/units"

func newPressureObservationsParser(opts Options) Parser {
	return &observationsParser{
		opts: opts,
		elements: []observationElement{
			{
				column:    "P0",
				set:       func(r *Record, v *float64) { r.PressureMSL = v },
				get:       func(r *Record) *float64 { return r.PressureMSL },
				converter: units.HPaToPa,
			},
		},
	}
}
