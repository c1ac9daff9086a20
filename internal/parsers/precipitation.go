package parsers

func newPrecipitationObservationsParser(opts Options) Parser {
	return &observationsParser{
		opts: opts,
		elements: []observationElement{
			{
				column: "R1",
				set:    func(r *Record, v *float64) { r.Precipitation = v },
				get:    func(r *Record) *float64 { return r.Precipitation },
			},
		},
	}
}
