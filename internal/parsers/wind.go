package parsers

func newWindObservationsParser(opts Options) Parser {
	return &observationsParser{
		opts: opts,
		elements: []observationElement{
			{
				column: "F",
				set:    func(r *Record, v *float64) { r.WindSpeed = v },
				get:    func(r *Record) *float64 { return r.WindSpeed },
			},
			{
				column: "D",
				set:    func(r *Record, v *float64) { r.WindDirection = v },
				get:    func(r *Record) *float64 { return r.WindDirection },
			},
		},
	}
}
