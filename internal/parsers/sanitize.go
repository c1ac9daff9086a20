package parsers

import "github.com/dwdopendata/brightsky/internal/log"

// sanitize normalizes r in place: wind direction in [360, 720) is folded
// back into range, other out-of-range wind directions and negative
// precipitation are nulled, all with a logged warning.
func sanitize(r *Record) {
	if r.Precipitation != nil && *r.Precipitation < 0 {
		log.Warnf("parsers: ignoring negative precipitation value %v for station %s at %s",
			*r.Precipitation, r.StationCode, r.Timestamp)
		r.Precipitation = nil
	}
	if r.WindDirection != nil {
		switch {
		case *r.WindDirection >= 360 && *r.WindDirection < 720:
			folded := *r.WindDirection - 360
			log.Warnf("parsers: folding out-of-bounds wind direction %v to %v for station %s at %s",
				*r.WindDirection, folded, r.StationCode, r.Timestamp)
			r.WindDirection = &folded
		case *r.WindDirection < 0 || *r.WindDirection >= 720:
			log.Warnf("parsers: discarding out-of-bounds wind direction %v for station %s at %s",
				*r.WindDirection, r.StationCode, r.Timestamp)
			r.WindDirection = nil
		}
	}
}
