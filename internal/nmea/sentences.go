package nmea

import (
	"fmt"
	"sort"
)

// sentenceParser extracts fields by fixed index. f[0] is the talker+type
// field, so data fields start at 1.
type sentenceParser struct {
	minFields int
	parse     func(f []string) *Record
}

var parsers = map[string]sentenceParser{
	"GGA": {6, parseGGA},
	"VTG": {2, parseVTG},
	"HDT": {2, parseHDT},
	"HDG": {2, parseHDG},
	"ZDA": {5, parseZDA},
	"RSA": {3, parseRSA},
	"GSV": {4, parseGSV},
	"DPT": {2, parseDPT},
	"VHW": {2, parseVHW},
	"MTW": {2, parseMTW},
}

// SentenceTypes lists the decoded sentence codes in alphabetical order.
func SentenceTypes() []string {
	out := make([]string, 0, len(parsers))
	for typ := range parsers {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether typ is one of the decoded sentence codes.
func Supported(typ string) bool {
	_, ok := parsers[typ]
	return ok
}

// GGA: time, lat, N/S, lon, E/W, quality, sats, hdop, altitude, M, ...
func parseGGA(f []string) *Record {
	r := &Record{
		UTCTime:         field(f, 1),
		FixQuality:      intAt(f, 6),
		SatellitesInUse: intAt(f, 7),
		HDOP:            floatAt(f, 8),
		Altitude:        floatAt(f, 9),
	}
	lat, okLat := parseLatLon(field(f, 2), field(f, 3))
	lon, okLon := parseLatLon(field(f, 4), field(f, 5))
	if okLat && okLon {
		r.Latitude = &lat
		r.Longitude = &lon
	}
	return r
}

// VTG: true track, T, magnetic track, M, knots, N, km/h, K
func parseVTG(f []string) *Record {
	return &Record{
		CourseTrue:     floatAt(f, 1),
		CourseMagnetic: floatAt(f, 3),
		SpeedKnots:     floatAt(f, 5),
		SpeedKmh:       floatAt(f, 7),
	}
}

func parseHDT(f []string) *Record {
	return &Record{HeadingTrue: floatAt(f, 1)}
}

// HDG: heading, deviation, E/W, variation, E/W
func parseHDG(f []string) *Record {
	r := &Record{HeadingMagnetic: floatAt(f, 1)}
	if v := floatAt(f, 4); v != nil {
		if field(f, 5) == "W" {
			*v = -*v
		}
		r.MagneticVariation = v
	}
	return r
}

// ZDA: time, day, month, year, zone hours, zone minutes
func parseZDA(f []string) *Record {
	r := &Record{UTCTime: field(f, 1)}
	day, okD := parseInt(field(f, 2))
	month, okM := parseInt(field(f, 3))
	year, okY := parseInt(field(f, 4))
	if okD && okM && okY {
		r.UTCDate = fmt.Sprintf("%d-%02d-%02d", year, month, day)
	}
	return r
}

// RSA: starboard angle, status, port angle, status. Only a valid (A)
// starboard reading is kept.
func parseRSA(f []string) *Record {
	r := &Record{}
	if field(f, 2) == "A" {
		r.RudderAngle = floatAt(f, 1)
	}
	return r
}

// GSV: message count, message number, satellites in view, ...
func parseGSV(f []string) *Record {
	return &Record{SatellitesInView: intAt(f, 3)}
}

// DPT: depth below transducer, offset
func parseDPT(f []string) *Record {
	return &Record{
		DepthMeters: floatAt(f, 1),
		DepthOffset: floatAt(f, 2),
	}
}

// VHW: true heading, T, magnetic heading, M, knots, N, km/h, K
func parseVHW(f []string) *Record {
	return &Record{
		HeadingTrue:     floatAt(f, 1),
		HeadingMagnetic: floatAt(f, 3),
		SpeedWaterKnots: floatAt(f, 5),
	}
}

// mtwFahrenheitThreshold is where a "C" reading is taken to be Fahrenheit.
// Navnet units send Fahrenheit labelled as Celsius (076.25,C). This is a
// vendor quirk, not NMEA: sea water never reaches 50 °C.
const mtwFahrenheitThreshold = 50.0

// MTW: temperature, unit
func parseMTW(f []string) *Record {
	r := &Record{}
	t, ok := parseFloat(field(f, 1))
	if !ok {
		return r
	}
	switch field(f, 2) {
	case "C", "":
		if t > mtwFahrenheitThreshold {
			t = fahrenheitToCelsius(t)
		}
		r.WaterTempC = &t
	case "F":
		t = fahrenheitToCelsius(t)
		r.WaterTempC = &t
	}
	return r
}
