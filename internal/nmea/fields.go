package nmea

import (
	"math"
	"strconv"
	"strings"
)

// field returns f[i], or "" when the sentence is too short.
func field(f []string, i int) string {
	if i < 0 || i >= len(f) {
		return ""
	}
	return strings.TrimSpace(f[i])
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// floatAt and intAt return nil for missing or non-numeric fields.
func floatAt(f []string, i int) *float64 {
	v, ok := parseFloat(field(f, i))
	if !ok {
		return nil
	}
	return &v
}

func intAt(f []string, i int) *int {
	v, ok := parseInt(field(f, i))
	if !ok {
		return nil
	}
	return &v
}

// parseLatLon decodes DDMM.MMMM (N/S) or DDDMM.MMMM (E/W) into signed decimal
// degrees rounded to 6 places. The hemisphere picks the degree width.
func parseLatLon(v string, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.ToUpper(strings.TrimSpace(hemi))

	var width int
	switch hemi {
	case "N", "S":
		width = 2
	case "E", "W":
		width = 3
	default:
		return 0, false
	}
	if len(v) <= width {
		return 0, false
	}

	deg, err := strconv.Atoi(v[:width])
	if err != nil || deg < 0 {
		return 0, false
	}
	mins, ok := parseFloat(v[width:])
	if !ok || mins < 0 || mins >= 60 {
		return 0, false
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return Round(dec, 6), true
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func fahrenheitToCelsius(f float64) float64 {
	return Round((f-32)*5/9, 1)
}
