package nmea

// TypeAIS tags records that carry raw AIS envelopes instead of decoded fields.
const TypeAIS = "AIS"

// Record is the result of parsing one sentence. Nil pointers mean the value
// was not present (or not valid) in that sentence.
type Record struct {
	// Type is the 3-letter sentence code ("GGA", "HDT", ...) or TypeAIS.
	Type string `json:"type"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`

	HeadingTrue       *float64 `json:"heading_true,omitempty"`
	HeadingMagnetic   *float64 `json:"heading_magnetic,omitempty"`
	MagneticVariation *float64 `json:"magnetic_variation,omitempty"`
	CourseTrue        *float64 `json:"course_over_ground_true,omitempty"`
	CourseMagnetic    *float64 `json:"course_over_ground_magnetic,omitempty"`
	SpeedKnots        *float64 `json:"speed_over_ground_knots,omitempty"`
	SpeedKmh          *float64 `json:"speed_over_ground_kmh,omitempty"`

	DepthMeters      *float64 `json:"depth_meters,omitempty"`
	DepthOffset      *float64 `json:"depth_offset,omitempty"`
	WaterTempC       *float64 `json:"water_temperature_c,omitempty"`
	SpeedWaterKnots  *float64 `json:"speed_through_water_knots,omitempty"`
	FixQuality       *int     `json:"fix_quality,omitempty"`
	SatellitesInUse  *int     `json:"satellites_in_use,omitempty"`
	SatellitesInView *int     `json:"satellites_in_view,omitempty"`
	HDOP             *float64 `json:"hdop,omitempty"`

	RudderAngle *float64 `json:"rudder_angle,omitempty"`

	// UTCTime is the raw hhmmss.ss string; UTCDate is YYYY-MM-DD.
	UTCTime string `json:"utc_time,omitempty"`
	UTCDate string `json:"utc_date,omitempty"`

	// AIS holds the raw envelope lines when Type == TypeAIS.
	AIS []string `json:"ais,omitempty"`
}

// IsAIS reports whether the record carries AIS envelopes.
func (r *Record) IsAIS() bool {
	return r != nil && r.Type == TypeAIS
}
