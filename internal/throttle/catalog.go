package throttle

import "nmea-bridge/internal/nmea"

// Category groups fields that share one minimum publish interval.
type Category string

const (
	CategoryPosition    Category = "position"
	CategorySpeed       Category = "speed"
	CategoryHeading     Category = "heading"
	CategoryDepth       Category = "depth"
	CategoryEnvironment Category = "environment"
	CategoryRudder      Category = "rudder"
	CategorySatellites  Category = "satellites"
	CategoryAIS         Category = "ais"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryPosition,
	CategorySpeed,
	CategoryHeading,
	CategoryDepth,
	CategoryEnvironment,
	CategoryRudder,
	CategorySatellites,
	CategoryAIS,
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c Category) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Field is one logical sensor value extracted from parsed sentences.
type Field struct {
	ID          string
	Name        string
	Unit        string
	Icon        string
	DeviceClass string
	// Precision is the suggested number of decimals; ignored for Integer fields.
	Precision int
	Integer   bool
	Category  Category

	value func(r *nmea.Record) (float64, bool)
}

// Value extracts the field from r.
func (f Field) Value(r *nmea.Record) (float64, bool) {
	if r == nil || f.value == nil {
		return 0, false
	}
	return f.value(r)
}

func fromFloat(get func(r *nmea.Record) *float64) func(r *nmea.Record) (float64, bool) {
	return func(r *nmea.Record) (float64, bool) {
		p := get(r)
		if p == nil {
			return 0, false
		}
		return *p, true
	}
}

func fromInt(get func(r *nmea.Record) *int) func(r *nmea.Record) (float64, bool) {
	return func(r *nmea.Record) (float64, bool) {
		p := get(r)
		if p == nil {
			return 0, false
		}
		return float64(*p), true
	}
}

// Catalog is the ordered list of published fields.
var Catalog = []Field{
	{ID: "latitude", Name: "Latitude", Unit: "°", Icon: "mdi:crosshairs-gps", Precision: 6, Category: CategoryPosition,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.Latitude })},
	{ID: "longitude", Name: "Longitude", Unit: "°", Icon: "mdi:crosshairs-gps", Precision: 6, Category: CategoryPosition,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.Longitude })},
	{ID: "altitude", Name: "Altitude", Unit: "m", Icon: "mdi:altimeter", Precision: 1, Category: CategoryPosition,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.Altitude })},
	{ID: "heading_true", Name: "Heading (True)", Unit: "°", Icon: "mdi:compass", Precision: 1, Category: CategoryHeading,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.HeadingTrue })},
	{ID: "heading_magnetic", Name: "Heading (Magnetic)", Unit: "°", Icon: "mdi:compass", Precision: 1, Category: CategoryHeading,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.HeadingMagnetic })},
	{ID: "magnetic_variation", Name: "Magnetic Variation", Unit: "°", Icon: "mdi:magnet", Precision: 1, Category: CategoryHeading,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.MagneticVariation })},
	{ID: "speed_knots", Name: "Speed (SOG)", Unit: "kn", Icon: "mdi:speedometer", Precision: 1, Category: CategorySpeed,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.SpeedKnots })},
	{ID: "speed_kmh", Name: "Speed (SOG km/h)", Unit: "km/h", Icon: "mdi:speedometer", Precision: 1, Category: CategorySpeed,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.SpeedKmh })},
	{ID: "course_true", Name: "Course Over Ground", Unit: "°", Icon: "mdi:navigation", Precision: 1, Category: CategorySpeed,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.CourseTrue })},
	{ID: "course_magnetic", Name: "Course Over Ground (Magnetic)", Unit: "°", Icon: "mdi:navigation-outline", Precision: 1, Category: CategorySpeed,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.CourseMagnetic })},
	{ID: "speed_through_water", Name: "Speed Through Water", Unit: "kn", Icon: "mdi:speedometer-slow", Precision: 1, Category: CategorySpeed,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.SpeedWaterKnots })},
	{ID: "depth", Name: "Depth", Unit: "m", Icon: "mdi:waves", DeviceClass: "distance", Precision: 1, Category: CategoryDepth,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.DepthMeters })},
	{ID: "depth_offset", Name: "Transducer Offset", Unit: "m", Icon: "mdi:arrow-expand-vertical", DeviceClass: "distance", Precision: 1, Category: CategoryDepth,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.DepthOffset })},
	{ID: "water_temperature", Name: "Water Temperature", Unit: "°C", Icon: "mdi:thermometer-water", DeviceClass: "temperature", Precision: 1, Category: CategoryEnvironment,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.WaterTempC })},
	{ID: "satellites_in_use", Name: "Satellites", Icon: "mdi:satellite-variant", Integer: true, Category: CategorySatellites,
		value: fromInt(func(r *nmea.Record) *int { return r.SatellitesInUse })},
	{ID: "satellites_in_view", Name: "Satellites in View", Icon: "mdi:satellite-variant", Integer: true, Category: CategorySatellites,
		value: fromInt(func(r *nmea.Record) *int { return r.SatellitesInView })},
	{ID: "hdop", Name: "GPS Accuracy (HDOP)", Icon: "mdi:crosshairs-question", Precision: 2, Category: CategorySatellites,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.HDOP })},
	{ID: "fix_quality", Name: "GPS Fix Quality", Icon: "mdi:satellite-uplink", Integer: true, Category: CategorySatellites,
		value: fromInt(func(r *nmea.Record) *int { return r.FixQuality })},
	{ID: "rudder_angle", Name: "Rudder Angle", Unit: "°", Icon: "mdi:ship-wheel", Precision: 1, Category: CategoryRudder,
		value: fromFloat(func(r *nmea.Record) *float64 { return r.RudderAngle })},
}

// Lookup finds a catalog field by id.
func Lookup(id string) (Field, bool) {
	for _, f := range Catalog {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
