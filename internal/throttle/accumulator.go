package throttle

import (
	"math"
	"time"

	"nmea-bridge/internal/nmea"
)

const (
	// DefaultInterval applies to categories without a configured interval.
	DefaultInterval = 5 * time.Second

	// TrackerID keys the composite tracker report's emission timestamp.
	TrackerID = "device_tracker"

	// DefaultGPSAccuracy is reported when no HDOP has been seen.
	DefaultGPSAccuracy = 10
)

type Config struct {
	// Intervals is the minimum time between emissions per category.
	Intervals map[Category]time.Duration
	// Tracker enables the composite position report.
	Tracker bool
}

// Emission is one field value that is due for publishing.
type Emission struct {
	Field Field
	Value float64
}

// TrackerReport combines the latest known position with heading, speed and
// an accuracy estimate in meters.
type TrackerReport struct {
	Latitude    float64
	Longitude   float64
	Heading     *float64
	Speed       *float64
	GPSAccuracy int
}

type Update struct {
	Fields  []Emission
	Tracker *TrackerReport
}

// Empty reports whether nothing is due.
func (u Update) Empty() bool {
	return len(u.Fields) == 0 && u.Tracker == nil
}

// Accumulator keeps the latest value of every field and decides which are
// due for emission. It is not safe for concurrent use.
type Accumulator struct {
	cfg Config

	state     map[string]float64
	lastEmit  map[string]time.Time
	lastValue map[string]float64
	streams   map[Category]time.Time
}

func New(cfg Config) *Accumulator {
	intervals := make(map[Category]time.Duration, len(cfg.Intervals))
	for k, v := range cfg.Intervals {
		intervals[k] = v
	}
	cfg.Intervals = intervals
	return &Accumulator{
		cfg:       cfg,
		state:     make(map[string]float64),
		lastEmit:  make(map[string]time.Time),
		lastValue: make(map[string]float64),
		streams:   make(map[Category]time.Time),
	}
}

// Interval returns the configured interval for c, or DefaultInterval.
func (a *Accumulator) Interval(c Category) time.Duration {
	if d, ok := a.cfg.Intervals[c]; ok && d >= 0 {
		return d
	}
	return DefaultInterval
}

// due records an emission for key and returns true when none happened yet
// or at least interval has elapsed since the last one.
func due(last map[string]time.Time, key string, interval time.Duration, now time.Time) bool {
	prev, ok := last[key]
	if ok && now.Sub(prev) < interval {
		return false
	}
	last[key] = now
	return true
}

// Observe folds rec into the known state and returns the fields that are due.
// State is refreshed even for fields whose emission is suppressed.
func (a *Accumulator) Observe(now time.Time, rec *nmea.Record) Update {
	var u Update
	if rec == nil || rec.IsAIS() {
		return u
	}

	for _, f := range Catalog {
		v, ok := f.Value(rec)
		if !ok {
			continue
		}
		a.state[f.ID] = v
		if due(a.lastEmit, f.ID, a.Interval(f.Category), now) {
			a.lastValue[f.ID] = v
			u.Fields = append(u.Fields, Emission{Field: f, Value: v})
		}
	}

	if a.cfg.Tracker {
		u.Tracker = a.tracker(now)
	}
	return u
}

func (a *Accumulator) tracker(now time.Time) *TrackerReport {
	lat, okLat := a.state["latitude"]
	lon, okLon := a.state["longitude"]
	if !okLat || !okLon {
		return nil
	}
	if !due(a.lastEmit, TrackerID, a.Interval(CategoryPosition), now) {
		return nil
	}
	r := &TrackerReport{Latitude: lat, Longitude: lon, GPSAccuracy: DefaultGPSAccuracy}
	if v, ok := a.state["heading_true"]; ok {
		r.Heading = &v
	}
	if v, ok := a.state["speed_knots"]; ok {
		r.Speed = &v
	}
	if v, ok := a.state["hdop"]; ok {
		r.GPSAccuracy = int(math.Round(v * 5))
	}
	return r
}

// AllowAIS gates the AIS stream as a whole on the ais interval.
func (a *Accumulator) AllowAIS(now time.Time) bool {
	prev, ok := a.streams[CategoryAIS]
	if ok && now.Sub(prev) < a.Interval(CategoryAIS) {
		return false
	}
	a.streams[CategoryAIS] = now
	return true
}

// State returns a copy of the latest known value per field id.
func (a *Accumulator) State() map[string]float64 {
	out := make(map[string]float64, len(a.state))
	for k, v := range a.state {
		out[k] = v
	}
	return out
}

// LastEmitted returns the last value emitted for a field.
func (a *Accumulator) LastEmitted(id string) (float64, bool) {
	v, ok := a.lastValue[id]
	return v, ok
}
