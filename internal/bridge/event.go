package bridge

import (
	"time"

	"nmea-bridge/internal/ais"
)

// EventKind names what an Event carries.
type EventKind string

const (
	EventSensor        EventKind = "sensor"
	EventTracker       EventKind = "tracker"
	EventAIS           EventKind = "ais"
	EventVessel        EventKind = "vessel"
	EventVesselRemoved EventKind = "vessel_removed"
	EventVesselCount   EventKind = "vessel_count"
)

// Event mirrors each publish for live observers such as the web stream.
type Event struct {
	Kind   EventKind   `json:"kind"`
	Time   time.Time   `json:"time"`
	Source string      `json:"source,omitempty"`
	Field  string      `json:"field,omitempty"`
	Value  *float64    `json:"value,omitempty"`
	Raw    string      `json:"raw,omitempty"`
	MMSI   uint32      `json:"mmsi,omitempty"`
	New    bool        `json:"new,omitempty"`
	Vessel *ais.Report `json:"vessel,omitempty"`
	Count  *int        `json:"count,omitempty"`

	Tracker *TrackerEvent `json:"tracker,omitempty"`
}

type TrackerEvent struct {
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Heading     *float64 `json:"heading,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	GPSAccuracy int      `json:"gps_accuracy"`
}
