package ais

import (
	"fmt"
	"time"
)

// Vessel is the accumulated state of one MMSI. Nil pointers are unknown.
type Vessel struct {
	MMSI        uint32
	Name        string
	Callsign    string
	ShipTypeID  *int
	ShipType    string
	Destination string

	Lat     *float64
	Lon     *float64
	Course  *float64
	Speed   *float64
	Heading *int
	Status  string

	ToBow       *int
	ToStern     *int
	ToPort      *int
	ToStarboard *int
	Draught     *float64

	LastSeen     time.Time
	MessageCount int
}

func newVessel(mmsi uint32) *Vessel {
	return &Vessel{MMSI: mmsi, ShipType: "Unknown"}
}

// HasPosition reports whether a valid position has been received.
func (v Vessel) HasPosition() bool {
	return v.Lat != nil && v.Lon != nil
}

// Length is bow + stern in meters, when both are known.
func (v Vessel) Length() *int {
	if v.ToBow == nil || v.ToStern == nil {
		return nil
	}
	n := *v.ToBow + *v.ToStern
	return &n
}

// Beam is port + starboard in meters, when both are known.
func (v Vessel) Beam() *int {
	if v.ToPort == nil || v.ToStarboard == nil {
		return nil
	}
	n := *v.ToPort + *v.ToStarboard
	return &n
}

// DisplayName falls back to "MMSI <n>" for vessels that have not sent a name.
func (v Vessel) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("MMSI %d", v.MMSI)
}

// Report is the JSON shape published for a vessel.
type Report struct {
	MMSI         uint32   `json:"mmsi"`
	Name         string   `json:"name"`
	Callsign     string   `json:"callsign"`
	ShipType     string   `json:"ship_type"`
	Destination  string   `json:"destination"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Course       *float64 `json:"course"`
	Speed        *float64 `json:"speed"`
	Heading      *int     `json:"heading"`
	Status       string   `json:"status"`
	MessageCount int      `json:"message_count"`
	Length       *int     `json:"length,omitempty"`
	Beam         *int     `json:"beam,omitempty"`
	Draught      *float64 `json:"draught,omitempty"`
}

func (v Vessel) Report() Report {
	return Report{
		MMSI:         v.MMSI,
		Name:         v.DisplayName(),
		Callsign:     v.Callsign,
		ShipType:     v.ShipType,
		Destination:  v.Destination,
		Latitude:     v.Lat,
		Longitude:    v.Lon,
		Course:       v.Course,
		Speed:        v.Speed,
		Heading:      v.Heading,
		Status:       v.Status,
		MessageCount: v.MessageCount,
		Length:       v.Length(),
		Beam:         v.Beam(),
		Draught:      v.Draught,
	}
}

var shipTypeNames = map[int]string{
	0:  "Not available",
	20: "Wing in ground",
	30: "Fishing",
	31: "Towing",
	32: "Towing (large)",
	33: "Dredging",
	34: "Diving ops",
	35: "Military ops",
	36: "Sailing",
	37: "Pleasure craft",
	40: "High speed craft",
	50: "Pilot vessel",
	51: "Search & rescue",
	52: "Tug",
	53: "Port tender",
	55: "Law enforcement",
	60: "Passenger",
	70: "Cargo",
	80: "Tanker",
	90: "Other",
}

// ShipTypeName labels a ship type code: exact match, then its tens
// category, then "Type N".
func ShipTypeName(code int) string {
	if s, ok := shipTypeNames[code]; ok {
		return s
	}
	if s, ok := shipTypeNames[code/10*10]; ok {
		return s
	}
	return fmt.Sprintf("Type %d", code)
}

var navStatusNames = [...]string{
	"Under way using engine",
	"At anchor",
	"Not under command",
	"Restricted manoeuvrability",
	"Constrained by draught",
	"Moored",
	"Aground",
	"Engaged in fishing",
	"Under way sailing",
	"Reserved (HSC)",
	"Reserved (WIG)",
	"Power-driven vessel towing astern",
	"Power-driven vessel pushing ahead",
	"Reserved",
	"AIS-SART active",
	"Not defined",
}

// NavStatusName labels the 4-bit navigational status.
func NavStatusName(code int) string {
	if code < 0 || code >= len(navStatusNames) {
		return fmt.Sprintf("Status %d", code)
	}
	return navStatusNames[code]
}
