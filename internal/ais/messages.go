package ais

import "fmt"

// Sentinels the radios send for "not available".
const (
	SpeedNotAvailable   = 102.3
	CourseNotAvailable  = 360.0
	HeadingNotAvailable = 511
	LatNotAvailable     = 91.0
	LonNotAvailable     = 181.0
)

// Message is a decoded AIS payload. Position fields are meaningful when
// HasPosition is set (types 1, 2, 3, 18, 19); sentinel values are passed
// through untouched.
type Message struct {
	Type int
	MMSI uint32

	HasPosition bool
	Lat         float64
	Lon         float64
	Speed       float64
	Course      float64
	Heading     int

	HasStatus bool
	Status    int

	Name        string
	Callsign    string
	Destination string

	HasShipType bool
	ShipType    int

	HasDimensions bool
	ToBow         int
	ToStern       int
	ToPort        int
	ToStarboard   int

	Draught float64

	// PartNo is 0 (A) or 1 (B) for type 24.
	PartNo int
}

// minBits is the shortest payload each type can be decoded from.
var minBits = map[int]int{
	1:  137,
	2:  137,
	3:  137,
	5:  302,
	18: 133,
	19: 301,
	24: 40,
}

// DecodePayload decodes an armored six-bit payload.
func DecodePayload(payload string, fill int) (Message, error) {
	b, err := unarmor(payload, fill)
	if err != nil {
		return Message{}, err
	}
	if b.n < 38 {
		return Message{}, fmt.Errorf("%w: %d bits", ErrPayload, b.n)
	}
	m := Message{
		Type: int(b.uint(0, 6)),
		MMSI: uint32(b.uint(8, 30)),
	}
	need, ok := minBits[m.Type]
	if !ok {
		return Message{}, fmt.Errorf("%w: %d", ErrUnsupportedType, m.Type)
	}
	if b.n < need {
		return Message{}, fmt.Errorf("%w: type %d has %d bits, need %d", ErrPayload, m.Type, b.n, need)
	}

	switch m.Type {
	case 1, 2, 3:
		m.HasStatus = true
		m.Status = int(b.uint(38, 4))
		m.HasPosition = true
		m.Speed = float64(b.uint(50, 10)) / 10
		m.Lon = float64(b.int(61, 28)) / 600000
		m.Lat = float64(b.int(89, 27)) / 600000
		m.Course = float64(b.uint(116, 12)) / 10
		m.Heading = int(b.uint(128, 9))
	case 18:
		decodeClassBPosition(b, &m)
	case 19:
		decodeClassBPosition(b, &m)
		m.Name = b.text(143, 120)
		m.HasShipType = true
		m.ShipType = int(b.uint(263, 8))
		decodeDimensions(b, 271, &m)
	case 5:
		m.Callsign = b.text(70, 42)
		m.Name = b.text(112, 120)
		m.HasShipType = true
		m.ShipType = int(b.uint(232, 8))
		decodeDimensions(b, 240, &m)
		m.Draught = float64(b.uint(294, 8)) / 10
		m.Destination = b.text(302, 120)
	case 24:
		m.PartNo = int(b.uint(38, 2))
		switch m.PartNo {
		case 0:
			if b.n < 160 {
				return Message{}, fmt.Errorf("%w: type 24A has %d bits", ErrPayload, b.n)
			}
			m.Name = b.text(40, 120)
		case 1:
			if b.n < 162 {
				return Message{}, fmt.Errorf("%w: type 24B has %d bits", ErrPayload, b.n)
			}
			m.HasShipType = true
			m.ShipType = int(b.uint(40, 8))
			m.Callsign = b.text(90, 42)
			decodeDimensions(b, 132, &m)
		default:
			return Message{}, fmt.Errorf("%w: type 24 part %d", ErrPayload, m.PartNo)
		}
	}
	return m, nil
}

func decodeClassBPosition(b bitReader, m *Message) {
	m.HasPosition = true
	m.Speed = float64(b.uint(46, 10)) / 10
	m.Lon = float64(b.int(57, 28)) / 600000
	m.Lat = float64(b.int(85, 27)) / 600000
	m.Course = float64(b.uint(112, 12)) / 10
	m.Heading = int(b.uint(124, 9))
}

// decodeDimensions reads bow(9) stern(9) port(6) starboard(6) starting at off.
func decodeDimensions(b bitReader, off int, m *Message) {
	m.HasDimensions = true
	m.ToBow = int(b.uint(off, 9))
	m.ToStern = int(b.uint(off+9, 9))
	m.ToPort = int(b.uint(off+18, 6))
	m.ToStarboard = int(b.uint(off+24, 6))
}
