package ais

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"nmea-bridge/internal/nmea"
)

const (
	DefaultVesselTimeout    = 600 * time.Second
	DefaultMultipartTimeout = 5 * time.Second

	defaultSeqKey = "default"
)

type DecoderConfig struct {
	// VesselTimeout is how long a vessel is kept without messages.
	VesselTimeout time.Duration
	// MultipartTimeout is how long the first fragment waits for the second.
	MultipartTimeout time.Duration
	// MaxVessels limits memory use. When exceeded, the least recently seen
	// vessel is dropped. Zero means no limit.
	MaxVessels int

	Logger *slog.Logger
}

// Decoder reassembles AIS sentences and keeps the vessel registry.
// It is not safe for concurrent use.
type Decoder struct {
	cfg DecoderConfig
	log *slog.Logger

	vessels map[uint32]*Vessel
	pending map[string]fragment
}

type fragment struct {
	line string
	at   time.Time
}

// Update is the result of one line fed to Decode.
type Update struct {
	Vessel  Vessel
	New     bool
	Message Message

	// Lines is the packet group the line completed: the line itself, or
	// both fragments of a multipart message. It is nil while the line is
	// held waiting for its continuation.
	Lines []string
	// Evicted lists vessels dropped to stay within MaxVessels.
	Evicted []uint32
}

func NewDecoder(cfg DecoderConfig) *Decoder {
	if cfg.VesselTimeout <= 0 {
		cfg.VesselTimeout = DefaultVesselTimeout
	}
	if cfg.MultipartTimeout <= 0 {
		cfg.MultipartTimeout = DefaultMultipartTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Decoder{
		cfg:     cfg,
		log:     log.With("component", "ais"),
		vessels: make(map[uint32]*Vessel),
		pending: make(map[string]fragment),
	}
}

// Decode feeds one !AIVDM/!AIVDO line. The bool is true only when a vessel
// was updated; it is false while a multipart message is incomplete and for
// anything that cannot be decoded.
func (d *Decoder) Decode(now time.Time, line string) (Update, bool) {
	env, err := ParseEnvelope(line)
	if err != nil {
		d.log.Debug("ais envelope rejected", "err", err, "line", line)
		return Update{Lines: []string{line}}, false
	}

	if env.Count == 1 {
		return d.process(now, line)
	}

	key := env.SeqID
	if key == "" {
		key = defaultSeqKey
	}
	switch {
	case env.Index == 1:
		d.pending[key] = fragment{line: line, at: now}
		return Update{}, false
	case env.Index == 2 && env.Count == 2:
		first, ok := d.pending[key]
		if !ok {
			d.log.Debug("ais fragment without first part", "seq", key)
			return Update{Lines: []string{line}}, false
		}
		delete(d.pending, key)
		if now.Sub(first.at) >= d.cfg.MultipartTimeout {
			d.log.Debug("ais fragment expired", "seq", key, "age", now.Sub(first.at))
			return Update{Lines: []string{first.line, line}}, false
		}
		return d.process(now, first.line, line)
	}
	return Update{Lines: []string{line}}, false
}

func (d *Decoder) process(now time.Time, lines ...string) (Update, bool) {
	m, err := DecodeSentences(lines...)
	if err != nil {
		d.log.Debug("ais decode failed", "err", err)
		return Update{Lines: lines}, false
	}
	if m.MMSI == 0 {
		return Update{Lines: lines}, false
	}

	var evicted []uint32
	v, ok := d.vessels[m.MMSI]
	isNew := !ok
	if isNew {
		v = newVessel(m.MMSI)
		d.vessels[m.MMSI] = v
		evicted = d.enforceLimit(m.MMSI)
	}
	v.LastSeen = now
	v.MessageCount++

	if m.HasPosition {
		applyPosition(v, m)
	}
	switch m.Type {
	case 5, 19, 24:
		applyStatic(v, m)
	}

	return Update{Vessel: *v, New: isNew, Message: m, Lines: lines, Evicted: evicted}, true
}

// applyPosition and applyStatic never clear known data and always store
// fresh pointers, so Vessel copies handed out earlier stay unchanged.
func applyPosition(v *Vessel, m Message) {
	if math.Abs(m.Lat) <= 90 && math.Abs(m.Lon) <= 180 {
		v.Lat = ptr(nmea.Round(m.Lat, 6))
		v.Lon = ptr(nmea.Round(m.Lon, 6))
	}
	if m.Speed < SpeedNotAvailable {
		v.Speed = ptr(m.Speed)
	}
	if m.Course < CourseNotAvailable {
		v.Course = ptr(nmea.Round(m.Course, 1))
	}
	if m.Heading < HeadingNotAvailable {
		v.Heading = ptr(m.Heading)
	}
	if m.HasStatus {
		v.Status = NavStatusName(m.Status)
	}
}

func applyStatic(v *Vessel, m Message) {
	if s := cleanText(m.Name); s != "" {
		v.Name = s
	}
	if s := cleanText(m.Callsign); s != "" {
		v.Callsign = s
	}
	if s := cleanText(m.Destination); s != "" {
		v.Destination = s
	}
	// Ship type 0 means not available and never replaces a known type.
	switch {
	case m.HasShipType && m.ShipType > 0:
		v.ShipType = ShipTypeName(m.ShipType)
		v.ShipTypeID = ptr(m.ShipType)
	case m.HasShipType && v.ShipType == "":
		v.ShipType = ShipTypeName(m.ShipType)
	}
	if m.Draught > 0 {
		v.Draught = ptr(m.Draught)
	}
	if m.HasDimensions {
		setDim(&v.ToBow, m.ToBow)
		setDim(&v.ToStern, m.ToStern)
		setDim(&v.ToPort, m.ToPort)
		setDim(&v.ToStarboard, m.ToStarboard)
	}
}

func setDim(dst **int, n int) {
	if n > 0 {
		*dst = ptr(n)
	}
}

// enforceLimit drops the least recently seen vessels other than keep until
// the registry fits MaxVessels, and returns what it dropped.
func (d *Decoder) enforceLimit(keep uint32) []uint32 {
	if d.cfg.MaxVessels <= 0 {
		return nil
	}
	var evicted []uint32
	for len(d.vessels) > d.cfg.MaxVessels {
		var oldest uint32
		var oldestAt time.Time
		first := true
		for k, v := range d.vessels {
			if k == keep {
				continue
			}
			if first || v.LastSeen.Before(oldestAt) {
				oldest, oldestAt, first = k, v.LastSeen, false
			}
		}
		if first {
			break
		}
		delete(d.vessels, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

// Sweep drops vessels silent for longer than the vessel timeout and
// multipart fragments older than the reassembly window. It returns the
// dropped MMSIs in ascending order.
func (d *Decoder) Sweep(now time.Time) []uint32 {
	var evicted []uint32
	for mmsi, v := range d.vessels {
		if now.Sub(v.LastSeen) > d.cfg.VesselTimeout {
			evicted = append(evicted, mmsi)
			delete(d.vessels, mmsi)
		}
	}
	for key, f := range d.pending {
		if now.Sub(f.at) > d.cfg.MultipartTimeout {
			delete(d.pending, key)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i] < evicted[j] })
	return evicted
}

// Vessels returns a snapshot sorted by MMSI.
func (d *Decoder) Vessels() []Vessel {
	out := make([]Vessel, 0, len(d.vessels))
	for _, v := range d.vessels {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MMSI < out[j].MMSI })
	return out
}

func (d *Decoder) Vessel(mmsi uint32) (Vessel, bool) {
	v, ok := d.vessels[mmsi]
	if !ok {
		return Vessel{}, false
	}
	return *v, true
}

func (d *Decoder) Count() int {
	return len(d.vessels)
}

// Pending is the number of first fragments waiting for their continuation.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

func ptr[T any](v T) *T {
	return &v
}
