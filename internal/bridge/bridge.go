// Package bridge wires the sentence parser, the AIS decoder and the
// accumulator behind one lock and hands their output to a Publisher.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nmea-bridge/internal/ais"
	"nmea-bridge/internal/nmea"
	"nmea-bridge/internal/throttle"
)

// Publisher receives everything the bridge decides to emit.
// Implementations must be safe for concurrent use.
type Publisher interface {
	PublishSensor(ctx context.Context, f throttle.Field, value float64) error
	PublishTracker(ctx context.Context, r throttle.TrackerReport) error
	PublishAIS(ctx context.Context, raw string) error
	PublishVessel(ctx context.Context, v ais.Vessel, isNew bool) error
	RemoveVessel(ctx context.Context, mmsi uint32) error
	PublishVesselCount(ctx context.Context, n int) error
}

type Config struct {
	Throttle throttle.Config
	AIS      ais.DecoderConfig

	Logger *slog.Logger
	// Registerer, when set, receives the bridge's Prometheus collectors.
	Registerer prometheus.Registerer
	// OnEvent is called after every publish attempt, outside the lock.
	OnEvent func(Event)
	// Now overrides the clock used by HandleLine.
	Now func() time.Time
}

// Stats are cumulative counters since start.
type Stats struct {
	Received  uint64 `json:"sentences_received"`
	Parsed    uint64 `json:"sentences_parsed"`
	Published uint64 `json:"sentences_published"`
	Errors    uint64 `json:"errors"`
	Vessels   int    `json:"ais_vessels"`
}

type Bridge struct {
	pub     Publisher
	log     *slog.Logger
	metrics *metrics
	onEvent func(Event)
	now     func() time.Time

	mu        sync.Mutex
	decoder   *ais.Decoder
	acc       *throttle.Accumulator
	lastCount int

	received  atomic.Uint64
	parsed    atomic.Uint64
	published atomic.Uint64
	errors    atomic.Uint64
}

func New(pub Publisher, cfg Config) (*Bridge, error) {
	if pub == nil {
		return nil, errors.New("bridge: publisher is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("bridge: register metrics: %w", err)
	}
	if cfg.AIS.Logger == nil {
		cfg.AIS.Logger = log
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Bridge{
		pub:       pub,
		log:       log.With("component", "bridge"),
		metrics:   m,
		onEvent:   cfg.OnEvent,
		now:       now,
		decoder:   ais.NewDecoder(cfg.AIS),
		acc:       throttle.New(cfg.Throttle),
		lastCount: -1,
	}, nil
}

type vesselOut struct {
	vessel ais.Vessel
	isNew  bool
}

// batch is everything one line produced, computed under the lock and
// published after it is released.
type batch struct {
	fields  []throttle.Emission
	tracker *throttle.TrackerReport
	ais     []string
	vessels []vesselOut
	removed []uint32
	count   *int
}

func (b *batch) empty() bool {
	return len(b.fields) == 0 && b.tracker == nil && len(b.ais) == 0 &&
		len(b.vessels) == 0 && len(b.removed) == 0 && b.count == nil
}

// HandleLine processes one raw line from source. It reports whether
// anything was published. Malformed or unsupported input is dropped.
func (b *Bridge) HandleLine(ctx context.Context, source, sender, line string) bool {
	b.received.Add(1)
	b.metrics.received.WithLabelValues(source).Inc()

	rec, err := nmea.Decode(line)
	if err != nil {
		b.metrics.rejected.Inc()
		b.log.Debug("sentence dropped", "source", source, "sender", sender, "err", err, "line", line)
		return false
	}
	b.parsed.Add(1)
	b.metrics.parsed.WithLabelValues(rec.Type).Inc()

	now := b.now()
	b.mu.Lock()
	out := b.collect(now, rec)
	b.mu.Unlock()

	if out.empty() {
		return false
	}
	b.published.Add(1)
	b.flush(ctx, now, source, out)
	return true
}

func (b *Bridge) collect(now time.Time, rec *nmea.Record) batch {
	var out batch
	if !rec.IsAIS() {
		u := b.acc.Observe(now, rec)
		out.fields = u.Fields
		out.tracker = u.Tracker
		return out
	}

	// Vessel state is always kept current; only forwarding is throttled.
	// The gate runs once per completed packet group, so a held first
	// fragment never spends it.
	var lines []string
	var updates []ais.Update
	for _, raw := range rec.AIS {
		u, ok := b.decoder.Decode(now, raw)
		lines = append(lines, u.Lines...)
		for _, mmsi := range u.Evicted {
			b.log.Info("dropped AIS vessel over limit", "mmsi", mmsi)
		}
		out.removed = append(out.removed, u.Evicted...)
		if ok {
			updates = append(updates, u)
		}
	}
	b.metrics.vessels.Set(float64(b.decoder.Count()))
	if len(out.removed) > 0 {
		b.metrics.evicted.Add(float64(len(out.removed)))
		out.count = b.countChange()
	}

	if len(lines) == 0 {
		return out
	}
	if !b.acc.AllowAIS(now) {
		b.metrics.aisGated.Inc()
		return out
	}
	out.ais = lines
	for _, u := range updates {
		if u.Vessel.HasPosition() {
			out.vessels = append(out.vessels, vesselOut{vessel: u.Vessel, isNew: u.New})
		}
	}
	if n := b.countChange(); n != nil {
		out.count = n
	}
	return out
}

// countChange returns the vessel count when it differs from the last one
// published. Callers hold b.mu.
func (b *Bridge) countChange() *int {
	n := b.decoder.Count()
	if n == b.lastCount {
		return nil
	}
	b.lastCount = n
	return &n
}

// Sweep evicts stale vessels and fragments and retracts them downstream.
func (b *Bridge) Sweep(ctx context.Context, now time.Time) []uint32 {
	b.mu.Lock()
	evicted := b.decoder.Sweep(now)
	var out batch
	out.removed = evicted
	if len(evicted) > 0 {
		out.count = b.countChange()
	}
	b.metrics.vessels.Set(float64(b.decoder.Count()))
	b.mu.Unlock()

	for _, mmsi := range evicted {
		b.log.Info("removed stale AIS vessel", "mmsi", mmsi)
	}
	b.metrics.evicted.Add(float64(len(evicted)))
	if !out.empty() {
		b.flush(ctx, now, "", out)
	}
	return evicted
}

func (b *Bridge) flush(ctx context.Context, now time.Time, source string, out batch) {
	for _, e := range out.fields {
		v := e.Value
		b.emit(Event{Kind: EventSensor, Time: now, Source: source, Field: e.Field.ID, Value: &v},
			b.pub.PublishSensor(ctx, e.Field, e.Value))
	}
	if r := out.tracker; r != nil {
		b.emit(Event{Kind: EventTracker, Time: now, Source: source, Tracker: &TrackerEvent{
			Latitude:    r.Latitude,
			Longitude:   r.Longitude,
			Heading:     r.Heading,
			Speed:       r.Speed,
			GPSAccuracy: r.GPSAccuracy,
		}}, b.pub.PublishTracker(ctx, *r))
	}
	for _, raw := range out.ais {
		b.emit(Event{Kind: EventAIS, Time: now, Source: source, Raw: raw},
			b.pub.PublishAIS(ctx, raw))
	}
	for _, v := range out.vessels {
		rep := v.vessel.Report()
		b.emit(Event{Kind: EventVessel, Time: now, Source: source, MMSI: v.vessel.MMSI, New: v.isNew, Vessel: &rep},
			b.pub.PublishVessel(ctx, v.vessel, v.isNew))
	}
	for _, mmsi := range out.removed {
		b.emit(Event{Kind: EventVesselRemoved, Time: now, MMSI: mmsi},
			b.pub.RemoveVessel(ctx, mmsi))
	}
	if out.count != nil {
		n := *out.count
		b.emit(Event{Kind: EventVesselCount, Time: now, Count: &n},
			b.pub.PublishVesselCount(ctx, n))
	}
}

func (b *Bridge) emit(ev Event, err error) {
	if err != nil {
		b.errors.Add(1)
		b.metrics.errors.Inc()
		b.log.Warn("publish failed", "kind", ev.Kind, "err", err)
		return
	}
	b.metrics.published.Inc()
	if b.onEvent != nil {
		ev.Time = ev.Time.UTC()
		b.onEvent(ev)
	}
}

func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	n := b.decoder.Count()
	b.mu.Unlock()
	return Stats{
		Received:  b.received.Load(),
		Parsed:    b.parsed.Load(),
		Published: b.published.Load(),
		Errors:    b.errors.Load(),
		Vessels:   n,
	}
}

// Vessels returns the tracked vessels sorted by MMSI.
func (b *Bridge) Vessels() []ais.Vessel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.decoder.Vessels()
}

// State returns the latest known value per sensor field.
func (b *Bridge) State() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acc.State()
}

// LogStats writes one summary line at info level.
func (b *Bridge) LogStats() {
	s := b.Stats()
	b.log.Info("bridge stats",
		"received", s.Received,
		"parsed", s.Parsed,
		"published", s.Published,
		"errors", s.Errors,
		"ais_vessels", s.Vessels,
	)
}
