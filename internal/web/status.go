package web

import (
	"sync/atomic"
	"time"

	"nmea-bridge/internal/ais"
	"nmea-bridge/internal/bridge"
	"nmea-bridge/internal/ingest"
)

const serviceName = "nmea-bridge"

// Provider is the view of the bridge the status page reads.
type Provider interface {
	Stats() bridge.Stats
	State() map[string]float64
	Vessels() []ais.Vessel
}

type Status struct {
	startUnixNano int64
	provider      Provider
	sources       atomic.Value // func() []ingest.SourceSnapshot
	natsURL       atomic.Value // string
	topicPrefix   atomic.Value // string
	connected     atomic.Value // func() bool
}

func NewStatus(p Provider) *Status {
	s := &Status{provider: p}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.sources.Store(func() []ingest.SourceSnapshot { return nil })
	s.natsURL.Store("")
	s.topicPrefix.Store("")
	s.connected.Store(func() bool { return false })
	return s
}

func (s *Status) SetStatic(natsURL, topicPrefix string) {
	if natsURL != "" {
		s.natsURL.Store(natsURL)
	}
	if topicPrefix != "" {
		s.topicPrefix.Store(topicPrefix)
	}
}

// SetSources installs the function listing input snapshots.
func (s *Status) SetSources(fn func() []ingest.SourceSnapshot) {
	if fn != nil {
		s.sources.Store(fn)
	}
}

// SetConnected installs the bus connection probe used by /healthz.
func (s *Status) SetConnected(fn func() bool) {
	if fn != nil {
		s.connected.Store(fn)
	}
}

func (s *Status) Connected() bool {
	return s.connected.Load().(func() bool)()
}

type StatusSnapshot struct {
	Service     string                  `json:"service"`
	NowUTC      string                  `json:"now_utc"`
	UptimeSec   int64                   `json:"uptime_sec"`
	NATSURL     string                  `json:"nats_url"`
	TopicPrefix string                  `json:"topic_prefix"`
	Connected   bool                    `json:"connected"`
	Stats       bridge.Stats            `json:"stats"`
	Sensors     map[string]float64      `json:"sensors"`
	Sources     []ingest.SourceSnapshot `json:"sources"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:     serviceName,
		NowUTC:      nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:   int64(nowUTC.Sub(start).Seconds()),
		NATSURL:     s.natsURL.Load().(string),
		TopicPrefix: s.topicPrefix.Load().(string),
		Connected:   s.Connected(),
		Sensors:     map[string]float64{},
		Sources:     s.sources.Load().(func() []ingest.SourceSnapshot)(),
	}
	if s.provider != nil {
		snap.Stats = s.provider.Stats()
		snap.Sensors = s.provider.State()
	}
	if snap.Sources == nil {
		snap.Sources = []ingest.SourceSnapshot{}
	}
	return snap
}

// VesselReports returns the tracked vessels in their published form.
func (s *Status) VesselReports() []ais.Report {
	out := []ais.Report{}
	if s.provider == nil {
		return out
	}
	for _, v := range s.provider.Vessels() {
		out = append(out, v.Report())
	}
	return out
}
