// Package publish puts bridge output on NATS subjects laid out for Home
// Assistant style discovery, with retained state mirrored into a JetStream
// key-value bucket.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"nmea-bridge/internal/ais"
	"nmea-bridge/internal/throttle"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	trackerState = "not_home"
)

type Device struct {
	Identifiers  string
	Name         string
	Manufacturer string
	Model        string
}

type Config struct {
	URL             string
	ClientName      string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string

	// KVBucket holds retained messages. Empty disables retention.
	KVBucket       string
	ConnectTimeout time.Duration
	Device         Device

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "navnet"
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.Device.Identifiers == "" {
		c.Device.Identifiers = "navnet_bridge"
	}
	if c.Device.Name == "" {
		c.Device.Name = "Navnet"
	}
	if c.Device.Manufacturer == "" {
		c.Device.Manufacturer = "Furuno"
	}
	if c.Device.Model == "" {
		c.Device.Model = "NavNet"
	}
	return c
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
}

// retainer is the part of jetstream.KeyValue the publisher uses.
type retainer interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// Publisher implements bridge.Publisher. It is safe for concurrent use.
type Publisher struct {
	cfg Config
	log *slog.Logger

	// close is set by Dial to drain the underlying connection.
	close func() error
	// ready is set once Dial has announced; reconnect handling waits for it.
	ready atomic.Bool

	mu         sync.Mutex
	conn       conn
	kv         retainer
	lastValues map[string]string
	// vessels maps announced vessels to the name their discovery was sent with.
	vessels map[uint32]string
}

// New wraps an established connection. kv may be nil.
func New(c conn, kv retainer, cfg Config) *Publisher {
	cfg = cfg.withDefaults()
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		log:        log.With("component", "publish"),
		conn:       c,
		kv:         kv,
		lastValues: make(map[string]string),
		vessels:    make(map[uint32]string),
	}
}

func (p *Publisher) subject(parts ...string) string {
	s := p.cfg.TopicPrefix
	for _, part := range parts {
		s += "." + part
	}
	return s
}

func (p *Publisher) discoverySubject(component, objectID string) string {
	return p.cfg.DiscoveryPrefix + "." + component + "." + objectID + ".config"
}

// StatusSubject carries online/offline availability.
func (p *Publisher) StatusSubject() string {
	return p.subject("bridge", "status")
}

var errNotConnected = errors.New("publish: not connected")

func (p *Publisher) send(ctx context.Context, subject string, data []byte, retain bool) error {
	p.mu.Lock()
	c, kv := p.conn, p.kv
	p.mu.Unlock()
	if c == nil {
		return errNotConnected
	}
	if err := c.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if !retain || kv == nil {
		return nil
	}
	if len(data) == 0 {
		if err := kv.Delete(ctx, subject); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("retain delete %s: %w", subject, err)
		}
		return nil
	}
	if _, err := kv.Put(ctx, subject, data); err != nil {
		return fmt.Errorf("retain %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) sendJSON(ctx context.Context, subject string, v any, retain bool) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	return p.send(ctx, subject, b, retain)
}

// Announce publishes the online status and every discovery config. It is
// called after connecting and again after each reconnect.
func (p *Publisher) Announce(ctx context.Context) error {
	p.mu.Lock()
	p.lastValues = make(map[string]string)
	p.vessels = make(map[uint32]string)
	p.mu.Unlock()

	if err := p.send(ctx, p.StatusSubject(), []byte(StatusOnline), true); err != nil {
		return err
	}
	for _, f := range throttle.Catalog {
		id := "navnet_" + f.ID
		if err := p.sendJSON(ctx, p.discoverySubject("sensor", id), p.sensorDiscovery(f), true); err != nil {
			return err
		}
	}
	trackerTopic := p.subject("device_tracker")
	if err := p.sendJSON(ctx, p.discoverySubject("device_tracker", "navnet_vessel"),
		p.trackerDiscovery("Vessel Position", "navnet_vessel_tracker", trackerTopic), true); err != nil {
		return err
	}
	for _, s := range []struct{ id, name, state, icon string }{
		{"navnet_ais_last_message", "AIS Last Message", p.subject("ais", "last_message"), "mdi:ship-wheel"},
		{"navnet_ais_vessel_count", "AIS Vessels", p.subject("ais", "vessel_count", "state"), "mdi:ferry"},
	} {
		d := discovery{
			Name:         s.name,
			UniqueID:     s.id,
			StateTopic:   s.state,
			Availability: p.StatusSubject(),
			Device:       p.device(),
			Icon:         s.icon,
		}
		if err := p.sendJSON(ctx, p.discoverySubject("sensor", s.id), d, true); err != nil {
			return err
		}
	}
	p.log.Info("discovery sent", "sensors", len(throttle.Catalog))
	return nil
}

// PublishSensor sends a field value unless it equals the last one sent.
func (p *Publisher) PublishSensor(ctx context.Context, f throttle.Field, value float64) error {
	payload := FormatValue(f, value)
	p.mu.Lock()
	prev, ok := p.lastValues[f.ID]
	p.mu.Unlock()
	if ok && prev == payload {
		return nil
	}

	if err := p.send(ctx, p.subject("sensor", f.ID, "state"), []byte(payload), true); err != nil {
		return err
	}
	// Only a delivered value suppresses repeats; a failed one is retried.
	p.mu.Lock()
	p.lastValues[f.ID] = payload
	p.mu.Unlock()
	return nil
}

// FormatValue renders a value the way it appears on the state subject.
func FormatValue(f throttle.Field, v float64) string {
	if f.Integer {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type trackerAttributes struct {
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	GPSAccuracy int      `json:"gps_accuracy"`
	SourceType  string   `json:"source_type"`
	Heading     *float64 `json:"heading,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
}

func (p *Publisher) PublishTracker(ctx context.Context, r throttle.TrackerReport) error {
	if err := p.send(ctx, p.subject("device_tracker", "state"), []byte(trackerState), true); err != nil {
		return err
	}
	return p.sendJSON(ctx, p.subject("device_tracker", "attributes"), trackerAttributes{
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		GPSAccuracy: r.GPSAccuracy,
		SourceType:  "gps",
		Heading:     r.Heading,
		Speed:       r.Speed,
	}, true)
}

// PublishAIS forwards a raw sentence to the last-message and stream subjects.
func (p *Publisher) PublishAIS(ctx context.Context, raw string) error {
	if err := p.send(ctx, p.subject("ais", "last_message"), []byte(raw), false); err != nil {
		return err
	}
	return p.send(ctx, p.subject("ais", "stream"), []byte(raw), false)
}

func vesselObjectID(mmsi uint32) string {
	return "navnet_ais_" + strconv.FormatUint(uint64(mmsi), 10)
}

func (p *Publisher) vesselSubject(mmsi uint32, leaf string) string {
	return p.subject("ais", "vessel", strconv.FormatUint(uint64(mmsi), 10), leaf)
}

type vesselAttributes struct {
	ais.Report
	GPSAccuracy int    `json:"gps_accuracy"`
	SourceType  string `json:"source_type"`
}

// PublishVessel sends the vessel snapshot and, the first time a vessel (or
// a new name for it) is seen, its tracker discovery config.
func (p *Publisher) PublishVessel(ctx context.Context, v ais.Vessel, isNew bool) error {
	name := v.DisplayName()
	p.mu.Lock()
	prev, announced := p.vessels[v.MMSI]
	needDiscovery := isNew || !announced || prev != name
	if needDiscovery {
		p.vessels[v.MMSI] = name
	}
	p.mu.Unlock()

	if needDiscovery {
		d := p.trackerDiscovery(name, vesselObjectID(v.MMSI), p.subject("ais", "vessel", strconv.FormatUint(uint64(v.MMSI), 10)))
		if err := p.sendJSON(ctx, p.discoverySubject("device_tracker", vesselObjectID(v.MMSI)), d, true); err != nil {
			return err
		}
	}
	if err := p.send(ctx, p.vesselSubject(v.MMSI, "state"), []byte(trackerState), true); err != nil {
		return err
	}
	return p.sendJSON(ctx, p.vesselSubject(v.MMSI, "attributes"), vesselAttributes{
		Report:      v.Report(),
		GPSAccuracy: throttle.DefaultGPSAccuracy,
		SourceType:  "gps",
	}, true)
}

// RemoveVessel retracts the vessel's discovery config and retained state.
func (p *Publisher) RemoveVessel(ctx context.Context, mmsi uint32) error {
	p.mu.Lock()
	delete(p.vessels, mmsi)
	p.mu.Unlock()

	if err := p.send(ctx, p.discoverySubject("device_tracker", vesselObjectID(mmsi)), nil, true); err != nil {
		return err
	}
	for _, leaf := range []string{"state", "attributes"} {
		if err := p.send(ctx, p.vesselSubject(mmsi, leaf), nil, true); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) PublishVesselCount(ctx context.Context, n int) error {
	return p.send(ctx, p.subject("ais", "vessel_count", "state"), []byte(strconv.Itoa(n)), true)
}

// Connected reports whether the bus connection is up.
func (p *Publisher) Connected() bool {
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c == nil {
		return false
	}
	if s, ok := c.(interface{ IsConnected() bool }); ok {
		return s.IsConnected()
	}
	return true
}

// Close publishes the offline status and drains the connection.
func (p *Publisher) Close(ctx context.Context) error {
	err := p.send(ctx, p.StatusSubject(), []byte(StatusOffline), true)
	if p.close != nil {
		if cerr := p.close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
