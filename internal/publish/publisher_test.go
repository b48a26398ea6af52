package publish

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"nmea-bridge/internal/ais"
	"nmea-bridge/internal/throttle"
)

type msg struct {
	subject string
	data    string
}

type fakeConn struct {
	mu   sync.Mutex
	msgs []msg
	fail error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.msgs = append(c.msgs, msg{subject: subject, data: string(data)})
	return nil
}

func (c *fakeConn) take() []msg {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.msgs
	c.msgs = nil
	return out
}

func (c *fakeConn) find(subject string) (msg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].subject == subject {
			return c.msgs[i], true
		}
	}
	return msg{}, false
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (k *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = string(value)
	return uint64(len(k.data)), nil
}

func (k *fakeKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.data[key]; !ok {
		return jetstream.ErrKeyNotFound
	}
	delete(k.data, key)
	return nil
}

func mustField(t *testing.T, id string) throttle.Field {
	t.Helper()
	f, ok := throttle.Lookup(id)
	if !ok {
		t.Fatalf("no field %q", id)
	}
	return f
}

func TestAnnounce(t *testing.T) {
	c := &fakeConn{}
	kv := newFakeKV()
	p := New(c, kv, Config{})
	if err := p.Announce(context.Background()); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	m, ok := c.find("navnet.bridge.status")
	if !ok || m.data != StatusOnline {
		t.Fatalf("status=%+v ok=%v", m, ok)
	}
	if kv.data["navnet.bridge.status"] != StatusOnline {
		t.Fatalf("status not retained")
	}

	m, ok = c.find("homeassistant.sensor.navnet_depth.config")
	if !ok {
		t.Fatalf("depth discovery missing")
	}
	var d map[string]any
	if err := json.Unmarshal([]byte(m.data), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d["state_topic"] != "navnet.sensor.depth.state" || d["device_class"] != "distance" || d["unit_of_measurement"] != "m" {
		t.Fatalf("discovery=%v", d)
	}
	if d["availability_topic"] != "navnet.bridge.status" || d["suggested_display_precision"] != float64(1) {
		t.Fatalf("discovery=%v", d)
	}
	dev, _ := d["device"].(map[string]any)
	if dev["manufacturer"] != "Furuno" || dev["name"] != "Navnet" {
		t.Fatalf("device=%v", dev)
	}

	m, _ = c.find("homeassistant.sensor.navnet_satellites_in_use.config")
	if strings.Contains(m.data, "suggested_display_precision") {
		t.Fatalf("integer sensors carry no precision: %s", m.data)
	}

	if _, ok := c.find("homeassistant.device_tracker.navnet_vessel.config"); !ok {
		t.Fatalf("tracker discovery missing")
	}
	if _, ok := c.find("homeassistant.sensor.navnet_ais_vessel_count.config"); !ok {
		t.Fatalf("vessel count discovery missing")
	}
}

func TestPublishSensor_SuppressesUnchanged(t *testing.T) {
	c := &fakeConn{}
	p := New(c, nil, Config{TopicPrefix: "boat"})
	ctx := context.Background()
	depth := mustField(t, "depth")

	for _, v := range []float64{36.03, 36.03, 36.1} {
		if err := p.PublishSensor(ctx, depth, v); err != nil {
			t.Fatalf("PublishSensor: %v", err)
		}
	}
	msgs := c.take()
	if len(msgs) != 2 || msgs[0].subject != "boat.sensor.depth.state" || msgs[0].data != "36.03" || msgs[1].data != "36.1" {
		t.Fatalf("msgs=%+v", msgs)
	}

	// A re-announce forgets what was sent.
	if err := p.Announce(ctx); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	c.take()
	p.PublishSensor(ctx, depth, 36.1)
	if msgs := c.take(); len(msgs) != 1 {
		t.Fatalf("msgs=%+v", msgs)
	}
}

func TestPublishSensor_RetriesAfterFailure(t *testing.T) {
	c := &fakeConn{fail: errors.New("broker down")}
	p := New(c, nil, Config{TopicPrefix: "boat"})
	ctx := context.Background()
	depth := mustField(t, "depth")

	if err := p.PublishSensor(ctx, depth, 12.5); err == nil {
		t.Fatalf("expected error")
	}
	c.mu.Lock()
	c.fail = nil
	c.mu.Unlock()

	if err := p.PublishSensor(ctx, depth, 12.5); err != nil {
		t.Fatalf("PublishSensor: %v", err)
	}
	msgs := c.take()
	if len(msgs) != 1 || msgs[0].subject != "boat.sensor.depth.state" || msgs[0].data != "12.5" {
		t.Fatalf("msgs=%+v", msgs)
	}
}

func TestFormatValue(t *testing.T) {
	if got := FormatValue(mustField(t, "satellites_in_use"), 11); got != "11" {
		t.Fatalf("got %q", got)
	}
	if got := FormatValue(mustField(t, "latitude"), -16.587457); got != "-16.587457" {
		t.Fatalf("got %q", got)
	}
	if got := FormatValue(mustField(t, "heading_true"), 18); got != "18" {
		t.Fatalf("got %q", got)
	}
}

func TestPublishTracker(t *testing.T) {
	c := &fakeConn{}
	p := New(c, nil, Config{})
	hdg := 18.2
	if err := p.PublishTracker(context.Background(), throttle.TrackerReport{Latitude: -16.5, Longitude: 145.9, Heading: &hdg, GPSAccuracy: 4}); err != nil {
		t.Fatalf("PublishTracker: %v", err)
	}
	msgs := c.take()
	if len(msgs) != 2 || msgs[0].subject != "navnet.device_tracker.state" || msgs[0].data != "not_home" {
		t.Fatalf("msgs=%+v", msgs)
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(msgs[1].data), &attrs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if attrs["latitude"] != -16.5 || attrs["heading"] != 18.2 || attrs["gps_accuracy"] != float64(4) || attrs["source_type"] != "gps" {
		t.Fatalf("attrs=%v", attrs)
	}
	if _, ok := attrs["speed"]; ok {
		t.Fatalf("unknown speed must be omitted")
	}
}

func TestPublishAIS_NotRetained(t *testing.T) {
	c := &fakeConn{}
	kv := newFakeKV()
	p := New(c, kv, Config{})
	raw := "!AIVDM,1,1,,B,15NG6V0P01G?cFhE`R2IU?wn28R>,0*05"
	if err := p.PublishAIS(context.Background(), raw); err != nil {
		t.Fatalf("PublishAIS: %v", err)
	}
	msgs := c.take()
	if len(msgs) != 2 || msgs[0].subject != "navnet.ais.last_message" || msgs[1].subject != "navnet.ais.stream" || msgs[1].data != raw {
		t.Fatalf("msgs=%+v", msgs)
	}
	if len(kv.data) != 0 {
		t.Fatalf("raw AIS must not be retained: %v", kv.data)
	}
}

func TestPublishVessel_DiscoveryLifecycle(t *testing.T) {
	c := &fakeConn{}
	kv := newFakeKV()
	p := New(c, kv, Config{})
	ctx := context.Background()

	lat, lon := 37.806948, -122.404333
	v := ais.Vessel{MMSI: 367380120, ShipType: "Unknown", Lat: &lat, Lon: &lon, MessageCount: 1}
	if err := p.PublishVessel(ctx, v, true); err != nil {
		t.Fatalf("PublishVessel: %v", err)
	}
	disc, ok := c.find("homeassistant.device_tracker.navnet_ais_367380120.config")
	if !ok || !strings.Contains(disc.data, `"name":"MMSI 367380120"`) || !strings.Contains(disc.data, `"state_topic":"navnet.ais.vessel.367380120.state"`) {
		t.Fatalf("discovery=%+v", disc)
	}
	attrs, ok := c.find("navnet.ais.vessel.367380120.attributes")
	if !ok {
		t.Fatalf("attributes missing")
	}
	var a map[string]any
	if err := json.Unmarshal([]byte(attrs.data), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a["mmsi"] != float64(367380120) || a["latitude"] != lat || a["source_type"] != "gps" {
		t.Fatalf("attrs=%v", a)
	}
	c.take()

	// Same name: no new discovery.
	if err := p.PublishVessel(ctx, v, false); err != nil {
		t.Fatalf("PublishVessel: %v", err)
	}
	if _, ok := c.find("homeassistant.device_tracker.navnet_ais_367380120.config"); ok {
		t.Fatalf("discovery resent without a change")
	}
	c.take()

	// A name arriving later refreshes discovery.
	v.Name = "PILOT"
	p.PublishVessel(ctx, v, false)
	if disc, ok := c.find("homeassistant.device_tracker.navnet_ais_367380120.config"); !ok || !strings.Contains(disc.data, `"name":"PILOT"`) {
		t.Fatalf("discovery=%+v ok=%v", disc, ok)
	}
	c.take()

	if err := p.RemoveVessel(ctx, v.MMSI); err != nil {
		t.Fatalf("RemoveVessel: %v", err)
	}
	disc, ok = c.find("homeassistant.device_tracker.navnet_ais_367380120.config")
	if !ok || disc.data != "" {
		t.Fatalf("expected empty retraction, got %+v", disc)
	}
	for key := range kv.data {
		if strings.Contains(key, "367380120") {
			t.Fatalf("retained key %q survived removal", key)
		}
	}
}

func TestPublishVesselCount(t *testing.T) {
	c := &fakeConn{}
	p := New(c, nil, Config{})
	p.PublishVesselCount(context.Background(), 7)
	if m, ok := c.find("navnet.ais.vessel_count.state"); !ok || m.data != "7" {
		t.Fatalf("msg=%+v", m)
	}
}

func TestPublishErrors(t *testing.T) {
	c := &fakeConn{fail: errors.New("boom")}
	p := New(c, nil, Config{})
	if err := p.PublishVesselCount(context.Background(), 1); err == nil || !strings.Contains(err.Error(), "navnet.ais.vessel_count.state") {
		t.Fatalf("err=%v", err)
	}

	unconnected := New(nil, nil, Config{})
	if err := unconnected.PublishAIS(context.Background(), "x"); !errors.Is(err, errNotConnected) {
		t.Fatalf("err=%v", err)
	}
}

func TestClose_PublishesOffline(t *testing.T) {
	c := &fakeConn{}
	p := New(c, nil, Config{})
	closed := false
	p.close = func() error { closed = true; return nil }
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m, ok := c.find("navnet.bridge.status"); !ok || m.data != StatusOffline {
		t.Fatalf("msg=%+v", m)
	}
	if !closed {
		t.Fatalf("connection not closed")
	}
}

func TestDial_RequiresURL(t *testing.T) {
	if _, err := Dial(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestConnected(t *testing.T) {
	if New(nil, nil, Config{}).Connected() {
		t.Fatalf("publisher without a connection reports connected")
	}
	if !New(&fakeConn{}, nil, Config{}).Connected() {
		t.Fatalf("publisher with a connection reports disconnected")
	}
}
