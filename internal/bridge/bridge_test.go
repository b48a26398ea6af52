package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nmea-bridge/internal/ais"
	"nmea-bridge/internal/throttle"
)

const (
	hdgWest     = "$GPHDG,11.4,,,6.8,W*1D"
	type1Sample = "!AIVDM,1,1,,B,15NG6V0P01G?cFhE`R2IU?wn28R>,0*05"
	type5Part1  = "!AIVDM,2,1,4,A,55O0W7`00001L@gCWGA2uItLth@DqtL5@F22220j1h742t0Ht0000000,0*08"
	type5Part2  = "!AIVDM,2,2,4,A,000000000000000,2*20"
)

type call struct {
	kind  string
	id    string
	value float64
	mmsi  uint32
	isNew bool
	count int
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []call
	fail  error
}

func (p *fakePublisher) record(c call) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
	return p.fail
}

func (p *fakePublisher) PublishSensor(_ context.Context, f throttle.Field, v float64) error {
	return p.record(call{kind: "sensor", id: f.ID, value: v})
}

func (p *fakePublisher) PublishTracker(_ context.Context, r throttle.TrackerReport) error {
	return p.record(call{kind: "tracker", value: r.Latitude})
}

func (p *fakePublisher) PublishAIS(_ context.Context, raw string) error {
	return p.record(call{kind: "ais", id: raw})
}

func (p *fakePublisher) PublishVessel(_ context.Context, v ais.Vessel, isNew bool) error {
	return p.record(call{kind: "vessel", mmsi: v.MMSI, isNew: isNew})
}

func (p *fakePublisher) RemoveVessel(_ context.Context, mmsi uint32) error {
	return p.record(call{kind: "remove", mmsi: mmsi})
}

func (p *fakePublisher) PublishVesselCount(_ context.Context, n int) error {
	return p.record(call{kind: "count", count: n})
}

func (p *fakePublisher) take() []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.calls
	p.calls = nil
	return out
}

func kinds(calls []call) string {
	s := ""
	for _, c := range calls {
		if s != "" {
			s += ","
		}
		s += c.kind
		if c.id != "" && c.kind == "sensor" {
			s += ":" + c.id
		}
	}
	return s
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBridge(t *testing.T, cfg Config) (*Bridge, *fakePublisher, *clock) {
	t.Helper()
	pub := &fakePublisher{}
	clk := &clock{now: time.Date(2026, 2, 10, 23, 20, 1, 0, time.UTC)}
	cfg.Now = clk.Now
	b, err := New(pub, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, pub, clk
}

func TestNew_RequiresPublisher(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHandleLine_PublishesSensors(t *testing.T) {
	b, pub, _ := newTestBridge(t, Config{})
	ctx := context.Background()

	if !b.HandleLine(ctx, "gps", "10.0.0.5", hdgWest) {
		t.Fatalf("expected publish")
	}
	calls := pub.take()
	if got := kinds(calls); got != "sensor:heading_magnetic,sensor:magnetic_variation" {
		t.Fatalf("calls=%s", got)
	}
	if calls[1].value != -6.8 {
		t.Fatalf("variation=%v", calls[1].value)
	}

	if b.HandleLine(ctx, "gps", "10.0.0.5", "$GPHDG,11.4,,,6.8,W*FF") {
		t.Fatalf("bad checksum must not publish")
	}
	if b.HandleLine(ctx, "gps", "10.0.0.5", "$GPXYZ,1,2,3*50") {
		t.Fatalf("unsupported sentence must not publish")
	}
	s := b.Stats()
	if s.Received != 3 || s.Parsed != 1 || s.Published != 1 || s.Errors != 0 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestHandleLine_Throttles(t *testing.T) {
	b, pub, clk := newTestBridge(t, Config{Throttle: throttle.Config{
		Intervals: map[throttle.Category]time.Duration{throttle.CategoryHeading: 2 * time.Second},
	}})
	ctx := context.Background()

	b.HandleLine(ctx, "gps", "", hdgWest)
	clk.Advance(time.Second)
	if b.HandleLine(ctx, "gps", "", hdgWest) {
		t.Fatalf("second sentence inside the interval must not publish")
	}
	clk.Advance(time.Second)
	b.HandleLine(ctx, "gps", "", hdgWest)
	if n := len(pub.take()); n != 4 {
		t.Fatalf("expected two emissions per field, got %d calls", n)
	}
}

func TestHandleLine_Tracker(t *testing.T) {
	b, pub, _ := newTestBridge(t, Config{Throttle: throttle.Config{Tracker: true}})
	b.HandleLine(context.Background(), "gps", "", "$GPGGA,232001.00,1635.2474,S,14555.1765,E,1,11,0.70,11.5,M,62.6,M,,*72")
	calls := pub.take()
	last := calls[len(calls)-1]
	if last.kind != "tracker" || last.value > -16.58 || last.value < -16.59 {
		t.Fatalf("calls=%s last=%+v", kinds(calls), last)
	}
}

func TestHandleLine_AIS(t *testing.T) {
	var events []Event
	b, pub, clk := newTestBridge(t, Config{
		Throttle: throttle.Config{Intervals: map[throttle.Category]time.Duration{throttle.CategoryAIS: 2 * time.Second}},
		OnEvent:  func(e Event) { events = append(events, e) },
	})
	ctx := context.Background()

	if !b.HandleLine(ctx, "ais", "", type1Sample) {
		t.Fatalf("expected publish")
	}
	calls := pub.take()
	if got := kinds(calls); got != "ais,vessel,count" {
		t.Fatalf("calls=%s", got)
	}
	if calls[1].mmsi != 367380120 || !calls[1].isNew || calls[2].count != 1 {
		t.Fatalf("calls=%+v", calls)
	}
	if len(events) != 3 || events[1].Vessel == nil || events[1].Vessel.Name != "MMSI 367380120" {
		t.Fatalf("events=%+v", events)
	}

	// Gated, but the registry still sees the message.
	clk.Advance(time.Second)
	if b.HandleLine(ctx, "ais", "", type1Sample) {
		t.Fatalf("AIS inside the stream interval must not publish")
	}
	vs := b.Vessels()
	if len(vs) != 1 || vs[0].MessageCount != 2 {
		t.Fatalf("vessels=%+v", vs)
	}

	// Count is only republished when it changes.
	clk.Advance(2 * time.Second)
	b.HandleLine(ctx, "ais", "", type1Sample)
	if got := kinds(pub.take()); got != "ais,vessel" {
		t.Fatalf("calls=%s", got)
	}
}

func TestHandleLine_AISStaticWithoutPosition(t *testing.T) {
	b, pub, clk := newTestBridge(t, Config{Throttle: throttle.Config{
		Intervals: map[throttle.Category]time.Duration{throttle.CategoryAIS: 0},
	}})
	ctx := context.Background()

	// A held first fragment publishes nothing.
	if b.HandleLine(ctx, "ais", "", type5Part1) {
		t.Fatalf("first fragment must not publish")
	}
	if calls := pub.take(); len(calls) != 0 {
		t.Fatalf("first fragment: calls=%s", kinds(calls))
	}
	clk.Advance(time.Second)
	b.HandleLine(ctx, "ais", "", type5Part2)
	calls := pub.take()
	if got := kinds(calls); got != "ais,ais,count" || calls[2].count != 1 {
		t.Fatalf("second fragment: calls=%+v", calls)
	}
	vs := b.Vessels()
	if len(vs) != 1 || vs[0].Name != "P/V_GOLDEN_GATE" {
		t.Fatalf("vessels=%+v", vs)
	}
}

func TestHandleLine_AISGroupForwardedWhole(t *testing.T) {
	// No ais interval configured, so the default window applies.
	b, pub, clk := newTestBridge(t, Config{})
	ctx := context.Background()

	b.HandleLine(ctx, "ais", "", type5Part1)
	clk.Advance(200 * time.Millisecond)
	b.HandleLine(ctx, "ais", "", type5Part2)

	var raw []string
	for _, c := range pub.take() {
		if c.kind == "ais" {
			raw = append(raw, c.id)
		}
	}
	if len(raw) != 2 || raw[0] != type5Part1 || raw[1] != type5Part2 {
		t.Fatalf("forwarded=%q", raw)
	}

	// The next group inside the window is gated as a whole.
	clk.Advance(time.Second)
	b.HandleLine(ctx, "ais", "", type5Part1)
	clk.Advance(200 * time.Millisecond)
	if b.HandleLine(ctx, "ais", "", type5Part2) {
		t.Fatalf("group inside the stream interval must not publish")
	}
	if calls := pub.take(); len(calls) != 0 {
		t.Fatalf("calls=%s", kinds(calls))
	}
}

func TestHandleLine_RetractsVesselsOverLimit(t *testing.T) {
	var events []Event
	b, pub, clk := newTestBridge(t, Config{
		Throttle: throttle.Config{Intervals: map[throttle.Category]time.Duration{throttle.CategoryAIS: 0}},
		AIS:      ais.DecoderConfig{MaxVessels: 1},
		OnEvent:  func(e Event) { events = append(events, e) },
	})
	ctx := context.Background()

	b.HandleLine(ctx, "ais", "", type1Sample)
	pub.take()
	clk.Advance(time.Second)
	b.HandleLine(ctx, "ais", "", type5Part1)
	b.HandleLine(ctx, "ais", "", type5Part2)

	calls := pub.take()
	if got := kinds(calls); got != "ais,ais,remove" || calls[2].mmsi != 367380120 {
		t.Fatalf("calls=%+v", calls)
	}
	if last := events[len(events)-1]; last.Kind != EventVesselRemoved || last.MMSI != 367380120 {
		t.Fatalf("last event=%+v", last)
	}
	if vs := b.Vessels(); len(vs) != 1 || vs[0].MMSI == 367380120 {
		t.Fatalf("vessels=%+v", vs)
	}
}

func TestSweep_RetractsVessels(t *testing.T) {
	b, pub, clk := newTestBridge(t, Config{AIS: ais.DecoderConfig{VesselTimeout: time.Minute}})
	ctx := context.Background()
	b.HandleLine(ctx, "ais", "", type1Sample)
	pub.take()

	if got := b.Sweep(ctx, clk.Now().Add(time.Minute)); len(got) != 0 {
		t.Fatalf("evicted=%v", got)
	}
	if calls := pub.take(); len(calls) != 0 {
		t.Fatalf("calls=%s", kinds(calls))
	}

	got := b.Sweep(ctx, clk.Now().Add(time.Minute+time.Second))
	if len(got) != 1 || got[0] != 367380120 {
		t.Fatalf("evicted=%v", got)
	}
	calls := pub.take()
	if kinds(calls) != "remove,count" || calls[0].mmsi != 367380120 || calls[1].count != 0 {
		t.Fatalf("calls=%+v", calls)
	}
	if b.Stats().Vessels != 0 {
		t.Fatalf("stats=%+v", b.Stats())
	}
}

func TestDefaultClockIsMonotonic(t *testing.T) {
	var events []Event
	b, err := New(&fakePublisher{}, Config{OnEvent: func(e Event) { events = append(events, e) }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Only times read straight from time.Now carry the "m=" reading.
	if s := b.now().String(); !strings.Contains(s, "m=") {
		t.Fatalf("clock has no monotonic reading: %s", s)
	}

	b.HandleLine(context.Background(), "gps", "", hdgWest)
	if len(events) == 0 {
		t.Fatalf("no events")
	}
	for _, e := range events {
		if e.Time.Location() != time.UTC {
			t.Fatalf("event time %v is not UTC", e.Time)
		}
	}
}

func TestHandleLine_PublishErrorsCounted(t *testing.T) {
	b, pub, _ := newTestBridge(t, Config{})
	pub.fail = errors.New("broker down")
	b.HandleLine(context.Background(), "gps", "", hdgWest)
	if s := b.Stats(); s.Errors != 2 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	b, _, _ := newTestBridge(t, Config{Registerer: reg})
	b.HandleLine(context.Background(), "gps", "", hdgWest)
	b.HandleLine(context.Background(), "gps", "", "garbage")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	if values["nmea_bridge_input_sentences_received_total"] != 2 ||
		values["nmea_bridge_input_sentences_rejected_total"] != 1 ||
		values["nmea_bridge_output_messages_published_total"] != 2 {
		t.Fatalf("values=%v", values)
	}

	if _, err := New(&fakePublisher{}, Config{Registerer: reg}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}

func TestHandleLine_Concurrent(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	ctx := context.Background()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				if k%2 == 0 {
					b.HandleLine(ctx, fmt.Sprintf("src%d", g), "", hdgWest)
				} else {
					b.HandleLine(ctx, fmt.Sprintf("src%d", g), "", type1Sample)
				}
			}
		}(g)
	}
	wg.Wait()
	s := b.Stats()
	if s.Received != 400 || s.Parsed != 400 || s.Vessels != 1 {
		t.Fatalf("stats=%+v", s)
	}
}
