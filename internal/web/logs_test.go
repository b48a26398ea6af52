package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestLogBuffer_JoinsPartialWrites(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("level=INFO msg=one\nlevel=INFO m"))
	_, _ = b.Write([]byte("sg=two\r\n\n"))

	lines, _ := b.Snapshot(0, "")
	want := []string{"level=INFO msg=one", "level=INFO msg=two"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines=%q want %q", lines, want)
	}
}

func TestLogBuffer_DropsOldest(t *testing.T) {
	b := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		_, _ = fmt.Fprintf(b, "line %d\n", i)
	}
	lines, dropped := b.Snapshot(10, "")
	if dropped != 2 {
		t.Fatalf("dropped=%d want 2", dropped)
	}
	if !reflect.DeepEqual(lines, []string{"line 2", "line 3", "line 4"}) {
		t.Fatalf("lines=%q", lines)
	}
}

func TestLogBuffer_TailAndFilter(t *testing.T) {
	b := NewLogBuffer(0)
	_, _ = b.Write([]byte("a udp\nb tcp\nc udp\nd udp\n"))

	lines, _ := b.Snapshot(2, "udp")
	if !reflect.DeepEqual(lines, []string{"c udp", "d udp"}) {
		t.Fatalf("lines=%q", lines)
	}
	lines, _ = b.Snapshot(5, "nats")
	if len(lines) != 0 || lines == nil {
		t.Fatalf("lines=%#v want empty non-nil", lines)
	}
}

func TestLogBuffer_Handler(t *testing.T) {
	b := NewLogBuffer(0)
	_, _ = b.Write([]byte("hello\nworld\n"))
	ts := httptest.NewServer(b.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "?tail=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out LogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out.Lines, []string{"world"}) {
		t.Fatalf("lines=%q", out.Lines)
	}

	bad, err := http.Get(ts.URL + "?tail=0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("tail=0 status=%d", bad.StatusCode)
	}
}
