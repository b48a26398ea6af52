// Package ingest receives raw NMEA text from the network and hands
// cleaned sentence lines to a Handler.
package ingest

import (
	"strings"
	"time"
)

// Handler receives one sentence line. It is called from the receiving
// goroutine and should not block.
type Handler func(source, sender, line string)

// SplitDatagram splits a payload that may carry several sentences. Only
// lines starting with '$' or '!' are kept, with bytes outside printable
// ASCII removed.
func SplitDatagram(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if clean := cleanLine(line); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || (line[0] != '$' && line[0] != '!') {
		return ""
	}
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); i++ {
		if c := line[i]; c >= 32 && c < 127 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SourceSnapshot is the status of one input for the web status page.
type SourceSnapshot struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Addr        string `json:"addr"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Packets     uint64 `json:"packets,omitempty"`
	Lines       uint64 `json:"lines"`
}

func formatSeen(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
