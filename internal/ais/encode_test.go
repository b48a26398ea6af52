package ais

import (
	"fmt"
	"math"
	"strings"

	"nmea-bridge/internal/nmea"
)

// bitWriter builds payloads for tests; it is the inverse of bitReader.
type bitWriter struct {
	bits []byte
}

func (w *bitWriter) put(v uint64, width int) *bitWriter {
	for i := width - 1; i >= 0; i-- {
		w.bits = append(w.bits, byte(v>>i)&1)
	}
	return w
}

func (w *bitWriter) putInt(v int64, width int) *bitWriter {
	return w.put(uint64(v)&(1<<width-1), width)
}

func (w *bitWriter) putCoord(deg float64, width int) *bitWriter {
	return w.putInt(int64(math.Round(deg*600000)), width)
}

func (w *bitWriter) putText(s string, width int) *bitWriter {
	for i := 0; i < width/6; i++ {
		c := byte('@')
		if i < len(s) {
			c = s[i]
		}
		if c >= 64 {
			c -= 64
		}
		w.put(uint64(c), 6)
	}
	return w
}

func (w *bitWriter) pad(to int) *bitWriter {
	for len(w.bits) < to {
		w.bits = append(w.bits, 0)
	}
	return w
}

func (w *bitWriter) armor() (string, int) {
	fill := (6 - len(w.bits)%6) % 6
	bits := append(append([]byte(nil), w.bits...), make([]byte, fill)...)
	var sb strings.Builder
	for i := 0; i < len(bits); i += 6 {
		var v byte
		for j := 0; j < 6; j++ {
			v = v<<1 | bits[i+j]
		}
		if v < 40 {
			sb.WriteByte(v + '0')
		} else {
			sb.WriteByte(v - 40 + '`')
		}
	}
	return sb.String(), fill
}

func aivdm(count, index int, seq, payload string, fill int) string {
	body := fmt.Sprintf("AIVDM,%d,%d,%s,A,%s,%d", count, index, seq, payload, fill)
	return fmt.Sprintf("!%s*%02X", body, nmea.Checksum(body))
}

func header(typ int, mmsi uint32) *bitWriter {
	w := &bitWriter{}
	return w.put(uint64(typ), 6).put(0, 2).put(uint64(mmsi), 30)
}

type classB struct {
	mmsi     uint32
	lat, lon float64
	sog, cog float64
	heading  int
}

func (p classB) position(typ int) *bitWriter {
	w := header(typ, p.mmsi).put(0, 8)
	w.put(uint64(math.Round(p.sog*10)), 10).put(0, 1)
	w.putCoord(p.lon, 28).putCoord(p.lat, 27)
	w.put(uint64(math.Round(p.cog*10)), 12).put(uint64(p.heading), 9)
	return w
}

func type18Line(p classB) string {
	payload, fill := p.position(18).pad(168).armor()
	return aivdm(1, 1, "", payload, fill)
}

type shipStatic struct {
	name, callsign           string
	shipType                 int
	bow, stern, port, starbd int
}

func type19Line(p classB, s shipStatic) string {
	w := p.position(19).put(0, 6).put(0, 4)
	w.putText(s.name, 120).put(uint64(s.shipType), 8)
	w.put(uint64(s.bow), 9).put(uint64(s.stern), 9).put(uint64(s.port), 6).put(uint64(s.starbd), 6)
	payload, fill := w.pad(312).armor()
	return aivdm(1, 1, "", payload, fill)
}

func type24ALine(mmsi uint32, name string) string {
	payload, fill := header(24, mmsi).put(0, 2).putText(name, 120).pad(168).armor()
	return aivdm(1, 1, "", payload, fill)
}

func type24BLine(mmsi uint32, s shipStatic) string {
	w := header(24, mmsi).put(1, 2).put(uint64(s.shipType), 8).put(0, 42)
	w.putText(s.callsign, 42)
	w.put(uint64(s.bow), 9).put(uint64(s.stern), 9).put(uint64(s.port), 6).put(uint64(s.starbd), 6)
	payload, fill := w.pad(168).armor()
	return aivdm(1, 1, "", payload, fill)
}

func type1Line(mmsi uint32, status int, sog, lat, lon, cog float64, heading int) string {
	w := header(1, mmsi).put(uint64(status), 4).put(0, 8)
	w.put(uint64(math.Round(sog*10)), 10).put(0, 1)
	w.putCoord(lon, 28).putCoord(lat, 27)
	w.put(uint64(math.Round(cog*10)), 12).put(uint64(heading), 9)
	payload, fill := w.pad(168).armor()
	return aivdm(1, 1, "", payload, fill)
}
