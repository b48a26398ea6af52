package ais

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nmea-bridge/internal/nmea"
)

var (
	ErrEnvelope        = errors.New("ais: malformed envelope")
	ErrPayload         = errors.New("ais: malformed payload")
	ErrUnsupportedType = errors.New("ais: unsupported message type")
)

// Envelope is one !AIVDM/!AIVDO sentence with its checksum already verified.
type Envelope struct {
	Count    int
	Index    int
	SeqID    string
	Channel  string
	Payload  string
	FillBits int
}

// ParseEnvelope splits !AIVDM,<count>,<index>,<seq>,<channel>,<payload>,<fill>*XX.
func ParseEnvelope(line string) (Envelope, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "!") || !nmea.ValidChecksum(line) {
		return Envelope{}, fmt.Errorf("%w: checksum", ErrEnvelope)
	}
	body := line[1:strings.IndexByte(line, '*')]
	f := strings.Split(body, ",")
	if len(f) < 7 {
		return Envelope{}, fmt.Errorf("%w: %d fields", ErrEnvelope, len(f))
	}
	if !strings.HasSuffix(f[0], "VDM") && !strings.HasSuffix(f[0], "VDO") {
		return Envelope{}, fmt.Errorf("%w: talker %q", ErrEnvelope, f[0])
	}
	count, err := strconv.Atoi(f[1])
	if err != nil || count < 1 {
		return Envelope{}, fmt.Errorf("%w: fragment count %q", ErrEnvelope, f[1])
	}
	index, err := strconv.Atoi(f[2])
	if err != nil || index < 1 || index > count {
		return Envelope{}, fmt.Errorf("%w: fragment index %q", ErrEnvelope, f[2])
	}
	fill := 0
	if f[6] != "" {
		fill, err = strconv.Atoi(f[6])
		if err != nil || fill < 0 || fill > 5 {
			return Envelope{}, fmt.Errorf("%w: fill bits %q", ErrEnvelope, f[6])
		}
	}
	return Envelope{
		Count:    count,
		Index:    index,
		SeqID:    f[3],
		Channel:  f[4],
		Payload:  f[5],
		FillBits: fill,
	}, nil
}

// DecodeSentences decodes a complete message from its fragments, given in
// order. The last fragment's fill bits apply.
func DecodeSentences(lines ...string) (Message, error) {
	if len(lines) == 0 {
		return Message{}, fmt.Errorf("%w: no sentences", ErrEnvelope)
	}
	var payload strings.Builder
	fill := 0
	for _, l := range lines {
		env, err := ParseEnvelope(l)
		if err != nil {
			return Message{}, err
		}
		payload.WriteString(env.Payload)
		fill = env.FillBits
	}
	return DecodePayload(payload.String(), fill)
}

// bitReader reads big-endian bit fields out of an armored payload. Reads past
// the end yield zero bits, so trailing text fields of short transmissions
// come back padded rather than failing.
type bitReader struct {
	sextets []byte
	n       int
}

func unarmor(payload string, fill int) (bitReader, error) {
	if payload == "" {
		return bitReader{}, fmt.Errorf("%w: empty", ErrPayload)
	}
	if fill < 0 || fill > 5 {
		return bitReader{}, fmt.Errorf("%w: fill bits %d", ErrPayload, fill)
	}
	out := make([]byte, len(payload))
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		switch {
		case c >= '0' && c <= 'W':
			out[i] = c - '0'
		case c >= '`' && c <= 'w':
			out[i] = c - '`' + 40
		default:
			return bitReader{}, fmt.Errorf("%w: character %q", ErrPayload, c)
		}
	}
	return bitReader{sextets: out, n: len(out)*6 - fill}, nil
}

func (b bitReader) bit(i int) uint64 {
	if i >= b.n {
		return 0
	}
	return uint64(b.sextets[i/6]>>(5-i%6)) & 1
}

func (b bitReader) uint(start, width int) uint64 {
	var v uint64
	for i := start; i < start+width; i++ {
		v = v<<1 | b.bit(i)
	}
	return v
}

func (b bitReader) int(start, width int) int64 {
	v := b.uint(start, width)
	if v&(1<<(width-1)) != 0 {
		return int64(v) - int64(1)<<width
	}
	return int64(v)
}

// text decodes six-bit ASCII, dropping '@' padding and surrounding blanks.
func (b bitReader) text(start, width int) string {
	var sb strings.Builder
	for i := start; i+6 <= start+width; i += 6 {
		c := byte(b.uint(i, 6))
		if c < 32 {
			c += 64
		}
		sb.WriteByte(c)
	}
	return cleanText(sb.String())
}

func cleanText(s string) string {
	if i := strings.IndexByte(s, '@'); i != -1 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
