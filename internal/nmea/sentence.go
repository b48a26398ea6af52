package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotSentence = errors.New("nmea: missing '$' or '!'")
	ErrChecksum    = errors.New("nmea: checksum mismatch")
	ErrShort       = errors.New("nmea: too few fields")
	ErrUnsupported = errors.New("nmea: unsupported sentence")
)

// Checksum XORs every byte of body, which is the text between the leading
// '$' or '!' and the '*'.
func Checksum(body string) byte {
	ck := byte(0)
	for i := 0; i < len(body); i++ {
		ck ^= body[i]
	}
	return ck
}

// ValidChecksum reports whether line ends in a "*XX" checksum matching its body.
func ValidChecksum(line string) bool {
	_, ok := body(line)
	return ok
}

// body returns the checksummed text of line, or false when the checksum is
// missing or wrong.
func body(line string) (string, bool) {
	start := strings.IndexAny(line, "$!")
	if start == -1 {
		return "", false
	}
	star := strings.IndexByte(line, '*')
	if star < start {
		return "", false
	}
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) != 2 {
		return "", false
	}
	want, err := strconv.ParseUint(ck, 16, 8)
	if err != nil {
		return "", false
	}
	b := line[start+1 : star]
	if Checksum(b) != byte(want) {
		return "", false
	}
	return b, true
}

// sentenceType normalizes a talker-prefixed field ("GPGGA", "IIDPT") to the
// 3-letter sentence code.
func sentenceType(f string) string {
	if len(f) >= 4 {
		f = f[len(f)-3:]
	}
	return strings.ToUpper(f)
}

// Decode parses one line and explains rejections. Bad input never panics.
func Decode(line string) (*Record, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrNotSentence
	}

	switch line[0] {
	case '!':
		if !ValidChecksum(line) {
			return nil, ErrChecksum
		}
		return &Record{Type: TypeAIS, AIS: []string{line}}, nil
	case '$':
	default:
		return nil, ErrNotSentence
	}

	b, ok := body(line)
	if !ok {
		return nil, ErrChecksum
	}
	fields := strings.Split(b, ",")
	typ := sentenceType(fields[0])
	p, ok := parsers[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, typ)
	}
	if len(fields) < p.minFields {
		return nil, fmt.Errorf("%w: %s has %d, need %d", ErrShort, typ, len(fields), p.minFields)
	}
	rec := p.parse(fields)
	rec.Type = typ
	return rec, nil
}

// Parse is Decode without the reason: it returns nil, false for anything
// that is not a valid, supported sentence.
func Parse(line string) (*Record, bool) {
	rec, err := Decode(line)
	if err != nil {
		return nil, false
	}
	return rec, true
}
