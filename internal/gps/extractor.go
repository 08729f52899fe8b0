package gps

import (
	"bytes"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

const (
	// Pending bytes allowed after a '$' with no '*' before the buffer is
	// cut back to its tail.
	extractorMaxPending = 256
	extractorKeepTail   = 128
)

// Extractor pulls checksummed NMEA sentences out of a serial byte stream that
// also carries binary traffic (RTCM echo, vendor frames). It is not safe for
// concurrent use; the serial read loop owns it.
type Extractor struct {
	buf []byte

	accepted uint64
	rejected uint64
}

// Feed appends p and calls emit for every valid sentence found, in order.
// Emitted sentences look like "$GNGGA,...*5A" with an upper-case checksum.
func (e *Extractor) Feed(p []byte, emit func(sentence string)) {
	e.buf = append(e.buf, p...)

	off := 0
	for {
		rest := e.buf[off:]
		start := bytes.IndexByte(rest, '$')
		if start < 0 {
			off = len(e.buf)
			break
		}
		off += start
		rest = e.buf[off:]

		star := bytes.IndexByte(rest[1:], '*')
		if star < 0 {
			if len(rest) > extractorMaxPending {
				off = len(e.buf) - extractorKeepTail
			}
			break
		}
		star++ // index within rest
		end := star + 3
		if end > len(rest) {
			break
		}

		body := rest[1:star]
		ck := string(rest[star+1 : end])
		if !printable(body) || !strings.EqualFold(nmea.Checksum(string(body)), ck) {
			// Drop only the marker; a real sentence may start inside the span.
			e.rejected++
			off++
			continue
		}

		e.accepted++
		emit("$" + string(body) + "*" + strings.ToUpper(ck))
		off += end
	}

	// Compact so the backing array does not grow with the stream.
	n := copy(e.buf, e.buf[off:])
	e.buf = e.buf[:n]
}

// Pending returns the number of buffered bytes not yet consumed.
func (e *Extractor) Pending() int { return len(e.buf) }

// Counts returns accepted and rejected candidate sentences.
func (e *Extractor) Counts() (accepted, rejected uint64) {
	return e.accepted, e.rejected
}

// Reset drops any buffered bytes.
func (e *Extractor) Reset() { e.buf = e.buf[:0] }

func printable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
