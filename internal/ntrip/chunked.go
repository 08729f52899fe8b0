package ntrip

import (
	"bytes"
	"strconv"
)

const (
	maxChunkSize = 1 << 20
	// A buffer this long with no size line that already looks like RTCM is
	// passed through; some casters announce chunked and then send raw.
	rawSniffBytes = 10
)

// Dechunker undoes HTTP chunked transfer encoding on a byte stream. Output
// does not depend on how the input is split across Feed calls.
type Dechunker struct {
	buf   []byte
	ended bool
	// rawFlushes counts protocol anomalies recovered by passing bytes through.
	rawFlushes int
}

// Feed consumes p and returns the payload bytes that became complete.
func (d *Dechunker) Feed(p []byte) []byte {
	if d.ended {
		return nil
	}
	d.buf = append(d.buf, p...)

	var out []byte
	off := 0
	for off < len(d.buf) {
		rest := d.buf[off:]
		eol := bytes.Index(rest, []byte("\r\n"))
		if eol < 0 {
			if len(rest) > rawSniffBytes && rest[0] == rtcmPreamble {
				out = append(out, rest...)
				off = len(d.buf)
				d.rawFlushes++
			}
			break
		}
		line := bytes.TrimSpace(rest[:eol])
		if len(line) == 0 {
			off += eol + 2
			continue
		}
		if i := bytes.IndexByte(line, ';'); i >= 0 {
			line = bytes.TrimSpace(line[:i])
		}
		size, err := strconv.ParseUint(string(line), 16, 32)
		if err != nil || size > maxChunkSize {
			out = append(out, rest...)
			off = len(d.buf)
			d.rawFlushes++
			break
		}
		if size == 0 {
			d.ended = true
			off = len(d.buf)
			break
		}

		start := eol + 2
		end := start + int(size)
		// Wait for the payload and its trailing CRLF.
		if len(rest) < end+2 {
			break
		}
		out = append(out, rest[start:end]...)
		if rest[end] == '\r' && rest[end+1] == '\n' {
			end += 2
		}
		off += end
	}

	n := copy(d.buf, d.buf[off:])
	d.buf = d.buf[:n]
	return out
}

// Ended reports whether the terminating zero-size chunk was seen.
func (d *Dechunker) Ended() bool { return d.ended }

// Buffered returns the number of bytes waiting for a complete chunk.
func (d *Dechunker) Buffered() int { return len(d.buf) }

// RawFlushes is how many times malformed framing was passed through as raw
// bytes. Chunk parsing resumes with the next Feed.
func (d *Dechunker) RawFlushes() int { return d.rawFlushes }
