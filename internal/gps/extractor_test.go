package gps

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"
)

func collect(e *Extractor, chunks ...[]byte) []string {
	var out []string
	for _, c := range chunks {
		e.Feed(c, func(s string) { out = append(out, s) })
	}
	return out
}

func checkSentence(t *testing.T, s string) {
	t.Helper()
	if !strings.HasPrefix(s, "$") {
		t.Fatalf("sentence %q does not start with $", s)
	}
	star := strings.LastIndexByte(s, '*')
	if star < 0 || len(s)-star != 3 {
		t.Fatalf("sentence %q has no two-digit checksum", s)
	}
	body := s[1:star]
	var ck byte
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c < 0x20 || c > 0x7E {
			t.Fatalf("sentence %q has non-printable byte 0x%02X", s, c)
		}
		ck ^= c
	}
	want, err := strconv.ParseUint(s[star+1:], 16, 8)
	if err != nil || byte(want) != ck {
		t.Fatalf("sentence %q checksum mismatch", s)
	}
}

func TestExtractor_SentenceAmongBinary(t *testing.T) {
	gga := nmeaLine("GNGGA,123519,5013.2000,N,01901.5000,E,4,12,0.7,120.0,M,35.0,M,1.0,0042")
	stream := append([]byte{0xD3, 0x00, 0x13, 0x3E, 0xD0, 0x00, 0x03}, []byte(gga+"\r\n")...)
	stream = append(stream, 0xD3, 0x00, 0x08, 0x4C, 0xE0)

	var e Extractor
	got := collect(&e, stream)
	if len(got) != 1 || got[0] != gga {
		t.Fatalf("got %q want [%q]", got, gga)
	}
}

func TestExtractor_BinaryMarkerDoesNotSwallowNextSentence(t *testing.T) {
	rmc := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230324,003.1,W")
	// A stray '$' inside binary noise; its span reaches the real sentence's '*'.
	stream := append([]byte{'$', 0x01, 0xFE, 0x7F}, []byte(rmc+"\r\n")...)

	var e Extractor
	got := collect(&e, stream)
	if len(got) != 1 || got[0] != rmc {
		t.Fatalf("got %q want [%q]", got, rmc)
	}
	if _, rej := e.Counts(); rej != 1 {
		t.Fatalf("rejected=%d want 1", rej)
	}
}

func TestExtractor_BadChecksumSkipped(t *testing.T) {
	good := nmeaLine("GPGSV,3,1,11,01,40,083,46")
	bad := good[:len(good)-2] + "00"
	var e Extractor
	got := collect(&e, []byte(bad+"\r\n"+good+"\r\n"))
	if len(got) != 1 || got[0] != good {
		t.Fatalf("got %q", got)
	}
}

func TestExtractor_LowercaseChecksumNormalized(t *testing.T) {
	line := nmeaLine("GPGSV,3,1,11,01,40,083,46")
	lower := line[:len(line)-2] + strings.ToLower(line[len(line)-2:])
	var e Extractor
	got := collect(&e, []byte(lower))
	if len(got) != 1 || got[0] != line {
		t.Fatalf("got %q want %q", got, line)
	}
}

func TestExtractor_SplitAtEveryOffset(t *testing.T) {
	a := nmeaLine("GNGGA,123519,5013.2000,N,01901.5000,E,4,12,0.7,120.0,M,35.0,M,,")
	b := nmeaLine("GNRMC,123519,A,5013.2000,N,01901.5000,E,0.0,0.0,230324,,,D")
	stream := []byte("\x00\xD3junk" + a + "\r\n\xFF" + b + "\r\n")

	for i := 0; i <= len(stream); i++ {
		var e Extractor
		got := collect(&e, stream[:i], stream[i:])
		if len(got) != 2 || got[0] != a || got[1] != b {
			t.Fatalf("split=%d got %q", i, got)
		}
	}
}

func TestExtractor_BoundedWithoutTerminator(t *testing.T) {
	var e Extractor
	collect(&e, []byte("$"+strings.Repeat("A", 999)))
	if e.Pending() > extractorMaxPending {
		t.Fatalf("pending=%d exceeds bound", e.Pending())
	}
	if e.Pending() != extractorKeepTail {
		t.Fatalf("pending=%d want %d", e.Pending(), extractorKeepTail)
	}

	// Recovery: a valid sentence after the garbage is still found.
	line := nmeaLine("GPGSV,3,1,11,01,40,083,46")
	got := collect(&e, []byte("\r\n"+line+"\r\n"))
	if len(got) != 1 || got[0] != line {
		t.Fatalf("got %q", got)
	}
}

func TestExtractor_RandomNoiseOnlyEmitsValidSentences(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	sentences := []string{
		nmeaLine("GNGGA,123519,5013.2000,N,01901.5000,E,4,12,0.7,120.0,M,35.0,M,,"),
		nmeaLine("GNGSA,A,3,01,02,03,04,05,06,,,,,,,1.8,0.9,1.5,1"),
		nmeaLine("GPGSV,3,1,11,01,40,083,46"),
	}
	var stream []byte
	for i := 0; i < 200; i++ {
		noise := make([]byte, r.Intn(40))
		r.Read(noise)
		// Sprinkle markers into the noise.
		for j := range noise {
			switch r.Intn(20) {
			case 0:
				noise[j] = '$'
			case 1:
				noise[j] = '*'
			}
		}
		stream = append(stream, noise...)
		stream = append(stream, sentences[r.Intn(len(sentences))]...)
	}

	var e Extractor
	pos := 0
	valid := 0
	for pos < len(stream) {
		n := 1 + r.Intn(64)
		if pos+n > len(stream) {
			n = len(stream) - pos
		}
		e.Feed(stream[pos:pos+n], func(s string) {
			checkSentence(t, s)
			valid++
		})
		pos += n
	}
	if valid == 0 {
		t.Fatalf("expected some sentences to survive the noise")
	}
}
