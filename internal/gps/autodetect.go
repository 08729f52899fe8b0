package gps

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// FallbackDevice is used when no candidate answers with NMEA.
// Raspberry Pi 4B with the HAT jumper on B exposes the receiver here.
const FallbackDevice = "/dev/ttyS0"

const probeWindow = 3 * time.Second

func defaultCandidates() []string {
	// RPi 4B -> ttyS0, RPi 5 -> ttyAMA0, USB jumper -> ttyUSB0.
	c := []string{"/dev/ttyS0", "/dev/ttyAMA0", "/dev/ttyUSB0", "/dev/serial0"}
	usb, _ := filepath.Glob("/dev/ttyUSB*")
	sort.Strings(usb)
	acm, _ := filepath.Glob("/dev/ttyACM*")
	sort.Strings(acm)
	c = append(c, usb...)
	return append(c, acm...)
}

// uniqueExisting drops candidates that do not exist and aliases that resolve
// to an already listed device (serial0 is usually a link to ttyS0/ttyAMA0).
func uniqueExisting(cands []string, resolve func(string) (string, error)) []string {
	seen := make(map[string]bool, len(cands))
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		resolved, err := resolve(c)
		if err != nil {
			continue
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		out = append(out, c)
	}
	return out
}

// DetectDevice probes the usual receiver device paths at baud and returns the
// first one producing NMEA. It never fails; FallbackDevice is the last resort.
func DetectDevice(ctx context.Context, baud int) string {
	if p, ok := FindDevice(ctx, baud); ok {
		return p
	}
	log.Warnf("gps auto-detect found nothing, using %s", FallbackDevice)
	return FallbackDevice
}

// FindDevice is DetectDevice without the fallback.
func FindDevice(ctx context.Context, baud int) (string, bool) {
	cands := uniqueExisting(defaultCandidates(), filepath.EvalSymlinks)
	return detectDevice(ctx, cands, func(ctx context.Context, path string) bool {
		return probeDevice(ctx, path, baud, probeWindow)
	})
}

// OpenPort opens a receiver port the same way the service does.
func OpenPort(path string, baud int) (io.ReadWriteCloser, error) {
	return openSerial(path, baud)
}

func detectDevice(ctx context.Context, cands []string, probe func(context.Context, string) bool) (string, bool) {
	for _, p := range cands {
		if ctx.Err() != nil {
			break
		}
		if probe(ctx, p) {
			log.Infof("gps detected device=%s", p)
			return p, true
		}
		log.Debugf("gps probe failed device=%s", p)
	}
	return "", false
}

func probeDevice(ctx context.Context, path string, baud int, window time.Duration) bool {
	port, err := openSerial(path, baud)
	if err != nil {
		log.Debugf("gps probe open failed device=%s: %v", path, err)
		return false
	}
	defer port.Close()
	return probeReader(ctx, port, window)
}

// probeReader reports whether r yields a valid G* or P* sentence within window.
func probeReader(ctx context.Context, r io.Reader, window time.Duration) bool {
	deadline := time.Now().Add(window)
	var ext Extractor
	found := false
	buf := make([]byte, 512)
	for !found && time.Now().Before(deadline) && ctx.Err() == nil {
		n, err := r.Read(buf)
		if n > 0 {
			ext.Feed(buf[:n], func(s string) {
				if len(s) > 1 && (s[1] == 'G' || s[1] == 'P') {
					found = true
				}
			})
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return found
		}
		if err != nil && n == 0 {
			// Idle serial read; avoid spinning on readers that return EOF at once.
			time.Sleep(50 * time.Millisecond)
		}
	}
	return found
}
