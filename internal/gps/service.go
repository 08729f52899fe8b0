package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

// ErrNotOpen is returned by Write when the serial port is closed.
var ErrNotOpen = errors.New("gps: serial port not open")

// Config controls the receiver service.
//
// Device may be empty to auto-detect. StartupCommands nil means
// DefaultStartupCommands; an empty non-nil slice sends nothing.
type Config struct {
	Device string
	Baud   int

	StartupCommands []string
	StartupDelay    time.Duration
	// CommandRate is the maximum number of commands per second.
	CommandRate int

	ReopenDelay time.Duration
	StopTimeout time.Duration

	RecentLines int
	Metrics     *Metrics

	open func(path string, baud int) (io.ReadWriteCloser, error)
}

// Status describes the serial link, not the fix.
type Status struct {
	Device       string   `json:"device,omitempty"`
	Baud         int      `json:"baud"`
	Open         bool     `json:"open"`
	LastError    string   `json:"last_error,omitempty"`
	BytesRead    uint64   `json:"bytes_read"`
	BytesWritten uint64   `json:"bytes_written"`
	Sentences    uint64   `json:"sentences"`
	Rejected     uint64   `json:"rejected"`
	Recent       []string `json:"recent,omitempty"`
}

type Service struct {
	cfg Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // PositionFix

	mu      sync.Mutex
	port    io.ReadWriteCloser
	device  string
	lastErr string

	writeMu sync.Mutex

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	sentences    atomic.Uint64
	rejected     atomic.Uint64

	recent *recentLines
}

func New(cfg Config) *Service {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	if cfg.StartupCommands == nil {
		cfg.StartupCommands = DefaultStartupCommands
	}
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = 500 * time.Millisecond
	}
	if cfg.CommandRate <= 0 {
		cfg.CommandRate = 3
	}
	if cfg.ReopenDelay <= 0 {
		cfg.ReopenDelay = 3 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 3 * time.Second
	}
	if cfg.RecentLines <= 0 {
		cfg.RecentLines = 20
	}
	if cfg.open == nil {
		cfg.open = openSerial
	}
	s := &Service{cfg: cfg, device: strings.TrimSpace(cfg.Device), recent: newRecentLines(cfg.RecentLines)}
	s.last.Store(PositionFix{})
	return s
}

// Start opens the receiver and launches the read loop. Calling Start on a
// running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	running := s.cancel != nil
	device := s.device
	s.mu.Unlock()
	if running {
		return nil
	}
	if device == "" {
		device = DetectDevice(ctx, s.cfg.Baud)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	s.device = device

	port, err := s.cfg.open(device, s.cfg.Baud)
	if err != nil {
		s.lastErr = fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, s.cfg.Baud, err)
		return fmt.Errorf("gps open %s: %w", device, err)
	}
	s.port = port
	s.lastErr = ""

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.readLoop(childCtx, port)
	}()
	go func() {
		defer s.wg.Done()
		s.sendStartupCommands(childCtx)
	}()

	log.Infof("gps enabled device=%s baud=%d", device, s.cfg.Baud)
	return nil
}

// Close stops the read loop and closes the port. After Close returns the
// loop no longer touches the port, unless it failed to stop within
// StopTimeout, which is logged.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	port := s.port
	s.cancel = nil
	s.port = nil
	if cancel != nil {
		cancel()
	}
	// Closed under the same lock Status reads, so Open=false and a closed
	// handle are never observed apart.
	if port != nil {
		_ = port.Close()
	}
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	if !waitTimeout(&s.wg, s.cfg.StopTimeout) {
		log.Warnf("gps read loop did not stop within %s", s.cfg.StopTimeout)
	}
	log.Infof("gps stopped")
}

// Snapshot returns a copy of the current fix.
func (s *Service) Snapshot() PositionFix {
	if s == nil {
		return PositionFix{}
	}
	v := s.last.Load()
	if v == nil {
		return PositionFix{}
	}
	return v.(PositionFix)
}

// LastGGA returns the last valid GGA sentence, or "" before the first one.
func (s *Service) LastGGA() string {
	return s.Snapshot().GGA
}

// Write sends p to the receiver. It is used for RTCM corrections and
// commands and is safe for concurrent use.
func (s *Service) Write(p []byte) error {
	if s == nil {
		return ErrNotOpen
	}
	if len(p) == 0 {
		return nil
	}
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return ErrNotOpen
	}

	s.writeMu.Lock()
	n, err := port.Write(p)
	s.writeMu.Unlock()

	if n > 0 {
		s.bytesWritten.Add(uint64(n))
		s.cfg.Metrics.written(n)
	}
	if err != nil {
		return fmt.Errorf("gps write: %w", err)
	}
	if n < len(p) {
		return fmt.Errorf("gps write: short write %d/%d", n, len(p))
	}
	return nil
}

// SendCommand frames cmd with a checksum and writes it.
func (s *Service) SendCommand(cmd string) error {
	return s.Write(FormatCommand(cmd))
}

func (s *Service) Status() Status {
	if s == nil {
		return Status{}
	}
	s.mu.Lock()
	st := Status{
		Device:    s.device,
		Baud:      s.cfg.Baud,
		Open:      s.port != nil,
		LastError: s.lastErr,
	}
	s.mu.Unlock()
	st.BytesRead = s.bytesRead.Load()
	st.BytesWritten = s.bytesWritten.Load()
	st.Sentences = s.sentences.Load()
	st.Rejected = s.rejected.Load()
	st.Recent = s.recent.snapshot()
	return st
}

func (s *Service) readLoop(ctx context.Context, port io.ReadWriteCloser) {
	defer func() {
		s.mu.Lock()
		if s.port == port {
			s.port = nil
		}
		s.mu.Unlock()
		_ = port.Close()
	}()

	var st nmeaState
	var ext Extractor
	var lastRejected uint64
	buf := make([]byte, 512)

	for {
		if ctx.Err() != nil {
			return
		}
		n, err := port.Read(buf)
		if n > 0 {
			s.bytesRead.Add(uint64(n))
			s.cfg.Metrics.read(n)
			ext.Feed(buf[:n], func(line string) {
				s.handleSentence(&st, line)
			})
			_, rej := ext.Counts()
			s.cfg.Metrics.rejectedFrames(rej - lastRejected)
			lastRejected = rej
			s.rejected.Store(rej)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			// Idle read timeout on the tty.
			if n == 0 && !sleepCtx(ctx, 10*time.Millisecond) {
				return
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}

		log.Warnf("gps read failed device=%s: %v", s.currentDevice(), err)
		s.setError(fmt.Sprintf("gps read failed: %v", err))
		_ = port.Close()

		next := s.reopen(ctx, port)
		if next == nil {
			return
		}
		port = next
		ext.Reset()
	}
}

// reopen retries opening the device until it succeeds or ctx ends.
func (s *Service) reopen(ctx context.Context, old io.ReadWriteCloser) io.ReadWriteCloser {
	for {
		if !sleepCtx(ctx, s.cfg.ReopenDelay) {
			return nil
		}
		device := s.currentDevice()
		port, err := s.cfg.open(device, s.cfg.Baud)
		if err != nil {
			s.setError(fmt.Sprintf("gps reopen failed device=%s: %v", device, err))
			continue
		}

		s.mu.Lock()
		if ctx.Err() != nil {
			s.mu.Unlock()
			_ = port.Close()
			return nil
		}
		if s.port == old {
			s.port = port
		}
		s.lastErr = ""
		s.mu.Unlock()
		log.Infof("gps reopened device=%s", device)
		return port
	}
}

func (s *Service) handleSentence(st *nmeaState, line string) {
	sent, err := parseNMEASentence(line)
	if err != nil {
		log.Debugf("gps sentence dropped: %v", err)
		return
	}
	s.sentences.Add(1)
	s.cfg.Metrics.sentence(sent.Type)
	s.recent.add(line)

	if st.apply(time.Now().UTC(), sent) {
		fix := st.snapshot()
		s.last.Store(fix)
		s.cfg.Metrics.fix(fix)
	}
}

func (s *Service) sendStartupCommands(ctx context.Context) {
	if len(s.cfg.StartupCommands) == 0 {
		return
	}
	if !sleepCtx(ctx, s.cfg.StartupDelay) {
		return
	}
	rl := ratelimit.New(s.cfg.CommandRate)
	for _, cmd := range s.cfg.StartupCommands {
		if ctx.Err() != nil {
			return
		}
		rl.Take()
		if err := s.SendCommand(cmd); err != nil {
			log.Warnf("gps command failed cmd=%s: %v", cmd, err)
			continue
		}
		log.Infof("gps command sent cmd=%s", cmd)
	}
}

func (s *Service) currentDevice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// waitTimeout waits for wg and reports whether it finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
