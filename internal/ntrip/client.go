package ntrip

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/tevino/abool/v2"
)

var errStreamEnded = errors.New("ntrip: chunked stream ended")

// PositionSource provides the last raw GGA sentence for the caster.
type PositionSource interface {
	LastGGA() string
}

// CorrectionSink receives de-chunked correction bytes (the receiver's serial
// port).
type CorrectionSink interface {
	Write(p []byte) error
}

type Config struct {
	Enabled bool

	Host       string
	Port       int
	Mountpoint string
	Username   string
	Password   string

	SendGGA     bool
	GGAInterval time.Duration

	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	ReadTimeout     time.Duration

	ReconnectDelay time.Duration
	// ReconnectSlice bounds how long Stop waits for a sleeping loop.
	ReconnectSlice time.Duration
	StopTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Host) == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if strings.TrimSpace(c.Mountpoint) == "" {
		c.Mountpoint = BuildMountpoint(AutoStation, c.Port)
	}
	if c.GGAInterval <= 0 {
		c.GGAInterval = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.ReconnectSlice <= 0 {
		c.ReconnectSlice = 100 * time.Millisecond
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	return c
}

// Stats is a copy of the session counters.
type Stats struct {
	State          State  `json:"state"`
	Connected      bool   `json:"connected"`
	Chunked        bool   `json:"chunked"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Mountpoint     string `json:"mountpoint"`
	BytesReceived  uint64 `json:"bytes_received"`
	BytesForwarded uint64 `json:"rtcm_bytes_sent"`
	// RawFlushes counts malformed chunk framing forwarded as raw bytes.
	RawFlushes     int    `json:"raw_flushes"`
	ReconnectCount int    `json:"reconnect_count"`
	LastDataUTC    string `json:"last_data_time,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Client relays RTCM corrections from an NTRIP caster to a CorrectionSink.
type Client struct {
	pos     PositionSource
	sink    CorrectionSink
	metrics *Metrics

	running *abool.AtomicBool

	// mu guards everything below, including the socket: Stop closes it under
	// the same lock the loop publishes state with.
	mu       sync.Mutex
	cfg      Config
	gen      uint64
	conn     net.Conn
	state    State
	chunked  bool
	received uint64
	sent     uint64
	retries  int
	flushes  int
	lastData time.Time
	lastErr  string
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewClient(cfg Config, pos PositionSource, sink CorrectionSink, m *Metrics) *Client {
	c := &Client{
		pos:     pos,
		sink:    sink,
		metrics: m,
		running: abool.New(),
		cfg:     cfg.withDefaults(),
	}
	m.state(StateDisconnected)
	return c
}

// Start launches the network loop. It is a no-op while the loop runs.
func (c *Client) Start(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("ntrip client is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		select {
		case <-c.done:
			// Loop ended on its own (bad credentials); allow a restart.
			c.cancel()
		default:
			return nil
		}
	}
	cfg := c.cfg
	if cfg.Username == "" || cfg.Password == "" {
		c.lastErr = ErrMissingCredentials.Error()
		return ErrMissingCredentials
	}

	c.gen++
	c.state = StateDisconnected
	c.chunked = false
	c.received, c.sent, c.retries, c.flushes = 0, 0, 0, 0
	c.lastData = time.Time{}
	c.lastErr = ""

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.running.Set()

	go c.run(runCtx, c.gen, cfg, done)
	log.Infof("ntrip started host=%s port=%d mountpoint=%s", cfg.Host, cfg.Port, cfg.Mountpoint)
	return nil
}

// Stop closes the connection and waits up to StopTimeout for the loop. Once
// Stop returns the loop can no longer change Stats.
func (c *Client) Stop() {
	if c == nil {
		return
	}
	c.running.UnSet()

	c.mu.Lock()
	done := c.done
	if done == nil {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.cancel()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.metrics.state(StateDisconnected)
	c.done = nil
	c.cancel = nil
	timeout := c.cfg.StopTimeout
	c.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		log.Infof("ntrip stopped")
	case <-t.C:
		log.Warnf("ntrip loop did not stop within %s", timeout)
	}
}

// Reconfigure stops the client, applies cfg and starts again if cfg.Enabled.
func (c *Client) Reconfigure(ctx context.Context, cfg Config) error {
	c.Stop()
	c.mu.Lock()
	c.cfg = cfg.withDefaults()
	c.mu.Unlock()
	if !cfg.Enabled {
		return nil
	}
	return c.Start(ctx)
}

// Config returns the active configuration.
func (c *Client) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Client) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{
		State:          c.state,
		Connected:      c.state == StateStreaming,
		Chunked:        c.chunked,
		Host:           c.cfg.Host,
		Port:           c.cfg.Port,
		Mountpoint:     c.cfg.Mountpoint,
		BytesReceived:  c.received,
		BytesForwarded: c.sent,
		RawFlushes:     c.flushes,
		ReconnectCount: c.retries,
		Error:          c.lastErr,
	}
	if !c.lastData.IsZero() {
		st.LastDataUTC = c.lastData.UTC().Format(time.RFC3339Nano)
	}
	return st
}

// Running reports whether the loop is active.
func (c *Client) Running() bool {
	return c != nil && c.running.IsSet()
}

// update runs fn under the lock unless the session gen was stopped.
func (c *Client) update(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	fn()
	return true
}

func (c *Client) transition(gen uint64, to State) bool {
	return c.update(gen, func() {
		if c.state == to {
			return
		}
		if !canTransition(c.state, to) {
			log.Warnf("ntrip invalid transition %s -> %s", c.state, to)
			return
		}
		c.state = to
		c.metrics.state(to)
	})
}

func (c *Client) run(ctx context.Context, gen uint64, cfg Config, done chan struct{}) {
	defer close(done)
	for c.running.IsSet() && ctx.Err() == nil {
		err := c.session(ctx, gen, cfg)
		if !c.running.IsSet() || ctx.Err() != nil {
			return
		}

		terminal := errors.Is(err, ErrUnauthorized)
		live := c.update(gen, func() {
			if canTransition(c.state, StateFailed) {
				c.state = StateFailed
				c.metrics.state(StateFailed)
			}
			if err != nil {
				c.lastErr = err.Error()
			}
			if terminal {
				c.running.UnSet()
				return
			}
			c.retries++
			c.metrics.reconnect()
		})
		if !live {
			return
		}
		if terminal {
			log.Errorf("ntrip %v; not retrying until restarted", err)
			return
		}
		log.Warnf("ntrip disconnected: %v; reconnect in %s", err, cfg.ReconnectDelay)
		if !c.waitReconnect(ctx, cfg) {
			return
		}
	}
}

// waitReconnect sleeps ReconnectDelay in ReconnectSlice steps so Stop is
// noticed quickly.
func (c *Client) waitReconnect(ctx context.Context, cfg Config) bool {
	for waited := time.Duration(0); waited < cfg.ReconnectDelay; waited += cfg.ReconnectSlice {
		if !c.running.IsSet() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(cfg.ReconnectSlice):
		}
	}
	return c.running.IsSet()
}

func (c *Client) session(ctx context.Context, gen uint64, cfg Config) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	if !c.transition(gen, StateConnecting) {
		return nil
	}
	log.Infof("ntrip connecting addr=%s mountpoint=%s", addr, cfg.Mountpoint)

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("ntrip dial %s: %w", addr, err)
	}
	if !c.update(gen, func() { c.conn = conn }) {
		_ = conn.Close()
		return nil
	}
	defer func() {
		c.update(gen, func() {
			if c.conn == conn {
				c.conn = nil
			}
		})
		_ = conn.Close()
	}()

	c.transition(gen, StateNegotiating)
	gga := ""
	if cfg.SendGGA {
		gga = c.lastGGA()
	}
	_ = conn.SetDeadline(time.Now().Add(cfg.ResponseTimeout))
	if _, err := conn.Write(buildRequest(cfg.Mountpoint, cfg.Username, cfg.Password, gga)); err != nil {
		return fmt.Errorf("ntrip send request: %w", err)
	}
	raw, err := readResponse(conn)
	if err != nil {
		return fmt.Errorf("ntrip response: %w", err)
	}
	resp, err := parseResponse(raw, cfg.Mountpoint)
	if resp.statusLine != "" {
		log.Infof("ntrip response status=%q", resp.statusLine)
	}
	if err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Time{})

	c.transition(gen, StateStreaming)
	c.update(gen, func() {
		c.chunked = resp.chunked
		c.lastErr = ""
	})
	if resp.chunked {
		log.Warnf("ntrip chunked transfer detected mountpoint=%s; de-chunking", cfg.Mountpoint)
	} else {
		log.Infof("ntrip connected mountpoint=%s raw stream", cfg.Mountpoint)
	}

	st := stream{c: c, gen: gen}
	if resp.chunked {
		st.dec = &Dechunker{}
	}
	if len(resp.body) > 0 {
		if err := st.handle(resp.body); err != nil {
			return err
		}
	}

	var lastGGA time.Time
	buf := make([]byte, 4096)
	for c.running.IsSet() {
		_ = conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			if err := st.handle(buf[:n]); err != nil {
				return err
			}
			if cfg.SendGGA && time.Since(lastGGA) >= cfg.GGAInterval {
				if c.sendGGA(conn, cfg) {
					lastGGA = time.Now()
				}
			}
		}
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			log.Debugf("ntrip read idle for %s", cfg.ReadTimeout)
			if cfg.SendGGA {
				c.sendGGA(conn, cfg)
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("ntrip: caster closed connection")
		}
		return fmt.Errorf("ntrip read: %w", err)
	}
	return nil
}

func (c *Client) lastGGA() string {
	if c.pos == nil {
		return ""
	}
	return strings.TrimSpace(c.pos.LastGGA())
}

// sendGGA is best-effort; it reports whether a sentence was written.
func (c *Client) sendGGA(conn net.Conn, cfg Config) bool {
	gga := c.lastGGA()
	if gga == "" {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(cfg.ResponseTimeout))
	if _, err := conn.Write([]byte(gga + "\r\n")); err != nil {
		log.Debugf("ntrip gga send failed: %v", err)
		return false
	}
	return true
}

// stream turns received bytes into forwarded corrections for one session.
type stream struct {
	c          *Client
	gen        uint64
	dec        *Dechunker
	firstDone  bool
	sinkFailed bool
}

func (s *stream) handle(data []byte) error {
	now := time.Now()
	if !s.c.update(s.gen, func() {
		s.c.received += uint64(len(data))
		s.c.lastData = now
	}) {
		return nil
	}
	s.c.metrics.received(len(data))

	payload := data
	if s.dec != nil {
		before := s.dec.RawFlushes()
		payload = s.dec.Feed(data)
		if n := s.dec.RawFlushes() - before; n > 0 {
			s.c.update(s.gen, func() { s.c.flushes += n })
			s.c.metrics.rawFlush(n)
			log.Warnf("ntrip malformed chunk framing; forwarded %s raw", humanize.Bytes(uint64(len(payload))))
		}
	}
	if len(payload) > 0 {
		if !s.firstDone {
			s.firstDone = true
			logFirstBatch(payload)
		}
		s.forward(payload)
	}
	if s.dec != nil && s.dec.Ended() {
		return errStreamEnded
	}
	return nil
}

func (s *stream) forward(p []byte) {
	if s.c.sink == nil {
		return
	}
	if err := s.c.sink.Write(p); err != nil {
		if !s.sinkFailed {
			log.Warnf("ntrip forward to receiver failed: %v", err)
			s.sinkFailed = true
		}
		return
	}
	s.sinkFailed = false
	s.c.update(s.gen, func() { s.c.sent += uint64(len(p)) })
	s.c.metrics.forwarded(len(p))
}

func logFirstBatch(p []byte) {
	preview := p
	if len(preview) > 24 {
		preview = preview[:24]
	}
	log.Infof("ntrip first batch size=%s head=%s", humanize.Bytes(uint64(len(p))), strings.ToUpper(hex.EncodeToString(preview)))

	off := FindPreamble(p)
	if off < 0 {
		log.Warnf("ntrip first batch has no RTCM3 preamble; forwarding anyway")
		return
	}
	log.Infof("ntrip rtcm3 ok type=%d offset=%d", MessageType(p, off), off)
}
