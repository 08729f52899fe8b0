package ntrip

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testGGA = "$GNGGA,123519,5013.2000,N,01901.5000,E,4,12,0.7,120.0,M,35.0,M,1.0,0042*4F"

type fakePosition struct{ gga string }

func (p fakePosition) LastGGA() string { return p.gga }

type fakeSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *fakeSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(p)
	return nil
}

func (s *fakeSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

// fakeCaster accepts connections and hands each one to handle.
type fakeCaster struct {
	ln      net.Listener
	mu      sync.Mutex
	accepts int
}

func startCaster(t *testing.T, handle func(conn net.Conn, req string)) *fakeCaster {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fc := &fakeCaster{ln: ln}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			fc.mu.Lock()
			fc.accepts++
			fc.mu.Unlock()
			go func() {
				defer conn.Close()
				req, err := readRequest(conn)
				if err != nil {
					return
				}
				handle(conn, req)
			}()
		}
	}()
	return fc
}

func (fc *fakeCaster) Accepts() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.accepts
}

func (fc *fakeCaster) config() Config {
	addr := fc.ln.Addr().(*net.TCPAddr)
	return Config{
		Host:           "127.0.0.1",
		Port:           addr.Port,
		Mountpoint:     "KRAK_RTCM_3_2",
		Username:       "user",
		Password:       "pass",
		SendGGA:        true,
		GGAInterval:    time.Hour,
		ReadTimeout:    time.Second,
		ReconnectDelay: 50 * time.Millisecond,
		ReconnectSlice: 10 * time.Millisecond,
		StopTimeout:    2 * time.Second,
	}
}

func readRequest(conn net.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	r := bufio.NewReader(conn)
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return b.String(), err
		}
		b.WriteString(line)
		if line == "\r\n" {
			return b.String(), nil
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClient_MissingCredentials(t *testing.T) {
	c := NewClient(Config{Username: "user"}, nil, nil, nil)
	if err := c.Start(context.Background()); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err=%v", err)
	}
	if c.Running() || c.Stats().Error != "missing credentials" {
		t.Fatalf("stats=%+v", c.Stats())
	}
}

func TestClient_UnauthorizedIsTerminal(t *testing.T) {
	fc := startCaster(t, func(conn net.Conn, _ string) {
		_, _ = conn.Write([]byte("HTTP/1.1 401 Unauthorized\r\n\r\n"))
	})
	m := NewMetrics(nil)
	c := NewClient(fc.config(), nil, nil, m)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitFor(t, "failed state", func() bool { return !c.Running() && c.Stats().State == StateFailed })
	time.Sleep(150 * time.Millisecond)

	st := c.Stats()
	if st.ReconnectCount != 0 {
		t.Fatalf("reconnect_count=%d want 0", st.ReconnectCount)
	}
	if st.Error != ErrUnauthorized.Error() {
		t.Fatalf("error=%q", st.Error)
	}
	if fc.Accepts() != 1 {
		t.Fatalf("accepts=%d want 1", fc.Accepts())
	}
	if got := testutil.ToFloat64(m.reconnects); got != 0 {
		t.Fatalf("reconnect metric=%v", got)
	}
}

func TestClient_SourcetableRetries(t *testing.T) {
	fc := startCaster(t, func(conn net.Conn, _ string) {
		_, _ = conn.Write([]byte("SOURCETABLE 200 OK\r\n\r\nSTR;KRAK;\r\nENDSOURCETABLE\r\n"))
	})
	m := NewMetrics(nil)
	c := NewClient(fc.config(), nil, nil, m)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "two reconnects", func() bool { return c.Stats().ReconnectCount >= 2 })
	if !c.Running() {
		t.Fatalf("client should keep retrying")
	}
	if !strings.Contains(c.Stats().Error, "mountpoint not found") {
		t.Fatalf("error=%q", c.Stats().Error)
	}
	if testutil.ToFloat64(m.reconnects) < 2 {
		t.Fatalf("reconnect metric=%v", testutil.ToFloat64(m.reconnects))
	}

	c.Stop()
	st := c.Stats()
	if st.State != StateDisconnected {
		t.Fatalf("state=%s after stop", st.State)
	}
	time.Sleep(150 * time.Millisecond)
	if after := c.Stats(); after != st {
		t.Fatalf("stats changed after stop: %+v -> %+v", st, after)
	}
}

func TestClient_RawStreamAndKeepalive(t *testing.T) {
	first := rtcmFrame(1005, 19)
	second := rtcmFrame(1077, 60)
	requests := make(chan string, 1)
	keepalive := make(chan string, 1)

	fc := startCaster(t, func(conn net.Conn, req string) {
		requests <- req
		_, _ = conn.Write(append([]byte("ICY 200 OK\r\n\r\n"), first...))
		time.Sleep(20 * time.Millisecond)
		_, _ = conn.Write(second)

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, _ := bufio.NewReader(conn).ReadString('\n')
		keepalive <- line
		time.Sleep(time.Second)
	})

	sink := &fakeSink{}
	c := NewClient(fc.config(), fakePosition{gga: testGGA}, sink, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	req := <-requests
	if !strings.HasPrefix(req, "GET /KRAK_RTCM_3_2 HTTP/1.0\r\n") {
		t.Fatalf("request=%q", req)
	}
	if !strings.Contains(req, "Ntrip-GGA: "+testGGA+"\r\n") || !strings.Contains(req, "Authorization: Basic dXNlcjpwYXNz\r\n") {
		t.Fatalf("request headers=%q", req)
	}

	want := append(append([]byte{}, first...), second...)
	waitFor(t, "forwarded corrections", func() bool { return bytes.Equal(sink.Bytes(), want) })

	select {
	case line := <-keepalive:
		if line != testGGA+"\r\n" {
			t.Fatalf("keepalive=%q", line)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no keepalive GGA after data")
	}

	st := c.Stats()
	if st.State != StateStreaming || !st.Connected || st.Chunked {
		t.Fatalf("stats=%+v", st)
	}
	if st.BytesForwarded != uint64(len(want)) || st.BytesReceived != uint64(len(want)) {
		t.Fatalf("received=%d forwarded=%d want %d", st.BytesReceived, st.BytesForwarded, len(want))
	}
	if st.LastDataUTC == "" {
		t.Fatalf("missing last data time")
	}
}

func TestClient_IdleSocketSendsGGA(t *testing.T) {
	keepalive := make(chan string, 1)
	fc := startCaster(t, func(conn net.Conn, _ string) {
		_, _ = conn.Write([]byte("ICY 200 OK\r\n\r\n"))
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, _ := bufio.NewReader(conn).ReadString('\n')
		keepalive <- line
		time.Sleep(time.Second)
	})

	cfg := fc.config()
	cfg.ReadTimeout = 200 * time.Millisecond
	c := NewClient(cfg, fakePosition{gga: testGGA}, &fakeSink{}, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	select {
	case line := <-keepalive:
		if line != testGGA+"\r\n" {
			t.Fatalf("keepalive=%q", line)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no GGA after the read timeout")
	}
	if st := c.Stats(); st.State != StateStreaming || st.BytesReceived != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestClient_StopDuringLongBackoff(t *testing.T) {
	fc := startCaster(t, func(conn net.Conn, _ string) {
		_, _ = conn.Write([]byte("SOURCETABLE 200 OK\r\n\r\nENDSOURCETABLE\r\n"))
	})
	cfg := fc.config()
	cfg.ReconnectDelay = 30 * time.Second
	cfg.ReconnectSlice = 0 // default slice
	c := NewClient(cfg, nil, nil, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "first failure", func() bool { return c.Stats().ReconnectCount == 1 })
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	c.Stop()
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("stop during backoff took %s", d)
	}
	if c.Running() || fc.Accepts() != 1 {
		t.Fatalf("running=%v accepts=%d", c.Running(), fc.Accepts())
	}
}

func TestClient_ChunkedStreamEndsAndReconnects(t *testing.T) {
	frame := rtcmFrame(1230, 40)
	var once sync.Once
	release := make(chan struct{})

	fc := startCaster(t, func(conn net.Conn, _ string) {
		first := false
		once.Do(func() { first = true })
		if !first {
			time.Sleep(time.Second)
			return
		}
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"))
		_, _ = conn.Write(chunk(frame[:10]))
		_, _ = conn.Write(chunk(frame[10:]))
		<-release
		_, _ = conn.Write([]byte("0\r\n\r\n"))
		time.Sleep(time.Second)
	})

	cfg := fc.config()
	cfg.SendGGA = false
	sink := &fakeSink{}
	c := NewClient(cfg, nil, sink, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitFor(t, "de-chunked payload", func() bool { return bytes.Equal(sink.Bytes(), frame) })
	if st := c.Stats(); !st.Chunked || st.State != StateStreaming {
		t.Fatalf("stats=%+v", st)
	}

	close(release)
	waitFor(t, "reconnect after end of stream", func() bool { return c.Stats().ReconnectCount == 1 })
	if !strings.Contains(c.Stats().Error, "stream ended") {
		t.Fatalf("error=%q", c.Stats().Error)
	}
}

func TestClient_MalformedChunkForwardedRaw(t *testing.T) {
	a := rtcmFrame(1005, 19)
	b := rtcmFrame(1077, 30)
	garbage := []byte("zz\r\nnot a chunk")
	resume := make(chan struct{})

	fc := startCaster(t, func(conn net.Conn, _ string) {
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"))
		_, _ = conn.Write(chunk(a))
		time.Sleep(20 * time.Millisecond)
		_, _ = conn.Write(garbage)
		<-resume
		_, _ = conn.Write(chunk(b))
		time.Sleep(time.Second)
	})

	cfg := fc.config()
	cfg.SendGGA = false
	sink := &fakeSink{}
	m := NewMetrics(nil)
	c := NewClient(cfg, nil, sink, m)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitFor(t, "raw flush", func() bool { return c.Stats().RawFlushes == 1 })
	close(resume)

	want := append(append(append([]byte{}, a...), garbage...), b...)
	waitFor(t, "chunks after the flush", func() bool { return bytes.Equal(sink.Bytes(), want) })
	if got := testutil.ToFloat64(m.rawFlushes); got != 1 {
		t.Fatalf("raw flush metric=%v", got)
	}
	if st := c.Stats(); st.State != StateStreaming || !st.Chunked {
		t.Fatalf("stats=%+v", st)
	}
}

func TestClient_StopIsIdempotentAndRestartable(t *testing.T) {
	fc := startCaster(t, func(conn net.Conn, _ string) {
		_, _ = conn.Write([]byte("ICY 200 OK\r\n\r\n"))
		time.Sleep(2 * time.Second)
	})
	c := NewClient(fc.config(), nil, nil, nil)
	c.Stop()

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	waitFor(t, "streaming", func() bool { return c.Stats().State == StateStreaming })

	start := time.Now()
	c.Stop()
	c.Stop()
	if d := time.Since(start); d > time.Second {
		t.Fatalf("stop took %s", d)
	}
	if c.Running() || c.Stats().State != StateDisconnected {
		t.Fatalf("stats=%+v", c.Stats())
	}

	cfg := fc.config()
	cfg.Enabled = true
	cfg.Mountpoint = "WROC_RTCM_3_2"
	if err := c.Reconfigure(ctx, cfg); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	waitFor(t, "streaming after reconfigure", func() bool { return c.Stats().State == StateStreaming })
	if c.Stats().Mountpoint != "WROC_RTCM_3_2" {
		t.Fatalf("mountpoint=%q", c.Stats().Mountpoint)
	}
	c.Stop()
}
