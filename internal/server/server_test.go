package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/goccy/go-json"

	"github.com/jpalmerr/gpiolive/internal/store"
	"github.com/jpalmerr/gpiolive/internal/telemetry"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const fakeSnapshotJSON = `{"levels":{"D0":1,"D1":0},"analog":{"D0":1.65,"D1":null},"heap":48000}`

// fakeBuilder returns the same two-channel snapshot on every call.
type fakeBuilder struct {
	calls       atomic.Int64
	shouldPanic atomic.Bool
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{}
}

func (b *fakeBuilder) Build(context.Context) telemetry.Snapshot {
	b.calls.Add(1)
	if b.shouldPanic.Load() {
		panic("sensor bus exploded")
	}

	heap := int64(48000)
	channels := b.Channels()
	return telemetry.Snapshot{
		Readings: []telemetry.Reading{
			{Channel: channels[0], Sample: telemetry.Sample{
				Digital:   telemetry.Int(1),
				AnalogRaw: telemetry.Int(32767),
				Voltage:   telemetry.Float(1.65),
			}},
			{Channel: channels[1], Sample: telemetry.Sample{Digital: telemetry.Int(0)}},
		},
		Memory:  telemetry.Memory{Free: &heap},
		TakenAt: time.Now(),
	}
}

func (b *fakeBuilder) Channels() []telemetry.Channel {
	return []telemetry.Channel{
		{ID: 1, Label: "D0", HasDigital: true, HasAnalog: true},
		{ID: 2, Label: "D1", HasDigital: true},
	}
}

// recordingObserver counts lifecycle signals.
type recordingObserver struct {
	mu     sync.Mutex
	routes map[string]int
	opened int
	closed int
	frames int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{routes: make(map[string]int)}
}

func (o *recordingObserver) ConnectionOpened() { o.mu.Lock(); o.opened++; o.mu.Unlock() }
func (o *recordingObserver) ConnectionClosed() { o.mu.Lock(); o.closed++; o.mu.Unlock() }
func (o *recordingObserver) RequestRouted(route string) {
	o.mu.Lock()
	o.routes[route]++
	o.mu.Unlock()
}
func (o *recordingObserver) StreamOpened()              {}
func (o *recordingObserver) StreamClosed()              {}
func (o *recordingObserver) FrameWritten()              { o.mu.Lock(); o.frames++; o.mu.Unlock() }
func (o *recordingObserver) ObserveBuild(time.Duration) {}

func (o *recordingObserver) routeCount(route string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.routes[route]
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Builder == nil {
		cfg.Builder = newFakeBuilder()
	}
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	cfg.Host = "127.0.0.1"

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func startServer(t *testing.T, srv *Server) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		srv.Wait()
	})
	return cancel
}

// rawExchange writes payload on a fresh connection and returns everything
// the server sends before closing.
func rawExchange(t *testing.T, srv *Server, payload string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, payload); err != nil {
		t.Fatalf("write error = %v", err)
	}
	out, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	return string(out)
}

func splitResponse(t *testing.T, raw string) (string, string) {
	t.Helper()
	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	if !ok {
		t.Fatalf("response has no header terminator: %q", raw)
	}
	return head, body
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_Snapshot(t *testing.T) {
	srv := newTestServer(t, Config{})
	startServer(t, srv)

	resp, err := http.Get("http://" + srv.Addr().String() + "/data")
	if err != nil {
		t.Fatalf("GET /data error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != fakeSnapshotJSON {
		t.Errorf("body = %s, want %s", body, fakeSnapshotJSON)
	}
}

func TestServer_SnapshotMatchesStreamFrame(t *testing.T) {
	srv := newTestServer(t, Config{StreamInterval: 20 * time.Millisecond})
	startServer(t, srv)

	_, oneShot := splitResponse(t, rawExchange(t, srv, "GET /data HTTP/1.1\r\n\r\n"))

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	_, _ = io.WriteString(conn, "GET /events HTTP/1.1\r\nAccept: text/event-stream\r\n\r\n")

	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream headers: %v", err)
		}
		if line == "\r\n" {
			break
		}
	}

	frame, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	frame = strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n")

	if frame != oneShot {
		t.Errorf("stream frame = %s, one-shot = %s", frame, oneShot)
	}
}

func TestServer_NotFound(t *testing.T) {
	srv := newTestServer(t, Config{})
	startServer(t, srv)

	tests := []struct {
		name    string
		payload string
	}{
		{"unknown path", "GET /nope HTTP/1.1\r\n\r\n"},
		{"post", "POST /data HTTP/1.1\r\n\r\n"},
		{"delete page", "DELETE / HTTP/1.1\r\n\r\n"},
		{"malformed", "GARBAGE\r\n\r\n"},
		{"asset without assets", "GET /board.png HTTP/1.1\r\n\r\n"},
		{"post with body", "POST /data HTTP/1.1\r\nContent-Length: 65536\r\n\r\n" + strings.Repeat("x", 65536)},
		{"malformed with trailing bytes", "GARBAGE\r\n\r\n" + strings.Repeat("y", 32768)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head, body := splitResponse(t, rawExchange(t, srv, tt.payload))
			if !strings.HasPrefix(head, "HTTP/1.1 404 Not Found") {
				t.Errorf("status line = %q, want 404", strings.SplitN(head, "\r\n", 2)[0])
			}
			if !strings.Contains(head, "Content-Type: text/plain") {
				t.Errorf("headers missing text/plain:\n%s", head)
			}
			if body != "Not Found" {
				t.Errorf("body = %q, want %q", body, "Not Found")
			}
		})
	}
}

func TestServer_PeerClosesWithoutRequest(t *testing.T) {
	builder := newFakeBuilder()
	obs := newRecordingObserver()
	srv := newTestServer(t, Config{Builder: builder, Observer: obs})
	startServer(t, srv)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	_ = conn.Close()

	waitFor(t, "connection cleanup", func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return obs.opened == 1 && obs.closed == 1
	})
	if builder.calls.Load() != 0 {
		t.Errorf("Build() called %d times for an empty connection", builder.calls.Load())
	}

	// the server keeps serving
	head, _ := splitResponse(t, rawExchange(t, srv, "GET /data HTTP/1.1\r\n\r\n"))
	if !strings.HasPrefix(head, "HTTP/1.1 200 OK") {
		t.Errorf("status line after empty connection = %q", head)
	}
}

func TestServer_Page(t *testing.T) {
	page := []byte("<!doctype html><title>board</title>")
	srv := newTestServer(t, Config{Page: page})
	startServer(t, srv)

	for _, path := range []string{"/", "/index.html"} {
		head, body := splitResponse(t, rawExchange(t, srv, "GET "+path+" HTTP/1.1\r\n\r\n"))
		if !strings.Contains(head, "Content-Type: text/html; charset=utf-8") {
			t.Errorf("GET %s headers missing text/html:\n%s", path, head)
		}
		if !strings.Contains(head, fmt.Sprintf("Content-Length: %d", len(page))) {
			t.Errorf("GET %s headers missing Content-Length:\n%s", path, head)
		}
		if !strings.Contains(head, "Connection: close") {
			t.Errorf("GET %s headers missing Connection: close:\n%s", path, head)
		}
		if body != string(page) {
			t.Errorf("GET %s body = %q, want %q", path, body, page)
		}
	}
}

func TestServer_Asset(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	assets := fstest.MapFS{"board.png": &fstest.MapFile{Data: png}}

	t.Run("present", func(t *testing.T) {
		srv := newTestServer(t, Config{Assets: assets, AssetName: "board.png"})
		startServer(t, srv)

		head, body := splitResponse(t, rawExchange(t, srv, "GET /board.png HTTP/1.1\r\n\r\n"))
		if !strings.HasPrefix(head, "HTTP/1.1 200 OK") {
			t.Errorf("status line = %q", head)
		}
		if !strings.Contains(head, "Content-Type: image/png") {
			t.Errorf("headers missing image/png:\n%s", head)
		}
		if body != string(png) {
			t.Errorf("body = %q, want %q", body, png)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		srv := newTestServer(t, Config{Assets: assets, AssetName: "other.png"})
		startServer(t, srv)

		head, _ := splitResponse(t, rawExchange(t, srv, "GET /board.png HTTP/1.1\r\n\r\n"))
		if !strings.HasPrefix(head, "HTTP/1.1 404") {
			t.Errorf("status line = %q, want 404", head)
		}
	})
}

func TestServer_Info(t *testing.T) {
	sessions := store.NewMemoryStore()
	opened := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sessions.Open(store.Session{ID: "s-2", Remote: "10.0.0.9:5000", OpenedAt: opened.Add(time.Second)})
	sessions.Open(store.Session{ID: "s-1", Remote: "10.0.0.8:5000", OpenedAt: opened})

	srv := newTestServer(t, Config{
		Sessions: sessions,
		Info: func(context.Context) map[string]any {
			return map[string]any{"firmware": "test-1.0"}
		},
	})
	startServer(t, srv)

	_, body := splitResponse(t, rawExchange(t, srv, "GET /info HTTP/1.1\r\n\r\n"))

	var info struct {
		Firmware   string   `json:"firmware"`
		Address    string   `json:"address"`
		Channels   []string `json:"channels"`
		IntervalMS int64    `json:"interval_ms"`
		Streams    int      `json:"streams"`
		UptimeS    *float64 `json:"uptime_s"`
		Sessions   []struct {
			ID     string `json:"id"`
			Remote string `json:"remote"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		t.Fatalf("Unmarshal(info) error = %v, body %s", err, body)
	}

	if info.Firmware != "test-1.0" {
		t.Errorf("firmware = %q, want test-1.0", info.Firmware)
	}
	if info.Address != srv.Addr().String() {
		t.Errorf("address = %q, want %q", info.Address, srv.Addr().String())
	}
	if strings.Join(info.Channels, ",") != "D0,D1" {
		t.Errorf("channels = %v, want [D0 D1]", info.Channels)
	}
	if info.IntervalMS != 500 {
		t.Errorf("interval_ms = %d, want 500", info.IntervalMS)
	}
	if info.Streams != 2 {
		t.Errorf("streams = %d, want 2", info.Streams)
	}
	if len(info.Sessions) != 2 || info.Sessions[0].ID != "s-1" || info.Sessions[1].ID != "s-2" {
		t.Errorf("sessions = %+v, want s-1 then s-2", info.Sessions)
	}
	if len(info.Sessions) > 0 && info.Sessions[0].Remote != "10.0.0.8:5000" {
		t.Errorf("sessions[0].remote = %q, want 10.0.0.8:5000", info.Sessions[0].Remote)
	}
	if info.UptimeS == nil {
		t.Error("uptime_s missing")
	}
}

func TestServer_PanicIsContained(t *testing.T) {
	builder := newFakeBuilder()
	builder.shouldPanic.Store(true)
	srv := newTestServer(t, Config{Builder: builder})
	startServer(t, srv)

	head, _ := splitResponse(t, rawExchange(t, srv, "GET /data HTTP/1.1\r\n\r\n"))
	if !strings.HasPrefix(head, "HTTP/1.1 500 Internal Server Error") {
		t.Errorf("status line = %q, want 500", head)
	}

	builder.shouldPanic.Store(false)
	head, body := splitResponse(t, rawExchange(t, srv, "GET /data HTTP/1.1\r\n\r\n"))
	if !strings.HasPrefix(head, "HTTP/1.1 200 OK") {
		t.Errorf("status line after panic = %q, want 200", head)
	}
	if body != fakeSnapshotJSON {
		t.Errorf("body after panic = %s", body)
	}
}

func TestServer_StreamSessionTracked(t *testing.T) {
	obs := newRecordingObserver()
	srv := newTestServer(t, Config{StreamInterval: 10 * time.Millisecond, Observer: obs})
	startServer(t, srv)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	_, _ = io.WriteString(conn, "GET /events HTTP/1.1\r\n\r\n")

	waitFor(t, "stream session to open", func() bool { return srv.Sessions().Count() == 1 })
	waitFor(t, "frames", func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return obs.frames >= 3
	})

	_ = conn.Close()
	waitFor(t, "stream session to close", func() bool { return srv.Sessions().Count() == 0 })

	if got := obs.routeCount("stream"); got != 1 {
		t.Errorf("stream route count = %d, want 1", got)
	}
}

func TestServer_ConcurrentClients(t *testing.T) {
	srv := newTestServer(t, Config{})
	startServer(t, srv)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get("http://" + srv.Addr().String() + "/data")
			if err != nil {
				return
			}
			defer func() { _ = resp.Body.Close() }()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode == http.StatusOK && string(body) == fakeSnapshotJSON {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 20 {
		t.Errorf("%d/20 concurrent requests succeeded", ok.Load())
	}
}

func TestServer_ShutdownEndsStreams(t *testing.T) {
	srv := newTestServer(t, Config{StreamInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var conns []net.Conn
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", srv.Addr().String())
		if err != nil {
			t.Fatalf("dial error = %v", err)
		}
		defer func() { _ = conn.Close() }()
		_, _ = io.WriteString(conn, "GET /events HTTP/1.1\r\n\r\n")
		conns = append(conns, conn)
	}
	waitFor(t, "streams to open", func() bool { return srv.Sessions().Count() == 3 })

	cancel()

	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Wait() did not return after shutdown")
	}

	for i, conn := range conns {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, err := io.ReadAll(conn); err != nil {
			t.Errorf("conn %d: read after shutdown error = %v, want EOF", i, err)
		}
	}
	if srv.Sessions().Count() != 0 {
		t.Errorf("open sessions after shutdown = %d, want 0", srv.Sessions().Count())
	}

	if _, err := net.DialTimeout("tcp", srv.Addr().String(), 200*time.Millisecond); err == nil {
		t.Error("listener still accepting after shutdown")
	}
}

func TestServer_ShutdownClosesStalledConnections(t *testing.T) {
	srv := newTestServer(t, Config{})
	srv.grace = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// connects but never sends a request
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	waitFor(t, "connection to be tracked", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.conns) == 1
	})

	cancel()

	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Wait() did not return after the grace period")
	}
}

func TestManagedConn_ClosesOnce(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = client.Close() }()

	mc := newManagedConn(server)
	if err := mc.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := mc.Close(); err != nil {
		t.Errorf("second Close() error = %v, want the first result", err)
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	// occupy a port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port
	srv := newTestServer(t, Config{Port: port})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestNewServer_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no builder", Config{}},
		{"negative port", Config{Builder: newFakeBuilder(), Port: -1}},
		{"port too large", Config{Builder: newFakeBuilder(), Port: 70000}},
		{"negative interval", Config{Builder: newFakeBuilder(), StreamInterval: -time.Second}},
		{"bad paths", Config{Builder: newFakeBuilder(), Paths: &RoutePaths{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewServer(tt.cfg); err == nil {
				t.Error("NewServer() expected error")
			}
		})
	}
}
