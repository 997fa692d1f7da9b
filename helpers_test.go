package gpiolive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSource returns fixed samples keyed by channel id.
type stubSource struct {
	mu      sync.Mutex
	samples map[int]Sample
	fail    map[int]bool
	calls   int
}

func newStubSource() *stubSource {
	return &stubSource{
		samples: map[int]Sample{
			1: {Digital: Int(1), Voltage: Float(3.1)},
			2: {Digital: Int(0)},
			3: {Digital: Int(1), AnalogRaw: Int(0)},
		},
		fail: map[int]bool{},
	}
}

func (s *stubSource) Sample(_ context.Context, id int) (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail[id] {
		return Sample{}, fmt.Errorf("%w: stub failure on %d", ErrChannelRead, id)
	}
	return s.samples[id], nil
}

func (s *stubSource) SystemInfo(context.Context) (map[string]any, error) {
	return map[string]any{"board": "stub"}, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var errNoInfo = errors.New("no info")

// infolessSource fails SystemInfo.
type infolessSource struct{ *stubSource }

func (infolessSource) SystemInfo(context.Context) (map[string]any, error) {
	return nil, errNoInfo
}

func testChannels() []Channel {
	return []Channel{
		MustChannel(1, WithLabel("D0"), WithAnalog()),
		MustChannel(2, WithLabel("D1")),
		MustChannel(3, WithLabel("D2"), WithAnalog()),
	}
}

// freePort asks the kernel for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}
