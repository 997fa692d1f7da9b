package source

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/jpalmerr/gpiolive"
)

const (
	// DefaultSimPeriod is the length of one simulated waveform cycle.
	DefaultSimPeriod = 4 * time.Second

	adcFullScale = 65535
)

// SimConfig configures a [Sim].
type SimConfig struct {
	// Period is the waveform cycle. Defaults to [DefaultSimPeriod].
	Period time.Duration

	// Board names the simulated board in SystemInfo.
	Board string

	// Now replaces the wall clock, for tests.
	Now func() time.Time
}

// Sim is a [gpiolive.Source] producing waveforms that are a pure function
// of channel id and elapsed time. Channel n's digital level is a square
// wave and its ADC a sine, both phase-shifted by n so neighbouring pins
// differ on the page.
type Sim struct {
	period  time.Duration
	board   string
	now     func() time.Time
	started time.Time

	mu     sync.RWMutex
	faults map[int]error
}

// NewSim creates a [Sim].
func NewSim(cfg SimConfig) *Sim {
	period := cfg.Period
	if period <= 0 {
		period = DefaultSimPeriod
	}
	board := cfg.Board
	if board == "" {
		board = "simulator"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sim{
		period:  period,
		board:   board,
		now:     now,
		started: now(),
		faults:  make(map[int]error),
	}
}

// Fail makes every read of channel id return err until [Sim.Recover].
// A nil err injects a generic read failure.
func (s *Sim) Fail(id int, err error) {
	if err == nil {
		err = fmt.Errorf("%w: simulated fault on channel %d", gpiolive.ErrChannelRead, id)
	}
	s.mu.Lock()
	s.faults[id] = err
	s.mu.Unlock()
}

// Recover clears an injected fault.
func (s *Sim) Recover(id int) {
	s.mu.Lock()
	delete(s.faults, id)
	s.mu.Unlock()
}

// Sample implements [gpiolive.Source].
func (s *Sim) Sample(ctx context.Context, id int) (gpiolive.Sample, error) {
	if err := ctx.Err(); err != nil {
		return gpiolive.Sample{}, err
	}

	s.mu.RLock()
	fault := s.faults[id]
	s.mu.RUnlock()
	if fault != nil {
		return gpiolive.Sample{}, fault
	}

	phase := s.phase(id)

	level := 0
	if phase < 0.5 {
		level = 1
	}
	raw := int(math.Round((math.Sin(2*math.Pi*phase) + 1) / 2 * adcFullScale))

	return gpiolive.Sample{
		Digital:   gpiolive.Int(level),
		AnalogRaw: gpiolive.Int(raw),
	}, nil
}

// phase returns the position of channel id within its cycle, in [0, 1).
func (s *Sim) phase(id int) float64 {
	elapsed := s.now().Sub(s.started)
	offset := time.Duration(id) * s.period / 8
	pos := (elapsed + offset) % s.period
	if pos < 0 {
		pos += s.period
	}
	return float64(pos) / float64(s.period)
}

// SystemInfo implements [gpiolive.Source].
func (s *Sim) SystemInfo(context.Context) (map[string]any, error) {
	host, _ := os.Hostname()
	return map[string]any{
		"board":    s.board,
		"hostname": host,
		"goos":     runtime.GOOS,
		"goarch":   runtime.GOARCH,
		"cpus":     runtime.NumCPU(),
		"uptime_s": int64(s.now().Sub(s.started) / time.Second),
	}, nil
}
