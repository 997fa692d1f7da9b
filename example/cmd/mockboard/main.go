// Standalone mock board for trying the remote source.
//
// It serves /data and /info the way older board firmware does, with
// voltages under "adcv", and flips a random pin every second or two.
//
// Usage:
//
//	go run ./example/cmd/mockboard
//
// Then in another terminal:
//
//	go run ./cmd/gpiolive serve --source remote --remote-url http://localhost:9999
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/jpalmerr/gpiolive/config"
)

const addr = ":9999"

// board holds the mock pin state.
type board struct {
	mu      sync.Mutex
	profile *config.Profile
	levels  map[string]int
	volts   map[string]float64
	started time.Time
}

func newBoard(p *config.Profile) *board {
	b := &board{
		profile: p,
		levels:  make(map[string]int, len(p.Pins)),
		volts:   make(map[string]float64),
		started: time.Now(),
	}
	for _, pin := range p.Pins {
		b.levels[pin.Label] = 0
		if pin.ADC != nil {
			b.volts[pin.Label] = 0.1
		}
	}
	return b
}

// flip toggles one random pin and moves its voltage with it.
func (b *board) flip() {
	pin := b.profile.Pins[rand.Intn(len(b.profile.Pins))]

	b.mu.Lock()
	defer b.mu.Unlock()

	level := 1 - b.levels[pin.Label]
	b.levels[pin.Label] = level
	if _, ok := b.volts[pin.Label]; ok {
		v := 0.05 + rand.Float64()*0.4
		if level == 1 {
			v = b.profile.VRef - rand.Float64()*0.4
		}
		b.volts[pin.Label] = v
	}
	slog.Info("pin changed", "pin", pin.Label, "level", level)
}

func (b *board) snapshot() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	levels := make(map[string]int, len(b.levels))
	for k, v := range b.levels {
		levels[k] = v
	}
	adcv := make(map[string]any, len(b.profile.Pins))
	for _, pin := range b.profile.Pins {
		if v, ok := b.volts[pin.Label]; ok {
			adcv[pin.Label] = v
		} else {
			adcv[pin.Label] = nil
		}
	}
	return map[string]any{"levels": levels, "adcv": adcv, "heap": 180000}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func main() {
	profile, err := config.Load(config.DefaultProfile)
	if err != nil {
		slog.Error("failed to load profile", "error", err)
		os.Exit(1)
	}
	b := newBoard(profile)

	go func() {
		for {
			time.Sleep(time.Duration(1000+rand.Intn(1000)) * time.Millisecond)
			b.flip()
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, b.snapshot())
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"board":    profile.Name,
			"firmware": "mockboard",
			"uptime_s": int64(time.Since(b.started).Seconds()),
		})
	})

	fmt.Printf("Mock %s board on %s\n", profile.Name, addr)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
