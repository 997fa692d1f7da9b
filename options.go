package gpiolive

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	minStreamInterval = 10 * time.Millisecond
	maxStreamInterval = time.Hour
)

// appConfig holds mutable state during App construction.
type appConfig struct {
	title            string
	firmware         string
	channels         []Channel
	source           Source
	host             string
	port             int
	streamInterval   time.Duration
	vref             float64
	classification   ClassificationPolicy
	assets           fs.FS
	boardImageURL    string
	logger           *slog.Logger
	writeTimeout     time.Duration
	metricsPort      int
	metricsRegistry  *prometheus.Registry
	memory           func() Memory
	sessionCallbacks []func(SessionEvent)
}

// Option is a function that configures an [App] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*appConfig) error

// WithChannels adds channels to the monitored set, in order.
//
// Can be called multiple times; channels accumulate. At least one channel
// must be configured for [New] to succeed. Snapshot keys follow the order
// channels were added.
//
// Example:
//
//	app, err := gpiolive.New(
//	    gpiolive.WithSource(src),
//	    gpiolive.WithChannels(
//	        gpiolive.MustChannel(1, gpiolive.WithLabel("D0"), gpiolive.WithAnalog()),
//	        gpiolive.MustChannel(2, gpiolive.WithLabel("D1")),
//	    ),
//	)
func WithChannels(channels ...Channel) Option {
	return func(cfg *appConfig) error {
		cfg.channels = append(cfg.channels, channels...)
		return nil
	}
}

// WithSource sets the [Source] channels are read from. Required.
//
// Returns an error if the source is nil.
func WithSource(src Source) Option {
	return func(cfg *appConfig) error {
		if src == nil {
			return errors.New("source cannot be nil")
		}
		cfg.source = src
		return nil
	}
}

// WithHost sets the interface the server binds. Defaults to all interfaces.
func WithHost(host string) Option {
	return func(cfg *appConfig) error {
		cfg.host = host
		return nil
	}
}

// WithPort sets the HTTP port. Defaults to 8081.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *appConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithStreamInterval sets the pause between event stream frames.
// Defaults to 500ms.
//
// Returns an error if the interval is below 10ms or above 1h.
func WithStreamInterval(d time.Duration) Option {
	return func(cfg *appConfig) error {
		if d < minStreamInterval {
			return fmt.Errorf("stream interval must be at least %s, got %s", minStreamInterval, d)
		}
		if d > maxStreamInterval {
			return fmt.Errorf("stream interval must not exceed %s, got %s", maxStreamInterval, d)
		}
		cfg.streamInterval = d
		return nil
	}
}

// WithVRef sets the ADC reference voltage used to derive volts from raw
// counts. Defaults to 3.3.
//
// Returns an error if vref is not a positive finite number.
func WithVRef(vref float64) Option {
	return func(cfg *appConfig) error {
		if math.IsNaN(vref) || math.IsInf(vref, 0) || vref <= 0 {
			return fmt.Errorf("vref must be a positive number, got %v", vref)
		}
		cfg.vref = vref
		return nil
	}
}

// WithClassification sets how samples map to high/low on the page and in
// [Classify] results from [App.Read]. Defaults to [DefaultClassification].
func WithClassification(p ClassificationPolicy) Option {
	return func(cfg *appConfig) error {
		if err := p.validate(); err != nil {
			return err
		}
		cfg.classification = p
		return nil
	}
}

// WithAssets sets the filesystem holding "board.png". When present it is
// served at /board.png and used by the page instead of [WithBoardImage].
func WithAssets(fsys fs.FS) Option {
	return func(cfg *appConfig) error {
		cfg.assets = fsys
		return nil
	}
}

// WithBoardImage sets the image URL the page falls back to when no local
// board image is available.
//
// Returns an error if the URL is not absolute http(s).
func WithBoardImage(rawURL string) Option {
	return func(cfg *appConfig) error {
		if rawURL == "" {
			cfg.boardImageURL = ""
			return nil
		}
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("invalid board image URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("board image URL must be http or https, got %q", rawURL)
		}
		cfg.boardImageURL = rawURL
		return nil
	}
}

// WithTitle sets the page title. Defaults to "GPIOLive".
func WithTitle(title string) Option {
	return func(cfg *appConfig) error {
		cfg.title = title
		return nil
	}
}

// WithFirmware sets the version string reported by /info.
func WithFirmware(version string) Option {
	return func(cfg *appConfig) error {
		cfg.firmware = version
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *appConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithWriteTimeout bounds every write to a client. A client that stops
// reading for longer is dropped. Zero, the default, disables the bound.
//
// Returns an error if d is negative.
func WithWriteTimeout(d time.Duration) Option {
	return func(cfg *appConfig) error {
		if d < 0 {
			return errors.New("write timeout cannot be negative")
		}
		cfg.writeTimeout = d
		return nil
	}
}

// WithMetrics serves Prometheus metrics at /metrics on a separate port.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithMetrics(port int) Option {
	return func(cfg *appConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("metrics port must be between 1 and 65535")
		}
		cfg.metricsPort = port
		return nil
	}
}

// WithMetricsRegistry registers GPIOLive collectors on reg instead of a
// private registry, for applications that already expose metrics.
//
// Returns an error if reg is nil.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(cfg *appConfig) error {
		if reg == nil {
			return errors.New("metrics registry cannot be nil")
		}
		cfg.metricsRegistry = reg
		return nil
	}
}

// WithMemoryReader replaces the heap figure attached to snapshots.
// Defaults to [RuntimeMemory].
func WithMemoryReader(fn func() Memory) Option {
	return func(cfg *appConfig) error {
		if fn == nil {
			return errors.New("memory reader cannot be nil")
		}
		cfg.memory = fn
		return nil
	}
}

// WithSessionCallback registers a function called whenever an event stream
// opens or closes.
//
// Multiple callbacks may be registered; they execute in registration order
// from a single goroutine. Callbacks must be non-blocking. Panics within
// callbacks are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithSessionCallback(cb func(SessionEvent)) Option {
	return func(cfg *appConfig) error {
		if cb == nil {
			return nil
		}
		cfg.sessionCallbacks = append(cfg.sessionCallbacks, cb)
		return nil
	}
}
