package gpiolive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/gpiolive/dashboard"
	"github.com/jpalmerr/gpiolive/internal/metrics"
	"github.com/jpalmerr/gpiolive/internal/server"
	"github.com/jpalmerr/gpiolive/internal/store"
	"github.com/jpalmerr/gpiolive/internal/telemetry"
)

const (
	defaultPort           = 8081
	defaultStreamInterval = server.DefaultStreamInterval
	defaultFirmware       = "dev"

	// boardImageName is looked up in the assets filesystem.
	boardImageName = "board.png"

	metricsShutdownTimeout = 5 * time.Second
)

// App is the main orchestrator: it samples channels from a [Source] and
// serves the viewer page, snapshot endpoint and event stream.
//
// App is created using [New] with functional options and started with
// [App.Start]. The typical lifecycle is:
//
//	app, err := gpiolive.New(
//	    gpiolive.WithSource(src),
//	    gpiolive.WithChannels(channels...),
//	)
//	if err != nil {
//	    slog.Error("failed to create gpiolive", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	app.Start(ctx) // blocks until context cancelled
type App struct {
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
	registry         *prometheus.Registry
	metrics          *metrics.Metrics
	builder          *telemetry.Builder
	sessionCallbacks []func(SessionEvent)
}

// ChannelState is one channel's reading and the level it classifies to.
type ChannelState struct {
	Channel Channel
	Sample  Sample
	Level   Level
}

// New creates a new [App] with the given options.
//
// A source and at least one channel are required. Other options have
// sensible defaults:
//   - Port: 8081
//   - Stream interval: 500ms
//   - VRef: 3.3
//   - Classification: voltage first, 2.0 V threshold
//
// Returns an error if any option is invalid, no channels are configured,
// channel ids or labels repeat, or the metrics port equals the HTTP port.
func New(opts ...Option) (*App, error) {
	cfg := &appConfig{
		firmware:       defaultFirmware,
		port:           defaultPort,
		streamInterval: defaultStreamInterval,
		vref:           DefaultVRef,
		classification: DefaultClassification(),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.source == nil {
		return nil, errors.New("a source is required")
	}
	if len(cfg.channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	if cfg.metricsPort != 0 && cfg.metricsPort == cfg.port {
		return nil, fmt.Errorf("metrics port %d must differ from the HTTP port", cfg.metricsPort)
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.metricsRegistry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	tchannels := make([]telemetry.Channel, len(cfg.channels))
	for i, ch := range cfg.channels {
		tchannels[i] = ch.toTelemetry()
	}

	var memory telemetry.MemoryReader
	if cfg.memory != nil {
		memory = cfg.memory
	}

	builder, err := telemetry.NewBuilder(telemetry.Config{
		Channels: tchannels,
		Source:   cfg.source,
		VRef:     cfg.vref,
		Memory:   memory,
		OnFault: func(ch telemetry.Channel, _ error) {
			m.ChannelFault(ch.Label)
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	channels := make([]Channel, len(cfg.channels))
	copy(channels, cfg.channels)

	return &App{
		title:            cfg.title,
		firmware:         cfg.firmware,
		channels:         channels,
		source:           cfg.source,
		host:             cfg.host,
		port:             cfg.port,
		streamInterval:   cfg.streamInterval,
		vref:             cfg.vref,
		classification:   cfg.classification,
		assets:           cfg.assets,
		boardImageURL:    cfg.boardImageURL,
		logger:           logger,
		writeTimeout:     cfg.writeTimeout,
		metricsPort:      cfg.metricsPort,
		registry:         registry,
		metrics:          m,
		builder:          builder,
		sessionCallbacks: cfg.sessionCallbacks,
	}, nil
}

// Start serves the viewer until ctx is cancelled.
//
// Start is a blocking call. During execution:
//
//   - The HTTP server listens on the configured port
//   - Every /events client receives one snapshot per stream interval
//   - Session callbacks fire as streams open and close
//   - Metrics are served on the metrics port, when configured
//
// On cancellation in-flight streams finish their current frame and the
// server drains. Returns nil on graceful shutdown and an error if a
// listener cannot bind.
func (a *App) Start(ctx context.Context) error {
	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	page, err := a.renderPage()
	if err != nil {
		return err
	}

	var metricsLn net.Listener
	if a.metricsPort > 0 {
		addr := net.JoinHostPort(a.host, strconv.Itoa(a.metricsPort))
		metricsLn, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to bind metrics port %d: %w", a.metricsPort, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	sessions := store.NewMemoryStore()
	events := sessions.Subscribe()

	srv, err := server.NewServer(server.Config{
		Host:           a.host,
		Port:           a.port,
		Builder:        a.builder,
		Page:           page,
		Assets:         a.assets,
		AssetName:      boardImageName,
		StreamInterval: a.streamInterval,
		WriteTimeout:   a.writeTimeout,
		Sessions:       sessions,
		Observer:       a.metrics,
		Info:           a.info,
		Logger:         a.logger,
	})
	if err == nil {
		err = srv.Start(gctx)
	}
	if err != nil {
		sessions.Unsubscribe(events)
		if metricsLn != nil {
			_ = metricsLn.Close()
		}
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info("gpiolive starting", "channels", len(a.channels), "interval", a.streamInterval.String())
	a.logger.Info("GPIO viewer available", "url", fmt.Sprintf("http://%s:%d/", displayHost(a.host), a.port))

	g.Go(func() error {
		a.consumeSessions(events)
		return nil
	})
	g.Go(func() error {
		srv.Wait()
		sessions.Unsubscribe(events)
		return nil
	})
	if metricsLn != nil {
		g.Go(func() error {
			return a.serveMetrics(gctx, metricsLn)
		})
	}

	err = g.Wait()
	a.logger.Info("gpiolive stopped")
	return err
}

// Read samples every channel once and classifies it, without serving.
func (a *App) Read(ctx context.Context) []ChannelState {
	snap := a.builder.Build(ctx)
	states := make([]ChannelState, len(snap.Readings))
	for i, r := range snap.Readings {
		ch := a.channels[i]
		states[i] = ChannelState{
			Channel: ch,
			Sample:  r.Sample,
			Level:   Classify(ch, r.Sample, a.classification),
		}
	}
	return states
}

// Snapshot samples every channel once and returns the JSON document served
// at /data.
func (a *App) Snapshot(ctx context.Context) ([]byte, error) {
	return json.Marshal(a.builder.Build(ctx))
}

// Channels returns a copy of the configured channels.
func (a *App) Channels() []Channel {
	cp := make([]Channel, len(a.channels))
	copy(cp, a.channels)
	return cp
}

// Port returns the configured HTTP port.
func (a *App) Port() int {
	return a.port
}

// StreamInterval returns the pause between event stream frames.
func (a *App) StreamInterval() time.Duration {
	return a.streamInterval
}

// Classification returns the configured classification policy.
func (a *App) Classification() ClassificationPolicy {
	return a.classification
}

// Registry returns the registry GPIOLive metrics are registered on.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

func (a *App) renderPage() ([]byte, error) {
	pins := make([]dashboard.Pin, len(a.channels))
	for i, ch := range a.channels {
		pos, placed := ch.Position()
		pins[i] = dashboard.Pin{
			Label:    ch.label,
			X:        pos.X,
			Y:        pos.Y,
			Placed:   placed,
			Analog:   ch.analog,
			Reserved: ch.reserved,
		}
	}

	image := a.boardImageURL
	if a.hasLocalImage() {
		image = "/" + boardImageName
	}

	page, err := dashboard.Render(dashboard.Page{
		Title:           a.title,
		ImageURL:        image,
		Pins:            pins,
		VoltagePriority: a.classification.VoltagePriority,
		ThresholdVolts:  a.classification.ThresholdVolts,
		VRef:            a.vref,
		StreamPath:      "/events",
		SnapshotPath:    "/data",
		PollInterval:    a.streamInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render viewer page: %w", err)
	}
	return page, nil
}

func (a *App) hasLocalImage() bool {
	if a.assets == nil {
		return false
	}
	_, err := fs.Stat(a.assets, boardImageName)
	return err == nil
}

// info supplies the /info fields the server does not know about.
func (a *App) info(ctx context.Context) map[string]any {
	var system any
	if facts, err := a.builder.SystemInfo(ctx); err != nil {
		a.logger.Debug("system info unavailable", "error", err)
	} else if facts != nil {
		system = facts
	}
	return map[string]any{
		"firmware": a.firmware,
		"classification": map[string]any{
			"voltage_priority": a.classification.VoltagePriority,
			"threshold_v":      a.classification.ThresholdVolts,
		},
		"system": system,
	}
}

// consumeSessions logs stream lifecycle events and fans them out to
// callbacks until events is closed.
func (a *App) consumeSessions(events <-chan store.Event) {
	for ev := range events {
		pub := storeEventToPublic(ev)

		switch pub.Type {
		case SessionOpened:
			a.logger.Info("stream opened", "session_id", pub.ID, "remote", pub.Remote)
		case SessionClosed:
			attrs := []any{
				"session_id", pub.ID,
				"remote", pub.Remote,
				"frames", pub.Frames,
				"duration", pub.ClosedAt.Sub(pub.OpenedAt).Round(time.Millisecond).String(),
			}
			if pub.Err != nil {
				attrs = append(attrs, "error", pub.Err.Error())
			}
			a.logger.Info("stream closed", attrs...)
		}

		for _, cb := range a.sessionCallbacks {
			invokeCallbackSafe(cb, pub, a.logger)
		}
	}
}

func (a *App) serveMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	a.logger.Info("metrics available", "url", fmt.Sprintf("http://%s:%d/metrics", displayHost(a.host), a.metricsPort))

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("metrics server shutdown error", "error", err)
	}
	return nil
}
