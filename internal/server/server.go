package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"mime"
	"net"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/jpalmerr/gpiolive/internal/store"
	"github.com/jpalmerr/gpiolive/internal/telemetry"
)

const (
	// DefaultStreamInterval is the pause between stream frames.
	DefaultStreamInterval = 500 * time.Millisecond

	// shutdownGrace is how long in-flight connections may finish after the
	// listener closes before they are closed forcibly.
	shutdownGrace = 5 * time.Second

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// ErrAssetMissing means the board image is not available.
var ErrAssetMissing = errors.New("asset not found")

// SnapshotBuilder produces snapshots on demand. *telemetry.Builder
// implements it.
type SnapshotBuilder interface {
	Build(ctx context.Context) telemetry.Snapshot
	Channels() []telemetry.Channel
}

// Observer receives connection and stream lifecycle signals.
// *metrics.Metrics implements it.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	RequestRouted(route string)
	StreamOpened()
	StreamClosed()
	FrameWritten()
	ObserveBuild(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()          {}
func (nopObserver) ConnectionClosed()          {}
func (nopObserver) RequestRouted(string)       {}
func (nopObserver) StreamOpened()              {}
func (nopObserver) StreamClosed()              {}
func (nopObserver) FrameWritten()              {}
func (nopObserver) ObserveBuild(time.Duration) {}

// Config holds everything a [Server] needs.
type Config struct {
	// Host is the interface to bind. Empty binds all interfaces.
	Host string

	// Port is the TCP port. Zero picks a free port.
	Port int

	// Builder produces snapshots. Required.
	Builder SnapshotBuilder

	// Page is the rendered viewer page served for page routes.
	Page []byte

	// Assets holds the board image. AssetName is its name within Assets.
	// A nil Assets or missing file makes the asset route answer 404.
	Assets    fs.FS
	AssetName string

	// Paths overrides [DefaultRoutePaths].
	Paths *RoutePaths

	// StreamInterval defaults to [DefaultStreamInterval].
	StreamInterval time.Duration

	// WriteTimeout bounds each write to a peer. Zero disables it.
	WriteTimeout time.Duration

	// Sessions records open stream sessions. Defaults to a new MemoryStore.
	Sessions store.Store

	// Observer defaults to a no-op.
	Observer Observer

	// Info contributes extra fields to the info document.
	Info func(ctx context.Context) map[string]any

	// Clock defaults to the wall clock.
	Clock Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// exchange is one parsed request on one connection.
type exchange struct {
	req    Request
	w      *connWriter
	remote string
	local  string
}

type handlerFunc func(ctx context.Context, ex *exchange) error

// Server accepts TCP connections and serves the GPIOLive routes.
//
// Every accepted socket gets its own goroutine. A panic or failure on one
// connection never reaches the accept loop or any other connection.
type Server struct {
	host           string
	port           int
	builder        SnapshotBuilder
	page           []byte
	assets         fs.FS
	assetName      string
	routes         *Routes
	handlers       map[RouteKind]handlerFunc
	streamInterval time.Duration
	writeTimeout   time.Duration
	sessions       store.Store
	observer       Observer
	info           func(ctx context.Context) map[string]any
	clock          Clock
	logger         *slog.Logger
	grace          time.Duration

	listener  net.Listener
	startedAt time.Time

	mu      sync.Mutex
	conns   map[*managedConn]struct{}
	closing bool
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewServer creates a [Server] from cfg.
//
// Returns an error if the builder is missing, the port is out of range, or
// the route paths are invalid. The server is not started until
// [Server.Start] is called.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Builder == nil {
		return nil, errors.New("snapshot builder is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port must be between 0 and 65535, got %d", cfg.Port)
	}
	if cfg.StreamInterval < 0 {
		return nil, fmt.Errorf("stream interval must not be negative, got %v", cfg.StreamInterval)
	}

	paths := DefaultRoutePaths()
	if cfg.Paths != nil {
		paths = *cfg.Paths
	}
	routes, err := NewRoutes(paths)
	if err != nil {
		return nil, fmt.Errorf("invalid routes: %w", err)
	}

	s := &Server{
		host:           cfg.Host,
		port:           cfg.Port,
		builder:        cfg.Builder,
		page:           cfg.Page,
		assets:         cfg.Assets,
		assetName:      cfg.AssetName,
		routes:         routes,
		streamInterval: cfg.StreamInterval,
		writeTimeout:   cfg.WriteTimeout,
		sessions:       cfg.Sessions,
		observer:       cfg.Observer,
		info:           cfg.Info,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		grace:          shutdownGrace,
		conns:          make(map[*managedConn]struct{}),
		done:           make(chan struct{}),
	}
	if s.streamInterval == 0 {
		s.streamInterval = DefaultStreamInterval
	}
	if s.sessions == nil {
		s.sessions = store.NewMemoryStore()
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.handlers = map[RouteKind]handlerFunc{
		RouteNotFound: s.handleNotFound,
		RoutePage:     s.handlePage,
		RouteSnapshot: s.handleSnapshot,
		RouteInfo:     s.handleInfo,
		RouteStream:   s.handleStream,
		RouteAsset:    s.handleAsset,
	}
	return s, nil
}

// Start binds the listener and begins accepting connections in a
// background goroutine.
//
// Start is non-blocking and returns once the port is bound. When ctx is
// cancelled the listener closes, in-flight connections get a 5-second grace
// period, and remaining sockets are then closed. [Server.Wait] blocks until
// that has finished.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, fmt.Sprint(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.listener = ln
	s.startedAt = s.clock.Now()

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	return nil
}

// Addr returns the bound listener address, or nil before [Server.Start].
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Sessions returns the store recording open stream sessions.
func (s *Server) Sessions() store.Store {
	return s.sessions
}

// Wait blocks until the server has shut down and every connection is closed.
func (s *Server) Wait() {
	<-s.done
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.logger.Warn("accept failed", "error", err, "retry_in", backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = 0

		mc := newManagedConn(conn)
		if !s.track(mc) {
			_ = mc.Close()
			continue
		}
		go s.serveConn(ctx, mc)
	}
}

// track registers mc and adds it to the wait group. Returns false once
// shutdown has begun.
func (s *Server) track(mc *managedConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[mc] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(mc *managedConn) {
	s.mu.Lock()
	delete(s.conns, mc)
	s.mu.Unlock()
}

func (s *Server) shutdown() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Error("listener close error", "error", err)
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(s.grace):
		s.mu.Lock()
		open := make([]*managedConn, 0, len(s.conns))
		for mc := range s.conns {
			open = append(open, mc)
		}
		s.mu.Unlock()

		s.logger.Warn("shutdown grace period elapsed, closing connections", "open", len(open))
		for _, mc := range open {
			_ = mc.Close()
		}
		<-drained
	}
	close(s.done)
}

func (s *Server) handleNotFound(_ context.Context, ex *exchange) error {
	return writeNotFound(ex.w)
}

func (s *Server) handlePage(_ context.Context, ex *exchange) error {
	return writeResponse(ex.w, http.StatusOK, contentTypeHTML, "no-cache", s.page)
}

func (s *Server) handleSnapshot(ctx context.Context, ex *exchange) error {
	started := time.Now()
	snap := s.builder.Build(ctx)
	s.observer.ObserveBuild(time.Since(started))

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return writeResponse(ex.w, http.StatusOK, contentTypeJSON, "no-cache", body)
}

func (s *Server) handleInfo(ctx context.Context, ex *exchange) error {
	channels := s.builder.Channels()
	labels := make([]string, len(channels))
	for i, ch := range channels {
		labels[i] = ch.Label
	}

	doc := map[string]any{
		"address":     ex.local,
		"uptime_s":    math.Round(s.clock.Now().Sub(s.startedAt).Seconds()*10) / 10,
		"channels":    labels,
		"interval_ms": s.streamInterval.Milliseconds(),
		"streams":     s.sessions.Count(),
		"sessions":    s.sessions.GetAll(),
	}
	if s.info != nil {
		for k, v := range s.info(ctx) {
			doc[k] = v
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode info: %w", err)
	}
	return writeResponse(ex.w, http.StatusOK, contentTypeJSON, "no-cache", body)
}

func (s *Server) handleStream(ctx context.Context, ex *exchange) error {
	sess := &streamSession{
		id:       newSessionID(),
		remote:   ex.remote,
		w:        ex.w,
		builder:  s.builder,
		interval: s.streamInterval,
		clock:    s.clock,
		sessions: s.sessions,
		observer: s.observer,
		logger:   s.logger,
	}
	return sess.run(ctx)
}

func (s *Server) handleAsset(_ context.Context, ex *exchange) error {
	if s.assets == nil || s.assetName == "" {
		_ = writeNotFound(ex.w)
		return ErrAssetMissing
	}
	data, err := fs.ReadFile(s.assets, s.assetName)
	if err != nil {
		_ = writeNotFound(ex.w)
		return fmt.Errorf("%w: %w", ErrAssetMissing, err)
	}

	contentType := mime.TypeByExtension(path.Ext(s.assetName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return writeResponse(ex.w, http.StatusOK, contentType, "public, max-age=86400", data)
}
