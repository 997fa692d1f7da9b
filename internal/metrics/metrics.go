package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gpiolive"

// Metrics holds the collectors updated by the server and snapshot builder.
//
// All methods are safe for concurrent use and are no-ops on a nil receiver,
// so callers can pass a nil *Metrics when metrics are disabled.
type Metrics struct {
	connections   prometheus.Counter
	activeConns   prometheus.Gauge
	requests      *prometheus.CounterVec
	activeStreams prometheus.Gauge
	frames        prometheus.Counter
	channelFaults *prometheus.CounterVec
	buildLatency  prometheus.Histogram
}

// New creates the collectors and registers them on reg.
// Returns an error if any collector is already registered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total TCP connections accepted.",
		}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently open.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Parsed requests by resolved route.",
		}, []string{"route"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Event stream sessions currently open.",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Snapshot frames written to event streams.",
		}),
		channelFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_read_faults_total",
			Help:      "Channel reads that failed and were rendered as absent.",
		}, []string{"channel"}),
		buildLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_build_seconds",
			Help:      "Time spent sampling every channel for one snapshot.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}

	collectors := []prometheus.Collector{
		m.connections, m.activeConns, m.requests, m.activeStreams,
		m.frames, m.channelFaults, m.buildLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler returns the /metrics handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.activeConns.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConns.Dec()
}

func (m *Metrics) RequestRouted(route string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route).Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

func (m *Metrics) FrameWritten() {
	if m == nil {
		return
	}
	m.frames.Inc()
}

func (m *Metrics) ChannelFault(label string) {
	if m == nil {
		return
	}
	m.channelFaults.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.buildLatency.Observe(d.Seconds())
}
