// Package metrics exposes Prometheus instrumentation for the acceptor, the
// connection state machine and the tick loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cyberinferno/go-slp/protocol"
)

// Eviction reasons used as the "reason" label.
const (
	ReasonCompleted = "completed"
	ReasonTimeout   = "timeout"
	ReasonError     = "error"
	ReasonShutdown  = "shutdown"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "slp").
	Namespace string

	// Buckets are the histogram buckets for pass duration in seconds.
	Buckets []float64

	// Registry is the registerer collectors are added to.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// DefaultConfig returns buckets sized around a 50ms tick.
func DefaultConfig() Config {
	return Config{
		Namespace: "slp",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	accepted     prometheus.Counter
	rejected     prometheus.Counter
	evictions    *prometheus.CounterVec
	packets      *prometheus.CounterVec
	live         prometheus.Gauge
	passDuration prometheus.Histogram
	passOverruns prometheus.Counter
}

// New creates and registers the collectors.
//
// Parameters:
//   - config: Namespace, buckets and registry to use
//
// Returns:
//   - A new *Metrics
func New(config Config) *Metrics {
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}

	if len(config.Buckets) == 0 {
		config.Buckets = DefaultConfig().Buckets
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted connections",
		}),

		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "connections_rejected_total",
			Help:      "Total number of connections closed by the accept rate limit",
		}),

		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "connections_evicted_total",
			Help:      "Total number of connections removed from the tick loop",
		}, []string{"reason"}),

		packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "packets_handled_total",
			Help:      "Total number of serverbound packets decoded",
		}, []string{"state", "packet"}),

		live: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "connections_live",
			Help:      "Number of connections currently ticked",
		}),

		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "tick_pass_duration_seconds",
			Help:      "Duration of one tick pass in seconds",
			Buckets:   config.Buckets,
		}),

		passOverruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "tick_pass_overruns_total",
			Help:      "Total number of tick passes that took longer than the tick period",
		}),
	}
}

// ConnectionAccepted counts one accepted connection.
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}

	m.accepted.Inc()
}

// ConnectionRejected counts one connection refused by the accept limiter.
func (m *Metrics) ConnectionRejected() {
	if m == nil {
		return
	}

	m.rejected.Inc()
}

// ConnectionEvicted counts one eviction with the given reason.
func (m *Metrics) ConnectionEvicted(reason string) {
	if m == nil {
		return
	}

	m.evictions.WithLabelValues(reason).Inc()
}

// PacketHandled counts one decoded packet. It satisfies connection.Observer.
func (m *Metrics) PacketHandled(state protocol.State, packet string) {
	if m == nil {
		return
	}

	m.packets.WithLabelValues(state.String(), packet).Inc()
}

// SetLive records the size of the live set.
func (m *Metrics) SetLive(n int) {
	if m == nil {
		return
	}

	m.live.Set(float64(n))
}

// PassCompleted records the duration of a pass and whether it overran period.
func (m *Metrics) PassCompleted(d, period time.Duration) {
	if m == nil {
		return
	}

	m.passDuration.Observe(d.Seconds())
	if d > period {
		m.passOverruns.Inc()
	}
}
