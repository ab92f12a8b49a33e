package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-slp/protocol"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	config := DefaultConfig()
	config.Registry = reg
	return New(config), reg
}

func TestNew(t *testing.T) {
	t.Run("registers all collectors", func(t *testing.T) {
		m, reg := newTestMetrics(t)
		m.ConnectionEvicted(ReasonTimeout)
		m.PacketHandled(protocol.StateStatus, "PingRequest")

		families, err := reg.Gather()
		require.NoError(t, err)

		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}

		assert.ElementsMatch(t, []string{
			"slp_connections_accepted_total",
			"slp_connections_rejected_total",
			"slp_connections_evicted_total",
			"slp_packets_handled_total",
			"slp_connections_live",
			"slp_tick_pass_duration_seconds",
			"slp_tick_pass_overruns_total",
		}, names)
	})

	t.Run("panics on duplicate registration", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		config := DefaultConfig()
		config.Registry = reg
		New(config)

		assert.Panics(t, func() { New(config) })
	})
}

func TestMetrics_Record(t *testing.T) {
	t.Run("counts connections and evictions", func(t *testing.T) {
		m, _ := newTestMetrics(t)

		m.ConnectionAccepted()
		m.ConnectionAccepted()
		m.ConnectionRejected()
		m.ConnectionEvicted(ReasonCompleted)
		m.ConnectionEvicted(ReasonTimeout)
		m.ConnectionEvicted(ReasonTimeout)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.accepted))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.evictions.WithLabelValues(ReasonCompleted)))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.evictions.WithLabelValues(ReasonTimeout)))
	})

	t.Run("labels packets by state", func(t *testing.T) {
		m, _ := newTestMetrics(t)

		m.PacketHandled(protocol.StateHandshake, "Handshake")
		m.PacketHandled(protocol.StateStatus, "StatusRequest")

		assert.Equal(t, 1.0, testutil.ToFloat64(m.packets.WithLabelValues("Handshake", "Handshake")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.packets.WithLabelValues("Status", "StatusRequest")))
	})

	t.Run("tracks live connections and overruns", func(t *testing.T) {
		m, reg := newTestMetrics(t)

		m.SetLive(3)
		m.PassCompleted(10*time.Millisecond, 50*time.Millisecond)
		m.PassCompleted(80*time.Millisecond, 50*time.Millisecond)

		assert.Equal(t, 3.0, testutil.ToFloat64(m.live))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.passOverruns))

		families, err := reg.Gather()
		require.NoError(t, err)
		for _, f := range families {
			if f.GetName() == "slp_tick_pass_duration_seconds" {
				assert.Equal(t, uint64(2), f.GetMetric()[0].GetHistogram().GetSampleCount())
			}
		}
	})

	t.Run("ignores calls on nil metrics", func(t *testing.T) {
		var m *Metrics

		assert.NotPanics(t, func() {
			m.ConnectionAccepted()
			m.ConnectionRejected()
			m.ConnectionEvicted(ReasonError)
			m.PacketHandled(protocol.StateStatus, "PingRequest")
			m.SetLive(1)
			m.PassCompleted(time.Second, time.Millisecond)
		})
	})
}
