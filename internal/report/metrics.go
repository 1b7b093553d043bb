// internal/report/metrics.go
package report

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalnine/rpltrace/internal/protocol"
)

// RunMetrics exports run summaries in the Prometheus text format, for the
// node_exporter textfile collector
type RunMetrics struct {
	registry *prometheus.Registry

	pdr                *prometheus.GaugeVec
	latency            *prometheus.GaugeVec
	dutyCycle          *prometheus.GaugeVec
	channelUtilization *prometheus.GaugeVec
	formationTime      *prometheus.GaugeVec
	packetsSent        *prometheus.GaugeVec
	packetsReceived    *prometheus.GaugeVec
	parseLines         *prometheus.GaugeVec
}

// NewRunMetrics creates an empty metrics set on its own registry
func NewRunMetrics() *RunMetrics {
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rpltrace",
			Name:      name,
			Help:      help,
		}, append([]string{"job"}, labels...))
	}

	m := &RunMetrics{
		registry:           prometheus.NewRegistry(),
		pdr:                gauge("pdr_percent", "End-to-end packet delivery ratio"),
		latency:            gauge("latency_seconds", "Mean round-trip latency"),
		dutyCycle:          gauge("duty_cycle_percent", "Mean radio duty cycle"),
		channelUtilization: gauge("channel_utilization_percent", "Mean channel utilization"),
		formationTime:      gauge("network_formation_seconds", "Time of the first request sent"),
		packetsSent:        gauge("packets_sent", "Requests sent, in-flight tail excluded"),
		packetsReceived:    gauge("packets_received", "Requests answered"),
		parseLines:         gauge("parse_total", "Parse pass counters by outcome", "outcome"),
	}
	m.registry.MustRegister(
		m.pdr, m.latency, m.dutyCycle, m.channelUtilization,
		m.formationTime, m.packetsSent, m.packetsReceived, m.parseLines,
	)
	return m
}

// Observe records the figures of one run
func (m *RunMetrics) Observe(job string, r *Report, stats protocol.Stats) {
	g := r.GlobalStats
	setIf := func(vec *prometheus.GaugeVec, v *float64) {
		if v != nil {
			vec.WithLabelValues(job).Set(*v)
		}
	}
	setIf(m.pdr, g.PDR)
	setIf(m.latency, g.Latency)
	setIf(m.dutyCycle, g.DutyCycle)
	setIf(m.channelUtilization, g.ChannelUtilization)
	setIf(m.formationTime, g.NetworkFormationTime)
	m.packetsSent.WithLabelValues(job).Set(float64(g.PacketsSent))
	m.packetsReceived.WithLabelValues(job).Set(float64(g.PacketsReceived))

	outcomes := map[string]int{
		"total":            stats.Lines,
		"malformed":        stats.Malformed,
		"unknown_module":   stats.UnknownModule,
		"unmatched":        stats.Unmatched,
		"correlation_miss": stats.CorrelationMisses,
		"zero_total":       stats.ZeroTotal,
		"topology_cycle":   stats.TopologyCycles,
		"dropped_frame":    stats.DroppedFrames,
	}
	for outcome, n := range outcomes {
		m.parseLines.WithLabelValues(job, outcome).Set(float64(n))
	}
}

// WriteFile writes the metrics atomically to path
func (m *RunMetrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
