package hub

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a prometheus.Collector exposing Hub-wide gauges and
// counters. A host process registers it with its own registry; this
// package never mounts an HTTP handler itself.
type Metrics struct {
	activeStreams     prometheus.Gauge
	activeSubscribers prometheus.Gauge
	framesRelayed     prometheus.Counter
	packetsRelayed    prometheus.Counter
	subscriberEvicted prometheus.Counter
}

// NewMetrics constructs a Metrics collector. namespace/subsystem follow
// the usual prometheus.Opts convention (e.g. "streamhub", "hub").
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "active_streams",
			Help: "Number of streams currently in the Active state.",
		}),
		activeSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "active_subscribers",
			Help: "Number of subscriber registrations across all streams.",
		}),
		framesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "frames_relayed_total",
			Help: "Total FrameData items received from publishers for fan-out.",
		}),
		packetsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "packets_relayed_total",
			Help: "Total PacketData items received from publishers for fan-out.",
		}),
		subscriberEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "subscriber_evicted_total",
			Help: "Total subscribers removed due to a closed or failing data channel.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.activeStreams.Describe(ch)
	m.activeSubscribers.Describe(ch)
	m.framesRelayed.Describe(ch)
	m.packetsRelayed.Describe(ch)
	m.subscriberEvicted.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.activeStreams.Collect(ch)
	m.activeSubscribers.Collect(ch)
	m.framesRelayed.Collect(ch)
	m.packetsRelayed.Collect(ch)
	m.subscriberEvicted.Collect(ch)
}

// noopMetrics is used when a Hub is constructed without a Metrics
// instance, so the hot path never needs a nil check.
var noopMetrics = &Metrics{
	activeStreams:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "noop_active_streams"}),
	activeSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{Name: "noop_active_subscribers"}),
	framesRelayed:     prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_frames_relayed"}),
	packetsRelayed:    prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_packets_relayed"}),
	subscriberEvicted: prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_subscriber_evicted"}),
}
