package ud

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label names, following the liveness package's metrics.go convention
// of naming every label used across this package's metrics once.
const (
	labelPeer    = "peer"
	labelReason  = "reason"
	labelFrom    = "state_from"
	labelTo      = "state_to"
	labelOutcome = "outcome"
)

// metricsSet holds every Prometheus series this package exports,
// namespaced ud_* the way the liveness package namespaces its own
// doublezero_liveness_* series. Each Iface owns its own metricsSet
// registered against a caller-supplied prometheus.Registerer (rather
// than the global default registerer liveness's package-level vars
// use) so multiple interfaces, as in tests, don't collide on
// registration.
type metricsSet struct {
	poolExhausted     *prometheus.CounterVec
	retransmits       *prometheus.CounterVec
	acksSent          *prometheus.CounterVec
	acksReceived      *prometheus.CounterVec
	windowStalls      *prometheus.CounterVec
	connMatchOutcomes *prometheus.CounterVec
	epStateTransitions *prometheus.CounterVec
	cwnd              *prometheus.GaugeVec
	rxDropped         *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metricsSet {
	f := promauto.With(reg)
	return &metricsSet{
		poolExhausted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ud_pool_exhausted_total",
			Help: "Count of skb pool allocation failures by pool.",
		}, []string{"pool"}),
		retransmits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ud_retransmits_total",
			Help: "Count of retransmission epochs by peer.",
		}, []string{labelPeer}),
		acksSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ud_acks_sent_total",
			Help: "Count of explicit ACK control packets sent.",
		}, []string{labelPeer}),
		acksReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ud_acks_received_total",
			Help: "Count of cumulative ACKs processed from peers.",
		}, []string{labelPeer}),
		windowStalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ud_window_stalls_total",
			Help: "Count of sends deferred to the pending arbiter due to a full window.",
		}, []string{labelPeer}),
		connMatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ud_conn_match_outcomes_total",
			Help: "Count of connection-match registry outcomes by kind.",
		}, []string{labelOutcome}),
		epStateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ud_endpoint_state_transitions_total",
			Help: "Count of endpoint FSM state transitions.",
		}, []string{labelFrom, labelTo}),
		cwnd: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ud_congestion_window",
			Help: "Current congestion window per peer.",
		}, []string{labelPeer}),
		rxDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ud_rx_dropped_total",
			Help: "Count of received packets dropped, by reason.",
		}, []string{labelReason}),
	}
}
