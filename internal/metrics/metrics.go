// Package metrics registers the handful of prometheus counters and gauges
// an operator needs to see a cluster converge or split — ping rounds,
// elections, join attempts, publish acks, and failure events (§1, §6 of
// the expanded spec's ambient stack). It deliberately does not attempt
// the full indexed-data metrics surface named out of scope for the core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set holds every metric one discovery.Controller exposes. Nodes running
// more than one controller in-process should construct a Set per
// controller with distinct Registerer instances.
type Set struct {
	PingRoundsTotal   prometheus.Counter
	ElectionsTotal    prometheus.Counter
	JoinAttemptsTotal prometheus.Counter
	JoinRetriesTotal  prometheus.Counter

	PublishAcksTotal    prometheus.Counter
	PublishRejectsTotal prometheus.Counter
	PublishTimeoutsTotal prometheus.Counter

	NodeFailuresTotal   prometheus.Counter
	MasterFailuresTotal prometheus.Counter

	NoMasterBlock prometheus.Gauge
}

// New builds and registers a Set against reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		PingRoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zen_discovery_ping_rounds_total",
			Help: "Number of ping_and_wait rounds issued by the join thread.",
		}),
		ElectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zen_discovery_elections_total",
			Help: "Number of ElectMaster calls that returned a candidate.",
		}),
		JoinAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zen_discovery_join_attempts_total",
			Help: "Number of join attempts started by the join thread (each may send several membership.join RPCs).",
		}),
		JoinRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zen_discovery_join_retries_total",
			Help: "Number of membership.join RPCs retried after not_master_for_join.",
		}),
		PublishAcksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zen_discovery_publish_acks_total",
			Help: "Number of followers that acknowledged a published state.",
		}),
		PublishRejectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zen_discovery_publish_rejects_total",
			Help: "Number of followers that rejected a published state.",
		}),
		PublishTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zen_discovery_publish_timeouts_total",
			Help: "Number of publish rounds with at least one follower timeout.",
		}),
		NodeFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zen_discovery_node_failures_total",
			Help: "Number of followers NodesFD judged dead.",
		}),
		MasterFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zen_discovery_master_failures_total",
			Help: "Number of times MasterFD judged the believed master dead.",
		}),
		NoMasterBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zen_discovery_no_master_block",
			Help: "1 while the local node's cluster state carries NO_MASTER_BLOCK, else 0.",
		}),
	}

	reg.MustRegister(
		s.PingRoundsTotal, s.ElectionsTotal, s.JoinAttemptsTotal, s.JoinRetriesTotal,
		s.PublishAcksTotal, s.PublishRejectsTotal, s.PublishTimeoutsTotal,
		s.NodeFailuresTotal, s.MasterFailuresTotal, s.NoMasterBlock,
	)
	return s
}
