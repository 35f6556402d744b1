// Package services – Prometheus instrumentation for the dispatch pipeline.
//
// Labels are kept to (site, type) at most so cardinality stays bounded by
// the fleet topology rather than by traffic.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// cmdProposed counts accepted proposals by site and command type.
	cmdProposed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "command_proposed_total",
			Help: "Total number of accepted command proposals.",
		},
		[]string{"site", "type"},
	)

	// cmdDispatched counts commands handed to agents under a lease.
	cmdDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "command_dispatched_total",
			Help: "Total number of commands dispatched to agents.",
		},
		[]string{"site", "type"},
	)

	// cmdRateLimited counts claims released because the per-site budget for
	// the command type was exhausted.
	cmdRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "command_rate_limited_total",
			Help: "Total number of dispatch attempts rejected by the rate limiter.",
		},
		[]string{"site", "type"},
	)

	// ackReplays counts idempotent acknowledgment replays served without
	// state mutation.
	ackReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "command_ack_replays_total",
			Help: "Total number of acknowledgments identified as replays.",
		},
	)

	// leaseReclaims counts leases recovered by the background sweep.
	leaseReclaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "command_lease_reclaims_total",
			Help: "Total number of expired leases reclaimed by the recovery sweep.",
		},
		[]string{"outcome"}, // requeued | failed
	)
)

func init() {
	prometheus.MustRegister(cmdProposed, cmdDispatched, cmdRateLimited, ackReplays, leaseReclaims)
}
