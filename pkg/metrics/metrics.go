// Package metrics provides Prometheus instrumentation for the bias engine:
// hill counts, replayed history, peer reads and the current bias energy.
// Metrics are registered once at package load; a Collector scopes them to
// one walker and turns into a no-op when metrics are disabled.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HillsDeposited counts kernels deposited by this walker.
	HillsDeposited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadyn_hills_deposited_total",
			Help: "Total number of Gaussian hills deposited",
		},
		[]string{"walker"},
	)

	// HillsReplayed counts kernels reconstructed from logs on restart.
	HillsReplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadyn_hills_replayed_total",
			Help: "Total number of hills replayed from logs at startup",
		},
		[]string{"walker"},
	)

	// PeerHillsRead counts kernels incorporated from peer walkers.
	PeerHillsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadyn_peer_hills_read_total",
			Help: "Total number of hills read from peer walker logs",
		},
		[]string{"walker"},
	)

	// BiasEnergy tracks the bias value at the current CV point.
	BiasEnergy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "metadyn_bias_energy",
			Help: "Bias potential at the current CV point",
		},
		[]string{"walker"},
	)

	// LastHillHeight tracks the height of the most recent deposition;
	// in well-tempered runs this decays as the bias fills in.
	LastHillHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "metadyn_last_hill_height",
			Help: "Height of the most recently deposited hill",
		},
		[]string{"walker"},
	)

	// GridSnapshots counts grid dumps written.
	GridSnapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadyn_grid_snapshots_total",
			Help: "Total number of grid snapshot files written",
		},
		[]string{"walker"},
	)
)

// Collector scopes the engine metrics to one walker id.
type Collector struct {
	walker  string
	enabled bool
}

// NewCollector creates a collector for the given walker id. When enabled is
// false every method is a no-op.
func NewCollector(walker int, enabled bool) *Collector {
	return &Collector{walker: strconv.Itoa(walker), enabled: enabled}
}

// Deposited records one deposition with its height.
func (c *Collector) Deposited(height float64) {
	if !c.enabled {
		return
	}
	HillsDeposited.WithLabelValues(c.walker).Inc()
	LastHillHeight.WithLabelValues(c.walker).Set(height)
}

// Replayed records hills reconstructed from a log at startup.
func (c *Collector) Replayed(n int) {
	if !c.enabled || n == 0 {
		return
	}
	HillsReplayed.WithLabelValues(c.walker).Add(float64(n))
}

// PeerRead records hills incorporated from peers.
func (c *Collector) PeerRead(n int) {
	if !c.enabled || n == 0 {
		return
	}
	PeerHillsRead.WithLabelValues(c.walker).Add(float64(n))
}

// Bias records the bias at the current CV point.
func (c *Collector) Bias(v float64) {
	if !c.enabled {
		return
	}
	BiasEnergy.WithLabelValues(c.walker).Set(v)
}

// Snapshot records one grid dump.
func (c *Collector) Snapshot() {
	if !c.enabled {
		return
	}
	GridSnapshots.WithLabelValues(c.walker).Inc()
}
