// Package metrics exports relay runtime milestones in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

const namespace = "relaychain"

// Recorder implements initializer.Observer on top of a private registry.
type Recorder struct {
	registry *prometheus.Registry

	blocks            prometheus.Counter
	blockWeight       prometheus.Histogram
	bufferedChanges   prometheus.Counter
	appliedChanges    prometheus.Counter
	supersededChanges prometheus.Counter
	session           prometheus.Gauge
	validators        prometheus.Gauge
	halts             prometheus.Counter
}

var _ initializer.Observer = (*Recorder)(nil)

// New builds a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_initialized_total",
			Help:      "Blocks whose subsystems ran their initialize hooks.",
		}),
		blockWeight: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_initialize_weight",
			Help:      "Summed initialize weight per block.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		bufferedChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_changes_buffered_total",
			Help:      "Session changes announced and buffered for the end of the block.",
		}),
		appliedChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_changes_applied_total",
			Help:      "Session changes applied at block finalization.",
		}),
		supersededChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_changes_superseded_total",
			Help:      "Buffered session changes discarded in favour of a later one in the same block.",
		}),
		session: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_index",
			Help:      "Index of the most recently applied session.",
		}),
		validators: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_validators",
			Help:      "Active validators in the most recently applied session.",
		}),
		halts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_halts_total",
			Help:      "Fatal block failures that halted the chain.",
		}),
	}
	r.registry.MustRegister(
		r.blocks,
		r.blockWeight,
		r.bufferedChanges,
		r.appliedChanges,
		r.supersededChanges,
		r.session,
		r.validators,
		r.halts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// BlockInitialized counts the block and observes its weight.
func (r *Recorder) BlockInitialized(_ primitives.BlockNumber, weight primitives.Weight) {
	r.blocks.Inc()
	r.blockWeight.Observe(float64(weight))
}

// SessionChangeBuffered counts an announcement.
func (r *Recorder) SessionChangeBuffered(primitives.SessionIndex) {
	r.bufferedChanges.Inc()
}

// SessionApplied records the applied session and how many changes it superseded.
func (r *Recorder) SessionApplied(notification *initializer.SessionChangeNotification, superseded int) {
	r.appliedChanges.Inc()
	r.supersededChanges.Add(float64(superseded))
	r.session.Set(float64(notification.SessionIndex))
	r.validators.Set(float64(len(notification.Validators)))
}

// ChainHalted counts a fatal block failure.
func (r *Recorder) ChainHalted() {
	r.halts.Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
