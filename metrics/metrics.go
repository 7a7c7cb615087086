// Package metrics exposes the operational counters and gauges a running
// hub needs (mutations by kind, dispatch fan-out, attached extensions,
// query validation failures, arena self-healing events), in the style of
// this codebase's other daemons' prometheus.MustRegister + promhttp.Handler
// pattern.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hubd/tree"
)

// Registry bundles every metric hubd exports.
type Registry struct {
	MutationsByKind  *prometheus.CounterVec
	DispatchFanout   prometheus.Histogram
	ExtensionsAttached prometheus.Gauge
	ExtensionsTotal  prometheus.Counter
	ExtensionsDetached prometheus.Counter
	QueryValidationErrors *prometheus.CounterVec
	ArenaCorruptionEvents prometheus.Counter
	ClientConnections prometheus.Gauge
	WatchersActive    prometheus.Gauge
}

// New constructs every metric and registers it on the default prometheus
// registry.
func New() *Registry {
	r := &Registry{
		MutationsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hubd_mutations_total",
			Help: "Mutations applied to the device tree, by event kind.",
		}, []string{"kind"}),
		DispatchFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hubd_dispatch_fanout",
			Help:    "Number of watchers notified per dispatched event.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ExtensionsAttached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hubd_extensions_attached",
			Help: "Currently attached extensions.",
		}),
		ExtensionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hubd_extensions_attached_total",
			Help: "Extensions attached since start.",
		}),
		ExtensionsDetached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hubd_extensions_detached_total",
			Help: "Extensions detached since start, for any reason.",
		}),
		QueryValidationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hubd_query_validation_errors_total",
			Help: "Query validation errors, by error.",
		}, []string{"error"}),
		ArenaCorruptionEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hubd_arena_corruption_events_total",
			Help: "Times an arena insert found a corrupt free list and rebuilt it.",
		}),
		ClientConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hubd_client_connections",
			Help: "Currently connected query clients.",
		}),
		WatchersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hubd_watchers_active",
			Help: "Currently admitted watchers, of every kind.",
		}),
	}

	prometheus.MustRegister(
		r.MutationsByKind, r.DispatchFanout, r.ExtensionsAttached, r.ExtensionsTotal,
		r.ExtensionsDetached, r.QueryValidationErrors, r.ArenaCorruptionEvents,
		r.ClientConnections, r.WatchersActive,
	)
	return r
}

// eventKindNames mirrors tree.EventKind for metric label values.
var eventKindNames = map[tree.EventKind]string{
	tree.EventExtAttached:         "ext_attached",
	tree.EventExtDetached:         "ext_detached",
	tree.EventDeviceCreated:       "device_created",
	tree.EventDeviceDeleted:       "device_deleted",
	tree.EventDeviceRenamed:       "device_renamed",
	tree.EventEntityRegistered:    "entity_registered",
	tree.EventComponentPut:        "component_put",
	tree.EventComponentSet:        "component_set",
	tree.EventGroupCreated:        "group_created",
	tree.EventGroupDeleted:        "group_deleted",
	tree.EventGroupRenamed:        "group_renamed",
	tree.EventGroupDeviceAdded:    "group_device_added",
	tree.EventGroupDeviceRemoved:  "group_device_removed",
}

// ObserveMutation records one dispatched event and how many watchers it
// reached.
func (r *Registry) ObserveMutation(kind tree.EventKind, fanout int) {
	r.MutationsByKind.WithLabelValues(eventKindNames[kind]).Inc()
	r.DispatchFanout.Observe(float64(fanout))
}

// Handler returns the promhttp handler to mount at /metrics, matching the
// rest of this codebase's promhttp.Handler() usage.
func Handler() http.Handler { return promhttp.Handler() }
