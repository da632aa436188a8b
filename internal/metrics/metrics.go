package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace for all Gatherings metrics
const namespace = "gatherings"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// RSVPUpsertsTotal counts RSVP upserts by outcome.
var RSVPUpsertsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rsvp_upserts_total",
		Help:      "Total number of RSVP upserts",
	},
	[]string{"result", "status"}, // result: created|updated
)

// ReviewCreatesTotal counts review create attempts that reached the store.
var ReviewCreatesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "review_creates_total",
		Help:      "Total number of review create attempts that reached the store",
	},
	[]string{"result"}, // result: created|duplicate
)

// EventMutationsTotal counts successful event writes.
var EventMutationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_mutations_total",
		Help:      "Total number of successful event mutations",
	},
	[]string{"action"}, // action: create|update|invitees|delete
)

// AuthorizationDenialsTotal counts requests rejected by the visibility or
// mutation policies.
var AuthorizationDenialsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_denials_total",
		Help:      "Total number of operations rejected by an authorization policy",
	},
	[]string{"resource", "reason"}, // reason: unauthenticated|forbidden
)

// Init initializes the metrics registry and sets version information
func Init(version, commit, buildDate string) {
	// Register default Go metrics (memory, goroutines, GC, etc.)
	Registry.MustRegister(collectors.NewGoCollector())

	// Register process metrics (CPU, memory, file descriptors)
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
