// Package metrics exposes flighttrack's prometheus collectors.
//
// Collectors live on a private registry so that several clients (and tests)
// can coexist in one process.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unklstewy/flighttrack/pkg/tracking"
)

const namespace = "flighttrack"

// Metrics implements tracking.Observer and gateway.RequestObserver.
type Metrics struct {
	registry *prometheus.Registry

	samplesAccepted prometheus.Counter
	samplesRejected prometheus.Counter
	samplesReplaced prometheus.Counter
	pathEvents      *prometheus.CounterVec
	trackedFlights  prometheus.Gauge

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	resolves   *prometheus.CounterVec
	superseded *prometheus.CounterVec
	streams    prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		samplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_accepted_total",
			Help:      "Tracking samples accepted into a flight path.",
		}),
		samplesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_rejected_total",
			Help:      "Tracking records rejected by validation or lifecycle checks.",
		}),
		samplesReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_replaced_total",
			Help:      "Accepted samples that replaced one with the same timestamp.",
		}),
		pathEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_events_total",
			Help:      "Flight path mutations by kind.",
		}, []string{"kind"}),
		trackedFlights: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_flights",
			Help:      "Flights currently holding samples.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend HTTP attempts by operation and status code (0 = no response).",
		}, []string{"operation", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend HTTP attempt latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"operation"}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_resolves_total",
			Help:      "Position queries by outcome.",
		}, []string{"outcome"}),
		superseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superseded_results_total",
			Help:      "Backend results discarded because a newer request replaced them.",
		}, []string{"kind"}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scene_streams",
			Help:      "Open websocket scene streams.",
		}),
	}

	m.registry.MustRegister(
		m.samplesAccepted, m.samplesRejected, m.samplesReplaced,
		m.pathEvents, m.trackedFlights,
		m.requests, m.requestDuration,
		m.resolves, m.superseded, m.streams,
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAssembly implements tracking.Observer.
func (m *Metrics) ObserveAssembly(_ string, accepted, rejected, replaced int) {
	m.samplesAccepted.Add(float64(accepted))
	m.samplesRejected.Add(float64(rejected))
	m.samplesReplaced.Add(float64(replaced))
}

// ObserveRequest implements gateway.RequestObserver.
func (m *Metrics) ObserveRequest(operation string, statusCode int, d time.Duration) {
	m.requests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// WatchStore keeps the path gauges current. The returned function stops
// watching.
func (m *Metrics) WatchStore(store *tracking.PathStore) (stop func()) {
	return store.Subscribe(func(ev tracking.PathEvent) {
		m.pathEvents.WithLabelValues(string(ev.Kind)).Inc()
		m.trackedFlights.Set(float64(len(store.Flights())))
	})
}

// ObserveResolve counts a position query.
func (m *Metrics) ObserveResolve(found bool) {
	outcome := "found"
	if !found {
		outcome = "not_found"
	}
	m.resolves.WithLabelValues(outcome).Inc()
}

// ObserveSuperseded counts a discarded result of the given request kind.
func (m *Metrics) ObserveSuperseded(kind string) {
	m.superseded.WithLabelValues(kind).Inc()
}

// StreamOpened and StreamClosed track websocket scene subscribers.
func (m *Metrics) StreamOpened() { m.streams.Inc() }
func (m *Metrics) StreamClosed() { m.streams.Dec() }
