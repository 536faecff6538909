// Package metrics exposes relay statistics as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pos_relay"

// Recorder implements domain.Metrics on top of a dedicated registry.
type Recorder struct {
	registry *prometheus.Registry

	connections   prometheus.Gauge
	rooms         prometheus.Gauge
	events        *prometheus.CounterVec
	delivered     prometheus.Counter
	dropped       prometheus.Counter
	publishErrors prometheus.Counter
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of connected clients",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Number of outlet rooms with at least one member",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events by name and outcome",
		}, []string{"event", "outcome"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Frames queued to a client",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_deliveries_total",
			Help:      "Frames that could not be queued to a client",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "publish_errors_total",
			Help:      "Broadcasts that could not be published to other instances",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.connections,
		r.rooms,
		r.events,
		r.delivered,
		r.dropped,
		r.publishErrors,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) SetConnections(n int) { r.connections.Set(float64(n)) }
func (r *Recorder) SetRooms(n int)       { r.rooms.Set(float64(n)) }
func (r *Recorder) IncDelivered()        { r.delivered.Inc() }
func (r *Recorder) IncDropped()          { r.dropped.Inc() }
func (r *Recorder) IncPublishErrors()    { r.publishErrors.Inc() }

func (r *Recorder) IncEvent(event, outcome string) {
	r.events.WithLabelValues(event, outcome).Inc()
}
