package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RoomsCreated     prometheus.Counter
	RoundsStarted    prometheus.Counter
	AnswersSubmitted prometheus.Counter
	CuppingScores    *prometheus.CounterVec
	Broadcasts       *prometheus.CounterVec
	RealtimeClients  prometheus.Gauge
}

// New registers the service collectors on a private registry so tests can
// build as many instances as they need.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RoomsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "cupping_rooms_created_total",
			Help: "Rooms created.",
		}),
		RoundsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "cupping_rounds_started_total",
			Help: "Triangulation rounds started.",
		}),
		AnswersSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "cupping_answers_submitted_total",
			Help: "Triangulation answer sheets submitted.",
		}),
		CuppingScores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cupping_scores_submitted_total",
			Help: "Cupping scores submitted by form type.",
		}, []string{"form"}),
		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cupping_broadcasts_total",
			Help: "Realtime events published by event name.",
		}, []string{"event"}),
		RealtimeClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "cupping_realtime_clients",
			Help: "Connected realtime websocket clients.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
