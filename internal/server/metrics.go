package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg             *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	computations    *prometheus.CounterVec
	computeDuration *prometheus.HistogramVec
	openTies        prometheus.Gauge
	wsClients       prometheus.Gauge
}

// NewMetrics registers the server's collectors on a private registry so
// several servers (tests) can coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gravtie_http_requests_total",
			Help: "HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gravtie_http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gravtie_computations_total",
			Help: "Land tie and bias computations by outcome.",
		}, []string{"kind", "outcome"}),
		computeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gravtie_computation_duration_seconds",
			Help:    "Time spent in land tie and bias computations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"kind"}),
		openTies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gravtie_open_ties",
			Help: "Ties held in memory.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gravtie_ws_clients",
			Help: "Connected WebSocket clients.",
		}),
	}
	m.reg.MustRegister(
		m.requests,
		m.requestDuration,
		m.computations,
		m.computeDuration,
		m.openTies,
		m.wsClients,
		collectors.NewGoCollector(),
	)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.requests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Computation records one engine call. outcome is "ok" or an error class.
func (m *Metrics) Computation(kind, outcome string, d time.Duration) {
	m.computations.WithLabelValues(kind, outcome).Inc()
	m.computeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) SetOpenTies(n int) { m.openTies.Set(float64(n)) }

func (m *Metrics) SetWSClients(n int) { m.wsClients.Set(float64(n)) }
