package telemetry

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklight_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracklight_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// VisitsTotal counts tracked visits (not heartbeats).
	VisitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracklight_visits_total",
		Help: "Total tracked visits",
	})
	// HeartbeatsTotal counts heartbeat pings.
	HeartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracklight_heartbeats_total",
		Help: "Total visitor heartbeats",
	})
	// RuleTriggersTotal counts rule admissions across all visits.
	RuleTriggersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracklight_rule_triggers_total",
		Help: "Total rule triggers",
	})
	// RealtimeClients tracks currently connected websocket sessions.
	RealtimeClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracklight_realtime_clients",
		Help: "Number of currently connected realtime clients",
	})
)

func Init() {
	prometheus.MustRegister(httpReqs, httpDur, VisitsTotal, HeartbeatsTotal, RuleTriggersTotal, RealtimeClients)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }

// Middleware records request counts and latencies per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack exposes the underlying connection so websocket upgrades work
// through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
