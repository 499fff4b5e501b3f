package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for task mutations and HTTP traffic.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	mutations       *prometheus.CounterVec
	conflicts       prometheus.Counter
	replays         prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg and panics on duplicate registration,
// the same way promauto does.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tasktracker",
				Subsystem: "tasks",
				Name:      "mutations_total",
				Help:      "Task mutations by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tasktracker",
			Subsystem: "tasks",
			Name:      "version_conflicts_total",
			Help:      "Updates rejected because the caller's version was stale.",
		}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tasktracker",
			Subsystem: "tasks",
			Name:      "idempotent_replays_total",
			Help:      "Create requests answered from the idempotency ledger.",
		}),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tasktracker",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route and status code.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "code"},
		),
	}
	reg.MustRegister(m.mutations, m.conflicts, m.replays, m.requestDuration)
	return m
}

func (m *Metrics) ObserveMutation(action, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) VersionConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) IdempotentReplay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

// Middleware records request latency labelled with the chi route pattern,
// so /api/tasks/{id} stays one series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
