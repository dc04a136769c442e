package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	revisions       *prometheus.CounterVec
	closes          *prometheus.CounterVec
	massItems       *prometheus.CounterVec
	auditFallbacks  *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	// Metrik domain revisi umur manfaat.
	revisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_review_revisions_total",
		Help: "Jumlah revisi item berdasarkan hasil.",
	}, []string{"outcome"})
	closes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_review_close_attempts_total",
		Help: "Percobaan penutupan periode review berdasarkan hasil.",
	}, []string{"result"})
	massItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_review_mass_items_total",
		Help: "Item yang diproses operasi massal berdasarkan operasi dan hasil.",
	}, []string{"operation", "result"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_audit_fallbacks_total",
		Help: "Catatan audit yang gagal ditulis langsung berdasarkan hasil fallback.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, revisions, closes, massItems, fallbacks)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		revisions:       revisions,
		closes:          closes,
		massItems:       massItems,
		auditFallbacks:  fallbacks,
	}
}

// ObserveRevision mencatat hasil revisi satu item.
func (m *Metrics) ObserveRevision(outcome string) {
	if m == nil {
		return
	}
	m.revisions.WithLabelValues(outcome).Inc()
}

// ObserveClose mencatat hasil percobaan penutupan periode.
func (m *Metrics) ObserveClose(result string) {
	if m == nil {
		return
	}
	m.closes.WithLabelValues(result).Inc()
}

// ObserveMassItem mencatat hasil per item dari operasi massal.
func (m *Metrics) ObserveMassItem(operation, result string) {
	if m == nil {
		return
	}
	m.massItems.WithLabelValues(operation, result).Inc()
}

// ObserveAuditFallback mencatat catatan audit yang diantrikan ulang atau dibuang.
func (m *Metrics) ObserveAuditFallback(outcome string) {
	if m == nil {
		return
	}
	m.auditFallbacks.WithLabelValues(outcome).Inc()
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
