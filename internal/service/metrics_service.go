package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the sync layer.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	remoteFallbacks *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	payments        *prometheus.CounterVec
	resetStudents   prometheus.Counter
}

// NewMetricsService registers the core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	remoteFallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_remote_fallbacks_total",
		Help: "Operations that fell back to the local cache",
	}, []string{"collection"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_emitted_total",
		Help: "Notifications emitted by type",
	}, []string{"type"})

	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Payment attempts by terminal status",
	}, []string{"status"})

	resetStudents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "monthly_reset_students_total",
		Help: "Students touched by monthly fee resets",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, remoteFallbacks, notifications, payments, resetStudents, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		remoteFallbacks: remoteFallbacks,
		notifications:   notifications,
		payments:        payments,
		resetStudents:   resetStudents,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordRemoteFallback counts one operation served by the local cache.
func (m *MetricsService) RecordRemoteFallback(collection string) {
	if m == nil {
		return
	}
	m.remoteFallbacks.WithLabelValues(collection).Inc()
}

// RecordNotification counts one emitted notification.
func (m *MetricsService) RecordNotification(notificationType string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType).Inc()
}

// RecordPayment counts one payment attempt reaching a terminal status.
func (m *MetricsService) RecordPayment(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}

// RecordResetPass counts the students touched by one reset pass.
func (m *MetricsService) RecordResetPass(students int) {
	if m == nil || students <= 0 {
		return
	}
	m.resetStudents.Add(float64(students))
}
