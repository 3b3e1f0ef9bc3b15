// metrics.go — Prometheus HTTP-метрики Channel Store, собираются
// обёрткой над роутером. Бизнес-метрики объявляются в сервисном слое.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cs_http_requests_total",
			Help: "Общее количество HTTP-запросов к Channel Store",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cs_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Channel Store в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Metrics возвращает middleware для сбора HTTP-метрик.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			path := normalizePath(r.URL.Path)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// normalizePath сводит путь к известным endpoint'ам, чтобы произвольные
// пути 404-запросов не раздували кардинальность метрик.
// Идентификаторы передаются query-строкой, поэтому подстановок в пути нет.
func normalizePath(path string) string {
	switch path {
	case "/api/v1/files/list",
		"/api/v1/files/upload",
		"/api/v1/files/download",
		"/api/v1/files/delete",
		"/api/v1/auth/setup-cookie":
		return path
	default:
		return "other"
	}
}
