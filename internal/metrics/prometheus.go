// Package metrics holds the Prometheus collectors of the vault server.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// to prevent metrics from being registered multiple times
	isMetricsInitVar uint32

	activeRESTConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_rest_connections",
			Help: "Number of active REST API connections",
		},
	)

	// response times for REST APIs, labelled by route pattern so account
	// ids never become label values
	responseTimeRESTAPI = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restapi_response_time_milliseconds",
			Help:    "REST API response time distributions",
			Buckets: []float64{1, 10, 50, 100, 200, 300, 400, 500},
		},
		[]string{"method", "endpoint"},
	)

	// RESTRequestMetricsTotal counts processed REST requests by status.
	RESTRequestMetricsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rest_requests_processed_total",
		Help: "The total number of processed REST requests",
	}, []string{"method", "endpoint", "status"})

	// VaultBlobSize observes uploaded blob sizes in kilobytes.
	VaultBlobSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vault_blob_size_kilobytes",
		Help:    "Size distribution of uploaded vault blobs",
		Buckets: prometheus.ExponentialBuckets(1, 4, 9),
	})

	// VaultOperationsTotal counts vault operations by kind and outcome.
	VaultOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_operations_total",
		Help: "The total number of vault operations",
	}, []string{"op", "result"})

	// PurgedVaultsTotal counts soft-deleted vaults removed by the cleaner.
	PurgedVaultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vault_purged_total",
		Help: "The total number of soft-deleted vaults purged",
	})
)

// InitMetrics registers all collectors with the default registry once.
func InitMetrics() {
	if !atomic.CompareAndSwapUint32(&isMetricsInitVar, 0, 1) {
		return
	}
	prometheus.MustRegister(activeRESTConnections)
	prometheus.MustRegister(responseTimeRESTAPI)
	prometheus.MustRegister(RESTRequestMetricsTotal)
	prometheus.MustRegister(VaultBlobSize)
	prometheus.MustRegister(VaultOperationsTotal)
	prometheus.MustRegister(PurgedVaultsTotal)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count, status and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		activeRESTConnections.Inc()
		defer activeRESTConnections.Dec()

		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RESTRequestMetricsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		responseTimeRESTAPI.WithLabelValues(r.Method, endpoint).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// ObserveVault records the outcome of a vault operation.
func ObserveVault(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	VaultOperationsTotal.WithLabelValues(op, result).Inc()
}
