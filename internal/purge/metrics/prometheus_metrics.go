package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

type PrometheusMetrics struct {
	httpHandler func(*fasthttp.RequestCtx)
	logger      *zap.Logger

	purgeRequestsTotal *prometheus.CounterVec
	urlsPurgedTotal    prometheus.Counter
	batchesTotal       *prometheus.CounterVec
	retriesTotal       prometheus.Counter
	apiErrorsTotal     *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	deliveryDuration   prometheus.Histogram
}

func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	if namespace == "" {
		namespace = "purged"
	}

	pm := &PrometheusMetrics{
		logger: logger,
	}

	pm.purgeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purge_requests_total",
			Help:      "Total number of purge requests by mode and status",
		},
		[]string{"mode", "status"},
	)

	pm.urlsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urls_purged_total",
			Help:      "Total number of URLs submitted for purging",
		},
	)

	pm.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of purge batches by status",
		},
		[]string{"status"},
	)

	pm.retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retried CDN API calls",
		},
	)

	pm.apiErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of CDN API errors by kind",
		},
		[]string{"kind"},
	)

	pm.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of pending background purge entries",
		},
	)

	pm.deliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Duration of CDN purge deliveries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(pm.purgeRequestsTotal)
	registry.MustRegister(pm.urlsPurgedTotal)
	registry.MustRegister(pm.batchesTotal)
	registry.MustRegister(pm.retriesTotal)
	registry.MustRegister(pm.apiErrorsTotal)
	registry.MustRegister(pm.queueDepth)
	registry.MustRegister(pm.deliveryDuration)

	handler := promhttp.HandlerFor(prometheus.Gatherer(registry), promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(handler)

	logger.Info("Prometheus metrics initialized",
		zap.String("namespace", namespace))

	return pm
}

func (pm *PrometheusMetrics) RecordPurgeRequest(mode, status string) {
	pm.purgeRequestsTotal.WithLabelValues(mode, status).Inc()
}

func (pm *PrometheusMetrics) RecordURLsPurged(count int) {
	pm.urlsPurgedTotal.Add(float64(count))
}

func (pm *PrometheusMetrics) RecordBatch(status string) {
	pm.batchesTotal.WithLabelValues(status).Inc()
}

func (pm *PrometheusMetrics) RecordRetry() {
	pm.retriesTotal.Inc()
}

func (pm *PrometheusMetrics) RecordAPIError(kind string) {
	pm.apiErrorsTotal.WithLabelValues(kind).Inc()
}

func (pm *PrometheusMetrics) SetQueueDepth(depth int) {
	pm.queueDepth.Set(float64(depth))
}

func (pm *PrometheusMetrics) RecordDeliveryDuration(seconds float64) {
	pm.deliveryDuration.Observe(seconds)
}

func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
