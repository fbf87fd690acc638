package metrics

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// MetricsCollector is the purge pipeline's metrics facade
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetrics(namespace, logger),
		logger:     logger,
	}
}

func (mc *MetricsCollector) RecordPurgeRequest(mode, status string) {
	mc.prometheus.RecordPurgeRequest(mode, status)
}

func (mc *MetricsCollector) RecordURLsPurged(count int) {
	mc.prometheus.RecordURLsPurged(count)
}

func (mc *MetricsCollector) RecordBatch(status string) {
	mc.prometheus.RecordBatch(status)
}

func (mc *MetricsCollector) RecordRetry() {
	mc.prometheus.RecordRetry()
}

func (mc *MetricsCollector) RecordAPIError(kind string) {
	mc.prometheus.RecordAPIError(kind)

	mc.logger.Debug("Recorded API error metric", zap.String("kind", kind))
}

func (mc *MetricsCollector) SetQueueDepth(depth int) {
	mc.prometheus.SetQueueDepth(depth)
}

func (mc *MetricsCollector) RecordDeliveryDuration(duration time.Duration) {
	mc.prometheus.RecordDeliveryDuration(duration.Seconds())
}

func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
