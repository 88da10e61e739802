// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 streaming.Recorder
type Collector struct {
	registry *prometheus.Registry

	// 流式聚合指标
	streamRunsTotal     *prometheus.CounterVec
	streamRunDuration   *prometheus.HistogramVec
	streamChunksTotal   prometheus.Counter
	streamBytesTotal    prometheus.Counter
	streamChunkSize     prometheus.Histogram
	streamDeltasTotal   prometheus.Counter
	streamRebuffers     prometheus.Counter
	streamDroppedLines  *prometheus.CounterVec
	streamActiveStreams prometheus.Gauge

	// 上游 HTTP 指标
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，每个收集器使用独立的 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// 流式聚合指标
	c.streamRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_runs_total",
			Help:      "Total number of finished aggregation runs",
		},
		[]string{"outcome"}, // sentinel, eof, error, canceled
	)

	c.streamRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_run_duration_seconds",
			Help:      "Aggregation run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	c.streamChunksTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Total number of byte chunks received from transports",
		},
	)

	c.streamBytesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Total number of bytes received from transports",
		},
	)

	c.streamChunkSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_chunk_size_bytes",
			Help:      "Size of received chunks in bytes",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		},
	)

	c.streamDeltasTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_deltas_total",
			Help:      "Total number of non-empty deltas accumulated",
		},
	)

	c.streamRebuffers = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_rebuffers_total",
			Help:      "Total number of payload lines pushed back for more data",
		},
	)

	c.streamDroppedLines = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_dropped_lines_total",
			Help:      "Total number of undecodable payload lines dropped",
		},
		[]string{"reason"},
	)

	c.streamActiveStreams = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_active",
			Help:      "Number of upstream streams currently open",
		},
	)

	// 上游 HTTP 指标
	c.upstreamRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream streaming requests",
		},
		[]string{"provider", "status"},
	)

	c.upstreamRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_time_to_headers_seconds",
			Help:      "Time until upstream response headers arrived",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🌊 流式聚合指标记录
// =============================================================================

// RecordChunk 记录收到的字节块
func (c *Collector) RecordChunk(bytes int) {
	c.streamChunksTotal.Inc()
	c.streamBytesTotal.Add(float64(bytes))
	c.streamChunkSize.Observe(float64(bytes))
}

// RecordDelta 记录一次非空增量
func (c *Collector) RecordDelta() {
	c.streamDeltasTotal.Inc()
}

// RecordRebuffer 记录一次回填
func (c *Collector) RecordRebuffer() {
	c.streamRebuffers.Inc()
}

// RecordDroppedLine 记录被丢弃的负载行
func (c *Collector) RecordDroppedLine(reason string) {
	c.streamDroppedLines.WithLabelValues(reason).Inc()
}

// RecordRun 记录一次聚合运行结束
func (c *Collector) RecordRun(outcome string, duration time.Duration) {
	c.streamRunsTotal.WithLabelValues(outcome).Inc()
	c.streamRunDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// =============================================================================
// 🎯 上游 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录上游流式请求（到响应头为止）
func (c *Collector) RecordHTTPRequest(provider string, status int, duration time.Duration) {
	c.upstreamRequestsTotal.WithLabelValues(provider, statusCode(status)).Inc()
	c.upstreamRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// StreamOpened 活跃流计数加一
func (c *Collector) StreamOpened() {
	c.streamActiveStreams.Inc()
}

// StreamClosed 活跃流计数减一
func (c *Collector) StreamClosed() {
	c.streamActiveStreams.Dec()
}

// =============================================================================
// 📤 暴露
// =============================================================================

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 Prometheus 抓取端点
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
