// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 分发与会话指标
	dispatchesTotal *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	sessionDuration prometheus.Histogram
	turnsTotal      *prometheus.CounterVec

	// 知识库指标
	kbQueriesTotal   *prometheus.CounterVec
	kbQueryDuration  prometheus.Histogram

	// 转写与联系人指标
	transcriptSavesTotal *prometheus.CounterVec
	extractionsTotal     *prometheus.CounterVec
	contactUpsertsTotal  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到 reg。
// reg 为 nil 时使用 prometheus.DefaultRegisterer。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path and status.",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.dispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Agent dispatch requests by result (accepted, duplicate, error).",
		},
		[]string{"result"},
	)

	c.activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of voice sessions currently running.",
		},
	)

	c.sessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Lifetime of completed voice sessions.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	c.turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation items processed by sender role.",
		},
		[]string{"role"},
	)

	c.kbQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kb_queries_total",
			Help:      "Knowledge base queries by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	c.kbQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kb_query_duration_seconds",
			Help:      "Knowledge base query latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	c.transcriptSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_saves_total",
			Help:      "Transcript persistence attempts by result.",
		},
		[]string{"result"},
	)

	c.extractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_extractions_total",
			Help:      "Contact extraction runs by result (found, empty, error).",
		},
		[]string{"result"},
	)

	c.contactUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_upserts_total",
			Help:      "Contact store upserts by action (insert, update, noop, error).",
		},
		[]string{"action"},
	)

	factory.MustRegister(
		c.httpRequestsTotal, c.httpRequestDuration,
		c.dispatchesTotal, c.activeSessions, c.sessionDuration, c.turnsTotal,
		c.kbQueriesTotal, c.kbQueryDuration,
		c.transcriptSavesTotal, c.extractionsTotal, c.contactUpsertsTotal,
	)

	return c
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDispatch 记录一次分发结果
func (c *Collector) RecordDispatch(result string) {
	c.dispatchesTotal.WithLabelValues(result).Inc()
}

// SessionStarted / SessionEnded 维护活跃会话计数
func (c *Collector) SessionStarted() {
	c.activeSessions.Inc()
}

// SessionEnded 记录会话结束及其时长
func (c *Collector) SessionEnded(duration time.Duration) {
	c.activeSessions.Dec()
	c.sessionDuration.Observe(duration.Seconds())
}

// RecordTurn 记录一个会话条目
func (c *Collector) RecordTurn(role string) {
	c.turnsTotal.WithLabelValues(role).Inc()
}

// RecordKBQuery 记录一次知识库查询
func (c *Collector) RecordKBQuery(result string, duration time.Duration) {
	c.kbQueriesTotal.WithLabelValues(result).Inc()
	c.kbQueryDuration.Observe(duration.Seconds())
}

// RecordTranscriptSave 记录一次转写持久化
func (c *Collector) RecordTranscriptSave(result string) {
	c.transcriptSavesTotal.WithLabelValues(result).Inc()
}

// RecordExtraction 记录一次联系人抽取
func (c *Collector) RecordExtraction(result string) {
	c.extractionsTotal.WithLabelValues(result).Inc()
}

// RecordContactUpsert 记录一次联系人写入
func (c *Collector) RecordContactUpsert(action string) {
	c.contactUpsertsTotal.WithLabelValues(action).Inc()
}
