package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue", "result"},
	)

	// 模型调用延迟（毫秒）
	ModelCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_call_latency_ms",
			Help:    "Classification model call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"provider", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	// 邮件规范化计数
	EmailNormalizedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_normalized_count",
			Help: "Total number of raw emails normalized",
		},
		[]string{"body_source"}, // body_source: plain, html, none
	)

	// 流水线处理结果计数
	PipelineOutcomeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_outcome_count",
			Help: "Total number of inbound units by terminal outcome",
		},
		[]string{"outcome"}, // outcome: notify, confirm_forward, drop, malformed, unparsable, failed
	)

	// 下游发送计数
	OutboundSendCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_send_count",
			Help: "Total number of outbound sends by channel and status",
		},
		[]string{"channel", "status"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue, result string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue, result).Observe(float64(duration.Milliseconds()))
}

// RecordModelCallLatency 记录模型调用延迟
func RecordModelCallLatency(provider, status string, duration time.Duration) {
	ModelCallLatency.WithLabelValues(provider, status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// IncrementEmailNormalized 增加邮件规范化计数
func IncrementEmailNormalized(bodySource string) {
	EmailNormalizedCount.WithLabelValues(bodySource).Inc()
}

// IncrementPipelineOutcome 增加流水线结果计数
func IncrementPipelineOutcome(outcome string) {
	PipelineOutcomeCount.WithLabelValues(outcome).Inc()
}

// IncrementOutboundSend 增加下游发送计数
func IncrementOutboundSend(channel, status string) {
	OutboundSendCount.WithLabelValues(channel, status).Inc()
}
