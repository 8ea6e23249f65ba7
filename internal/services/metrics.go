package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the custom Prometheus metrics. HTTP-level metrics come
// from the fiberprometheus middleware; these cover what it cannot see.
type Metrics struct {
	WebSocketMessages *prometheus.CounterVec

	ChatRequests       prometheus.Counter
	ChatRequestLatency prometheus.Histogram
	ChatErrors         *prometheus.CounterVec

	TokensConsumed *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics registers the metric set. The bridge feeds two GaugeFuncs so
// connection and correlator counts are read live at scrape time.
func InitMetrics(bridge *ClientBridge) *Metrics {
	metrics := &Metrics{
		WebSocketMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notebridge_websocket_messages_total",
			Help: "Total number of WebSocket frames by type",
		}, []string{"type", "direction"}), // direction: inbound or outbound

		ChatRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notebridge_chat_requests_total",
			Help: "Total number of chat requests processed",
		}),

		ChatRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "notebridge_chat_request_duration_seconds",
			Help:    "Chat request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // tool round trips can take minutes
		}),

		ChatErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notebridge_chat_errors_total",
			Help: "Total number of chat errors by code",
		}, []string{"code"}),

		TokensConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notebridge_tokens_consumed_total",
			Help: "Provider tokens consumed, by model and direction",
		}, []string{"model", "direction"}), // direction: input or output
	}

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "notebridge_websocket_connections_current",
			Help: "Current number of live WebSocket connections",
		},
		func() float64 {
			if bridge != nil {
				return float64(bridge.Count())
			}
			return 0
		},
	))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "notebridge_bridge_pending_requests",
			Help: "Tool calls currently waiting on a client reply",
		},
		func() float64 {
			if bridge != nil {
				return float64(bridge.PendingCount())
			}
			return 0
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance; nil before InitMetrics.
func GetMetrics() *Metrics {
	return globalMetrics
}

func (m *Metrics) RecordWebSocketMessage(frameType, direction string) {
	m.WebSocketMessages.WithLabelValues(frameType, direction).Inc()
}

func (m *Metrics) RecordChatRequest() {
	m.ChatRequests.Inc()
}

func (m *Metrics) RecordChatLatency(seconds float64) {
	m.ChatRequestLatency.Observe(seconds)
}

func (m *Metrics) RecordChatError(code string) {
	m.ChatErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordTokens(model string, inputTokens, outputTokens int64) {
	m.TokensConsumed.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.TokensConsumed.WithLabelValues(model, "output").Add(float64(outputTokens))
}
