package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"jan-server/services/orchestrator-api/internal/domain/tool"
)

const (
	namespace = "jan"
	subsystem = "orchestrator_api"
)

// Orchestrator-API Metrics
var (
	// HTTP request counters
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// Orchestration outcomes
	OrchestrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orchestrations_total",
			Help:      "Chat requests by terminal status",
		},
		[]string{"status", "model"},
	)

	OrchestrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orchestration_duration_seconds",
			Help:      "Time from admission to terminal state",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	GuardRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "guard_rejections_total",
			Help:      "Input and output guard rejections by reason",
		},
		[]string{"reason"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fallbacks_total",
			Help:      "Fallback attempts after a provider failure",
		},
		[]string{"from", "to"},
	)

	TokensBilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tokens_billed_total",
			Help:      "Tokens recorded for billing",
		},
		[]string{"model", "kind"},
	)

	// Tool call counters
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tool_calls_total",
			Help:      "Total tool invocations",
		},
		[]string{"tool_name", "status"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool_name"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rate_limited_total",
			Help:      "Requests refused by the per-user rate limiter",
		},
	)

	QuotaResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "quota_resets_total",
			Help:      "Quotas reset by the monthly job",
		},
	)
)

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Recorder feeds pipeline and tool events into the collectors above. It
// satisfies orchestrator.Observer and tool.Observer.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) RequestFinished(status, model string, duration time.Duration) {
	if model == "" {
		model = "none"
	}
	OrchestrationsTotal.WithLabelValues(status, model).Inc()
	OrchestrationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (Recorder) GuardRejected(reason string) {
	GuardRejectionsTotal.WithLabelValues(reason).Inc()
}

func (Recorder) FallbackTriggered(from, to string) {
	FallbacksTotal.WithLabelValues(from, to).Inc()
}

func (Recorder) TokensBilled(model string, promptTokens, completionTokens int) {
	TokensBilledTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	TokensBilledTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

func (Recorder) OnToolCall(call tool.Call) {
	ToolCallsTotal.WithLabelValues(call.ToolName, string(call.Status)).Inc()
	ToolDuration.WithLabelValues(call.ToolName).Observe(call.Duration().Seconds())
}
