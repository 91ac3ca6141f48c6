package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"jan-server/services/orchestrator-api/internal/domain/guard"
	"jan-server/services/orchestrator-api/internal/domain/llm"
	"jan-server/services/orchestrator-api/internal/domain/tool"
	"jan-server/services/orchestrator-api/internal/domain/usage"
)

// Finish reasons reported on responses and the last stream chunk.
const (
	FinishReasonStop           = "stop"
	FinishReasonIterationLimit = "iteration_limit"
	FinishReasonContentFilter  = "content_filter"
)

var (
	// ErrInputRejected aliases the guard sentinel so callers need one import.
	ErrInputRejected = guard.ErrInputRejected
	// ErrQuotaExceeded aliases the admission sentinel.
	ErrQuotaExceeded = usage.ErrQuotaExceeded
	// ErrUpstreamUnavailable is returned when the model and its fallback both failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidRequest covers requests that cannot be processed at all.
	ErrInvalidRequest = errors.New("invalid request")
)

// Request is one orchestration call.
type Request struct {
	RequestID         string
	UserID            string
	SessionID         string
	Messages          []llm.Message
	Model             string
	Tools             []string
	MaxToolIterations int
	Temperature       *float64
	MaxTokens         int
}

// Usage is the token accounting shown to the caller.
type Usage struct {
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	Cost             decimal.Decimal `json:"cost"`
}

// Response is the structured result of a request.
type Response struct {
	ID                    string      `json:"id"`
	Model                 string      `json:"model"`
	Provider              string      `json:"provider"`
	Content               string      `json:"content"`
	ToolCalls             []tool.Call `json:"tool_calls"`
	Usage                 Usage       `json:"usage"`
	FinishReason          string      `json:"finish_reason"`
	IterationLimitReached bool        `json:"iteration_limit_reached"`
	FallbackUsed          bool        `json:"fallback_used"`
	ContextOverflow       bool        `json:"context_overflow"`
	DroppedMessages       int         `json:"dropped_messages"`
	Created               time.Time   `json:"created"`
}

// MemoryRetriever returns snippets relevant to query. It is optional; errors
// and timeouts degrade to no enrichment.
type MemoryRetriever interface {
	Retrieve(ctx context.Context, userID, query string) ([]string, error)
}

// Observer receives pipeline events. Implementations must not block.
type Observer interface {
	RequestFinished(status, model string, duration time.Duration)
	GuardRejected(reason string)
	FallbackTriggered(from, to string)
	TokensBilled(model string, promptTokens, completionTokens int)
}

type nopObserver struct{}

func (nopObserver) RequestFinished(string, string, time.Duration) {}
func (nopObserver) GuardRejected(string)                          {}
func (nopObserver) FallbackTriggered(string, string)              {}
func (nopObserver) TokensBilled(string, int, int)                 {}
