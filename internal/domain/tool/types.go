package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"jan-server/services/orchestrator-api/internal/domain/llm"
)

// ExecutionStatus represents the lifecycle of a tool execution attempt.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Class groups tools by their expected latency. Each class has its own timeout.
type Class string

const (
	ClassLookup  Class = "lookup"
	ClassSearch  Class = "search"
	ClassCompute Class = "compute"
)

// Error strings recorded on failed calls. They are shown to the model.
const (
	ErrorTimedOut        = "timed out"
	ErrorToolNotFound    = "tool not found"
	ErrorInvalidArgument = "invalid arguments"
)

var (
	ErrToolNotFound = errors.New(ErrorToolNotFound)
	ErrTimedOut     = errors.New(ErrorTimedOut)
	ErrDuplicate    = errors.New("duplicate tool")
)

// Descriptor is the metadata of a registered tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Class       Class          `json:"class"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Definition converts the descriptor to the shape providers expect.
func (d Descriptor) Definition() llm.ToolDefinition {
	params := d.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return llm.ToolDefinition{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  params,
	}
}

// Executor runs a tool. Implementations should honour ctx; the loop enforces
// the timeout regardless.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, args map[string]any) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, _ string, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Call is one executed tool invocation. Exactly one of Result and Error is set
// once the call has finished. The ordered list of calls is the request's trace.
type Call struct {
	ID             string          `json:"id"`
	ToolName       string          `json:"tool_name"`
	Arguments      map[string]any  `json:"arguments"`
	Result         any             `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	Status         ExecutionStatus `json:"status"`
	ExecutionOrder int             `json:"execution_order"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// Failed reports whether the call ended with an error.
func (c Call) Failed() bool {
	return c.Status == ExecutionStatusFailed
}

// Duration is the wall time the call took.
func (c Call) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}

// ParseArguments decodes a model supplied JSON object. Empty input yields an
// empty map.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%s: %w", ErrorInvalidArgument, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Observation renders a finished call as the text fed back to the model.
func Observation(call Call, maxChars int) string {
	if call.Failed() {
		return "error: " + firstNonEmpty(call.Error, "tool execution failed")
	}

	var text string
	switch v := call.Result.(type) {
	case nil:
		text = ""
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			text = fmt.Sprint(v)
		} else {
			text = string(data)
		}
	}
	if strings.TrimSpace(text) == "" {
		text = "[tool execution completed]"
	}
	return truncate(text, maxChars)
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "... [truncated]"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
