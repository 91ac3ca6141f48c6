package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"jan-server/services/orchestrator-api/internal/domain/llm"
	"jan-server/services/orchestrator-api/internal/domain/token"
)

const (
	// DefaultMaxIterations caps executed tool calls per request.
	DefaultMaxIterations = 5
	// DefaultMaxObservationChars truncates tool output fed back to the model.
	DefaultMaxObservationChars = 8000

	// IterationLimitMessage is returned when the cap is hit before the model
	// produced any text of its own.
	IterationLimitMessage = "Tool iteration limit reached before a final answer was produced."
)

// State is the position of a run in the loop's state machine.
type State string

const (
	StateIdle                  State = "idle"
	StateAwaitingModelDecision State = "awaiting_model_decision"
	StateExecutingTool         State = "executing_tool"
	StateDone                  State = "done"
)

// Observer is notified after every executed call. It must not block.
type Observer interface {
	OnToolCall(call Call)
}

// Loop drives the model/tool exchange for a single request at a time; one
// Loop value may serve many requests concurrently.
type Loop struct {
	registry            *Registry
	timeouts            Timeouts
	maxObservationChars int
	estimator           token.Estimator
	observer            Observer
	tracer              trace.Tracer
	log                 zerolog.Logger
}

// LoopConfig configures NewLoop.
type LoopConfig struct {
	Registry            *Registry
	Timeouts            Timeouts
	MaxObservationChars int
	Estimator           token.Estimator
	Observer            Observer
}

// NewLoop constructs a tool loop.
func NewLoop(cfg LoopConfig, log zerolog.Logger) *Loop {
	if cfg.MaxObservationChars <= 0 {
		cfg.MaxObservationChars = DefaultMaxObservationChars
	}
	if cfg.Estimator == nil {
		cfg.Estimator = token.Default
	}
	return &Loop{
		registry:            cfg.Registry,
		timeouts:            cfg.Timeouts,
		maxObservationChars: cfg.MaxObservationChars,
		estimator:           cfg.Estimator,
		observer:            cfg.Observer,
		tracer:              otel.Tracer("jan-server/orchestrator-api"),
		log:                 log,
	}
}

// RunParams contains the data needed to start the loop.
type RunParams struct {
	Provider      llm.Provider
	Model         string
	Messages      []llm.Message
	Tools         []Descriptor
	MaxIterations int
	Temperature   *float64
	MaxTokens     int
}

// Result is what a finished run hands back. When IterationLimitReached is set,
// Content is the best partial answer available.
type Result struct {
	Content               string
	Messages              []llm.Message
	Calls                 []Call
	PromptTokens          int
	CompletionTokens      int
	ModelCalls            int
	IterationLimitReached bool
	State                 State
}

// Run asks the model for a decision, executes requested tools one at a time
// and feeds their observations back until the model answers or the number of
// executed calls reaches the cap. The cap is checked before every model call.
// Tool failures are recorded on the call and shown to the model. Provider
// failures and cancellation abort the run; the partial trace is dropped.
func (l *Loop) Run(ctx context.Context, p RunParams) (*Result, error) {
	if p.Provider == nil {
		return nil, errors.New("tool loop: provider is required")
	}
	maxIterations := p.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	offered := make(map[string]Descriptor, len(p.Tools))
	definitions := make([]llm.ToolDefinition, 0, len(p.Tools))
	for _, d := range p.Tools {
		offered[d.Name] = d
		definitions = append(definitions, d.Definition())
	}

	messages := append([]llm.Message(nil), p.Messages...)
	result := &Result{State: StateIdle}
	var partial string

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result.State = StateAwaitingModelDecision
		req := llm.CompletionRequest{
			Model:       p.Model,
			Messages:    messages,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
			Tools:       definitions,
		}
		completion, err := p.Provider.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if completion == nil {
			return nil, llm.NewProviderError("", p.Model, errors.New("empty completion"))
		}
		result.ModelCalls++
		prompt, output := l.usageOf(messages, completion)
		result.PromptTokens += prompt
		result.CompletionTokens += output

		if !completion.WantsTools() || len(offered) == 0 {
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: completion.Content})
			result.Content = completion.Content
			result.Messages = messages
			result.State = StateDone
			return result, nil
		}

		if completion.Content != "" {
			partial = completion.Content
		}
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, request := range completion.ToolCalls {
			if len(result.Calls) >= maxIterations {
				break
			}
			result.State = StateExecutingTool
			call := l.execute(ctx, offered, request, len(result.Calls)+1)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result.Calls = append(result.Calls, call)
			if l.observer != nil {
				l.observer.OnToolCall(call)
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    Observation(call, l.maxObservationChars),
				ToolCallID: call.ID,
			})
		}

		if len(result.Calls) >= maxIterations {
			l.log.Warn().
				Str("model", p.Model).
				Int("max_iterations", maxIterations).
				Msg("tool iteration limit reached")
			result.Content = firstNonEmpty(partial, IterationLimitMessage)
			result.Messages = messages
			result.IterationLimitReached = true
			result.State = StateDone
			return result, nil
		}
	}
}

// execute runs one requested call. It never returns an error: every failure
// is captured on the call.
func (l *Loop) execute(ctx context.Context, offered map[string]Descriptor, request llm.ToolCallRequest, order int) Call {
	ctx, span := l.tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(
			attribute.String("tool.name", request.Name),
			attribute.Int("tool.execution_order", order),
		))
	defer span.End()

	call := Call{
		ID:             request.ID,
		ToolName:       request.Name,
		Status:         ExecutionStatusRunning,
		ExecutionOrder: order,
		StartedAt:      time.Now(),
	}
	if call.ID == "" {
		call.ID = fmt.Sprintf("call_%d", order)
	}
	fail := func(msg string) Call {
		call.Status = ExecutionStatusFailed
		call.Error = msg
		call.FinishedAt = time.Now()
		span.SetStatus(codes.Error, msg)
		l.log.Warn().Str("tool", call.ToolName).Str("error", msg).Int("execution_order", order).Msg("tool call failed")
		return call
	}

	args, err := ParseArguments(request.Arguments)
	if err != nil {
		return fail(ErrorInvalidArgument)
	}
	call.Arguments = args

	if _, ok := offered[request.Name]; !ok {
		return fail(ErrorToolNotFound)
	}
	t, ok := l.registry.Lookup(request.Name)
	if !ok {
		return fail(ErrorToolNotFound)
	}

	timeout := l.timeouts.For(t.Descriptor.Class)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := invoke(callCtx, t.Executor, request.Name, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fail(ErrorTimedOut)
		}
		if errors.Is(err, ErrToolNotFound) {
			return fail(ErrorToolNotFound)
		}
		return fail(err.Error())
	}

	call.Result = value
	call.Status = ExecutionStatusCompleted
	call.FinishedAt = time.Now()
	l.log.Debug().Str("tool", call.ToolName).Dur("duration", call.Duration()).Msg("tool call completed")
	return call
}

type outcome struct {
	value any
	err   error
}

// invoke runs the executor in its own goroutine so a tool that ignores ctx
// still cannot hold the loop past its deadline. Panics become errors.
func invoke(ctx context.Context, exec Executor, name string, args map[string]any) (any, error) {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		value, err := exec.Execute(ctx, name, args)
		done <- outcome{value: value, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// usageOf prefers provider reported usage and estimates what is missing.
func (l *Loop) usageOf(messages []llm.Message, c *llm.Completion) (int, int) {
	prompt := c.PromptTokens
	if prompt <= 0 {
		prompt = token.CountMessages(l.estimator, messages)
	}
	output := c.CompletionTokens
	if output <= 0 {
		output = l.estimator.Estimate(c.Content)
		for _, tc := range c.ToolCalls {
			output += l.estimator.Estimate(tc.Name + tc.Arguments)
		}
	}
	return prompt, output
}
