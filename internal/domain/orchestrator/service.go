// Package orchestrator runs one chat request through the fixed pipeline:
// guard, admission, routing, memory enrichment, trimming, the tool loop,
// output guard, usage recording and the response or stream.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"jan-server/services/orchestrator-api/internal/domain/audit"
	"jan-server/services/orchestrator-api/internal/domain/budget"
	"jan-server/services/orchestrator-api/internal/domain/guard"
	"jan-server/services/orchestrator-api/internal/domain/llm"
	"jan-server/services/orchestrator-api/internal/domain/model"
	"jan-server/services/orchestrator-api/internal/domain/stream"
	"jan-server/services/orchestrator-api/internal/domain/token"
	"jan-server/services/orchestrator-api/internal/domain/tool"
	"jan-server/services/orchestrator-api/internal/domain/usage"
	"jan-server/services/orchestrator-api/internal/utils/idgen"
)

const tracerName = "jan-server/orchestrator-api"

// Status labels passed to Observer.RequestFinished.
const (
	StatusCompleted           = "completed"
	StatusIterationLimit      = "iteration_limit"
	StatusInputRejected       = "input_rejected"
	StatusQuotaExceeded       = "quota_exceeded"
	StatusOutputRejected      = "output_rejected"
	StatusUpstreamUnavailable = "upstream_unavailable"
	StatusCancelled           = "cancelled"
	StatusFailed              = "failed"
)

// Config tunes the pipeline.
type Config struct {
	// DefaultModel is used when the requested model is absent or unknown.
	// Empty means the registry default.
	DefaultModel string
	// MaxContextTokens caps the trim budget below the model's window. Zero disables the cap.
	MaxContextTokens  int
	DefaultMaxTokens  int
	MaxToolIterations int
	MemoryTimeout     time.Duration
}

// Dependencies are the collaborators of a Service. Memory, Audit and
// Observer are optional.
type Dependencies struct {
	Guard     *guard.Guard
	Meter     *usage.Meter
	Models    *model.Registry
	Budgeter  *budget.Budgeter
	Providers llm.Resolver
	Loop      *tool.Loop
	Tools     *tool.Registry
	Emitter   *stream.Emitter
	Estimator token.Estimator
	Memory    MemoryRetriever
	Audit     audit.Recorder
	Observer  Observer
}

// Service is the request orchestrator. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	deps   Dependencies
	cfg    Config
	tracer trace.Tracer
	now    func() time.Time
	log    zerolog.Logger
}

// NewService wires dependencies.
func NewService(deps Dependencies, cfg Config, log zerolog.Logger) *Service {
	if deps.Estimator == nil {
		deps.Estimator = token.Default
	}
	if deps.Budgeter == nil {
		deps.Budgeter = budget.New(deps.Estimator)
	}
	if deps.Emitter == nil {
		deps.Emitter = stream.NewEmitter()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = tool.DefaultMaxIterations
	}
	if cfg.MemoryTimeout <= 0 {
		cfg.MemoryTimeout = 2 * time.Second
	}
	return &Service{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		log:    log.With().Str("component", "orchestrator").Logger(),
	}
}

// attempt is the outcome of one generation against one model.
type attempt struct {
	spec   model.Spec
	trim   budget.Result
	result *tool.Result
}

// Handle runs req to a terminal state. Rejections, quota denial, upstream
// failure and cancellation are returned as errors; every other terminal state
// is a Response.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "orchestrator.handle",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("request.id", req.RequestID),
			attribute.String("request.requested_model", req.Model),
			attribute.Int("request.messages", len(req.Messages)),
		),
	)
	defer span.End()

	log := s.log.With().Str("request_id", req.RequestID).Str("user_id", req.UserID).Logger()
	finish := func(status, modelName string) {
		s.deps.Observer.RequestFinished(status, modelName, s.now().Sub(started))
		span.SetAttributes(attribute.String("request.status", status))
	}
	fail := func(status, modelName string, err error) (*Response, error) {
		finish(status, modelName)
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return nil, err
	}

	if len(req.Messages) == 0 {
		return fail(StatusFailed, "", fmt.Errorf("%w: at least one message is required", ErrInvalidRequest))
	}
	if strings.TrimSpace(req.UserID) == "" {
		return fail(StatusFailed, "", fmt.Errorf("%w: user is required", ErrInvalidRequest))
	}

	// 1. input guard
	if err := s.deps.Guard.ScreenMessages(req.Messages); err != nil {
		var rejection *guard.RejectionError
		reason := guard.ReasonBlocked
		if errors.As(err, &rejection) {
			reason = rejection.Reason
		}
		s.deps.Observer.GuardRejected(reason)
		return fail(StatusInputRejected, "", err)
	}

	// 2. admission
	messages := token.Annotate(s.deps.Estimator, req.Messages)
	estimated := int64(token.CountMessages(s.deps.Estimator, messages))
	admission, err := s.deps.Meter.Admit(ctx, req.UserID, estimated)
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			log.Warn().Msg("quota exceeded")
			return fail(StatusQuotaExceeded, "", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(StatusCancelled, "", ctxErr)
		}
		log.Error().Err(err).Msg("admission failed")
		return fail(StatusFailed, "", fmt.Errorf("admission: %w", err))
	}
	billed := false
	defer func() {
		if !billed {
			s.deps.Meter.Release(ctx, admission)
		}
	}()

	// 3. routing
	primary := s.deps.Models.Route(req.Model, s.cfg.DefaultModel)
	if req.Model != "" && req.Model != primary.Name {
		log.Info().Str("requested_model", req.Model).Str("model", primary.Name).Msg("requested model not registered, using default")
	}

	// 4. memory enrichment, before trimming
	messages = s.enrich(ctx, log, req.UserID, messages)

	tools := s.offeredTools(log, req.Tools)

	// 5. generation with one fallback
	outcome, err := s.generate(ctx, req, primary, messages, tools)
	fallbackUsed := false
	if err != nil && ctx.Err() == nil {
		next := s.deps.Models.FallbackOf(primary.Name)
		fallbackSpec, _ := s.deps.Models.Lookup(next)
		log.Warn().Err(err).Str("model", primary.Name).Str("fallback_model", next).Msg("provider failed, trying fallback")
		s.deps.Observer.FallbackTriggered(primary.Name, next)
		span.AddEvent("fallback", trace.WithAttributes(
			attribute.String("fallback.from", primary.Name),
			attribute.String("fallback.to", next),
		))
		fallbackUsed = true
		outcome, err = s.generate(ctx, req, fallbackSpec, messages, tools)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Info().Err(ctxErr).Msg("request cancelled")
			return fail(StatusCancelled, primary.Name, ctxErr)
		}
		log.Error().Err(err).Str("model", primary.Name).Msg("upstream unavailable after fallback")
		s.audit(ctx, log, audit.Entry{
			RequestID:      req.RequestID,
			UserID:         req.UserID,
			SessionID:      req.SessionID,
			RequestedModel: req.Model,
			Model:          primary.Name,
			Status:         audit.StatusUpstreamUnavailable,
			FallbackUsed:   fallbackUsed,
			Error:          ErrUpstreamUnavailable.Error(),
		})
		return fail(StatusUpstreamUnavailable, primary.Name, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err))
	}

	result := outcome.result
	resp := &Response{
		ID:                    idgen.NewCompletionID(),
		Model:                 outcome.spec.Name,
		Provider:              outcome.spec.Provider,
		Content:               result.Content,
		ToolCalls:             result.Calls,
		FinishReason:          FinishReasonStop,
		IterationLimitReached: result.IterationLimitReached,
		FallbackUsed:          fallbackUsed,
		ContextOverflow:       outcome.trim.Overflow,
		DroppedMessages:       outcome.trim.DroppedCount,
		Created:               s.now().UTC(),
		Usage: Usage{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			TotalTokens:      result.PromptTokens + result.CompletionTokens,
		},
	}
	if result.IterationLimitReached {
		resp.FinishReason = FinishReasonIterationLimit
	}

	entry := audit.Entry{
		RequestID:        req.RequestID,
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		RequestedModel:   req.Model,
		Model:            resp.Model,
		Provider:         resp.Provider,
		FallbackUsed:     fallbackUsed,
		DroppedMessages:  resp.DroppedMessages,
		ContextOverflow:  resp.ContextOverflow,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		ToolCalls:        result.Calls,
	}

	// 6. output guard
	if verdict := s.deps.Guard.CheckOutput(result.Content); !verdict.Allowed {
		log.Warn().Str("model", resp.Model).Str("reason", verdict.Reason).Msg("output rejected")
		s.deps.Observer.GuardRejected(verdict.Reason)
		resp.Content = guard.RefusalMessage
		resp.FinishReason = FinishReasonContentFilter
		entry.Status = audit.StatusOutputRejected
		entry.FinishReason = resp.FinishReason
		s.audit(ctx, log, entry)
		finish(StatusOutputRejected, resp.Model)
		return resp, nil
	}

	// 7. usage
	record, err := s.deps.Meter.Record(ctx, usage.RecordParams{
		Admission:        admission,
		UserID:           req.UserID,
		RequestID:        req.RequestID,
		SessionID:        req.SessionID,
		Model:            resp.Model,
		Provider:         resp.Provider,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	})
	billed = true
	if err != nil {
		log.Error().Err(err).Msg("record usage")
	} else {
		resp.Usage.Cost = record.Cost
		s.deps.Observer.TokensBilled(resp.Model, record.PromptTokens, record.CompletionTokens)
	}

	status := StatusCompleted
	entry.Status = audit.StatusCompleted
	if result.IterationLimitReached {
		status = StatusIterationLimit
		entry.Status = audit.StatusIterationLimit
	}
	entry.FinishReason = resp.FinishReason
	s.audit(ctx, log, entry)
	finish(status, resp.Model)

	log.Info().
		Str("model", resp.Model).
		Bool("fallback", fallbackUsed).
		Int("tool_calls", len(resp.ToolCalls)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("request completed")
	return resp, nil
}

// HandleStream runs Handle and re-chunks the final answer.
func (s *Service) HandleStream(ctx context.Context, req Request) (*Response, *stream.Stream, error) {
	resp, err := s.Handle(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return resp, s.deps.Emitter.StreamWith(resp.ID, resp.Model, resp.Content, resp.FinishReason), nil
}

// generate trims for the model's window and runs the tool loop against its provider.
func (s *Service) generate(ctx context.Context, req Request, spec model.Spec, messages []llm.Message, tools []tool.Descriptor) (*attempt, error) {
	ctx, span := s.tracer.Start(ctx, "orchestrator.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("model.name", spec.Name),
			attribute.String("model.provider", spec.Provider),
		),
	)
	defer span.End()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.DefaultMaxTokens
	}
	limit := budget.ForModel(s.deps.Models.ContextWindowOf(spec.Name), maxTokens, s.cfg.MaxContextTokens)
	trimmed := s.deps.Budgeter.Trim(messages, limit)
	if trimmed.Overflow {
		s.log.Warn().
			Str("request_id", req.RequestID).
			Str("model", spec.Name).
			Int("budget", limit).
			Int("estimated_tokens", trimmed.EstimatedTokens).
			Msg("system messages exceed context budget")
	}
	span.SetAttributes(
		attribute.Int("budget.limit", limit),
		attribute.Int("budget.dropped", trimmed.DroppedCount),
	)

	provider, err := s.deps.Providers.Resolve(spec.Provider)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve provider")
		return nil, err
	}

	iterations := req.MaxToolIterations
	if iterations <= 0 {
		iterations = s.cfg.MaxToolIterations
	}
	result, err := s.deps.Loop.Run(ctx, tool.RunParams{
		Provider:      provider,
		Model:         spec.Name,
		Messages:      trimmed.Messages,
		Tools:         tools,
		MaxIterations: iterations,
		Temperature:   req.Temperature,
		MaxTokens:     maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("tool.calls", len(result.Calls)),
		attribute.Int("model.calls", result.ModelCalls),
	)
	return &attempt{spec: spec, trim: trimmed, result: result}, nil
}

// offeredTools resolves requested tool names. Unknown names are dropped with
// a warning; if the model asks for one anyway the call fails as tool not found.
func (s *Service) offeredTools(log zerolog.Logger, names []string) []tool.Descriptor {
	if len(names) == 0 || s.deps.Tools == nil {
		return nil
	}
	found, unknown := s.deps.Tools.Select(names)
	if len(unknown) > 0 {
		log.Warn().Strs("tools", unknown).Msg("requested tools are not registered")
	}
	return found
}

func (s *Service) audit(ctx context.Context, log zerolog.Logger, entry audit.Entry) {
	if s.deps.Audit == nil {
		return
	}
	entry.ID = idgen.NewAuditID()
	entry.CreatedAt = s.now().UTC()
	if err := s.deps.Audit.RecordAudit(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().Err(err).Str("status", string(entry.Status)).Msg("record audit entry")
	}
}
