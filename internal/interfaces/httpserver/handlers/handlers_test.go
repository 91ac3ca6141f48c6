package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/orchestrator-api/internal/domain/audit"
	"jan-server/services/orchestrator-api/internal/domain/guard"
	"jan-server/services/orchestrator-api/internal/domain/model"
	"jan-server/services/orchestrator-api/internal/domain/orchestrator"
	"jan-server/services/orchestrator-api/internal/domain/stream"
	"jan-server/services/orchestrator-api/internal/domain/tool"
	"jan-server/services/orchestrator-api/internal/domain/usage"
	"jan-server/services/orchestrator-api/internal/infrastructure/auth"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/responses"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockChatService is a function-field mock of handlers.ChatService.
type MockChatService struct {
	HandleFunc       func(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
	HandleStreamFunc func(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, *stream.Stream, error)
}

func (m *MockChatService) Handle(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	if m.HandleFunc != nil {
		return m.HandleFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockChatService) HandleStream(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, *stream.Stream, error) {
	if m.HandleStreamFunc != nil {
		return m.HandleStreamFunc(ctx, req)
	}
	return nil, nil, nil
}

// MockUsageService is a function-field mock of handlers.UsageService.
type MockUsageService struct {
	SummaryFunc      func(ctx context.Context, userID string) (*usage.Summary, error)
	SetTierFunc      func(ctx context.Context, userID string, tier usage.Tier) (*usage.Quota, error)
	ResetExpiredFunc func(ctx context.Context) (int64, error)
}

func (m *MockUsageService) Summary(ctx context.Context, userID string) (*usage.Summary, error) {
	if m.SummaryFunc != nil {
		return m.SummaryFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockUsageService) SetTier(ctx context.Context, userID string, tier usage.Tier) (*usage.Quota, error) {
	if m.SetTierFunc != nil {
		return m.SetTierFunc(ctx, userID, tier)
	}
	return nil, nil
}

func (m *MockUsageService) ResetExpired(ctx context.Context) (int64, error) {
	if m.ResetExpiredFunc != nil {
		return m.ResetExpiredFunc(ctx)
	}
	return 0, nil
}

// MockAuditRepository is a function-field mock of audit.Repository.
type MockAuditRepository struct {
	ListByUserFunc func(ctx context.Context, userID string, limit int) ([]audit.Entry, error)
}

func (m *MockAuditRepository) RecordAudit(context.Context, audit.Entry) error { return nil }

func (m *MockAuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]audit.Entry, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit)
	}
	return nil, nil
}

func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextUserID, userID)
		c.Next()
	}
}

func setupChatRouter(svc handlers.ChatService) *gin.Engine {
	router := gin.New()
	h := handlers.NewChatHandler(svc, zerolog.Nop())
	router.POST("/v1/chat/completions", asUser("user-1"), h.Create)
	return router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) platformerrors.HTTPErrorDetail {
	t.Helper()
	var body platformerrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return *body.Error
}

func TestChatHandler_Create(t *testing.T) {
	var got orchestrator.Request
	svc := &MockChatService{
		HandleFunc: func(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
			got = req
			return &orchestrator.Response{
				ID:           "chatcmpl-1",
				Model:        model.ModelGPT4,
				Provider:     "openai",
				Content:      "Hello!",
				FinishReason: orchestrator.FinishReasonStop,
				Usage: orchestrator.Usage{
					PromptTokens:     10,
					CompletionTokens: 5,
					TotalTokens:      15,
					Cost:             decimal.RequireFromString("0.0006"),
				},
				Created: time.Unix(1700000000, 0),
			}, nil
		},
	}

	w := postJSON(setupChatRouter(svc), "/v1/chat/completions",
		`{"model":"gpt-4","messages":[{"role":"user","content":"hi"}],"tools":["calculator"],"session_id":"s-1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "s-1", got.SessionID)
	assert.Equal(t, []string{"calculator"}, got.Tools)
	require.Len(t, got.Messages, 1)

	var body responses.ChatCompletion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "chat.completion", body.Object)
	assert.Equal(t, "Hello!", body.Choices[0].Message.Content)
	assert.Equal(t, "stop", body.Choices[0].FinishReason)
	assert.Equal(t, 15, body.Usage.TotalTokens)
	assert.Equal(t, "0.000600", body.Usage.Cost)
	assert.Empty(t, body.ToolCalls)
}

func TestChatHandler_CreateValidation(t *testing.T) {
	called := false
	svc := &MockChatService{
		HandleFunc: func(context.Context, orchestrator.Request) (*orchestrator.Response, error) {
			called = true
			return nil, nil
		},
	}
	router := setupChatRouter(svc)

	cases := map[string]string{
		"malformed":     `{"messages":`,
		"no messages":   `{"messages":[]}`,
		"bad role":      `{"messages":[{"role":"tool","content":"x"}]}`,
		"hot sampling":  `{"messages":[{"role":"user","content":"x"}],"temperature":3}`,
		"blank tool":    `{"messages":[{"role":"user","content":"x"}],"tools":[""]}`,
		"negative caps": `{"messages":[{"role":"user","content":"x"}],"max_tokens":-1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := postJSON(router, "/v1/chat/completions", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "validation_error", decodeError(t, w).Type)
		})
	}
	assert.False(t, called)
}

func TestChatHandler_CreateErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"injection", &guard.RejectionError{Reason: "prompt injection detected"}, http.StatusBadRequest, "input_rejected_error"},
		{"quota", fmt.Errorf("admit: %w", orchestrator.ErrQuotaExceeded), http.StatusTooManyRequests, "quota_exceeded_error"},
		{"upstream", orchestrator.ErrUpstreamUnavailable, http.StatusBadGateway, "upstream_unavailable_error"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &MockChatService{
				HandleFunc: func(context.Context, orchestrator.Request) (*orchestrator.Response, error) {
					return nil, tc.err
				},
			}
			w := postJSON(setupChatRouter(svc), "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.kind, decodeError(t, w).Type)
		})
	}
}

func TestChatHandler_CreateRejectionReasonShown(t *testing.T) {
	svc := &MockChatService{
		HandleFunc: func(context.Context, orchestrator.Request) (*orchestrator.Response, error) {
			return nil, &guard.RejectionError{Reason: "input too long"}
		},
	}
	w := postJSON(setupChatRouter(svc), "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Contains(t, decodeError(t, w).Message, "input too long")
}

func TestChatHandler_CreateStream(t *testing.T) {
	svc := &MockChatService{
		HandleStreamFunc: func(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, *stream.Stream, error) {
			s := stream.NewEmitter().StreamWith("chatcmpl-9", model.ModelGPT35, "hello there world", orchestrator.FinishReasonStop)
			return &orchestrator.Response{ID: "chatcmpl-9"}, s, nil
		},
	}

	w := postJSON(setupChatRouter(svc), "/v1/chat/completions", `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	require.Len(t, events, 4)
	assert.Equal(t, "data: [DONE]", events[3])

	var text strings.Builder
	for i, event := range events[:3] {
		require.True(t, strings.HasPrefix(event, "data: "))
		var chunk responses.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(event, "data: ")), &chunk))
		assert.Equal(t, "chatcmpl-9", chunk.ID)
		assert.Equal(t, "chat.completion.chunk", chunk.Object)
		text.WriteString(chunk.Choices[0].Delta.Content)
		if i < 2 {
			assert.Nil(t, chunk.Choices[0].FinishReason)
		} else {
			require.NotNil(t, chunk.Choices[0].FinishReason)
			assert.Equal(t, "stop", *chunk.Choices[0].FinishReason)
		}
	}
	assert.Equal(t, "hello there world", text.String())
}

func TestChatHandler_CreateStreamErrorBeforeFirstChunk(t *testing.T) {
	svc := &MockChatService{
		HandleStreamFunc: func(context.Context, orchestrator.Request) (*orchestrator.Response, *stream.Stream, error) {
			return nil, nil, orchestrator.ErrQuotaExceeded
		},
	}
	w := postJSON(setupChatRouter(svc), "/v1/chat/completions", `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotContains(t, w.Body.String(), "[DONE]")
}

func TestCatalogHandler(t *testing.T) {
	echo := tool.ExecutorFunc(func(context.Context, map[string]any) (any, error) { return "ok", nil })
	tools, err := tool.NewRegistry(tool.Tool{Descriptor: tool.Descriptor{Name: "echo", Description: "echoes"}, Executor: echo})
	require.NoError(t, err)

	router := gin.New()
	h := handlers.NewCatalogHandler(model.NewDefaultRegistry(), tools)
	router.GET("/v1/models", h.ListModels)
	router.GET("/v1/tools", h.ListTools)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var models responses.ModelList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &models))
	assert.Len(t, models.Data, 3)

	fallbacks := map[string]string{}
	for _, m := range models.Data {
		fallbacks[m.ID] = m.Fallback
	}
	assert.Equal(t, model.ModelGPT4Turbo, fallbacks[model.ModelGPT4])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/tools", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"echo"`)
	assert.Contains(t, w.Body.String(), `"class":"lookup"`)
}

func setupUsageRouter(svc handlers.UsageService, audits audit.Repository) *gin.Engine {
	router := gin.New()
	h := handlers.NewUsageHandler(svc, audits, zerolog.Nop())
	router.GET("/v1/usage", asUser("user-1"), h.Summary)
	router.PUT("/v1/admin/quotas/:user_id", h.SetTier)
	router.POST("/v1/admin/quotas/reset", h.ResetExpired)
	router.GET("/v1/admin/audit", h.ListAudit)
	return router
}

func TestUsageHandler_Summary(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	svc := &MockUsageService{
		SummaryFunc: func(ctx context.Context, userID string) (*usage.Summary, error) {
			if userID != "user-1" {
				return nil, usage.ErrQuotaNotFound
			}
			q := usage.NewQuota(userID, usage.TierPro, now)
			q.TokensUsed = 1_050_000
			s := usage.Summarize(q)
			return &s, nil
		},
	}

	w := httptest.NewRecorder()
	setupUsageRouter(svc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/usage", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body responses.UsageSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pro", body.Tier)
	assert.Equal(t, int64(50_000), body.OverageTokens)
	assert.Equal(t, "2024-03-01T00:00:00Z", body.PeriodStart)
}

func TestUsageHandler_SummaryNotFound(t *testing.T) {
	svc := &MockUsageService{
		SummaryFunc: func(context.Context, string) (*usage.Summary, error) {
			return nil, usage.ErrQuotaNotFound
		},
	}
	w := httptest.NewRecorder()
	setupUsageRouter(svc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/usage", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUsageHandler_SetTier(t *testing.T) {
	var gotUser string
	var gotTier usage.Tier
	svc := &MockUsageService{
		SetTierFunc: func(ctx context.Context, userID string, tier usage.Tier) (*usage.Quota, error) {
			gotUser, gotTier = userID, tier
			q := usage.NewQuota(userID, tier, time.Now())
			return &q, nil
		},
	}
	router := setupUsageRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPut, "/v1/admin/quotas/alice", bytes.NewBufferString(`{"tier":"Enterprise"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, usage.TierEnterprise, gotTier)

	req = httptest.NewRequest(http.MethodPut, "/v1/admin/quotas/alice", bytes.NewBufferString(`{"tier":"platinum"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsageHandler_ResetExpired(t *testing.T) {
	svc := &MockUsageService{
		ResetExpiredFunc: func(context.Context) (int64, error) { return 3, nil },
	}
	w := postJSON(setupUsageRouter(svc, nil), "/v1/admin/quotas/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reset":3}`, w.Body.String())

	svc.ResetExpiredFunc = func(context.Context) (int64, error) { return 0, usage.ErrUnsupported }
	w = postJSON(setupUsageRouter(svc, nil), "/v1/admin/quotas/reset", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsageHandler_ListAudit(t *testing.T) {
	var gotLimit int
	repo := &MockAuditRepository{
		ListByUserFunc: func(ctx context.Context, userID string, limit int) ([]audit.Entry, error) {
			gotLimit = limit
			return []audit.Entry{{ID: "a-1", UserID: userID, Status: audit.StatusCompleted}}, nil
		},
	}
	router := setupUsageRouter(&MockUsageService{}, repo)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/audit?user_id=bob&limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, gotLimit)
	var body responses.AuditList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "bob", body.Data[0].UserID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/audit", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/audit?user_id=bob&limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
