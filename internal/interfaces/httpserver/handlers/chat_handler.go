package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"jan-server/services/orchestrator-api/internal/domain/orchestrator"
	"jan-server/services/orchestrator-api/internal/domain/stream"
	"jan-server/services/orchestrator-api/internal/infrastructure/auth"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/requests"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/responses"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
	"jan-server/services/orchestrator-api/internal/utils/requestctx"
)

// ChatService runs chat requests through the pipeline.
type ChatService interface {
	Handle(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
	HandleStream(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, *stream.Stream, error)
}

// ChatHandler serves the chat completions endpoint.
type ChatHandler struct {
	service  ChatService
	validate *validator.Validate
	log      zerolog.Logger
}

func NewChatHandler(service ChatService, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service:  service,
		validate: requests.NewValidator(),
		log:      log.With().Str("handler", "chat").Logger(),
	}
}

// Create handles POST /v1/chat/completions
// @Summary Create a chat completion
// @Description Screens, routes and answers a conversation, running requested tools. With stream=true the answer is sent as server sent events.
// @Tags Chat
// @Accept json
// @Produce json
// @Produce text/event-stream
// @Param request body requests.ChatCompletionRequest true "Chat completion request"
// @Success 200 {object} responses.ChatCompletion
// @Failure 400 {object} platformerrors.HTTPErrorResponse
// @Failure 401 {object} platformerrors.HTTPErrorResponse
// @Failure 429 {object} platformerrors.HTTPErrorResponse
// @Failure 502 {object} platformerrors.HTTPErrorResponse
// @Router /v1/chat/completions [post]
func (h *ChatHandler) Create(c *gin.Context) {
	var req requests.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		platformerrors.WriteValidationError(c, requests.ValidationMessage(err))
		return
	}

	ctx := c.Request.Context()
	domainReq := req.ToDomain(requestctx.RequestID(ctx), auth.UserID(c))

	if !req.Stream {
		resp, err := h.service.Handle(ctx, domainReq)
		if err != nil {
			platformerrors.WriteHTTPError(c, toPlatformError(ctx, err), h.log)
			return
		}
		c.JSON(http.StatusOK, responses.NewChatCompletion(resp))
		return
	}

	_, chunks, err := h.service.HandleStream(ctx, domainReq)
	if err != nil {
		platformerrors.WriteHTTPError(c, toPlatformError(ctx, err), h.log)
		return
	}
	h.writeStream(c, chunks)
}

func (h *ChatHandler) writeStream(c *gin.Context, chunks *stream.Stream) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for {
		chunk, ok := chunks.Next()
		if !ok {
			return
		}
		if chunk.Done {
			_, _ = fmt.Fprint(c.Writer, "data: [DONE]\n\n")
			c.Writer.Flush()
			return
		}
		payload, err := json.Marshal(responses.NewChatCompletionChunk(chunk))
		if err != nil {
			h.log.Error().Err(err).Msg("marshal stream chunk")
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			h.log.Debug().Err(err).Msg("client went away mid stream")
			return
		}
		c.Writer.Flush()
	}
}
