package httpclients

import (
	"context"
	"time"

	"resty.dev/v3"

	"jan-server/services/orchestrator-api/internal/infrastructure/logger"
	"jan-server/services/orchestrator-api/internal/utils/requestctx"
)

type startsAtKey struct{}

// NewClient returns a resty client that logs every exchange at debug level
// under clientName.
func NewClient(clientName, baseURL string, timeout time.Duration) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), startsAtKey{}, time.Now()))
		if requestID := requestctx.RequestID(r.Context()); requestID != "" {
			r.SetHeader("X-Request-ID", requestID)
		}
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		log := logger.GetLogger()
		startTime, _ := r.Request.Context().Value(startsAtKey{}).(time.Time)
		event := log.Debug().
			Str("request_id", requestctx.RequestID(r.Request.Context())).
			Str("client", clientName).
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(startTime))
		if raw := r.Request.RawRequest; raw != nil {
			event = event.Str("method", raw.Method).Str("path", raw.URL.Path)
		}
		event.Msg("HTTP client request")
		return nil
	})
	return client
}
