package handlers

import (
	"context"
	"errors"

	"jan-server/services/orchestrator-api/internal/domain/guard"
	"jan-server/services/orchestrator-api/internal/domain/orchestrator"
	"jan-server/services/orchestrator-api/internal/domain/usage"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
)

// toPlatformError classifies a domain error for the HTTP layer. Messages are
// safe to show to callers.
func toPlatformError(ctx context.Context, err error) *platformerrors.PlatformError {
	if pe := platformerrors.GetPlatformError(err); pe != nil && !errors.Is(err, usage.ErrQuotaNotFound) {
		return pe
	}

	var rejection *guard.RejectionError
	switch {
	case errors.As(err, &rejection):
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeInputRejected,
			"input rejected: "+rejection.Reason, err, "b1c2d3e4-0f1a-4b2c-8d3e-4f5a6b7c8d90")
	case errors.Is(err, orchestrator.ErrInputRejected):
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeInputRejected,
			"input rejected", err, "b1c2d3e4-0f1a-4b2c-8d3e-4f5a6b7c8d90")
	case errors.Is(err, orchestrator.ErrQuotaExceeded):
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeQuotaExceeded,
			"token quota exceeded for the current period", err, "c2d3e4f5-1a2b-4c3d-9e4f-5a6b7c8d9e01")
	case errors.Is(err, usage.ErrQuotaNotFound):
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeNotFound,
			"no quota configured for this user", err, "d3e4f5a6-2b3c-4d4e-af5a-6b7c8d9e0f12")
	case errors.Is(err, usage.ErrUnsupported):
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation,
			"operation not supported by the quota backend", err, "e4f5a6b7-3c4d-4e5f-b06b-7c8d9e0f1a23")
	case errors.Is(err, orchestrator.ErrUpstreamUnavailable):
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeUpstreamUnavailable,
			"model providers are unavailable, try again later", err, "f5a6b7c8-4d5e-4f6a-817c-8d9e0f1a2b34")
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation,
			err.Error(), err, "a6b7c8d9-5e6f-4a7b-928d-9e0f1a2b3c45")
	case errors.Is(err, context.DeadlineExceeded):
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeTimeout,
			"request timed out", err, "b7c8d9e0-6f7a-4b8c-a39e-0f1a2b3c4d56")
	case errors.Is(err, context.Canceled):
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeCancelled,
			"request cancelled", err, "c8d9e0f1-7a8b-4c9d-b4af-1a2b3c4d5e67")
	default:
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeInternal,
			"internal error", err, "d9e0f1a2-8b9c-4d0e-85b0-2b3c4d5e6f78")
	}
}
