package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tailorline/storefront/internal/platform/httpx"
	"github.com/tailorline/storefront/internal/platform/observability"
	"github.com/tailorline/storefront/internal/services"
)

type shortagePayload struct {
	ProductID string `json:"product_id"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

// writeServiceError maps typed service errors onto the JSON error envelope. Unexpected failures are
// logged in full and reported to the client as internal_error.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var (
		validationErr *services.ValidationError
		stockErr      *services.StockInsufficientError
		notFoundErr   *services.NotFoundError
		conflictErr   *services.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		fields := make(map[string]any, len(validationErr.Fields))
		for field, message := range validationErr.Fields {
			fields[field] = message
		}
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "request validation failed", http.StatusBadRequest).
			WithDetails(map[string]any{"fields": fields}))
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", err.Error(), http.StatusBadRequest))
	case errors.As(err, &stockErr):
		shortages := make([]shortagePayload, 0, len(stockErr.Shortages))
		for _, s := range stockErr.Shortages {
			shortages = append(shortages, shortagePayload{ProductID: s.ProductID, Requested: s.Requested, Available: s.Available})
		}
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock for one or more products", http.StatusBadRequest).
			WithDetails(map[string]any{"shortages": shortages}))
	case errors.Is(err, services.ErrPaymentMethodUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_method_unavailable", "payment method is not available", http.StatusBadRequest))
	case errors.As(err, &notFoundErr):
		code := "order_not_found"
		if notFoundErr.Resource == "item" {
			code = "item_not_found"
		}
		httpx.WriteError(ctx, w, httpx.NewError(code, notFoundErr.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrFeatureDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("feature_disabled", "this operation is not enabled", http.StatusNotFound))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "you do not have access to this resource", http.StatusForbidden))
	case errors.As(err, &conflictErr):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", conflictErr.Reason, http.StatusConflict))
	case errors.Is(err, services.ErrConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order state conflict", http.StatusConflict))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		observability.FromContext(ctx).Error("order request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}
