package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/auth"
	"github.com/tailorline/storefront/internal/platform/httpx"
	"github.com/tailorline/storefront/internal/services"
)

const maxAdminOrderBodySize = 32 * 1024

// AdminOrderHandlers exposes the back office order endpoints under /admin/orders.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs the back office order handlers.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the admin order endpoints. Staff may read and update orders; bulk clear is admin only.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	r.Route("/orders", func(rt chi.Router) {
		rt.Get("/", h.listOrders)
		rt.With(auth.RequireRole(auth.RoleAdmin)).Delete("/", h.bulkClear)
		rt.With(auth.RequireRole(auth.RoleAdmin)).Post("/clear-requests", h.requestBulkClear)
		rt.Get("/{orderID}", h.getOrder)
		rt.Patch("/{orderID}", h.updateOrder)
	})
}

// adminOrderUpdateRequest is the union of the flag update and the item batch update. Exactly one
// shape may be present.
type adminOrderUpdateRequest struct {
	IsConfirmed  *bool                `json:"is_confirmed"`
	IsShipped    *bool                `json:"is_shipped"`
	IsDelivered  *bool                `json:"is_delivered"`
	IsCancelled  *bool                `json:"is_cancelled"`
	CancelReason *string              `json:"cancel_reason"`
	ItemUpdates  *[]itemUpdateRequest `json:"item_updates"`
}

type itemUpdateRequest struct {
	ItemID       string `json:"item_id"`
	Status       string `json:"status"`
	CancelReason string `json:"cancel_reason"`
}

type bulkClearRequest struct {
	ConfirmationToken  string `json:"confirmation_token"`
	ConfirmationPhrase string `json:"confirmation_phrase"`
}

type bulkClearRequestResponse struct {
	ConfirmationToken string `json:"confirmation_token"`
	ExpiresAt         string `json:"expires_at"`
	OrderCount        int64  `json:"order_count"`
}

type bulkClearResponse struct {
	Deleted int64 `json:"deleted"`
}

var (
	errAmbiguousUpdate = errors.New("request must contain either order flags or item_updates, not both")
	errEmptyUpdate     = errors.New("request must contain order flags or item_updates")
	errUncancel        = errors.New("is_cancelled only accepts true")
)

func (req adminOrderUpdateRequest) hasFlags() bool {
	return req.IsConfirmed != nil || req.IsShipped != nil || req.IsDelivered != nil || req.IsCancelled != nil || req.CancelReason != nil
}

func (req adminOrderUpdateRequest) validate() error {
	switch {
	case req.hasFlags() && req.ItemUpdates != nil:
		return errAmbiguousUpdate
	case !req.hasFlags() && req.ItemUpdates == nil:
		return errEmptyUpdate
	case req.IsCancelled != nil && !*req.IsCancelled:
		return errUncancel
	}
	return nil
}

func (req adminOrderUpdateRequest) flags() domain.OrderFlags {
	flags := domain.OrderFlags{
		Confirm: derefBool(req.IsConfirmed),
		Ship:    derefBool(req.IsShipped),
		Deliver: derefBool(req.IsDelivered),
		Cancel:  derefBool(req.IsCancelled),
	}
	if req.CancelReason != nil {
		flags.CancelReason = *req.CancelReason
	}
	return flags
}

func (req adminOrderUpdateRequest) itemChanges() []services.ItemStatusChange {
	updates := *req.ItemUpdates
	changes := make([]services.ItemStatusChange, 0, len(updates))
	for _, u := range updates {
		changes = append(changes, services.ItemStatusChange{
			ItemID:       strings.TrimSpace(u.ItemID),
			Status:       strings.ToLower(strings.TrimSpace(u.Status)),
			CancelReason: u.CancelReason,
		})
	}
	return changes
}

func decodeAdminOrderUpdate(body []byte) (adminOrderUpdateRequest, error) {
	var req adminOrderUpdateRequest
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return adminOrderUpdateRequest{}, errors.New("request body must be a valid order update")
	}
	if err := req.validate(); err != nil {
		return adminOrderUpdateRequest{}, err
	}
	return req, nil
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	serveOrderList(w, r, h.orders, true)
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	serveOrder(w, r, h.orders)
}

func (h *AdminOrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxAdminOrderBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}
	req, err := decodeAdminOrderUpdate(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	actor := actorFromIdentity(r, identity)
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	if req.ItemUpdates != nil {
		result, err := h.orders.UpdateItems(ctx, services.UpdateItemsCommand{
			Actor:   actor,
			OrderID: orderID,
			Updates: req.itemChanges(),
		})
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, buildItemBatchResponse(result))
		return
	}

	order, err := h.orders.UpdateOrderFlags(ctx, services.UpdateOrderFlagsCommand{
		Actor:   actor,
		OrderID: orderID,
		Flags:   req.flags(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) requestBulkClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	request, err := h.orders.RequestBulkClear(ctx, actorFromIdentity(r, identity))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bulkClearRequestResponse{
		ConfirmationToken: request.Token,
		ExpiresAt:         request.ExpiresAt.UTC().Format(time.RFC3339),
		OrderCount:        request.OrderCount,
	})
}

func (h *AdminOrderHandlers) bulkClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxAdminOrderBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var req bulkClearRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	result, err := h.orders.BulkClear(ctx, services.BulkClearCommand{
		Actor:  actorFromIdentity(r, identity),
		Token:  strings.TrimSpace(req.ConfirmationToken),
		Phrase: req.ConfirmationPhrase,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bulkClearResponse{Deleted: result.Deleted})
}

func derefBool(value *bool) bool {
	return value != nil && *value
}
