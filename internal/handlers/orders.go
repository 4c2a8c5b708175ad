package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/auth"
	"github.com/tailorline/storefront/internal/platform/httpx"
	"github.com/tailorline/storefront/internal/platform/pagination"
	"github.com/tailorline/storefront/internal/platform/textutil"
	"github.com/tailorline/storefront/internal/repositories"
	"github.com/tailorline/storefront/internal/services"
)

const (
	maxCreateOrderBodySize = 64 * 1024
	maxCancelItemBodySize  = 4 * 1024
	statusProcessing       = "processing"
)

var orderListOptions = pagination.Options{
	DefaultLimit:      pagination.DefaultLimit,
	MaxLimit:          pagination.DefaultMaxLimit,
	AllowedSortFields: []string{string(domain.OrderSortCreatedAt), string(domain.OrderSortUpdatedAt), string(domain.OrderSortTotalPrice)},
	DefaultSort:       string(domain.OrderSortCreatedAt),
}

// OrderHandlers exposes the customer facing order endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
	limiter     rateLimiter
	throttle    func(http.Handler) http.Handler
}

// OrderOption customises OrderHandlers.
type OrderOption func(*OrderHandlers)

// WithOrderIdempotency wraps order creation with the supplied idempotency middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithCheckoutRateLimit caps order creation per user within window. A non-positive limit disables it.
func WithCheckoutRateLimit(limit int, window time.Duration, clock func() time.Time) OrderOption {
	return func(h *OrderHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, clock)
	}
}

// WithOrderRateLimit caps every order request per authenticated user within window.
func WithOrderRateLimit(limit int, window time.Duration, clock func() time.Time) OrderOption {
	return func(h *OrderHandlers) {
		h.throttle = RateLimitMiddleware(limit, window, clock)
	}
}

// NewOrderHandlers constructs the customer order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	if h.throttle != nil {
		r.Use(h.throttle)
	}
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.idempotency != nil {
		create = h.idempotency(create)
	}
	r.Method(http.MethodPost, "/", create)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/items/{itemID}/cancel", h.cancelItem)
}

type createOrderRequest struct {
	OrderItems      []orderLineRequest     `json:"order_items"`
	ShippingAddress shippingAddressRequest `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	ItemsPrice      *decimal.Decimal       `json:"items_price"`
	ShippingPrice   *decimal.Decimal       `json:"shipping_price"`
	TaxPrice        *decimal.Decimal       `json:"tax_price"`
	TotalPrice      *decimal.Decimal       `json:"total_price"`
}

type orderLineRequest struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
}

type shippingAddressRequest struct {
	Address string `json:"address"`
	State   string `json:"state"`
	Phone   string `json:"phone"`
}

type cancelItemRequest struct {
	Reason string `json:"reason"`
}

func (req createOrderRequest) command(actor services.Actor) services.CreateOrderCommand {
	cmd := services.CreateOrderCommand{
		Actor: actor,
		Lines: make([]domain.CartLine, 0, len(req.OrderItems)),
		ShippingAddress: domain.ShippingAddress{
			Address: req.ShippingAddress.Address,
			State:   req.ShippingAddress.State,
			Phone:   req.ShippingAddress.Phone,
		},
		PaymentMethod: req.PaymentMethod,
	}
	for _, line := range req.OrderItems {
		cmd.Lines = append(cmd.Lines, domain.CartLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Image:     line.Image,
			Price:     line.Price,
			Quantity:  line.Quantity,
			Size:      line.Size,
			Color:     line.Color,
		})
	}
	if req.ItemsPrice != nil || req.ShippingPrice != nil || req.TaxPrice != nil || req.TotalPrice != nil {
		cmd.ClientTotals = &services.ClientTotals{
			ItemsPrice:    derefDecimal(req.ItemsPrice),
			ShippingPrice: derefDecimal(req.ShippingPrice),
			TaxPrice:      derefDecimal(req.TaxPrice),
			TotalPrice:    derefDecimal(req.TotalPrice),
		}
	}
	return cmd
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
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
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		w.Header().Set("Retry-After", "60")
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCreateOrderBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.CreateOrder(ctx, req.command(actorFromIdentity(r, identity)))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	httpx.WriteJSON(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	serveOrderList(w, r, h.orders, false)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	serveOrder(w, r, h.orders)
}

func (h *OrderHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
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

	var req cancelItemRequest
	body, err := readLimitedBody(r, maxCancelItemBodySize)
	switch {
	case errors.Is(err, errEmptyBody):
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusRequestEntityTooLarge))
		return
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	default:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.CancelOwnItem(ctx, services.CancelOwnItemCommand{
		Actor:   actorFromIdentity(r, identity),
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ItemID:  strings.TrimSpace(chi.URLParam(r, "itemID")),
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

// serveOrderList is shared by the customer and back office listings; allUsers widens the scope to
// every customer and is enforced again by the service.
func serveOrderList(w http.ResponseWriter, r *http.Request, orders services.OrderService, allUsers bool) {
	ctx := r.Context()
	if orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	filter, err := parseOrderListFilter(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_query", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := orders.ListOrders(ctx, services.OrderListQuery{
		Actor:    actorFromIdentity(r, identity),
		AllUsers: allUsers,
		Filter:   filter,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderListResponse(page))
}

func serveOrder(w http.ResponseWriter, r *http.Request, orders services.OrderService) {
	ctx := r.Context()
	if orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	order, err := orders.GetOrder(ctx, actorFromIdentity(r, identity), strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func parseOrderListFilter(values url.Values) (repositories.OrderListFilter, error) {
	params, err := pagination.Parse(values, orderListOptions)
	if err != nil {
		return repositories.OrderListFilter{}, err
	}
	filter := repositories.OrderListFilter{
		Sort:  domain.OrderSort(params.Sort),
		Order: domain.SortAsc,
		Page:  params.Page,
		Limit: params.Limit,
	}
	if params.Desc {
		filter.Order = domain.SortDesc
	}

	if search := strings.TrimSpace(values.Get("search")); search != "" {
		filter.SearchTerms = textutil.SearchTerms(search)
	}

	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		status, ok := parseOrderStatus(raw)
		if !ok {
			return repositories.OrderListFilter{}, errors.New("status must be one of pending, processing, shipped, delivered, cancelled")
		}
		filter.Status = status
	}

	if raw := values.Get("created_after"); strings.TrimSpace(raw) != "" {
		ts, err := parseTimeParam(raw, false)
		if err != nil {
			return repositories.OrderListFilter{}, errors.New("created_after " + err.Error())
		}
		filter.CreatedAfter = &ts
	}
	if raw := values.Get("created_before"); strings.TrimSpace(raw) != "" {
		ts, err := parseTimeParam(raw, true)
		if err != nil {
			return repositories.OrderListFilter{}, errors.New("created_before " + err.Error())
		}
		filter.CreatedBefore = &ts
	}
	if filter.CreatedAfter != nil && filter.CreatedBefore != nil && !filter.CreatedAfter.Before(*filter.CreatedBefore) {
		return repositories.OrderListFilter{}, errors.New("created_after must be before created_before")
	}
	return filter, nil
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == statusProcessing {
		return domain.OrderStatusConfirmed, true
	}
	status := domain.OrderStatus(value)
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return status, true
	}
	return "", false
}

func derefDecimal(value *decimal.Decimal) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return *value
}
