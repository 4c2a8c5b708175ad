package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/textutil"
	"github.com/tailorline/storefront/internal/repositories"
)

const (
	// BulkClearPhrase must be typed by the admin to purge every order.
	BulkClearPhrase = "DELETE ALL ORDERS"

	cancelReasonLimit = 500
	maxItemBatch      = 100

	transitionApplied  = "applied"
	transitionNoop     = "noop"
	transitionConflict = "conflict"
)

var tracer = otel.Tracer("github.com/tailorline/storefront/internal/services")

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders              repositories.OrderRepository
	Catalog             repositories.ProductCatalog
	Inventory           repositories.InventoryLedger
	// Pricing defaults to domain.DefaultPricingPolicy when nil.
	Pricing             *domain.PricingPolicy
	Notifications       NotificationPublisher
	NotificationTimeout time.Duration
	Audit               AuditLogService
	Confirmations       *ConfirmationIssuer
	Metrics             OrderMetrics
	Features            OrderFeatures
	Clock               func() time.Time
	IDGenerator         func() string
	EventIDGenerator    func() string
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	inventory     repositories.InventoryLedger
	factory       orderFactory
	notifier      notifier
	audit         AuditLogService
	confirmations *ConfirmationIssuer
	metrics       OrderMetrics
	features      OrderFeatures
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: product catalog is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory ledger is required")
	}
	if deps.Features.BulkClear && deps.Confirmations == nil {
		return nil, errors.New("order service: confirmation issuer is required when bulk clear is enabled")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utc := func() time.Time { return clock().UTC() }

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	eventIDGen := deps.EventIDGenerator
	if eventIDGen == nil {
		eventIDGen = uuid.NewString
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	var metrics OrderMetrics = noopMetrics{}
	if deps.Metrics != nil {
		metrics = deps.Metrics
	}

	pricing := domain.DefaultPricingPolicy()
	if deps.Pricing != nil {
		pricing = *deps.Pricing
	}

	return &orderService{
		orders:    deps.Orders,
		inventory: deps.Inventory,
		factory: orderFactory{
			catalog:  deps.Catalog,
			pricing:  pricing,
			features: deps.Features,
			clock:    utc,
			newID:    idGen,
			logger:   logger,
		},
		notifier: notifier{
			publisher: deps.Notifications,
			timeout:   deps.NotificationTimeout,
			newID:     eventIDGen,
			metrics:   metrics,
			logger:    logger,
		},
		audit:         deps.Audit,
		confirmations: deps.Confirmations,
		metrics:       metrics,
		features:      deps.Features,
		clock:         utc,
		logger:        logger,
	}, nil
}

// CreateOrder prices the cart, reserves stock for every line and persists the order. A failed insert
// releases the reservation again.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (order domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(attribute.String("user.id", cmd.Actor.UserID)))
	defer func() { endSpan(span, err) }()

	order, err = s.factory.build(ctx, cmd)
	if err != nil {
		return domain.Order{}, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int("order.items", len(order.Items)))

	lines := domain.ReservationLines(order.Items)
	if err := s.inventory.Reserve(ctx, lines); err != nil {
		if rollbackErr, ok := repositories.RollbackFailure(err); ok {
			s.logger(ctx, "order.reservation.rollback_failed", map[string]any{
				"orderId": order.ID,
				"error":   rollbackErr.Error(),
				"cause":   fmt.Sprint(rollbackErr.Err),
			})
		}
		mapped := mapRepositoryError("inventory.reserve", "order", order.ID, err)
		if errors.Is(mapped, ErrStockInsufficient) {
			s.metrics.StockReservationFailed()
		}
		return domain.Order{}, mapped
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if releaseErr := s.inventory.Release(context.WithoutCancel(ctx), lines); releaseErr != nil {
			s.logger(ctx, "order.reservation.release_failed", map[string]any{
				"orderId": order.ID,
				"error":   releaseErr.Error(),
			})
		}
		return domain.Order{}, mapRepositoryError("orders.insert", "order", order.ID, err)
	}

	s.metrics.OrderCreated()
	s.logger(ctx, "order.created", map[string]any{
		"orderId":    order.ID,
		"userId":     order.UserID,
		"items":      len(order.Items),
		"totalPrice": order.TotalPrice.StringFixed(2),
	})
	s.notifier.notify(ctx, domain.OrderEvent{
		Type:       domain.EventOrderConfirmation,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
		OccurredAt: order.CreatedAt,
	})
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery) (domain.Page[domain.Order], error) {
	filter := query.Filter
	if query.AllUsers {
		if !query.Actor.BackOffice {
			return domain.Page[domain.Order]{}, &AuthorizationError{Reason: "staff role required"}
		}
	} else {
		if strings.TrimSpace(query.Actor.UserID) == "" {
			return domain.Page[domain.Order]{}, &AuthorizationError{Reason: "authenticated user required"}
		}
		filter.UserID = query.Actor.UserID
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[domain.Order]{}, mapRepositoryError("orders.list", "order", "", err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, &ValidationError{Fields: map[string]string{"order_id": "is required"}}
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError("orders.get", "order", orderID, err)
	}
	if !actor.BackOffice && order.UserID != actor.UserID {
		return domain.Order{}, &AuthorizationError{Reason: "order belongs to another user"}
	}
	return order, nil
}

// UpdateOrderFlags raises milestone flags as one atomic transition. Reached milestones are no-ops.
func (s *orderService) UpdateOrderFlags(ctx context.Context, cmd UpdateOrderFlagsCommand) (order domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.UpdateOrderFlags", trace.WithAttributes(attribute.String("order.id", cmd.OrderID)))
	defer func() { endSpan(span, err) }()

	if !cmd.Actor.BackOffice {
		return domain.Order{}, &AuthorizationError{Reason: "staff role required"}
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, &ValidationError{Fields: map[string]string{"order_id": "is required"}}
	}
	flags := cmd.Flags
	if flags.Empty() {
		return domain.Order{}, &ValidationError{Fields: map[string]string{"flags": "at least one flag must be set"}}
	}
	flags.CancelReason = textutil.Sanitize(flags.CancelReason, cancelReasonLimit)
	if !flags.Cancel {
		flags.CancelReason = ""
	}

	result, err := s.orders.TransitionOrder(ctx, orderID, flags, s.clock())
	if err != nil {
		mapped := mapRepositoryError("orders.transition", "order", orderID, err)
		if errors.Is(mapped, ErrConflict) {
			for _, transition := range flags.Transitions() {
				s.metrics.OrderTransition(string(transition), transitionConflict)
			}
		}
		return domain.Order{}, mapped
	}

	applied := make(map[domain.OrderTransition]bool, len(result.Plan.Applied))
	for _, transition := range result.Plan.Applied {
		applied[transition] = true
	}
	for _, transition := range flags.Transitions() {
		outcome := transitionNoop
		if applied[transition] {
			outcome = transitionApplied
		}
		s.metrics.OrderTransition(string(transition), outcome)
	}
	if result.Plan.Noop() {
		return result.Order, nil
	}

	order = result.Order
	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"from":    string(result.Plan.From),
		"to":      string(order.Status),
		"actor":   cmd.Actor.UserID,
	})
	s.recordAudit(ctx, cmd.Actor, "order.status.update", order.ID, "info", map[string]AuditLogDiff{
		"status": {Before: string(result.Plan.From), After: string(order.Status)},
	}, map[string]any{"cancelReason": order.CancelReason})
	s.notifier.notify(ctx, domain.OrderEvent{
		Type:           domain.EventOrderStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         order.Status,
		PreviousStatus: result.Plan.From,
		TotalPrice:     order.TotalPrice,
		OccurredAt:     order.UpdatedAt,
	})
	return order, nil
}

// UpdateItems applies each entry independently and reports one result per entry.
func (s *orderService) UpdateItems(ctx context.Context, cmd UpdateItemsCommand) (batch ItemBatchResult, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.UpdateItems", trace.WithAttributes(
		attribute.String("order.id", cmd.OrderID),
		attribute.Int("items.requested", len(cmd.Updates)),
	))
	defer func() { endSpan(span, err) }()

	if !cmd.Actor.BackOffice {
		return ItemBatchResult{}, &AuthorizationError{Reason: "staff role required"}
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	verr := &ValidationError{}
	if orderID == "" {
		verr.add("order_id", "is required")
	}
	switch {
	case len(cmd.Updates) == 0:
		verr.add("item_updates", "at least one item update is required")
	case len(cmd.Updates) > maxItemBatch:
		verr.add("item_updates", fmt.Sprintf("at most %d item updates are allowed", maxItemBatch))
	}
	for i, update := range cmd.Updates {
		if strings.TrimSpace(update.ItemID) == "" {
			verr.add(fmt.Sprintf("item_updates[%d].item_id", i), "is required")
		}
	}
	if err := verr.orNil(); err != nil {
		return ItemBatchResult{}, err
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return ItemBatchResult{}, mapRepositoryError("orders.get", "order", orderID, err)
	}

	results := make([]ItemResult, 0, len(cmd.Updates))
	var changes []domain.ItemChange
	for _, update := range cmd.Updates {
		status := domain.ItemStatus(strings.ToLower(strings.TrimSpace(update.Status)))
		itemID := strings.TrimSpace(update.ItemID)
		res, err := s.orders.UpdateItemStatus(ctx, orderID, repositories.ItemStatusUpdate{
			ItemID:       itemID,
			Status:       status,
			CancelReason: textutil.Sanitize(update.CancelReason, cancelReasonLimit),
		}, s.clock())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ItemBatchResult{}, ctxErr
			}
			result := itemFailure(itemID, status, mapRepositoryError("orders.updateItem", "order", orderID, err))
			s.metrics.ItemUpdate(string(status), false)
			results = append(results, result)
			continue
		}
		order = res.Order
		s.metrics.ItemUpdate(string(status), true)
		results = append(results, ItemResult{ItemID: itemID, Status: res.Change.Status, OK: true})
		if res.Changed {
			changes = append(changes, res.Change)
		}
	}

	if len(changes) > 0 {
		diff := make(map[string]AuditLogDiff, len(changes))
		for _, change := range changes {
			diff["items."+change.ItemID+".status"] = AuditLogDiff{Before: string(change.From), After: string(change.Status)}
		}
		s.recordAudit(ctx, cmd.Actor, "order.items.update", order.ID, "info", diff, nil)
		for _, change := range changes {
			s.notifier.notify(ctx, domain.OrderEvent{
				Type:       domain.EventOrderStatusChanged,
				OrderID:    order.ID,
				UserID:     order.UserID,
				Status:     order.Status,
				ItemID:     change.ItemID,
				ItemStatus: change.Status,
				TotalPrice: order.TotalPrice,
				OccurredAt: order.UpdatedAt,
			})
		}
	}
	span.SetAttributes(attribute.Int("items.changed", len(changes)))
	return ItemBatchResult{Order: order, Results: results}, nil
}

// CancelOwnItem lets a customer cancel a pending item while the order is still pending or confirmed.
func (s *orderService) CancelOwnItem(ctx context.Context, cmd CancelOwnItemCommand) (domain.Order, error) {
	if !s.features.OwnerItemCancel {
		return domain.Order{}, fmt.Errorf("%w: owner item cancellation", ErrFeatureDisabled)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	itemID := strings.TrimSpace(cmd.ItemID)

	current, err := s.GetOrder(ctx, Actor{UserID: cmd.Actor.UserID}, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if _, _, ok := current.Item(itemID); !ok {
		return domain.Order{}, &NotFoundError{Resource: "item", ID: itemID}
	}

	res, err := s.orders.UpdateItemStatus(ctx, orderID, repositories.ItemStatusUpdate{
		ItemID:       itemID,
		Status:       domain.ItemStatusCancelled,
		CancelReason: textutil.Sanitize(cmd.Reason, cancelReasonLimit),
		Guard: func(order domain.Order, item domain.OrderItem) error {
			if order.UserID != cmd.Actor.UserID {
				return &AuthorizationError{Reason: "order belongs to another user"}
			}
			if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusConfirmed {
				return &ConflictError{Reason: fmt.Sprintf("items cannot be cancelled once the order is %s", order.Status)}
			}
			if item.Status != domain.ItemStatusPending {
				return &ConflictError{Reason: fmt.Sprintf("item is %s and can no longer be cancelled", item.Status)}
			}
			return nil
		},
	}, s.clock())
	if err != nil {
		mapped := mapRepositoryError("orders.cancelItem", "order", orderID, err)
		var itemErr *domain.ItemTransitionError
		if errors.As(mapped, &itemErr) {
			if itemErr.Code == domain.ItemErrorNotFound {
				return domain.Order{}, &NotFoundError{Resource: "item", ID: itemID}
			}
			return domain.Order{}, &ConflictError{Reason: itemErr.Reason}
		}
		return domain.Order{}, mapped
	}
	s.metrics.ItemUpdate(string(domain.ItemStatusCancelled), true)

	if res.Changed {
		s.recordAudit(ctx, cmd.Actor, "order.item.cancel", res.Order.ID, "info", map[string]AuditLogDiff{
			"items." + itemID + ".status": {Before: string(res.Change.From), After: string(res.Change.Status)},
		}, nil)
		s.notifier.notify(ctx, domain.OrderEvent{
			Type:       domain.EventOrderStatusChanged,
			OrderID:    res.Order.ID,
			UserID:     res.Order.UserID,
			Status:     res.Order.Status,
			ItemID:     itemID,
			ItemStatus: res.Change.Status,
			TotalPrice: res.Order.TotalPrice,
			OccurredAt: res.Order.UpdatedAt,
		})
	}
	return res.Order, nil
}

// RequestBulkClear issues the confirmation token required by BulkClear.
func (s *orderService) RequestBulkClear(ctx context.Context, actor Actor) (BulkClearRequest, error) {
	if err := s.checkBulkClear(actor); err != nil {
		return BulkClearRequest{}, err
	}
	count, err := s.orders.Count(ctx)
	if err != nil {
		return BulkClearRequest{}, mapRepositoryError("orders.count", "order", "", err)
	}
	confirmation, err := s.confirmations.Issue(actor.UserID, count)
	if err != nil {
		return BulkClearRequest{}, &PersistenceError{Op: "confirmation.issue", Err: err}
	}
	s.recordAudit(ctx, actor, "orders.bulk_clear.requested", "orders", "warn", nil, map[string]any{
		"orderCount": count,
		"tokenId":    confirmation.TokenID,
	})
	return BulkClearRequest{Token: confirmation.Token, ExpiresAt: confirmation.ExpiresAt, OrderCount: count}, nil
}

// BulkClear deletes every order once the admin presents a valid token and the confirmation phrase.
func (s *orderService) BulkClear(ctx context.Context, cmd BulkClearCommand) (result BulkClearResult, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.BulkClear")
	defer func() { endSpan(span, err) }()

	if err := s.checkBulkClear(cmd.Actor); err != nil {
		return BulkClearResult{}, err
	}
	verr := &ValidationError{}
	if strings.TrimSpace(cmd.Phrase) != BulkClearPhrase {
		verr.add("confirmation_phrase", fmt.Sprintf("must be %q", BulkClearPhrase))
	}
	tokenID, tokenErr := s.confirmations.Verify(cmd.Token, cmd.Actor.UserID)
	if tokenErr != nil {
		verr.add("confirmation_token", tokenErr.Error())
	}
	if err := verr.orNil(); err != nil {
		return BulkClearResult{}, err
	}

	deleted, err := s.orders.DeleteAll(ctx)
	if err != nil {
		return BulkClearResult{}, mapRepositoryError("orders.deleteAll", "order", "", err)
	}
	s.logger(ctx, "orders.bulk_clear", map[string]any{"deleted": deleted, "actor": cmd.Actor.UserID})
	s.recordAudit(ctx, cmd.Actor, "orders.bulk_clear", "orders", "warn", nil, map[string]any{
		"deleted": deleted,
		"tokenId": tokenID,
	})
	return BulkClearResult{Deleted: deleted}, nil
}

func (s *orderService) checkBulkClear(actor Actor) error {
	if !actor.Admin {
		return &AuthorizationError{Reason: "admin role required"}
	}
	if !s.features.BulkClear || s.confirmations == nil {
		return fmt.Errorf("%w: bulk clear", ErrFeatureDisabled)
	}
	return nil
}

func (s *orderService) recordAudit(ctx context.Context, actor Actor, action, target, severity string, diff map[string]AuditLogDiff, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	actorType := "user"
	switch {
	case actor.Admin:
		actorType = "admin"
	case actor.BackOffice:
		actorType = "staff"
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:                 actor.UserID,
		ActorType:             actorType,
		Action:                action,
		TargetRef:             target,
		Severity:              severity,
		RequestID:             actor.RequestID,
		Metadata:              metadata,
		Diff:                  diff,
		SensitiveMetadataKeys: []string{"tokenId"},
	})
}

func itemFailure(itemID string, status domain.ItemStatus, err error) ItemResult {
	result := ItemResult{ItemID: itemID, Status: status, Message: err.Error()}
	var itemErr *domain.ItemTransitionError
	switch {
	case errors.As(err, &itemErr):
		result.ErrorCode = itemErr.Code
		result.Message = itemErr.Reason
	case errors.Is(err, ErrNotFound):
		result.ErrorCode = "order_not_found"
	case errors.Is(err, ErrConflict):
		result.ErrorCode = "order_conflict"
	default:
		result.ErrorCode = "internal_error"
		result.Message = "item could not be updated"
	}
	return result
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
