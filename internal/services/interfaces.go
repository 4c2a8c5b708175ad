package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/repositories"
)

// OrderService drives the order lifecycle from checkout to delivery.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	ListOrders(ctx context.Context, query OrderListQuery) (domain.Page[domain.Order], error)
	GetOrder(ctx context.Context, actor Actor, orderID string) (domain.Order, error)
	UpdateOrderFlags(ctx context.Context, cmd UpdateOrderFlagsCommand) (domain.Order, error)
	UpdateItems(ctx context.Context, cmd UpdateItemsCommand) (ItemBatchResult, error)
	CancelOwnItem(ctx context.Context, cmd CancelOwnItemCommand) (domain.Order, error)
	RequestBulkClear(ctx context.Context, actor Actor) (BulkClearRequest, error)
	BulkClear(ctx context.Context, cmd BulkClearCommand) (BulkClearResult, error)
}

// SystemService reports service health.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// AuditLogService persists immutable audit entries. Failures never interrupt the caller.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
}

// NotificationPublisher delivers order events to the notification transport.
type NotificationPublisher interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
}

// OrderMetrics receives lifecycle counters.
type OrderMetrics interface {
	OrderCreated()
	OrderTransition(target, outcome string)
	ItemUpdate(status string, ok bool)
	StockReservationFailed()
	NotificationFailed(event string)
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID     string
	Email      string
	BackOffice bool
	Admin      bool
	RequestID  string
}

// ClientTotals are the totals the client computed. They are advisory only.
type ClientTotals struct {
	ItemsPrice    decimal.Decimal
	ShippingPrice decimal.Decimal
	TaxPrice      decimal.Decimal
	TotalPrice    decimal.Decimal
}

type CreateOrderCommand struct {
	Actor           Actor
	Lines           []domain.CartLine
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	ClientTotals    *ClientTotals
}

// OrderListQuery lists the actor's own orders, or every order when AllUsers is set by back office staff.
type OrderListQuery struct {
	Actor    Actor
	AllUsers bool
	Filter   repositories.OrderListFilter
}

type UpdateOrderFlagsCommand struct {
	Actor   Actor
	OrderID string
	Flags   domain.OrderFlags
}

type ItemStatusChange struct {
	ItemID       string
	Status       string
	CancelReason string
}

type UpdateItemsCommand struct {
	Actor   Actor
	OrderID string
	Updates []ItemStatusChange
}

// ItemResult is the outcome of one entry of an item batch.
type ItemResult struct {
	ItemID    string
	Status    domain.ItemStatus
	OK        bool
	ErrorCode string
	Message   string
}

type ItemBatchResult struct {
	Order   domain.Order
	Results []ItemResult
}

type CancelOwnItemCommand struct {
	Actor   Actor
	OrderID string
	ItemID  string
	Reason  string
}

type BulkClearRequest struct {
	Token      string
	ExpiresAt  time.Time
	OrderCount int64
}

type BulkClearCommand struct {
	Actor  Actor
	Token  string
	Phrase string
}

type BulkClearResult struct {
	Deleted int64
}

// OrderFeatures toggles optional order behaviour.
type OrderFeatures struct {
	OwnerItemCancel bool
	OnlinePayments  bool
	BulkClear       bool
}

// AuditLogRecord defines the payload accepted by the audit writer service.
type AuditLogRecord struct {
	Actor                 string
	ActorType             string
	Action                string
	TargetRef             string
	Severity              string
	RequestID             string
	OccurredAt            time.Time
	Metadata              map[string]any
	Diff                  map[string]AuditLogDiff
	SensitiveMetadataKeys []string
}

// AuditLogDiff captures before/after values for tracked fields.
type AuditLogDiff struct {
	Before any
	After  any
}
