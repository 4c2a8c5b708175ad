package repositories

import (
	"context"
	"math"
	"time"

	domain "github.com/tailorline/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for one storage driver.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Orders() OrderRepository
	Catalog() ProductCatalog
	Inventory() InventoryLedger
	AuditLogs() AuditLogRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists orders. Status and item updates are applied atomically against the
// stored state; implementations plan them with domain.PlanOrderTransition and
// domain.PlanItemTransition so a concurrent writer can never be overwritten.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	// TransitionOrder raises flags on the stored order. Domain transition errors are returned unwrapped.
	TransitionOrder(ctx context.Context, orderID string, flags domain.OrderFlags, now time.Time) (OrderTransitionResult, error)
	// UpdateItemStatus moves one item. Domain item errors are returned unwrapped.
	UpdateItemStatus(ctx context.Context, orderID string, update ItemStatusUpdate, now time.Time) (ItemUpdateResult, error)
	Count(ctx context.Context) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// OrderTransitionResult carries the persisted order and the plan that produced it.
type OrderTransitionResult struct {
	Order domain.Order
	Plan  domain.TransitionPlan
}

// ItemStatusUpdate requests moving one item to Status. Guard, when set, runs against the fresh
// stored state before planning and may veto the update.
type ItemStatusUpdate struct {
	ItemID       string
	Status       domain.ItemStatus
	CancelReason string
	Guard        func(order domain.Order, item domain.OrderItem) error
}

// ItemUpdateResult carries the persisted order and the applied change. Changed is false when the
// item already had the requested status.
type ItemUpdateResult struct {
	Order   domain.Order
	Change  domain.ItemChange
	Changed bool
}

// ProductCatalog reads product records owned by the catalog.
type ProductCatalog interface {
	// GetProducts returns the products found for ids; unknown ids are absent from the map.
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// InventoryLedger reserves stock with an all-or-nothing compare-and-decrement.
type InventoryLedger interface {
	// Reserve decrements stock for every line or none. Shortages are reported as *InventoryError.
	Reserve(ctx context.Context, lines []domain.ReservationLine) error
	// Release returns previously reserved quantities to stock.
	Release(ctx context.Context, lines []domain.ReservationLine) error
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows order listings. An empty UserID lists every user's orders.
type OrderListFilter struct {
	UserID        string
	SearchTerms   []string
	Status        domain.OrderStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Sort          domain.OrderSort
	Order         domain.SortOrder
	Page          int
	Limit         int
}

// maxListOffset saturates Offset so a huge page never wraps negative.
const maxListOffset = math.MaxInt32

// Offset returns the number of records skipped before the requested page.
func (f OrderListFilter) Offset() int {
	if f.Page <= 1 || f.Limit <= 0 {
		return 0
	}
	if f.Page-1 > maxListOffset/f.Limit {
		return maxListOffset
	}
	return (f.Page - 1) * f.Limit
}

// Normalized fills defaults for sort, direction, page and limit.
func (f OrderListFilter) Normalized() OrderListFilter {
	if f.Sort == "" {
		f.Sort = domain.OrderSortCreatedAt
	}
	if f.Order != domain.SortAsc {
		f.Order = domain.SortDesc
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return f
}
