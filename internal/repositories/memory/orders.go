package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/repositories"
)

type storedOrder struct {
	order  domain.Order
	tokens map[string]struct{}
}

// OrderRepository stores orders under a single mutex so each update is atomic.
type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]storedOrder
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository returns an empty repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]storedOrder)}
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return conflict("orders.insert", order.ID)
	}
	r.orders[order.ID] = newStoredOrder(order)
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", orderID)
	}
	return stored.order.Clone(), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if err := ctx.Err(); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	filter = filter.Normalized()

	r.mu.Lock()
	matched := make([]domain.Order, 0, len(r.orders))
	for _, stored := range r.orders {
		if matches(stored, filter) {
			matched = append(matched, stored.order.Clone())
		}
	}
	r.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		less := compareOrders(matched[i], matched[j], filter.Sort)
		if less == 0 {
			less = strings.Compare(matched[i].ID, matched[j].ID)
		}
		if filter.Order == domain.SortAsc {
			return less < 0
		}
		return less > 0
	})

	total := int64(len(matched))
	start := filter.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return domain.NewPage(matched[start:end], filter.Page, filter.Limit, total), nil
}

func (r *OrderRepository) TransitionOrder(ctx context.Context, orderID string, flags domain.OrderFlags, now time.Time) (repositories.OrderTransitionResult, error) {
	if err := ctx.Err(); err != nil {
		return repositories.OrderTransitionResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[orderID]
	if !ok {
		return repositories.OrderTransitionResult{}, notFound("orders.transition", orderID)
	}
	plan, err := domain.PlanOrderTransition(stored.order, flags, now)
	if err != nil {
		return repositories.OrderTransitionResult{}, err
	}
	updated := plan.Apply(stored.order, now)
	r.orders[orderID] = newStoredOrder(updated)
	return repositories.OrderTransitionResult{Order: updated.Clone(), Plan: plan}, nil
}

func (r *OrderRepository) UpdateItemStatus(ctx context.Context, orderID string, update repositories.ItemStatusUpdate, now time.Time) (repositories.ItemUpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return repositories.ItemUpdateResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[orderID]
	if !ok {
		return repositories.ItemUpdateResult{}, notFound("orders.update_item", orderID)
	}
	if update.Guard != nil {
		if item, _, found := stored.order.Item(update.ItemID); found {
			if err := update.Guard(stored.order, item); err != nil {
				return repositories.ItemUpdateResult{}, err
			}
		}
	}
	change, changed, err := domain.PlanItemTransition(stored.order, update.ItemID, update.Status, update.CancelReason, now)
	if err != nil {
		return repositories.ItemUpdateResult{}, err
	}
	if !changed {
		return repositories.ItemUpdateResult{Order: stored.order.Clone(), Change: change}, nil
	}
	updated := domain.ApplyItemChange(stored.order, change, now)
	r.orders[orderID] = newStoredOrder(updated)
	return repositories.ItemUpdateResult{Order: updated.Clone(), Change: change, Changed: true}, nil
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.orders)), nil
}

func (r *OrderRepository) DeleteAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := int64(len(r.orders))
	r.orders = make(map[string]storedOrder)
	return deleted, nil
}

func newStoredOrder(order domain.Order) storedOrder {
	tokens := make(map[string]struct{})
	for _, token := range repositories.OrderSearchTokens(order) {
		tokens[token] = struct{}{}
	}
	return storedOrder{order: order.Clone(), tokens: tokens}
}

func matches(stored storedOrder, filter repositories.OrderListFilter) bool {
	order := stored.order
	if filter.UserID != "" && order.UserID != filter.UserID {
		return false
	}
	if filter.Status != "" && order.Status != filter.Status {
		return false
	}
	if filter.CreatedAfter != nil && order.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && !order.CreatedAt.Before(*filter.CreatedBefore) {
		return false
	}
	for _, term := range filter.SearchTerms {
		if _, ok := stored.tokens[term]; !ok {
			return false
		}
	}
	return true
}

func compareOrders(a, b domain.Order, field domain.OrderSort) int {
	switch field {
	case domain.OrderSortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case domain.OrderSortTotalPrice:
		return a.TotalPrice.Cmp(b.TotalPrice)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
