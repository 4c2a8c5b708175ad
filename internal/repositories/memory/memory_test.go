package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/textutil"
	"github.com/tailorline/storefront/internal/repositories"
)

var base = time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC)

func newOrder(id, user string, total int64, created time.Time) domain.Order {
	items := []domain.OrderItem{{ID: id + "_a", ProductID: "p1", Name: "Linen Shirt", Price: decimal.NewFromInt(total), Quantity: 1, Status: domain.ItemStatusPending}}
	totals := domain.DefaultPricingPolicy().Compute(items)
	return domain.Order{
		ID: id, UserID: user, Items: items, Status: domain.OrderStatusPending,
		ShippingAddress: domain.ShippingAddress{Address: "12 Harbour Road", State: "Lagos", Phone: "+234 801 555 0100"},
		PaymentMethod:   domain.PaymentPayOnDelivery,
		ItemsPrice:      totals.ItemsPrice, ShippingPrice: totals.ShippingPrice, TaxPrice: totals.TaxPrice, TotalPrice: totals.TotalPrice,
		CreatedAt: created, UpdatedAt: created,
	}
}

func TestLedgerReserveIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog()
	catalog.Put(domain.Product{ID: "p1", Stock: 5}, domain.Product{ID: "p2", Stock: 1})

	err := catalog.Reserve(ctx, []domain.ReservationLine{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 3}, {ProductID: "ghost", Quantity: 1}})
	var invErr *repositories.InventoryError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, repositories.InventoryErrorInsufficientStock, invErr.Code)
	require.Len(t, invErr.Shortages, 2)
	assert.Equal(t, domain.Shortage{ProductID: "p2", Requested: 3, Available: 1}, invErr.Shortages[0])

	stock, _ := catalog.Stock("p1")
	assert.Equal(t, int64(5), stock, "no partial decrement survives")

	require.NoError(t, catalog.Reserve(ctx, []domain.ReservationLine{{ProductID: "p1", Quantity: 2}}))
	require.NoError(t, catalog.Release(ctx, []domain.ReservationLine{{ProductID: "p1", Quantity: 2}}))
	stock, _ = catalog.Stock("p1")
	assert.Equal(t, int64(5), stock)
}

func TestLedgerConcurrentReservationsForLastUnit(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog()
	catalog.Put(domain.Product{ID: "last", Stock: 1})

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		shortages atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := catalog.Reserve(ctx, []domain.ReservationLine{{ProductID: "last", Quantity: 1}})
			var invErr *repositories.InventoryError
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.As(err, &invErr):
				shortages.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(15), shortages.Load())
	stock, _ := catalog.Stock("last")
	assert.Equal(t, int64(0), stock)
}

func TestOrderRepositoryInsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	order := newOrder("ord_1", "u1", 100, base)
	require.NoError(t, repo.Insert(ctx, order))

	err := repo.Insert(ctx, order)
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsConflict())

	got, err := repo.FindByID(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = repo.FindByID(ctx, "missing")
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsNotFound())
}

func TestOrderRepositoryListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	require.NoError(t, repo.Insert(ctx, newOrder("ord_a", "u1", 100, base)))
	require.NoError(t, repo.Insert(ctx, newOrder("ord_b", "u1", 3000, base.Add(time.Hour))))
	require.NoError(t, repo.Insert(ctx, newOrder("ord_c", "u2", 500, base.Add(2*time.Hour))))
	_, err := repo.TransitionOrder(ctx, "ord_b", domain.OrderFlags{Confirm: true}, base.Add(3*time.Hour))
	require.NoError(t, err)

	page, err := repo.List(ctx, repositories.OrderListFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, "ord_b", page.Items[0].ID, "newest first by default")

	page, err = repo.List(ctx, repositories.OrderListFilter{Status: domain.OrderStatusConfirmed})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ord_b", page.Items[0].ID)

	after := base.Add(30 * time.Minute)
	before := base.Add(90 * time.Minute)
	page, err = repo.List(ctx, repositories.OrderListFilter{CreatedAfter: &after, CreatedBefore: &before})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ord_b", page.Items[0].ID)

	page, err = repo.List(ctx, repositories.OrderListFilter{Sort: domain.OrderSortTotalPrice, Order: domain.SortAsc, Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ord_b", page.Items[0].ID)

	page, err = repo.List(ctx, repositories.OrderListFilter{SearchTerms: textutil.SearchTerms("ORD_C harb")})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ord_c", page.Items[0].ID)
}

func TestOrderRepositoryTransitionLeavesOrderOnConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	require.NoError(t, repo.Insert(ctx, newOrder("ord_d", "u1", 100, base)))

	_, err := repo.TransitionOrder(ctx, "ord_d", domain.OrderFlags{Ship: true}, base)
	var transitionErr *domain.TransitionError
	require.True(t, errors.As(err, &transitionErr))

	got, err := repo.FindByID(ctx, "ord_d")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Nil(t, got.ShippedAt)
	assert.Equal(t, int64(0), got.Version)
}

func TestOrderRepositoryUpdateItemStatusWithGuard(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	require.NoError(t, repo.Insert(ctx, newOrder("ord_e", "u1", 100, base)))

	guardErr := errors.New("vetoed")
	_, err := repo.UpdateItemStatus(ctx, "ord_e", repositories.ItemStatusUpdate{
		ItemID: "ord_e_a", Status: domain.ItemStatusCancelled,
		Guard: func(domain.Order, domain.OrderItem) error { return guardErr },
	}, base)
	assert.ErrorIs(t, err, guardErr)

	res, err := repo.UpdateItemStatus(ctx, "ord_e", repositories.ItemStatusUpdate{ItemID: "ord_e_a", Status: domain.ItemStatusCancelled}, base)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Order.ItemsPrice.IsZero())
	assert.True(t, res.Order.TotalPrice.Equal(decimal.NewFromInt(60)))

	res, err = repo.UpdateItemStatus(ctx, "ord_e", repositories.ItemStatusUpdate{ItemID: "ord_e_a", Status: domain.ItemStatusCancelled}, base)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, int64(1), res.Order.Version)
}

func TestOrderRepositoryCountAndDeleteAll(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	require.NoError(t, repo.Insert(ctx, newOrder("ord_1", "u1", 100, base)))
	require.NoError(t, repo.Insert(ctx, newOrder("ord_2", "u1", 100, base)))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	deleted, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	count, _ = repo.Count(ctx)
	assert.Zero(t, count)
}

func TestOrderRepositoryListPageBeyondRange(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	require.NoError(t, repo.Insert(ctx, newOrder("ord_1", "u1", 100, base)))

	page, err := repo.List(ctx, repositories.OrderListFilter{Page: math.MaxInt, Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(1), page.Total)
}

func TestOrderRepositoryConcurrentTransitionAndItemCancel(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	order := newOrder("ord_race", "u1", 800, base)
	order.Items = append(order.Items, domain.OrderItem{ID: "ord_race_b", ProductID: "p2", Name: "Denim Jacket", Price: decimal.NewFromInt(400), Quantity: 2, Status: domain.ItemStatusPending})
	order = domain.RecalculateItemsPrice(order)
	require.NoError(t, repo.Insert(ctx, order))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = repo.TransitionOrder(ctx, "ord_race", domain.OrderFlags{Confirm: true, Ship: true}, base.Add(time.Hour))
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = repo.UpdateItemStatus(ctx, "ord_race", repositories.ItemStatusUpdate{ItemID: "ord_race_b", Status: domain.ItemStatusCancelled}, base.Add(time.Hour))
	}()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got, err := repo.FindByID(ctx, "ord_race")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, got.Status)
	assert.NotNil(t, got.ShippedAt)
	assert.Equal(t, domain.ItemStatusCancelled, got.Items[1].Status)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.ItemsPrice.Equal(decimal.NewFromInt(800)), "itemsPrice = %s", got.ItemsPrice)
}
