//go:build integration

package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/config"
	"github.com/tailorline/storefront/internal/platform/mongostore"
	"github.com/tailorline/storefront/internal/platform/textutil"
	"github.com/tailorline/storefront/internal/repositories"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := mongodb.Run(ctx, "mongo:7")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	pool := mongostore.NewPool(config.MongoConfig{URI: uri, Database: "storefront_test"})
	require.NoError(t, pool.Connect(ctx))
	t.Cleanup(func() { _ = pool.Close(context.Background()) })

	registry, err := NewRegistry(pool)
	require.NoError(t, err)
	require.NoError(t, registry.EnsureIndexes(ctx))
	return registry
}

func sampleOrder(id, user, price string, created time.Time) domain.Order {
	items := []domain.OrderItem{
		{ID: id + "_a", ProductID: "shirt", Name: "Linen Shirt", Price: decimal.RequireFromString(price), Quantity: 3, Status: domain.ItemStatusPending},
		{ID: id + "_b", ProductID: "scarf", Name: "Silk Scarf", Price: decimal.NewFromInt(45), Quantity: 1, Status: domain.ItemStatusPending},
	}
	totals := domain.DefaultPricingPolicy().Compute(items)
	return domain.Order{
		ID: id, UserID: user, Items: items, Status: domain.OrderStatusPending,
		ShippingAddress: domain.ShippingAddress{Address: "4 Marina Street", State: "Accra", Phone: "+233 20 555 0199"},
		PaymentMethod:   domain.PaymentPayOnDelivery,
		ItemsPrice:      totals.ItemsPrice, ShippingPrice: totals.ShippingPrice, TaxPrice: totals.TaxPrice, TotalPrice: totals.TotalPrice,
		CreatedAt: created, UpdatedAt: created,
	}
}

func TestRegistryIntegration(t *testing.T) {
	registry := newRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	require.NoError(t, registry.Ping(ctx))
	inventory := registry.Products()
	orders := registry.Orders()

	t.Run("ledger", func(t *testing.T) {
		require.NoError(t, inventory.PutProduct(ctx, domain.Product{ID: "shirt", Name: "Linen Shirt", Price: decimal.RequireFromString("19.99"), Stock: 4}))
		require.NoError(t, inventory.PutProduct(ctx, domain.Product{ID: "scarf", Name: "Silk Scarf", Price: decimal.NewFromInt(45), Stock: 0}))

		err := inventory.Reserve(ctx, []domain.ReservationLine{{ProductID: "scarf", Quantity: 1}, {ProductID: "shirt", Quantity: 2}})
		var invErr *repositories.InventoryError
		require.True(t, errors.As(err, &invErr))
		assert.Equal(t, []domain.Shortage{{ProductID: "scarf", Requested: 1, Available: 0}}, invErr.Shortages)

		products, err := inventory.GetProducts(ctx, []string{"shirt", "scarf", "ghost"})
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, int64(4), products["shirt"].Stock, "taken lines are rolled back")
		assert.True(t, products["shirt"].Price.Equal(decimal.RequireFromString("19.99")))
	})

	t.Run("last unit goes to exactly one reservation", func(t *testing.T) {
		require.NoError(t, inventory.PutProduct(ctx, domain.Product{ID: "last", Name: "Last One", Price: decimal.NewFromInt(10), Stock: 1}))

		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := inventory.Reserve(ctx, []domain.ReservationLine{{ProductID: "last", Quantity: 1}}); err == nil {
					succeeded.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), succeeded.Load())

		products, err := inventory.GetProducts(ctx, []string{"last"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), products["last"].Stock)
	})

	created := time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC)

	t.Run("orders", func(t *testing.T) {
		order := sampleOrder("ord_m1", "u1", "19.99", created)
		require.NoError(t, orders.Insert(ctx, order))

		err := orders.Insert(ctx, order)
		var repoErr repositories.RepositoryError
		require.True(t, errors.As(err, &repoErr))
		assert.True(t, repoErr.IsConflict())

		got, err := orders.FindByID(ctx, "ord_m1")
		require.NoError(t, err)
		assert.True(t, got.ItemsPrice.Equal(decimal.RequireFromString("104.97")))

		_, err = orders.FindByID(ctx, "ord_missing")
		require.True(t, errors.As(err, &repoErr))
		assert.True(t, repoErr.IsNotFound())

		res, err := orders.TransitionOrder(ctx, "ord_m1", domain.OrderFlags{Confirm: true}, created.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, res.Order.Status)

		item, err := orders.UpdateItemStatus(ctx, "ord_m1", repositories.ItemStatusUpdate{ItemID: "ord_m1_b", Status: domain.ItemStatusCancelled}, created.Add(2*time.Hour))
		require.NoError(t, err)
		assert.True(t, item.Changed)

		got, err = orders.FindByID(ctx, "ord_m1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.True(t, got.ItemsPrice.Equal(decimal.RequireFromString("59.97")))
		assert.Equal(t, domain.ItemStatusCancelled, got.Items[1].Status)
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, orders.Insert(ctx, sampleOrder("ord_m2", "u2", "900", created.Add(time.Hour))))

		page, err := orders.List(ctx, repositories.OrderListFilter{Sort: domain.OrderSortTotalPrice, Order: domain.SortDesc})
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "ord_m2", page.Items[0].ID)

		page, err = orders.List(ctx, repositories.OrderListFilter{SearchTerms: textutil.SearchTerms("marina scarf"), UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)

		before := created.Add(30 * time.Minute)
		page, err = orders.List(ctx, repositories.OrderListFilter{CreatedBefore: &before})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("concurrent flag and item updates both land", func(t *testing.T) {
		const rounds = 8
		for i := 0; i < rounds; i++ {
			id := fmt.Sprintf("ord_race_%d", i)
			require.NoError(t, orders.Insert(ctx, sampleOrder(id, "u3", "19.99", created.Add(2*time.Hour))))

			var wg sync.WaitGroup
			errs := make([]error, 2)
			start := make(chan struct{})
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				_, errs[0] = orders.TransitionOrder(ctx, id, domain.OrderFlags{Confirm: true, Ship: true}, created.Add(3*time.Hour))
			}()
			go func() {
				defer wg.Done()
				<-start
				_, errs[1] = orders.UpdateItemStatus(ctx, id, repositories.ItemStatusUpdate{ItemID: id + "_b", Status: domain.ItemStatusCancelled}, created.Add(3*time.Hour))
			}()
			close(start)
			wg.Wait()
			require.NoError(t, errs[0])
			require.NoError(t, errs[1])

			got, err := orders.FindByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, domain.OrderStatusShipped, got.Status)
			assert.NotNil(t, got.ConfirmedAt)
			assert.NotNil(t, got.ShippedAt)
			assert.Equal(t, domain.ItemStatusCancelled, got.Items[1].Status)
			assert.Equal(t, int64(2), got.Version)
			assert.True(t, got.ItemsPrice.Equal(decimal.RequireFromString("59.97")), "itemsPrice = %s", got.ItemsPrice)
		}
	})

	t.Run("bulk delete", func(t *testing.T) {
		deleted, err := orders.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(10), deleted)
		count, err := orders.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
