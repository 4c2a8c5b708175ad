//go:build integration

package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/firestore/firestoretest"
	"github.com/tailorline/storefront/internal/platform/textutil"
	"github.com/tailorline/storefront/internal/repositories"
)

func sampleOrder(id, user string, price string, created time.Time) domain.Order {
	items := []domain.OrderItem{
		{ID: id + "_a", ProductID: "shirt", Name: "Linen Shirt", Price: decimal.RequireFromString(price), Quantity: 2, Status: domain.ItemStatusPending},
		{ID: id + "_b", ProductID: "scarf", Name: "Silk Scarf", Price: decimal.NewFromInt(45), Quantity: 1, Status: domain.ItemStatusPending},
	}
	totals := domain.DefaultPricingPolicy().Compute(items)
	return domain.Order{
		ID: id, UserID: user, Items: items, Status: domain.OrderStatusPending,
		ShippingAddress: domain.ShippingAddress{Address: "12 Harbour Road", State: "Lagos", Phone: "+234 801 555 0100"},
		PaymentMethod:   domain.PaymentPayOnDelivery,
		ItemsPrice:      totals.ItemsPrice, ShippingPrice: totals.ShippingPrice, TaxPrice: totals.TaxPrice, TotalPrice: totals.TotalPrice,
		CreatedAt: created, UpdatedAt: created,
	}
}

func TestOrderRepositoryIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t, "orders-test")
	repo, err := NewOrderRepository(provider)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	created := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	order := sampleOrder("ord_fs1", "u1", "19.99", created)
	require.NoError(t, repo.Insert(ctx, order))

	err = repo.Insert(ctx, order)
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsConflict())

	got, err := repo.FindByID(ctx, "ord_fs1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "ord_fs1_a", got.Items[0].ID, "items keep their position")
	assert.True(t, got.ItemsPrice.Equal(decimal.RequireFromString("84.98")))

	_, err = repo.FindByID(ctx, "missing")
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsNotFound())

	t.Run("transition", func(t *testing.T) {
		_, err := repo.TransitionOrder(ctx, "ord_fs1", domain.OrderFlags{Ship: true}, created)
		var transitionErr *domain.TransitionError
		require.True(t, errors.As(err, &transitionErr))

		res, err := repo.TransitionOrder(ctx, "ord_fs1", domain.OrderFlags{Confirm: true, Ship: true}, created.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusShipped, res.Order.Status)

		stored, err := repo.FindByID(ctx, "ord_fs1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusShipped, stored.Status)
		assert.NotNil(t, stored.ConfirmedAt)
		assert.Equal(t, int64(1), stored.Version)
	})

	t.Run("item update", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, sampleOrder("ord_fs2", "u2", "30", created.Add(time.Minute))))
		res, err := repo.UpdateItemStatus(ctx, "ord_fs2", repositories.ItemStatusUpdate{
			ItemID: "ord_fs2_b", Status: domain.ItemStatusCancelled, CancelReason: "out of colour",
		}, created.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, res.Changed)

		stored, err := repo.FindByID(ctx, "ord_fs2")
		require.NoError(t, err)
		assert.Equal(t, domain.ItemStatusCancelled, stored.Items[1].Status)
		assert.Equal(t, "out of colour", stored.Items[1].CancelReason)
		assert.True(t, stored.ItemsPrice.Equal(decimal.NewFromInt(60)))
		assert.True(t, stored.TotalPrice.Equal(decimal.NewFromInt(120)))
	})

	t.Run("list and delete", func(t *testing.T) {
		page, err := repo.List(ctx, repositories.OrderListFilter{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)

		page, err = repo.List(ctx, repositories.OrderListFilter{SearchTerms: textutil.SearchTerms("ord_fs2")})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "ord_fs2", page.Items[0].ID)

		page, err = repo.List(ctx, repositories.OrderListFilter{SearchTerms: textutil.SearchTerms("harbour linen")})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)

		page, err = repo.List(ctx, repositories.OrderListFilter{SearchTerms: textutil.SearchTerms("harbour zebra")})
		require.NoError(t, err)
		assert.Zero(t, page.Total, "every term must match")
		assert.Empty(t, page.Items)

		page, err = repo.List(ctx, repositories.OrderListFilter{SearchTerms: textutil.SearchTerms("harbour linen"), Limit: 1, Page: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		require.Len(t, page.Items, 1)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		deleted, err := repo.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)
	})
}
