package firestore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/tailorline/storefront/internal/domain"
)

func TestOrderCodecKeepsExactAmounts(t *testing.T) {
	created := time.Date(2026, time.May, 2, 11, 0, 0, 0, time.UTC)
	items := []domain.OrderItem{
		{ID: "a", ProductID: "thread", Name: "Waxed Thread", Price: decimal.RequireFromString("10.125"), Quantity: 3, Status: domain.ItemStatusPending},
		{ID: "b", ProductID: "needle", Name: "Needle Set", Price: decimal.RequireFromString("0.1"), Quantity: 7, Status: domain.ItemStatusPending, Position: 1},
	}
	totals := domain.DefaultPricingPolicy().Compute(items)
	order := domain.Order{
		ID: "ord_1", UserID: "u1", Items: items, Status: domain.OrderStatusPending,
		PaymentMethod: domain.PaymentPayOnDelivery,
		ItemsPrice:    totals.ItemsPrice, ShippingPrice: totals.ShippingPrice, TaxPrice: totals.TaxPrice, TotalPrice: totals.TotalPrice,
		CreatedAt: created, UpdatedAt: created,
	}

	doc := encodeOrder(order)
	assert.Equal(t, "10.125", doc.Items["a"].Price)

	got, err := decodeOrder(order.ID, doc)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.True(t, got.Items[0].Price.Equal(decimal.RequireFromString("10.125")), "price = %s", got.Items[0].Price)
	assert.True(t, got.ItemsPrice.Equal(decimal.RequireFromString("31.075")), "itemsPrice = %s", got.ItemsPrice)
	assert.True(t, got.ItemsPrice.Equal(domain.ItemsPrice(got.Items)))
	assert.True(t, got.TotalPrice.Equal(got.ItemsPrice.Add(got.ShippingPrice).Add(got.TaxPrice)))
}

func TestDecodeOrderRejectsMalformedAmounts(t *testing.T) {
	doc := orderDocument{
		Items:      map[string]orderItemDocument{"a": {ProductID: "thread", Price: "ten", Quantity: 1, Status: "pending"}},
		ItemsPrice: "10",
	}
	_, err := decodeOrder("ord_bad", doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ord_bad")

	doc.Items["a"] = orderItemDocument{ProductID: "thread", Price: "10", Quantity: 1, Status: "pending"}
	doc.TotalPrice = "NaN?"
	_, err = decodeOrder("ord_bad", doc)
	require.Error(t, err)
}

func TestParseMoneyTreatsEmptyAsZero(t *testing.T) {
	value, err := parseMoney("")
	require.NoError(t, err)
	assert.True(t, value.IsZero())
}

func TestRemainingTermsDropsPrimaryOnce(t *testing.T) {
	assert.Equal(t, []string{"linen"}, remainingTerms([]string{"harbour", "linen"}, "harbour"))
	assert.Nil(t, remainingTerms([]string{"harbour"}, "harbour"))
	assert.True(t, containsAll([]string{"har", "harbour", "linen"}, []string{"linen", "har"}))
	assert.False(t, containsAll([]string{"harbour"}, []string{"zebra"}))
}
