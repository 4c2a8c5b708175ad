package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartMergesDuplicateVariants(t *testing.T) {
	shirt := CartLine{ProductID: "p1", Name: "Shirt", Price: decimal.NewFromInt(20), Quantity: 1, Size: "M", Color: "red"}
	other := shirt
	other.Size = "L"

	cart := NewCart(shirt, other, shirt, CartLine{ProductID: "p2", Quantity: 0})
	lines := cart.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, int64(2), lines[0].Quantity)
	assert.Equal(t, "M", lines[0].Size)
	assert.Equal(t, int64(1), lines[1].Quantity)
}

func TestCartSetQuantityRemovesBelowOne(t *testing.T) {
	a := CartLine{ProductID: "p1", Quantity: 1, Size: "S", Color: "blue"}
	b := CartLine{ProductID: "p2", Quantity: 2, Size: "S", Color: "blue"}
	cart := NewCart(a, b)

	cart.SetQuantity(a.Key(), 0)
	require.Equal(t, 1, cart.Len())
	cart.SetQuantity(b.Key(), 5)
	assert.Equal(t, int64(5), cart.Lines()[0].Quantity)
}

func TestReservationLinesSumPerProduct(t *testing.T) {
	items := []OrderItem{
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 3},
	}
	assert.Equal(t, []ReservationLine{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 4}}, ReservationLines(items))
}

func TestNewPageComputesPages(t *testing.T) {
	page := NewPage([]int{1, 2}, 2, 20, 41)
	assert.Equal(t, 3, page.Pages)
	empty := NewPage[int](nil, 1, 20, 0)
	assert.Equal(t, 0, empty.Pages)
	assert.NotNil(t, empty.Items)
}
