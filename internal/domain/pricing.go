package domain

import "github.com/shopspring/decimal"

// PricingPolicy holds the shipping rule applied once at checkout.
type PricingPolicy struct {
	FreeShippingOver decimal.Decimal
	ShippingFee      decimal.Decimal
}

// DefaultPricingPolicy charges 60 unless items exceed 2000.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		FreeShippingOver: decimal.NewFromInt(2000),
		ShippingFee:      decimal.NewFromInt(60),
	}
}

// Totals are the locked price fields of an order.
type Totals struct {
	ItemsPrice    decimal.Decimal
	ShippingPrice decimal.Decimal
	TaxPrice      decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Compute prices items at checkout. Shipping is free only when items strictly exceed the
// threshold. Tax is always zero.
func (p PricingPolicy) Compute(items []OrderItem) Totals {
	itemsPrice := ItemsPrice(items)
	shipping := p.ShippingFee
	if itemsPrice.GreaterThan(p.FreeShippingOver) {
		shipping = decimal.Zero
	}
	tax := decimal.Zero
	return Totals{
		ItemsPrice:    itemsPrice,
		ShippingPrice: shipping,
		TaxPrice:      tax,
		TotalPrice:    itemsPrice.Add(shipping).Add(tax),
	}
}

// ItemsPrice sums price*quantity over items that are not cancelled.
func ItemsPrice(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Status == ItemStatusCancelled {
			continue
		}
		total = total.Add(item.LineTotal())
	}
	return total
}

// RecalculateItemsPrice refreshes itemsPrice and totalPrice from the items. Shipping and tax stay
// as they were locked at checkout.
func RecalculateItemsPrice(order Order) Order {
	order.ItemsPrice = ItemsPrice(order.Items)
	order.TotalPrice = order.ItemsPrice.Add(order.ShippingPrice).Add(order.TaxPrice)
	return order
}
