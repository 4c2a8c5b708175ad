package repositories

import (
	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/textutil"
)

// OrderSearchTokens indexes the order fields free-text search matches against.
func OrderSearchTokens(order domain.Order) []string {
	values := []string{
		order.ID,
		order.UserID,
		order.ShippingAddress.Address,
		order.ShippingAddress.State,
		order.ShippingAddress.Phone,
	}
	for _, item := range order.Items {
		values = append(values, item.Name, item.ProductID)
	}
	return textutil.SearchTokens(values...)
}
