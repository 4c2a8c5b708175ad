package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/platform/textutil"
	"github.com/tailorline/storefront/internal/repositories"
)

const (
	orderIDPrefix = "ord_"
	itemIDPrefix  = "itm_"

	minStreetCharacters = 5
	minPhoneDigits      = 7
	maxCartLines        = 100
	maxLineQuantity     = 1000

	addressLimit = 200
	stateLimit   = 100
	variantLimit = 60
)

var phonePattern = regexp.MustCompile(`^\+?[0-9\s\-().]{7,20}$`)

// orderFactory turns a validated cart into a priced order in its initial state.
type orderFactory struct {
	catalog  repositories.ProductCatalog
	pricing  domain.PricingPolicy
	features OrderFeatures
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

func (f orderFactory) build(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	cartLines, address, method, err := f.validate(cmd)
	if err != nil {
		return domain.Order{}, err
	}

	cart := domain.NewCart(cartLines...)
	lines := cart.Lines()
	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}

	products, err := f.catalog.GetProducts(ctx, ids)
	if err != nil {
		return domain.Order{}, mapRepositoryError("catalog.getProducts", "product", strings.Join(ids, ","), err)
	}

	var missing []string
	for _, id := range ids {
		product, ok := products[id]
		if !ok || !product.Price.IsPositive() {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return domain.Order{}, &ValidationError{Fields: map[string]string{
			"items": "unknown products: " + strings.Join(missing, ", "),
		}}
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for i, line := range lines {
		product := products[line.ProductID]
		items = append(items, domain.OrderItem{
			ID:        itemIDPrefix + f.newID(),
			ProductID: line.ProductID,
			Name:      firstNonEmpty(product.Name, line.Name),
			Image:     firstNonEmpty(product.Image, line.Image),
			Price:     product.Price,
			Quantity:  line.Quantity,
			Size:      line.Size,
			Color:     line.Color,
			Status:    domain.ItemStatusPending,
			Position:  i,
		})
	}

	totals := f.pricing.Compute(items)
	f.compareClientTotals(ctx, cmd.ClientTotals, totals)

	now := f.clock()
	return domain.Order{
		ID:              orderIDPrefix + f.newID(),
		UserID:          cmd.Actor.UserID,
		Items:           items,
		ShippingAddress: address,
		PaymentMethod:   method,
		ItemsPrice:      totals.ItemsPrice,
		ShippingPrice:   totals.ShippingPrice,
		TaxPrice:        totals.TaxPrice,
		TotalPrice:      totals.TotalPrice,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// validate checks the request before anything is read or written.
func (f orderFactory) validate(cmd CreateOrderCommand) ([]domain.CartLine, domain.ShippingAddress, domain.PaymentMethod, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(cmd.Actor.UserID) == "" {
		verr.add("user", "authenticated user is required")
	}

	switch {
	case len(cmd.Lines) == 0:
		verr.add("items", "cart is empty")
	case len(cmd.Lines) > maxCartLines:
		verr.add("items", fmt.Sprintf("cart may contain at most %d lines", maxCartLines))
	}
	lines := append([]domain.CartLine(nil), cmd.Lines...)
	for i := range lines {
		line := &lines[i]
		prefix := fmt.Sprintf("items[%d].", i)
		line.ProductID = strings.TrimSpace(line.ProductID)
		line.Name = textutil.Sanitize(line.Name, addressLimit)
		line.Size = textutil.Sanitize(line.Size, variantLimit)
		line.Color = textutil.Sanitize(line.Color, variantLimit)
		if line.ProductID == "" {
			verr.add(prefix+"product_id", "is required")
		}
		if line.Name == "" {
			verr.add(prefix+"name", "is required")
		}
		if !line.Price.IsPositive() {
			verr.add(prefix+"price", "must be greater than zero")
		}
		if line.Quantity < 1 || line.Quantity > maxLineQuantity {
			verr.add(prefix+"quantity", fmt.Sprintf("must be between 1 and %d", maxLineQuantity))
		}
		if line.Size == "" {
			verr.add(prefix+"size", "is required")
		}
		if line.Color == "" {
			verr.add(prefix+"color", "is required")
		}
	}

	address := domain.ShippingAddress{
		Address: textutil.Sanitize(cmd.ShippingAddress.Address, addressLimit),
		State:   textutil.Sanitize(cmd.ShippingAddress.State, stateLimit),
		Phone:   strings.TrimSpace(cmd.ShippingAddress.Phone),
	}
	if meaningfulRunes(address.Address) < minStreetCharacters {
		verr.add("shipping_address.address", fmt.Sprintf("must contain at least %d characters", minStreetCharacters))
	}
	if address.State == "" {
		verr.add("shipping_address.state", "is required")
	}
	if !validPhone(address.Phone) {
		verr.add("shipping_address.phone", "is not a valid phone number")
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(cmd.PaymentMethod)))
	if !method.Valid() {
		verr.add("payment_method", "must be pay_on_delivery or online")
	}

	if err := verr.orNil(); err != nil {
		return nil, domain.ShippingAddress{}, "", err
	}
	if method == domain.PaymentOnline && !f.features.OnlinePayments {
		return nil, domain.ShippingAddress{}, "", fmt.Errorf("%w: online payments are not enabled", ErrPaymentMethodUnavailable)
	}
	return lines, address, method, nil
}

func (f orderFactory) compareClientTotals(ctx context.Context, client *ClientTotals, server domain.Totals) {
	if client == nil {
		return
	}
	if client.ItemsPrice.Equal(server.ItemsPrice) &&
		client.ShippingPrice.Equal(server.ShippingPrice) &&
		client.TaxPrice.Equal(server.TaxPrice) &&
		client.TotalPrice.Equal(server.TotalPrice) {
		return
	}
	f.logger(ctx, "order.totals.mismatch", map[string]any{
		"clientTotal": client.TotalPrice.StringFixed(2),
		"serverTotal": server.TotalPrice.StringFixed(2),
		"error":       "client totals ignored in favour of catalog pricing",
	})
}

func validPhone(phone string) bool {
	if !phonePattern.MatchString(phone) {
		return false
	}
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= minPhoneDigits
}

func meaningfulRunes(value string) int {
	count := 0
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			count++
		}
	}
	return count
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
