package memory

import (
	"context"
	"sync"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/repositories"
)

// Catalog holds products and their stock. It implements both the catalog reader and the
// inventory ledger so stock checks and decrements happen under one lock.
type Catalog struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

var (
	_ repositories.ProductCatalog  = (*Catalog)(nil)
	_ repositories.InventoryLedger = (*Catalog)(nil)
)

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{products: make(map[string]domain.Product)}
}

// Put inserts or replaces products.
func (c *Catalog) Put(products ...domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, product := range products {
		c.products[product.ID] = product
	}
}

// Stock returns the current stock of a product.
func (c *Catalog) Stock(productID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	product, ok := c.products[productID]
	return product.Stock, ok
}

func (c *Catalog) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := c.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

// Reserve checks every line before decrementing any, so a shortage leaves stock untouched.
func (c *Catalog) Reserve(ctx context.Context, lines []domain.ReservationLine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var shortages []domain.Shortage
	for _, line := range lines {
		product, ok := c.products[line.ProductID]
		if !ok || product.Stock < line.Quantity {
			shortages = append(shortages, domain.Shortage{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: product.Stock,
			})
		}
	}
	if len(shortages) > 0 {
		return repositories.NewShortageError("memory.inventory.reserve", shortages)
	}
	for _, line := range lines {
		product := c.products[line.ProductID]
		product.Stock -= line.Quantity
		c.products[line.ProductID] = product
	}
	return nil
}

func (c *Catalog) Release(ctx context.Context, lines []domain.ReservationLine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range lines {
		product, ok := c.products[line.ProductID]
		if !ok {
			continue
		}
		product.Stock += line.Quantity
		c.products[line.ProductID] = product
	}
	return nil
}
