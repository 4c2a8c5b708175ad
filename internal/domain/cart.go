package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CartLine is one client-held cart entry submitted at checkout.
type CartLine struct {
	ProductID string
	Name      string
	Image     string
	Price     decimal.Decimal
	Quantity  int64
	Size      string
	Color     string
}

// Key identifies lines that refer to the same product variant.
func (l CartLine) Key() string {
	return strings.Join([]string{strings.TrimSpace(l.ProductID), strings.TrimSpace(l.Size), strings.TrimSpace(l.Color)}, "|")
}

// Cart holds lines keyed by product, size and color in insertion order.
type Cart struct {
	lines []CartLine
	index map[string]int
}

// NewCart builds a cart, merging duplicate variants.
func NewCart(lines ...CartLine) *Cart {
	cart := &Cart{index: make(map[string]int)}
	for _, line := range lines {
		cart.Add(line)
	}
	return cart
}

// Add merges line into the cart by summing quantities. Lines with quantity below one are dropped.
func (c *Cart) Add(line CartLine) {
	if line.Quantity < 1 {
		return
	}
	key := line.Key()
	if idx, ok := c.index[key]; ok {
		c.lines[idx].Quantity += line.Quantity
		return
	}
	c.index[key] = len(c.lines)
	c.lines = append(c.lines, line)
}

// SetQuantity replaces the quantity of a variant; a quantity below one removes the line.
func (c *Cart) SetQuantity(key string, quantity int64) {
	idx, ok := c.index[key]
	if !ok {
		return
	}
	if quantity >= 1 {
		c.lines[idx].Quantity = quantity
		return
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	delete(c.index, key)
	for i := idx; i < len(c.lines); i++ {
		c.index[c.lines[i].Key()] = i
	}
}

// Lines returns a copy of the cart lines.
func (c *Cart) Lines() []CartLine {
	return append([]CartLine(nil), c.lines...)
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int { return len(c.lines) }

// ReservationLines sums quantities per product, sorted by product id.
func ReservationLines(items []OrderItem) []ReservationLine {
	totals := make(map[string]int64)
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}
	lines := make([]ReservationLine, 0, len(totals))
	for productID, qty := range totals {
		lines = append(lines, ReservationLine{ProductID: productID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}
