package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// OrderSort indicates the field used to order order listings.
type OrderSort string

const (
	OrderSortCreatedAt  OrderSort = "created_at"
	OrderSortUpdatedAt  OrderSort = "updated_at"
	OrderSortTotalPrice OrderSort = "total_price"
)

// Product is the catalog record read at checkout. Stock is never negative.
type Product struct {
	ID    string
	Name  string
	Image string
	Price decimal.Decimal
	Stock int64
}

// ReservationLine is the quantity of one product taken from stock for an order.
type ReservationLine struct {
	ProductID string
	Quantity  int64
}

// Shortage names a product whose stock could not cover the requested quantity.
type Shortage struct {
	ProductID string
	Requested int64
	Available int64
}

// Health status values reported by readiness probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLogEntry stores normalized audit information for admin use.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	Diff      map[string]any
	Severity  string
	RequestID string
	CreatedAt time.Time
}

// Page packages one page of list results with the totals needed for page navigation.
type Page[T any] struct {
	Items []T
	Page  int
	Pages int
	Total int64
	Limit int
}

// NewPage computes the page count for total results split into pages of limit.
func NewPage[T any](items []T, page, limit int, total int64) Page[T] {
	pages := 0
	if limit > 0 && total > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Page: page, Pages: pages, Total: total, Limit: limit}
}
