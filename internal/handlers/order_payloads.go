package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tailorline/storefront/internal/domain"
	"github.com/tailorline/storefront/internal/services"
)

type orderPayload struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	Status          string                 `json:"status"`
	Items           []orderItemPayload     `json:"items"`
	ShippingAddress shippingAddressPayload `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	ItemsPrice      string                 `json:"items_price"`
	ShippingPrice   string                 `json:"shipping_price"`
	TaxPrice        string                 `json:"tax_price"`
	TotalPrice      string                 `json:"total_price"`
	IsPaid          bool                   `json:"is_paid"`
	IsConfirmed     bool                   `json:"is_confirmed"`
	IsShipped       bool                   `json:"is_shipped"`
	IsDelivered     bool                   `json:"is_delivered"`
	IsCancelled     bool                   `json:"is_cancelled"`
	PaidAt          string                 `json:"paid_at,omitempty"`
	ConfirmedAt     string                 `json:"confirmed_at,omitempty"`
	ShippedAt       string                 `json:"shipped_at,omitempty"`
	DeliveredAt     string                 `json:"delivered_at,omitempty"`
	CancelledAt     string                 `json:"cancelled_at,omitempty"`
	CancelReason    string                 `json:"cancel_reason,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
}

type orderItemPayload struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Image        string `json:"image,omitempty"`
	Price        string `json:"price"`
	Quantity     int64  `json:"quantity"`
	Size         string `json:"size"`
	Color        string `json:"color"`
	Status       string `json:"status"`
	ConfirmedAt  string `json:"confirmed_at,omitempty"`
	CancelledAt  string `json:"cancelled_at,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

type shippingAddressPayload struct {
	Address string `json:"address"`
	State   string `json:"state"`
	Phone   string `json:"phone"`
}

type paginationPayload struct {
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Total int64 `json:"total"`
	Limit int   `json:"limit"`
}

type orderListResponse struct {
	Orders     []orderPayload    `json:"orders"`
	Pagination paginationPayload `json:"pagination"`
}

type itemResultPayload struct {
	ItemID    string `json:"item_id"`
	Status    string `json:"status,omitempty"`
	OK        bool   `json:"ok"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

type itemBatchResponse struct {
	Order   orderPayload        `json:"order"`
	Results []itemResultPayload `json:"results"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:     order.ID,
		UserID: order.UserID,
		Status: string(order.Status),
		Items:  make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress: shippingAddressPayload{
			Address: order.ShippingAddress.Address,
			State:   order.ShippingAddress.State,
			Phone:   order.ShippingAddress.Phone,
		},
		PaymentMethod: string(order.PaymentMethod),
		ItemsPrice:    formatMoney(order.ItemsPrice),
		ShippingPrice: formatMoney(order.ShippingPrice),
		TaxPrice:      formatMoney(order.TaxPrice),
		TotalPrice:    formatMoney(order.TotalPrice),
		IsPaid:        order.IsPaid(),
		IsConfirmed:   order.IsConfirmed(),
		IsShipped:     order.IsShipped(),
		IsDelivered:   order.IsDelivered(),
		IsCancelled:   order.IsCancelled(),
		PaidAt:        formatTimePtr(order.PaidAt),
		ConfirmedAt:   formatTimePtr(order.ConfirmedAt),
		ShippedAt:     formatTimePtr(order.ShippedAt),
		DeliveredAt:   formatTimePtr(order.DeliveredAt),
		CancelledAt:   formatTimePtr(order.CancelledAt),
		CancelReason:  order.CancelReason,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:           item.ID,
			ProductID:    item.ProductID,
			Name:         item.Name,
			Image:        item.Image,
			Price:        formatMoney(item.Price),
			Quantity:     item.Quantity,
			Size:         item.Size,
			Color:        item.Color,
			Status:       string(item.Status),
			ConfirmedAt:  formatTimePtr(item.ConfirmedAt),
			CancelledAt:  formatTimePtr(item.CancelledAt),
			CancelReason: item.CancelReason,
		})
	}
	return payload
}

func buildOrderListResponse(page domain.Page[domain.Order]) orderListResponse {
	resp := orderListResponse{
		Orders: make([]orderPayload, 0, len(page.Items)),
		Pagination: paginationPayload{
			Page:  page.Page,
			Pages: page.Pages,
			Total: page.Total,
			Limit: page.Limit,
		},
	}
	for _, order := range page.Items {
		resp.Orders = append(resp.Orders, buildOrderPayload(order))
	}
	return resp
}

func buildItemBatchResponse(result services.ItemBatchResult) itemBatchResponse {
	resp := itemBatchResponse{
		Order:   buildOrderPayload(result.Order),
		Results: make([]itemResultPayload, 0, len(result.Results)),
	}
	for _, r := range result.Results {
		resp.Results = append(resp.Results, itemResultPayload{
			ItemID:    r.ItemID,
			Status:    string(r.Status),
			OK:        r.OK,
			ErrorCode: r.ErrorCode,
			Message:   r.Message,
		})
	}
	return resp
}

func formatMoney(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
