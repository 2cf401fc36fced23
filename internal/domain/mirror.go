package domain

import "time"

// OrderSummary is the denormalized per-customer copy of an order, kept under
// the customer's own record for fast personal listings. It is derived data:
// later writes overwrite the summary fields but never remove the entry.
type OrderSummary struct {
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	UserID        string        `json:"user_id"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Total         int64         `json:"total"`
	ItemCount     int64         `json:"item_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func NewOrderSummary(order *Order) *OrderSummary {
	var count int64
	for _, item := range order.Items {
		count += item.Quantity
	}

	return &OrderSummary{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Total:         order.Total,
		ItemCount:     count,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}
