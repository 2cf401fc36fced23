package domain

import "time"

type OrderSettledEvent struct {
	OrderID          string    `json:"order_id"`
	OrderNumber      string    `json:"order_number"`
	UserID           string    `json:"user_id"`
	Total            int64     `json:"total"`
	ItemCount        int64     `json:"item_count"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	CreatedAt        time.Time `json:"created_at"`
	SettledAt        time.Time `json:"settled_at"`
}

type OrderCancelledEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Total       int64     `json:"total"`
	ItemCount   int64     `json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// PaymentCallback is the asynchronous signed notification from the payment
// gateway. OrderID arrives in the callback metadata.
type PaymentCallback struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
	OrderID          string `json:"order_id"`
}
