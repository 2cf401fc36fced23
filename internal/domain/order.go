package domain

import "time"

type OrderStatus string

const (
	OrderStatusCreated           OrderStatus = "created"
	OrderStatusReserved          OrderStatus = "reserved"
	OrderStatusAwaitingPayment   OrderStatus = "awaiting_payment"
	OrderStatusPaid              OrderStatus = "paid"
	OrderStatusReservationFailed OrderStatus = "reservation_failed"
	OrderStatusPaymentFailed     OrderStatus = "payment_failed"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

// Terminal reports whether no further inventory-affecting transition may
// leave the status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusReservationFailed, OrderStatusPaymentFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo encodes the settlement state machine. Cancellation and
// payment failure are reachable from every non-terminal state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}

	switch next {
	case OrderStatusCancelled, OrderStatusPaymentFailed:
		return true
	case OrderStatusReserved, OrderStatusReservationFailed:
		return s == OrderStatusCreated
	case OrderStatusAwaitingPayment:
		return s == OrderStatusReserved
	case OrderStatusPaid:
		return s == OrderStatusAwaitingPayment
	}

	return false
}

var orderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusReserved,
	OrderStatusAwaitingPayment,
	OrderStatusPaid,
	OrderStatusReservationFailed,
	OrderStatusPaymentFailed,
	OrderStatusCancelled,
}

// TransitionSources lists every status allowed to move to next. Status
// writes use it as a guard so a concurrent transition to a terminal state
// can never be overwritten.
func TransitionSources(next OrderStatus) []OrderStatus {
	var sources []OrderStatus
	for _, s := range orderStatuses {
		if s.CanTransitionTo(next) {
			sources = append(sources, s)
		}
	}
	return sources
}

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// ReservationState tracks what the order currently holds against the
// inventory ledger. It is what makes release and settlement idempotent.
type ReservationState string

const (
	ReservationStateNone     ReservationState = "none"
	ReservationStateReserved ReservationState = "reserved"
	ReservationStateReleased ReservationState = "released"
	ReservationStateSettled  ReservationState = "settled"
)

type Order struct {
	ID               string           `db:"id"`
	OrderNumber      string           `db:"order_number"`
	UserID           string           `db:"user_id"`
	Status           OrderStatus      `db:"status"`
	PaymentStatus    PaymentStatus    `db:"payment_status"`
	ReservationState ReservationState `db:"reservation_state"`
	Items            []OrderItem      `db:"items"`
	Total            int64            `db:"total"`
	Currency         string           `db:"currency"`
	GatewayOrderID   string           `db:"gateway_order_id"`
	GatewayPaymentID string           `db:"gateway_payment_id"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type OrderItem struct {
	ID        int64  `db:"id"`
	OrderID   string `db:"order_id"`
	ProductID string `db:"product_id"`
	Name      string `db:"name"`
	Price     int64  `db:"price"`
	Quantity  int64  `db:"quantity"`
}

func (o *Order) CalculateTotal() {
	var total int64
	for _, item := range o.Items {
		total += item.Price * item.Quantity
	}
	o.Total = total
}
