package domain

import "time"

// InventoryRecord is the single source of truth for availability.
// 0 <= Reserved <= Stock holds at all times; only the reservation and
// settlement operations mutate it.
type InventoryRecord struct {
	ProductID string    `db:"product_id"`
	Stock     int64     `db:"stock"`
	Reserved  int64     `db:"reserved"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *InventoryRecord) Available() int64 {
	return r.Stock - r.Reserved
}

// ReservationItem is one line of a reservation request.
type ReservationItem struct {
	ProductID string
	Quantity  int64
}

// SettlementItem carries both the quantity to decrement from stock and the
// quantity that was previously reserved for it. They must match what the
// reservation recorded for the order.
type SettlementItem struct {
	ProductID        string
	Quantity         int64
	ReservedQuantity int64
}

// ReservationResult maps product ids to reserved quantities for one order.
// It is ephemeral; the durable effect lives in InventoryRecord.Reserved and
// the order's item list.
type ReservationResult struct {
	OrderID  string
	Reserved map[string]int64
}
