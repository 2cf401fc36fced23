package tests

import (
	"time"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/repository"
	"github.com/Revanth264/storefront/internal/service"
	"github.com/google/uuid"
)

func (s *IntegrationTestSuite) TestUpdateStatus_RefusesTerminalOverwrite() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 2)
	cb := s.callbackFor(order, "pay-1")
	s.Require().NoError(s.CheckoutService.HandlePaymentCallback(s.Ctx, cb, service.CallbackStatusSucceeded))

	// a stale writer that read the order before settlement must bounce off
	// the guarded update instead of overwriting paid
	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback(s.Ctx) }()

	err = s.OrderRepo.UpdateStatus(s.Ctx, tx, order.ID, domain.OrderStatusPaymentFailed, domain.PaymentStatusFailed)
	s.Require().ErrorIs(err, repository.ErrStatusConflict)

	s.Equal("paid", s.OrderStatusInDb(order.ID))
}

func (s *IntegrationTestSuite) TestFailPayment_AfterSettlement_LeavesOrderPaid() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 2)
	cb := s.callbackFor(order, "pay-1")
	s.Require().NoError(s.CheckoutService.HandlePaymentCallback(s.Ctx, cb, service.CallbackStatusSucceeded))

	// the sweeper finding this order after the callback settled it must not
	// flip it to payment_failed
	err := s.CheckoutService.FailPayment(s.Ctx, order.ID)
	s.Require().ErrorIs(err, service.ErrOrderFinal)

	s.Equal("paid", s.OrderStatusInDb(order.ID))

	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(8), stock)
	s.Equal(int64(0), reserved)
}

func (s *IntegrationTestSuite) TestSettle_ReservationMismatch_NoPartialUpdate() {
	s.SeedStock("keyboard", 10)
	s.SeedStock("mouse", 10)

	order, err := s.CheckoutService.Checkout(s.Ctx, "user-1", []domain.OrderItem{
		{ProductID: "keyboard", Name: "keyboard", Price: 2500, Quantity: 2},
		{ProductID: "mouse", Name: "mouse", Price: 900, Quantity: 2},
	})
	s.Require().NoError(err)

	// claims more reserved units for the mouse than the ledger holds
	err = s.InventoryService.Settle(s.Ctx, order.ID, []domain.SettlementItem{
		{ProductID: "keyboard", Quantity: 2, ReservedQuantity: 2},
		{ProductID: "mouse", Quantity: 2, ReservedQuantity: 5},
	})
	s.Require().ErrorIs(err, repository.ErrReservationMismatch)

	// the whole settlement rolls back: the valid keyboard line must not
	// have been applied
	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(10), stock)
	s.Equal(int64(2), reserved)

	stock, reserved = s.StockOf("mouse")
	s.Equal(int64(10), stock)
	s.Equal(int64(2), reserved)

	var state string
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		"SELECT reservation_state FROM orders WHERE id = $1", order.ID).Scan(&state))
	s.Equal("reserved", state)
}

func (s *IntegrationTestSuite) TestSettle_NegativeStock_Rejected() {
	s.SeedStock("keyboard", 3)

	order := s.checkoutOne("user-1", "keyboard", 2)

	// settling more units than exist would drive stock below zero
	err := s.InventoryService.Settle(s.Ctx, order.ID, []domain.SettlementItem{
		{ProductID: "keyboard", Quantity: 5, ReservedQuantity: 2},
	})
	s.Require().ErrorIs(err, repository.ErrNegativeStock)

	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(3), stock)
	s.Equal(int64(2), reserved)
}

// GetForUpdate must read the order's items through the caller's transaction,
// so it sees rows the transaction itself wrote but has not committed yet.
func (s *IntegrationTestSuite) TestGetForUpdate_ReadsItemsInTransaction() {
	order := &domain.Order{
		ID:               uuid.NewString(),
		OrderNumber:      service.NewOrderNumber(time.Now().UTC()),
		UserID:           "user-1",
		Status:           domain.OrderStatusCreated,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		ReservationState: domain.ReservationStateNone,
		Items: []domain.OrderItem{
			{ProductID: "keyboard", Name: "keyboard", Price: 2500, Quantity: 2},
			{ProductID: "mouse", Name: "mouse", Price: 900, Quantity: 1},
		},
		Currency: "USD",
	}
	order.CalculateTotal()

	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback(s.Ctx) }()

	s.Require().NoError(s.OrderRepo.Create(s.Ctx, tx, order))

	loaded, err := s.OrderRepo.GetForUpdate(s.Ctx, tx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(loaded.Items, 2)
	s.Equal("keyboard", loaded.Items[0].ProductID)
	s.Equal("mouse", loaded.Items[1].ProductID)
}
