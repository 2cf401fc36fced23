package tests

import (
	"context"
	"time"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/service"
	"github.com/Revanth264/storefront/internal/worker"
	"github.com/Revanth264/storefront/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *IntegrationTestSuite) TestSweeper_ExpiresStaleOrders() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 2)

	sweeper := worker.NewExpirySweeper(s.OrderRepo, s.CheckoutService, config.Checkout{
		PaymentTTL:    0,
		SweepInterval: 50 * time.Millisecond,
	}, zap.NewNop())

	sweepCtx, cancel := context.WithCancel(s.Ctx)
	defer cancel()

	go sweeper.Start(sweepCtx)

	s.Require().Eventually(func() bool {
		return s.OrderStatusInDb(order.ID) == "payment_failed"
	}, 5*time.Second, 100*time.Millisecond, "stale order must be expired")

	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(10), stock)
	s.Equal(int64(0), reserved)
}

// A crash between the committed reservation and the status write leaves the
// order in created with a live hold. The sweep filter must still find it so
// the stock is not leaked forever.
func (s *IntegrationTestSuite) TestSweeper_ReclaimsReservationWithoutStatusWrite() {
	s.SeedStock("keyboard", 10)

	order := &domain.Order{
		ID:               uuid.NewString(),
		OrderNumber:      service.NewOrderNumber(time.Now().UTC()),
		UserID:           "user-1",
		Status:           domain.OrderStatusCreated,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		ReservationState: domain.ReservationStateNone,
		Items: []domain.OrderItem{
			{ProductID: "keyboard", Name: "keyboard", Price: 2500, Quantity: 2},
		},
		Currency: "USD",
	}
	order.CalculateTotal()

	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.OrderRepo.Create(s.Ctx, tx, order))
	s.Require().NoError(tx.Commit(s.Ctx))

	_, err = s.InventoryService.Reserve(s.Ctx, order.ID, []domain.ReservationItem{
		{ProductID: "keyboard", Quantity: 2},
	})
	s.Require().NoError(err)

	// the status write never happened: the order still reads created while
	// holding stock
	s.Equal("created", s.OrderStatusInDb(order.ID))

	ids, err := s.OrderRepo.ListExpiredUnpaid(s.Ctx, time.Now().UTC().Add(time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Contains(ids, order.ID)

	s.Require().NoError(s.CheckoutService.FailPayment(s.Ctx, order.ID))

	s.Equal("payment_failed", s.OrderStatusInDb(order.ID))

	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(10), stock)
	s.Equal(int64(0), reserved)
}
