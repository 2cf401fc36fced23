package tests

import (
	"time"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/service"
)

func (s *IntegrationTestSuite) TestCancel_ReleasesReservation() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 4)

	err := s.CheckoutService.Cancel(s.Ctx, order.ID)
	s.Require().NoError(err)

	s.Equal("cancelled", s.OrderStatusInDb(order.ID))

	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(10), stock)
	s.Equal(int64(0), reserved)

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time
		err := s.DbPool.QueryRow(s.Ctx,
			"SELECT published_at FROM outbox WHERE aggregate_id = $1 AND event_type = 'OrderCancelled'",
			order.ID).Scan(&publishedAt)
		return err == nil && publishedAt != nil
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestCancel_Twice_NoOp() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 4)

	s.Require().NoError(s.CheckoutService.Cancel(s.Ctx, order.ID))
	s.Require().NoError(s.CheckoutService.Cancel(s.Ctx, order.ID))

	// releasing an already-released hold must not inflate availability
	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(10), stock)
	s.Equal(int64(0), reserved)
}

func (s *IntegrationTestSuite) TestCancel_PaidOrder_Rejected() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 2)

	cb := s.callbackFor(order, "pay-1")
	s.Require().NoError(s.CheckoutService.HandlePaymentCallback(s.Ctx, cb, service.CallbackStatusSucceeded))

	err := s.CheckoutService.Cancel(s.Ctx, order.ID)
	s.Require().ErrorIs(err, service.ErrOrderFinal)

	s.Equal("paid", s.OrderStatusInDb(order.ID))
}

func (s *IntegrationTestSuite) TestFailPayment_ExpiredOrder() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 4)

	err := s.CheckoutService.FailPayment(s.Ctx, order.ID)
	s.Require().NoError(err)

	s.Equal("payment_failed", s.OrderStatusInDb(order.ID))

	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(10), stock)
	s.Equal(int64(0), reserved)

	summary, err := s.QueryService.GetOrder(s.Ctx, "user-1", order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPaymentFailed, summary.Status)
}
