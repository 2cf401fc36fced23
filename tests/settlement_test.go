package tests

import (
	"time"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/service"
)

func (s *IntegrationTestSuite) checkoutOne(userID, productID string, quantity int64) *domain.Order {
	order, err := s.CheckoutService.Checkout(s.Ctx, userID, []domain.OrderItem{
		{ProductID: productID, Name: productID, Price: 2500, Quantity: quantity},
	})
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusAwaitingPayment, order.Status)
	return order
}

func (s *IntegrationTestSuite) callbackFor(order *domain.Order, paymentID string) domain.PaymentCallback {
	return domain.PaymentCallback{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        s.SignedCallbackFor(order.GatewayOrderID, paymentID),
		OrderID:          order.ID,
	}
}

func (s *IntegrationTestSuite) TestPaymentCallback_SettlesOrder() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 3)

	cb := s.callbackFor(order, "pay-1")
	err := s.CheckoutService.HandlePaymentCallback(s.Ctx, cb, service.CallbackStatusSucceeded)
	s.Require().NoError(err)

	s.Equal("paid", s.OrderStatusInDb(order.ID))

	// settlement converts the hold into a permanent deduction
	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(7), stock)
	s.Equal(int64(0), reserved)

	s.Equal(1, s.CountProcessedPayments(order.ID))

	summary, err := s.QueryService.GetOrder(s.Ctx, "user-1", order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPaid, summary.Status)

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time
		err := s.DbPool.QueryRow(s.Ctx,
			"SELECT published_at FROM outbox WHERE aggregate_id = $1 AND event_type = 'OrderSettled'",
			order.ID).Scan(&publishedAt)
		return err == nil && publishedAt != nil
	}, 5*time.Second, 100*time.Millisecond, "settlement event must reach the broker")
}

func (s *IntegrationTestSuite) TestPaymentCallback_Redelivered_NoOp() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 3)
	cb := s.callbackFor(order, "pay-1")

	s.Require().NoError(s.CheckoutService.HandlePaymentCallback(s.Ctx, cb, service.CallbackStatusSucceeded))
	s.Require().NoError(s.CheckoutService.HandlePaymentCallback(s.Ctx, cb, service.CallbackStatusSucceeded))

	// the second delivery must not deduct a second time
	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(7), stock)
	s.Equal(int64(0), reserved)

	s.Equal(1, s.CountProcessedPayments(order.ID))
}

func (s *IntegrationTestSuite) TestPaymentCallback_BadSignature_Rejected() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 3)

	cb := s.callbackFor(order, "pay-1")
	cb.Signature = "forged"

	err := s.CheckoutService.HandlePaymentCallback(s.Ctx, cb, service.CallbackStatusSucceeded)
	s.Require().ErrorIs(err, service.ErrInvalidSignature)

	s.Equal("awaiting_payment", s.OrderStatusInDb(order.ID))

	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(10), stock)
	s.Equal(int64(3), reserved)
}

func (s *IntegrationTestSuite) TestPaymentCallback_ForeignGatewayOrder_Rejected() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 3)

	cb := domain.PaymentCallback{
		GatewayOrderID:   "gw-some-other-order",
		GatewayPaymentID: "pay-1",
		Signature:        s.SignedCallbackFor("gw-some-other-order", "pay-1"),
		OrderID:          order.ID,
	}

	err := s.CheckoutService.HandlePaymentCallback(s.Ctx, cb, service.CallbackStatusSucceeded)
	s.Require().ErrorIs(err, service.ErrCallbackMismatch)

	s.Equal("awaiting_payment", s.OrderStatusInDb(order.ID))
}

func (s *IntegrationTestSuite) TestPaymentCallback_Failed_ReleasesHold() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 3)

	cb := s.callbackFor(order, "pay-1")
	err := s.CheckoutService.HandlePaymentCallback(s.Ctx, cb, service.CallbackStatusFailed)
	s.Require().NoError(err)

	s.Equal("payment_failed", s.OrderStatusInDb(order.ID))

	// the hold is returned, stock stays untouched
	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(10), stock)
	s.Equal(int64(0), reserved)

	// a settle arriving after the failure must not resurrect the order
	late := s.callbackFor(order, "pay-2")
	err = s.CheckoutService.HandlePaymentCallback(s.Ctx, late, service.CallbackStatusSucceeded)
	s.Require().ErrorIs(err, service.ErrOrderFinal)
}
