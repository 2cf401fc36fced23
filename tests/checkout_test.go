package tests

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/repository"
)

func (s *IntegrationTestSuite) TestCheckout_Success() {
	s.SeedStock("keyboard", 10)
	s.SeedStock("mouse", 20)

	order, err := s.CheckoutService.Checkout(s.Ctx, "user-1", []domain.OrderItem{
		{ProductID: "keyboard", Name: "Keyboard", Price: 5000, Quantity: 2},
		{ProductID: "mouse", Name: "Mouse", Price: 1500, Quantity: 1},
	})

	s.Require().NoError(err)
	s.Require().NotNil(order)
	s.Equal(domain.OrderStatusAwaitingPayment, order.Status)
	s.Equal(int64(11500), order.Total)
	s.Equal("gw-"+order.ID, order.GatewayOrderID)

	stock, reserved := s.StockOf("keyboard")
	s.Equal(int64(10), stock)
	s.Equal(int64(2), reserved)

	stock, reserved = s.StockOf("mouse")
	s.Equal(int64(20), stock)
	s.Equal(int64(1), reserved)

	summary, err := s.QueryService.GetOrder(s.Ctx, "user-1", order.ID)
	s.Require().NoError(err)
	s.Equal(order.ID, summary.OrderID)
	s.Equal(domain.OrderStatusAwaitingPayment, summary.Status)
}

func (s *IntegrationTestSuite) TestCheckout_InsufficientStock_AllOrNothing() {
	s.SeedStock("keyboard", 10)
	s.SeedStock("mouse", 1)

	order, err := s.CheckoutService.Checkout(s.Ctx, "user-1", []domain.OrderItem{
		{ProductID: "keyboard", Name: "Keyboard", Price: 5000, Quantity: 2},
		{ProductID: "mouse", Name: "Mouse", Price: 1500, Quantity: 5},
	})

	s.Require().Error(err)
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	// a partial hold must not survive the failed reservation
	_, reserved := s.StockOf("keyboard")
	s.Equal(int64(0), reserved)

	_, reserved = s.StockOf("mouse")
	s.Equal(int64(0), reserved)

	s.Require().NotNil(order)
	s.Equal("reservation_failed", s.OrderStatusInDb(order.ID))
}

func (s *IntegrationTestSuite) TestCheckout_UnknownProduct() {
	s.SeedStock("keyboard", 10)

	_, err := s.CheckoutService.Checkout(s.Ctx, "user-1", []domain.OrderItem{
		{ProductID: "keyboard", Name: "Keyboard", Price: 5000, Quantity: 1},
		{ProductID: "ghost", Name: "Ghost", Price: 100, Quantity: 1},
	})

	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	_, reserved := s.StockOf("keyboard")
	s.Equal(int64(0), reserved)
}

func (s *IntegrationTestSuite) TestCheckout_ConcurrentHolds_NeverOversell() {
	s.SeedStock("limited", 5)

	const attempts = 12

	var succeeded atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// a conflicted transaction is retried like a real client would
			for attempt := 0; attempt < 5; attempt++ {
				_, err := s.CheckoutService.Checkout(s.Ctx, "user-1", []domain.OrderItem{
					{ProductID: "limited", Name: "Limited", Price: 9900, Quantity: 1},
				})
				if err == nil {
					succeeded.Add(1)
					return
				}
				if !errors.Is(err, repository.ErrTxConflict) {
					return
				}
			}
		}()
	}

	wg.Wait()

	s.Equal(int64(5), succeeded.Load())

	stock, reserved := s.StockOf("limited")
	s.Equal(int64(5), stock)
	s.Equal(int64(5), reserved)
}

func (s *IntegrationTestSuite) TestCheckout_GatewayDown_HoldStays() {
	s.SeedStock("keyboard", 10)
	s.Gateway.fail = true

	order, err := s.CheckoutService.Checkout(s.Ctx, "user-1", []domain.OrderItem{
		{ProductID: "keyboard", Name: "Keyboard", Price: 5000, Quantity: 2},
	})

	s.Require().Error(err)
	s.Require().NotNil(order)

	// reservation holds until a retry or the expiry sweeper decides
	_, reserved := s.StockOf("keyboard")
	s.Equal(int64(2), reserved)
	s.Equal("reserved", s.OrderStatusInDb(order.ID))
}
