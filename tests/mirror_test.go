package tests

import (
	"fmt"
	"time"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/repository"
	"go.uber.org/zap"
)

func (s *IntegrationTestSuite) seedSummary(userID, orderID string, createdAt time.Time, status domain.OrderStatus) {
	s.Require().NoError(s.MirrorRepo.Upsert(s.Ctx, &domain.OrderSummary{
		OrderID:     orderID,
		OrderNumber: "N-" + orderID,
		UserID:      userID,
		Status:      status,
		Total:       1000,
		ItemCount:   1,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}))
}

func (s *IntegrationTestSuite) TestMirror_ListMostRecentFirst() {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.seedSummary("user-1", fmt.Sprintf("order-%d", i), base.Add(time.Duration(i)*time.Minute), domain.OrderStatusPaid)
	}

	orders, err := s.QueryService.ListOrders(s.Ctx, "user-1", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(orders, 5)

	for i := range orders {
		s.Equal(fmt.Sprintf("order-%d", 4-i), orders[i].OrderID)
	}
}

func (s *IntegrationTestSuite) TestMirror_LimitAndOffset() {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.seedSummary("user-1", fmt.Sprintf("order-%d", i), base.Add(time.Duration(i)*time.Minute), domain.OrderStatusPaid)
	}

	orders, err := s.QueryService.ListOrders(s.Ctx, "user-1", 2, 1)
	s.Require().NoError(err)
	s.Require().Len(orders, 2)
	s.Equal("order-3", orders[0].OrderID)
	s.Equal("order-2", orders[1].OrderID)
}

func (s *IntegrationTestSuite) TestMirror_ScopedToUser() {
	now := time.Now().UTC()

	s.seedSummary("user-1", "order-a", now, domain.OrderStatusPaid)
	s.seedSummary("user-2", "order-b", now, domain.OrderStatusPaid)

	orders, err := s.QueryService.ListOrders(s.Ctx, "user-1", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal("order-a", orders[0].OrderID)

	// looking up another customer's order through your own scope misses
	_, err = s.QueryService.GetOrder(s.Ctx, "user-1", "order-b")
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)
}

func (s *IntegrationTestSuite) TestMirror_UpsertOverwrites() {
	now := time.Now().UTC()

	s.seedSummary("user-1", "order-a", now, domain.OrderStatusAwaitingPayment)
	s.seedSummary("user-1", "order-a", now, domain.OrderStatusPaid)

	orders, err := s.QueryService.ListOrders(s.Ctx, "user-1", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal(domain.OrderStatusPaid, orders[0].Status)
}

func (s *IntegrationTestSuite) TestMirror_Unconfigured() {
	bare := repository.NewMirrorRepository(nil, zap.NewNop())

	_, err := bare.ListByUser(s.Ctx, "user-1", 10, 0)
	s.Require().ErrorIs(err, repository.ErrConfiguration)

	_, err = bare.GetByUser(s.Ctx, "user-1", "order-a")
	s.Require().ErrorIs(err, repository.ErrConfiguration)
}
