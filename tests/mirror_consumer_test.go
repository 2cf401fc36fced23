package tests

import (
	"context"
	"time"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/service"
	transportkafka "github.com/Revanth264/storefront/internal/transport/kafka"
	"go.uber.org/zap"
)

// The consumer replays order events against the mirror, repairing entries the
// synchronous best-effort write never landed.
func (s *IntegrationTestSuite) TestMirrorConsumer_RepairsMissedWrite() {
	s.SeedStock("keyboard", 10)

	order := s.checkoutOne("user-1", "keyboard", 2)

	cb := s.callbackFor(order, "pay-1")
	s.Require().NoError(s.CheckoutService.HandlePaymentCallback(s.Ctx, cb, service.CallbackStatusSucceeded))

	// drop the mirror as if the synchronous write had failed
	s.FlushRedis()

	consumer := transportkafka.NewConsumer(
		s.OrderRepo,
		s.MirrorRepo,
		s.KafkaBrokers,
		"mirror-repair-test-"+order.ID,
		"order_events",
		zap.NewNop(),
	)

	consumerCtx, cancel := context.WithCancel(s.Ctx)
	defer cancel()

	go consumer.Start(consumerCtx)

	s.Require().Eventually(func() bool {
		summary, err := s.QueryService.GetOrder(s.Ctx, "user-1", order.ID)
		return err == nil && summary.Status == domain.OrderStatusPaid
	}, 15*time.Second, 200*time.Millisecond, "consumer must rebuild the mirror entry")
}
