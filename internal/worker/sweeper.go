package worker

import (
	"context"
	"errors"
	"time"

	"github.com/Revanth264/storefront/internal/repository"
	"github.com/Revanth264/storefront/internal/service"
	"github.com/Revanth264/storefront/pkg/config"
	"github.com/Revanth264/storefront/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const sweepBatchSize = 100

// ExpirySweeper fails payments for orders that have been waiting on the
// gateway longer than the configured TTL, releasing their inventory holds.
type ExpirySweeper struct {
	orders   repository.OrderRepository
	checkout service.CheckoutService
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewExpirySweeper(
	orders repository.OrderRepository,
	checkout service.CheckoutService,
	cfg config.Checkout,
	logger *zap.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		orders:   orders,
		checkout: checkout,
		ttl:      cfg.PaymentTTL,
		interval: cfg.SweepInterval,
		logger:   logger,
		tracer:   otel.Tracer("expiry-sweeper"),
	}
}

func (s *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting expiry sweeper",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping expiry sweeper")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "ExpirySweeper.sweep")
	defer span.End()

	olderThan := time.Now().UTC().Add(-s.ttl)

	ids, err := s.orders.ListExpiredUnpaid(ctx, olderThan, sweepBatchSize)
	if err != nil {
		span.RecordError(err)

		logging.Error(ctx, s.logger, "Failed to list expired orders", zap.Error(err))

		return
	}

	if len(ids) == 0 {
		return
	}

	span.SetAttributes(attribute.Int("expired_count", len(ids)))

	for _, orderID := range ids {
		if ctx.Err() != nil {
			return
		}

		err := s.checkout.FailPayment(ctx, orderID)
		if err != nil {
			// A callback can settle the order between the listing and the
			// sweep; that order is no longer ours to touch.
			if errors.Is(err, service.ErrOrderFinal) || errors.Is(err, repository.ErrOrderNotFound) {
				continue
			}

			logging.Error(ctx, s.logger, "Failed to expire order",
				zap.String("order_id", orderID), zap.Error(err))

			continue
		}

		logging.Info(ctx, s.logger, "Expired unpaid order",
			zap.String("order_id", orderID))
	}
}
