package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/repository"
	"github.com/Revanth264/storefront/pkg/kafka"
	"github.com/Revanth264/storefront/pkg/logging"
	"go.uber.org/zap"
)

// Consumer refreshes the per-customer order mirror from order lifecycle
// events. Synchronous mirror writes are best-effort; this path retries them
// from the durable event stream.
type Consumer struct {
	orders  repository.OrderRepository
	mirror  repository.MirrorRepository
	group   string
	topics  []string
	brokers []string
	logger  *zap.Logger
}

func NewConsumer(
	orders repository.OrderRepository,
	mirror repository.MirrorRepository,
	brokers []string,
	group string,
	topic string,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		orders:  orders,
		mirror:  mirror,
		group:   group,
		topics:  []string{topic},
		brokers: brokers,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	consumerGroup := kafka.NewConsumerGroup(
		c.brokers,
		c.group,
		c.topics,
		c.processMessage,
		c.logger,
	)

	consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	type EventWrapper struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}

	var wrapper EventWrapper
	if err := json.Unmarshal(msg.Value, &wrapper); err != nil {
		logging.Error(ctx, c.logger, "Error unmarshalling wrapper", zap.Error(err))
		return err
	}

	switch wrapper.Event {
	case "OrderSettled":
		var event domain.OrderSettledEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			logging.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return err
		}

		return c.refreshMirror(ctx, event.OrderID)
	case "OrderCancelled":
		var event domain.OrderCancelledEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			logging.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return err
		}

		return c.refreshMirror(ctx, event.OrderID)
	default:
		logging.Warn(ctx, c.logger, "Ignored event type", zap.String("event_type", wrapper.Event))
	}

	return nil
}

func (c *Consumer) refreshMirror(ctx context.Context, orderID string) error {
	order, err := c.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			logging.Warn(ctx, c.logger, "Order in event stream no longer exists",
				zap.String("order_id", orderID))
			return nil
		}

		logging.Error(ctx, c.logger, "Failed to load order for mirror refresh",
			zap.String("order_id", orderID), zap.Error(err))
		return err
	}

	if err := c.mirror.Upsert(ctx, domain.NewOrderSummary(order)); err != nil {
		if errors.Is(err, repository.ErrConfiguration) {
			logging.Warn(ctx, c.logger, "Mirror is not configured, skipping refresh")
			return nil
		}

		logging.Error(ctx, c.logger, "Failed to refresh order mirror",
			zap.String("order_id", orderID), zap.Error(err))
		return err
	}

	logging.Info(ctx, c.logger, "Refreshed order mirror",
		zap.String("order_id", orderID), zap.String("user_id", order.UserID))

	return nil
}
