package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/gateway"
	"github.com/Revanth264/storefront/internal/repository"
	"github.com/Revanth264/storefront/pkg/config"
	"github.com/Revanth264/storefront/pkg/logging"
	outboxDomain "github.com/Revanth264/storefront/pkg/outbox/domain"
	"github.com/Revanth264/storefront/pkg/outbox/worker"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSignature marks an untrusted callback. It is rejected before
	// any state is touched.
	ErrInvalidSignature = errors.New("callback signature mismatch")

	// ErrCallbackMismatch means a correctly signed callback references a
	// gateway order that does not belong to the named storefront order.
	ErrCallbackMismatch = errors.New("callback gateway order does not match")

	// ErrOrderFinal guards terminal states against further transitions.
	ErrOrderFinal = errors.New("order is in a final state")
)

const (
	CallbackStatusSucceeded = "succeeded"
	CallbackStatusFailed    = "failed"
)

// CheckoutService is the settlement workflow: it owns the order lifecycle
// and sequences reservation, gateway-order creation, callback settlement and
// the per-customer mirror write.
type CheckoutService interface {
	Checkout(ctx context.Context, userID string, items []domain.OrderItem) (*domain.Order, error)
	HandlePaymentCallback(ctx context.Context, cb domain.PaymentCallback, status string) error
	Cancel(ctx context.Context, orderID string) error
	FailPayment(ctx context.Context, orderID string) error
}

type checkoutService struct {
	pool       *pgxpool.Pool
	orderRepo  repository.OrderRepository
	mirrorRepo repository.MirrorRepository
	outboxRepo worker.OutboxRepository
	inventory  InventoryService
	gateway    gateway.Client
	cfg        config.Gateway
	orderTopic string
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewCheckoutService(
	pool *pgxpool.Pool,
	orderRepo repository.OrderRepository,
	mirrorRepo repository.MirrorRepository,
	outboxRepo worker.OutboxRepository,
	inventory InventoryService,
	gatewayClient gateway.Client,
	cfg config.Gateway,
	orderTopic string,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		pool:       pool,
		orderRepo:  orderRepo,
		mirrorRepo: mirrorRepo,
		outboxRepo: outboxRepo,
		inventory:  inventory,
		gateway:    gatewayClient,
		cfg:        cfg,
		orderTopic: orderTopic,
		logger:     logger,
		tracer:     otel.Tracer("service/checkout_service"),
	}
}

func (s *checkoutService) Checkout(ctx context.Context, userID string, items []domain.OrderItem) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.Checkout")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("items_count", len(items)),
	)

	now := time.Now().UTC()
	order := &domain.Order{
		ID:               uuid.NewString(),
		OrderNumber:      NewOrderNumber(now),
		UserID:           userID,
		Status:           domain.OrderStatusCreated,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		ReservationState: domain.ReservationStateNone,
		Items:            items,
		Currency:         s.cfg.Currency,
	}
	order.CalculateTotal()

	if err := s.createOrder(ctx, order); err != nil {
		logging.Error(ctx, s.logger, "Failed to create order",
			zap.String("user_id", userID), zap.Error(err))

		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	reservation := make([]domain.ReservationItem, len(items))
	for i, item := range items {
		reservation[i] = domain.ReservationItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	if _, err := s.inventory.Reserve(ctx, order.ID, reservation); err != nil {
		if failErr := s.setStatus(ctx, order.ID, domain.OrderStatusReservationFailed, domain.PaymentStatusUnpaid); failErr != nil {
			logging.Error(ctx, s.logger, "Failed to mark reservation failure",
				zap.String("order_id", order.ID), zap.Error(failErr))
		}

		order.Status = domain.OrderStatusReservationFailed
		s.mirrorWrite(ctx, order)

		return order, err
	}

	order.Status = domain.OrderStatusReserved
	order.ReservationState = domain.ReservationStateReserved

	if err := s.setStatus(ctx, order.ID, domain.OrderStatusReserved, domain.PaymentStatusUnpaid); err != nil {
		logging.Error(ctx, s.logger, "Failed to persist reserved status",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	if err := s.requestGatewayOrder(ctx, order); err != nil {
		// The hold stays in place: a later retry or the expiry sweeper
		// decides the order's fate.
		s.mirrorWrite(ctx, order)

		return order, err
	}

	order.Status = domain.OrderStatusAwaitingPayment
	s.mirrorWrite(ctx, order)

	logging.Info(ctx, s.logger, "Checkout accepted",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total", order.Total),
	)

	return order, nil
}

func (s *checkoutService) createOrder(ctx context.Context, order *domain.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// requestGatewayOrder creates the gateway-side order at most once per
// storefront order: an order that already carries a gateway reference reuses
// it on retry.
func (s *checkoutService) requestGatewayOrder(ctx context.Context, order *domain.Order) error {
	if order.GatewayOrderID != "" {
		return nil
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:    order.Total,
		Currency:  order.Currency,
		Reference: order.ID,
	})
	if err != nil {
		logging.Error(ctx, s.logger, "Gateway order creation failed",
			zap.String("order_id", order.ID), zap.Error(err))

		return fmt.Errorf("gateway order creation failed: %w", err)
	}

	if err := s.orderRepo.SetGatewayOrder(ctx, order.ID, gwOrder.ID); err != nil {
		return err
	}

	// A concurrent retry may have won the conditional write; re-read so the
	// caller sees whichever reference stuck.
	stored, err := s.orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		return err
	}
	order.GatewayOrderID = stored.GatewayOrderID
	order.Status = stored.Status

	return nil
}

func (s *checkoutService) HandlePaymentCallback(ctx context.Context, cb domain.PaymentCallback, status string) error {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.HandlePaymentCallback")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", cb.OrderID),
		attribute.String("gateway_payment_id", cb.GatewayPaymentID),
		attribute.String("callback_status", status),
	)

	if status != CallbackStatusSucceeded && status != CallbackStatusFailed {
		return fmt.Errorf("unknown callback status %q", status)
	}

	if !gateway.VerifySignature(cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature, s.cfg.Secret) {
		logging.Warn(ctx, s.logger, "Rejected callback with bad signature",
			zap.String("order_id", cb.OrderID),
			zap.String("gateway_order_id", cb.GatewayOrderID),
		)

		return ErrInvalidSignature
	}

	order, err := s.orderRepo.GetByID(ctx, cb.OrderID)
	if err != nil {
		return err
	}

	if order.GatewayOrderID == "" || order.GatewayOrderID != cb.GatewayOrderID {
		logging.Warn(ctx, s.logger, "Callback references foreign gateway order",
			zap.String("order_id", cb.OrderID),
			zap.String("gateway_order_id", cb.GatewayOrderID),
		)

		return ErrCallbackMismatch
	}

	// Idempotency check precedes every state transition: a re-delivered
	// callback must be a no-op.
	processed, err := s.orderRepo.HasProcessedPayment(ctx, order.ID, cb.GatewayPaymentID)
	if err != nil {
		return err
	}
	if processed {
		logging.Info(ctx, s.logger, "Callback already processed",
			zap.String("order_id", order.ID),
			zap.String("gateway_payment_id", cb.GatewayPaymentID),
		)

		return nil
	}

	if order.Status == domain.OrderStatusPaid {
		return nil
	}
	if order.Status.Terminal() {
		return fmt.Errorf("%w: order %s is %s", ErrOrderFinal, order.ID, order.Status)
	}

	if status == CallbackStatusFailed {
		return s.failPayment(ctx, order, cb.GatewayPaymentID)
	}

	settlement := make([]domain.SettlementItem, len(order.Items))
	for i, item := range order.Items {
		settlement[i] = domain.SettlementItem{
			ProductID:        item.ProductID,
			Quantity:         item.Quantity,
			ReservedQuantity: item.Quantity,
		}
	}

	if err := s.inventory.Settle(ctx, order.ID, settlement); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if err := s.orderRepo.MarkPaid(ctx, tx, order.ID, cb.GatewayPaymentID); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return fmt.Errorf("%w: order %s changed state during settlement", ErrOrderFinal, order.ID)
		}
		return err
	}

	if _, err := s.orderRepo.InsertProcessedPayment(ctx, tx, order.ID, cb.GatewayPaymentID); err != nil {
		return err
	}

	order.Status = domain.OrderStatusPaid
	order.PaymentStatus = domain.PaymentStatusPaid
	order.GatewayPaymentID = cb.GatewayPaymentID

	settledAt := time.Now().UTC()
	if err := s.emitEvent(ctx, tx, order, "OrderSettled", domain.OrderSettledEvent{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		Total:            order.Total,
		ItemCount:        itemCount(order),
		GatewayPaymentID: cb.GatewayPaymentID,
		CreatedAt:        order.CreatedAt,
		SettledAt:        settledAt,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mirrorWrite(ctx, order)

	logging.Info(ctx, s.logger, "Order settled",
		zap.String("order_id", order.ID),
		zap.String("gateway_payment_id", cb.GatewayPaymentID),
	)

	return nil
}

func (s *checkoutService) Cancel(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.Cancel")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == domain.OrderStatusCancelled {
		return nil
	}
	if order.Status.Terminal() {
		return fmt.Errorf("%w: order %s is %s", ErrOrderFinal, order.ID, order.Status)
	}

	if err := s.inventory.Release(ctx, orderID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, domain.OrderStatusCancelled, order.PaymentStatus); err != nil {
		// A callback settled the order between our read and this write; the
		// guarded update refuses to touch it.
		if errors.Is(err, repository.ErrStatusConflict) {
			return fmt.Errorf("%w: order %s changed state during cancellation", ErrOrderFinal, orderID)
		}
		return err
	}

	order.Status = domain.OrderStatusCancelled

	if err := s.emitEvent(ctx, tx, order, "OrderCancelled", domain.OrderCancelledEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
		ItemCount:   itemCount(order),
		CreatedAt:   order.CreatedAt,
		CancelledAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mirrorWrite(ctx, order)

	logging.Info(ctx, s.logger, "Order cancelled", zap.String("order_id", orderID))

	return nil
}

func (s *checkoutService) FailPayment(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.FailPayment")
	defer span.End()

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == domain.OrderStatusPaymentFailed {
		return nil
	}
	if order.Status.Terminal() {
		return fmt.Errorf("%w: order %s is %s", ErrOrderFinal, order.ID, order.Status)
	}

	return s.failPayment(ctx, order, order.GatewayPaymentID)
}

func (s *checkoutService) failPayment(ctx context.Context, order *domain.Order, gatewayPaymentID string) error {
	if err := s.inventory.Release(ctx, order.ID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, domain.OrderStatusPaymentFailed, domain.PaymentStatusFailed); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return fmt.Errorf("%w: order %s changed state during payment failure", ErrOrderFinal, order.ID)
		}
		return err
	}

	if gatewayPaymentID != "" {
		if _, err := s.orderRepo.InsertProcessedPayment(ctx, tx, order.ID, gatewayPaymentID); err != nil {
			return err
		}
	}

	order.Status = domain.OrderStatusPaymentFailed
	order.PaymentStatus = domain.PaymentStatusFailed

	if err := s.emitEvent(ctx, tx, order, "OrderCancelled", domain.OrderCancelledEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
		ItemCount:   itemCount(order),
		CreatedAt:   order.CreatedAt,
		CancelledAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mirrorWrite(ctx, order)

	logging.Info(ctx, s.logger, "Payment failed, reservation released",
		zap.String("order_id", order.ID))

	return nil
}

func (s *checkoutService) setStatus(ctx context.Context, orderID string, status domain.OrderStatus, payment domain.PaymentStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, status, payment); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// mirrorWrite is best effort: the mirror is derived data and must never fail
// the customer-facing flow. The outbox consumer re-applies it out of band.
func (s *checkoutService) mirrorWrite(ctx context.Context, order *domain.Order) {
	summary := domain.NewOrderSummary(order)
	summary.UpdatedAt = time.Now().UTC()

	if err := s.mirrorRepo.Upsert(ctx, summary); err != nil {
		logging.Warn(ctx, s.logger, "Mirror write failed, relying on async retry",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *checkoutService) emitEvent(ctx context.Context, tx pgx.Tx, order *domain.Order, eventType string, payload any) error {
	wrapper := map[string]any{
		"event":   eventType,
		"payload": payload,
	}

	wrapperBytes, err := json.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("failed to marshal event wrapper: %w", err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "Order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       wrapperBytes,
		Topic:         s.orderTopic,
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent)
}

func (s *checkoutService) rollback(ctx context.Context, tx pgx.Tx) {
	cleanupCtx := context.WithoutCancel(ctx)

	if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logging.Warn(cleanupCtx, s.logger, "Error rolling back transaction", zap.Error(err))
	}
}

func itemCount(order *domain.Order) int64 {
	var count int64
	for _, item := range order.Items {
		count += item.Quantity
	}
	return count
}
