package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/repository"
	"github.com/Revanth264/storefront/pkg/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrEmptyReservation    = errors.New("reservation requires at least one item")
	ErrDuplicateProduct    = errors.New("duplicate product in reservation")
	ErrNonPositiveQuantity = errors.New("reservation quantity must be positive")

	// ErrReservationState means the order is not in a reservation state that
	// permits the requested inventory operation.
	ErrReservationState = errors.New("order reservation state does not permit operation")
)

// InventoryService is the only code path that mutates the inventory ledger.
// Reserve and Settle are all-or-nothing across their whole item set; Release
// and Settle are idempotent per order via the order's reservation state,
// which flips inside the same transaction as the ledger update.
type InventoryService interface {
	Reserve(ctx context.Context, orderID string, items []domain.ReservationItem) (*domain.ReservationResult, error)
	Settle(ctx context.Context, orderID string, items []domain.SettlementItem) error
	Release(ctx context.Context, orderID string) error
}

type inventoryService struct {
	pool          *pgxpool.Pool
	inventoryRepo repository.InventoryRepository
	orderRepo     repository.OrderRepository
	logger        *zap.Logger
	tracer        trace.Tracer
}

func NewInventoryService(
	pool *pgxpool.Pool,
	inventoryRepo repository.InventoryRepository,
	orderRepo repository.OrderRepository,
	logger *zap.Logger,
) InventoryService {
	return &inventoryService{
		pool:          pool,
		inventoryRepo: inventoryRepo,
		orderRepo:     orderRepo,
		logger:        logger,
		tracer:        otel.Tracer("service/inventory_service"),
	}
}

func validateReservation(items []domain.ReservationItem) error {
	if len(items) == 0 {
		return ErrEmptyReservation
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: product %s", ErrNonPositiveQuantity, item.ProductID)
		}
		if _, ok := seen[item.ProductID]; ok {
			return fmt.Errorf("%w: product %s", ErrDuplicateProduct, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}

	return nil
}

func (s *inventoryService) Reserve(ctx context.Context, orderID string, items []domain.ReservationItem) (*domain.ReservationResult, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.Int("items_count", len(items)),
	)

	if err := validateReservation(items); err != nil {
		return nil, err
	}

	// Stable lock order regardless of how the caller listed the items.
	sorted := make([]domain.ReservationItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	result := &domain.ReservationResult{OrderID: orderID}

	err := inSerializableTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		switch order.ReservationState {
		case domain.ReservationStateReserved:
			// Retried call; the hold is already in place.
			result.Reserved = reservedMap(items)
			return nil
		case domain.ReservationStateNone:
		default:
			return fmt.Errorf("%w: order %s is %s", ErrReservationState, orderID, order.ReservationState)
		}

		records := make([]*domain.InventoryRecord, len(sorted))
		for i, item := range sorted {
			rec, err := s.inventoryRepo.GetForUpdate(ctx, tx, item.ProductID)
			if err != nil {
				return err
			}

			if rec.Available() < item.Quantity {
				return &repository.InsufficientStockError{
					ProductID: item.ProductID,
					Requested: item.Quantity,
					Available: rec.Available(),
				}
			}

			records[i] = rec
		}

		for i, item := range sorted {
			rec := records[i]
			if err := s.inventoryRepo.UpdateQuantities(ctx, tx, item.ProductID, rec.Stock, rec.Reserved+item.Quantity); err != nil {
				return err
			}
		}

		if err := s.orderRepo.SetReservationState(ctx, tx, orderID, domain.ReservationStateReserved); err != nil {
			return err
		}

		result.Reserved = reservedMap(items)
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			logging.Warn(ctx, s.logger, "Reservation conflict",
				zap.String("order_id", orderID), zap.Error(err))
		} else {
			logging.Error(ctx, s.logger, "Reservation failed",
				zap.String("order_id", orderID), zap.Error(err))
		}

		span.RecordError(err)

		return nil, err
	}

	logging.Info(ctx, s.logger, "Reservation committed",
		zap.String("order_id", orderID), zap.Int("items_count", len(items)))

	return result, nil
}

func reservedMap(items []domain.ReservationItem) map[string]int64 {
	m := make(map[string]int64, len(items))
	for _, item := range items {
		m[item.ProductID] = item.Quantity
	}
	return m
}

func (s *inventoryService) Settle(ctx context.Context, orderID string, items []domain.SettlementItem) error {
	ctx, span := s.tracer.Start(ctx, "InventoryService.Settle")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.Int("items_count", len(items)),
	)

	sorted := make([]domain.SettlementItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	err := inSerializableTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if order.ReservationState == domain.ReservationStateSettled {
			return nil
		}
		if order.ReservationState != domain.ReservationStateReserved {
			return fmt.Errorf("%w: order %s is %s", ErrReservationState, orderID, order.ReservationState)
		}

		for _, item := range sorted {
			rec, err := s.inventoryRepo.GetForUpdate(ctx, tx, item.ProductID)
			if err != nil {
				return err
			}

			if rec.Reserved < item.ReservedQuantity {
				return fmt.Errorf("%w: product %s holds %d reserved, settlement claims %d",
					repository.ErrReservationMismatch, item.ProductID, rec.Reserved, item.ReservedQuantity)
			}

			newStock := rec.Stock - item.Quantity
			if newStock < 0 {
				return fmt.Errorf("%w: product %s stock %d, settling %d",
					repository.ErrNegativeStock, item.ProductID, rec.Stock, item.Quantity)
			}

			if err := s.inventoryRepo.UpdateQuantities(ctx, tx, item.ProductID, newStock, rec.Reserved-item.ReservedQuantity); err != nil {
				return err
			}
		}

		return s.orderRepo.SetReservationState(ctx, tx, orderID, domain.ReservationStateSettled)
	})
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, repository.ErrNegativeStock) || errors.Is(err, repository.ErrReservationMismatch) {
			// Invariant violation: operator attention, never silent correction.
			logging.Error(ctx, s.logger, "Settlement invariant violation",
				zap.String("order_id", orderID), zap.Error(err))
		}

		return err
	}

	logging.Info(ctx, s.logger, "Settlement committed", zap.String("order_id", orderID))

	return nil
}

func (s *inventoryService) Release(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "InventoryService.Release")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	err := inSerializableTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		// Releasing an order that holds no reservation is a no-op.
		if order.ReservationState != domain.ReservationStateReserved {
			return nil
		}

		items := make([]domain.OrderItem, len(order.Items))
		copy(items, order.Items)
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

		for _, item := range items {
			rec, err := s.inventoryRepo.GetForUpdate(ctx, tx, item.ProductID)
			if err != nil {
				return err
			}

			if rec.Reserved < item.Quantity {
				return fmt.Errorf("%w: product %s holds %d reserved, release claims %d",
					repository.ErrReservationMismatch, item.ProductID, rec.Reserved, item.Quantity)
			}

			if err := s.inventoryRepo.UpdateQuantities(ctx, tx, item.ProductID, rec.Stock, rec.Reserved-item.Quantity); err != nil {
				return err
			}
		}

		return s.orderRepo.SetReservationState(ctx, tx, orderID, domain.ReservationStateReleased)
	})
	if err != nil {
		span.RecordError(err)

		logging.Error(ctx, s.logger, "Release failed",
			zap.String("order_id", orderID), zap.Error(err))

		return err
	}

	return nil
}
