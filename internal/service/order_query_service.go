package service

import (
	"context"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderQueryService serves the customer-facing order reads from the mirror.
// The mirror may lag the order store; that is the accepted trade for cheap
// per-customer listings.
type OrderQueryService interface {
	ListOrders(ctx context.Context, userID string, limit, offset int64) ([]domain.OrderSummary, error)
	GetOrder(ctx context.Context, userID, orderID string) (*domain.OrderSummary, error)
}

type orderQueryService struct {
	mirrorRepo repository.MirrorRepository
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewOrderQueryService(mirrorRepo repository.MirrorRepository, logger *zap.Logger) OrderQueryService {
	return &orderQueryService{
		mirrorRepo: mirrorRepo,
		logger:     logger,
		tracer:     otel.Tracer("service/order_query_service"),
	}
}

func (s *orderQueryService) ListOrders(ctx context.Context, userID string, limit, offset int64) ([]domain.OrderSummary, error) {
	ctx, span := s.tracer.Start(ctx, "OrderQueryService.ListOrders")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
	)

	return s.mirrorRepo.ListByUser(ctx, userID, limit, offset)
}

func (s *orderQueryService) GetOrder(ctx context.Context, userID, orderID string) (*domain.OrderSummary, error) {
	ctx, span := s.tracer.Start(ctx, "OrderQueryService.GetOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("order_id", orderID),
	)

	return s.mirrorRepo.GetByUser(ctx, userID, orderID)
}
