package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/pkg/logging"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MirrorRepository is the denormalized per-customer order view. It is derived
// data with merge-upsert semantics: writes may repeat and may arrive late,
// later writes win, entries are never removed.
type MirrorRepository interface {
	Upsert(ctx context.Context, summary *domain.OrderSummary) error
	ListByUser(ctx context.Context, userID string, limit, offset int64) ([]domain.OrderSummary, error)
	GetByUser(ctx context.Context, userID, orderID string) (*domain.OrderSummary, error)
}

type mirrorRepo struct {
	client *redis.Client
	logger *zap.Logger
	tracer trace.Tracer
}

func NewMirrorRepository(client *redis.Client, logger *zap.Logger) MirrorRepository {
	return &mirrorRepo{
		client: client,
		logger: logger,
		tracer: otel.Tracer("contract/mirror_repo"),
	}
}

func summaryKey(userID, orderID string) string {
	return fmt.Sprintf("user:%s:order:%s", userID, orderID)
}

func indexKey(userID string) string {
	return fmt.Sprintf("user:%s:orders", userID)
}

func (r *mirrorRepo) Upsert(ctx context.Context, summary *domain.OrderSummary) error {
	ctx, span := r.tracer.Start(ctx, "MirrorRepository.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", summary.UserID),
		attribute.String("order_id", summary.OrderID),
	)

	if r.client == nil {
		return ErrConfiguration
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("error marshalling order summary: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, summaryKey(summary.UserID, summary.OrderID), data, 0)
	pipe.ZAdd(ctx, indexKey(summary.UserID), redis.Z{
		Score:  float64(summary.CreatedAt.UnixMilli()),
		Member: summary.OrderID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)

		logging.Warn(
			ctx,
			r.logger,
			"Mirror upsert failed",
			zap.String("order_id", summary.OrderID),
			zap.Error(err),
		)

		return fmt.Errorf("error upserting order summary: %w", err)
	}

	return nil
}

func (r *mirrorRepo) ListByUser(ctx context.Context, userID string, limit, offset int64) ([]domain.OrderSummary, error) {
	ctx, span := r.tracer.Start(ctx, "MirrorRepository.ListByUser")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
	)

	if r.client == nil {
		return nil, ErrConfiguration
	}

	if limit <= 0 {
		limit = 20
	}

	// Most recent first.
	ids, err := r.client.ZRevRange(ctx, indexKey(userID), offset, offset+limit-1).Result()
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("error listing order index: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = summaryKey(userID, id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("error fetching order summaries: %w", err)
	}

	summaries := make([]domain.OrderSummary, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a summary; the next mirror write heals it.
			logging.Warn(ctx, r.logger, "Mirror index entry without summary",
				zap.String("user_id", userID), zap.String("order_id", ids[i]))
			continue
		}

		var s domain.OrderSummary
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("error unmarshalling order summary: %w", err)
		}

		summaries = append(summaries, s)
	}

	return summaries, nil
}

func (r *mirrorRepo) GetByUser(ctx context.Context, userID, orderID string) (*domain.OrderSummary, error) {
	ctx, span := r.tracer.Start(ctx, "MirrorRepository.GetByUser")
	defer span.End()

	if r.client == nil {
		return nil, ErrConfiguration
	}

	raw, err := r.client.Get(ctx, summaryKey(userID, orderID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("error fetching order summary: %w", err)
	}

	var s domain.OrderSummary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("error unmarshalling order summary: %w", err)
	}

	return &s, nil
}
