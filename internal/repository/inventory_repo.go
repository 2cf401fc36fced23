package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/pkg/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InventoryRepository reads and writes the inventory ledger. All mutating
// methods take the caller's transaction; the reservation and settlement
// services own the transaction boundary.
type InventoryRepository interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, productID string) (*domain.InventoryRecord, error)
	Get(ctx context.Context, productID string) (*domain.InventoryRecord, error)
	UpdateQuantities(ctx context.Context, tx pgx.Tx, productID string, stock, reserved int64) error
	Upsert(ctx context.Context, productID string, stock int64) error
}

type inventoryRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewInventoryRepository(pool *pgxpool.Pool, logger *zap.Logger) InventoryRepository {
	return &inventoryRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/inventory_repo"),
	}
}

func (r *inventoryRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, productID string) (*domain.InventoryRecord, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
	)

	query := `
		SELECT product_id, stock, reserved, updated_at
		FROM inventory
		WHERE product_id = $1
		FOR UPDATE
	`

	var rec domain.InventoryRecord
	if err := tx.QueryRow(ctx, query, productID).
		Scan(&rec.ProductID, &rec.Stock, &rec.Reserved, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logging.Warn(ctx, r.logger, "Product not in ledger", zap.String("product_id", productID))
			return nil, ErrProductNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("error querying inventory record: %w", err)
	}

	return &rec, nil
}

func (r *inventoryRepo) Get(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Get")
	defer span.End()

	query := `
		SELECT product_id, stock, reserved, updated_at
		FROM inventory
		WHERE product_id = $1
	`

	var rec domain.InventoryRecord
	if err := r.pool.QueryRow(ctx, query, productID).
		Scan(&rec.ProductID, &rec.Stock, &rec.Reserved, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("error querying inventory record: %w", err)
	}

	return &rec, nil
}

func (r *inventoryRepo) UpdateQuantities(ctx context.Context, tx pgx.Tx, productID string, stock, reserved int64) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.UpdateQuantities")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int64("stock", stock),
		attribute.Int64("reserved", reserved),
	)

	query := `
		UPDATE inventory
		SET stock = $2, reserved = $3, updated_at = NOW()
		WHERE product_id = $1
	`

	commandTag, err := tx.Exec(ctx, query, productID, stock, reserved)
	if err != nil {
		span.RecordError(err)

		logging.Error(
			ctx,
			r.logger,
			"Failed to update inventory record",
			zap.String("product_id", productID),
			zap.Error(err),
		)

		return fmt.Errorf("error updating inventory record: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *inventoryRepo) Upsert(ctx context.Context, productID string, stock int64) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Upsert")
	defer span.End()

	query := `
		INSERT INTO inventory (product_id, stock, reserved, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (product_id)
		DO UPDATE SET stock = EXCLUDED.stock, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, productID, stock); err != nil {
		span.RecordError(err)

		return fmt.Errorf("error upserting inventory record: %w", err)
	}

	return nil
}
