package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/pkg/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, status domain.OrderStatus, payment domain.PaymentStatus) error
	SetReservationState(ctx context.Context, tx pgx.Tx, orderID string, state domain.ReservationState) error
	SetGatewayOrder(ctx context.Context, orderID, gatewayOrderID string) error
	MarkPaid(ctx context.Context, tx pgx.Tx, orderID, gatewayPaymentID string) error
	HasProcessedPayment(ctx context.Context, orderID, gatewayPaymentID string) (bool, error)
	InsertProcessedPayment(ctx context.Context, tx pgx.Tx, orderID, gatewayPaymentID string) (bool, error)
	ListExpiredUnpaid(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/order_repo"),
	}
}

func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.String("user_id", order.UserID),
		attribute.Int("items_count", len(order.Items)),
	)

	queryOrder := `
		INSERT INTO orders (id, order_number, user_id, status, payment_status, reservation_state,
			total, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.ID,
		order.OrderNumber,
		order.UserID,
		string(order.Status),
		string(order.PaymentStatus),
		string(order.ReservationState),
		order.Total,
		order.Currency,
	).Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		span.RecordError(err)

		logging.Warn(ctx, r.logger, "Failed to insert order", zap.Error(err))

		return err
	}

	queryItem := `
		INSERT INTO order_items (order_id, product_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		if _, err := tx.Exec(ctx, queryItem,
			order.ID, item.ProductID, item.Name, item.Price, item.Quantity,
		); err != nil {
			span.RecordError(err)

			logging.Error(ctx, r.logger, "Failed to insert item", zap.Error(err))

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

const orderColumns = `
	id, order_number, user_id, status, payment_status, reservation_state,
	total, currency, COALESCE(gateway_order_id, ''), COALESCE(gateway_payment_id, ''),
	created_at, updated_at
`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.Status,
		&o.PaymentStatus,
		&o.ReservationState,
		&o.Total,
		&o.Currency,
		&o.GatewayOrderID,
		&o.GatewayPaymentID,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("error querying order: %w", err)
	}

	if order.Items, err = r.itemsOf(ctx, r.pool, orderID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

func (r *orderRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetForUpdate")
	defer span.End()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("error querying order: %w", err)
	}

	if order.Items, err = r.itemsOf(ctx, tx, orderID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

// rowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, so item reads
// stay inside the caller's transaction when there is one.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *orderRepo) itemsOf(ctx context.Context, q rowQuerier, orderID string) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, name, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("error querying order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
		); err != nil {
			return nil, fmt.Errorf("error scanning order item: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// UpdateStatus writes the target status only when the row's current status
// may legally transition to it, so a write racing a settlement can never
// overwrite a terminal state. A no-match returns ErrStatusConflict.
func (r *orderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, status domain.OrderStatus, payment domain.PaymentStatus) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE orders
		SET status = $2, payment_status = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`

	commandTag, err := tx.Exec(ctx, query, orderID, string(status), string(payment),
		statusStrings(domain.TransitionSources(status)))
	if err != nil {
		span.RecordError(err)

		logging.Error(ctx, r.logger, "Failed to update order status", zap.Error(err))

		return fmt.Errorf("failed to update order status: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrStatusConflict
	}

	return nil
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *orderRepo) SetReservationState(ctx context.Context, tx pgx.Tx, orderID string, state domain.ReservationState) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.SetReservationState")
	defer span.End()

	query := `
		UPDATE orders
		SET reservation_state = $2, updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, orderID, string(state))
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to update reservation state: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// SetGatewayOrder stores the gateway's reference exactly once; a retry that
// races another writer leaves the first reference in place.
func (r *orderRepo) SetGatewayOrder(ctx context.Context, orderID, gatewayOrderID string) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.SetGatewayOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("gateway_order_id", gatewayOrderID),
	)

	query := `
		UPDATE orders
		SET gateway_order_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND gateway_order_id IS NULL
	`

	if _, err := r.pool.Exec(ctx, query, orderID, gatewayOrderID, string(domain.OrderStatusAwaitingPayment)); err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to set gateway order: %w", err)
	}

	return nil
}

func (r *orderRepo) MarkPaid(ctx context.Context, tx pgx.Tx, orderID, gatewayPaymentID string) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkPaid")
	defer span.End()

	query := `
		UPDATE orders
		SET status = $2, payment_status = $3, gateway_payment_id = $4, updated_at = NOW()
		WHERE id = $1 AND status = ANY($5)
	`

	commandTag, err := tx.Exec(ctx, query, orderID,
		string(domain.OrderStatusPaid), string(domain.PaymentStatusPaid), gatewayPaymentID,
		statusStrings(domain.TransitionSources(domain.OrderStatusPaid)))
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrStatusConflict
	}

	return nil
}

func (r *orderRepo) HasProcessedPayment(ctx context.Context, orderID, gatewayPaymentID string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.HasProcessedPayment")
	defer span.End()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM processed_payments
			WHERE order_id = $1 AND gateway_payment_id = $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, orderID, gatewayPaymentID).Scan(&exists); err != nil {
		span.RecordError(err)

		return false, fmt.Errorf("error checking processed payment: %w", err)
	}

	return exists, nil
}

// InsertProcessedPayment records the callback idempotency key. It returns
// false without error when the key was already recorded.
func (r *orderRepo) InsertProcessedPayment(ctx context.Context, tx pgx.Tx, orderID, gatewayPaymentID string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.InsertProcessedPayment")
	defer span.End()

	query := `
		INSERT INTO processed_payments (order_id, gateway_payment_id)
		VALUES ($1, $2)
	`

	if _, err := tx.Exec(ctx, query, orderID, gatewayPaymentID); err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == "23505" {
			logging.Info(
				ctx,
				r.logger,
				"Payment already processed, skipping",
				zap.String("order_id", orderID),
				zap.String("gateway_payment_id", gatewayPaymentID),
			)

			return false, nil
		}

		span.RecordError(err)

		return false, fmt.Errorf("error inserting processed payment: %w", err)
	}

	return true, nil
}

// ListExpiredUnpaid returns orders still holding inventory past the payment
// TTL: those waiting on the gateway, those stuck reserved because the gateway
// call never went through, and created orders whose reservation committed but
// whose status write never did.
func (r *orderRepo) ListExpiredUnpaid(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListExpiredUnpaid")
	defer span.End()

	query := `
		SELECT id
		FROM orders
		WHERE (status = ANY($1) OR (status = $2 AND reservation_state = $3))
			AND updated_at < $4
		ORDER BY updated_at ASC
		LIMIT $5
	`

	statuses := []string{
		string(domain.OrderStatusReserved),
		string(domain.OrderStatusAwaitingPayment),
	}

	rows, err := r.pool.Query(ctx, query, statuses,
		string(domain.OrderStatusCreated), string(domain.ReservationStateReserved),
		olderThan, limit)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("error querying expired orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning order id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
