package handler

import (
	"errors"
	"strings"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/gateway"
	"github.com/Revanth264/storefront/internal/repository"
	"github.com/Revanth264/storefront/internal/service"
	"github.com/Revanth264/storefront/pkg/logging"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	checkout service.CheckoutService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewCheckoutHandler(checkout service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		logger:   logger,
		validate: validator.New(),
	}
}

type CheckoutItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Price     int64  `json:"price" validate:"gte=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
}

type CheckoutRequest struct {
	Items []CheckoutItemRequest `json:"items" validate:"required,min=1,dive"`
}

type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
}

func (h *CheckoutHandler) Checkout(c *fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user id",
		})
	}

	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": formatValidationError(err),
		})
	}

	items := make([]domain.OrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		}
	}

	order, err := h.checkout.Checkout(c.UserContext(), userID, items)
	if err != nil {
		var stockErr *repository.InsufficientStockError
		switch {
		case errors.As(err, &stockErr):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":      "insufficient stock",
				"product_id": stockErr.ProductID,
				"requested":  stockErr.Requested,
				"available":  stockErr.Available,
			})
		case errors.Is(err, repository.ErrProductNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "unknown product",
			})
		case errors.Is(err, repository.ErrTxConflict):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "store busy, try again",
			})
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			// the hold stays until the expiry sweeper reclaims it
			resp := fiber.Map{"error": "payment gateway unavailable"}
			if order != nil {
				resp["order_id"] = order.ID
			}
			return c.Status(fiber.StatusBadGateway).JSON(resp)
		}

		logging.Error(c.UserContext(), h.logger, "Checkout failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "checkout failed",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(CheckoutResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Total:       order.Total,
		Currency:    order.Currency,
	})
}

func (h *CheckoutHandler) Cancel(c *fiber.Ctx) error {
	orderID := c.Params("id")

	if err := h.checkout.Cancel(c.UserContext(), orderID); err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "order not found",
			})
		case errors.Is(err, service.ErrOrderFinal):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "order is final",
			})
		}

		logging.Error(c.UserContext(), h.logger, "Cancel failed",
			zap.String("order_id", orderID), zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "cancel failed",
		})
	}

	return c.JSON(fiber.Map{"status": "cancelled"})
}

func formatValidationError(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fields
	}

	for _, fieldErr := range validationErrors {
		field := strings.ToLower(fieldErr.Field())

		switch fieldErr.Tag() {
		case "required":
			fields[field] = field + " is required"
		case "gt":
			fields[field] = field + " must be greater than " + fieldErr.Param()
		case "gte":
			fields[field] = field + " must be greater than or equal to " + fieldErr.Param()
		case "min":
			fields[field] = field + " must have at least " + fieldErr.Param() + " entries"
		default:
			fields[field] = field + " is invalid"
		}
	}

	return fields
}
