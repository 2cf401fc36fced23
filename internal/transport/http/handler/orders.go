package handler

import (
	"errors"

	"github.com/Revanth264/storefront/internal/repository"
	"github.com/Revanth264/storefront/internal/service"
	"github.com/Revanth264/storefront/pkg/logging"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	query  service.OrderQueryService
	logger *zap.Logger
}

func NewOrdersHandler(query service.OrderQueryService, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{query: query, logger: logger}
}

func (h *OrdersHandler) List(c *fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user id",
		})
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	orders, err := h.query.ListOrders(c.UserContext(), userID, int64(limit), int64(offset))
	if err != nil {
		if errors.Is(err, repository.ErrConfiguration) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "order history unavailable",
			})
		}

		logging.Error(c.UserContext(), h.logger, "Failed to list orders",
			zap.String("user_id", userID), zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list orders",
		})
	}

	return c.JSON(fiber.Map{"orders": orders})
}

func (h *OrdersHandler) Get(c *fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user id",
		})
	}

	orderID := c.Params("id")

	order, err := h.query.GetOrder(c.UserContext(), userID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "order not found",
			})
		case errors.Is(err, repository.ErrConfiguration):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "order history unavailable",
			})
		}

		logging.Error(c.UserContext(), h.logger, "Failed to get order",
			zap.String("order_id", orderID), zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get order",
		})
	}

	return c.JSON(order)
}
