package handler

import (
	"errors"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/Revanth264/storefront/internal/repository"
	"github.com/Revanth264/storefront/internal/service"
	"github.com/Revanth264/storefront/pkg/logging"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	checkout service.CheckoutService
	logger   *zap.Logger
}

func NewWebhookHandler(checkout service.CheckoutService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{checkout: checkout, logger: logger}
}

type PaymentWebhookRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
	Status           string `json:"status"`
	Metadata         struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
}

// PaymentCallback accepts signed notifications from the payment gateway.
// The response is always 200 for callbacks we have already processed so the
// gateway stops retrying.
func (h *WebhookHandler) PaymentCallback(c *fiber.Ctx) error {
	var req PaymentWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Metadata.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing callback fields",
		})
	}

	if req.Status != service.CallbackStatusSucceeded && req.Status != service.CallbackStatusFailed {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown callback status",
		})
	}

	cb := domain.PaymentCallback{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
		OrderID:          req.Metadata.OrderID,
	}

	err := h.checkout.HandlePaymentCallback(c.UserContext(), cb, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			logging.Warn(c.UserContext(), h.logger, "Rejected callback with bad signature",
				zap.String("order_id", cb.OrderID))

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid signature",
			})
		case errors.Is(err, service.ErrCallbackMismatch):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "callback does not match order",
			})
		case errors.Is(err, service.ErrOrderFinal):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "order is final",
			})
		case errors.Is(err, repository.ErrOrderNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "order not found",
			})
		}

		logging.Error(c.UserContext(), h.logger, "Payment callback failed",
			zap.String("order_id", cb.OrderID), zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "callback processing failed",
		})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
