package http

import (
	"github.com/Revanth264/storefront/internal/transport/http/handler"
	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Checkout *handler.CheckoutHandler
	Webhook  *handler.WebhookHandler
	Orders   *handler.OrdersHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/webhooks/payment", h.Webhook.PaymentCallback)

	api := app.Group("/api")

	api.Post("/checkout", h.Checkout.Checkout)

	orders := api.Group("/orders")
	orders.Get("", h.Orders.List)
	orders.Get("/:id", h.Orders.Get)
	orders.Post("/:id/cancel", h.Checkout.Cancel)
}
