package handler

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Revanth264/storefront/internal/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCheckoutService struct {
	order *domain.Order
	err   error
	calls int
}

func (s *stubCheckoutService) Checkout(_ context.Context, _ string, _ []domain.OrderItem) (*domain.Order, error) {
	s.calls++
	return s.order, s.err
}

func (s *stubCheckoutService) HandlePaymentCallback(_ context.Context, _ domain.PaymentCallback, _ string) error {
	return s.err
}

func (s *stubCheckoutService) Cancel(_ context.Context, _ string) error { return s.err }

func (s *stubCheckoutService) FailPayment(_ context.Context, _ string) error { return s.err }

func newCheckoutApp(svc *stubCheckoutService) *fiber.App {
	app := fiber.New()
	h := NewCheckoutHandler(svc, zap.NewNop())
	app.Post("/api/checkout", h.Checkout)
	return app
}

func TestCheckout_MissingUserID(t *testing.T) {
	svc := &stubCheckoutService{}
	app := newCheckoutApp(svc)

	req := httptest.NewRequest("POST", "/api/checkout", strings.NewReader(`{"items":[]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, svc.calls)
}

func TestCheckout_ValidationFailure(t *testing.T) {
	svc := &stubCheckoutService{}
	app := newCheckoutApp(svc)

	body := `{"items":[{"product_id":"p1","name":"Widget","price":100,"quantity":0}]}`
	req := httptest.NewRequest("POST", "/api/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, svc.calls, "invalid requests must not reach the service")

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "quantity")
}

func TestCheckout_Success(t *testing.T) {
	svc := &stubCheckoutService{
		order: &domain.Order{
			ID:          "order-1",
			OrderNumber: "20260901-120000-ABCDEF12",
			Status:      domain.OrderStatusAwaitingPayment,
			Total:       200,
			Currency:    "USD",
		},
	}
	app := newCheckoutApp(svc)

	body := `{"items":[{"product_id":"p1","name":"Widget","price":100,"quantity":2}]}`
	req := httptest.NewRequest("POST", "/api/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, svc.calls)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "order-1")
	assert.Contains(t, string(payload), "awaiting_payment")
}
