package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "test-secret"

	sig := Sign("gw-order-1", "gw-payment-1", secret)
	assert.NotEmpty(t, sig)

	assert.True(t, VerifySignature("gw-order-1", "gw-payment-1", sig, secret))
}

func TestVerifySignature_RejectsTampering(t *testing.T) {
	secret := "test-secret"
	sig := Sign("gw-order-1", "gw-payment-1", secret)

	assert.False(t, VerifySignature("gw-order-2", "gw-payment-1", sig, secret))
	assert.False(t, VerifySignature("gw-order-1", "gw-payment-2", sig, secret))
	assert.False(t, VerifySignature("gw-order-1", "gw-payment-1", sig, "other-secret"))
	assert.False(t, VerifySignature("gw-order-1", "gw-payment-1", "", secret))
	assert.False(t, VerifySignature("gw-order-1", "gw-payment-1", "deadbeef", secret))
}

func TestSign_Deterministic(t *testing.T) {
	assert.Equal(t,
		Sign("a", "b", "k"),
		Sign("a", "b", "k"),
	)

	// the separator keeps ("ab", "c") and ("a", "bc") apart
	assert.NotEqual(t,
		Sign("ab", "c", "k"),
		Sign("a", "bc", "k"),
	)
}
