package auth

import (
	"strings"
	"testing"

	apperrors "rating-notifier/internal/common/errors"

	"github.com/stretchr/testify/assert"
)

func TestSign_KnownVector(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	got := Sign("key", "The quick brown fox ", "jumps over the lazy dog")
	assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", got)
}

func TestValidSignature(t *testing.T) {
	v := NewVerifier("webhook-secret", "operator-token")
	sig := Sign("webhook-secret", "1700000000", "abc123")

	tests := []struct {
		name      string
		timestamp string
		token     string
		signature string
		want      bool
	}{
		{"valid", "1700000000", "abc123", sig, true},
		{"valid uppercase hex", "1700000000", "abc123", strings.ToUpper(sig), true},
		{"tampered timestamp", "1700000001", "abc123", sig, false},
		{"tampered token", "1700000000", "abc124", sig, false},
		{"empty signature", "1700000000", "abc123", "", false},
		{"garbage", "1700000000", "abc123", "deadbeef", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.ValidSignature(tt.timestamp, tt.token, tt.signature))
		})
	}
}

func TestValidSignature_UnsetKey(t *testing.T) {
	v := NewVerifier("", "operator-token")
	assert.False(t, v.ValidSignature("1", "2", Sign("", "1", "2")))
}

func TestValidAuthorization(t *testing.T) {
	v := NewVerifier("webhook-secret", "operator-token")

	assert.True(t, v.ValidAuthorization("Basic operator-token"))
	assert.False(t, v.ValidAuthorization("Bearer operator-token"))
	assert.False(t, v.ValidAuthorization("Basic wrong"))
	assert.False(t, v.ValidAuthorization(""))

	assert.False(t, NewVerifier("k", "").ValidAuthorization("Basic "))
}

func TestAuthenticateWebhook(t *testing.T) {
	v := NewVerifier("webhook-secret", "operator-token")

	assert.NoError(t, v.AuthenticateWebhook("Basic operator-token", "", "", ""))
	assert.NoError(t, v.AuthenticateWebhook("", "1", "t", Sign("webhook-secret", "1", "t")))

	err := v.AuthenticateWebhook("", "1", "t", "nope")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAuthenticationFailed))
}

func TestAuthenticateOperator(t *testing.T) {
	v := NewVerifier("webhook-secret", "operator-token")

	assert.NoError(t, v.AuthenticateOperator("Basic operator-token"))
	assert.True(t, apperrors.HasCode(v.AuthenticateOperator("Basic nope"), apperrors.ErrCodeAuthenticationFailed))
}
