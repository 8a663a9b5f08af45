// Package auth verifies inbound webhook signatures and the shared operator token.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	apperrors "rating-notifier/internal/common/errors"
)

const basicPrefix = "Basic "

// Verifier checks the two shared secrets the HTTP surface accepts.
type Verifier struct {
	webhookKey []byte
	token      string
}

func NewVerifier(webhookKey, token string) *Verifier {
	return &Verifier{webhookKey: []byte(webhookKey), token: token}
}

// Sign returns hex(HMAC-SHA256(key, timestamp+token)).
func Sign(key, timestamp, token string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + token))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature reports whether signature was produced over timestamp+token
// with the webhook signing key. An unset key never validates.
func (v *Verifier) ValidSignature(timestamp, token, signature string) bool {
	if len(v.webhookKey) == 0 || signature == "" {
		return false
	}
	expected := Sign(string(v.webhookKey), timestamp, token)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// ValidAuthorization reports whether header is "Basic <token>" for the
// configured operator token. An unset token never validates.
func (v *Verifier) ValidAuthorization(header string) bool {
	if v.token == "" || !strings.HasPrefix(header, basicPrefix) {
		return false
	}
	got := strings.TrimSpace(strings.TrimPrefix(header, basicPrefix))
	return subtle.ConstantTimeCompare([]byte(got), []byte(v.token)) == 1
}

// AuthenticateWebhook accepts either the operator token or a valid signature.
func (v *Verifier) AuthenticateWebhook(authorization, timestamp, token, signature string) error {
	if v.ValidAuthorization(authorization) || v.ValidSignature(timestamp, token, signature) {
		return nil
	}
	return apperrors.NewAuthenticationError("webhook signature mismatch")
}

// AuthenticateOperator accepts only the operator token.
func (v *Verifier) AuthenticateOperator(authorization string) error {
	if v.ValidAuthorization(authorization) {
		return nil
	}
	return apperrors.NewAuthenticationError("missing or invalid operator token")
}
