// Package signature authenticates webhook deliveries against the channel
// provider's shared secret. Verification operates on the exact raw request
// bytes, before any JSON parsing, because re-serialization is not guaranteed
// to be byte-identical.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"chat-router/internal/common/logging"
)

// Header is the signature header sent by the channel provider
const Header = "x-hub-signature-256"

const algorithmPrefix = "sha256="

// Verifier checks webhook payload signatures
type Verifier struct {
	secret []byte
	logger logging.Logger
}

// NewVerifier creates a verifier for the given shared secret
func NewVerifier(secret string, logger logging.Logger) *Verifier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Verifier{
		secret: []byte(secret),
		logger: logger,
	}
}

// Verify reports whether headerValue carries a valid HMAC-SHA256 hex digest
// of body. It fails closed: a missing secret, missing header, or malformed
// header always yields false.
func (v *Verifier) Verify(body []byte, headerValue string) bool {
	if len(v.secret) == 0 {
		v.logger.Warn("signature verification failed", logging.String("reason", "no secret configured"))
		return false
	}

	if !strings.HasPrefix(headerValue, algorithmPrefix) {
		v.logger.Debug("signature verification failed", logging.String("reason", "missing or malformed header"))
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(headerValue, algorithmPrefix))
	if err != nil {
		v.logger.Debug("signature verification failed", logging.String("reason", "non-hex digest"))
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	// hmac.Equal compares in constant time
	return hmac.Equal(provided, expected)
}

// Sign computes the header value for a body. Used by tests and tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return algorithmPrefix + hex.EncodeToString(mac.Sum(nil))
}
