package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sirupsen/logrus"
)

// minSecretLength is the shortest webhook secret considered adequate
const minSecretLength = 32

// SignaturePrefix is prepended to outbound signatures; inbound values may
// carry it or be bare hex.
const SignaturePrefix = "sha256="

// Verifier authenticates inbound payment-provider callbacks against a shared
// HMAC secret. Verification is a pure function of (body, signature, secret);
// the environment only governs behavior when no secret is configured at all.
type Verifier struct {
	secret     string
	production bool
	logger     *logrus.Logger
}

// NewVerifier creates a verifier. An empty secret is tolerated here so that
// local development works without configuration; Verify fails closed in
// production. A short secret logs a warning once at construction.
func NewVerifier(secret string, production bool, logger *logrus.Logger) *Verifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if secret != "" && len(secret) < minSecretLength {
		logger.WithField("min_length", minSecretLength).
			Warn("webhook secret is shorter than recommended")
	}
	return &Verifier{secret: secret, production: production, logger: logger}
}

// Verify reports whether the signature authenticates the raw request body.
//
// With no secret configured the result depends on the deployment mode:
// production fails closed, everything else fails open so local callbacks
// are not blocked. With a secret configured, a missing signature is always
// a rejection, and the comparison against the expected digest is constant
// time. Any panic during computation is mapped to a rejection.
func (v *Verifier) Verify(body []byte, signature string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.WithField("panic", r).Error("webhook verification panicked")
			ok = false
		}
	}()

	if v.secret == "" {
		if v.production {
			v.logger.Error("webhook secret not configured, rejecting callback")
			return false
		}
		v.logger.Warn("webhook secret not configured, accepting callback without verification")
		return true
	}

	if signature == "" {
		return false
	}

	return VerifySignature(body, signature, v.secret)
}

// Sign computes the signature for an outbound payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an HMAC-SHA256 hex signature in constant time.
// The sha256= prefix on the provided value is optional.
func VerifySignature(payload []byte, signature, secret string) bool {
	provided := strings.TrimPrefix(signature, SignaturePrefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(provided))
}
