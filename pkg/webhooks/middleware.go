package webhooks

import (
	"bytes"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/merchantry/merchantry/pkg/audit"
	"github.com/merchantry/merchantry/pkg/httputil"
)

// maxCallbackBody bounds how much of a callback payload is read
const maxCallbackBody = 1 << 20 // 1MB

// VerificationObserver receives verification outcomes for metrics
type VerificationObserver interface {
	ObserveWebhookVerification(ok bool)
}

// Gate wraps payment callback handlers with signature verification. The raw
// body is consumed for the HMAC computation and restored on the request so
// the wrapped handler can parse it. Rejections are generic on the wire; the
// reason is only logged server side.
type Gate struct {
	verifier *Verifier
	header   string
	logger   *logrus.Logger
	observer VerificationObserver
}

// NewGate creates a verification gate reading the signature from the given
// header, e.g. X-Payment-Signature.
func NewGate(verifier *Verifier, header string, logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gate{verifier: verifier, header: header, logger: logger}
}

// SetObserver wires verification metrics
func (g *Gate) SetObserver(observer VerificationObserver) {
	g.observer = observer
}

// Middleware verifies the callback signature before the handler runs
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			g.logger.WithError(err).Warn("failed to read webhook body")
			httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		signature := r.Header.Get(g.header)
		ok := g.verifier.Verify(body, signature)
		if g.observer != nil {
			g.observer.ObserveWebhookVerification(ok)
		}
		if !ok {
			g.logger.WithFields(logrus.Fields{
				"remote_addr":   r.RemoteAddr,
				"has_signature": signature != "",
				"body_bytes":    len(body),
			}).Warn("webhook signature verification failed")
			if err := audit.LogWebhookRejected(r.Context(), r.RemoteAddr, signature != ""); err != nil {
				g.logger.WithError(err).Warn("failed to record webhook rejection")
			}
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}
