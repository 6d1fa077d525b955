package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/service"
)

// maxWebhookBytes bounds the payload read from the gateway.
const maxWebhookBytes = 64 << 10

// SignatureHeader carries the gateway's payload signature.
const SignatureHeader = "Stripe-Signature"

// WebhookHandler receives the payment gateway's lifecycle events.
type WebhookHandler struct {
	recon *service.Reconciler
	log   *zap.Logger
}

// NewWebhookHandler wires the reconciler.
func NewWebhookHandler(recon *service.Reconciler, log *zap.Logger) *WebhookHandler {
	if recon == nil {
		panic("nil reconciler passed to NewWebhookHandler")
	}
	return &WebhookHandler{recon: recon, log: log}
}

// Receive handles POST /webhooks/payments.  It answers 200 "ok" once the
// event is applied, 400 when the signature does not verify and 500 when
// processing failed so the gateway retries.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxWebhookBytes))
	if err != nil {
		return respondError(c, h.log, service.Invalid("unreadable payload"))
	}
	sig := c.Request().Header.Get(SignatureHeader)
	if err := h.recon.HandleWebhook(c.Request().Context(), body, sig); err != nil {
		return respondError(c, h.log, err)
	}
	return c.String(http.StatusOK, "ok")
}
