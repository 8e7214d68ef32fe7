package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/katinat-coffee/ordering-backend/internal/apperr"
	"github.com/katinat-coffee/ordering-backend/internal/payments"
	"github.com/katinat-coffee/ordering-backend/pkg/logger"
)

const maxWebhookBody = 64 * 1024

// RegisterWebhookRoutes mounts the payment processor callback endpoint.
// The route carries no bearer auth; authenticity comes from the signature
// check inside the gateway.
func RegisterWebhookRoutes(r *gin.Engine, gw *payments.Gateway, log *logger.Logger) {
	if log == nil {
		log = logger.Default()
	}
	whLog := log.WithComponent("webhook_handler")

	r.POST("/api/webhooks/stripe", func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
			return
		}

		err = gw.HandleCallback(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"received": true})
		case apperr.Is(err, apperr.KindSignature):
			// Reject without acknowledgment: the processor must not treat
			// an unverified event as handled.
			c.JSON(http.StatusBadRequest, gin.H{"error": apperr.Code(err)})
		default:
			// The event is durably received; acknowledge so the processor
			// stops retrying, and leave the failure in the logs.
			whLog.Error("webhook processing failed", "error", err)
			c.JSON(http.StatusOK, gin.H{"received": true})
		}
	})
}
