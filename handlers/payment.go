package handlers

import (
	"io"
	"net/http"

	"mentorbook/services/booking"
	"mentorbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody caps webhook payloads; Stripe events are far smaller.
const maxWebhookBody = 64 << 10

// PaymentHandler receives gateway callbacks.
type PaymentHandler struct {
	Verifier booking.WebhookVerifier
	Svc      booking.BookingService
}

func NewPaymentHandler(verifier booking.WebhookVerifier, svc booking.BookingService) *PaymentHandler {
	return &PaymentHandler{Verifier: verifier, Svc: svc}
}

// Webhook handles POST /api/payments/webhook. A non-2xx answer makes Stripe redeliver.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	logger := getLogger(c)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, string(booking.CodeInvalidRequest), "could not read payload", nil)
		return
	}
	event, err := h.Verifier.ParseEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		logger.Warn("Webhook: rejected payload", zap.Error(err))
		utils.JSONError(c, http.StatusBadRequest, string(booking.CodeInvalidRequest), "invalid webhook payload", nil)
		return
	}

	if err := h.Svc.HandleGatewayEvent(c.Request.Context(), *event); err != nil {
		logger.Error("Webhook: event not applied", zap.String("event_id", event.ID), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, string(booking.CodeInternalError), "event not processed", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
