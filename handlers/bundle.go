package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Booking endpoints
	ReserveHandler          gin.HandlerFunc
	StatusHandler           gin.HandlerFunc
	StatusByCheckoutHandler gin.HandlerFunc
	CancelHandler           gin.HandlerFunc
	ConflictsHandler        gin.HandlerFunc

	// Payment endpoints
	WebhookHandler gin.HandlerFunc

	HealthHandler gin.HandlerFunc
}

// NewHandlerBundle wires the booking and payment handlers into a bundle.
func NewHandlerBundle(bh *BookingHandler, ph *PaymentHandler, hh *HealthHandler) *HandlerBundle {
	return &HandlerBundle{
		ReserveHandler:          bh.Reserve,
		StatusHandler:           bh.Status,
		StatusByCheckoutHandler: bh.StatusByCheckout,
		CancelHandler:           bh.Cancel,
		ConflictsHandler:        bh.Conflicts,
		WebhookHandler:          ph.Webhook,
		HealthHandler:           hh.Health,
	}
}
