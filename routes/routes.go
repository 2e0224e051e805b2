package routes

import (
	"time"

	"mentorbook/handlers"
	"mentorbook/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
}

// RegisterBookingRoutes sets up the mentee-facing reservation endpoints.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle, jwtSecret string) {
	bookingGroup := r.Group("/api/bookings")
	{
		bookingGroup.Use(middleware.JWTAuthMenteeMiddleware(jwtSecret))
		bookingGroup.POST("", hb.ReserveHandler)
		bookingGroup.GET("/status", hb.StatusByCheckoutHandler)
		bookingGroup.GET("/:id/status", hb.StatusHandler)
		bookingGroup.POST("/:id/cancel", hb.CancelHandler)
	}

	mentorGroup := r.Group("/api/mentors")
	{
		mentorGroup.Use(middleware.JWTAuthMenteeMiddleware(jwtSecret))
		mentorGroup.GET("/:id/conflicts", hb.ConflictsHandler)
	}
}

// RegisterPaymentRoutes sets up gateway callbacks. They authenticate by signature, not JWT.
func RegisterPaymentRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	paymentGroup := r.Group("/api/payments")
	{
		paymentGroup.POST("/webhook", hb.WebhookHandler)
	}
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, jwtSecret string) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type", "Idempotency-Key", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	RegisterHealthRoute(r, hb)
	RegisterBookingRoutes(r, hb, jwtSecret)
	RegisterPaymentRoutes(r, hb)
}
