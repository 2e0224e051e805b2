package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"mentorbook/models"
	"mentorbook/services/booking"
	"mentorbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BookingHandler serves the reservation endpoints.
type BookingHandler struct {
	Svc booking.BookingService
}

func NewBookingHandler(svc booking.BookingService) *BookingHandler {
	RegisterValidations()
	return &BookingHandler{Svc: svc}
}

type reserveRequest struct {
	MentorID        string            `json:"mentorId" binding:"required,uuid"`
	ServiceID       string            `json:"serviceId" binding:"required,uuid"`
	SessionStartUTC string            `json:"sessionStartUtc" binding:"required,rfc3339"`
	DurationMinutes int               `json:"durationMinutes" binding:"required,min=1,max=480"`
	IdempotencyKey  string            `json:"idempotencyKey" binding:"max=255"`
	Metadata        map[string]string `json:"metadata" binding:"max=20"`
}

type idParam struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// bindID reads the :id path parameter and answers 400 unless it is a UUID.
func bindID(c *gin.Context, name string) (string, bool) {
	var p idParam
	if err := c.ShouldBindUri(&p); err != nil {
		getLogger(c).Debug("invalid path id", zap.String("id", c.Param("id")), zap.Error(err))
		utils.JSONError(c, http.StatusBadRequest, string(booking.CodeInvalidRequest), name+" must be a UUID", nil)
		return "", false
	}
	return p.ID, true
}

type reservationResponse struct {
	*models.ReservationView
	RequestID string `json:"requestId"`
}

type sessionResponse struct {
	*models.SessionDetails
	RequestID string `json:"requestId"`
}

type conflictResponse struct {
	*booking.ConflictReport
	RequestID string `json:"requestId"`
}

// Reserve handles POST /api/bookings.
func (h *BookingHandler) Reserve(c *gin.Context) {
	logger := getLogger(c)

	var body reserveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		logger.Debug("Reserve: invalid request body", zap.Error(err))
		utils.JSONError(c, http.StatusBadRequest, string(booking.CodeInvalidRequest), "invalid request body: "+err.Error(), nil)
		return
	}
	start, _ := time.Parse(time.RFC3339, body.SessionStartUTC)

	key := body.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}

	result, err := h.Svc.Reserve(c.Request.Context(), booking.ReserveRequest{
		MenteeID:        c.GetString("menteeID"),
		MentorID:        body.MentorID,
		ServiceID:       body.ServiceID,
		StartUTC:        start,
		DurationMinutes: body.DurationMinutes,
		IdempotencyKey:  key,
		Metadata:        body.Metadata,
		CorrelationID:   utils.RequestID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	if result.Session != nil {
		c.JSON(status, sessionResponse{SessionDetails: result.Session, RequestID: utils.RequestID(c)})
		return
	}
	c.JSON(status, reservationResponse{
		ReservationView: models.NewReservationView(result.Reservation),
		RequestID:       utils.RequestID(c),
	})
}

// Status handles GET /api/bookings/:id/status.
func (h *BookingHandler) Status(c *gin.Context) {
	id, ok := bindID(c, "reservation id")
	if !ok {
		return
	}
	view, err := h.Svc.GetStatus(c.Request.Context(), c.GetString("menteeID"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationResponse{ReservationView: view, RequestID: utils.RequestID(c)})
}

// StatusByCheckout handles GET /api/bookings/status?checkout=<handle>, the landing
// page lookup after a checkout redirect.
func (h *BookingHandler) StatusByCheckout(c *gin.Context) {
	handle := strings.TrimSpace(c.Query("checkout"))
	if handle == "" {
		utils.JSONError(c, http.StatusBadRequest, string(booking.CodeInvalidRequest), "checkout query parameter is required", nil)
		return
	}
	view, err := h.Svc.GetStatusByCheckout(c.Request.Context(), c.GetString("menteeID"), handle)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationResponse{ReservationView: view, RequestID: utils.RequestID(c)})
}

// Cancel handles POST /api/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := bindID(c, "reservation id")
	if !ok {
		return
	}
	view, err := h.Svc.Cancel(c.Request.Context(), c.GetString("menteeID"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationResponse{ReservationView: view, RequestID: utils.RequestID(c)})
}

// Conflicts handles GET /api/mentors/:id/conflicts?start=&duration=. The answer is
// advisory; only a reservation claims the window.
func (h *BookingHandler) Conflicts(c *gin.Context) {
	mentorID, ok := bindID(c, "mentor id")
	if !ok {
		return
	}
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, string(booking.CodeInvalidRequest), "start must be an RFC3339 timestamp", nil)
		return
	}
	duration, err := strconv.Atoi(c.Query("duration"))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, string(booking.CodeInvalidRequest), "duration must be a number of minutes", nil)
		return
	}
	report, err := h.Svc.CheckConflict(c.Request.Context(), mentorID, start, duration)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conflictResponse{ConflictReport: report, RequestID: utils.RequestID(c)})
}

// respondError renders service errors; internal causes are logged, never returned.
func respondError(c *gin.Context, err error) {
	be := booking.AsBookingError(err, booking.CodeInternalError)
	status := be.HTTPStatus()
	fields := []zap.Field{zap.String("code", string(be.Code)), zap.Int("status", status), zap.Error(err)}
	switch {
	case status >= http.StatusInternalServerError:
		getLogger(c).Error("request failed", fields...)
	case be.IsConflict():
		getLogger(c).Info("booking conflict", fields...)
	default:
		getLogger(c).Debug("request rejected", fields...)
	}

	var alternatives interface{}
	if len(be.Alternatives) > 0 {
		alternatives = be.Alternatives
	}
	utils.JSONError(c, status, string(be.Code), be.PublicMessage(), alternatives)
}
