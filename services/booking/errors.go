package booking

import (
	"errors"
	"fmt"
	"net/http"

	"mentorbook/models"
)

// ErrorCode is the stable, client-facing error identifier.
type ErrorCode string

const (
	CodeUnauthorized           ErrorCode = "Unauthorized"
	CodeInvalidRequest         ErrorCode = "InvalidRequest"
	CodeMenteeNotFound         ErrorCode = "MenteeNotFound"
	CodeMentorNotFound         ErrorCode = "MentorNotFound"
	CodeMentorInactive         ErrorCode = "MentorInactive"
	CodeServiceNotFound        ErrorCode = "ServiceNotFound"
	CodeServiceInactive        ErrorCode = "ServiceInactive"
	CodeReservationNotFound    ErrorCode = "ReservationNotFound"
	CodeSlotUnavailable        ErrorCode = "SlotUnavailable"
	CodeTimeConflict           ErrorCode = "TimeConflict"
	CodeNoAvailability         ErrorCode = "NoAvailability"
	CodeInvalidStateTransition ErrorCode = "InvalidStateTransition"
	CodeGatewayUnavailable     ErrorCode = "GatewayUnavailable"
	CodeBookingFailed          ErrorCode = "BookingFailed"
	CodeInternalError          ErrorCode = "InternalError"
)

// BookingError is the typed error every booking operation returns to its caller.
// Err holds the internal cause; it is logged, never rendered.
type BookingError struct {
	Code         ErrorCode
	Message      string
	Alternatives []models.SlotSuggestion
	Err          error
}

func (e *BookingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BookingError) Unwrap() error { return e.Err }

// HTTPStatus maps the code onto the response status.
func (e *BookingError) HTTPStatus() int {
	switch e.Code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeMenteeNotFound, CodeMentorNotFound, CodeServiceNotFound, CodeReservationNotFound:
		return http.StatusNotFound
	case CodeMentorInactive, CodeServiceInactive,
		CodeSlotUnavailable, CodeTimeConflict, CodeNoAvailability,
		CodeInvalidStateTransition:
		return http.StatusConflict
	case CodeGatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsConflict reports whether the error is an expected, retryable slot conflict.
func (e *BookingError) IsConflict() bool {
	return IsConflictCode(e.Code)
}

// PublicMessage hides internal detail for server-side failures.
func (e *BookingError) PublicMessage() string {
	if e.HTTPStatus() >= http.StatusInternalServerError && e.Code != CodeGatewayUnavailable {
		return "We could not complete your booking. Please try again later."
	}
	return e.Message
}

func IsConflictCode(code ErrorCode) bool {
	switch code {
	case CodeSlotUnavailable, CodeTimeConflict, CodeNoAvailability:
		return true
	}
	return false
}

func newError(code ErrorCode, msg string) *BookingError {
	return &BookingError{Code: code, Message: msg}
}

func wrapError(code ErrorCode, msg string, err error) *BookingError {
	return &BookingError{Code: code, Message: msg, Err: err}
}

func invalidRequest(format string, args ...interface{}) *BookingError {
	return newError(CodeInvalidRequest, fmt.Sprintf(format, args...))
}

func invalidTransition(r *models.Reservation, action string) *BookingError {
	return newError(CodeInvalidStateTransition,
		fmt.Sprintf("reservation %s is %s and cannot be %s", r.ID, r.Status, action))
}

// AsBookingError converts any error into a BookingError, treating unknown errors as
// opaque internal failures with the given fallback code.
func AsBookingError(err error, fallback ErrorCode) *BookingError {
	if err == nil {
		return nil
	}
	var be *BookingError
	if errors.As(err, &be) {
		return be
	}
	return wrapError(fallback, "internal error", err)
}

// Gateway sentinel errors returned by PaymentGateway implementations.
var (
	// ErrGatewayTransient marks failures worth retrying with the same idempotency key.
	ErrGatewayTransient = errors.New("payment gateway temporarily unavailable")
	// ErrCheckoutNotFound is returned when the gateway does not know the handle.
	ErrCheckoutNotFound = errors.New("checkout not found")
)

// ErrConfirmationTimeout is returned by AwaitConfirmation when the bound is exhausted.
var ErrConfirmationTimeout = errors.New("could not auto-confirm the booking; check your bookings later")
