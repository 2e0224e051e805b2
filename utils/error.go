package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Error        string      `json:"error"`
	Code         string      `json:"code"`
	Alternatives interface{} `json:"alternatives,omitempty"`
	RequestID    string      `json:"requestId,omitempty"`
}

// RequestIDKey is the gin context key holding the request correlation id.
const RequestIDKey = "requestID"

// RequestID returns the correlation id assigned to the request, if any.
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// ErrorHandler is a middleware to catch panics and return structured errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				GetLogger().Error("Unhandled panic",
					zap.Any("error", err),
					zap.String("request_id", RequestID(c)),
					zap.String("path", c.FullPath()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error:     "An unexpected error occurred. Please try again later.",
					Code:      "InternalError",
					RequestID: RequestID(c),
				})
			}
		}()
		c.Next()
	}
}

// JSONError sends a standardized JSON error response
func JSONError(c *gin.Context, status int, code, message string, alternatives interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:        message,
		Code:         code,
		Alternatives: alternatives,
		RequestID:    RequestID(c),
	})
}
