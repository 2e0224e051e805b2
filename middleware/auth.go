package middleware

import (
	"net/http"
	"strings"

	"mentorbook/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MenteeIDKey is the gin context key holding the authenticated mentee.
const MenteeIDKey = "menteeID"

// JWTAuthMenteeMiddleware authenticates the caller from a Bearer token whose subject
// is the mentee ID.
func JWTAuthMenteeMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			utils.JSONError(c, http.StatusUnauthorized, "Unauthorized", "Missing or invalid Authorization header", nil)
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if tokenString == "" {
			utils.JSONError(c, http.StatusUnauthorized, "Unauthorized", "Missing or invalid Authorization header", nil)
			return
		}

		menteeID, err := utils.ExtractIDFromToken(secret, tokenString)
		if err != nil {
			RequestLogger(c).Debug("rejected token", zap.Error(err))
			utils.JSONError(c, http.StatusUnauthorized, "Unauthorized", "Invalid token", nil)
			return
		}
		if _, err := uuid.Parse(menteeID); err != nil {
			utils.JSONError(c, http.StatusUnauthorized, "Unauthorized", "Invalid token subject", nil)
			return
		}

		c.Set(MenteeIDKey, menteeID)
		c.Next()
	}
}
