package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/pincex_spot/common/errors"
)

const (
	// UserIDHeader carries the caller identity set by the upstream gateway.
	UserIDHeader    = "X-User-ID"
	RequestIDHeader = "X-Request-ID"

	ctxUserID = "userID"
)

// requestID tags every request with an id, reusing the caller's if present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("trace_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// identityMiddleware resolves X-User-ID to a registered user.
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			errors.Unauthorized(c, UserIDHeader+" header required")
			return
		}
		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || userID == 0 {
			errors.Unauthorized(c, "invalid "+UserIDHeader+" header")
			return
		}
		ok, err := s.identities.Exists(c.Request.Context(), userID)
		if err != nil {
			s.logger.Error("Identity lookup failed", zap.Uint64("user_id", userID), zap.Error(err))
			errors.HandleError(c, err)
			return
		}
		if !ok {
			errors.Unauthorized(c, "unknown user")
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) uint64 {
	return c.GetUint64(ctxUserID)
}
