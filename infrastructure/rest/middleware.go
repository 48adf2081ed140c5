package rest

import (
	"chatto/auth"
	"chatto/errors"
	"chatto/services"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Authenticate resolves the bearer token to an identity or answers 401.
func Authenticate(authService services.IAuthService, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abort(c, log, err)
			return
		}
		identity, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			abort(c, log, err)
			return
		}
		c.Set(identityKey, identity)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

// MustIdentity is only valid behind Authenticate.
func MustIdentity(c *gin.Context) auth.Identity {
	return c.MustGet(identityKey).(auth.Identity)
}

// RequestLogger logs one line per request at a level matching its status.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
		}
		if identity, ok := c.Get(identityKey); ok {
			attrs = append(attrs, "user_id", identity.(auth.Identity).User.ID)
		}
		switch {
		case status >= 500:
			log.Error("HTTP request", attrs...)
		case status >= 400:
			log.Warn("HTTP request", attrs...)
		default:
			log.Info("HTTP request", attrs...)
		}
	}
}

// notFound answers unknown routes in the same error format.
func notFound(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		abort(c, log, errors.ErrNotFound)
	}
}
