package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomwire/internal/auth"
	"github.com/vovakirdan/roomwire/internal/errs"
)

// ContextKeyPrincipal is the gin context key holding the authenticated auth.Principal.
const ContextKeyPrincipal = "principal"

// AuthMiddleware admits requests carrying a valid session cookie or bearer token.
func AuthMiddleware(authn *auth.Authenticator, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := authn.Authenticate(c.Request)
		if err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("request rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: errs.MessageOf(err),
				Code:  errs.CodeUnauthorized,
			})
			return
		}

		c.Set(ContextKeyPrincipal, p)
		c.Next()
	}
}

// principalFrom returns the principal stored by AuthMiddleware.
func principalFrom(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(ContextKeyPrincipal)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
