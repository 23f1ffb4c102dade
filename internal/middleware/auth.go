package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/go-petr/ledger-engine/pkg/jsonresponse"
	"github.com/rs/zerolog"
)

// AuthContextKey is the gin context key holding the caller's
// domain.AuthContext.
const AuthContextKey = "auth_context"

// Headers set by the upstream gateway after it authenticates the
// caller. The engine trusts them; it performs no authentication of its
// own.
const (
	UserIDHeader     = "X-User-ID"
	PrivilegedHeader = "X-User-Privileged"
)

// AuthContext extracts the pre-resolved caller identity from gateway
// headers and stores it on the request context. Requests without a
// caller id are rejected.
func AuthContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		l := zerolog.Ctx(c.Request.Context())

		userID, err := strconv.ParseInt(c.GetHeader(UserIDHeader), 10, 64)
		if err != nil || userID <= 0 {
			l.Info().Str("header", c.GetHeader(UserIDHeader)).Msg("missing or malformed caller id")
			c.AbortWithStatusJSON(http.StatusUnauthorized, jsonresponse.Error(domain.ErrInvalidOwner))

			return
		}

		c.Set(AuthContextKey, domain.AuthContext{
			UserID:     userID,
			Privileged: c.GetHeader(PrivilegedHeader) == "true",
		})

		c.Next()
	}
}

// GetAuthContext returns the caller identity stored by AuthContext.
func GetAuthContext(c *gin.Context) domain.AuthContext {
	return c.MustGet(AuthContextKey).(domain.AuthContext)
}

// AddAuthContext sets the gateway identity headers on a test request.
func AddAuthContext(r *http.Request, auth domain.AuthContext) {
	r.Header.Set(UserIDHeader, strconv.FormatInt(auth.UserID, 10))

	if auth.Privileged {
		r.Header.Set(PrivilegedHeader, "true")
	}
}
