package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	ctxlog "github.com/ErlanBelekov/otp-auth/internal/log"
	"github.com/gin-gonic/gin"
)

const (
	errUnauthorized   = "Unauthorized"
	errInternalServer = "Internal server error"

	// Context keys set by Session.
	KeyUser         = "user"
	KeySessionToken = "sessionToken"
)

type sessionResolver interface {
	CurrentUser(ctx context.Context, token string) (*domain.Session, *domain.User, error)
}

type cookieCodec interface {
	Name() string
	Decode(raw string) (string, error)
	Cookie(token string, expiresAt time.Time) (*http.Cookie, error)
	Expired() *http.Cookie
}

// Session requires a valid session cookie. It touches the session, reissues
// the cookie with the new expiry and sets KeyUser and KeySessionToken.
func Session(resolver sessionResolver, cookies cookieCodec, logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "session_middleware")

	return func(c *gin.Context) {
		raw, err := c.Cookie(cookies.Name())
		if err != nil || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		token, err := cookies.Decode(raw)
		if err != nil {
			http.SetCookie(c.Writer, cookies.Expired())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		ctx := c.Request.Context()
		sess, user, err := resolver.CurrentUser(ctx, token)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrUserNotFound) {
				http.SetCookie(c.Writer, cookies.Expired())
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			logger.ErrorContext(ctx, "resolve session", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
			return
		}

		if ck, err := cookies.Cookie(token, sess.ExpiresAt); err == nil {
			http.SetCookie(c.Writer, ck)
		} else {
			logger.WarnContext(ctx, "refresh session cookie", "error", err)
		}

		c.Request = c.Request.WithContext(ctxlog.WithUserID(ctx, user.ID))
		c.Set(KeyUser, user)
		c.Set(KeySessionToken, token)
		c.Next()
	}
}
