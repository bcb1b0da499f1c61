package httptransport

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ErlanBelekov/otp-auth/internal/transport/http/handler"
	"github.com/ErlanBelekov/otp-auth/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

type RouterDeps struct {
	Logger      *slog.Logger
	Auth        *handler.AuthHandler
	Session     gin.HandlerFunc
	RateLimiter *middleware.IPRateLimiter
	// TrustedProxies may set X-Forwarded-For. Empty trusts nobody, so the
	// rate limiter keys on the socket peer.
	TrustedProxies []string
}

func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.NewWithConfig(deps.Logger, sloggin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		Filters:          []sloggin.Filter{skipProbes},
	}))
	r.Use(middleware.Metrics())

	auth := r.Group("/api/v1/auth", deps.RateLimiter.Middleware())
	auth.POST("/otp", deps.Auth.RequestOTP)
	auth.POST("/verify", deps.Auth.Verify)
	auth.GET("/whoami", deps.Session, deps.Auth.WhoAmI)
	auth.POST("/logout", deps.Session, deps.Auth.Logout)

	return r, nil
}

// skipProbes keeps load balancer health checks out of the request log.
func skipProbes(c *gin.Context) bool {
	switch c.Request.URL.Path {
	case "/livez", "/readyz":
		return false
	}
	return !strings.HasPrefix(c.Request.UserAgent(), "ELB-HealthChecker")
}
