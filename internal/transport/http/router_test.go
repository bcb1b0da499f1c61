package httptransport_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	httptransport "github.com/ErlanBelekov/otp-auth/internal/transport/http"
	"github.com/ErlanBelekov/otp-auth/internal/transport/http/handler"
	"github.com/ErlanBelekov/otp-auth/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type rejectingUsecase struct{}

func (rejectingUsecase) RequestOTP(context.Context, string) error { return nil }

func (rejectingUsecase) VerifyOTP(context.Context, string, string) (string, error) {
	return "", domain.ErrInvalidOrExpiredCode
}

func (rejectingUsecase) Logout(context.Context, string) error { return nil }

type noCookies struct{}

func (noCookies) Cookie(string, time.Time) (*http.Cookie, error) { return &http.Cookie{}, nil }
func (noCookies) Expired() *http.Cookie                          { return &http.Cookie{} }

func newTestRouter(t *testing.T, trusted []string) *gin.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := httptransport.NewRouter(httptransport.RouterDeps{
		Logger:         logger,
		Auth:           handler.NewAuthHandler(rejectingUsecase{}, noCookies{}, handler.AuthHandlerOptions{}, logger),
		Session:        func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) },
		RateLimiter:    middleware.NewIPRateLimiter(3),
		TrustedProxies: trusted,
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

// verifyFrom posts a wrong code from remoteAddr claiming to forward for xff.
func verifyFrom(r *gin.Engine, remoteAddr, xff string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/verify",
		strings.NewReader(`{"email":"alice@dept.example.org","otp":"000000"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", xff)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRouter_SpoofedForwardedForDoesNotBypassRateLimit(t *testing.T) {
	r := newTestRouter(t, nil)

	var passed, limited int
	for i := range 20 {
		switch code := verifyFrom(r, "203.0.113.7:4000", fmt.Sprintf("198.51.100.%d", i+1)); code {
		case http.StatusUnauthorized:
			passed++
		case http.StatusTooManyRequests:
			limited++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}

	if passed != 3 || limited != 17 {
		t.Errorf("passed=%d limited=%d, want 3 and 17", passed, limited)
	}
}

func TestRouter_TrustedProxyForwardsClientIP(t *testing.T) {
	r := newTestRouter(t, []string{"10.0.0.0/8"})

	// Each forwarded client gets its own budget behind a trusted proxy.
	for i := range 10 {
		if code := verifyFrom(r, "10.0.0.1:4000", fmt.Sprintf("198.51.100.%d", i+1)); code != http.StatusUnauthorized {
			t.Fatalf("client %d: status = %d, want 401", i, code)
		}
	}

	// An untrusted peer's header is still ignored.
	for range 3 {
		verifyFrom(r, "203.0.113.7:4000", "198.51.100.200")
	}
	if code := verifyFrom(r, "203.0.113.7:4000", "198.51.100.201"); code != http.StatusTooManyRequests {
		t.Errorf("untrusted peer: status = %d, want 429", code)
	}
}

func TestNewRouter_RejectsBadProxy(t *testing.T) {
	_, err := httptransport.NewRouter(httptransport.RouterDeps{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		TrustedProxies: []string{"not-an-ip"},
	})
	if err == nil {
		t.Fatal("expected error for an invalid proxy")
	}
}
