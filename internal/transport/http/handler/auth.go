package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

// authUsecaser is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type authUsecaser interface {
	RequestOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (string, error)
	Logout(ctx context.Context, token string) error
}

type cookieIssuer interface {
	Cookie(token string, expiresAt time.Time) (*http.Cookie, error)
	Expired() *http.Cookie
}

const (
	defaultDeliveryTimeout      = 30 * time.Second
	defaultMaxPendingDeliveries = 256
)

type AuthHandlerOptions struct {
	// SessionMaxAge sets the expiry of the cookie issued on login.
	SessionMaxAge time.Duration
	// ResponseFloor is the minimum time POST /otp takes to answer.
	ResponseFloor time.Duration
	// DeliveryTimeout bounds one background OTP request, lookup and mail
	// delivery included. Defaults to 30s.
	DeliveryTimeout time.Duration
	// MaxPendingDeliveries caps background OTP requests in flight. Requests
	// over the cap are dropped and logged. Defaults to 256.
	MaxPendingDeliveries int
}

type AuthHandler struct {
	authUsecase authUsecaser
	cookies     cookieIssuer
	opts        AuthHandlerOptions
	logger      *slog.Logger

	pending chan struct{}
	wg      sync.WaitGroup
}

func NewAuthHandler(authUsecase authUsecaser, cookies cookieIssuer, opts AuthHandlerOptions, logger *slog.Logger) *AuthHandler {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = defaultDeliveryTimeout
	}
	if opts.MaxPendingDeliveries <= 0 {
		opts.MaxPendingDeliveries = defaultMaxPendingDeliveries
	}
	return &AuthHandler{
		authUsecase: authUsecase,
		cookies:     cookies,
		opts:        opts,
		logger:      logger.With("component", "auth_handler"),
		pending:     make(chan struct{}, opts.MaxPendingDeliveries),
	}
}

type otpRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// POST /auth/otp
// Always returns 200 so callers cannot learn which addresses are eligible.
// The usecase runs after the response is decided, so latency depends on
// neither admission nor mail delivery.
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	start := time.Now()

	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody})
		return
	}

	ctx := c.Request.Context()
	h.dispatch(ctx, req.Email)

	h.waitFloor(ctx, start)
	c.JSON(http.StatusOK, gin.H{"message": msgOTPSent})
}

// POST /auth/verify
// Sets the session cookie on success; every failure is the same 401.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody})
		return
	}

	ctx := c.Request.Context()
	token, err := h.authUsecase.VerifyOTP(ctx, req.Email, req.OTP)
	if err != nil {
		if errors.Is(err, domain.ErrSessionCreationFailed) {
			h.logger.ErrorContext(ctx, "verify otp", "error", err)
		} else {
			h.logger.InfoContext(ctx, "verify otp rejected", "reason", err.Error())
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": errAuthFailed})
		return
	}

	ck, err := h.cookies.Cookie(token, time.Now().Add(h.opts.SessionMaxAge))
	if err != nil {
		h.logger.ErrorContext(ctx, "issue session cookie", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": errAuthFailed})
		return
	}
	http.SetCookie(c.Writer, ck)
	c.JSON(http.StatusOK, gin.H{"message": msgVerified})
}

// GET /auth/whoami
func (h *AuthHandler) WhoAmI(c *gin.Context) {
	user, ok := c.MustGet(middleware.KeyUser).(*domain.User)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "email": user.Email})
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.authUsecase.Logout(ctx, c.GetString(middleware.KeySessionToken)); err != nil {
		h.logger.ErrorContext(ctx, "logout", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	http.SetCookie(c.Writer, h.cookies.Expired())
	c.JSON(http.StatusOK, gin.H{"message": msgLogout})
}

// Wait blocks until background OTP requests finish or ctx is done. Call it
// after the HTTP server has stopped accepting requests.
func (h *AuthHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch runs the OTP request detached from the HTTP request. The request
// ID stays on the context for logging; cancellation does not.
func (h *AuthHandler) dispatch(ctx context.Context, email string) {
	select {
	case h.pending <- struct{}{}:
	default:
		h.logger.ErrorContext(ctx, "otp request dropped", "reason", "too many pending deliveries")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() { <-h.pending }()

		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.DeliveryTimeout)
		defer cancel()
		if err := h.authUsecase.RequestOTP(bg, email); err != nil {
			h.logRequestFailure(bg, err)
		}
	}()
}

func (h *AuthHandler) logRequestFailure(ctx context.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrDomainNotAllowed):
		h.logger.InfoContext(ctx, "otp request rejected", "reason", err.Error())
	default:
		h.logger.ErrorContext(ctx, "request otp", "error", err)
	}
}

func (h *AuthHandler) waitFloor(ctx context.Context, start time.Time) {
	remaining := h.opts.ResponseFloor - time.Since(start)
	if remaining <= 0 {
		return
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
