package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/admission"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/email"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/otpcode"
	"github.com/ErlanBelekov/otp-auth/internal/repository"
)

// AuthConfig is built once at startup and never mutated.
type AuthConfig struct {
	Matcher *admission.DomainMatcher
	Engine  *otpcode.Engine
	// Secret is the master key per-user OTP secrets are derived from.
	Secret  []byte
	AppHost string
	// MaxFailedAttempts applies only when an AttemptLimiter is configured. A
	// successful login resets the count.
	MaxFailedAttempts int
}

type AuthUsecase struct {
	users    repository.UserRepository
	ledger   repository.CodeLedger     // nil disables single-use enforcement
	attempts repository.AttemptLimiter // nil disables attempt limiting
	email    email.Sender
	sessions *SessionIssuer
	cfg      AuthConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthUsecase(
	users repository.UserRepository,
	ledger repository.CodeLedger,
	attempts repository.AttemptLimiter,
	emailSender email.Sender,
	sessions *SessionIssuer,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthUsecase {
	return &AuthUsecase{
		users:    users,
		ledger:   ledger,
		attempts: attempts,
		email:    emailSender,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.With("component", "auth_usecase"),
		now:      time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (u *AuthUsecase) WithClock(clock func() time.Time) {
	if clock != nil {
		u.now = clock
	}
}

// RequestOTP admits the address, resolves the user and emails a fresh code.
// The code is never returned to the caller.
func (u *AuthUsecase) RequestOTP(ctx context.Context, emailAddr string) (err error) {
	defer func() { metrics.OTPRequestsTotal.WithLabelValues(outcome(err)).Inc() }()

	addr, err := u.admit(emailAddr)
	if err != nil {
		return err
	}

	user, err := u.users.FindOrCreate(ctx, addr)
	if err != nil {
		return fmt.Errorf("find or create user: %w", err)
	}

	now := u.now()
	code, err := u.cfg.Engine.Generate(u.secretFor(user.ID), now)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	// With single use on, asking again inside the same step yields the same,
	// possibly already spent, code. Tell the user when a fresh one exists.
	var renewIn time.Duration
	if u.ledger != nil {
		renewIn = u.nextCodeIn(now)
	}

	subject, body, err := email.OTPMessage(u.cfg.AppHost, code, u.cfg.Engine.Validity(), renewIn)
	if err != nil {
		return err
	}

	start := time.Now()
	err = u.email.Send(ctx, addr, subject, body)
	metrics.MailDeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MailDeliveryFailuresTotal.Inc()
		return fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}

	u.logger.InfoContext(ctx, "otp sent", "user_id", user.ID)
	return nil
}

// VerifyOTP checks code for emailAddr and, on success, issues a session
// and returns its token.
func (u *AuthUsecase) VerifyOTP(ctx context.Context, emailAddr, code string) (token string, err error) {
	defer func() { metrics.OTPVerificationsTotal.WithLabelValues(outcome(err)).Inc() }()

	addr, err := u.admit(emailAddr)
	if err != nil {
		return "", err
	}

	user, err := u.users.FindByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", domain.ErrUnknownUser
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	// The attempt is counted before the code is compared, so a burst of
	// parallel guesses cannot all slip under the limit.
	if u.attempts != nil {
		n, err := u.attempts.RecordAttempt(ctx, user.ID)
		if err != nil {
			return "", fmt.Errorf("record attempt: %w", err)
		}
		if n > u.cfg.MaxFailedAttempts {
			return "", domain.ErrTooManyAttempts
		}
	}

	bucket, ok := u.cfg.Engine.Match(u.secretFor(user.ID), u.now(), code)
	if !ok {
		return "", domain.ErrInvalidOrExpiredCode
	}

	if u.ledger != nil {
		// Two steps covers the whole time the code can still match.
		claimed, err := u.ledger.Claim(ctx, user.ID, bucket, 2*u.cfg.Engine.Step())
		if err != nil {
			return "", fmt.Errorf("claim otp: %w", err)
		}
		if !claimed {
			return "", domain.ErrInvalidOrExpiredCode
		}
	}

	if u.attempts != nil {
		if err := u.attempts.Reset(ctx, user.ID); err != nil {
			u.logger.WarnContext(ctx, "reset failed attempts", "user_id", user.ID, "error", err)
		}
	}

	token, sess, err := u.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return "", err
	}

	if err := u.users.RecordLogin(ctx, user.ID, sess.CreatedAt); err != nil {
		u.logger.WarnContext(ctx, "record login", "user_id", user.ID, "error", err)
	}

	u.logger.InfoContext(ctx, "otp verified", "user_id", user.ID)
	return token, nil
}

// CurrentUser resolves a session token to its session and owner.
func (u *AuthUsecase) CurrentUser(ctx context.Context, token string) (*domain.Session, *domain.User, error) {
	sess, err := u.sessions.Authenticate(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	user, err := u.users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	return sess, user, nil
}

func (u *AuthUsecase) Logout(ctx context.Context, token string) error {
	return u.sessions.Revoke(ctx, token)
}

func (u *AuthUsecase) admit(emailAddr string) (string, error) {
	addr, err := domain.NormalizeEmail(emailAddr)
	if err != nil {
		return "", err
	}
	if !u.cfg.Matcher.Admit(addr) {
		return "", domain.ErrDomainNotAllowed
	}
	return addr, nil
}

// nextCodeIn is the time left until the step after now begins.
func (u *AuthUsecase) nextCodeIn(now time.Time) time.Duration {
	step := u.cfg.Engine.Step()
	return step - time.Duration(now.UnixNano())%step
}

func (u *AuthUsecase) secretFor(userID string) otpcode.Secret {
	return otpcode.DeriveSecret(u.cfg.Secret, userID)
}

// outcome maps an error onto a low-cardinality metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, domain.ErrDomainNotAllowed):
		return "domain_not_allowed"
	case errors.Is(err, domain.ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, domain.ErrDeliveryFailed):
		return "delivery_failed"
	case errors.Is(err, domain.ErrInvalidOrExpiredCode):
		return "invalid_code"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, domain.ErrSessionCreationFailed):
		return "session_failed"
	default:
		return "error"
	}
}
