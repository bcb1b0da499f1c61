package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/repository"
)

const sessionTokenBytes = 32

// SessionIssuer creates and resolves login sessions. Tokens are random,
// returned once to the caller, and stored only as their SHA-256.
type SessionIssuer struct {
	sessions repository.SessionRepository
	maxAge   time.Duration
	now      func() time.Time
	random   io.Reader
}

func NewSessionIssuer(sessions repository.SessionRepository, maxAge time.Duration) *SessionIssuer {
	return &SessionIssuer{
		sessions: sessions,
		maxAge:   maxAge,
		now:      time.Now,
		random:   rand.Reader,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *SessionIssuer) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithRandom overrides the token entropy source, used in tests.
func (s *SessionIssuer) WithRandom(r io.Reader) {
	if r != nil {
		s.random = r
	}
}

func (s *SessionIssuer) MaxAge() time.Duration { return s.maxAge }

// CreateSession persists a new session for userID and returns its token.
// A token collision is not retried: it means the random source is broken.
func (s *SessionIssuer) CreateSession(ctx context.Context, userID string) (string, *domain.Session, error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := io.ReadFull(s.random, raw); err != nil {
		metrics.SessionCreationFailuresTotal.Inc()
		return "", nil, fmt.Errorf("%w: generate token: %w", domain.ErrSessionCreationFailed, err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := s.now().UTC()
	sess := &domain.Session{
		TokenHash: hashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.maxAge),
		TouchedAt: now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		metrics.SessionCreationFailuresTotal.Inc()
		if errors.Is(err, domain.ErrSessionExists) {
			return "", nil, fmt.Errorf("%w: token collision", domain.ErrSessionCreationFailed)
		}
		return "", nil, fmt.Errorf("%w: %w", domain.ErrSessionCreationFailed, err)
	}

	metrics.SessionsCreatedTotal.Inc()
	return token, sess, nil
}

// Authenticate resolves token to a live session and touches it, sliding its
// expiry forward by the configured max age.
func (s *SessionIssuer) Authenticate(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrSessionNotFound
	}
	hash := hashToken(token)

	sess, err := s.sessions.Get(ctx, hash)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if sess.Expired(now) {
		return nil, domain.ErrSessionNotFound
	}

	expiresAt := now.Add(s.maxAge)
	if err := s.sessions.Touch(ctx, hash, now, expiresAt); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	sess.TouchedAt = now
	sess.ExpiresAt = expiresAt
	return sess, nil
}

// Revoke deletes the session behind token. Unknown tokens are not an error.
func (s *SessionIssuer) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, hashToken(token)); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func hashToken(token string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(token)))
}
