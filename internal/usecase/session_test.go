package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/usecase"
)

func newIssuer(t *testing.T) (*usecase.SessionIssuer, *fakeSessionRepo, *clock) {
	t.Helper()
	repo := newFakeSessionRepo()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	issuer := usecase.NewSessionIssuer(repo, time.Hour)
	issuer.WithClock(c.Now)
	return issuer, repo, c
}

func TestCreateSession_TokensAreUnique(t *testing.T) {
	issuer, repo, _ := newIssuer(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for range 50 {
		token, sess, err := issuer.CreateSession(ctx, "user-1")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
		if sess.UserID != "user-1" {
			t.Errorf("owner = %q", sess.UserID)
		}
	}
	if repo.count() != 50 {
		t.Errorf("sessions = %d, want 50", repo.count())
	}
}

func TestCreateSession_CollisionIsNotRetried(t *testing.T) {
	issuer, repo, _ := newIssuer(t)
	ctx := context.Background()

	// A constant entropy source yields the same token twice.
	issuer.WithRandom(bytes.NewReader(make([]byte, 64)))

	if _, _, err := issuer.CreateSession(ctx, "user-1"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, _, err := issuer.CreateSession(ctx, "user-2")
	if !errors.Is(err, domain.ErrSessionCreationFailed) {
		t.Fatalf("want ErrSessionCreationFailed, got %v", err)
	}
	if repo.count() != 1 {
		t.Errorf("sessions = %d, want 1", repo.count())
	}
}

func TestCreateSession_EntropyFailure(t *testing.T) {
	issuer, _, _ := newIssuer(t)
	issuer.WithRandom(bytes.NewReader(nil))

	_, _, err := issuer.CreateSession(context.Background(), "user-1")
	if !errors.Is(err, domain.ErrSessionCreationFailed) {
		t.Errorf("want ErrSessionCreationFailed, got %v", err)
	}
}

func TestAuthenticate_SlidesExpiry(t *testing.T) {
	issuer, _, c := newIssuer(t)
	ctx := context.Background()

	token, _, err := issuer.CreateSession(ctx, "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	c.Advance(50 * time.Minute)
	sess, err := issuer.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if want := c.Now().UTC().Add(time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %s, want %s", sess.ExpiresAt, want)
	}

	// Still live 50 minutes later because the previous touch moved expiry.
	c.Advance(50 * time.Minute)
	if _, err := issuer.Authenticate(ctx, token); err != nil {
		t.Errorf("authenticate after slide: %v", err)
	}
}

func TestAuthenticate_Expired(t *testing.T) {
	issuer, _, c := newIssuer(t)
	ctx := context.Background()

	token, _, err := issuer.CreateSession(ctx, "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	c.Advance(time.Hour)
	if _, err := issuer.Authenticate(ctx, token); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("want ErrSessionNotFound, got %v", err)
	}
}

func TestAuthenticate_UnknownOrEmptyToken(t *testing.T) {
	issuer, _, _ := newIssuer(t)

	for _, token := range []string{"", "not-a-real-token"} {
		if _, err := issuer.Authenticate(context.Background(), token); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("Authenticate(%q) = %v, want ErrSessionNotFound", token, err)
		}
	}
}

func TestRevoke_UnknownTokenIsNotAnError(t *testing.T) {
	issuer, _, _ := newIssuer(t)

	if err := issuer.Revoke(context.Background(), "missing"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
