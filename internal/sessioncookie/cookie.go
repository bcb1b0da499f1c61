// Package sessioncookie carries a session token to the browser inside an
// HS256-signed JWT so a tampered or foreign cookie is rejected before any
// storage lookup.
package sessioncookie

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidCookie = errors.New("invalid session cookie")

type claims struct {
	SessionToken string `json:"sid"`
	jwt.RegisteredClaims
}

type Options struct {
	Name   string
	Secret []byte
	// Secure marks the cookie for HTTPS only.
	Secure bool
}

type Codec struct {
	name   string
	key    []byte
	secure bool
	now    func() time.Time
}

func NewCodec(opts Options) (*Codec, error) {
	if opts.Name == "" {
		return nil, errors.New("cookie name is required")
	}
	if len(opts.Secret) < 32 {
		return nil, errors.New("cookie secret must be at least 32 bytes")
	}
	return &Codec{
		name:   opts.Name,
		key:    opts.Secret,
		secure: opts.Secure,
		now:    time.Now,
	}, nil
}

// WithClock overrides the internal clock, used in tests.
func (c *Codec) WithClock(clock func() time.Time) {
	if clock != nil {
		c.now = clock
	}
}

func (c *Codec) Name() string { return c.name }

func (c *Codec) Encode(token string, expiresAt time.Time) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionToken: token,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(c.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry and returns the session token.
func (c *Codec) Decode(raw string) (string, error) {
	var cl claims
	tok, err := jwt.ParseWithClaims(raw, &cl, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !tok.Valid || cl.SessionToken == "" {
		return "", ErrInvalidCookie
	}
	return cl.SessionToken, nil
}

// Cookie builds the Set-Cookie value for a live session.
func (c *Codec) Cookie(token string, expiresAt time.Time) (*http.Cookie, error) {
	value, err := c.Encode(token, expiresAt)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt.UTC(),
		MaxAge:   max(int(expiresAt.Sub(c.now()).Seconds()), 1),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}, nil
}

// Expired builds a cookie that makes the browser drop the session.
func (c *Codec) Expired() *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
