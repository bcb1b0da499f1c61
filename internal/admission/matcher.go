// Package admission decides which email domains may request a login code.
package admission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"golang.org/x/net/idna"
)

var ErrInvalidPattern = errors.New("invalid domain pattern")

// DomainMatcher holds a compiled domain pattern. The pattern language is
// either a literal domain ("example.org") or a single leading wildcard label
// ("*.example.org"). The wildcard spans one or more non-empty labels.
type DomainMatcher struct {
	pattern  string
	suffix   string // ".example.org" when wildcard, otherwise the literal domain
	wildcard bool
}

// Compile parses pattern once at startup.
func Compile(pattern string) (*DomainMatcher, error) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}

	wildcard := strings.HasPrefix(p, "*.")
	rest := p
	if wildcard {
		rest = p[2:]
	}
	if strings.ContainsAny(rest, "*?[]{}!@") {
		return nil, fmt.Errorf("%w: %q: only a leading \"*.\" wildcard is supported", ErrInvalidPattern, pattern)
	}

	base, ok := canonicalDomain(rest)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a valid domain", ErrInvalidPattern, pattern)
	}

	m := &DomainMatcher{pattern: p, suffix: base, wildcard: wildcard}
	if wildcard {
		m.suffix = "." + base
	}
	return m, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// hard-coded patterns.
func MustCompile(pattern string) *DomainMatcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Admit reports whether email is eligible to receive a code. Malformed
// addresses are simply not admitted.
func (m *DomainMatcher) Admit(email string) bool {
	host, ok := canonicalDomain(domain.EmailDomain(email))
	if !ok {
		return false
	}
	if !m.wildcard {
		return host == m.suffix
	}
	// The suffix starts with '.', so a bare "example.org" or "evilexample.org"
	// can never satisfy this; canonicalDomain already rejected empty labels.
	return len(host) > len(m.suffix) && strings.HasSuffix(host, m.suffix)
}

func (m *DomainMatcher) String() string { return m.pattern }

// canonicalDomain folds case, converts IDNs to their ASCII form and rejects
// empty or invalid labels.
func canonicalDomain(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", false
	}
	ascii = strings.ToLower(ascii)
	for _, label := range strings.Split(ascii, ".") {
		if label == "" || !isLDH(label) {
			return "", false
		}
	}
	return ascii, true
}

func isLDH(label string) bool {
	for i := 0; i < len(label); i++ {
		c := label[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}
