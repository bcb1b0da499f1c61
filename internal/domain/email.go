package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// NormalizeEmail trims and lower-cases addr and checks that it is a
// structurally valid local@domain address.
func NormalizeEmail(addr string) (string, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" || strings.Count(addr, "@") != 1 {
		return "", ErrInvalidEmail
	}
	if err := validate.Var(addr, "email"); err != nil {
		return "", ErrInvalidEmail
	}
	return addr, nil
}

// EmailDomain returns the part after the last '@', or "" if there is none.
func EmailDomain(addr string) string {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 || i == len(addr)-1 {
		return ""
	}
	return addr[i+1:]
}
