package otpcode

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"log/slog"
)

// Secret is a per-user HOTP key. It never leaves the process: String and
// LogValue are redacted.
type Secret struct {
	key []byte
}

// DeriveSecret computes HMAC-SHA256(master, userID). Knowing one user's
// secret says nothing about another's.
func DeriveSecret(master []byte, userID string) Secret {
	mac := hmac.New(sha256.New, master)
	mac.Write([]byte(userID))
	return Secret{key: mac.Sum(nil)}
}

func (s Secret) String() string { return "[REDACTED]" }

func (s Secret) LogValue() slog.Value { return slog.StringValue("[REDACTED]") }

func (s Secret) encoded() string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(s.key)
}
