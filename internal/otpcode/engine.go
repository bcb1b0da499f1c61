// Package otpcode derives and checks time-bucketed one-time codes.
//
// A code is the HOTP value of a per-user secret with the counter set to the
// current time bucket. Verification accepts the current bucket and the one
// before it, never a later one.
package otpcode

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

const (
	Digits = 6

	// StepsBefore and StepsAfter describe the accepted window around the
	// verifier's current bucket.
	StepsBefore = 1
	StepsAfter  = 0
)

var ErrBeforeEpoch = errors.New("time is before the unix epoch")

type Engine struct {
	step time.Duration
	opts hotp.ValidateOpts
}

// NewEngine builds an engine for codes valid for validity. The bucket width
// is half the validity, so a code is accepted for between one and two steps
// after it was generated.
func NewEngine(validity time.Duration) (*Engine, error) {
	step := validity / 2
	if step <= 0 {
		return nil, fmt.Errorf("otp validity %s is too short", validity)
	}
	return &Engine{
		step: step,
		opts: hotp.ValidateOpts{
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
	}, nil
}

func (e *Engine) Step() time.Duration { return e.step }

// Validity is the nominal lifetime of a code, i.e. the width of the window.
func (e *Engine) Validity() time.Duration { return e.step * (StepsBefore + StepsAfter + 1) }

// Bucket returns floor(now / step).
func (e *Engine) Bucket(now time.Time) (uint64, error) {
	ns := now.UnixNano()
	if ns < 0 {
		return 0, ErrBeforeEpoch
	}
	return uint64(ns / int64(e.step)), nil
}

// Generate returns the code for the bucket containing now. Calls within the
// same bucket return the same code.
func (e *Engine) Generate(secret Secret, now time.Time) (string, error) {
	bucket, err := e.Bucket(now)
	if err != nil {
		return "", err
	}
	return e.codeAt(secret, bucket)
}

// Match checks code against the current and the previous bucket and reports
// which bucket it belongs to. Both candidates are always computed and compared
// in constant time.
func (e *Engine) Match(secret Secret, now time.Time, code string) (uint64, bool) {
	current, err := e.Bucket(now)
	if err != nil {
		return 0, false
	}

	var (
		matched uint64
		hit     int
	)
	// Oldest first, so a (vanishingly unlikely) double hit reports the newer bucket.
	for back := StepsBefore; back >= 0; back-- {
		if uint64(back) > current {
			continue
		}
		b := current - uint64(back)
		want, err := e.codeAt(secret, b)
		if err == nil && subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			matched, hit = b, 1
		}
	}
	return matched, hit == 1
}

// Verify reports whether code is acceptable at now.
func (e *Engine) Verify(secret Secret, now time.Time, code string) bool {
	_, ok := e.Match(secret, now, code)
	return ok
}

func (e *Engine) codeAt(secret Secret, bucket uint64) (string, error) {
	code, err := hotp.GenerateCodeCustom(secret.encoded(), bucket, e.opts)
	if err != nil {
		return "", fmt.Errorf("generate hotp: %w", err)
	}
	return code, nil
}
