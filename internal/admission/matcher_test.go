package admission_test

import (
	"testing"

	"github.com/ErlanBelekov/otp-auth/internal/admission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_RejectsUnsupportedSyntax(t *testing.T) {
	for _, p := range []string{
		"",
		"*",
		"*.*.example.org",
		"dept.*.org",
		"*example.org",
		"{a,b}.example.org",
		"!example.org",
		"[ab].example.org",
		"user@example.org",
		"*.example..org",
	} {
		_, err := admission.Compile(p)
		assert.ErrorIs(t, err, admission.ErrInvalidPattern, "pattern %q", p)
	}
}

func TestAdmit_Wildcard(t *testing.T) {
	m := admission.MustCompile("*.example.org")

	admitted := []string{
		"alice@dept.example.org",
		"alice@a.b.example.org",
		"ALICE@DEPT.EXAMPLE.ORG",
		"bob@Team.Example.Org",
	}
	for _, e := range admitted {
		assert.True(t, m.Admit(e), "expected %q to be admitted", e)
	}

	rejected := []string{
		"bob@other.com",
		"bob@example.org",
		"bob@evilexample.org",
		"bob@dept.example.org.evil.com",
		"bob@.example.org",
		"bob@dept..example.org",
		"bob@dept.example.org.",
		"bob@dept_x.example.org",
		"no-at-sign",
		"bob@",
		"",
	}
	for _, e := range rejected {
		assert.False(t, m.Admit(e), "expected %q to be rejected", e)
	}
}

func TestAdmit_Literal(t *testing.T) {
	m, err := admission.Compile("Example.org")
	require.NoError(t, err)

	assert.True(t, m.Admit("alice@example.org"))
	assert.True(t, m.Admit("alice@EXAMPLE.ORG"))
	assert.False(t, m.Admit("alice@dept.example.org"))
	assert.False(t, m.Admit("alice@example.org.au"))
}

func TestAdmit_UsesLastAtSign(t *testing.T) {
	m := admission.MustCompile("*.example.org")

	assert.False(t, m.Admit("x@dept.example.org@other.com"))
	assert.True(t, m.Admit("x@other.com@dept.example.org"))
}

func TestString(t *testing.T) {
	assert.Equal(t, "*.gov.sg", admission.MustCompile(" *.gov.sg ").String())
}
