package email_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/email"
)

func TestNewSender_LocalLogsInsteadOfSending(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	sender := email.NewSender("local", "", "", logger)
	if _, ok := sender.(*email.LogSender); !ok {
		t.Fatalf("sender = %T, want *email.LogSender", sender)
	}

	if err := sender.Send(context.Background(), "alice@dept.example.org", "subj", "<p>123456</p>"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "alice@dept.example.org") {
		t.Errorf("log %q does not mention recipient", buf.String())
	}
}

func TestNewSender_NonLocalUsesResend(t *testing.T) {
	sender := email.NewSender("production", "re_test", "noreply@example.org", slog.Default())
	if _, ok := sender.(*email.ResendSender); !ok {
		t.Fatalf("sender = %T, want *email.ResendSender", sender)
	}
}

func TestOTPMessage(t *testing.T) {
	subject, body, err := email.OTPMessage("app.example.org", "042917", 5*time.Minute, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "One-Time Password (OTP) for app.example.org" {
		t.Errorf("subject = %q", subject)
	}
	for _, want := range []string{"042917", "5 minutes", "app.example.org", "request a new one."} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q does not contain %q", body, want)
		}
	}
	if strings.Contains(body, "only once") {
		t.Errorf("body %q claims single use", body)
	}
}

func TestOTPMessage_SingleUseTellsWhenANewCodeIsIssued(t *testing.T) {
	_, body, err := email.OTPMessage("h", "000000", 5*time.Minute, 61*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"can be used only once", "request a new one in 2 minutes."} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q does not contain %q", body, want)
		}
	}
}

func TestOTPMessage_EscapesHost(t *testing.T) {
	_, body, err := email.OTPMessage(`<script>x</script>`, "000000", time.Minute, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(body, "<script>") {
		t.Errorf("host was not escaped: %q", body)
	}
}

func TestOTPMessage_ShortValidityRoundsUpToOneMinute(t *testing.T) {
	_, body, err := email.OTPMessage("h", "000000", 20*time.Second, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "1 minute.") {
		t.Errorf("body %q", body)
	}
}
