package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var otpBody = template.Must(template.New("otp").Parse(
	`<p>Your OTP is <b>{{.Code}}</b>. It will expire in {{.Minutes}} {{if eq .Minutes 1}}minute{{else}}minutes{{end}}.</p>` +
		`<p>Please use this to login to your account at {{.Host}}.</p>` +
		`{{if .RenewMinutes}}` +
		`<p>Each OTP can be used only once. If yours does not work, please request a new one in {{.RenewMinutes}} {{if eq .RenewMinutes 1}}minute{{else}}minutes{{end}}.</p>` +
		`{{else}}` +
		`<p>If your OTP does not work, please request a new one.</p>` +
		`{{end}}`,
))

// OTPMessage renders the subject and HTML body of a login code email. The
// body carries only the code and expiry hints. A positive renewIn means codes
// are single use and a different code is issued only after that delay.
func OTPMessage(appHost, code string, validity, renewIn time.Duration) (subject, body string, err error) {
	var buf bytes.Buffer
	err = otpBody.Execute(&buf, struct {
		Code         string
		Minutes      int
		RenewMinutes int
		Host         string
	}{
		Code:         code,
		Minutes:      max(int(validity/time.Minute), 1),
		RenewMinutes: ceilMinutes(renewIn),
		Host:         appHost,
	})
	if err != nil {
		return "", "", fmt.Errorf("render otp email: %w", err)
	}
	return fmt.Sprintf("One-Time Password (OTP) for %s", appHost), buf.String(), nil
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
