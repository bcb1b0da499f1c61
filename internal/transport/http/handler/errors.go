package handler

const (
	errAuthFailed     = "Authentication failed"
	errInvalidBody    = "Invalid request body"
	errInternalServer = "Internal server error"

	msgOTPSent  = "If the address is eligible, an OTP has been sent to it."
	msgVerified = "Logged in."
	msgLogout   = "Logged out."
)
