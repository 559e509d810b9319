package session

import (
	"fmt"
	"regexp"
)

// CredentialError indicates the credential service call failed or returned an
// unusable response. Not retried automatically; the connection attempt is
// aborted.
type CredentialError struct {
	Cause error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential service: %v", e.Cause)
}

func (e *CredentialError) Unwrap() error { return e.Cause }

// ConnectionError indicates the streaming channel failed to open or closed
// unexpectedly. Full teardown is executed; reconnecting is an explicit caller
// action.
type ConnectionError struct {
	Reason string
	Cause  error
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("live connection: %v", e.Cause)
	}
	return fmt.Sprintf("live connection: %s", e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// DeviceError indicates microphone acquisition failed (permission denied,
// device busy). The session stays connected and usable for text.
type DeviceError struct {
	Cause error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture device: %v", e.Cause)
}

func (e *DeviceError) Unwrap() error { return e.Cause }

var (
	// Credential material that must never reach a user-facing or logged
	// surface: key-bearing query parameters and API-key-shaped substrings.
	credentialParamPattern = regexp.MustCompile(`(?i)([?&](?:key|token|access_token|api_key)=)[^&\s"']+`)
	apiKeyPattern          = regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`)
	bearerPattern          = regexp.MustCompile(`(?i)\bbearer\s+[0-9A-Za-z._\-]+`)
)

// scrub removes credential-shaped material from provider error text before it
// is exposed through the error slot or the transcript.
func scrub(msg string) string {
	msg = credentialParamPattern.ReplaceAllString(msg, "${1}[redacted]")
	msg = apiKeyPattern.ReplaceAllString(msg, "[redacted]")
	msg = bearerPattern.ReplaceAllString(msg, "bearer [redacted]")
	return msg
}
