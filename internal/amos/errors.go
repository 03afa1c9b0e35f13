package amos

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials means the cloud rejected the username/password.
	// This is fatal and must not be retried.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrMissingCredentials means no username/password is configured for the
	// session, so a refresh can never succeed. Fatal configuration error.
	ErrMissingCredentials = errors.New("no amos credentials configured")

	// ErrUIDNotFound means the login response cookies carried no uid field.
	ErrUIDNotFound = errors.New("uid not found in login cookies")

	// ErrNoDevices means the account's device list is empty.
	ErrNoDevices = errors.New("no devices found for account")

	// ErrNoTimers means the device returned an empty timer list, so an
	// intensity update has nothing to modify.
	ErrNoTimers = errors.New("no timers found for device")

	// ErrAuthExhausted means a call hit a second consecutive authentication
	// failure after a session refresh. Fatal for that call.
	ErrAuthExhausted = errors.New("authentication failed after session refresh")
)

// HTTPError is a transport-level non-200 response from the cloud.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("amos API returned HTTP %d", e.Status)
}

// APIStatusError is a device-side business error: the envelope parsed fine
// but its status field was neither success nor an authentication failure.
type APIStatusError struct {
	Status string
	Body   string
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("amos API returned status %q: %s", e.Status, e.Body)
}

// InvalidResponseError means the response body was not JSON. Prefix carries
// the first few bytes for diagnostics.
type InvalidResponseError struct {
	Prefix string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("amos API returned malformed body: %q", e.Prefix)
}

// bodyPrefix truncates a response body for error reporting.
func bodyPrefix(body []byte) string {
	const max = 50
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
