package ado

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TransportError wraps a failure that happened before any HTTP status was
// received: dial, TLS, timeout, or a body read cut short. These are always
// safe to retry.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is a non-success status from the service. TypeKey and Message
// come from the ADO error body when one was present; RetryAfter is the
// parsed Retry-After header, zero when the service sent none.
type RemoteError struct {
	StatusCode int
	Method     string
	URL        string
	TypeKey    string
	Message    string
	RetryAfter time.Duration
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// Retryable reports whether err is worth retrying: any transport failure,
// a 429, or a 5xx. Auth and validation failures are not retryable.
func Retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode == 429 || re.StatusCode >= 500
	}
	return false
}

// IsRateLimited reports whether err is a 429 from the service.
func IsRateLimited(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == 429
}

// IsAuth reports whether err indicates a rejected or expired credential.
// ADO answers a bad PAT with 401, 403, or a 203 redirect to the sign-in
// page, depending on the endpoint.
func IsAuth(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	switch re.StatusCode {
	case 203, 401, 403:
		return true
	}
	return false
}

// IsNotFound reports whether err is a 404 for the addressed resource.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == 404
}

// IsValidation reports whether err is the service rejecting a write, which
// ADO signals with a 400 and a RuleValidationException type key.
func IsValidation(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == 400
}

// IsDuplicateLink reports whether err is the service refusing a relation
// that is already present on the item.
func IsDuplicateLink(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	if re.StatusCode != 400 {
		return false
	}
	msg := strings.ToLower(re.Message)
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate")
}

// retryAfter extracts the server-advised delay from err, zero if none.
func retryAfter(err error) time.Duration {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}
