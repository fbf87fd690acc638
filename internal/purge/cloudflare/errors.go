package cloudflare

import (
	"fmt"
	"strings"
)

// ErrKind classifies API failures so callers can distinguish "try again
// later" from "fix configuration".
type ErrKind string

const (
	// ErrKindConfiguration covers missing/invalid credential or zone setup
	ErrKindConfiguration ErrKind = "configuration"
	// ErrKindValidation covers requests rejected before or by the API for
	// malformed input (empty URL set, batch over ceiling, URL outside zone)
	ErrKindValidation ErrKind = "validation"
	// ErrKindTransient covers network errors, 5xx and 429 responses
	ErrKindTransient ErrKind = "transient"
	// ErrKindDeliveryFailed is a transient failure that exhausted retries
	ErrKindDeliveryFailed ErrKind = "delivery_failed"
	// ErrKindAuth covers 401/403 responses; never retried
	ErrKindAuth ErrKind = "auth"
	// ErrKindCapabilityUnavailable covers operations the account plan does
	// not support, such as purge-by-tag outside Enterprise
	ErrKindCapabilityUnavailable ErrKind = "capability_unavailable"
)

// Retryable reports whether a failure of this kind may succeed on retry
func (k ErrKind) Retryable() bool {
	return k == ErrKindTransient
}

// APIMessage is one error or informational message in the API envelope
type APIMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError is a classified Cloudflare API failure
type APIError struct {
	Kind       ErrKind
	StatusCode int
	Errors     []APIMessage
	Err        error
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		msgs := make([]string, 0, len(e.Errors))
		for _, m := range e.Errors {
			msgs = append(msgs, fmt.Sprintf("%d: %s", m.Code, m.Message))
		}
		return fmt.Sprintf("cloudflare API error (%s, status %d): %s",
			e.Kind, e.StatusCode, strings.Join(msgs, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("cloudflare API error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("cloudflare API error (%s, status %d)", e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Cloudflare error codes mapped to the internal taxonomy. The API reports
// these in the response envelope alongside the HTTP status.
const (
	cfCodeAuthenticationError = 10000
	cfCodeInvalidToken        = 9109
	cfCodeTagPurgeUnavailable = 1107
	cfCodeRateLimited         = 971
)

// classifyStatus maps an HTTP status and envelope errors to an ErrKind
func classifyStatus(statusCode int, apiErrors []APIMessage) ErrKind {
	for _, m := range apiErrors {
		switch m.Code {
		case cfCodeAuthenticationError, cfCodeInvalidToken:
			return ErrKindAuth
		case cfCodeTagPurgeUnavailable:
			return ErrKindCapabilityUnavailable
		case cfCodeRateLimited:
			return ErrKindTransient
		}
	}

	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrKindAuth
	case statusCode == 429:
		return ErrKindTransient
	case statusCode >= 500:
		return ErrKindTransient
	case statusCode >= 400:
		return ErrKindValidation
	default:
		// 2xx with success=false and no recognized code
		return ErrKindValidation
	}
}

// validationError builds a local validation failure (no network call made)
func validationError(format string, args ...interface{}) *APIError {
	return &APIError{
		Kind: ErrKindValidation,
		Err:  fmt.Errorf(format, args...),
	}
}

// configurationError builds a configuration failure
func configurationError(format string, args ...interface{}) *APIError {
	return &APIError{
		Kind: ErrKindConfiguration,
		Err:  fmt.Errorf(format, args...),
	}
}
