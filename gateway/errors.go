package gateway

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by this package matches exactly one of
// them through errors.Is.
var (
	ErrConfiguration   = errors.New("gateway configuration error")
	ErrInvalidResponse = errors.New("invalid gateway response")
	ErrVerification    = errors.New("gateway response verification failed")
	ErrDeclined        = errors.New("payment declined")
)

// ConfigError reports a missing credential or malformed request field. It is
// raised before any network call.
type ConfigError struct {
	Field   string
	Message string
}

func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %s", e.Message)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// TransportError covers network failures, unexpected status codes, empty
// bodies and unparsable replies.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func NewTransportError(statusCode int, message string, err error) *TransportError {
	return &TransportError{StatusCode: statusCode, Message: message, Err: err}
}

func (e *TransportError) Error() string {
	text := e.Message
	if e.StatusCode > 0 {
		text = fmt.Sprintf("%s (http %d)", text, e.StatusCode)
	}
	if e.Err != nil {
		text = fmt.Sprintf("%s: %v", text, e.Err)
	}
	return "transport: " + text
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrInvalidResponse
}

// VerificationError means the response signature is missing or does not
// match the SHA-OUT signature.
type VerificationError struct {
	OrderId string
	PayId   string
	Message string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification: order %s, payid %s: %s", e.OrderId, e.PayId, e.Message)
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrVerification
}

// DeclineError is a verified response whose status is outside the success
// set of the operation.
type DeclineError struct {
	Status    string
	ErrorCode string
	Message   string
}

func (e *DeclineError) Error() string {
	if e.Status == "" && e.ErrorCode == "" {
		return "declined: " + e.Message
	}
	text := fmt.Sprintf("declined: status %s, ncerror %s", e.Status, e.ErrorCode)
	if e.Message != "" {
		text = fmt.Sprintf("%s: %s", text, e.Message)
	}
	return text
}

func (e *DeclineError) Is(target error) bool {
	return target == ErrDeclined
}
