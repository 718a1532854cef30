// Package errors provides the typed error model shared by every component
// of the explorer: coded application errors plus the transient/permanent
// classification the retry layer depends on.
package errors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	// Subprocess protocol errors.
	CodeProtocol    = "PROTOCOL_ERROR"
	CodeProcessDied = "PROCESS_DIED"

	// Backend errors.
	CodeAuth    = "AUTH_ERROR"
	CodeNetwork = "NETWORK_ERROR"
	CodeParse   = "PARSE_ERROR"
	CodeTimeout = "TIMEOUT"

	// Local errors.
	CodeConfig     = "CONFIG_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeInternal   = "INTERNAL_ERROR"
)

// AppError represents an application error with a code, a human-readable
// message and optional structured details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ProtocolError reports a malformed or unexpected RPC message from the peer.
func ProtocolError(message string, err error) *AppError {
	return Wrap(CodeProtocol, message, err)
}

// ProcessDiedError reports that the tool subprocess has exited or its pipes
// have closed.
func ProcessDiedError(message string) *AppError {
	return New(CodeProcessDied, message)
}

// AuthError reports rejected credentials at a backend.
func AuthError(backend string) *AppError {
	return Newf(CodeAuth, "%s rejected credentials", backend)
}

// NetworkError reports a transport failure talking to a backend.
func NetworkError(message string, err error) *AppError {
	return Wrap(CodeNetwork, message, err)
}

// ParseError reports an unintelligible backend response.
func ParseError(message string, err error) *AppError {
	return Wrap(CodeParse, message, err)
}

// TimeoutError reports that an operation exceeded its deadline.
func TimeoutError(operation string) *AppError {
	message := "operation timed out"
	if operation != "" {
		message = fmt.Sprintf("%s timed out", operation)
	}
	return New(CodeTimeout, message)
}

// ConfigError reports invalid or missing configuration.
func ConfigError(message string) *AppError {
	return New(CodeConfig, message)
}

// ValidationError reports invalid caller input.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// InternalError wraps an unexpected failure.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// Code extracts the code from an error, walking the wrap chain.
// Returns CodeInternal for errors that carry no AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsTransient reports whether err is worth retrying. Network failures,
// timeouts and a dead subprocess can heal on a second attempt; auth, parse
// and configuration failures cannot.
func IsTransient(err error) bool {
	switch Code(err) {
	case CodeNetwork, CodeTimeout, CodeProcessDied:
		return true
	default:
		return false
	}
}
