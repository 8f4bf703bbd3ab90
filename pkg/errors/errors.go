package errors

import (
	"errors"
	"fmt"
)

// Error codes for the failure kinds a Trestle request can hit.
const (
	CodeConfiguration = "CONFIGURATION"
	CodeTransport     = "TRANSPORT"
	CodeResponseParse = "RESPONSE_PARSE"
)

var (
	// ErrConfiguration indicates a required literal or field value was missing or empty
	ErrConfiguration = errors.New("configuration error")

	// ErrTransport indicates a network failure or a non-2xx response from the remote API
	ErrTransport = errors.New("transport error")

	// ErrResponseParse indicates the remote API returned a body that is not valid JSON
	ErrResponseParse = errors.New("response parse error")
)

var codeSentinels = map[string]error{
	CodeConfiguration: ErrConfiguration,
	CodeTransport:     ErrTransport,
	CodeResponseParse: ErrResponseParse,
}

// Error represents a structured SDK error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// StatusCode is the HTTP status returned by the remote API (0 if none)
	StatusCode int

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's code.
func (e *Error) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// NewError creates a new SDK error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewConfigurationError creates an error for a missing or invalid parameter.
func NewConfigurationError(format string, args ...interface{}) *Error {
	return NewError(CodeConfiguration, fmt.Sprintf(format, args...), nil)
}

// NewTransportError creates an error for a failed round trip. statusCode is 0 for
// network failures.
func NewTransportError(statusCode int, message string, err error) *Error {
	e := NewError(CodeTransport, message, err)
	e.StatusCode = statusCode
	return e
}

// NewResponseParseError creates an error for an undecodable response body.
func NewResponseParseError(err error) *Error {
	return NewError(CodeResponseParse, "failed to parse response body as JSON", err)
}

// Message returns the human-readable message of err. For SDK errors this is the
// Message field without the code prefix; otherwise it is err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		if sdkErr.Err != nil && sdkErr.Code != CodeConfiguration {
			return fmt.Sprintf("%s: %v", sdkErr.Message, sdkErr.Err)
		}
		return sdkErr.Message
	}
	return err.Error()
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsTransport checks if an error is a transport error
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsResponseParse checks if an error is a response parse error
func IsResponseParse(err error) bool {
	return errors.Is(err, ErrResponseParse)
}
