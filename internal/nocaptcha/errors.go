package nocaptcha

import "fmt"

// APIError is returned when the service answers with an unexpected HTTP status.
type APIError struct {
	Message    string
	StatusCode int
}

func NewAPIError(message string, statusCode int) *APIError {
	return &APIError{
		Message:    message,
		StatusCode: statusCode,
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// ProtocolError is returned when a response cannot be interpreted for the
// request that produced it, e.g. a grid answer without indices.
type ProtocolError struct {
	Message string
}

func NewProtocolError(message string) *ProtocolError {
	return &ProtocolError{
		Message: message,
	}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// TimeoutError is returned when polling for an answer exceeds the poll timeout.
type TimeoutError struct {
	Message  string
	Attempts int
}

func NewTimeoutError(message string, attempts int) *TimeoutError {
	return &TimeoutError{
		Message:  message,
		Attempts: attempts,
	}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %d attempts: %s", e.Attempts, e.Message)
}

// ConnectionError is returned when the service cannot be reached.
type ConnectionError struct {
	Message string
	Cause   error
}

func NewConnectionError(message string, cause error) *ConnectionError {
	return &ConnectionError{
		Message: message,
		Cause:   cause,
	}
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection error: %s", e.Message)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}
