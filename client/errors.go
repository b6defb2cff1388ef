package client

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	// ErrInvalidConfig marks construction-time configuration failures.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTestFailed is returned by TestRequest when the endpoint answers
	// but does not report success.
	ErrTestFailed = errors.New("test request did not report success")
)

// ErrorPayload is the wire shape the API family uses for failed calls.
type ErrorPayload struct {
	Error       bool   `json:"error"`
	Description string `json:"error_description"`
	Code        int    `json:"error_code"`
}

// APIError is the uniform runtime failure for request methods: auth grant
// failures, transport errors, and non-2xx responses all surface as one.
// Code holds the HTTP status when one was received, 0 otherwise.
type APIError struct {
	Code        int
	Description string
	cause       error
}

func (e *APIError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("request failed: %s", e.Description)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Payload converts the error into the API family's JSON error shape.
func (e *APIError) Payload() ErrorPayload {
	return ErrorPayload{
		Error:       true,
		Description: e.Description,
		Code:        e.Code,
	}
}

func (e *APIError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Payload())
}

func newAPIError(code int, description string, cause error) *APIError {
	return &APIError{Code: code, Description: description, cause: cause}
}
