package api

import (
	"encoding/json"
	"fmt"
)

// Error codes produced at the client boundary.
const (
	CodeAPI          = "API_ERROR"
	CodeNetwork      = "NETWORK_ERROR"
	CodeUnrecognized = "UNRECOGNIZED_RESPONSE"
)

// Error describes a failed API call.
type Error struct {
	Status  int // HTTP status; zero for transport failures and enveloped errors
	Code    string
	Message string
	Details json.RawMessage
	Err     error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
