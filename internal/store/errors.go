package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/five82/vapor-console/internal/api"
)

// Error codes set by Collection operations.
const (
	CodeFetch      = "FETCH_ERROR"
	CodeCreate     = "CREATE_ERROR"
	CodeRead       = "READ_ERROR"
	CodeUpdate     = "UPDATE_ERROR"
	CodeDelete     = "DELETE_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

var now = time.Now

// StoreError is the failure recorded in a collection's error slot.
type StoreError struct {
	Code      string
	Message   string
	Timestamp time.Time
	Err       error
}

// NewError returns a StoreError stamped with the current time.
func NewError(code, message string) *StoreError {
	return &StoreError{Code: code, Message: message, Timestamp: now()}
}

// Error implements error.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// AsStoreError returns err as a *StoreError when it is one.
func AsStoreError(err error) (*StoreError, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// fresh copies e with a new timestamp so no instance is shared between failures.
func (e *StoreError) fresh() *StoreError {
	dup := *e
	dup.Timestamp = now()
	return &dup
}

// wrapError converts err into a StoreError carrying code. API error codes
// other than the generic ones are preserved.
func wrapError(code string, err error) *StoreError {
	if se, ok := AsStoreError(err); ok {
		return se.fresh()
	}
	se := &StoreError{Code: code, Message: err.Error(), Timestamp: now(), Err: err}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		se.Message = apiErr.Message
		if apiErr.Code != api.CodeAPI && apiErr.Code != "" {
			se.Code = apiErr.Code
		}
	}
	return se
}
