// Package errs holds the error taxonomy shared by every component.
//
// Validation and NotFound errors are produced deliberately and reach the
// client as 4xx responses. DataAccessError wraps a store or transport failure
// and surfaces as a 500.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds, matched with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
)

// Error is a client-facing error with a message and a kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Validation returns a validation error with the given message.
func Validation(msg string) error { return &Error{Kind: ErrValidation, Msg: msg} }

// NotFound returns a not-found error with the given message.
func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Msg: msg} }

// BadRequest returns a generic client error with the given message.
func BadRequest(msg string) error { return &Error{Kind: ErrBadRequest, Msg: msg} }

// DataAccessError wraps a failure of the session store, the rate table or a
// remote service call. The cause is always kept for diagnostics.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error { return e.Err }

// DataAccess wraps err as a DataAccessError. It returns nil for a nil err and
// leaves client errors and existing DataAccessErrors untouched.
func DataAccess(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	var de *DataAccessError
	if errors.As(err, &de) {
		return err
	}
	return &DataAccessError{Op: op, Err: err}
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError reports whether err should be reported as a 4xx.
func IsClientError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
