// Package apierr carries an HTTP status and a stable machine code
// alongside the underlying error, so services decide how their
// failures surface and handlers stay dumb. Codes are SCREAMING_SNAKE
// and part of the API contract: clients match on ACTION_NOT_FOUND or
// INVALID_MATERIAL, never on message text.
package apierr

import (
	"errors"
	"fmt"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// From extracts the *Error anywhere in err's chain, so wrapped repo
// and service errors keep their status when they reach a handler.
func From(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
