package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidDate        = errors.New("invalid date")
	ErrMissingField       = errors.New("missing required field")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordTooLong    = errors.New("password is longer than 72 bytes")
)

// RejectedFileError reports an upload that was skipped. It never aborts a batch.
type RejectedFileError struct {
	Filename string
	Reason   string
}

func (e *RejectedFileError) Error() string {
	return fmt.Sprintf("rejected %q: %s", e.Filename, e.Reason)
}
