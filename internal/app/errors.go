package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidExceptionMode = errors.New("invalid exception update mode")
	ErrNotExceptionLayer    = errors.New("layer is not an exception layer")
	ErrInvalidDocument      = errors.New("invalid calendar document")
)
