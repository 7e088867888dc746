package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound       = errors.New("not found")
	ErrGestureActive  = errors.New("gesture already in progress")
	ErrNoGesture      = errors.New("no gesture in progress")
	ErrInvalidGesture = errors.New("invalid gesture event")
	ErrIDExhausted    = errors.New("could not allocate a unique id")
)
