package core

import (
	"github.com/cockroachdb/errors"
)

// Failure kinds of the frame synchronization layer. Device failures are marked
// with one of these so errors.Is works while the native message is preserved.
var (
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrInvalidState      = errors.New("invalid state")
	ErrTimedOut          = errors.New("timed out")
	ErrSurfaceOutOfDate  = errors.New("surface out of date")
	ErrOutOfBounds       = errors.New("out of bounds")
	ErrDeviceLost        = errors.New("device lost")
)
