package codec

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProtocol = errors.New("unknown protocol")
	ErrMalformed       = errors.New("malformed frame")
)

// DecodeError reports a frame that could not be turned into a Position.
type DecodeError struct {
	Protocol string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Protocol, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
