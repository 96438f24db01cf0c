package protocol

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrTruncatedInput means the stream ended before a field was complete.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrInvalidEncoding means text could not be decoded (bad UTF-16).
	ErrInvalidEncoding = errors.New("invalid encoding")

	// ErrInvalidLength means a length prefix was negative or too large.
	ErrInvalidLength = errors.New("invalid length")

	// ErrIO wraps socket-level failures such as timeouts and resets.
	ErrIO = errors.New("i/o failure")
)

// wrapReadErr classifies an error from the underlying reader. EOF
// conditions become ErrTruncatedInput, everything else ErrIO. The
// original error stays in the chain so callers can still match io.EOF
// or a net.Error timeout.
func wrapReadErr(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("failed to read %s: %w: %w", field, ErrTruncatedInput, err)
	}
	return fmt.Errorf("failed to read %s: %w: %w", field, ErrIO, err)
}
