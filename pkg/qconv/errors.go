package qconv

import "errors"

var (
	// ErrSizeMismatch reports a channel count that is not a multiple of the
	// packing factor, or a buffer whose length does not match the geometry.
	ErrSizeMismatch = errors.New("qconv: size mismatch")

	ErrUnsupportedBits     = errors.New("qconv: unsupported bit width")
	ErrMissingQuantization = errors.New("qconv: missing quantization descriptor")
)

// Status is the coarse outcome of a convolution call.
type Status int

const (
	StatusSuccess Status = iota
	StatusSizeMismatch
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusSizeMismatch:
		return "SIZE_MISMATCH"
	default:
		return "INVALID"
	}
}

// StatusOf maps an error returned by this package to a Status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrSizeMismatch):
		return StatusSizeMismatch
	default:
		return StatusInvalid
	}
}
