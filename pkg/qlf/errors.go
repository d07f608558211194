package qlf

import "errors"

var (
	ErrInvalidMagic     = errors.New("invalid QLF magic")
	ErrUnsupportedMajor = errors.New("unsupported QLF major version")
	ErrCorruptFile      = errors.New("corrupt QLF file")
	ErrMissingSection   = errors.New("missing QLF section")
)
