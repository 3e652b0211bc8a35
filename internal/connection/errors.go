package connection

import "errors"

var (
	// ErrInvalidState is returned when an operation's precondition on the
	// selector state is not met, e.g. building a USB driver connection
	// with no printer selected.
	ErrInvalidState = errors.New("invalid selector state")

	// ErrUnsupportedPlatform is returned by discovery when the host has no
	// way to enumerate driver printers.
	ErrUnsupportedPlatform = errors.New("OS not supported")

	ErrUnknownMode      = errors.New("unknown connection mode")
	ErrUnknownTrustMode = errors.New("unknown trust mode")
)
