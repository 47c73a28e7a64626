package atmodem

import "errors"

var (
	// ErrNotSupported is returned by a driver probe when the modem lacks a
	// capability the driver requires.
	//
	// The wrapping error names the missing capability. The modem stays usable
	// for everything else.
	ErrNotSupported = errors.New("not supported by modem")

	// ErrUnexpectedResponse is returned when a command succeeded but its
	// answer could not be parsed.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrBadPIN is returned by SIM operations when the PIN or PUK is not a
	// run of digits.
	ErrBadPIN = errors.New("PIN must be 4 to 8 digits")
)
