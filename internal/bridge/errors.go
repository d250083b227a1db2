package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrUnknownCommand is returned for a command name the bridge does not
	// implement.
	ErrUnknownCommand = errors.New("bridge: unknown command")

	// ErrInvalidParameters is returned when a command's parameters are
	// missing or of the wrong type.
	ErrInvalidParameters = errors.New("bridge: invalid parameters")

	// ErrUnknownDevice is returned for a serial no session manages.
	ErrUnknownDevice = errors.New("bridge: unknown device")
)
