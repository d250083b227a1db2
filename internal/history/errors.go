package history

import "errors"

var (
	// ErrSerialRequired is returned when an entry has no device serial.
	ErrSerialRequired = errors.New("history: serial is required")

	// ErrInvalidRetention is returned when Prune is given a non-positive age.
	ErrInvalidRetention = errors.New("history: retention must be positive")
)
