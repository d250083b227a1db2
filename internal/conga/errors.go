package conga

import "errors"

// Domain errors for the conga package.
//
// Every error returned by this package wraps exactly one of these.
// Use errors.Is() to check for them in calling code.
var (
	// ErrAuthentication is returned when the user directory rejects the
	// account (bad username/password, locked account). Not retried.
	ErrAuthentication = errors.New("conga: authentication failed")

	// ErrFederation is returned when the identity-pool exchange fails.
	// Not retried.
	ErrFederation = errors.New("conga: credential federation failed")

	// ErrAuthorization is returned when a REST or shadow call is rejected
	// as unauthorised after one credential invalidation and retry.
	ErrAuthorization = errors.New("conga: not authorised")

	// ErrDeviceUnreachable is returned on transport failures and timeouts
	// against the listing or shadow endpoints.
	ErrDeviceUnreachable = errors.New("conga: device unreachable")

	// ErrNotFound is returned when a device or its shadow does not exist.
	ErrNotFound = errors.New("conga: not found")

	// ErrPlanNotFound is returned when a named plan is absent from the
	// current plan cache.
	ErrPlanNotFound = errors.New("conga: plan not found")

	// ErrInvalidCommand is returned when a command carries a value the
	// device cannot accept (e.g. a fan level outside 0-3).
	ErrInvalidCommand = errors.New("conga: invalid command")

	// ErrInvalidResponse is returned when a shadow or listing response
	// cannot be decoded.
	ErrInvalidResponse = errors.New("conga: invalid response")
)
