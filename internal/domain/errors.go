package domain

import "errors"

var (
	// ErrValidation marks malformed or out-of-domain caller input. It is
	// detected before any external call and is never worth retrying.
	ErrValidation = errors.New("invalid request parameters")

	// ErrNotFound marks a referenced position, order, or record that does
	// not exist in the live set. User-facing, non-retryable.
	ErrNotFound = errors.New("not found")

	// ErrExternalCall marks a failed venue call (RPC, indexer, price
	// endpoint). The underlying cause is attached by wrapping.
	ErrExternalCall = errors.New("venue call failed")

	// ErrTrackingTimeout means a submission succeeded but its terminal
	// state could not be observed within the tracking budget. It is not a
	// failure of the submission itself.
	ErrTrackingTimeout = errors.New("order submitted, tracking unavailable")

	// ErrCancelledByVenue means the venue rejected the order after
	// accepting the submission. The venue reason travels alongside.
	ErrCancelledByVenue = errors.New("order cancelled by venue")

	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrLockHeld     = errors.New("lock already held")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
