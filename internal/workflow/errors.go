package workflow

import "errors"

var (
	// ErrNotFound indicates no request exists with the given id.
	ErrNotFound = errors.New("request not found")
	// ErrInvalidTransition indicates the operation is not permitted in the
	// request's current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrConflict indicates the record changed since it was read.
	ErrConflict = errors.New("request was modified concurrently")
	// ErrLeaseHeld indicates another worker owns the request.
	ErrLeaseHeld = errors.New("request lease held by another worker")
	// ErrVerificationRejected indicates identity verification failed.
	ErrVerificationRejected = errors.New("identity verification rejected")
	// ErrInvalidCommand indicates a malformed command.
	ErrInvalidCommand = errors.New("invalid command")
)
