package executor

import "errors"

var (
	// ErrNotAuthorized indicates Execute was called without an approve
	// decision for the draft being executed. It is a programming error.
	ErrNotAuthorized = errors.New("execution not authorized")
	// ErrExecution indicates the action collaborator failed after approval.
	ErrExecution = errors.New("execution failed")
)

// IncompleteError reports an execution that failed after authorization.
// Progress lists the side effects that did complete; pass it back through
// Authorization.Progress on the next attempt.
type IncompleteError struct {
	Progress Progress
	Err      error
}

func (e *IncompleteError) Error() string { return e.Err.Error() }

func (e *IncompleteError) Unwrap() error { return e.Err }
