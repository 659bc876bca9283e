// Package verification records identity verification outcomes and talks to
// the external verification collaborator.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/intake"
)

// ErrPending indicates verification was started but has not completed.
// The outcome arrives later through a callback.
var ErrPending = errors.New("verification pending")

// ErrInvalidOutcome indicates an outcome with an unknown status.
var ErrInvalidOutcome = errors.New("invalid verification outcome")

// Status is the result of an identity check.
type Status string

const (
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Outcome is what a verifier or callback reports.
type Outcome struct {
	Status    Status `json:"status"`
	Method    string `json:"method"`
	Reference string `json:"reference,omitempty"`
}

// Validate checks that the outcome carries a known status.
func (o Outcome) Validate() error {
	switch o.Status {
	case StatusVerified, StatusRejected:
		return nil
	}
	return fmt.Errorf("%w: status %q", ErrInvalidOutcome, o.Status)
}

// Record is a persisted verification outcome. Records are appended to a
// request's history and never modified.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Status    Status    `json:"status"`
	Method    string    `json:"method"`
	Reference string    `json:"reference,omitempty"`
	At        time.Time `json:"at"`
}

// NewRecord validates outcome and stamps it with id and at.
func NewRecord(id uuid.UUID, outcome Outcome, at time.Time) (Record, error) {
	if err := outcome.Validate(); err != nil {
		return Record{}, err
	}
	return Record{
		ID:        id,
		Status:    outcome.Status,
		Method:    outcome.Method,
		Reference: outcome.Reference,
		At:        at,
	}, nil
}

// Verified reports whether history contains a verified record.
func Verified(history []Record) bool {
	for _, r := range history {
		if r.Status == StatusVerified {
			return true
		}
	}
	return false
}

// Latest returns the most recent record, or nil for an empty history.
func Latest(history []Record) *Record {
	if len(history) == 0 {
		return nil
	}
	r := history[len(history)-1]
	return &r
}

// Verifier starts or performs identity verification for a request.
// Implementations return ErrPending when the result will arrive asynchronously.
type Verifier interface {
	Verify(ctx context.Context, req *intake.Request) (*Outcome, error)
}

// CallbackVerifier never resolves synchronously; every request waits for a
// callback.
type CallbackVerifier struct{}

func (CallbackVerifier) Verify(ctx context.Context, req *intake.Request) (*Outcome, error) {
	return nil, ErrPending
}

// AutoVerifier resolves every request as verified. It backs demo mode.
type AutoVerifier struct {
	Method string
}

func (v AutoVerifier) Verify(ctx context.Context, req *intake.Request) (*Outcome, error) {
	method := v.Method
	if method == "" {
		method = "demo"
	}
	return &Outcome{
		Status:    StatusVerified,
		Method:    method,
		Reference: req.Requester.CustomerID,
	}, nil
}
