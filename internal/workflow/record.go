package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/draft"
	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/executor"
	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/internal/verification"
)

// EntryKind classifies audit entries.
type EntryKind string

const (
	EntryTransition   EntryKind = "transition"
	EntryEvidence     EntryKind = "evidence"
	EntryFlags        EntryKind = "flags"
	EntryVerification EntryKind = "verification"
	EntryDecision     EntryKind = "decision"
	EntryExecution    EntryKind = "execution"
	EntryReminder     EntryKind = "reminder"
)

// AuditEntry is one append-only line of a request's reasoning trace.
// Seq is strictly increasing per request, starting at 1.
type AuditEntry struct {
	Seq  int       `json:"seq"`
	At   time.Time `json:"at"`
	From State     `json:"from,omitempty"`
	To   State     `json:"to,omitempty"`
	Kind EntryKind `json:"kind"`
	Note string    `json:"note"`
	Refs []string  `json:"refs,omitempty"`
}

// Failure explains why a request moved to StateFailed.
type Failure struct {
	Reason        string    `json:"reason"`
	Error         string    `json:"error"`
	LastGoodState State     `json:"last_good_state"`
	At            time.Time `json:"at"`
}

// DecisionOutcome is a reviewer's verdict on a draft.
type DecisionOutcome string

const (
	DecisionApprove DecisionOutcome = "approve"
	DecisionEdit    DecisionOutcome = "edit"
	DecisionReject  DecisionOutcome = "reject"
)

// Decision is an immutable human approval decision.
type Decision struct {
	ID            uuid.UUID       `json:"id"`
	Reviewer      string          `json:"reviewer"`
	Outcome       DecisionOutcome `json:"outcome"`
	Edits         *draft.Edits    `json:"edits,omitempty"`
	Note          string          `json:"note,omitempty"`
	DraftRevision int             `json:"draft_revision"`
	At            time.Time       `json:"at"`
}

// Record is the persisted state of one request. Audit is ordered by Seq.
type Record struct {
	Request           intake.Request        `json:"request"`
	State             State                 `json:"state"`
	Version           int                   `json:"version"`
	Evidence          *evidence.Evidence    `json:"evidence,omitempty"`
	Flags             []fraud.RedFlag       `json:"flags"`
	Score             *trust.Score          `json:"score,omitempty"`
	Verifications     []verification.Record `json:"verifications"`
	Drafts            []draft.Draft         `json:"drafts"`
	Decisions         []Decision            `json:"decisions"`
	Actions           []executor.Result     `json:"actions"`
	ExecutionAttempts int                   `json:"execution_attempts"`
	ExecutionError    string                `json:"execution_error,omitempty"`
	ExecutionProgress *executor.Progress    `json:"execution_progress,omitempty"`
	Failure           *Failure              `json:"failure,omitempty"`
	Audit             []AuditEntry          `json:"audit"`
	RemindedAt        *time.Time            `json:"reminded_at,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// ID returns the request id.
func (r *Record) ID() uuid.UUID { return r.Request.ID }

// CurrentDraft returns the latest draft revision, or nil before drafting.
func (r *Record) CurrentDraft() *draft.Draft {
	if len(r.Drafts) == 0 {
		return nil
	}
	d := r.Drafts[len(r.Drafts)-1]
	return &d
}

// LastApproval returns the most recent approve decision, or nil.
func (r *Record) LastApproval() *Decision {
	for i := len(r.Decisions) - 1; i >= 0; i-- {
		if r.Decisions[i].Outcome == DecisionApprove {
			d := r.Decisions[i]
			return &d
		}
	}
	return nil
}

// Verified reports whether the request holds a verified identity record.
func (r *Record) Verified() bool {
	return verification.Verified(r.Verifications)
}

func newRecord(req intake.Request, at time.Time) *Record {
	return &Record{
		Request:       req,
		State:         StateReceived,
		Flags:         []fraud.RedFlag{},
		Verifications: []verification.Record{},
		Drafts:        []draft.Draft{},
		Decisions:     []Decision{},
		Actions:       []executor.Result{},
		Audit:         []AuditEntry{},
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func (r *Record) append(at time.Time, entry AuditEntry) {
	entry.Seq = 1
	if n := len(r.Audit); n > 0 {
		entry.Seq = r.Audit[n-1].Seq + 1
	}
	entry.At = at
	r.Audit = append(r.Audit, entry)
}

func (r *Record) transition(at time.Time, to State, note string, refs ...string) error {
	if !CanTransition(r.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
	}
	r.append(at, AuditEntry{
		From: r.State,
		To:   to,
		Kind: EntryTransition,
		Note: note,
		Refs: refs,
	})
	r.State = to
	return nil
}

func (r *Record) note(at time.Time, kind EntryKind, note string, refs ...string) {
	r.append(at, AuditEntry{Kind: kind, Note: note, Refs: refs})
}

func (r *Record) fail(at time.Time, reason string, cause error) error {
	last := r.State
	if err := r.transition(at, StateFailed, reason+": "+cause.Error()); err != nil {
		return err
	}
	r.Failure = &Failure{
		Reason:        reason,
		Error:         cause.Error(),
		LastGoodState: last,
		At:            at,
	}
	return nil
}
