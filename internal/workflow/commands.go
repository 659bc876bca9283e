package workflow

import (
	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/draft"
	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/executor"
	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/internal/verification"
)

// ReviewCommand completes human review of a request routed for review.
type ReviewCommand struct {
	Reviewer string `json:"reviewer"`
	Note     string `json:"note,omitempty"`
}

// DecisionCommand records an approval decision on the current draft.
// DraftRevision, when set, must match the current draft.
type DecisionCommand struct {
	Reviewer      string          `json:"reviewer"`
	Outcome       DecisionOutcome `json:"outcome"`
	Edits         *draft.Edits    `json:"edits,omitempty"`
	Note          string          `json:"note,omitempty"`
	DraftRevision int             `json:"draft_revision,omitempty"`
}

// RetryCommand re-runs a failed execution.
type RetryCommand struct {
	Operator string `json:"operator"`
}

// CancelCommand cancels a suspended request.
type CancelCommand struct {
	Operator string `json:"operator"`
	Reason   string `json:"reason,omitempty"`
}

// ReviewView is what a reviewer sees for one request.
type ReviewView struct {
	ID                uuid.UUID            `json:"id"`
	State             State                `json:"state"`
	Request           intake.Request       `json:"request"`
	Flags             []fraud.RedFlag      `json:"flags"`
	Triggered         []fraud.RedFlag      `json:"triggered"`
	Score             *trust.Score         `json:"score,omitempty"`
	Priority          trust.Priority       `json:"priority,omitempty"`
	Summary           []string             `json:"summary"`
	Draft             *draft.Draft         `json:"draft,omitempty"`
	Preview           bool                 `json:"preview"`
	DraftCount        int                  `json:"draft_count"`
	Verification      *verification.Record `json:"verification,omitempty"`
	Unavailable       []evidence.Section   `json:"unavailable,omitempty"`
	ExecutionError    string               `json:"execution_error,omitempty"`
	ExecutionProgress *executor.Progress   `json:"execution_progress,omitempty"`
	Failure           *Failure             `json:"failure,omitempty"`
}
