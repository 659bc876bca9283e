// Package executor performs the action an approved draft describes.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/draft"
	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/pkg/storage"
)

// Action is the side effect an executed draft performs.
type Action string

const (
	ActionIssueRefund  Action = "issue_refund"
	ActionSendDenial   Action = "send_denial"
	ActionEscalateCase Action = "escalate_case"
)

// ActionFor maps a draft outcome to its action.
func ActionFor(o draft.Outcome) Action {
	switch o {
	case draft.OutcomeApproveRefund:
		return ActionIssueRefund
	case draft.OutcomeDeny:
		return ActionSendDenial
	default:
		return ActionEscalateCase
	}
}

// States in which execution may be authorized.
const (
	StateAwaitingApproval = "awaiting_approval"
	StateExecutionFailed  = "execution_failed"
)

// Approval is the approve decision being applied.
type Approval struct {
	DecisionID    uuid.UUID
	Reviewer      string
	Outcome       string
	DraftRevision int
}

// Authorization carries the workflow position and decision that permit
// execution. Progress holds the steps earlier attempts of the same decision
// completed; it is ignored when it belongs to another decision.
type Authorization struct {
	State    string
	Decision Approval
	Progress *Progress
}

// Progress records the external side effects completed for one approve
// decision. A step marked done is never performed again.
type Progress struct {
	DecisionID uuid.UUID `json:"decision_id"`
	Refunded   bool      `json:"refunded"`
	RefundRef  string    `json:"refund_ref,omitempty"`
	Sent       bool      `json:"sent"`
	MessageRef string    `json:"message_ref,omitempty"`
}

// Started reports whether any side effect has completed.
func (p Progress) Started() bool {
	return p.Refunded || p.Sent
}

func (p Progress) reference() string {
	if p.RefundRef != "" {
		return p.RefundRef
	}
	return p.MessageRef
}

// Result records an executed (or simulated) action.
type Result struct {
	ID            uuid.UUID      `json:"id"`
	RequestID     uuid.UUID      `json:"request_id"`
	DecisionID    uuid.UUID      `json:"decision_id"`
	Action        Action         `json:"action"`
	Channel       intake.Channel `json:"channel"`
	DraftRevision int            `json:"draft_revision"`
	DraftDigest   string         `json:"draft_digest"`
	Simulated     bool           `json:"simulated"`
	ExternalRef   string         `json:"external_ref,omitempty"`
	ArtifactKey   string         `json:"artifact_key"`
	At            time.Time      `json:"at"`
}

// System executes approved drafts.
type System interface {
	Execute(ctx context.Context, auth Authorization, req *intake.Request, d draft.Draft) (*Result, error)
	Mode() Mode
}

type executor struct {
	mode   Mode
	sender Sender
	store  storage.System
	logger *slog.Logger
}

// New creates an executor. sender may be nil in demo mode.
func New(cfg *Config, sender Sender, store storage.System, logger *slog.Logger) (System, error) {
	if cfg.Mode == ModeLive && sender == nil {
		return nil, fmt.Errorf("live mode requires a sender")
	}
	if store == nil {
		return nil, fmt.Errorf("artifact storage required")
	}
	return &executor{
		mode:   cfg.Mode,
		sender: sender,
		store:  store,
		logger: logger.With("system", "executor"),
	}, nil
}

func (e *executor) Mode() Mode { return e.mode }

func (e *executor) Execute(ctx context.Context, auth Authorization, req *intake.Request, d draft.Draft) (*Result, error) {
	if err := authorize(auth, d); err != nil {
		e.logger.ErrorContext(ctx, "unauthorized execution attempt",
			"request_id", req.ID,
			"state", auth.State,
			"error", err,
		)
		return nil, err
	}

	result := &Result{
		ID:            uuid.New(),
		RequestID:     req.ID,
		DecisionID:    auth.Decision.DecisionID,
		Action:        ActionFor(d.Outcome),
		Channel:       d.Channel,
		DraftRevision: d.Revision,
		DraftDigest:   d.Digest,
		Simulated:     e.mode == ModeDemo,
		At:            time.Now().UTC(),
	}
	result.ArtifactKey = fmt.Sprintf("actions/%s/%s.json", req.ID, result.ID)

	progress := Progress{DecisionID: auth.Decision.DecisionID}
	if p := auth.Progress; p != nil && p.DecisionID == progress.DecisionID {
		progress = *p
		e.logger.InfoContext(ctx, "resuming execution",
			"request_id", req.ID,
			"refunded", progress.Refunded,
			"sent", progress.Sent,
		)
	}

	if e.mode == ModeLive {
		if err := e.perform(ctx, &progress, result.Action, req, d); err != nil {
			e.logger.ErrorContext(ctx, "action failed",
				"request_id", req.ID,
				"action", result.Action,
				"refunded", progress.Refunded,
				"error", err,
			)
			return nil, &IncompleteError{Progress: progress, Err: err}
		}
		result.ExternalRef = progress.reference()
	}

	if err := e.record(ctx, result, req, d); err != nil {
		return nil, &IncompleteError{
			Progress: progress,
			Err:      fmt.Errorf("%w: record artifact: %v", ErrExecution, err),
		}
	}

	e.logger.InfoContext(ctx, "action executed",
		"request_id", req.ID,
		"action", result.Action,
		"simulated", result.Simulated,
		"artifact", result.ArtifactKey,
	)
	return result, nil
}

func authorize(auth Authorization, d draft.Draft) error {
	switch auth.State {
	case StateAwaitingApproval, StateExecutionFailed:
	default:
		return fmt.Errorf("%w: state %q", ErrNotAuthorized, auth.State)
	}
	if auth.Decision.Outcome != "approve" {
		return fmt.Errorf("%w: decision outcome %q", ErrNotAuthorized, auth.Decision.Outcome)
	}
	if auth.Decision.DraftRevision != d.Revision {
		return fmt.Errorf("%w: decision targets revision %d, draft is revision %d",
			ErrNotAuthorized, auth.Decision.DraftRevision, d.Revision)
	}
	return nil
}

// perform runs the steps progress does not mark done, updating it as each
// completes. Each step carries an idempotency key derived from the decision.
func (e *executor) perform(ctx context.Context, p *Progress, action Action, req *intake.Request, d draft.Draft) error {
	key := p.DecisionID.String()

	if action == ActionIssueRefund && !p.Refunded {
		ref, err := e.sender.Refund(ctx, RefundOrder{
			RequestID:      req.ID.String(),
			DecisionID:     key,
			CustomerID:     req.Requester.CustomerID,
			OrderID:        req.Payload.OrderID,
			Amount:         req.Payload.Amount,
			Currency:       req.Payload.Currency,
			IdempotencyKey: key + "/refund",
		})
		if err != nil {
			return fmt.Errorf("%w: refund: %v", ErrExecution, err)
		}
		p.Refunded, p.RefundRef = true, ref
	}

	if !p.Sent {
		ref, err := e.sender.Send(ctx, Message{
			RequestID:      req.ID.String(),
			DecisionID:     key,
			CustomerID:     req.Requester.CustomerID,
			Email:          req.Requester.Email,
			Channel:        d.Channel,
			Subject:        d.Subject,
			Body:           d.Body,
			Action:         action,
			IdempotencyKey: key + "/send",
		})
		if err != nil {
			return fmt.Errorf("%w: send: %v", ErrExecution, err)
		}
		p.Sent, p.MessageRef = true, ref
	}
	return nil
}

type artifact struct {
	Result  *Result         `json:"result"`
	Request *intake.Request `json:"request"`
	Draft   draft.Draft     `json:"draft"`
}

func (e *executor) record(ctx context.Context, result *Result, req *intake.Request, d draft.Draft) error {
	data, err := json.MarshalIndent(artifact{Result: result, Request: req, Draft: d}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	return e.store.Upload(ctx, result.ArtifactKey, bytes.NewReader(data), "application/json")
}
