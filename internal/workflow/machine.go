// Package workflow owns the request lifecycle: an explicit state machine with
// an append-only audit log, persisted suspension points, and per-request
// ownership.
//
// Automated steps run until the request parks at a suspension point
// (security gate, human review, approval) or reaches a terminal state.
// Parked requests resume only through an external call such as a
// verification callback or a reviewer decision.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/draft"
	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/executor"
	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/internal/verification"
	"github.com/JaimeStill/arbiter/pkg/pagination"
)

// System defines the workflow operations.
type System interface {
	// Submit creates a request and runs it to its first suspension point
	// or terminal state.
	Submit(ctx context.Context, cmd intake.Command) (*Record, error)
	// ResolveVerification records a verification outcome for a request
	// parked at the security gate and resumes it.
	ResolveVerification(ctx context.Context, id uuid.UUID, outcome verification.Outcome) (*Record, error)
	// Review completes human review and composes the draft.
	Review(ctx context.Context, id uuid.UUID, cmd ReviewCommand) (*Record, error)
	// Decide applies an approve, edit, or reject decision.
	Decide(ctx context.Context, id uuid.UUID, cmd DecisionCommand) (*Record, error)
	// RetryExecution re-runs the approved action after an execution failure.
	RetryExecution(ctx context.Context, id uuid.UUID, cmd RetryCommand) (*Record, error)
	// Cancel moves a suspended request to StateCancelled.
	Cancel(ctx context.Context, id uuid.UUID, cmd CancelCommand) (*Record, error)

	Find(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Summary], error)
	Trace(ctx context.Context, id uuid.UUID) ([]AuditEntry, error)
	ReviewView(ctx context.Context, id uuid.UUID) (*ReviewView, error)
	Tiers() []trust.Boundary

	// Sweep appends reminder entries to requests suspended since before
	// cutoff. It never changes state.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

type machine struct {
	evidence         evidence.System
	evaluator        *fraud.Evaluator
	scorer           *trust.Scorer
	verifier         verification.Verifier
	executor         executor.System
	store            Store
	locker           Locker
	logger           *slog.Logger
	pagination       pagination.Config
	maxAttempts      int
	reminderInterval time.Duration
	now              func() time.Time
}

// New creates the state machine from rt.
func New(rt Runtime) (System, error) {
	if rt.Evidence == nil || rt.Evaluator == nil || rt.Scorer == nil {
		return nil, fmt.Errorf("evidence, evaluator, and scorer are required")
	}
	if rt.Executor == nil || rt.Store == nil {
		return nil, fmt.Errorf("executor and store are required")
	}

	m := &machine{
		evidence:         rt.Evidence,
		evaluator:        rt.Evaluator,
		scorer:           rt.Scorer,
		verifier:         rt.Verifier,
		executor:         rt.Executor,
		store:            rt.Store,
		locker:           rt.Locker,
		logger:           rt.Logger,
		pagination:       rt.Pagination,
		maxAttempts:      rt.MaxExecutionAttempts,
		reminderInterval: rt.ReminderInterval,
		now:              rt.Now,
	}

	if m.verifier == nil {
		m.verifier = verification.CallbackVerifier{}
	}
	if m.locker == nil {
		m.locker = NewLocalLocker(30 * time.Second)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	m.logger = m.logger.With("system", "workflow")
	if m.pagination.DefaultPageSize == 0 {
		m.pagination = pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}
	}
	if m.maxAttempts < 1 {
		m.maxAttempts = 3
	}
	if m.reminderInterval <= 0 {
		m.reminderInterval = time.Hour
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

func (m *machine) Submit(ctx context.Context, cmd intake.Command) (*Record, error) {
	now := m.clock()
	req, err := intake.New(uuid.New(), cmd, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	release, err := m.locker.Acquire(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := newRecord(*req, now)
	rec.Version = 1
	if err := rec.transition(now, StateEvidenceGathering, "request received", string(req.Type)); err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// The request is durable from here; run to the next persisted position
	// even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	m.logger.InfoContext(ctx, "request submitted",
		"request_id", req.ID,
		"type", req.Type,
		"customer_id", req.Requester.CustomerID,
	)

	from := len(rec.Audit)
	if err := m.advance(ctx, rec); err != nil {
		return nil, err
	}
	if err := m.persist(ctx, rec, from, true); err != nil {
		return nil, err
	}
	m.logPosition(ctx, rec)
	return rec, nil
}

func (m *machine) ResolveVerification(ctx context.Context, id uuid.UUID, outcome verification.Outcome) (*Record, error) {
	if err := outcome.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	return m.mutate(ctx, id, func(rec *Record) error {
		if rec.State != StateSecurityGate {
			return fmt.Errorf("%w: verification outcome in state %s", ErrInvalidTransition, rec.State)
		}
		if err := m.applyVerification(rec, outcome); err != nil {
			return err
		}
		return m.advance(ctx, rec)
	})
}

func (m *machine) Review(ctx context.Context, id uuid.UUID, cmd ReviewCommand) (*Record, error) {
	if strings.TrimSpace(cmd.Reviewer) == "" {
		return nil, fmt.Errorf("%w: reviewer required", ErrInvalidCommand)
	}
	return m.mutate(ctx, id, func(rec *Record) error {
		return m.review(rec, cmd)
	})
}

func (m *machine) Decide(ctx context.Context, id uuid.UUID, cmd DecisionCommand) (*Record, error) {
	if strings.TrimSpace(cmd.Reviewer) == "" {
		return nil, fmt.Errorf("%w: reviewer required", ErrInvalidCommand)
	}
	switch cmd.Outcome {
	case DecisionApprove, DecisionReject:
	case DecisionEdit:
		if cmd.Edits == nil || cmd.Edits.Empty() {
			return nil, fmt.Errorf("%w: edit decision requires edits", ErrInvalidCommand)
		}
	default:
		return nil, fmt.Errorf("%w: unknown decision outcome %q", ErrInvalidCommand, cmd.Outcome)
	}

	return m.mutate(ctx, id, func(rec *Record) error {
		if rec.State == StateAwaitingHumanReview {
			if err := m.review(rec, ReviewCommand{Reviewer: cmd.Reviewer, Note: cmd.Note}); err != nil {
				return err
			}
		}
		return m.decide(ctx, rec, cmd)
	})
}

func (m *machine) RetryExecution(ctx context.Context, id uuid.UUID, cmd RetryCommand) (*Record, error) {
	if strings.TrimSpace(cmd.Operator) == "" {
		return nil, fmt.Errorf("%w: operator required", ErrInvalidCommand)
	}

	return m.mutate(ctx, id, func(rec *Record) error {
		if rec.State != StateExecutionFailed {
			return fmt.Errorf("%w: retry in state %s", ErrInvalidTransition, rec.State)
		}
		dec := rec.LastApproval()
		if dec == nil {
			return fmt.Errorf("%w: no approve decision to retry", ErrInvalidTransition)
		}
		rec.note(m.clock(), EntryExecution, "retry requested by "+cmd.Operator, dec.ID.String())
		return m.execute(ctx, rec, *dec)
	})
}

func (m *machine) Cancel(ctx context.Context, id uuid.UUID, cmd CancelCommand) (*Record, error) {
	if strings.TrimSpace(cmd.Operator) == "" {
		return nil, fmt.Errorf("%w: operator required", ErrInvalidCommand)
	}

	return m.mutate(ctx, id, func(rec *Record) error {
		if !rec.State.Suspended() {
			return fmt.Errorf("%w: cancel in state %s", ErrInvalidTransition, rec.State)
		}
		note := "cancelled by " + cmd.Operator
		if cmd.Reason != "" {
			note += ": " + cmd.Reason
		}
		return rec.transition(m.clock(), StateCancelled, note)
	})
}

func (m *machine) Find(ctx context.Context, id uuid.UUID) (*Record, error) {
	return m.store.Find(ctx, id)
}

func (m *machine) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Summary], error) {
	page.Normalize(m.pagination)
	return m.store.List(ctx, page, filters)
}

func (m *machine) Trace(ctx context.Context, id uuid.UUID) ([]AuditEntry, error) {
	return m.store.Trace(ctx, id)
}

func (m *machine) ReviewView(ctx context.Context, id uuid.UUID) (*ReviewView, error) {
	rec, err := m.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &ReviewView{
		ID:                rec.ID(),
		State:             rec.State,
		Request:           rec.Request,
		Flags:             rec.Flags,
		Triggered:         []fraud.RedFlag{},
		Score:             rec.Score,
		Summary:           reasoning(rec.Audit),
		Draft:             rec.CurrentDraft(),
		DraftCount:        len(rec.Drafts),
		Verification:      verification.Latest(rec.Verifications),
		ExecutionError:    rec.ExecutionError,
		ExecutionProgress: rec.ExecutionProgress,
		Failure:           rec.Failure,
	}
	for _, f := range rec.Flags {
		if f.Triggered() || f.Unknown() {
			view.Triggered = append(view.Triggered, f)
		}
	}
	if rec.Score != nil {
		view.Priority = rec.Score.Priority()
	}
	if rec.Evidence != nil {
		view.Unavailable = rec.Evidence.Unavailable
	}

	if rec.State == StateAwaitingHumanReview && view.Draft == nil {
		d, err := draft.Compose(m.snapshot(rec))
		if err != nil {
			return nil, fmt.Errorf("compose preview: %w", err)
		}
		view.Draft = &d
		view.Preview = true
	}
	return view, nil
}

func (m *machine) Tiers() []trust.Boundary {
	return m.scorer.Tiers()
}

func (m *machine) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := m.store.Stale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale requests: %w", err)
	}

	reminded := 0
	for _, id := range ids {
		ok, err := m.remind(ctx, id, cutoff)
		if err != nil {
			if errors.Is(err, ErrLeaseHeld) || errors.Is(err, ErrConflict) {
				continue
			}
			return reminded, err
		}
		if ok {
			reminded++
		}
	}
	return reminded, nil
}

func (m *machine) remind(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	release, err := m.locker.Acquire(ctx, id)
	if err != nil {
		return false, err
	}
	defer release()

	rec, err := m.store.Find(ctx, id)
	if err != nil {
		return false, err
	}

	now := m.clock()
	if !rec.State.Suspended() || !rec.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	if rec.RemindedAt != nil && now.Sub(*rec.RemindedAt) < m.reminderInterval {
		return false, nil
	}

	from := len(rec.Audit)
	rec.RemindedAt = &now
	waiting := now.Sub(rec.UpdatedAt).Round(time.Minute)
	rec.note(now, EntryReminder, fmt.Sprintf("waiting in %s for %s", rec.State, waiting))

	if err := m.persist(ctx, rec, from, false); err != nil {
		return false, err
	}

	m.logger.WarnContext(ctx, "request awaiting input",
		"request_id", id,
		"state", rec.State,
		"waiting", waiting,
	)
	return true, nil
}

// mutate runs fn under the request lease and persists the result. When fn
// returns an error nothing is written.
func (m *machine) mutate(ctx context.Context, id uuid.UUID, fn func(rec *Record) error) (*Record, error) {
	release, err := m.locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, err := m.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	// Once the lease is held the step completes and persists regardless of
	// the caller.
	ctx = context.WithoutCancel(ctx)

	from := len(rec.Audit)
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := m.persist(ctx, rec, from, true); err != nil {
		return nil, err
	}
	m.logPosition(ctx, rec)
	return rec, nil
}

func (m *machine) persist(ctx context.Context, rec *Record, from int, touch bool) error {
	rec.Version++
	if touch {
		rec.UpdatedAt = m.clock()
	}
	if err := m.store.Update(ctx, rec, rec.Audit[from:]); err != nil {
		return fmt.Errorf("save request %s: %w", rec.ID(), err)
	}
	return nil
}

// advance runs automated steps until the request parks or terminates.
func (m *machine) advance(ctx context.Context, rec *Record) error {
	for {
		var err error
		switch rec.State {
		case StateEvidenceGathering:
			err = m.gather(ctx, rec)
		case StateRiskEvaluation:
			err = m.evaluate(rec)
		case StateFastTrack:
			err = m.compose(rec, "fast-track draft composed")
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (m *machine) gather(ctx context.Context, rec *Record) error {
	req := rec.Request
	ev, err := m.evidence.Gather(ctx,
		evidence.Lookup{
			CustomerID: req.Requester.CustomerID,
			OrderID:    req.Payload.OrderID,
			SessionID:  req.Requester.SessionID,
		},
		evidence.PolicyQuery{
			Category: string(req.Type),
			Text:     strings.TrimSpace(req.Payload.Reason + " " + req.Payload.Message),
		},
	)

	now := m.clock()
	if err != nil {
		m.logger.ErrorContext(ctx, "evidence gathering failed", "request_id", req.ID, "error", err)
		if errors.Is(err, evidence.ErrSchemaViolation) {
			return rec.fail(now, "evidence schema violation", err)
		}
		return rec.fail(now, "evidence retrieval failed", err)
	}

	rec.Evidence = ev
	if len(ev.Unavailable) > 0 {
		sections := make([]string, len(ev.Unavailable))
		for i, s := range ev.Unavailable {
			sections[i] = string(s)
		}
		rec.note(now, EntryEvidence,
			"evidence unavailable after retries: "+strings.Join(sections, ", "),
			sections...,
		)
	} else {
		rec.note(now, EntryEvidence, fmt.Sprintf("evidence retrieved with %d policy clauses", len(ev.Policy)))
	}

	if req.RequiresVerification() && !rec.Verified() {
		if err := rec.transition(now, StateSecurityGate, "identity verification required"); err != nil {
			return err
		}
		m.requestVerification(ctx, rec)
		return nil
	}
	return rec.transition(now, StateRiskEvaluation, "identity verification not required")
}

// requestVerification asks the verifier for a synchronous outcome. Pending
// and failed calls leave the request parked at the security gate.
func (m *machine) requestVerification(ctx context.Context, rec *Record) {
	out, err := m.verifier.Verify(ctx, &rec.Request)
	if err == nil {
		err = out.Validate()
	}

	switch {
	case errors.Is(err, verification.ErrPending):
		rec.note(m.clock(), EntryVerification, "verification pending, awaiting callback")
		return
	case err != nil:
		m.logger.WarnContext(ctx, "verification call failed", "request_id", rec.ID(), "error", err)
		rec.note(m.clock(), EntryVerification, "verification call failed, awaiting callback: "+err.Error())
		return
	}

	if err := m.applyVerification(rec, *out); err != nil {
		rec.note(m.clock(), EntryVerification, "verification outcome not applied: "+err.Error())
	}
}

func (m *machine) applyVerification(rec *Record, outcome verification.Outcome) error {
	now := m.clock()
	vr, err := verification.NewRecord(uuid.New(), outcome, now)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	rec.Verifications = append(rec.Verifications, vr)
	rec.note(now, EntryVerification, fmt.Sprintf("identity %s via %s", vr.Status, vr.Method), vr.ID.String())

	if vr.Status == verification.StatusVerified {
		return rec.transition(now, StateRiskEvaluation, "identity verified", vr.ID.String())
	}
	return rec.fail(now, "identity verification rejected", ErrVerificationRejected)
}

func (m *machine) evaluate(rec *Record) error {
	flags := m.evaluator.Evaluate(fraud.Input{
		Request:  &rec.Request,
		Evidence: rec.Evidence,
		AsOf:     rec.Request.CreatedAt,
	})
	score := m.scorer.Score(flags)
	rec.Flags = flags
	rec.Score = &score

	now := m.clock()
	refs := flagRefs(flags)
	rec.note(now, EntryFlags, fraud.Summarize(flags), refs...)

	if requiresReview(flags, score) {
		return rec.transition(now, StateAwaitingHumanReview, reviewReason(score), refs...)
	}
	return rec.transition(now, StateFastTrack, fmt.Sprintf("all signals clean, score %.2f", score.Points))
}

func (m *machine) review(rec *Record, cmd ReviewCommand) error {
	if rec.State != StateAwaitingHumanReview {
		return fmt.Errorf("%w: review in state %s", ErrInvalidTransition, rec.State)
	}
	note := "reviewed by " + cmd.Reviewer
	if cmd.Note != "" {
		note += ": " + cmd.Note
	}
	return m.compose(rec, note)
}

// compose appends the first draft and parks the request for approval.
func (m *machine) compose(rec *Record, note string) error {
	if rec.Request.RequiresVerification() && !rec.Verified() {
		return fmt.Errorf("%w: draft requires verified identity", ErrInvalidTransition)
	}
	if rec.Score == nil {
		return fmt.Errorf("%w: draft requires a risk evaluation", ErrInvalidTransition)
	}
	if rec.State == StateFastTrack && requiresReview(rec.Flags, *rec.Score) {
		return fmt.Errorf("%w: flagged request cannot be fast-tracked", ErrInvalidTransition)
	}

	d, err := draft.Compose(m.snapshot(rec))
	if err != nil {
		return err
	}
	rec.Drafts = append(rec.Drafts, d)

	now := m.clock()
	if err := rec.transition(now, StateDrafted, note, draftRef(d)); err != nil {
		return err
	}
	return rec.transition(now, StateAwaitingApproval,
		fmt.Sprintf("revision %d proposes %s", d.Revision, d.Outcome), draftRef(d))
}

func (m *machine) decide(ctx context.Context, rec *Record, cmd DecisionCommand) error {
	switch rec.State {
	case StateAwaitingApproval:
	case StateExecutionFailed:
		if cmd.Outcome != DecisionReject {
			return fmt.Errorf("%w: only reject is accepted after an execution failure", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: decision in state %s", ErrInvalidTransition, rec.State)
	}

	current := rec.CurrentDraft()
	if current == nil {
		return fmt.Errorf("%w: no draft to decide on", ErrInvalidTransition)
	}
	if cmd.DraftRevision != 0 && cmd.DraftRevision != current.Revision {
		return fmt.Errorf("%w: decision targets revision %d, current is %d",
			ErrConflict, cmd.DraftRevision, current.Revision)
	}

	now := m.clock()
	dec := Decision{
		ID:            uuid.New(),
		Reviewer:      cmd.Reviewer,
		Outcome:       cmd.Outcome,
		Edits:         cmd.Edits,
		Note:          cmd.Note,
		DraftRevision: current.Revision,
		At:            now,
	}
	rec.Decisions = append(rec.Decisions, dec)
	rec.note(now, EntryDecision,
		fmt.Sprintf("%s by %s on revision %d", dec.Outcome, dec.Reviewer, dec.DraftRevision),
		dec.ID.String(),
	)

	switch dec.Outcome {
	case DecisionApprove:
		return m.execute(ctx, rec, dec)
	case DecisionEdit:
		next, err := draft.Apply(*current, *dec.Edits, dec.Reviewer)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		rec.Drafts = append(rec.Drafts, next)
		if err := rec.transition(now, StateDrafted,
			fmt.Sprintf("revision %d supersedes %d", next.Revision, current.Revision),
			dec.ID.String(), draftRef(next),
		); err != nil {
			return err
		}
		return rec.transition(now, StateAwaitingApproval,
			fmt.Sprintf("revision %d proposes %s", next.Revision, next.Outcome), draftRef(next))
	default:
		note := "rejected by " + dec.Reviewer
		if dec.Note != "" {
			note += ": " + dec.Note
		}
		return rec.transition(now, StateRejected, note, dec.ID.String())
	}
}

// execute applies an approve decision. Collaborator failures move the
// request to StateExecutionFailed, and to StateFailed once attempts run out.
func (m *machine) execute(ctx context.Context, rec *Record, dec Decision) error {
	current := rec.CurrentDraft()
	auth := executor.Authorization{
		State: string(rec.State),
		Decision: executor.Approval{
			DecisionID:    dec.ID,
			Reviewer:      dec.Reviewer,
			Outcome:       string(dec.Outcome),
			DraftRevision: dec.DraftRevision,
		},
		Progress: rec.ExecutionProgress,
	}

	res, err := m.executor.Execute(ctx, auth, &rec.Request, *current)
	if errors.Is(err, executor.ErrNotAuthorized) {
		return err
	}

	rec.ExecutionAttempts++
	now := m.clock()

	if err != nil {
		rec.ExecutionError = err.Error()
		var incomplete *executor.IncompleteError
		if errors.As(err, &incomplete) && incomplete.Progress.Started() {
			p := incomplete.Progress
			rec.ExecutionProgress = &p
			rec.note(now, EntryExecution, progressNote(p), dec.ID.String())
		}
		if err := rec.transition(now, StateExecutionFailed,
			fmt.Sprintf("attempt %d failed: %v", rec.ExecutionAttempts, err),
			dec.ID.String(),
		); err != nil {
			return err
		}
		if rec.ExecutionAttempts >= m.maxAttempts {
			return rec.fail(now, "execution attempts exhausted", err)
		}
		return nil
	}

	rec.ExecutionError = ""
	rec.ExecutionProgress = nil
	rec.Actions = append(rec.Actions, *res)

	action := string(res.Action)
	if res.Simulated {
		action += " (simulated)"
	}
	rec.note(now, EntryExecution, action+" recorded at "+res.ArtifactKey, res.ID.String())
	return rec.transition(now, StateExecuted,
		fmt.Sprintf("revision %d executed", current.Revision),
		dec.ID.String(), res.ID.String(),
	)
}

func progressNote(p executor.Progress) string {
	var done []string
	if p.Refunded {
		done = append(done, "refund "+p.RefundRef)
	}
	if p.Sent {
		done = append(done, "message "+p.MessageRef)
	}
	return strings.Join(done, " and ") + " completed before failure; not repeated on retry"
}

func (m *machine) snapshot(rec *Record) draft.Snapshot {
	s := draft.Snapshot{
		Request:  &rec.Request,
		Evidence: rec.Evidence,
		Flags:    rec.Flags,
	}
	if rec.Score != nil {
		s.Score = *rec.Score
	}
	for i := len(rec.Verifications) - 1; i >= 0; i-- {
		if rec.Verifications[i].Status == verification.StatusVerified {
			v := rec.Verifications[i]
			s.Verification = &v
			break
		}
	}
	return s
}

func (m *machine) clock() time.Time {
	return m.now().UTC()
}

func (m *machine) logPosition(ctx context.Context, rec *Record) {
	attrs := []any{"request_id", rec.ID(), "state", rec.State, "version", rec.Version}
	switch {
	case rec.State == StateFailed:
		m.logger.WarnContext(ctx, "request failed", append(attrs, "reason", rec.Failure.Reason)...)
	case rec.State == StateExecutionFailed:
		m.logger.WarnContext(ctx, "request execution failed", append(attrs, "attempts", rec.ExecutionAttempts)...)
	case rec.State.Suspended():
		m.logger.InfoContext(ctx, "request parked", attrs...)
	default:
		m.logger.InfoContext(ctx, "request advanced", attrs...)
	}
}

// requiresReview is the routing condition for human review. No path reaches
// a draft from risk evaluation without review while it holds.
func requiresReview(flags []fraud.RedFlag, score trust.Score) bool {
	return fraud.AnyTriggered(flags) || fraud.AnyUnknown(flags) || score.Tier != trust.TierFastTrack
}

func reviewReason(score trust.Score) string {
	var parts []string
	if len(score.Triggered) > 0 {
		parts = append(parts, "triggered "+joinKinds(score.Triggered))
	}
	if len(score.Unknown) > 0 {
		parts = append(parts, "undetermined "+joinKinds(score.Unknown))
	}
	parts = append(parts, fmt.Sprintf("score %.2f tier %s", score.Points, score.Tier))
	return strings.Join(parts, "; ")
}

func joinKinds(kinds []fraud.Kind) string {
	s := make([]string, len(kinds))
	for i, k := range kinds {
		s[i] = string(k)
	}
	return strings.Join(s, ", ")
}

// flagRefs lists the kinds and record ids behind every triggered or
// undetermined flag.
func flagRefs(flags []fraud.RedFlag) []string {
	var refs []string
	for _, f := range flags {
		if !f.Triggered() && !f.Unknown() {
			continue
		}
		refs = append(refs, string(f.Kind))
		refs = append(refs, f.Refs...)
	}
	return refs
}

func draftRef(d draft.Draft) string {
	return fmt.Sprintf("draft:%d", d.Revision)
}

// reasoning renders the audit log as the reviewer-facing reasoning trace.
func reasoning(audit []AuditEntry) []string {
	lines := make([]string, 0, len(audit))
	for _, e := range audit {
		if e.Kind == EntryTransition {
			lines = append(lines, fmt.Sprintf("%d. %s -> %s: %s", e.Seq, e.From, e.To, e.Note))
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s", e.Seq, e.Kind, e.Note))
	}
	return lines
}
