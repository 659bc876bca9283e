// Package draft composes the reviewable outcome document for a request.
//
// Compose is a pure function of its Snapshot. It reads no clock and mints no
// ids, so identical snapshots produce byte-identical drafts.
package draft

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/internal/verification"
	"github.com/JaimeStill/arbiter/pkg/formatting"
)

// MaxCitations bounds the policy clauses cited in a justification.
const MaxCitations = 3

// ErrInvalidEdit indicates an edit that would produce an invalid draft.
var ErrInvalidEdit = errors.New("invalid draft edit")

// Outcome is the decision a draft proposes.
type Outcome string

const (
	OutcomeApproveRefund Outcome = "approve_refund"
	OutcomeDeny          Outcome = "deny"
	OutcomeEscalate      Outcome = "escalate"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeApproveRefund, OutcomeDeny, OutcomeEscalate:
		return true
	}
	return false
}

// Verification status strings carried on a draft.
const (
	VerificationVerified    = "verified"
	VerificationUnverified  = "unverified"
	VerificationNotRequired = "not_required"
)

// Draft is one revision of the proposed outcome. Revisions are appended to a
// request's history; a superseded draft is never modified.
type Draft struct {
	Revision           int            `json:"revision"`
	Outcome            Outcome        `json:"outcome"`
	Justification      string         `json:"justification"`
	Citations          []string       `json:"citations"`
	VerificationStatus string         `json:"verification_status"`
	Channel            intake.Channel `json:"channel"`
	Subject            string         `json:"subject,omitempty"`
	Body               string         `json:"body"`
	InternalNotes      string         `json:"internal_notes"`
	EditedBy           string         `json:"edited_by,omitempty"`
	Digest             string         `json:"digest"`
}

// Snapshot is everything a draft is composed from.
type Snapshot struct {
	Request      *intake.Request
	Evidence     *evidence.Evidence
	Flags        []fraud.RedFlag
	Score        trust.Score
	Verification *verification.Record
}

// Edits are reviewer changes to a draft. Nil fields keep the prior value.
type Edits struct {
	Outcome       *Outcome `json:"outcome,omitempty"`
	Justification *string  `json:"justification,omitempty"`
	Subject       *string  `json:"subject,omitempty"`
	Body          *string  `json:"body,omitempty"`
	InternalNotes *string  `json:"internal_notes,omitempty"`
}

// Empty reports whether the edits change nothing.
func (e Edits) Empty() bool {
	return e.Outcome == nil && e.Justification == nil && e.Subject == nil &&
		e.Body == nil && e.InternalNotes == nil
}

// Compose builds the first revision of a draft from s.
func Compose(s Snapshot) (Draft, error) {
	if s.Request == nil || s.Evidence == nil {
		return Draft{}, fmt.Errorf("compose: request and evidence required")
	}

	outcome, reason := decide(s)
	citations := cite(s.Evidence.Policy)

	d := Draft{
		Revision:           1,
		Outcome:            outcome,
		Justification:      justify(reason, citations, s.Evidence.Policy),
		Citations:          citations,
		VerificationStatus: verificationStatus(s.Request, s.Verification),
		Channel:            s.Request.Channel,
		InternalNotes:      internalNotes(s),
	}

	subject, body, err := render(s.Request, outcome, d.Channel, reason)
	if err != nil {
		return Draft{}, fmt.Errorf("compose: %w", err)
	}
	d.Subject = subject
	d.Body = body

	if d.Digest, err = digest(d); err != nil {
		return Draft{}, fmt.Errorf("compose: %w", err)
	}
	return d, nil
}

// Apply produces the revision that supersedes prev with edits applied.
func Apply(prev Draft, edits Edits, editor string) (Draft, error) {
	if strings.TrimSpace(editor) == "" {
		return Draft{}, fmt.Errorf("%w: editor required", ErrInvalidEdit)
	}
	if edits.Empty() {
		return Draft{}, fmt.Errorf("%w: no changes", ErrInvalidEdit)
	}

	next := prev
	next.Citations = append([]string{}, prev.Citations...)
	next.Revision = prev.Revision + 1
	next.EditedBy = editor

	if edits.Outcome != nil {
		if !edits.Outcome.Valid() {
			return Draft{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidEdit, *edits.Outcome)
		}
		next.Outcome = *edits.Outcome
	}
	if edits.Justification != nil {
		next.Justification = *edits.Justification
	}
	if edits.Subject != nil {
		next.Subject = *edits.Subject
	}
	if edits.Body != nil {
		next.Body = *edits.Body
	}
	if edits.InternalNotes != nil {
		next.InternalNotes = *edits.InternalNotes
	}
	if strings.TrimSpace(next.Body) == "" {
		return Draft{}, fmt.Errorf("%w: body must not be empty", ErrInvalidEdit)
	}

	var err error
	if next.Digest, err = digest(next); err != nil {
		return Draft{}, err
	}
	return next, nil
}

func decide(s Snapshot) (Outcome, string) {
	req := s.Request
	monetary := req.IsRefund() || req.Type == intake.TypeBillingDispute

	if monetary {
		order := s.Evidence.Facts.Order
		switch {
		case !s.Evidence.Known(evidence.SectionOrder):
			return OutcomeEscalate, "the order record could not be retrieved"
		case order == nil:
			return OutcomeDeny, "no matching order was found for this customer"
		case req.Payload.Amount > order.Total:
			return OutcomeDeny, fmt.Sprintf(
				"the requested amount %s exceeds the order total %s",
				formatting.FormatMoney(req.Payload.Amount, req.Payload.Currency),
				formatting.FormatMoney(order.Total, order.Currency),
			)
		}
	}

	if fraud.AnyTriggered(s.Flags) || fraud.AnyUnknown(s.Flags) || s.Score.Tier != trust.TierFastTrack {
		return OutcomeEscalate, "risk signals require a specialist decision"
	}

	if !monetary {
		return OutcomeEscalate, "the request needs a support agent rather than a refund"
	}
	return OutcomeApproveRefund, "the request is within policy and all risk checks passed"
}

func cite(policy []evidence.PolicyClause) []string {
	n := min(len(policy), MaxCitations)
	out := make([]string, 0, n)
	for _, c := range policy[:n] {
		out = append(out, c.ID)
	}
	return out
}

func justify(reason string, citations []string, policy []evidence.PolicyClause) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(reason[:1]) + reason[1:] + ".")
	if len(citations) == 0 {
		b.WriteString(" No policy clauses were retrieved.")
		return b.String()
	}
	for _, c := range policy[:len(citations)] {
		fmt.Fprintf(&b, " [%s] %s", c.ID, c.Text)
	}
	return b.String()
}

func verificationStatus(req *intake.Request, rec *verification.Record) string {
	switch {
	case rec != nil && rec.Status == verification.StatusVerified:
		return VerificationVerified
	case req.RequiresVerification():
		return VerificationUnverified
	default:
		return VerificationNotRequired
	}
}

func internalNotes(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trust score %.2f (%s", s.Score.Points, s.Score.Tier)
	if s.Score.Forced {
		b.WriteString(", forced by undetermined signals")
	}
	b.WriteString("). ")
	b.WriteString(fraud.Summarize(s.Flags))
	if len(s.Evidence.Unavailable) > 0 {
		sections := make([]string, len(s.Evidence.Unavailable))
		for i, sec := range s.Evidence.Unavailable {
			sections[i] = string(sec)
		}
		fmt.Fprintf(&b, " Unavailable evidence: %s.", strings.Join(sections, ", "))
	}
	if s.Verification != nil {
		fmt.Fprintf(&b, " Identity %s via %s.", s.Verification.Status, s.Verification.Method)
	}
	return b.String()
}

// digest hashes the RFC 8785 canonical form of the content fields.
func digest(d Draft) (string, error) {
	content := struct {
		Outcome            Outcome        `json:"outcome"`
		Justification      string         `json:"justification"`
		Citations          []string       `json:"citations"`
		VerificationStatus string         `json:"verification_status"`
		Channel            intake.Channel `json:"channel"`
		Subject            string         `json:"subject"`
		Body               string         `json:"body"`
		InternalNotes      string         `json:"internal_notes"`
	}{
		d.Outcome, d.Justification, d.Citations, d.VerificationStatus,
		d.Channel, d.Subject, d.Body, d.InternalNotes,
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("marshal draft: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize draft: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
