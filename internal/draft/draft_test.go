package draft_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/JaimeStill/arbiter/internal/draft"
	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/internal/verification"
)

var asOf = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func cleanFlags() []fraud.RedFlag {
	return []fraud.RedFlag{
		{Kind: fraud.KindChargebackRisk, Value: fraud.SignalFalse},
		{Kind: fraud.KindDistanceDiscrepancy, Value: fraud.SignalFalse},
		{Kind: fraud.KindRefundVelocity, Value: fraud.SignalFalse},
	}
}

func snapshot() draft.Snapshot {
	return draft.Snapshot{
		Request: &intake.Request{
			ID:        uuid.MustParse("0b6b8a52-5d0c-4c43-9d4a-7c9b1f7d2e01"),
			Requester: intake.IdentityClaim{CustomerID: "cust-clean"},
			Type:      intake.TypeRefund,
			Payload:   intake.Payload{OrderID: "ord-1", Amount: 2500, Currency: "usd"},
			Channel:   intake.ChannelChat,
			CreatedAt: asOf,
		},
		Evidence: &evidence.Evidence{
			Facts: evidence.StructuredFacts{
				Order: &evidence.Order{ID: "ord-1", CustomerID: "cust-clean", Total: 4999},
			},
			Policy: []evidence.PolicyClause{
				{ID: "RP-1", Text: "Refunds within 30 days of delivery.", Relevance: 0.9},
				{ID: "RP-2", Text: "Refunds go to the original payment method.", Relevance: 0.7},
				{ID: "SH-1", Text: "Lost parcels are reshipped.", Relevance: 0.4},
				{ID: "GEN-1", Text: "General terms apply.", Relevance: 0.1},
			},
			RetrievedAt: asOf,
		},
		Flags: cleanFlags(),
		Score: trust.Score{Tier: trust.TierFastTrack, Triggered: []fraud.Kind{}, Unknown: []fraud.Kind{}},
		Verification: &verification.Record{
			Status: verification.StatusVerified,
			Method: "otp",
			At:     asOf,
		},
	}
}

func mustCompose(t *testing.T, s draft.Snapshot) draft.Draft {
	t.Helper()
	d, err := draft.Compose(s)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	return d
}

func TestComposeOutcome(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*draft.Snapshot)
		want   draft.Outcome
	}{
		{
			name:   "clean refund",
			mutate: func(*draft.Snapshot) {},
			want:   draft.OutcomeApproveRefund,
		},
		{
			name:   "missing order",
			mutate: func(s *draft.Snapshot) { s.Evidence.Facts.Order = nil },
			want:   draft.OutcomeDeny,
		},
		{
			name: "order unavailable",
			mutate: func(s *draft.Snapshot) {
				s.Evidence.Facts.Order = nil
				s.Evidence.Unavailable = []evidence.Section{evidence.SectionOrder}
			},
			want: draft.OutcomeEscalate,
		},
		{
			name:   "amount exceeds total",
			mutate: func(s *draft.Snapshot) { s.Request.Payload.Amount = 5000 },
			want:   draft.OutcomeDeny,
		},
		{
			name: "triggered flag",
			mutate: func(s *draft.Snapshot) {
				s.Flags[0].Value = fraud.SignalTrue
				s.Score.Tier = trust.TierManualReview
			},
			want: draft.OutcomeEscalate,
		},
		{
			name:   "unknown flag",
			mutate: func(s *draft.Snapshot) { s.Flags[2].Value = fraud.SignalUnknown },
			want:   draft.OutcomeEscalate,
		},
		{
			name:   "manual tier",
			mutate: func(s *draft.Snapshot) { s.Score.Tier = trust.TierManualReview },
			want:   draft.OutcomeEscalate,
		},
		{
			name: "support request",
			mutate: func(s *draft.Snapshot) {
				s.Request.Type = intake.TypeSupport
				s.Evidence.Facts.Order = nil
			},
			want: draft.OutcomeEscalate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snapshot()
			tt.mutate(&s)
			d := mustCompose(t, s)
			if d.Outcome != tt.want {
				t.Errorf("outcome = %s, want %s (%s)", d.Outcome, tt.want, d.Justification)
			}
		})
	}
}

func TestComposeContent(t *testing.T) {
	d := mustCompose(t, snapshot())

	if diff := cmp.Diff([]string{"RP-1", "RP-2", "SH-1"}, d.Citations); diff != "" {
		t.Errorf("citations mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(d.Justification, "[RP-1]") || strings.Contains(d.Justification, "GEN-1") {
		t.Errorf("justification = %q", d.Justification)
	}
	if d.VerificationStatus != draft.VerificationVerified {
		t.Errorf("verification status = %s", d.VerificationStatus)
	}
	if d.Revision != 1 || d.Digest == "" {
		t.Errorf("revision = %d, digest = %q", d.Revision, d.Digest)
	}
	if d.Subject != "" {
		t.Errorf("chat draft has subject %q", d.Subject)
	}
	if !strings.Contains(d.Body, "25.00 USD") || !strings.Contains(d.Body, "ord-1") {
		t.Errorf("body = %q", d.Body)
	}

	t.Run("email channel", func(t *testing.T) {
		s := snapshot()
		s.Request.Channel = intake.ChannelEmail
		d := mustCompose(t, s)
		if d.Subject == "" || !strings.HasPrefix(d.Body, "Hello,") {
			t.Errorf("subject = %q, body = %q", d.Subject, d.Body)
		}
	})

	t.Run("deny reason carries amounts", func(t *testing.T) {
		s := snapshot()
		s.Request.Payload.Amount = 9999
		d := mustCompose(t, s)
		if !strings.Contains(d.Body, "99.99 USD exceeds the order total 49.99 USD") {
			t.Errorf("body = %q", d.Body)
		}
	})

	t.Run("unverified status", func(t *testing.T) {
		s := snapshot()
		s.Verification = nil
		if d := mustCompose(t, s); d.VerificationStatus != draft.VerificationUnverified {
			t.Errorf("status = %s", d.VerificationStatus)
		}
		s.Request.Type = intake.TypeSupport
		if d := mustCompose(t, s); d.VerificationStatus != draft.VerificationNotRequired {
			t.Errorf("status = %s", d.VerificationStatus)
		}
	})

	t.Run("no policy", func(t *testing.T) {
		s := snapshot()
		s.Evidence.Policy = nil
		d := mustCompose(t, s)
		if len(d.Citations) != 0 || !strings.Contains(d.Justification, "No policy clauses") {
			t.Errorf("draft = %+v", d)
		}
	})
}

func TestApply(t *testing.T) {
	first := mustCompose(t, snapshot())

	body := "We have approved your refund."
	second, err := draft.Apply(first, draft.Edits{Body: &body}, "rev-1")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if second.Revision != 2 || second.EditedBy != "rev-1" || second.Body != body {
		t.Errorf("second = %+v", second)
	}
	if second.Digest == first.Digest {
		t.Error("digest unchanged after edit")
	}
	if first.Body == body || first.Revision != 1 {
		t.Error("prior draft was modified")
	}

	deny := draft.OutcomeDeny
	third, err := draft.Apply(second, draft.Edits{Outcome: &deny}, "rev-2")
	if err != nil {
		t.Fatal(err)
	}
	if third.Revision != 3 || third.Outcome != draft.OutcomeDeny {
		t.Errorf("third = %+v", third)
	}

	errorCases := []struct {
		name   string
		edits  draft.Edits
		editor string
	}{
		{"no editor", draft.Edits{Body: &body}, ""},
		{"no changes", draft.Edits{}, "rev-1"},
		{"bad outcome", draft.Edits{Outcome: ptr(draft.Outcome("refund_twice"))}, "rev-1"},
		{"empty body", draft.Edits{Body: ptr("  ")}, "rev-1"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := draft.Apply(first, tt.edits, tt.editor)
			if !errors.Is(err, draft.ErrInvalidEdit) {
				t.Errorf("err = %v, want ErrInvalidEdit", err)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestComposeIdempotent(t *testing.T) {
	signals := []fraud.Signal{fraud.SignalFalse, fraud.SignalTrue, fraud.SignalUnknown}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("identical snapshots compose identical drafts", prop.ForAll(
		func(amount int64, code int, email bool, verified bool) bool {
			build := func() draft.Snapshot {
				s := snapshot()
				s.Request.Payload.Amount = amount
				s.Flags[1].Value = signals[code]
				if email {
					s.Request.Channel = intake.ChannelEmail
				}
				if !verified {
					s.Verification = nil
				}
				return s
			}
			a, err := draft.Compose(build())
			if err != nil {
				return false
			}
			b, err := draft.Compose(build())
			if err != nil {
				return false
			}
			return cmp.Equal(a, b)
		},
		gen.Int64Range(0, 20000),
		gen.IntRange(0, 2),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
