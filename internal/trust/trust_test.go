package trust_test

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/trust"
)

func newScorer(t *testing.T, cfg *trust.Config) *trust.Scorer {
	t.Helper()
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	s, err := trust.NewScorer(cfg)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func flag(kind fraud.Kind, v fraud.Signal) fraud.RedFlag {
	return fraud.RedFlag{Kind: kind, Value: v}
}

func TestScore(t *testing.T) {
	s := newScorer(t, &trust.Config{})

	tests := []struct {
		name       string
		flags      []fraud.RedFlag
		wantPoints float64
		wantTier   trust.Tier
		wantForced bool
		wantPrio   trust.Priority
	}{
		{
			name: "all clean",
			flags: []fraud.RedFlag{
				flag(fraud.KindDistanceDiscrepancy, fraud.SignalFalse),
				flag(fraud.KindRefundVelocity, fraud.SignalFalse),
				flag(fraud.KindChargebackRisk, fraud.SignalFalse),
			},
			wantPoints: 0,
			wantTier:   trust.TierFastTrack,
			wantPrio:   trust.PriorityNone,
		},
		{
			name: "velocity",
			flags: []fraud.RedFlag{
				flag(fraud.KindRefundVelocity, fraud.SignalTrue),
				flag(fraud.KindChargebackRisk, fraud.SignalFalse),
			},
			wantPoints: 1,
			wantTier:   trust.TierManualReview,
			wantPrio:   trust.PriorityLow,
		},
		{
			name: "weighted sum",
			flags: []fraud.RedFlag{
				flag(fraud.KindRefundVelocity, fraud.SignalTrue),
				flag(fraud.KindChargebackRisk, fraud.SignalTrue),
			},
			wantPoints: 3,
			wantTier:   trust.TierManualReview,
			wantPrio:   trust.PriorityHigh,
		},
		{
			name: "unknown forces manual review",
			flags: []fraud.RedFlag{
				flag(fraud.KindRefundVelocity, fraud.SignalUnknown),
				flag(fraud.KindChargebackRisk, fraud.SignalFalse),
			},
			wantPoints: 0,
			wantTier:   trust.TierManualReview,
			wantForced: true,
			wantPrio:   trust.PriorityLow,
		},
		{
			name:       "unconfigured kind uses default weight",
			flags:      []fraud.RedFlag{flag("legal_threat", fraud.SignalTrue)},
			wantPoints: 1,
			wantTier:   trust.TierManualReview,
			wantPrio:   trust.PriorityLow,
		},
		{
			name: "triggered and unknown count together",
			flags: []fraud.RedFlag{
				flag(fraud.KindRefundVelocity, fraud.SignalTrue),
				flag(fraud.KindDistanceDiscrepancy, fraud.SignalUnknown),
			},
			wantPoints: 1,
			wantTier:   trust.TierManualReview,
			wantPrio:   trust.PriorityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.flags)
			if got.Points != tt.wantPoints {
				t.Errorf("points = %v, want %v", got.Points, tt.wantPoints)
			}
			if got.Tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", got.Tier, tt.wantTier)
			}
			if got.Forced != tt.wantForced {
				t.Errorf("forced = %v, want %v", got.Forced, tt.wantForced)
			}
			if p := got.Priority(); p != tt.wantPrio {
				t.Errorf("priority = %s, want %s", p, tt.wantPrio)
			}
		})
	}
}

func TestConfiguredTiers(t *testing.T) {
	s := newScorer(t, &trust.Config{
		Tiers: map[string]string{
			"2.5": "manual_review",
			"0":   "fast_track",
		},
	})

	if got := s.Score([]fraud.RedFlag{flag(fraud.KindChargebackRisk, fraud.SignalTrue)}); got.Tier != trust.TierFastTrack {
		t.Errorf("2 points tier = %s, want fast_track", got.Tier)
	}
	if got := s.Score([]fraud.RedFlag{
		flag(fraud.KindChargebackRisk, fraud.SignalTrue),
		flag(fraud.KindRefundVelocity, fraud.SignalTrue),
	}); got.Tier != trust.TierManualReview {
		t.Errorf("3 points tier = %s, want manual_review", got.Tier)
	}

	want := []trust.Boundary{
		{Threshold: 0, Tier: trust.TierFastTrack},
		{Threshold: 2.5, Tier: trust.TierManualReview},
	}
	if diff := cmp.Diff(want, s.Tiers()); diff != "" {
		t.Errorf("tiers mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  trust.Config
	}{
		{"bad threshold", trust.Config{Tiers: map[string]string{"zero": "fast_track"}}},
		{"bad tier", trust.Config{Tiers: map[string]string{"0": "vip"}}},
		{"no floor", trust.Config{Tiers: map[string]string{"1": "manual_review"}}},
		{"negative weight", trust.Config{Weights: map[string]float64{"refund_velocity": -1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("env tiers", func(t *testing.T) {
		t.Setenv("TEST_TRUST_TIERS", "0=fast_track, 4=manual_review")
		var cfg trust.Config
		if err := cfg.Finalize(&trust.Env{Tiers: "TEST_TRUST_TIERS"}); err != nil {
			t.Fatal(err)
		}
		if cfg.Tiers["4"] != "manual_review" || len(cfg.Tiers) != 2 {
			t.Errorf("tiers = %v", cfg.Tiers)
		}
	})
}

var kinds = []fraud.Kind{
	fraud.KindDistanceDiscrepancy,
	fraud.KindRefundVelocity,
	fraud.KindChargebackRisk,
	"legal_threat",
}

var signals = []fraud.Signal{fraud.SignalTrue, fraud.SignalFalse, fraud.SignalUnknown}

func TestScoreProperties(t *testing.T) {
	s := newScorer(t, &trust.Config{Weights: map[string]float64{"legal_threat": 0.1}})

	build := func(codes []int) []fraud.RedFlag {
		flags := make([]fraud.RedFlag, len(codes))
		for i, c := range codes {
			flags[i] = flag(kinds[i%len(kinds)], signals[c])
		}
		return flags
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("score is independent of flag order", prop.ForAll(
		func(codes []int, seed int64) bool {
			flags := build(codes)
			shuffled := append([]fraud.RedFlag(nil), flags...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			return cmp.Equal(s.Score(flags), s.Score(shuffled))
		},
		gen.SliceOfN(4, gen.IntRange(0, 2)),
		gen.Int64(),
	))

	properties.Property("any unknown yields manual review", prop.ForAll(
		func(codes []int) bool {
			flags := build(codes)
			score := s.Score(flags)
			if fraud.AnyUnknown(flags) {
				return score.Tier == trust.TierManualReview
			}
			return true
		},
		gen.SliceOfN(4, gen.IntRange(0, 2)),
	))

	properties.Property("fast track only with nothing triggered", prop.ForAll(
		func(codes []int) bool {
			flags := build(codes)
			if s.Score(flags).Tier == trust.TierFastTrack {
				return !fraud.AnyTriggered(flags) && !fraud.AnyUnknown(flags)
			}
			return true
		},
		gen.SliceOfN(4, gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}

func TestPriorityRank(t *testing.T) {
	order := []trust.Priority{trust.PriorityNone, trust.PriorityLow, trust.PriorityHigh}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s rank %d should exceed %s rank %d", order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
	for _, p := range order {
		if got := trust.PriorityFromRank(p.Rank()); got != p {
			t.Errorf("PriorityFromRank(%d) = %s, want %s", p.Rank(), got, p)
		}
	}
	if p := trust.Priority("urgent"); p.Valid() || p.Rank() != -1 {
		t.Errorf("unknown priority: valid=%v rank=%d", p.Valid(), p.Rank())
	}
}
