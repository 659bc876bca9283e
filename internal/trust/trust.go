// Package trust derives a composite trust score and routing tier from red flags.
package trust

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/JaimeStill/arbiter/internal/fraud"
)

// Tier is a routing tier.
type Tier string

const (
	TierFastTrack    Tier = "fast_track"
	TierManualReview Tier = "manual_review"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierFastTrack || t == TierManualReview
}

// Boundary maps scores at or above Threshold to Tier, up to the next boundary.
type Boundary struct {
	Threshold float64 `json:"threshold"`
	Tier      Tier    `json:"tier"`
}

// Score is an immutable scoring result for one flag set.
type Score struct {
	Points    float64      `json:"points"`
	Tier      Tier         `json:"tier"`
	Triggered []fraud.Kind `json:"triggered"`
	Unknown   []fraud.Kind `json:"unknown"`
	Forced    bool         `json:"forced"`
}

// Priority orders the human review queue by how many signals need attention.
type Priority string

const (
	PriorityNone Priority = "none"
	PriorityLow  Priority = "low"
	PriorityHigh Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityNone || p == PriorityLow || p == PriorityHigh
}

// Rank orders priorities for storage and sorting. Unknown priorities rank -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 1
	case PriorityNone:
		return 0
	default:
		return -1
	}
}

// PriorityFromRank is the inverse of Rank.
func PriorityFromRank(rank int) Priority {
	switch {
	case rank >= 2:
		return PriorityHigh
	case rank == 1:
		return PriorityLow
	default:
		return PriorityNone
	}
}

// Priority counts triggered and undetermined signals: one is low priority,
// two or more is high.
func (s Score) Priority() Priority {
	switch n := len(s.Triggered) + len(s.Unknown); {
	case n >= 2:
		return PriorityHigh
	case n == 1:
		return PriorityLow
	default:
		return PriorityNone
	}
}

// Scorer holds weights and tier boundaries.
type Scorer struct {
	weights       map[fraud.Kind]float64
	defaultWeight float64
	tiers         []Boundary
}

// NewScorer builds a Scorer from a finalized Config.
func NewScorer(cfg *Config) (*Scorer, error) {
	tiers, err := cfg.Boundaries()
	if err != nil {
		return nil, err
	}

	weights := make(map[fraud.Kind]float64, len(cfg.Weights))
	for k, w := range cfg.Weights {
		weights[fraud.Kind(k)] = w
	}

	return &Scorer{
		weights:       weights,
		defaultWeight: cfg.DefaultWeight,
		tiers:         tiers,
	}, nil
}

// Weight returns the weight assigned to kind.
func (s *Scorer) Weight(kind fraud.Kind) float64 {
	if w, ok := s.weights[kind]; ok {
		return w
	}
	return s.defaultWeight
}

// Tiers returns the tier boundaries in ascending threshold order.
func (s *Scorer) Tiers() []Boundary {
	return slices.Clone(s.tiers)
}

// Score sums the weights of true flags and maps the sum to a tier. Any
// unknown flag forces manual review. The result does not depend on the
// order of flags.
func (s *Scorer) Score(flags []fraud.RedFlag) Score {
	triggered := []fraud.Kind{}
	unknown := []fraud.Kind{}

	for _, f := range flags {
		switch f.Value {
		case fraud.SignalTrue:
			triggered = append(triggered, f.Kind)
		case fraud.SignalUnknown:
			unknown = append(unknown, f.Kind)
		}
	}

	slices.Sort(triggered)
	triggered = slices.Compact(triggered)
	slices.Sort(unknown)
	unknown = slices.Compact(unknown)

	var points float64
	for _, k := range triggered {
		points += s.Weight(k)
	}

	score := Score{
		Points:    points,
		Tier:      s.tierFor(points),
		Triggered: triggered,
		Unknown:   unknown,
	}
	if len(unknown) > 0 && score.Tier != TierManualReview {
		score.Tier = TierManualReview
		score.Forced = true
	}
	return score
}

func (s *Scorer) tierFor(points float64) Tier {
	tier := TierManualReview
	for _, b := range s.tiers {
		if b.Threshold > points {
			break
		}
		tier = b.Tier
	}
	return tier
}

func parseBoundaries(raw map[string]string) ([]Boundary, error) {
	out := make([]Boundary, 0, len(raw))
	for k, v := range raw {
		threshold, err := strconv.ParseFloat(k, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid tier threshold %q: %w", k, err)
		}
		tier := Tier(v)
		if !tier.Valid() {
			return nil, fmt.Errorf("invalid tier %q at threshold %s", v, k)
		}
		out = append(out, Boundary{Threshold: threshold, Tier: tier})
	}
	slices.SortFunc(out, func(a, b Boundary) int {
		return cmp.Compare(a.Threshold, b.Threshold)
	})
	return out, nil
}
