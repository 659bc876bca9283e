// Package fraud evaluates red-flag rules over a request and its evidence.
//
// Every rule is a pure function of its Input and yields a tri-state Signal.
// A rule that cannot see the evidence it needs reports SignalUnknown; it
// never reports SignalFalse for missing data.
package fraud

import (
	"cmp"
	"slices"
	"time"

	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/intake"
)

// Kind names a red-flag rule. New rules extend the set of kinds.
type Kind string

const (
	KindDistanceDiscrepancy Kind = "distance_discrepancy"
	KindRefundVelocity      Kind = "refund_velocity"
	KindChargebackRisk      Kind = "chargeback_risk"
)

// Signal is the tri-state outcome of a rule.
type Signal string

const (
	SignalTrue    Signal = "true"
	SignalFalse   Signal = "false"
	SignalUnknown Signal = "unknown"
)

// RedFlag is one rule outcome with the evidence that produced it.
type RedFlag struct {
	Kind      Kind     `json:"kind"`
	Value     Signal   `json:"value"`
	Magnitude float64  `json:"magnitude"`
	Fields    []string `json:"fields"`
	Refs      []string `json:"refs,omitempty"`
	Detail    string   `json:"detail"`
}

// Triggered reports whether the flag is set.
func (f RedFlag) Triggered() bool { return f.Value == SignalTrue }

// Unknown reports whether the rule lacked the evidence to decide.
func (f RedFlag) Unknown() bool { return f.Value == SignalUnknown }

// Input is everything a rule may read. AsOf anchors time windows so that
// evaluation does not depend on the wall clock.
type Input struct {
	Request  *intake.Request
	Evidence *evidence.Evidence
	AsOf     time.Time
}

// Rule is a single, independently evaluable red-flag check.
type Rule interface {
	Kind() Kind
	Evaluate(in Input) RedFlag
}

// Evaluate runs every rule against in and returns the flags ordered by kind.
func Evaluate(in Input, rules []Rule) []RedFlag {
	flags := make([]RedFlag, 0, len(rules))
	for _, r := range rules {
		f := r.Evaluate(in)
		f.Kind = r.Kind()
		if f.Fields == nil {
			f.Fields = []string{}
		}
		flags = append(flags, f)
	}
	slices.SortFunc(flags, func(a, b RedFlag) int {
		return cmp.Compare(a.Kind, b.Kind)
	})
	return flags
}

// AnyTriggered reports whether any flag is true.
func AnyTriggered(flags []RedFlag) bool {
	return slices.ContainsFunc(flags, RedFlag.Triggered)
}

// AnyUnknown reports whether any flag is unknown.
func AnyUnknown(flags []RedFlag) bool {
	return slices.ContainsFunc(flags, RedFlag.Unknown)
}

// Evaluator holds a configured rule set.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator builds the built-in rules plus any configured expression rules.
func NewEvaluator(cfg *Config) (*Evaluator, error) {
	rules := []Rule{
		DistanceRule{ThresholdMiles: cfg.DistanceThresholdMiles},
		VelocityRule{Threshold: cfg.VelocityThreshold, Window: cfg.VelocityWindowDuration()},
		ChargebackRule{},
	}

	if len(cfg.Expressions) > 0 {
		env, err := newExpressionEnv()
		if err != nil {
			return nil, err
		}
		for _, ec := range cfg.Expressions {
			r, err := NewExpressionRule(env, ec)
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
		}
	}

	return NewEvaluatorWithRules(rules...), nil
}

// NewEvaluatorWithRules builds an Evaluator over an explicit rule set.
func NewEvaluatorWithRules(rules ...Rule) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate runs the configured rules.
func (e *Evaluator) Evaluate(in Input) []RedFlag {
	return Evaluate(in, e.rules)
}

// Kinds lists the configured rule kinds in evaluation order.
func (e *Evaluator) Kinds() []Kind {
	kinds := make([]Kind, len(e.rules))
	for i, r := range e.rules {
		kinds[i] = r.Kind()
	}
	return kinds
}
