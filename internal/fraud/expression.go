package fraud

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/cel-go/cel"

	"github.com/JaimeStill/arbiter/internal/evidence"
)

// ExpressionConfig defines an operator-authored rule. Expression is a CEL
// boolean over request, facts, and as_of. Requires lists the evidence
// sections the expression reads; if any is unavailable the flag is unknown.
type ExpressionConfig struct {
	Kind       string   `toml:"kind" json:"kind"`
	Expression string   `toml:"expression" json:"expression"`
	Requires   []string `toml:"requires" json:"requires"`
	Weight     float64  `toml:"weight" json:"weight"`
	Detail     string   `toml:"detail" json:"detail"`
}

// ExpressionRule evaluates a compiled CEL program.
type ExpressionRule struct {
	kind     Kind
	source   string
	requires []evidence.Section
	detail   string
	program  cel.Program
}

func newExpressionEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("request", cel.DynType),
		cel.Variable("facts", cel.DynType),
		cel.Variable("as_of", cel.TimestampType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create expression environment: %w", err)
	}
	return env, nil
}

// NewExpressionRule compiles cfg. Compile errors and non-bool expressions fail
// here rather than at evaluation time.
func NewExpressionRule(env *cel.Env, cfg ExpressionConfig) (*ExpressionRule, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("expression rule kind required")
	}

	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile rule %s: %w", cfg.Kind, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("rule %s must evaluate to bool, got %s", cfg.Kind, out)
	}

	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program rule %s: %w", cfg.Kind, err)
	}

	requires := make([]evidence.Section, 0, len(cfg.Requires))
	for _, s := range cfg.Requires {
		sec := evidence.Section(s)
		if !slices.Contains(evidence.FactSections, sec) && sec != evidence.SectionPolicy {
			return nil, fmt.Errorf("rule %s requires unknown section %q", cfg.Kind, s)
		}
		requires = append(requires, sec)
	}

	detail := cfg.Detail
	if detail == "" {
		detail = cfg.Expression
	}

	return &ExpressionRule{
		kind:     Kind(cfg.Kind),
		source:   cfg.Expression,
		requires: requires,
		detail:   detail,
		program:  prg,
	}, nil
}

func (r *ExpressionRule) Kind() Kind { return r.kind }

func (r *ExpressionRule) Evaluate(in Input) RedFlag {
	fields := make([]string, len(r.requires))
	for i, s := range r.requires {
		fields[i] = "facts." + string(s)
	}

	for _, s := range r.requires {
		if !in.Evidence.Known(s) {
			return unknown(fields, fmt.Sprintf("%s unavailable", s))
		}
	}

	vars, err := expressionVars(in)
	if err != nil {
		return unknown(fields, err.Error())
	}

	out, _, err := r.program.Eval(vars)
	if err != nil {
		return unknown(fields, fmt.Sprintf("evaluation failed: %v", err))
	}

	val, ok := out.Value().(bool)
	if !ok {
		return unknown(fields, "expression result not bool")
	}

	flag := RedFlag{
		Value:  SignalFalse,
		Fields: fields,
		Detail: r.detail,
	}
	if val {
		flag.Value = SignalTrue
		flag.Magnitude = 1
	}
	return flag
}

func expressionVars(in Input) (map[string]any, error) {
	request, err := toMap(in.Request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	facts, err := toMap(in.Evidence.Facts)
	if err != nil {
		return nil, fmt.Errorf("encode facts: %w", err)
	}
	return map[string]any{
		"request": request,
		"facts":   facts,
		"as_of":   in.AsOf,
	}, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
