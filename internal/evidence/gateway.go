// Package evidence implements the Evidence Gateway: a typed, schema-checked
// boundary over the structured-facts and policy collaborators.
//
// Collaborators return raw JSON. Every payload is validated against a fixed
// schema before it is decoded, so downstream code only ever sees fully typed
// records. Transient failures are retried with exponential backoff; a section
// that stays unavailable is reported in Evidence.Unavailable rather than as
// an error.
package evidence

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// FactsSource is the structured-facts collaborator.
type FactsSource interface {
	Fetch(ctx context.Context, section Section, lookup Lookup) (json.RawMessage, error)
}

// PolicySource is the policy search collaborator.
type PolicySource interface {
	Search(ctx context.Context, category, query string, limit int) (json.RawMessage, error)
}

// System defines the Evidence Gateway contract.
type System interface {
	// Gather retrieves all fact sections and the policy search concurrently.
	// Sections that remain unavailable after retries are listed in
	// Evidence.Unavailable. Only schema violations and cancellation fail.
	Gather(ctx context.Context, lookup Lookup, query PolicyQuery) (*Evidence, error)
	// FetchFacts retrieves all fact sections and fails with ErrUnavailable if
	// any section could not be retrieved, or ErrNotFound if the requested
	// order does not exist.
	FetchFacts(ctx context.Context, lookup Lookup) (*StructuredFacts, error)
	// SearchPolicy returns clauses ranked by relevance, then id.
	SearchPolicy(ctx context.Context, category, query string) ([]PolicyClause, error)
}

type gateway struct {
	facts       FactsSource
	policy      PolicySource
	validator   *validator
	limiter     *rate.Limiter
	logger      *slog.Logger
	maxAttempts uint
	initial     time.Duration
	maxInterval time.Duration
	policyLimit int
	now         func() time.Time
}

// New creates an Evidence Gateway over the given collaborators.
func New(cfg *Config, facts FactsSource, policy PolicySource, logger *slog.Logger) (System, error) {
	v, err := newValidator()
	if err != nil {
		return nil, err
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit == 0 {
		limit = rate.Inf
	}

	return &gateway{
		facts:       facts,
		policy:      policy,
		validator:   v,
		limiter:     rate.NewLimiter(limit, cfg.RateBurst),
		logger:      logger.With("system", "evidence"),
		maxAttempts: uint(cfg.MaxAttempts),
		initial:     cfg.InitialIntervalDuration(),
		maxInterval: cfg.MaxIntervalDuration(),
		policyLimit: cfg.PolicyLimit,
		now:         time.Now,
	}, nil
}

type sectionStatus int

const (
	statusOK sectionStatus = iota
	statusNotFound
	statusUnavailable
)

type factsResult struct {
	facts  StructuredFacts
	status map[Section]sectionStatus
}

func (r *factsResult) unavailable() []Section {
	var out []Section
	for _, s := range FactSections {
		if r.status[s] == statusUnavailable {
			out = append(out, s)
		}
	}
	return out
}

func (g *gateway) Gather(ctx context.Context, lookup Lookup, query PolicyQuery) (*Evidence, error) {
	if err := g.validator.validateLookup(lookup); err != nil {
		return nil, err
	}

	var (
		result      *factsResult
		policy      []PolicyClause
		policyState = statusOK
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		r, err := g.fetchAll(egCtx, lookup)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	eg.Go(func() error {
		clauses, err := g.SearchPolicy(egCtx, query.Category, query.Text)
		switch {
		case err == nil:
			policy = clauses
		case errors.Is(err, ErrNotFound):
			policy = []PolicyClause{}
		case errors.Is(err, ErrUnavailable):
			policyState = statusUnavailable
			policy = []PolicyClause{}
		default:
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	ev := &Evidence{
		Facts:       result.facts,
		Policy:      policy,
		Unavailable: result.unavailable(),
		RetrievedAt: g.now().UTC(),
	}
	if policyState == statusUnavailable {
		ev.Unavailable = append(ev.Unavailable, SectionPolicy)
	}

	if len(ev.Unavailable) > 0 {
		g.logger.WarnContext(ctx, "evidence degraded",
			"customer_id", lookup.CustomerID,
			"unavailable", ev.Unavailable,
		)
	}

	return ev, nil
}

func (g *gateway) FetchFacts(ctx context.Context, lookup Lookup) (*StructuredFacts, error) {
	if err := g.validator.validateLookup(lookup); err != nil {
		return nil, err
	}

	result, err := g.fetchAll(ctx, lookup)
	if err != nil {
		return nil, err
	}

	if missing := result.unavailable(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, missing)
	}
	if lookup.OrderID != "" && result.status[SectionOrder] == statusNotFound {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, lookup.OrderID)
	}

	return &result.facts, nil
}

func (g *gateway) SearchPolicy(ctx context.Context, category, query string) ([]PolicyClause, error) {
	raw, err := g.call(ctx, string(SectionPolicy), func(ctx context.Context) (json.RawMessage, error) {
		return g.policy.Search(ctx, category, query, g.policyLimit)
	})
	if err != nil {
		return nil, err
	}

	var clauses []PolicyClause
	if err := g.validator.decode(string(SectionPolicy), raw, &clauses); err != nil {
		g.logger.ErrorContext(ctx, "policy schema violation", "error", err)
		return nil, err
	}

	slices.SortStableFunc(clauses, func(a, b PolicyClause) int {
		if c := cmp.Compare(b.Relevance, a.Relevance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if len(clauses) > g.policyLimit {
		clauses = clauses[:g.policyLimit]
	}
	if clauses == nil {
		clauses = []PolicyClause{}
	}

	return clauses, nil
}

func (g *gateway) fetchAll(ctx context.Context, lookup Lookup) (*factsResult, error) {
	result := &factsResult{
		facts: StructuredFacts{
			Transactions:  []Transaction{},
			RefundHistory: []Refund{},
			Chargebacks:   []Chargeback{},
		},
		status: make(map[Section]sectionStatus, len(FactSections)),
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)

	for _, section := range FactSections {
		eg.Go(func() error {
			raw, err := g.call(egCtx, string(section), func(ctx context.Context) (json.RawMessage, error) {
				return g.facts.Fetch(ctx, section, lookup)
			})

			status := statusOK
			switch {
			case err == nil:
			case errors.Is(err, ErrNotFound):
				status = statusNotFound
			case errors.Is(err, ErrUnavailable):
				status = statusUnavailable
				g.logger.WarnContext(ctx, "section unavailable after retries",
					"section", section,
					"error", err,
				)
			default:
				return fmt.Errorf("fetch %s: %w", section, err)
			}

			mu.Lock()
			defer mu.Unlock()

			result.status[section] = status
			if status != statusOK {
				return nil
			}

			if err := g.decodeSection(section, raw, &result.facts); err != nil {
				g.logger.ErrorContext(ctx, "facts schema violation",
					"section", section,
					"error", err,
				)
				return err
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

func (g *gateway) decodeSection(section Section, raw json.RawMessage, facts *StructuredFacts) error {
	name := string(section)

	switch section {
	case SectionOrder:
		var order Order
		if err := g.validator.decode(name, raw, &order); err != nil {
			return err
		}
		facts.Order = &order
	case SectionTransactions:
		var txns []Transaction
		if err := g.validator.decode(name, raw, &txns); err != nil {
			return err
		}
		if txns != nil {
			facts.Transactions = txns
		}
	case SectionRefundHistory:
		var refunds []Refund
		if err := g.validator.decode(name, raw, &refunds); err != nil {
			return err
		}
		if refunds != nil {
			facts.RefundHistory = refunds
		}
	case SectionChargebacks:
		var cbs []Chargeback
		if err := g.validator.decode(name, raw, &cbs); err != nil {
			return err
		}
		if cbs != nil {
			facts.Chargebacks = cbs
		}
	case SectionSession:
		var session Session
		if err := g.validator.decode(name, raw, &session); err != nil {
			return err
		}
		facts.Session = &session
	default:
		return fmt.Errorf("unknown section %s", section)
	}

	return nil
}

// call runs fn under the rate limiter, retrying ErrUnavailable with
// exponential backoff up to maxAttempts. Any other error is permanent.
func (g *gateway) call(ctx context.Context, name string, fn func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	attempt := 0
	op := func() (json.RawMessage, error) {
		attempt++
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		raw, err := fn(ctx)
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, ErrUnavailable) {
			g.logger.DebugContext(ctx, "collaborator unavailable",
				"section", name,
				"attempt", attempt,
				"error", err,
			)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.initial
	b.MaxInterval = g.maxInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(g.maxAttempts),
	)
}
