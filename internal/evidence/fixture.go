package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// FixtureSource serves facts and policy from a YAML document. It backs the
// demo mode and tests. Sections listed under a customer's unavailable key
// always fail with ErrUnavailable.
//
//	customers:
//	  cust-1:
//	    orders:
//	      ord-1: {id: ord-1, customer_id: cust-1, total: 4999, placed_at: 2026-02-01T10:00:00Z}
//	    refund_history: [...]
//	    unavailable: [chargebacks]
//	policy:
//	  - {id: RP-1, category: refund, text: "..."}
type FixtureSource struct {
	customers map[string]fixtureCustomer
	policy    []fixtureClause
}

type fixtureCustomer struct {
	Orders        map[string]any `yaml:"orders"`
	Transactions  any            `yaml:"transactions"`
	RefundHistory any            `yaml:"refund_history"`
	Chargebacks   any            `yaml:"chargebacks"`
	Session       any            `yaml:"session"`
	Unavailable   []Section      `yaml:"unavailable"`
}

type fixtureClause struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Text     string `yaml:"text"`
}

type fixtureFile struct {
	Customers map[string]fixtureCustomer `yaml:"customers"`
	Policy    []fixtureClause            `yaml:"policy"`
}

// LoadFixture reads a fixture file from disk.
func LoadFixture(path string) (*FixtureSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture document.
func ParseFixture(data []byte) (*FixtureSource, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if f.Customers == nil {
		f.Customers = map[string]fixtureCustomer{}
	}
	return &FixtureSource{
		customers: f.Customers,
		policy:    f.Policy,
	}, nil
}

func (s *FixtureSource) Fetch(ctx context.Context, section Section, lookup Lookup) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, ok := s.customers[lookup.CustomerID]
	if !ok {
		return nil, ErrNotFound
	}
	if slices.Contains(c.Unavailable, section) {
		return nil, fmt.Errorf("%w: fixture marks %s unavailable", ErrUnavailable, section)
	}

	var value any
	switch section {
	case SectionOrder:
		if lookup.OrderID == "" {
			return nil, ErrNotFound
		}
		value = c.Orders[lookup.OrderID]
	case SectionTransactions:
		value = c.Transactions
	case SectionRefundHistory:
		value = c.RefundHistory
	case SectionChargebacks:
		value = c.Chargebacks
	case SectionSession:
		value = c.Session
	default:
		return nil, fmt.Errorf("unknown section %s", section)
	}

	if value == nil {
		return nil, ErrNotFound
	}
	return json.Marshal(value)
}

// Search ranks clauses in category by the fraction of query terms their
// text contains. An empty category matches every clause.
func (s *FixtureSource) Search(ctx context.Context, category, query string, limit int) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	out := make([]PolicyClause, 0, len(s.policy))

	for _, c := range s.policy {
		if category != "" && !strings.EqualFold(c.Category, category) {
			continue
		}
		relevance := 1.0
		if len(terms) > 0 {
			text := strings.ToLower(c.Text)
			hits := 0
			for _, t := range terms {
				if strings.Contains(text, t) {
					hits++
				}
			}
			relevance = float64(hits) / float64(len(terms))
		}
		out = append(out, PolicyClause{
			ID:        c.ID,
			Text:      c.Text,
			Category:  c.Category,
			Relevance: relevance,
		})
	}

	if limit > 0 && len(out) > limit {
		slices.SortStableFunc(out, func(a, b PolicyClause) int {
			switch {
			case a.Relevance > b.Relevance:
				return -1
			case a.Relevance < b.Relevance:
				return 1
			}
			return strings.Compare(a.ID, b.ID)
		})
		out = out[:limit]
	}

	return json.Marshal(out)
}
