package evidence_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/JaimeStill/arbiter/internal/evidence"
)

func testConfig() *evidence.Config {
	return &evidence.Config{
		FixturePath:     "testdata/fixture.yaml",
		MaxAttempts:     3,
		InitialInterval: "1ms",
		MaxInterval:     "2ms",
		RateLimit:       1000,
		RateBurst:       100,
		PolicyLimit:     5,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixtureGateway(t *testing.T) evidence.System {
	t.Helper()
	src, err := evidence.LoadFixture("testdata/fixture.yaml")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	gw, err := evidence.New(testConfig(), src, src, discard())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw
}

func TestGather(t *testing.T) {
	gw := newFixtureGateway(t)
	ctx := context.Background()

	t.Run("typed facts and ranked policy", func(t *testing.T) {
		ev, err := gw.Gather(ctx,
			evidence.Lookup{CustomerID: "cust-clean", OrderID: "ord-1"},
			evidence.PolicyQuery{Category: "refund", Text: "refund original payment"},
		)
		if err != nil {
			t.Fatalf("Gather: %v", err)
		}

		if ev.Facts.Order == nil || ev.Facts.Order.Total != 4999 {
			t.Fatalf("order = %+v", ev.Facts.Order)
		}
		if ev.Facts.Order.ShippingGeo == nil {
			t.Error("shipping geo missing")
		}
		if len(ev.Facts.RefundHistory) != 1 {
			t.Errorf("refund history = %d, want 1", len(ev.Facts.RefundHistory))
		}
		if ev.Facts.Chargebacks == nil || len(ev.Facts.Chargebacks) != 0 {
			t.Errorf("chargebacks = %v, want known empty", ev.Facts.Chargebacks)
		}
		if ev.Facts.Session == nil || ev.Facts.Session.Geo == nil {
			t.Error("session geo missing")
		}
		if len(ev.Unavailable) != 0 {
			t.Errorf("unavailable = %v, want none", ev.Unavailable)
		}

		if len(ev.Policy) != 2 {
			t.Fatalf("policy = %d clauses, want 2", len(ev.Policy))
		}
		if ev.Policy[0].ID != "RP-1" {
			t.Errorf("top clause = %s, want RP-1", ev.Policy[0].ID)
		}
		if ev.Policy[0].Relevance < ev.Policy[1].Relevance {
			t.Error("policy not ranked by relevance")
		}
	})

	t.Run("outage degrades to unavailable", func(t *testing.T) {
		ev, err := gw.Gather(ctx,
			evidence.Lookup{CustomerID: "cust-outage", OrderID: "ord-2"},
			evidence.PolicyQuery{Category: "refund"},
		)
		if err != nil {
			t.Fatalf("Gather: %v", err)
		}
		if ev.Known(evidence.SectionRefundHistory) {
			t.Error("refund history reported known")
		}
		if !ev.Known(evidence.SectionChargebacks) {
			t.Error("chargebacks reported unknown")
		}
	})

	t.Run("missing order is known nil", func(t *testing.T) {
		ev, err := gw.Gather(ctx,
			evidence.Lookup{CustomerID: "cust-clean", OrderID: "ord-404"},
			evidence.PolicyQuery{Category: "refund"},
		)
		if err != nil {
			t.Fatalf("Gather: %v", err)
		}
		if ev.Facts.Order != nil {
			t.Errorf("order = %+v, want nil", ev.Facts.Order)
		}
		if !ev.Known(evidence.SectionOrder) {
			t.Error("order reported unavailable")
		}
	})

	t.Run("schema violation fails", func(t *testing.T) {
		_, err := gw.Gather(ctx,
			evidence.Lookup{CustomerID: "cust-bad", OrderID: "ord-3"},
			evidence.PolicyQuery{Category: "refund"},
		)
		if !errors.Is(err, evidence.ErrSchemaViolation) {
			t.Errorf("err = %v, want ErrSchemaViolation", err)
		}
	})

	t.Run("lookup validated before dispatch", func(t *testing.T) {
		_, err := gw.Gather(ctx, evidence.Lookup{}, evidence.PolicyQuery{})
		if !errors.Is(err, evidence.ErrSchemaViolation) {
			t.Errorf("err = %v, want ErrSchemaViolation", err)
		}
	})
}

func TestFetchFacts(t *testing.T) {
	gw := newFixtureGateway(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		lookup  evidence.Lookup
		wantErr error
	}{
		{"clean", evidence.Lookup{CustomerID: "cust-clean", OrderID: "ord-1"}, nil},
		{"unavailable", evidence.Lookup{CustomerID: "cust-outage", OrderID: "ord-2"}, evidence.ErrUnavailable},
		{"order not found", evidence.Lookup{CustomerID: "cust-clean", OrderID: "nope"}, evidence.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, err := gw.FetchFacts(ctx, tt.lookup)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("FetchFacts: %v", err)
				}
				if facts.Order == nil {
					t.Error("order missing")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

type flakySource struct {
	failures int32
	calls    atomic.Int32
}

func (s *flakySource) Fetch(_ context.Context, section evidence.Section, _ evidence.Lookup) (json.RawMessage, error) {
	if section != evidence.SectionRefundHistory {
		return nil, evidence.ErrNotFound
	}
	if s.calls.Add(1) <= s.failures {
		return nil, evidence.ErrUnavailable
	}
	return json.RawMessage(`[{"id":"ref-1","amount":100,"created_at":"2026-02-20T00:00:00Z"}]`), nil
}

func (s *flakySource) Search(context.Context, string, string, int) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	lookup := evidence.Lookup{CustomerID: "c"}

	t.Run("recovers within attempts", func(t *testing.T) {
		src := &flakySource{failures: 2}
		gw, err := evidence.New(testConfig(), src, src, discard())
		if err != nil {
			t.Fatal(err)
		}

		ev, err := gw.Gather(ctx, lookup, evidence.PolicyQuery{})
		if err != nil {
			t.Fatalf("Gather: %v", err)
		}
		if !ev.Known(evidence.SectionRefundHistory) {
			t.Error("refund history unavailable after recovery")
		}
		if len(ev.Facts.RefundHistory) != 1 {
			t.Errorf("refunds = %d, want 1", len(ev.Facts.RefundHistory))
		}
		if got := src.calls.Load(); got != 3 {
			t.Errorf("calls = %d, want 3", got)
		}
	})

	t.Run("bounded attempts", func(t *testing.T) {
		src := &flakySource{failures: 100}
		gw, err := evidence.New(testConfig(), src, src, discard())
		if err != nil {
			t.Fatal(err)
		}

		ev, err := gw.Gather(ctx, lookup, evidence.PolicyQuery{})
		if err != nil {
			t.Fatalf("Gather: %v", err)
		}
		if ev.Known(evidence.SectionRefundHistory) {
			t.Error("refund history known after exhausting retries")
		}
		if got := src.calls.Load(); got != 3 {
			t.Errorf("calls = %d, want 3", got)
		}
	})
}

func TestHTTPSource(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/facts/order":
			if r.URL.Query().Get("order_id") != "ord-1" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte(`{"id":"ord-1","customer_id":"c","total":10,"placed_at":"2026-01-01T00:00:00Z"}`))
		case "/facts/chargebacks":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/policy/search":
			w.Write([]byte(`[{"id":"B","text":"b","category":"refund","relevance":0.5},{"id":"A","text":"a","category":"refund","relevance":0.5}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src, err := evidence.NewHTTPSource(srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	if _, err := src.Fetch(ctx, evidence.SectionOrder, evidence.Lookup{CustomerID: "c", OrderID: "ord-1"}); err != nil {
		t.Errorf("order fetch: %v", err)
	}
	if _, err := src.Fetch(ctx, evidence.SectionOrder, evidence.Lookup{CustomerID: "c", OrderID: "x"}); !errors.Is(err, evidence.ErrNotFound) {
		t.Errorf("missing order err = %v, want ErrNotFound", err)
	}
	if _, err := src.Fetch(ctx, evidence.SectionChargebacks, evidence.Lookup{CustomerID: "c"}); !errors.Is(err, evidence.ErrUnavailable) {
		t.Errorf("503 err = %v, want ErrUnavailable", err)
	}

	gw, err := evidence.New(testConfig(), src, src, discard())
	if err != nil {
		t.Fatal(err)
	}
	clauses, err := gw.SearchPolicy(ctx, "refund", "anything")
	if err != nil {
		t.Fatalf("SearchPolicy: %v", err)
	}
	if len(clauses) != 2 || clauses[0].ID != "A" {
		t.Errorf("clauses = %+v, want ties broken by id", clauses)
	}

	if _, err := evidence.NewHTTPSource("not a url", nil); err == nil {
		t.Error("expected error for invalid base url")
	}
}

func TestConfigFinalize(t *testing.T) {
	t.Run("requires a source", func(t *testing.T) {
		var cfg evidence.Config
		if err := cfg.Finalize(nil); err == nil {
			t.Error("expected error without base_url or fixture_path")
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("TEST_EVIDENCE_BASE_URL", "http://facts.local")
		t.Setenv("TEST_EVIDENCE_MAX_ATTEMPTS", "7")

		var cfg evidence.Config
		env := &evidence.Env{BaseURL: "TEST_EVIDENCE_BASE_URL", MaxAttempts: "TEST_EVIDENCE_MAX_ATTEMPTS"}
		if err := cfg.Finalize(env); err != nil {
			t.Fatalf("Finalize: %v", err)
		}
		if cfg.BaseURL != "http://facts.local" || cfg.MaxAttempts != 7 {
			t.Errorf("got %+v", cfg)
		}
		if cfg.PolicyLimit != 5 {
			t.Errorf("policy_limit default = %d, want 5", cfg.PolicyLimit)
		}
	})
}
