package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/JaimeStill/arbiter/internal/draft"
	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/executor"
	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/internal/verification"
	"github.com/JaimeStill/arbiter/internal/workflow"
	"github.com/JaimeStill/arbiter/pkg/storage"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockExecutor struct {
	executeFn func(executor.Authorization, draft.Draft) (*executor.Result, error)
	calls     int
}

func (m *mockExecutor) Execute(ctx context.Context, auth executor.Authorization, req *intake.Request, d draft.Draft) (*executor.Result, error) {
	m.calls++
	return m.executeFn(auth, d)
}

func (m *mockExecutor) Mode() executor.Mode { return executor.ModeDemo }

// flakySender fails the first failSends deliveries and counts refunds.
type flakySender struct {
	mu        sync.Mutex
	failSends int
	refunds   []executor.RefundOrder
	sent      []executor.Message
}

func (s *flakySender) Send(ctx context.Context, msg executor.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSends > 0 {
		s.failSends--
		return "", errors.New("smtp: connection reset")
	}
	s.sent = append(s.sent, msg)
	return fmt.Sprintf("msg-%d", len(s.sent)), nil
}

func (s *flakySender) Refund(ctx context.Context, order executor.RefundOrder) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds = append(s.refunds, order)
	return fmt.Sprintf("rf-%d", len(s.refunds)), nil
}

// cancellingFacts cancels the submitting caller on the first fetch and then
// answers from the wrapped source.
type cancellingFacts struct {
	evidence.FactsSource
	once   sync.Once
	cancel context.CancelFunc
}

func (c *cancellingFacts) Fetch(ctx context.Context, section evidence.Section, lookup evidence.Lookup) (json.RawMessage, error) {
	c.once.Do(c.cancel)
	return c.FactsSource.Fetch(ctx, section, lookup)
}

func liveExecutor(t testing.TB, sender executor.Sender) executor.System {
	t.Helper()
	exec, err := executor.New(&executor.Config{Mode: executor.ModeLive}, sender, storage.NewMemory(discard()), discard())
	if err != nil {
		t.Fatal(err)
	}
	return exec
}

type harness struct {
	sys   workflow.System
	store *workflow.MemoryStore
	clock *fakeClock
}

type option func(*workflow.Runtime)

func withVerifier(v verification.Verifier) option {
	return func(rt *workflow.Runtime) { rt.Verifier = v }
}

func withExecutor(e executor.System) option {
	return func(rt *workflow.Runtime) { rt.Executor = e }
}

func withFacts(f evidence.FactsSource, p evidence.PolicySource) option {
	return func(rt *workflow.Runtime) {
		gw, err := evidence.New(gatewayConfig(), f, p, discard())
		if err != nil {
			panic(err)
		}
		rt.Evidence = gw
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gatewayConfig() *evidence.Config {
	return &evidence.Config{
		FixturePath:     "testdata/scenarios.yaml",
		MaxAttempts:     1,
		InitialInterval: "1ms",
		MaxInterval:     "1ms",
		RateBurst:       100,
		PolicyLimit:     5,
	}
}

func newHarness(t testing.TB, opts ...option) *harness {
	t.Helper()

	src, err := evidence.LoadFixture("testdata/scenarios.yaml")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	gw, err := evidence.New(gatewayConfig(), src, src, discard())
	if err != nil {
		t.Fatalf("evidence: %v", err)
	}

	fraudCfg := &fraud.Config{}
	if err := fraudCfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}
	evaluator, err := fraud.NewEvaluator(fraudCfg)
	if err != nil {
		t.Fatal(err)
	}

	trustCfg := &trust.Config{}
	if err := trustCfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}
	scorer, err := trust.NewScorer(trustCfg)
	if err != nil {
		t.Fatal(err)
	}

	exec, err := executor.New(&executor.Config{Mode: executor.ModeDemo}, nil, storage.NewMemory(discard()), discard())
	if err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{now: epoch}
	store := workflow.NewMemoryStore()

	rt := workflow.Runtime{
		Evidence:             gw,
		Evaluator:            evaluator,
		Scorer:               scorer,
		Verifier:             verification.AutoVerifier{},
		Executor:             exec,
		Store:                store,
		Locker:               workflow.NewLocalLocker(time.Second),
		Logger:               discard(),
		MaxExecutionAttempts: 2,
		ReminderInterval:     time.Hour,
		Now:                  clock.Now,
	}
	for _, opt := range opts {
		opt(&rt)
	}

	sys, err := workflow.New(rt)
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	return &harness{sys: sys, store: store, clock: clock}
}

func refund(customer, order string, amount int64) intake.Command {
	return intake.Command{
		Requester: intake.IdentityClaim{CustomerID: customer},
		Type:      intake.TypeRefund,
		Payload: intake.Payload{
			OrderID:  order,
			Amount:   amount,
			Currency: "USD",
			Reason:   "refund original payment",
		},
	}
}

func (h *harness) submit(t testing.TB, cmd intake.Command) *workflow.Record {
	t.Helper()
	rec, err := h.sys.Submit(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return rec
}

func visited(rec *workflow.Record, state workflow.State) bool {
	for _, e := range rec.Audit {
		if e.Kind == workflow.EntryTransition && e.To == state {
			return true
		}
	}
	return false
}

func flagValue(rec *workflow.Record, kind fraud.Kind) fraud.Signal {
	for _, f := range rec.Flags {
		if f.Kind == kind {
			return f.Value
		}
	}
	return ""
}
