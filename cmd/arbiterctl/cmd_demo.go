package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/arbiter/internal/config"
	"github.com/JaimeStill/arbiter/internal/draft"
	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/executor"
	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/internal/verification"
	"github.com/JaimeStill/arbiter/internal/workflow"
	"github.com/JaimeStill/arbiter/pkg/logging"
	"github.com/JaimeStill/arbiter/pkg/storage"
)

//go:embed demo.yaml
var demoFixture []byte

// demoConfig keeps everything in process. The fixture path only satisfies
// validation; facts come from the embedded fixture.
const demoConfig = `
[logging]
level = "warn"

[storage]
backend = "memory"

[evidence]
fixture_path = "demo.yaml"

[verification]
mode = "callback"

[executor]
mode = "demo"

[workflow]
store = "memory"
`

// demoAsOf is the fixture's reference time; refund history and sessions are
// dated relative to it.
var demoAsOf = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var demoFlags struct {
	trace bool
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run sample requests through an in-process workflow",
	Long:  "Run sample requests through every gate of an in-process workflow backed by\nembedded fixtures. No server, database, or network access is needed.",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().BoolVar(&demoFlags.trace, "trace", false, "Print each request's audit trail")
}

func newDemoSystem(logOut io.Writer) (workflow.System, error) {
	cfg, err := config.Parse([]byte(demoConfig))
	if err != nil {
		return nil, err
	}
	logger := logging.New(&cfg.Logging, logOut)

	src, err := evidence.ParseFixture(demoFixture)
	if err != nil {
		return nil, err
	}
	gateway, err := evidence.New(&cfg.Evidence, src, src, logger)
	if err != nil {
		return nil, err
	}

	evaluator, err := fraud.NewEvaluator(&cfg.Workflow.Fraud)
	if err != nil {
		return nil, err
	}
	scorer, err := trust.NewScorer(&cfg.Workflow.Trust)
	if err != nil {
		return nil, err
	}
	verifier, err := verification.New(&cfg.Verification)
	if err != nil {
		return nil, err
	}
	exec, err := executor.New(&cfg.Executor, nil, storage.NewMemory(logger), logger)
	if err != nil {
		return nil, err
	}

	return workflow.New(workflow.Runtime{
		Evidence:             gateway,
		Evaluator:            evaluator,
		Scorer:               scorer,
		Verifier:             verifier,
		Executor:             exec,
		Store:                workflow.NewMemoryStore(),
		Locker:               workflow.NewLocalLocker(cfg.Workflow.Lock.WaitDuration()),
		Logger:               logger,
		Pagination:           cfg.API.Pagination,
		MaxExecutionAttempts: cfg.Executor.MaxAttempts,
		ReminderInterval:     cfg.Workflow.Reminders.IntervalDuration(),
		Now:                  func() time.Time { return demoAsOf },
	})
}

type demoRun struct {
	ctx   context.Context
	sys   workflow.System
	out   io.Writer
	actor string
	err   error
}

// step runs fn unless an earlier step failed and prints the resulting state.
func (d *demoRun) step(label string, fn func() (*workflow.Record, error)) *workflow.Record {
	if d.err != nil {
		return nil
	}
	rec, err := fn()
	if err != nil {
		d.err = fmt.Errorf("%s: %w", label, err)
		return nil
	}
	tier := ""
	if rec.Score != nil {
		tier = fmt.Sprintf(" [%s]", rec.Score.Tier)
	}
	fmt.Fprintf(d.out, "  %-28s %s%s\n", label, rec.State, tier)
	return rec
}

func (d *demoRun) submit(customer, order string, amount int64) *workflow.Record {
	return d.step("submit", func() (*workflow.Record, error) {
		return d.sys.Submit(d.ctx, intake.Command{
			Requester: intake.IdentityClaim{CustomerID: customer},
			Type:      intake.TypeRefund,
			Channel:   intake.ChannelEmail,
			Payload: intake.Payload{
				OrderID:  order,
				Amount:   amount,
				Currency: "USD",
				Reason:   "item arrived damaged",
			},
		})
	})
}

func (d *demoRun) verify(id uuid.UUID) *workflow.Record {
	return d.step("verify (otp)", func() (*workflow.Record, error) {
		return d.sys.ResolveVerification(d.ctx, id, verification.Outcome{
			Status: verification.StatusVerified,
			Method: "otp",
		})
	})
}

func (d *demoRun) decide(rec *workflow.Record, outcome workflow.DecisionOutcome, edits *draft.Edits) *workflow.Record {
	if rec == nil {
		return nil
	}
	revision := 0
	if cur := rec.CurrentDraft(); cur != nil {
		revision = cur.Revision
	}
	return d.step("decide "+string(outcome), func() (*workflow.Record, error) {
		return d.sys.Decide(d.ctx, rec.ID(), workflow.DecisionCommand{
			Reviewer:      d.actor,
			Outcome:       outcome,
			Edits:         edits,
			DraftRevision: revision,
		})
	})
}

func (d *demoRun) trace(rec *workflow.Record) {
	if d.err != nil || rec == nil || !demoFlags.trace {
		return
	}
	entries, err := d.sys.Trace(d.ctx, rec.ID())
	if err != nil {
		d.err = err
		return
	}
	d.err = printTrace(d.out, entries)
	fmt.Fprintln(d.out)
}

func runDemo(cmd *cobra.Command, _ []string) error {
	sys, err := newDemoSystem(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("demo setup: %w", err)
	}

	d := &demoRun{
		ctx:   cmd.Context(),
		sys:   sys,
		out:   cmd.OutOrStdout(),
		actor: rootFlags.actor,
	}
	if d.ctx == nil {
		d.ctx = context.Background()
	}

	fmt.Fprintln(d.out, "clean refund, edited then approved:")
	rec := d.submit("cust-clean", "ord-1", 2500)
	if rec != nil {
		rec = d.verify(rec.ID())
	}
	justification := "Order ord-1 qualifies under RP-1; refund to the original payment method."
	rec = d.decide(rec, workflow.DecisionEdit, &draft.Edits{Justification: &justification})
	rec = d.decide(rec, workflow.DecisionApprove, nil)
	d.trace(rec)

	fmt.Fprintln(d.out, "refund velocity, reviewed then rejected:")
	rec = d.submit("cust-velocity", "ord-4", 900)
	if rec != nil {
		rec = d.verify(rec.ID())
	}
	if rec != nil {
		id := rec.ID()
		rec = d.step("review", func() (*workflow.Record, error) {
			return sys.Review(d.ctx, id, workflow.ReviewCommand{Reviewer: d.actor, Note: "four refunds this month"})
		})
	}
	rec = d.decide(rec, workflow.DecisionReject, nil)
	d.trace(rec)

	fmt.Fprintln(d.out, "evidence outage, cancelled:")
	rec = d.submit("cust-outage", "ord-2", 2500)
	if rec != nil {
		rec = d.verify(rec.ID())
	}
	if rec != nil {
		id := rec.ID()
		rec = d.step("cancel", func() (*workflow.Record, error) {
			return sys.Cancel(d.ctx, id, workflow.CancelCommand{Operator: d.actor, Reason: "customer withdrew"})
		})
	}
	d.trace(rec)

	return d.err
}
