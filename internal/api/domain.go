package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/arbiter/internal/config"
	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/executor"
	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/requests"
	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/internal/verification"
	"github.com/JaimeStill/arbiter/internal/workflow"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Evidence evidence.System
	Executor executor.System
	Workflow workflow.System
	Reminder *workflow.Reminder
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	gateway, err := newEvidence(&cfg.Evidence, runtime)
	if err != nil {
		return nil, fmt.Errorf("evidence: %w", err)
	}

	evaluator, err := fraud.NewEvaluator(&cfg.Workflow.Fraud)
	if err != nil {
		return nil, fmt.Errorf("fraud: %w", err)
	}

	scorer, err := trust.NewScorer(&cfg.Workflow.Trust)
	if err != nil {
		return nil, fmt.Errorf("trust: %w", err)
	}

	verifier, err := verification.New(&cfg.Verification)
	if err != nil {
		return nil, fmt.Errorf("verification: %w", err)
	}

	exec, err := newExecutor(&cfg.Executor, runtime)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	sys, err := workflow.New(workflow.Runtime{
		Evidence:             gateway,
		Evaluator:            evaluator,
		Scorer:               scorer,
		Verifier:             verifier,
		Executor:             exec,
		Store:                newStore(&cfg.Workflow, runtime),
		Locker:               newLocker(&cfg.Workflow.Lock, runtime),
		Logger:               runtime.Logger,
		Pagination:           runtime.Pagination,
		MaxExecutionAttempts: cfg.Executor.MaxAttempts,
		ReminderInterval:     cfg.Workflow.Reminders.IntervalDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}

	reminder := workflow.NewReminder(
		sys,
		cfg.Workflow.Reminders.AfterDuration(),
		cfg.Workflow.Reminders.IntervalDuration(),
		runtime.Logger,
	)

	return &Domain{
		Evidence: gateway,
		Executor: exec,
		Workflow: sys,
		Reminder: reminder,
	}, nil
}

func newEvidence(cfg *evidence.Config, runtime *Runtime) (evidence.System, error) {
	if cfg.FixturePath != "" {
		src, err := evidence.LoadFixture(cfg.FixturePath)
		if err != nil {
			return nil, err
		}
		runtime.Logger.Info("serving evidence from fixture", "path", cfg.FixturePath)
		return evidence.New(cfg, src, src, runtime.Logger)
	}

	src, err := evidence.NewHTTPSource(cfg.BaseURL, &http.Client{Timeout: cfg.TimeoutDuration()})
	if err != nil {
		return nil, err
	}
	return evidence.New(cfg, src, src, runtime.Logger)
}

func newExecutor(cfg *executor.Config, runtime *Runtime) (executor.System, error) {
	var sender executor.Sender
	if cfg.Mode == executor.ModeLive {
		s, err := executor.NewHTTPSender(cfg.BaseURL, &http.Client{Timeout: cfg.TimeoutDuration()})
		if err != nil {
			return nil, err
		}
		sender = s
	}
	return executor.New(cfg, sender, runtime.Storage, runtime.Logger)
}

func newStore(cfg *config.WorkflowConfig, runtime *Runtime) workflow.Store {
	if cfg.Store == config.StoreMemory || runtime.Database == nil {
		return workflow.NewMemoryStore()
	}
	return requests.NewStore(runtime.Database.Connection(), runtime.Logger)
}

func newLocker(cfg *config.LockConfig, runtime *Runtime) workflow.Locker {
	if cfg.Backend == config.LockRedis && runtime.Redis != nil {
		return workflow.NewRedisLocker(runtime.Redis, cfg.Prefix, cfg.TTLDuration(), cfg.WaitDuration(), runtime.Logger)
	}
	return workflow.NewLocalLocker(cfg.WaitDuration())
}
