package workflow

import (
	"log/slog"
	"time"

	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/executor"
	"github.com/JaimeStill/arbiter/internal/fraud"
	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/internal/verification"
	"github.com/JaimeStill/arbiter/pkg/pagination"
)

// Runtime bundles the collaborators the state machine drives.
// It is constructed by higher-level composition code from Infrastructure and Domain systems.
type Runtime struct {
	Evidence   evidence.System
	Evaluator  *fraud.Evaluator
	Scorer     *trust.Scorer
	Verifier   verification.Verifier
	Executor   executor.System
	Store      Store
	Locker     Locker
	Logger     *slog.Logger
	Pagination pagination.Config

	// MaxExecutionAttempts bounds failed executions before the request fails.
	MaxExecutionAttempts int
	// ReminderInterval is the minimum gap between reminders for one request.
	ReminderInterval time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}
