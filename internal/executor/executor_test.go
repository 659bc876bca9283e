package executor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/draft"
	"github.com/JaimeStill/arbiter/internal/executor"
	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/pkg/storage"
)

type mockSender struct {
	sendFn   func(executor.Message) (string, error)
	refundFn func(executor.RefundOrder) (string, error)
	sent     []executor.Message
	refunds  []executor.RefundOrder
}

func (m *mockSender) Send(ctx context.Context, msg executor.Message) (string, error) {
	m.sent = append(m.sent, msg)
	if m.sendFn != nil {
		return m.sendFn(msg)
	}
	return "msg-1", nil
}

func (m *mockSender) Refund(ctx context.Context, order executor.RefundOrder) (string, error) {
	m.refunds = append(m.refunds, order)
	if m.refundFn != nil {
		return m.refundFn(order)
	}
	return "rf-1", nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixtures() (*intake.Request, draft.Draft) {
	req := &intake.Request{
		ID:        uuid.New(),
		Requester: intake.IdentityClaim{CustomerID: "cust-clean", Email: "ana@example.com"},
		Type:      intake.TypeRefund,
		Payload:   intake.Payload{OrderID: "ord-1", Amount: 2500, Currency: "USD"},
		Channel:   intake.ChannelEmail,
	}
	d := draft.Draft{
		Revision: 2,
		Outcome:  draft.OutcomeApproveRefund,
		Channel:  intake.ChannelEmail,
		Subject:  "Your refund has been approved",
		Body:     "Approved.",
		Digest:   "abc",
	}
	return req, d
}

func approved(state string, revision int) executor.Authorization {
	return executor.Authorization{
		State: state,
		Decision: executor.Approval{
			DecisionID:    uuid.New(),
			Reviewer:      "rev-1",
			Outcome:       "approve",
			DraftRevision: revision,
		},
	}
}

func newExecutor(t *testing.T, mode executor.Mode, sender executor.Sender, store storage.System) executor.System {
	t.Helper()
	cfg := &executor.Config{Mode: mode, BaseURL: "http://actions.local"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}
	sys, err := executor.New(cfg, sender, store, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sys
}

func TestExecuteAuthorization(t *testing.T) {
	req, d := fixtures()
	sender := &mockSender{}
	sys := newExecutor(t, executor.ModeLive, sender, storage.NewMemory(discard()))

	tests := []struct {
		name string
		auth executor.Authorization
	}{
		{"wrong state", approved("drafted", 2)},
		{"executed state", approved("executed", 2)},
		{"reject decision", executor.Authorization{
			State:    executor.StateAwaitingApproval,
			Decision: executor.Approval{Outcome: "reject", DraftRevision: 2},
		}},
		{"stale revision", approved(executor.StateAwaitingApproval, 1)},
		{"no decision", executor.Authorization{State: executor.StateAwaitingApproval}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sys.Execute(context.Background(), tt.auth, req, d)
			if !errors.Is(err, executor.ErrNotAuthorized) {
				t.Errorf("err = %v, want ErrNotAuthorized", err)
			}
		})
	}

	if len(sender.sent)+len(sender.refunds) != 0 {
		t.Error("collaborator called without authorization")
	}
}

func TestExecuteLive(t *testing.T) {
	req, d := fixtures()
	sender := &mockSender{}
	store := storage.NewMemory(discard())
	sys := newExecutor(t, executor.ModeLive, sender, store)

	res, err := sys.Execute(context.Background(), approved(executor.StateAwaitingApproval, 2), req, d)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Action != executor.ActionIssueRefund || res.Simulated || res.ExternalRef != "rf-1" {
		t.Errorf("result = %+v", res)
	}
	if len(sender.refunds) != 1 || sender.refunds[0].Amount != 2500 {
		t.Errorf("refunds = %+v", sender.refunds)
	}
	if len(sender.sent) != 1 || sender.sent[0].Subject != d.Subject {
		t.Errorf("sent = %+v", sender.sent)
	}

	wantKey := "actions/" + req.ID.String() + "/" + res.ID.String() + ".json"
	if res.ArtifactKey != wantKey {
		t.Errorf("artifact key = %s, want %s", res.ArtifactKey, wantKey)
	}
	var art struct {
		Result executor.Result `json:"result"`
		Draft  draft.Draft     `json:"draft"`
	}
	rc, err := store.Download(context.Background(), wantKey)
	if err != nil {
		t.Fatalf("download artifact: %v", err)
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(&art); err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if art.Result.ID != res.ID || art.Draft.Revision != 2 {
		t.Errorf("artifact = %+v", art)
	}
}

func TestExecuteFailure(t *testing.T) {
	req, d := fixtures()
	store := storage.NewMemory(discard())
	sender := &mockSender{
		sendFn: func(executor.Message) (string, error) { return "", errors.New("smtp down") },
	}
	sys := newExecutor(t, executor.ModeLive, sender, store)

	_, err := sys.Execute(context.Background(), approved(executor.StateExecutionFailed, 2), req, d)
	if !errors.Is(err, executor.ErrExecution) {
		t.Fatalf("err = %v, want ErrExecution", err)
	}
	if list, _ := store.List(context.Background(), "", "", 0); len(list.Blobs) != 0 {
		t.Error("artifact written for failed action")
	}
}

type failingUpload struct {
	storage.System
	failures int
}

func (f *failingUpload) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("blob unavailable")
	}
	return f.System.Upload(ctx, key, r, contentType)
}

func TestExecuteResume(t *testing.T) {
	tests := []struct {
		name        string
		sendFails   int
		uploadFails int
		wantRefund  bool
		wantSent    bool
		wantSends   int
	}{
		{name: "send fails after refund", sendFails: 1, wantRefund: true, wantSends: 2},
		{name: "artifact fails after delivery", uploadFails: 1, wantRefund: true, wantSent: true, wantSends: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, d := fixtures()
			store := &failingUpload{System: storage.NewMemory(discard()), failures: tt.uploadFails}
			sendFails := tt.sendFails
			sender := &mockSender{
				sendFn: func(executor.Message) (string, error) {
					if sendFails > 0 {
						sendFails--
						return "", errors.New("smtp down")
					}
					return "msg-1", nil
				},
			}
			sys := newExecutor(t, executor.ModeLive, sender, store)
			auth := approved(executor.StateAwaitingApproval, 2)

			_, err := sys.Execute(context.Background(), auth, req, d)
			var incomplete *executor.IncompleteError
			if !errors.As(err, &incomplete) {
				t.Fatalf("err = %v, want IncompleteError", err)
			}
			if !errors.Is(err, executor.ErrExecution) {
				t.Errorf("err = %v, want ErrExecution", err)
			}
			p := incomplete.Progress
			if p.DecisionID != auth.Decision.DecisionID || p.Refunded != tt.wantRefund || p.Sent != tt.wantSent {
				t.Fatalf("progress = %+v", p)
			}
			if p.RefundRef != "rf-1" {
				t.Errorf("refund ref = %q", p.RefundRef)
			}

			auth.State = executor.StateExecutionFailed
			auth.Progress = &p
			res, err := sys.Execute(context.Background(), auth, req, d)
			if err != nil {
				t.Fatalf("retry: %v", err)
			}
			if len(sender.refunds) != 1 {
				t.Errorf("refunds issued = %d, want 1", len(sender.refunds))
			}
			if len(sender.sent) != tt.wantSends {
				t.Errorf("sends = %d, want %d", len(sender.sent), tt.wantSends)
			}
			if res.ExternalRef != "rf-1" {
				t.Errorf("external ref = %q", res.ExternalRef)
			}
		})
	}
}

func TestExecuteIgnoresForeignProgress(t *testing.T) {
	req, d := fixtures()
	sender := &mockSender{}
	sys := newExecutor(t, executor.ModeLive, sender, storage.NewMemory(discard()))

	auth := approved(executor.StateExecutionFailed, 2)
	auth.Progress = &executor.Progress{DecisionID: uuid.New(), Refunded: true, Sent: true}

	if _, err := sys.Execute(context.Background(), auth, req, d); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(sender.refunds) != 1 || len(sender.sent) != 1 {
		t.Errorf("refunds = %d, sends = %d, want 1 each", len(sender.refunds), len(sender.sent))
	}

	key := auth.Decision.DecisionID.String()
	if got := sender.refunds[0].IdempotencyKey; got != key+"/refund" {
		t.Errorf("refund key = %q", got)
	}
	if got := sender.sent[0].IdempotencyKey; got != key+"/send" {
		t.Errorf("send key = %q", got)
	}
}

func TestExecuteDemo(t *testing.T) {
	req, d := fixtures()
	d.Outcome = draft.OutcomeDeny
	store := storage.NewMemory(discard())
	sys := newExecutor(t, executor.ModeDemo, nil, store)

	res, err := sys.Execute(context.Background(), approved(executor.StateAwaitingApproval, 2), req, d)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Simulated || res.Action != executor.ActionSendDenial || res.ExternalRef != "" {
		t.Errorf("result = %+v", res)
	}
	if ok, _ := store.Exists(context.Background(), res.ArtifactKey); !ok {
		t.Error("demo mode did not record the intended action")
	}
}

func TestHTTPSender(t *testing.T) {
	var paths, keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		keys = append(keys, r.Header.Get(executor.IdempotencyKeyHeader))
		switch r.URL.Path {
		case "/refunds":
			w.Write([]byte(`{"reference":"rf-9"}`))
		case "/send":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	s, err := executor.NewHTTPSender(srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	ref, err := s.Refund(context.Background(), executor.RefundOrder{OrderID: "ord-1", Amount: 100, IdempotencyKey: "dec-1/refund"})
	if err != nil || ref != "rf-9" {
		t.Errorf("refund = %q, %v", ref, err)
	}
	if _, err := s.Send(context.Background(), executor.Message{Body: "hi"}); err != nil {
		t.Errorf("send: %v", err)
	}
	if strings.Join(paths, ",") != "/refunds,/send" {
		t.Errorf("paths = %v", paths)
	}
	if keys[0] != "dec-1/refund" || keys[1] != "" {
		t.Errorf("idempotency keys = %q", keys)
	}

	bad, _ := executor.NewHTTPSender(srv.URL+"/broken", srv.Client())
	if _, err := bad.Send(context.Background(), executor.Message{}); err == nil {
		t.Error("expected error for 500")
	}
}

func TestActionFor(t *testing.T) {
	tests := map[draft.Outcome]executor.Action{
		draft.OutcomeApproveRefund: executor.ActionIssueRefund,
		draft.OutcomeDeny:          executor.ActionSendDenial,
		draft.OutcomeEscalate:      executor.ActionEscalateCase,
	}
	for outcome, want := range tests {
		if got := executor.ActionFor(outcome); got != want {
			t.Errorf("ActionFor(%s) = %s, want %s", outcome, got, want)
		}
	}
}

func TestConfig(t *testing.T) {
	cfg := executor.Config{Mode: executor.ModeLive}
	if err := cfg.Finalize(nil); err == nil {
		t.Error("live mode without base_url should fail")
	}

	cfg = executor.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != executor.ModeDemo || cfg.MaxAttempts != 3 {
		t.Errorf("defaults = %+v", cfg)
	}

	if _, err := executor.New(&executor.Config{Mode: executor.ModeLive}, nil, storage.NewMemory(discard()), discard()); err == nil {
		t.Error("live executor without sender should fail")
	}
}
