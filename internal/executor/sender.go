package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/JaimeStill/arbiter/internal/intake"
)

// IdempotencyKeyHeader carries a key the collaborator uses to drop repeated
// deliveries of the same step.
const IdempotencyKeyHeader = "Idempotency-Key"

// Message is a customer-facing message to deliver.
type Message struct {
	RequestID      string         `json:"request_id"`
	DecisionID     string         `json:"decision_id"`
	CustomerID     string         `json:"customer_id"`
	Email          string         `json:"email,omitempty"`
	Channel        intake.Channel `json:"channel"`
	Subject        string         `json:"subject,omitempty"`
	Body           string         `json:"body"`
	Action         Action         `json:"action"`
	IdempotencyKey string         `json:"-"`
}

// RefundOrder instructs the payment side to return funds.
type RefundOrder struct {
	RequestID      string `json:"request_id"`
	DecisionID     string `json:"decision_id"`
	CustomerID     string `json:"customer_id"`
	OrderID        string `json:"order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency,omitempty"`
	IdempotencyKey string `json:"-"`
}

// Sender delivers messages and refunds to the action collaborator.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
	Refund(ctx context.Context, order RefundOrder) (string, error)
}

// HTTPSender posts to {base}/send and {base}/refunds. Any non-2xx status is
// a failure. A non-empty idempotency key is sent in IdempotencyKeyHeader.
type HTTPSender struct {
	base   string
	client *http.Client
}

type ack struct {
	Reference string `json:"reference"`
}

// NewHTTPSender creates a sender rooted at baseURL.
func NewHTTPSender(baseURL string, client *http.Client) (*HTTPSender, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid executor base url %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSender{
		base:   strings.TrimSuffix(baseURL, "/"),
		client: client,
	}, nil
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) (string, error) {
	return s.post(ctx, "/send", msg.IdempotencyKey, msg)
}

func (s *HTTPSender) Refund(ctx context.Context, order RefundOrder) (string, error) {
	return s.post(ctx, "/refunds", order.IdempotencyKey, order)
}

func (s *HTTPSender) post(ctx context.Context, path, key string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	var a ack
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&a); err != nil && err != io.EOF {
		return "", fmt.Errorf("decode ack: %w", err)
	}
	return a.Reference, nil
}
