package verification

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

// HTTPVerifier posts verification requests to {base}/verify.
//
// 200 returns the outcome in the body. 202 means the collaborator accepted
// the request and will call back, which maps to ErrPending.
type HTTPVerifier struct {
	base   string
	client *http.Client
}

type verifyRequest struct {
	RequestID  string `json:"request_id"`
	CustomerID string `json:"customer_id"`
	Email      string `json:"email,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Type       string `json:"type"`
}

// NewHTTPVerifier creates a verifier rooted at baseURL.
func NewHTTPVerifier(baseURL string, client *http.Client) (*HTTPVerifier, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid verification base url %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPVerifier{
		base:   strings.TrimSuffix(baseURL, "/"),
		client: client,
	}, nil
}

func (v *HTTPVerifier) Verify(ctx context.Context, req *intake.Request) (*Outcome, error) {
	body, err := json.Marshal(verifyRequest{
		RequestID:  req.ID.String(),
		CustomerID: req.Requester.CustomerID,
		Email:      req.Requester.Email,
		SessionID:  req.Requester.SessionID,
		Type:       string(req.Type),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal verify request: %w", err)
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, v.base+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil, ErrPending
	case http.StatusOK:
		var out Outcome
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		if err := out.Validate(); err != nil {
			return nil, err
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("verification collaborator returned status %d", resp.StatusCode)
	}
}
