// Package intake defines the immutable customer request that every workflow
// stage references, along with intent and PII detection over free text.
package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Type classifies what the customer is asking for.
type Type string

const (
	TypeRefund          Type = "refund"
	TypeReturn          Type = "return"
	TypeShippingIssue   Type = "shipping_issue"
	TypeBillingDispute  Type = "billing_dispute"
	TypeAccountTakeover Type = "account_takeover"
	TypeSupport         Type = "support"
)

// Valid reports whether t is a known request type.
func (t Type) Valid() bool {
	switch t {
	case TypeRefund, TypeReturn, TypeShippingIssue, TypeBillingDispute, TypeAccountTakeover, TypeSupport:
		return true
	}
	return false
}

// Financial reports whether requests of this type move money or touch account control.
func (t Type) Financial() bool {
	switch t {
	case TypeRefund, TypeReturn, TypeBillingDispute, TypeAccountTakeover:
		return true
	}
	return false
}

// Channel is the delivery channel for customer-visible responses.
type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelEmail Channel = "email"
)

// IdentityClaim is who the requester says they are. It is unverified until
// the security gate records a verification outcome.
type IdentityClaim struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// Payload carries the request details. Amount is in minor currency units.
type Payload struct {
	OrderID  string `json:"order_id,omitempty"`
	Item     string `json:"item,omitempty"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Request is immutable once created.
type Request struct {
	ID          uuid.UUID     `json:"id"`
	Requester   IdentityClaim `json:"requester"`
	Type        Type          `json:"type"`
	Payload     Payload       `json:"payload"`
	Channel     Channel       `json:"channel"`
	ContainsPII bool          `json:"contains_pii"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Command carries the caller-supplied fields for a new request.
// An empty Type is detected from Payload.Message.
type Command struct {
	Requester IdentityClaim `json:"requester"`
	Type      Type          `json:"type,omitempty"`
	Payload   Payload       `json:"payload"`
	Channel   Channel       `json:"channel,omitempty"`
}

// New validates cmd and builds the immutable Request.
func New(id uuid.UUID, cmd Command, now time.Time) (*Request, error) {
	if strings.TrimSpace(cmd.Requester.CustomerID) == "" {
		return nil, fmt.Errorf("%w: requester customer_id required", ErrInvalidRequest)
	}
	if cmd.Payload.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidRequest)
	}

	payload := cmd.Payload
	payload.Message = normalize(payload.Message)
	payload.Reason = normalize(payload.Reason)

	kind := cmd.Type
	if kind == "" {
		kind = DetectType(payload.Message)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, kind)
	}

	channel := cmd.Channel
	switch channel {
	case "":
		channel = ChannelChat
	case ChannelChat, ChannelEmail:
	default:
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidRequest, channel)
	}

	return &Request{
		ID:          id,
		Requester:   cmd.Requester,
		Type:        kind,
		Payload:     payload,
		Channel:     channel,
		ContainsPII: ContainsPII(payload.Message),
		CreatedAt:   now.UTC(),
	}, nil
}

// RequiresVerification reports whether the request must pass the security
// gate: financial request types and any request whose text carries PII.
func (r *Request) RequiresVerification() bool {
	return r.Type.Financial() || r.ContainsPII
}

// IsRefund reports whether the request itself would produce a refund.
func (r *Request) IsRefund() bool {
	return r.Type == TypeRefund || r.Type == TypeReturn
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}
