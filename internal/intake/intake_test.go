package intake_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/intake"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDetectType(t *testing.T) {
	tests := []struct {
		message string
		want    intake.Type
	}{
		{"I want a REFUND for my order", intake.TypeRefund},
		{"how do I return these shoes", intake.TypeReturn},
		{"shipping is late", intake.TypeShippingIssue},
		{"billing charged me twice", intake.TypeBillingDispute},
		{"possible account takeover", intake.TypeAccountTakeover},
		{"what are your hours", intake.TypeSupport},
		{"", intake.TypeSupport},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := intake.DetectType(tt.message); got != tt.want {
				t.Errorf("DetectType(%q) = %s, want %s", tt.message, got, tt.want)
			}
		})
	}
}

func TestContainsPII(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"contact me at jane@example.com", true},
		{"order 4412 is missing", true},
		{"my package is missing", false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := intake.ContainsPII(tt.message); got != tt.want {
				t.Errorf("ContainsPII(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	id := uuid.MustParse("0b9f7f5e-30a4-4c58-9d8f-3b1a8c1c0001")

	t.Run("detects type and defaults channel", func(t *testing.T) {
		req, err := intake.New(id, intake.Command{
			Requester: intake.IdentityClaim{CustomerID: "cust-1"},
			Payload:   intake.Payload{Message: "  please refund my jacket  ", Amount: 4999},
		}, now)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if req.Type != intake.TypeRefund {
			t.Errorf("type = %s, want refund", req.Type)
		}
		if req.Channel != intake.ChannelChat {
			t.Errorf("channel = %s, want chat", req.Channel)
		}
		if req.Payload.Message != "please refund my jacket" {
			t.Errorf("message = %q", req.Payload.Message)
		}
		if req.ContainsPII {
			t.Error("contains_pii = true, want false")
		}
		if !req.CreatedAt.Equal(now) {
			t.Errorf("created_at = %v", req.CreatedAt)
		}
	})

	t.Run("normalizes full-width digits", func(t *testing.T) {
		req, err := intake.New(id, intake.Command{
			Requester: intake.IdentityClaim{CustomerID: "cust-1"},
			Type:      intake.TypeSupport,
			Payload:   intake.Payload{Message: "order １２３"},
		}, now)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if req.Payload.Message != "order 123" {
			t.Errorf("message = %q, want %q", req.Payload.Message, "order 123")
		}
		if !req.ContainsPII {
			t.Error("contains_pii = false, want true")
		}
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			cmd  intake.Command
		}{
			{"missing customer", intake.Command{Type: intake.TypeRefund}},
			{"negative amount", intake.Command{
				Requester: intake.IdentityClaim{CustomerID: "c"},
				Type:      intake.TypeRefund,
				Payload:   intake.Payload{Amount: -1},
			}},
			{"unknown type", intake.Command{
				Requester: intake.IdentityClaim{CustomerID: "c"},
				Type:      "upgrade",
			}},
			{"unknown channel", intake.Command{
				Requester: intake.IdentityClaim{CustomerID: "c"},
				Type:      intake.TypeSupport,
				Channel:   "sms",
			}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := intake.New(id, tt.cmd, now)
				if !errors.Is(err, intake.ErrInvalidRequest) {
					t.Errorf("err = %v, want ErrInvalidRequest", err)
				}
			})
		}
	})
}

func TestRequiresVerification(t *testing.T) {
	tests := []struct {
		name string
		req  intake.Request
		want bool
	}{
		{"refund", intake.Request{Type: intake.TypeRefund}, true},
		{"return", intake.Request{Type: intake.TypeReturn}, true},
		{"billing", intake.Request{Type: intake.TypeBillingDispute}, true},
		{"takeover", intake.Request{Type: intake.TypeAccountTakeover}, true},
		{"shipping", intake.Request{Type: intake.TypeShippingIssue}, false},
		{"support with pii", intake.Request{Type: intake.TypeSupport, ContainsPII: true}, true},
		{"support", intake.Request{Type: intake.TypeSupport}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.RequiresVerification(); got != tt.want {
				t.Errorf("RequiresVerification() = %v, want %v", got, tt.want)
			}
		})
	}
}
