package main

import (
	"github.com/spf13/cobra"

	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/internal/workflow"
)

var submitFlags struct {
	customer string
	email    string
	session  string
	kind     string
	channel  string
	order    string
	item     string
	amount   int64
	currency string
	reason   string
	message  string
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a customer request",
	Long:  "Submit a customer request and print the record at its first suspension point.\nWhen --type is omitted the service classifies the request from --message.",
	RunE:  runSubmit,
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&submitFlags.customer, "customer", "", "Customer ID (required)")
	f.StringVar(&submitFlags.email, "email", "", "Customer email claim")
	f.StringVar(&submitFlags.session, "session", "", "Session ID claim")
	f.StringVar(&submitFlags.kind, "type", "", "Request type: refund, return, shipping_issue, billing_dispute, account_takeover, support")
	f.StringVar(&submitFlags.channel, "channel", string(intake.ChannelChat), "Reply channel: chat or email")
	f.StringVar(&submitFlags.order, "order", "", "Order ID")
	f.StringVar(&submitFlags.item, "item", "", "Item description")
	f.Int64Var(&submitFlags.amount, "amount", 0, "Requested amount in minor units")
	f.StringVar(&submitFlags.currency, "currency", "USD", "ISO currency code")
	f.StringVar(&submitFlags.reason, "reason", "", "Stated reason")
	f.StringVar(&submitFlags.message, "message", "", "Free-text customer message")

	_ = submitCmd.MarkFlagRequired("customer")
}

func submitCommand() intake.Command {
	return intake.Command{
		Requester: intake.IdentityClaim{
			CustomerID: submitFlags.customer,
			Email:      submitFlags.email,
			SessionID:  submitFlags.session,
		},
		Type:    intake.Type(submitFlags.kind),
		Channel: intake.Channel(submitFlags.channel),
		Payload: intake.Payload{
			OrderID:  submitFlags.order,
			Item:     submitFlags.item,
			Amount:   submitFlags.amount,
			Currency: submitFlags.currency,
			Reason:   submitFlags.reason,
			Message:  submitFlags.message,
		},
	}
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	var rec workflow.Record
	err := newClientFromFlags().do(cmd.Context(), "POST", "/requests", nil, submitCommand(), &rec)
	if err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), &rec)
}
