package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/arbiter/internal/draft"
	"github.com/JaimeStill/arbiter/internal/verification"
	"github.com/JaimeStill/arbiter/internal/workflow"
)

var verifyFlags struct {
	status    string
	method    string
	reference string
}

var reviewFlags struct {
	note string
}

var decideFlags struct {
	outcome       string
	note          string
	revision      int
	draftOutcome  string
	justification string
	subject       string
	body          string
	internalNotes string
}

var cancelFlags struct {
	reason string
}

var verifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Resolve the security gate for a request",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var reviewCmd = &cobra.Command{
	Use:   "review <id>",
	Short: "Complete human review and compose the draft",
	Args:  cobra.ExactArgs(1),
	RunE:  runReview,
}

var decideCmd = &cobra.Command{
	Use:   "decide <id>",
	Short: "Approve, edit, or reject the current draft",
	Long:  "Record an approval decision. --outcome=edit requires at least one of\n--draft-outcome, --justification, --subject, --body, or --internal-notes.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecide,
}

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Retry a failed execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a suspended request",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	vf := verifyCmd.Flags()
	vf.StringVar(&verifyFlags.status, "status", "", "verified or rejected (required)")
	vf.StringVar(&verifyFlags.method, "method", "otp", "Verification method")
	vf.StringVar(&verifyFlags.reference, "reference", "", "External verification reference")
	_ = verifyCmd.MarkFlagRequired("status")

	reviewCmd.Flags().StringVar(&reviewFlags.note, "note", "", "Review note")

	df := decideCmd.Flags()
	df.StringVar(&decideFlags.outcome, "outcome", "", "approve, edit, or reject (required)")
	df.StringVar(&decideFlags.note, "note", "", "Decision note")
	df.IntVar(&decideFlags.revision, "revision", 0, "Draft revision the decision applies to")
	df.StringVar(&decideFlags.draftOutcome, "draft-outcome", "", "Edited outcome: approve_refund, deny, escalate")
	df.StringVar(&decideFlags.justification, "justification", "", "Edited justification")
	df.StringVar(&decideFlags.subject, "subject", "", "Edited reply subject")
	df.StringVar(&decideFlags.body, "body", "", "Edited reply body")
	df.StringVar(&decideFlags.internalNotes, "internal-notes", "", "Edited internal notes")
	_ = decideCmd.MarkFlagRequired("outcome")

	cancelCmd.Flags().StringVar(&cancelFlags.reason, "reason", "", "Cancellation reason")
}

func postRecord(cmd *cobra.Command, id, suffix string, body any) error {
	path, err := requestPath(id, suffix)
	if err != nil {
		return err
	}

	var rec workflow.Record
	if err := newClientFromFlags().do(cmd.Context(), "POST", path, nil, body, &rec); err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), &rec)
}

func runVerify(cmd *cobra.Command, args []string) error {
	outcome := verification.Outcome{
		Status:    verification.Status(verifyFlags.status),
		Method:    verifyFlags.method,
		Reference: verifyFlags.reference,
	}
	if err := outcome.Validate(); err != nil {
		return err
	}
	return postRecord(cmd, args[0], "/verification", outcome)
}

func runReview(cmd *cobra.Command, args []string) error {
	return postRecord(cmd, args[0], "/review", workflow.ReviewCommand{
		Reviewer: rootFlags.actor,
		Note:     reviewFlags.note,
	})
}

// decisionEdits collects the edit flags the user actually set.
func decisionEdits(cmd *cobra.Command) *draft.Edits {
	var edits draft.Edits
	str := func(name, value string) *string {
		if cmd.Flags().Changed(name) {
			return &value
		}
		return nil
	}

	if cmd.Flags().Changed("draft-outcome") {
		o := draft.Outcome(decideFlags.draftOutcome)
		edits.Outcome = &o
	}
	edits.Justification = str("justification", decideFlags.justification)
	edits.Subject = str("subject", decideFlags.subject)
	edits.Body = str("body", decideFlags.body)
	edits.InternalNotes = str("internal-notes", decideFlags.internalNotes)

	if edits.Empty() {
		return nil
	}
	return &edits
}

func runDecide(cmd *cobra.Command, args []string) error {
	decision := workflow.DecisionCommand{
		Reviewer:      rootFlags.actor,
		Outcome:       workflow.DecisionOutcome(decideFlags.outcome),
		Edits:         decisionEdits(cmd),
		Note:          decideFlags.note,
		DraftRevision: decideFlags.revision,
	}
	if decision.Outcome == workflow.DecisionEdit && decision.Edits == nil {
		return fmt.Errorf("--outcome=edit needs at least one edit flag")
	}
	return postRecord(cmd, args[0], "/decision", decision)
}

func runRetry(cmd *cobra.Command, args []string) error {
	return postRecord(cmd, args[0], "/retry", workflow.RetryCommand{
		Operator: rootFlags.actor,
	})
}

func runCancel(cmd *cobra.Command, args []string) error {
	return postRecord(cmd, args[0], "/cancel", workflow.CancelCommand{
		Operator: rootFlags.actor,
		Reason:   cancelFlags.reason,
	})
}
