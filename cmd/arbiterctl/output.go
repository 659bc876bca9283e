package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/JaimeStill/arbiter/internal/workflow"
	"github.com/JaimeStill/arbiter/pkg/formatting"
	"github.com/JaimeStill/arbiter/pkg/pagination"
)

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecord(out io.Writer, rec *workflow.Record) error {
	if rootFlags.json {
		return printJSON(out, rec)
	}

	req := rec.Request
	fmt.Fprintf(out, "Request:   %s\n", rec.ID())
	fmt.Fprintf(out, "Type:      %s (%s)\n", req.Type, req.Channel)
	fmt.Fprintf(out, "Customer:  %s\n", req.Requester.CustomerID)
	if req.Payload.Amount > 0 {
		fmt.Fprintf(out, "Amount:    %s\n", formatting.FormatMoney(req.Payload.Amount, req.Payload.Currency))
	}
	fmt.Fprintf(out, "State:     %s (v%d)\n", rec.State, rec.Version)
	if rec.Score != nil {
		fmt.Fprintf(out, "Tier:      %s (%.1f points, %s priority)\n", rec.Score.Tier, rec.Score.Points, rec.Score.Priority())
	}
	if len(rec.Flags) > 0 {
		fmt.Fprintf(out, "Flags:\n")
		for _, f := range rec.Flags {
			fmt.Fprintf(out, "  %-18s %-7s %s\n", f.Kind, f.Value, f.Detail)
		}
	}
	if d := rec.CurrentDraft(); d != nil {
		fmt.Fprintf(out, "Draft:     r%d %s\n", d.Revision, d.Outcome)
		if d.Subject != "" {
			fmt.Fprintf(out, "  %s\n", d.Subject)
		}
	}
	for _, a := range rec.Actions {
		fmt.Fprintf(out, "Action:    %s %s simulated=%t\n", a.Action, a.ArtifactKey, a.Simulated)
	}
	if rec.ExecutionError != "" {
		fmt.Fprintf(out, "Error:     %s (attempt %d)\n", rec.ExecutionError, rec.ExecutionAttempts)
	}
	if p := rec.ExecutionProgress; p != nil {
		if p.Refunded {
			fmt.Fprintf(out, "Refunded:  %s (not repeated on retry)\n", p.RefundRef)
		}
		if p.Sent {
			fmt.Fprintf(out, "Sent:      %s (not repeated on retry)\n", p.MessageRef)
		}
	}
	if rec.Failure != nil {
		fmt.Fprintf(out, "Failure:   %s: %s (last good: %s)\n", rec.Failure.Reason, rec.Failure.Error, rec.Failure.LastGoodState)
	}
	return nil
}

func printTrace(out io.Writer, entries []workflow.AuditEntry) error {
	if rootFlags.json {
		return printJSON(out, entries)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tKIND\tTRANSITION\tNOTE")
	for _, e := range entries {
		transition := ""
		if e.To != "" {
			transition = fmt.Sprintf("%s -> %s", e.From, e.To)
		}
		note := e.Note
		if len(e.Refs) > 0 {
			note += " [" + strings.Join(e.Refs, ", ") + "]"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Seq, e.Kind, transition, note)
	}
	return tw.Flush()
}

func printSummaries(out io.Writer, page *pagination.PageResult[workflow.Summary]) error {
	if rootFlags.json {
		return printJSON(out, page)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tCUSTOMER\tSTATE\tTIER\tPRIORITY\tUPDATED")
	for _, s := range page.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Type, s.CustomerID, s.State, s.Tier, s.Priority, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "page %d/%d, %d total\n", page.Page, page.TotalPages, page.Total)
	if page.HasNext() {
		fmt.Fprintf(out, "more: --page=%d\n", page.Page+1)
	}
	return nil
}
