package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/arbiter/internal/workflow"
	"github.com/JaimeStill/arbiter/pkg/pagination"
)

var listFlags struct {
	state    string
	kind     string
	customer string
	priority string
	search   string
	page     int
	pageSize int
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests",
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a request record",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var traceCmd = &cobra.Command{
	Use:   "trace <id>",
	Short: "Print the audit trail of a request",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrace,
}

var viewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Print the reviewer view of a request",
	Args:  cobra.ExactArgs(1),
	RunE:  runView,
}

func init() {
	f := listCmd.Flags()
	f.StringVar(&listFlags.state, "state", "", "Filter by state")
	f.StringVar(&listFlags.kind, "type", "", "Filter by request type")
	f.StringVar(&listFlags.customer, "customer", "", "Filter by customer ID")
	f.StringVar(&listFlags.priority, "priority", "", "Filter by review priority (none, low, high)")
	f.StringVar(&listFlags.search, "search", "", "Search customer, order, and message text")
	f.IntVar(&listFlags.page, "page", 1, "Page number")
	f.IntVar(&listFlags.pageSize, "page-size", 0, "Page size (server default when 0)")
}

// requestPath validates id before it is placed in a URL path.
func requestPath(id string, suffix string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid request id %q", id)
	}
	return "/requests/" + id + suffix, nil
}

func runList(cmd *cobra.Command, _ []string) error {
	q := url.Values{}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("state", listFlags.state)
	set("type", listFlags.kind)
	set("customer_id", listFlags.customer)
	set("priority", listFlags.priority)
	set("search", listFlags.search)
	q.Set("page", strconv.Itoa(listFlags.page))
	if listFlags.pageSize > 0 {
		q.Set("page_size", strconv.Itoa(listFlags.pageSize))
	}

	var page pagination.PageResult[workflow.Summary]
	if err := newClientFromFlags().do(cmd.Context(), "GET", "/requests", q, nil, &page); err != nil {
		return err
	}
	return printSummaries(cmd.OutOrStdout(), &page)
}

func runShow(cmd *cobra.Command, args []string) error {
	path, err := requestPath(args[0], "")
	if err != nil {
		return err
	}

	var rec workflow.Record
	if err := newClientFromFlags().do(cmd.Context(), "GET", path, nil, nil, &rec); err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), &rec)
}

func runTrace(cmd *cobra.Command, args []string) error {
	path, err := requestPath(args[0], "/trace")
	if err != nil {
		return err
	}

	var entries []workflow.AuditEntry
	if err := newClientFromFlags().do(cmd.Context(), "GET", path, nil, nil, &entries); err != nil {
		return err
	}
	return printTrace(cmd.OutOrStdout(), entries)
}

func runView(cmd *cobra.Command, args []string) error {
	path, err := requestPath(args[0], "/review")
	if err != nil {
		return err
	}

	var view workflow.ReviewView
	if err := newClientFromFlags().do(cmd.Context(), "GET", path, nil, nil, &view); err != nil {
		return err
	}
	if rootFlags.json {
		return printJSON(cmd.OutOrStdout(), view)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Request:  %s (%s)\n", view.ID, view.State)
	for _, line := range view.Summary {
		fmt.Fprintf(out, "  - %s\n", line)
	}
	if view.Draft != nil {
		label := "Draft"
		if view.Preview {
			label = "Preview"
		}
		fmt.Fprintf(out, "%s r%d: %s\n", label, view.Draft.Revision, view.Draft.Outcome)
		fmt.Fprintf(out, "%s\n", view.Draft.Body)
	}
	return nil
}
