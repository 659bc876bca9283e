package requests

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/internal/workflow"
	"github.com/JaimeStill/arbiter/pkg/query"
	"github.com/JaimeStill/arbiter/pkg/repository"
)

var recordProjection = query.
	NewProjectionMap("public", "requests", "r").
	Project("id", "ID").
	Project("state", "State").
	Project("version", "Version").
	Project("request", "Request").
	Project("evidence", "Evidence").
	Project("flags", "Flags").
	Project("score", "Score").
	Project("verifications", "Verifications").
	Project("drafts", "Drafts").
	Project("decisions", "Decisions").
	Project("actions", "Actions").
	Project("execution_attempts", "ExecutionAttempts").
	Project("execution_error", "ExecutionError").
	Project("execution_progress", "ExecutionProgress").
	Project("failure", "Failure").
	Project("reminded_at", "RemindedAt").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var summaryProjection = query.
	NewProjectionMap("public", "requests", "r").
	Project("id", "ID").
	Project("type", "Type").
	Project("customer_id", "CustomerID").
	Project("state", "State").
	Project("tier", "Tier").
	Project("priority", "Priority").
	Project("version", "Version").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt").
	Project("message", "Message")

var auditProjection = query.
	NewProjectionMap("public", "audit_entries", "a").
	Project("seq", "Seq").
	Project("at", "At").
	Project("from_state", "From").
	Project("to_state", "To").
	Project("kind", "Kind").
	Project("note", "Note").
	Project("refs", "Refs").
	Project("request_id", "RequestID")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// sortable limits client sort fields to projected summary columns.
var sortable = map[string]bool{
	"Type":       true,
	"CustomerID": true,
	"State":      true,
	"Tier":       true,
	"Priority":   true,
	"CreatedAt":  true,
	"UpdatedAt":  true,
}

func sortFields(fields []query.SortField) []query.SortField {
	out := make([]query.SortField, 0, len(fields))
	for _, f := range fields {
		if sortable[f.Field] {
			out = append(out, f)
		}
	}
	return out
}

func applyFilters(b *query.Builder, f workflow.Filters) *query.Builder {
	b.
		WhereEquals("State", f.State).
		WhereEquals("Type", f.Type).
		WhereEquals("CustomerID", f.CustomerID)

	if f.Priority != nil {
		// An unknown priority ranks -1 and matches nothing.
		b.WhereEquals("Priority", trust.Priority(*f.Priority).Rank())
	}
	return b
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) workflow.Filters {
	var f workflow.Filters

	if s := values.Get("state"); s != "" {
		f.State = &s
	}
	if t := values.Get("type"); t != "" {
		f.Type = &t
	}
	if c := values.Get("customer_id"); c != "" {
		f.CustomerID = &c
	}
	if p := values.Get("priority"); p != "" {
		f.Priority = &p
	}

	return f
}

func scanSummary(s repository.Scanner) (workflow.Summary, error) {
	var (
		sum     workflow.Summary
		rank    int
		message string
	)
	err := s.Scan(
		&sum.ID,
		&sum.Type,
		&sum.CustomerID,
		&sum.State,
		&sum.Tier,
		&rank,
		&sum.Version,
		&sum.CreatedAt,
		&sum.UpdatedAt,
		&message,
	)
	if err == nil && sum.Tier != "" {
		sum.Priority = trust.PriorityFromRank(rank)
	}
	return sum, err
}

func scanRecord(s repository.Scanner) (workflow.Record, error) {
	var (
		rec  workflow.Record
		id   any
		cols columns
	)
	err := s.Scan(
		&id,
		&rec.State,
		&rec.Version,
		&cols.request,
		&cols.evidence,
		&cols.flags,
		&cols.score,
		&cols.verifications,
		&cols.drafts,
		&cols.decisions,
		&cols.actions,
		&rec.ExecutionAttempts,
		&rec.ExecutionError,
		&cols.progress,
		&cols.failure,
		&rec.RemindedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return rec, err
	}
	if err := cols.decode(&rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func scanAudit(s repository.Scanner) (workflow.AuditEntry, error) {
	var (
		e    workflow.AuditEntry
		refs []byte
		id   any
	)
	err := s.Scan(&e.Seq, &e.At, &e.From, &e.To, &e.Kind, &e.Note, &refs, &id)
	if err != nil {
		return e, err
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &e.Refs); err != nil {
			return e, fmt.Errorf("decode audit refs: %w", err)
		}
	}
	return e, nil
}

// columns holds the raw JSONB values of one requests row.
type columns struct {
	request       []byte
	evidence      []byte
	flags         []byte
	score         []byte
	verifications []byte
	drafts        []byte
	decisions     []byte
	actions       []byte
	progress      []byte
	failure       []byte
}

func (c *columns) decode(rec *workflow.Record) error {
	fields := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"request", c.request, &rec.Request},
		{"evidence", c.evidence, &rec.Evidence},
		{"flags", c.flags, &rec.Flags},
		{"score", c.score, &rec.Score},
		{"verifications", c.verifications, &rec.Verifications},
		{"drafts", c.drafts, &rec.Drafts},
		{"decisions", c.decisions, &rec.Decisions},
		{"actions", c.actions, &rec.Actions},
		{"execution_progress", c.progress, &rec.ExecutionProgress},
		{"failure", c.failure, &rec.Failure},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	return nil
}

// encodeColumns renders the JSONB values of rec. Nil pointers encode as SQL NULL.
func encodeColumns(rec *workflow.Record) (map[string]any, error) {
	values := map[string]any{
		"request":       rec.Request,
		"flags":         nonNil(rec.Flags),
		"verifications": nonNil(rec.Verifications),
		"drafts":        nonNil(rec.Drafts),
		"decisions":     nonNil(rec.Decisions),
		"actions":       nonNil(rec.Actions),
	}
	if rec.Evidence != nil {
		values["evidence"] = rec.Evidence
	}
	if rec.Score != nil {
		values["score"] = rec.Score
	}
	if rec.Failure != nil {
		values["failure"] = rec.Failure
	}
	if rec.ExecutionProgress != nil {
		values["execution_progress"] = rec.ExecutionProgress
	}

	out := map[string]any{
		"evidence":           nil,
		"score":              nil,
		"failure":            nil,
		"execution_progress": nil,
	}
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		out[k] = string(data)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
