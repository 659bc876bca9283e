package query_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JaimeStill/arbiter/pkg/query"
)

func testProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "requests", "r").
		Project("id", "ID").
		Project("state", "State").
		Project("customer_id", "CustomerID").
		Project("created_at", "CreatedAt")
}

func ptr(s string) *string { return &s }

const selectAll = "SELECT r.id, r.state, r.customer_id, r.created_at FROM public.requests r"

func TestProjectionMap(t *testing.T) {
	p := testProjection()

	if got := p.Table(); got != "public.requests r" {
		t.Errorf("Table() = %q", got)
	}
	if got := p.Columns(); got != "r.id, r.state, r.customer_id, r.created_at" {
		t.Errorf("Columns() = %q", got)
	}
	if got := p.Column("CustomerID"); got != "r.customer_id" {
		t.Errorf("Column(CustomerID) = %q", got)
	}
	if _, ok := p.Lookup("Message"); ok {
		t.Error("Lookup(Message) should miss")
	}
}

func TestColumnPanicsOnUnmappedField(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unmapped field")
		}
	}()
	query.NewBuilder(testProjection()).WhereEquals("Nope", "x")
}

func TestParseSortFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []query.SortField
	}{
		{"empty string", "", nil},
		{"single ascending", "State", []query.SortField{{Field: "State"}}},
		{"single descending", "-CreatedAt", []query.SortField{{Field: "CreatedAt", Descending: true}}},
		{
			"mixed with spaces and empty parts",
			" State ,, -CreatedAt ",
			[]query.SortField{{Field: "State"}, {Field: "CreatedAt", Descending: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, query.ParseSortFields(tt.input)); diff != "" {
				t.Errorf("ParseSortFields(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestBuilder(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	state := "awaiting_approval"

	tests := []struct {
		name     string
		build    func() (string, []any)
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "bare select",
			build:   query.NewBuilder(testProjection()).Build,
			wantSQL: selectAll,
		},
		{
			name: "default sort",
			build: query.NewBuilder(testProjection(), query.SortField{Field: "CreatedAt", Descending: true}).
				Build,
			wantSQL: selectAll + " ORDER BY r.created_at DESC",
		},
		{
			name: "explicit sort replaces default and skips unmapped fields",
			build: query.NewBuilder(testProjection(), query.SortField{Field: "CreatedAt"}).
				OrderByFields([]query.SortField{{Field: "State"}, {Field: "r.id; DROP TABLE requests"}}).
				Build,
			wantSQL: selectAll + " ORDER BY r.state ASC",
		},
		{
			name: "all-invalid sort falls back to default",
			build: query.NewBuilder(testProjection(), query.SortField{Field: "CreatedAt"}).
				OrderByFields([]query.SortField{{Field: "Unknown"}}).
				Build,
			wantSQL: selectAll + " ORDER BY r.created_at ASC",
		},
		{
			name: "nil filters skipped",
			build: query.NewBuilder(testProjection()).
				WhereEquals("State", (*string)(nil)).
				WhereIn("State", nil).
				WhereSearch(nil, "CustomerID").
				Build,
			wantSQL: selectAll,
		},
		{
			name: "conditions number placeholders in order",
			build: query.NewBuilder(testProjection()).
				WhereIn("State", []any{"drafted", "awaiting_approval"}).
				WhereBefore("CreatedAt", cutoff).
				WhereEquals("CustomerID", "cust-1").
				Limit(10).
				Build,
			wantSQL:  selectAll + " WHERE r.state IN ($1, $2) AND r.created_at < $3 AND r.customer_id = $4 LIMIT 10",
			wantArgs: []any{"drafted", "awaiting_approval", cutoff, "cust-1"},
		},
		{
			name: "search escapes wildcards",
			build: query.NewBuilder(testProjection()).
				WhereSearch(ptr("50%_off"), "CustomerID", "State").
				Build,
			wantSQL:  selectAll + " WHERE (r.customer_id ILIKE $1 OR r.state ILIKE $2)",
			wantArgs: []any{`%50\%\_off%`, `%50\%\_off%`},
		},
		{
			name: "count",
			build: query.NewBuilder(testProjection(), query.SortField{Field: "CreatedAt"}).
				WhereEquals("State", &state).
				BuildCount,
			wantSQL:  "SELECT COUNT(*) FROM public.requests r WHERE r.state = $1",
			wantArgs: []any{&state},
		},
		{
			name: "page",
			build: func() (string, []any) {
				return query.NewBuilder(testProjection(), query.SortField{Field: "CreatedAt", Descending: true}).
					WhereEquals("State", "drafted").
					BuildPage(3, 20)
			},
			wantSQL:  selectAll + " WHERE r.state = $1 ORDER BY r.created_at DESC LIMIT 20 OFFSET 40",
			wantArgs: []any{"drafted"},
		},
		{
			name: "single ignores conditions",
			build: func() (string, []any) {
				return query.NewBuilder(testProjection()).
					WhereEquals("State", "drafted").
					BuildSingle("ID", "abc")
			},
			wantSQL:  selectAll + " WHERE r.id = $1",
			wantArgs: []any{"abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.build()
			if sql != tt.wantSQL {
				t.Errorf("sql:\n got %s\nwant %s", sql, tt.wantSQL)
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
