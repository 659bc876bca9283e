// Package requests persists workflow records in PostgreSQL and exposes the
// human-review HTTP surface.
package requests

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/workflow"
	"github.com/JaimeStill/arbiter/pkg/pagination"
	"github.com/JaimeStill/arbiter/pkg/query"
	"github.com/JaimeStill/arbiter/pkg/repository"
)

const insertRequest = `
	INSERT INTO requests(
		id, type, customer_id, message, state, tier, version,
		request, evidence, flags, score, verifications, drafts, decisions, actions,
		execution_attempts, execution_error, failure, reminded_at, created_at, updated_at,
		priority, execution_progress
	)
	VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
	)`

const updateRequest = `
	UPDATE requests SET
		state = $2, tier = $3, version = $4,
		evidence = $5, flags = $6, score = $7, verifications = $8,
		drafts = $9, decisions = $10, actions = $11,
		execution_attempts = $12, execution_error = $13, failure = $14,
		reminded_at = $15, updated_at = $16,
		priority = $18, execution_progress = $19
	WHERE id = $1 AND version = $17`

// staleBatch bounds one reminder sweep; the rest are picked up next tick.
const staleBatch = 500

const insertAudit = `
	INSERT INTO audit_entries(request_id, seq, at, from_state, to_state, kind, note, refs)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Store implements workflow.Store on PostgreSQL. Audit entries live in their
// own table keyed by (request_id, seq), so a concurrent writer that reuses a
// sequence number fails instead of overwriting.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a Store over db.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With("system", "requests"),
	}
}

func (s *Store) Create(ctx context.Context, rec *workflow.Record) error {
	cols, err := encodeColumns(rec)
	if err != nil {
		return err
	}

	args := []any{
		rec.ID(),
		string(rec.Request.Type),
		rec.Request.Requester.CustomerID,
		rec.Request.Payload.Message,
		string(rec.State),
		tier(rec),
		rec.Version,
		cols["request"],
		cols["evidence"],
		cols["flags"],
		cols["score"],
		cols["verifications"],
		cols["drafts"],
		cols["decisions"],
		cols["actions"],
		rec.ExecutionAttempts,
		rec.ExecutionError,
		cols["failure"],
		rec.RemindedAt,
		rec.CreatedAt,
		rec.UpdatedAt,
		priority(rec),
		cols["execution_progress"],
	}

	_, err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		if _, err := tx.ExecContext(ctx, insertRequest, args...); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, appendAudit(ctx, tx, rec.ID(), rec.Audit)
	})
	if err != nil {
		return repository.MapError(err, workflow.ErrNotFound, workflow.ErrConflict)
	}

	s.logger.DebugContext(ctx, "request stored", "request_id", rec.ID(), "version", rec.Version)
	return nil
}

func (s *Store) Update(ctx context.Context, rec *workflow.Record, appended []workflow.AuditEntry) error {
	cols, err := encodeColumns(rec)
	if err != nil {
		return err
	}

	args := []any{
		rec.ID(),
		string(rec.State),
		tier(rec),
		rec.Version,
		cols["evidence"],
		cols["flags"],
		cols["score"],
		cols["verifications"],
		cols["drafts"],
		cols["decisions"],
		cols["actions"],
		rec.ExecutionAttempts,
		rec.ExecutionError,
		cols["failure"],
		rec.RemindedAt,
		rec.UpdatedAt,
		rec.Version - 1,
		priority(rec),
		cols["execution_progress"],
	}

	_, err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		if err := repository.ExecExpectOne(ctx, tx, updateRequest, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return struct{}{}, fmt.Errorf("%w: version %d is stale", workflow.ErrConflict, rec.Version-1)
			}
			return struct{}{}, err
		}
		return struct{}{}, appendAudit(ctx, tx, rec.ID(), appended)
	})
	if err != nil {
		return repository.MapError(err, workflow.ErrNotFound, workflow.ErrConflict)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, id uuid.UUID) (*workflow.Record, error) {
	q, args := query.NewBuilder(recordProjection).BuildSingle("ID", id)

	rec, err := repository.QueryOne(ctx, s.db, q, args, scanRecord)
	if err != nil {
		return nil, repository.MapError(err, workflow.ErrNotFound, workflow.ErrConflict)
	}

	audit, err := s.Trace(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Audit = audit
	return &rec, nil
}

func (s *Store) Trace(ctx context.Context, id uuid.UUID) ([]workflow.AuditEntry, error) {
	q, args := query.
		NewBuilder(auditProjection, query.SortField{Field: "Seq"}).
		WhereEquals("RequestID", id).
		Build()

	entries, err := repository.QueryMany(ctx, s.db, q, args, scanAudit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, workflow.ErrNotFound
	}
	return entries, nil
}

func (s *Store) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters workflow.Filters,
) (*pagination.PageResult[workflow.Summary], error) {
	qb := query.
		NewBuilder(summaryProjection, defaultSort).
		WhereSearch(page.Search, "CustomerID", "Message")

	applyFilters(qb, filters)

	if sort := sortFields(page.Sort); len(sort) > 0 {
		qb.OrderByFields(sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanSummary)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (s *Store) Stale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	states := workflow.SuspendedStates()
	values := make([]any, len(states))
	for i, st := range states {
		values[i] = string(st)
	}

	q, args := query.
		NewBuilder(summaryProjection, query.SortField{Field: "UpdatedAt"}).
		WhereIn("State", values).
		WhereBefore("UpdatedAt", cutoff).
		Limit(staleBatch).
		Build()

	items, err := repository.QueryMany(ctx, s.db, q, args, scanSummary)
	if err != nil {
		return nil, fmt.Errorf("query suspended requests: %w", err)
	}

	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids, nil
}

func appendAudit(ctx context.Context, tx *sql.Tx, id uuid.UUID, entries []workflow.AuditEntry) error {
	err := repository.ExecEach(ctx, tx, insertAudit, entries, func(e workflow.AuditEntry) ([]any, error) {
		refs, err := json.Marshal(nonNil(e.Refs))
		if err != nil {
			return nil, fmt.Errorf("encode audit refs: %w", err)
		}
		return []any{id, e.Seq, e.At, string(e.From), string(e.To), string(e.Kind), e.Note, string(refs)}, nil
	})
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func tier(rec *workflow.Record) string {
	if rec.Score == nil {
		return ""
	}
	return string(rec.Score.Tier)
}

// priority stores the review priority as its rank so the queue sorts high
// before low before none.
func priority(rec *workflow.Record) int {
	if rec.Score == nil {
		return 0
	}
	return rec.Score.Priority().Rank()
}
