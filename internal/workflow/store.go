package workflow

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/internal/trust"
	"github.com/JaimeStill/arbiter/pkg/pagination"
)

// Store persists workflow records.
//
// Update writes rec only if the stored version equals rec.Version-1, and
// appends the given audit entries. A version mismatch returns ErrConflict.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record, appended []AuditEntry) error
	Find(ctx context.Context, id uuid.UUID) (*Record, error)
	Trace(ctx context.Context, id uuid.UUID) ([]AuditEntry, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Summary], error)
	// Stale returns suspended requests last updated before cutoff.
	Stale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// Filters narrows List results. Nil fields are ignored.
type Filters struct {
	State      *string `json:"state,omitempty"`
	Type       *string `json:"type,omitempty"`
	CustomerID *string `json:"customer_id,omitempty"`
	Priority   *string `json:"priority,omitempty"`
}

// Summary is the list view of a record.
type Summary struct {
	ID         uuid.UUID      `json:"id"`
	Type       intake.Type    `json:"type"`
	CustomerID string         `json:"customer_id"`
	State      State          `json:"state"`
	Tier       trust.Tier     `json:"tier,omitempty"`
	Priority   trust.Priority `json:"priority,omitempty"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Summarize projects rec into its list view.
func Summarize(rec *Record) Summary {
	s := Summary{
		ID:         rec.ID(),
		Type:       rec.Request.Type,
		CustomerID: rec.Request.Requester.CustomerID,
		State:      rec.State,
		Version:    rec.Version,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if rec.Score != nil {
		s.Tier = rec.Score.Tier
		s.Priority = rec.Score.Priority()
	}
	return s
}

// MemoryStore keeps records in process. Records are deep-copied on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID][]byte
	audit   map[uuid.UUID][]AuditEntry
	order   []uuid.UUID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID][]byte),
		audit:   make(map[uuid.UUID][]AuditEntry),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID()]; ok {
		return fmt.Errorf("%w: request %s exists", ErrConflict, rec.ID())
	}
	s.records[rec.ID()] = data
	s.audit[rec.ID()] = slices.Clone(rec.Audit)
	s.order = append(s.order, rec.ID())
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *Record, appended []AuditEntry) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[rec.ID()]
	if !ok {
		return ErrNotFound
	}
	var prev struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(stored, &prev); err != nil {
		return err
	}
	if prev.Version != rec.Version-1 {
		return fmt.Errorf("%w: stored version %d, writing %d", ErrConflict, prev.Version, rec.Version)
	}

	log := s.audit[rec.ID()]
	for _, e := range appended {
		if n := len(log); n > 0 && e.Seq <= log[n-1].Seq {
			return fmt.Errorf("%w: audit seq %d already written", ErrConflict, e.Seq)
		}
		log = append(log, e)
	}

	s.records[rec.ID()] = data
	s.audit[rec.ID()] = log
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec, err := decode(data)
	if err != nil {
		return nil, err
	}
	rec.Audit = slices.Clone(s.audit[id])
	return rec, nil
}

func (s *MemoryStore) Trace(ctx context.Context, id uuid.UUID) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.audit[id]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(log), nil
}

func (s *MemoryStore) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Summary], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Summary
	for _, id := range s.order {
		rec, err := decode(s.records[id])
		if err != nil {
			return nil, err
		}
		if !matches(rec, page.Search, filters) {
			continue
		}
		matched = append(matched, Summarize(rec))
	}

	slices.SortStableFunc(matched, func(a, b Summary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	result := pagination.Slice(matched, page)
	return &result, nil
}

func (s *MemoryStore) Stale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []uuid.UUID
	for _, id := range s.order {
		rec, err := decode(s.records[id])
		if err != nil {
			return nil, err
		}
		if rec.State.Suspended() && rec.UpdatedAt.Before(cutoff) {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return cmp.Compare(a.String(), b.String())
	})
	return out, nil
}

// reviewPriority treats an unscored request as carrying no priority.
func reviewPriority(rec *Record) trust.Priority {
	if rec.Score == nil {
		return trust.PriorityNone
	}
	return rec.Score.Priority()
}

func matches(rec *Record, search *string, f Filters) bool {
	if f.State != nil && string(rec.State) != *f.State {
		return false
	}
	if f.Type != nil && string(rec.Request.Type) != *f.Type {
		return false
	}
	if f.CustomerID != nil && rec.Request.Requester.CustomerID != *f.CustomerID {
		return false
	}
	if f.Priority != nil && string(reviewPriority(rec)) != *f.Priority {
		return false
	}
	if search != nil && *search != "" {
		term := strings.ToLower(*search)
		return strings.Contains(strings.ToLower(rec.Request.Requester.CustomerID), term) ||
			strings.Contains(strings.ToLower(rec.Request.Payload.Message), term)
	}
	return true
}

func encode(rec *Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
