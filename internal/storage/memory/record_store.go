// Package memory provides an in-memory question store for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/question-sync/internal/question"
)

// RecordStore keeps records keyed by question id with the same upsert semantics as
// the Postgres store.
type RecordStore struct {
	mu      sync.RWMutex
	records map[int]question.Record
	now     func() time.Time
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[int]question.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema is a no-op; the map needs no setup.
func (s *RecordStore) EnsureSchema(context.Context) error { return nil }

// Ping always succeeds.
func (s *RecordStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *RecordStore) Close() {}

// Upsert inserts the record or replaces title, content and links of an existing one.
func (s *RecordStore) Upsert(_ context.Context, record question.Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %w", question.ErrStore, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.ID]
	if !ok {
		stored = question.Record{ID: record.ID, CreatedAt: s.now()}
	}
	stored.Title = record.Title
	stored.Content = record.Content
	stored.AdditionalLinks = cloneLinks(record.AdditionalLinks)
	s.records[record.ID] = stored
	return nil
}

// FetchAll returns every record ordered by question id.
func (s *RecordStore) FetchAll(_ context.Context) ([]question.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]question.Record, 0, len(s.records))
	for _, rec := range s.records {
		rec.AdditionalLinks = cloneLinks(rec.AdditionalLinks)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the record stored under id.
func (s *RecordStore) Get(_ context.Context, id int) (question.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return question.Record{}, false, nil
	}
	rec.AdditionalLinks = cloneLinks(rec.AdditionalLinks)
	return rec, true, nil
}

// Count returns the number of stored records.
func (s *RecordStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func cloneLinks(in []question.Link) []question.Link {
	out := make([]question.Link, len(in))
	copy(out, in)
	return out
}
