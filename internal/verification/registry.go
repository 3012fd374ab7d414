// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Registry holds pending verifications keyed by state token.
// It is safe for concurrent use by request handlers and the sweeper.
type Registry struct {
	records map[string]*Record
	now     func() time.Time
	mu      sync.RWMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry's notion of the current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Put inserts or overwrites the record stored under rec.State.
func (r *Registry) Put(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.State] = &rec
}

// Get returns a copy of the record for state.
func (r *Registry) Get(state string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[state]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Delete removes the record for state. Deleting a missing record is a no-op.
func (r *Registry) Delete(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, state)
}

// Update applies fn to the record for state under the lock.
// The change is kept only when fn returns true. Returns false when the
// record is missing or fn rejected it.
func (r *Registry) Update(state string, fn func(*Record) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[state]
	if !ok {
		return false
	}

	updated := *rec
	if !fn(&updated) {
		return false
	}
	r.records[state] = &updated
	return true
}

// Take removes and returns the record for state if it is in the given step.
// Only one caller can take a given record.
func (r *Registry) Take(state string, step Step) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[state]
	if !ok || rec.Step != step {
		return Record{}, false
	}
	delete(r.records, state)
	return *rec, true
}

// Size returns the number of pending records.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records)
}

// BySubject returns the pending records of a subject, oldest first.
func (r *Registry) BySubject(subjectID string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := lo.FilterMap(lo.Values(r.records), func(rec *Record, _ int) (Record, bool) {
		return *rec, rec.SubjectID == subjectID
	})
	sortByCreatedAt(records)
	return records
}

// Sweep removes every record older than maxAge and returns how many were removed.
func (r *Registry) Sweep(maxAge time.Duration) int {
	return len(r.SweepExpired(maxAge))
}

// SweepExpired removes every record older than maxAge and returns them.
func (r *Registry) SweepExpired(maxAge time.Duration) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var expired []Record
	for state, rec := range r.records {
		if now.Sub(rec.CreatedAt) > maxAge {
			expired = append(expired, *rec)
			delete(r.records, state)
		}
	}
	sortByCreatedAt(expired)
	return expired
}

func sortByCreatedAt(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
