// Package memory provides an in-process subscriber store for local
// development and tests. It enforces the same uniqueness rules as the
// Postgres schema: ids and tokens are unique, and an email may have at most
// one record that is not unsubscribed.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ignite/newsletter/internal/domain"
)

// SubscriberRepo is a map-backed subscriber store. It is safe for concurrent use.
type SubscriberRepo struct {
	mu      sync.RWMutex
	byID    map[string]domain.SubscriberRecord
	byToken map[string]string // token -> id
	seq     map[string]int    // id -> insertion order, tie-breaker for equal timestamps
	next    int
}

// NewSubscriberRepo returns an empty store.
func NewSubscriberRepo() *SubscriberRepo {
	return &SubscriberRepo{
		byID:    make(map[string]domain.SubscriberRecord),
		byToken: make(map[string]string),
		seq:     make(map[string]int),
	}
}

// Save inserts s, or replaces the record sharing its id or token.
func (r *SubscriberRepo) Save(_ context.Context, s *domain.Subscriber) error {
	rec := s.Record()

	r.mu.Lock()
	defer r.mu.Unlock()

	id := rec.ID
	if _, ok := r.byID[id]; !ok {
		if existing, ok := r.byToken[rec.Token]; ok {
			id = existing
		}
	}
	if old, ok := r.byID[id]; ok && old.Token != rec.Token {
		return fmt.Errorf("save subscriber %s: token is immutable: %w", id, domain.ErrConflict)
	}

	if rec.Status != domain.StatusUnsubscribed {
		for otherID, other := range r.byID {
			if otherID != id && other.Email == rec.Email && other.Status != domain.StatusUnsubscribed {
				return fmt.Errorf("save subscriber: email already active: %w", domain.ErrConflict)
			}
		}
	}

	rec.ID = id
	if _, ok := r.seq[id]; !ok {
		r.next++
		r.seq[id] = r.next
	}
	r.byID[id] = rec
	r.byToken[rec.Token] = id
	return nil
}

// FindByEmail returns the most recently subscribed record for email.
func (r *SubscriberRepo) FindByEmail(_ context.Context, email string) (*domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *domain.SubscriberRecord
	for _, rec := range r.byID {
		if rec.Email != email {
			continue
		}
		if best == nil || r.newer(rec, *best) {
			rec := rec
			best = &rec
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return domain.SubscriberFromRecord(*best), nil
}

func (r *SubscriberRepo) FindByToken(_ context.Context, token string) (*domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return domain.SubscriberFromRecord(r.byID[id]), nil
}

func (r *SubscriberRepo) FindByID(_ context.Context, id string) (*domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return domain.SubscriberFromRecord(rec), nil
}

// FindAll returns every record, newest first.
func (r *SubscriberRepo) FindAll(_ context.Context) ([]*domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.sorted(func(domain.SubscriberRecord) bool { return true })
	out := make([]*domain.Subscriber, len(recs))
	for i := range recs {
		out[len(recs)-1-i] = domain.SubscriberFromRecord(recs[i])
	}
	return out, nil
}

// FindByStatus returns records in status, oldest first.
func (r *SubscriberRepo) FindByStatus(_ context.Context, status domain.SubscriberStatus) ([]*domain.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.sorted(func(rec domain.SubscriberRecord) bool { return rec.Status == status })
	out := make([]*domain.Subscriber, len(recs))
	for i, rec := range recs {
		out[i] = domain.SubscriberFromRecord(rec)
	}
	return out, nil
}

func (r *SubscriberRepo) CountByStatus(_ context.Context, status domain.SubscriberStatus) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.byID {
		if rec.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *SubscriberRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

// Delete removes a record. Returns domain.ErrNotFound if it doesn't exist.
func (r *SubscriberRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byToken, rec.Token)
	delete(r.seq, id)
	return nil
}

// sorted returns matching records oldest first. Caller holds the lock.
func (r *SubscriberRepo) sorted(keep func(domain.SubscriberRecord) bool) []domain.SubscriberRecord {
	var out []domain.SubscriberRecord
	for _, rec := range r.byID {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.newer(out[j], out[i])
	})
	return out
}

// newer reports whether a was subscribed after b.
func (r *SubscriberRepo) newer(a, b domain.SubscriberRecord) bool {
	if !a.SubscribedAt.Equal(b.SubscribedAt) {
		return a.SubscribedAt.After(b.SubscribedAt)
	}
	return r.seq[a.ID] > r.seq[b.ID]
}
