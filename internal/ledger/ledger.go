// Package ledger remembers which issues have already been dispatched, so a
// repeated trigger does not mail subscribers twice.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dispatched:"

// Entry describes a finished dispatch.
type Entry struct {
	Slug   string    `json:"slug"`
	Sent   int       `json:"sent"`
	SentAt time.Time `json:"sentAt"`
}

// RedisLedger stores one hash per dispatched slug at "dispatched:{slug}".
type RedisLedger struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client, now: time.Now}
}

func (l *RedisLedger) WasDispatched(ctx context.Context, slug string) (bool, error) {
	n, err := l.client.Exists(ctx, keyPrefix+slug).Result()
	if err != nil {
		return false, fmt.Errorf("check dispatch ledger for %s: %w", slug, err)
	}
	return n > 0, nil
}

func (l *RedisLedger) MarkDispatched(ctx context.Context, slug string, sent int) error {
	err := l.client.HSet(ctx, keyPrefix+slug,
		"sent", sent,
		"sent_at", l.now().UTC().Format(time.RFC3339),
	).Err()
	if err != nil {
		return fmt.Errorf("record dispatch of %s: %w", slug, err)
	}
	return nil
}

// Get returns the recorded dispatch for slug, or ok=false if there is none.
func (l *RedisLedger) Get(ctx context.Context, slug string) (Entry, bool, error) {
	vals, err := l.client.HGetAll(ctx, keyPrefix+slug).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("read dispatch ledger for %s: %w", slug, err)
	}
	if len(vals) == 0 {
		return Entry{}, false, nil
	}
	e := Entry{Slug: slug}
	e.Sent, _ = strconv.Atoi(vals["sent"])
	e.SentAt, _ = time.Parse(time.RFC3339, vals["sent_at"])
	return e, true, nil
}

// MemoryLedger is the in-process counterpart used without Redis.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]Entry)}
}

func (l *MemoryLedger) WasDispatched(_ context.Context, slug string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[slug]
	return ok, nil
}

func (l *MemoryLedger) MarkDispatched(_ context.Context, slug string, sent int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[slug] = Entry{Slug: slug, Sent: sent, SentAt: time.Now()}
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, slug string) (Entry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[slug]
	return e, ok, nil
}
