package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/heron/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Lookup outcomes reported to the observer.
const (
	ResultHit    = "hit"
	ResultShared = "shared"
	ResultMiss   = "miss"
	ResultBypass = "bypass"
)

// Entry is one memoized snapshot.
type Entry[T any] struct {
	Value     T         `json:"value"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Memo holds the most recent full fetch of one collection. An entry older
// than the duration is stale: it is kept but never served.
type Memo[T any] struct {
	name     string
	duration time.Duration
	now      func() time.Time
	mirror   domain.Cache
	scope    string
	observe  func(result string)

	mu    sync.Mutex
	entry *Entry[T]
	gen   uint64
	group singleflight.Group
}

// MemoOption configures a Memo.
type MemoOption func(*memoOptions)

type memoOptions struct {
	now     func() time.Time
	mirror  domain.Cache
	scope   string
	observe func(string)
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoOption {
	return func(o *memoOptions) { o.now = now }
}

// WithMirror copies snapshots into a shared cache under scope.
func WithMirror(c domain.Cache, scope string) MemoOption {
	return func(o *memoOptions) {
		o.mirror = c
		o.scope = scope
	}
}

// WithObserver receives the outcome of every Get.
func WithObserver(fn func(result string)) MemoOption {
	return func(o *memoOptions) { o.observe = fn }
}

// NewMemo creates a memo for the named collection.
func NewMemo[T any](name string, duration time.Duration, opts ...MemoOption) *Memo[T] {
	o := memoOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mirror != nil && o.scope == "" {
		o.mirror = nil
	}
	return &Memo[T]{
		name:     name,
		duration: duration,
		now:      o.now,
		mirror:   o.mirror,
		scope:    o.scope,
		observe:  o.observe,
	}
}

// Get returns the cached value when useCache is set and the entry is fresh.
// Otherwise it calls fetch and stores the result. A fetch error leaves the
// previous entry in place. Concurrent misses share one fetch.
func (m *Memo[T]) Get(ctx context.Context, useCache bool, fetch func(ctx context.Context) (T, error)) (T, error) {
	if !useCache {
		m.report(ResultBypass)
		return m.load(ctx, fetch)
	}

	if v, ok := m.fresh(); ok {
		m.report(ResultHit)
		return v, nil
	}
	if v, ok := m.fromMirror(ctx); ok {
		m.report(ResultShared)
		return v, nil
	}

	m.report(ResultMiss)
	v, err, _ := m.group.Do(m.name, func() (any, error) {
		return m.load(ctx, fetch)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate clears the entry. Fetches already in flight will not
// repopulate it.
func (m *Memo[T]) Invalidate(ctx context.Context) {
	m.mu.Lock()
	m.entry = nil
	m.gen++
	m.mu.Unlock()
	m.group.Forget(m.name)

	if m.mirror != nil {
		if err := m.mirror.Delete(ctx, m.scope, m.key()); err != nil {
			slog.Warn("failed to clear shared snapshot", "collection", m.name, "error", err)
		}
	}
}

// Peek returns the current entry, fresh or stale.
func (m *Memo[T]) Peek() (Entry[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil {
		return Entry[T]{}, false
	}
	return *m.entry, true
}

// Name returns the collection the memo serves.
func (m *Memo[T]) Name() string { return m.name }

func (m *Memo[T]) load(ctx context.Context, fetch func(ctx context.Context) (T, error)) (T, error) {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}

	entry := &Entry[T]{Value: v, FetchedAt: m.now()}
	m.mu.Lock()
	stored := gen == m.gen
	if stored {
		m.entry = entry
	}
	m.mu.Unlock()

	if stored {
		m.publish(ctx, entry)
	}
	return v, nil
}

func (m *Memo[T]) fresh() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry != nil && m.isFresh(m.entry.FetchedAt) {
		return m.entry.Value, true
	}
	var zero T
	return zero, false
}

func (m *Memo[T]) isFresh(fetchedAt time.Time) bool {
	return m.now().Sub(fetchedAt) < m.duration
}

func (m *Memo[T]) fromMirror(ctx context.Context) (T, bool) {
	var zero T
	if m.mirror == nil {
		return zero, false
	}
	data, err := m.mirror.Get(ctx, m.scope, m.key())
	if err != nil {
		slog.Warn("shared snapshot read failed", "collection", m.name, "error", err)
		return zero, false
	}
	if data == nil {
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Warn("discarding unreadable shared snapshot", "collection", m.name, "error", err)
		return zero, false
	}
	if !m.isFresh(entry.FetchedAt) {
		return zero, false
	}

	m.mu.Lock()
	m.entry = &entry
	m.mu.Unlock()
	return entry.Value, true
}

func (m *Memo[T]) publish(ctx context.Context, entry *Entry[T]) {
	if m.mirror == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("failed to encode snapshot", "collection", m.name, "error", err)
		return
	}
	if err := m.mirror.Set(ctx, m.scope, m.key(), data, m.duration); err != nil {
		slog.Warn("failed to share snapshot", "collection", m.name, "error", err)
	}
}

func (m *Memo[T]) key() string {
	return "collection:" + m.name
}

func (m *Memo[T]) report(result string) {
	if m.observe != nil {
		m.observe(result)
	}
}
