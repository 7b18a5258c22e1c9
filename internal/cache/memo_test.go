package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/heron/internal/domain"
)

func countingFetch(calls *int32, value []domain.Record) func(context.Context) ([]domain.Record, error) {
	return func(context.Context) ([]domain.Record, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func TestMemoFreshness(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := NewMemo[[]domain.Record]("RAID Log", 5*time.Minute, WithClock(clock.Now))

	var calls int32
	rows := []domain.Record{{"Id": 1, "Title": "first"}}
	fetch := countingFetch(&calls, rows)

	first, err := m.Get(ctx, true, fetch)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	clock.Advance(4 * time.Minute)
	second, _ := m.Get(ctx, true, fetch)
	if calls != 1 {
		t.Fatalf("expected 1 fetch within the window, got %d", calls)
	}
	if &first[0] != &second[0] {
		t.Error("expected the identical snapshot within the window")
	}

	clock.Advance(time.Minute)
	_, _ = m.Get(ctx, true, fetch)
	if calls != 2 {
		t.Errorf("expected a second fetch once the window elapsed, got %d", calls)
	}
}

func TestMemoBypassAndInvalidate(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	var outcomes []string
	m := NewMemo[[]domain.Record]("RCA Register", time.Minute,
		WithClock(clock.Now),
		WithObserver(func(r string) { outcomes = append(outcomes, r) }),
	)

	var calls int32
	fetch := countingFetch(&calls, []domain.Record{{"Id": 2}})

	_, _ = m.Get(ctx, true, fetch)
	_, _ = m.Get(ctx, false, fetch)
	if calls != 2 {
		t.Errorf("expected bypass to fetch, got %d calls", calls)
	}

	m.Invalidate(ctx)
	if _, ok := m.Peek(); ok {
		t.Error("expected no entry after invalidate")
	}
	_, _ = m.Get(ctx, true, fetch)
	if calls != 3 {
		t.Errorf("expected fetch after invalidate, got %d calls", calls)
	}

	want := []string{ResultMiss, ResultBypass, ResultMiss}
	if len(outcomes) != len(want) {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Errorf("outcome %d = %s, want %s", i, outcomes[i], want[i])
		}
	}
}

func TestMemoFetchErrorKeepsEntry(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := NewMemo[[]domain.Record]("RAID Log", time.Minute, WithClock(clock.Now))

	var calls int32
	_, _ = m.Get(ctx, true, countingFetch(&calls, []domain.Record{{"Id": 9}}))
	before, _ := m.Peek()

	clock.Advance(2 * time.Minute)
	boom := errors.New("boom")
	_, err := m.Get(ctx, true, func(context.Context) ([]domain.Record, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error to propagate, got %v", err)
	}

	after, ok := m.Peek()
	if !ok || !after.FetchedAt.Equal(before.FetchedAt) || after.Value[0].ID() != 9 {
		t.Errorf("expected previous stale entry to remain, got %#v", after)
	}
}

func TestMemoSingleFlight(t *testing.T) {
	ctx := context.Background()
	m := NewMemo[[]domain.Record]("Lessons Learned", time.Minute)

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]domain.Record, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []domain.Record{{"Id": 1}}, nil
	}

	var wg sync.WaitGroup
	started := make(chan struct{}, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			_, _ = m.Get(ctx, true, fetch)
		}()
	}
	for i := 0; i < 8; i++ {
		<-started
	}
	// Let every goroutine reach the shared call before releasing it.
	for atomic.LoadInt32(&calls) == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected concurrent misses to share one fetch, got %d", calls)
	}
}

func TestMemoInvalidateDuringFetch(t *testing.T) {
	ctx := context.Background()
	m := NewMemo[[]domain.Record]("RAID Log", time.Minute)

	fetch := func(context.Context) ([]domain.Record, error) {
		m.Invalidate(ctx)
		return []domain.Record{{"Id": 1}}, nil
	}
	if _, err := m.Get(ctx, true, fetch); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, ok := m.Peek(); ok {
		t.Error("a fetch that raced an invalidate must not repopulate the entry")
	}
}

func TestMemoMirror(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	shared := NewLRUCache(10)
	shared.now = clock.Now

	writer := NewMemo[[]domain.Record]("RAID Log", time.Minute, WithClock(clock.Now), WithMirror(shared, "ws"))
	reader := NewMemo[[]domain.Record]("RAID Log", time.Minute, WithClock(clock.Now), WithMirror(shared, "ws"))

	var writes, reads int32
	_, _ = writer.Get(ctx, true, countingFetch(&writes, []domain.Record{{"Id": float64(4), "Title": "x"}}))

	clock.Advance(30 * time.Second)
	got, err := reader.Get(ctx, true, countingFetch(&reads, nil))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if reads != 0 {
		t.Error("expected the shared snapshot to be reused")
	}
	if len(got) != 1 || got[0].ID() != 4 {
		t.Errorf("unexpected shared snapshot %#v", got)
	}

	t.Run("StaleSharedSnapshotIgnored", func(t *testing.T) {
		late := NewMemo[[]domain.Record]("RAID Log", 10*time.Second, WithClock(clock.Now), WithMirror(shared, "ws"))
		_, _ = late.Get(ctx, true, countingFetch(&reads, []domain.Record{}))
		if reads != 1 {
			t.Errorf("expected a fetch for a stale shared snapshot, got %d", reads)
		}
	})

	t.Run("InvalidateClearsMirror", func(t *testing.T) {
		writer.Invalidate(ctx)
		if val, _ := shared.Get(ctx, "ws", "collection:RAID Log"); val != nil {
			t.Error("expected shared snapshot to be removed")
		}
	})
}
