package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vondele/cdbexplore/internal/cdb"
)

type fakeFetcher struct {
	mu        sync.Mutex
	queryalls int64
	queues    int64
	result    cdb.QueryResult
	delay     time.Duration // keeps a fetch in flight so concurrent lookups overlap
}

func (f *fakeFetcher) QueryAll(ctx context.Context, epd string, includeUnscored, chess960, cursedWins bool) (cdb.QueryResult, error) {
	atomic.AddInt64(&f.queryalls, 1)
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, nil
}

func (f *fakeFetcher) Queue(ctx context.Context, epd string, chess960 bool) error {
	atomic.AddInt64(&f.queues, 1)
	return nil
}

func TestLookupDedupsConcurrentCalls(t *testing.T) {
	f := &fakeFetcher{result: cdb.QueryResult{Known: true, Moves: []cdb.ScoredMove{{UCI: "e2e4", Score: 10}}}, delay: 50 * time.Millisecond}
	c := New(f, false, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Lookup(context.Background(), "epd-x", false)
			if err != nil {
				t.Errorf("Lookup: %v", err)
			}
		}()
	}
	wg.Wait()

	// singleflight collapses concurrent identical lookups into one fetch;
	// a handful of distinct rounds is acceptable if goroutines race ahead
	// of the first completion, but it must be far fewer than the caller count.
	if got := atomic.LoadInt64(&f.queryalls); got == 0 || got > 5 {
		t.Fatalf("expected dedup of concurrent fetches, got %d queryall calls", got)
	}
}

func TestLookupServesCompleteFromCache(t *testing.T) {
	f := &fakeFetcher{result: cdb.QueryResult{
		Known:    true,
		Complete: true,
		Moves:    make([]cdb.ScoredMove, cdb.MinScoredMoves),
	}}
	c := New(f, false, false)

	if _, err := c.Lookup(context.Background(), "epd-y", false); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := c.Lookup(context.Background(), "epd-y", false); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got := atomic.LoadInt64(&f.queryalls); got != 1 {
		t.Fatalf("expected 1 fetch for a complete cached entry, got %d", got)
	}
}

func TestLookupReprobeForcesFetch(t *testing.T) {
	f := &fakeFetcher{result: cdb.QueryResult{
		Known:    true,
		Complete: true,
		Moves:    make([]cdb.ScoredMove, cdb.MinScoredMoves),
	}}
	c := New(f, false, false)

	if _, err := c.Lookup(context.Background(), "epd-z", false); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := c.Lookup(context.Background(), "epd-z", true); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got := atomic.LoadInt64(&f.queryalls); got != 2 {
		t.Fatalf("expected reprobe to force a second fetch, got %d", got)
	}
}

func TestRequeueUnderPopulated(t *testing.T) {
	f := &fakeFetcher{result: cdb.QueryResult{
		Known: true,
		Moves: []cdb.ScoredMove{{UCI: "e2e4", Score: 10}, {UCI: "d2d4", Score: 5}, {UCI: "c2c4", Score: 3}},
	}}
	c := New(f, false, false)

	if _, err := c.Lookup(context.Background(), "epd-w", false); err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	requeued, err := c.Requeue(context.Background(), "epd-w", 12)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if !requeued {
		t.Fatalf("expected requeue for 3-of-12 scored position")
	}
	if got := atomic.LoadInt64(&f.queues); got != 1 {
		t.Fatalf("expected exactly one queue call, got %d", got)
	}

	// a second requeue attempt on the same stale entry is a no-op.
	requeued, err = c.Requeue(context.Background(), "epd-w", 12)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if requeued {
		t.Fatalf("expected second requeue to be suppressed")
	}
	if got := atomic.LoadInt64(&f.queues); got != 1 {
		t.Fatalf("expected queue count unchanged, got %d", got)
	}
}

func TestRequeueSkippedWhenComplete(t *testing.T) {
	f := &fakeFetcher{result: cdb.QueryResult{
		Known: true,
		Moves: make([]cdb.ScoredMove, cdb.MinScoredMoves),
	}}
	c := New(f, false, false)
	if _, err := c.Lookup(context.Background(), "epd-v", false); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	requeued, err := c.Requeue(context.Background(), "epd-v", 12)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if requeued {
		t.Fatalf("expected no requeue once 5 moves are scored")
	}
}
