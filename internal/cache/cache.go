// Package cache implements the process-wide position cache: dedup of
// concurrent identical CDB lookups, the PV reprobe policy, and requeue of
// under-populated known positions.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vondele/cdbexplore/internal/cdb"
)

// Fetcher is the subset of *cdb.Client the cache depends on, so tests can
// substitute a stub without standing up an HTTP server.
type Fetcher interface {
	QueryAll(ctx context.Context, epd string, includeUnscored, chess960, cursedWins bool) (cdb.QueryResult, error)
	Queue(ctx context.Context, epd string, chess960 bool) error
}

type entry struct {
	result    cdb.QueryResult
	fetchedAt time.Time
	requeued  bool
}

// Cache deduplicates in-flight CDB lookups for the same fingerprint and
// tracks which known positions have already been requeued.
type Cache struct {
	client Fetcher
	group  singleflight.Group

	mu      sync.RWMutex
	entries map[string]*entry

	chess960   bool
	cursedWins bool

	requeuedCount atomic.Int64
}

// New builds a Cache backed by client.
func New(client Fetcher, chess960, cursedWins bool) *Cache {
	return &Cache{
		client:     client,
		entries:    make(map[string]*entry),
		chess960:   chess960,
		cursedWins: cursedWins,
	}
}

// Lookup returns the query result for epd. A cached entry is served directly
// only when it is Complete and reprobe is false; otherwise (reprobe, no entry
// yet, or an incomplete entry) a fresh CDB fetch is performed. Concurrent
// lookups for the same epd share one fetch via singleflight.
func (c *Cache) Lookup(ctx context.Context, epd string, reprobe bool) (cdb.QueryResult, error) {
	if !reprobe {
		if e, ok := c.peek(epd); ok && e.result.Complete {
			return e.result, nil
		}
	}

	v, err, _ := c.group.Do(epd, func() (interface{}, error) {
		if !reprobe {
			if e, ok := c.peek(epd); ok && e.result.Complete {
				return e.result, nil
			}
		}
		includeUnscored := true
		res, err := c.client.QueryAll(ctx, epd, includeUnscored, c.chess960, c.cursedWins)
		if err != nil {
			return cdb.QueryResult{}, err
		}
		c.store(epd, res)
		return res, nil
	})
	if err != nil {
		return cdb.QueryResult{}, err
	}
	return v.(cdb.QueryResult), nil
}

// Requeue issues one queue call for epd if it is known but under-populated:
// fewer than cdb.MinScoredMoves scored moves, and strictly fewer scored
// moves than legalMoveCount. Returns whether a requeue was issued.
func (c *Cache) Requeue(ctx context.Context, epd string, legalMoveCount int) (bool, error) {
	e, ok := c.peek(epd)
	if !ok || !e.result.Known {
		return false, nil
	}
	if len(e.result.Moves) >= cdb.MinScoredMoves || len(e.result.Moves) >= legalMoveCount {
		return false, nil
	}

	c.mu.Lock()
	if e.requeued {
		c.mu.Unlock()
		return false, nil
	}
	e.requeued = true
	c.mu.Unlock()

	if err := c.client.Queue(ctx, epd, c.chess960); err != nil {
		return false, err
	}
	c.requeuedCount.Add(1)
	return true, nil
}

func (c *Cache) peek(epd string) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[epd]
	return e, ok
}

func (c *Cache) store(epd string, res cdb.QueryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[epd]
	if !ok {
		e = &entry{}
		c.entries[epd] = e
	}
	e.result = res
	e.fetchedAt = time.Now()
}

// RequeuedCount returns the number of requeue calls issued so far.
func (c *Cache) RequeuedCount() int64 { return c.requeuedCount.Load() }
