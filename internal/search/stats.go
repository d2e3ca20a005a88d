package search

import (
	"math"
	"sync/atomic"
)

// Stats accumulates the per-iteration counters described by the engine's
// statistics feedback loop. MaxLevel alone survives across iterations.
type Stats struct {
	queryall atomic.Int64
	enqueued atomic.Int64
	requeued atomic.Int64
	unscored atomic.Int64
	reprobed atomic.Int64
	level    atomic.Int64
	maxLevel atomic.Int64
}

func (s *Stats) observeLevel(level int) {
	for {
		cur := s.level.Load()
		if int64(level) <= cur {
			break
		}
		if s.level.CompareAndSwap(cur, int64(level)) {
			break
		}
	}
	for {
		cur := s.maxLevel.Load()
		if int64(level) <= cur {
			break
		}
		if s.maxLevel.CompareAndSwap(cur, int64(level)) {
			break
		}
	}
}

func (s *Stats) resetIteration() {
	s.queryall.Store(0)
	s.enqueued.Store(0)
	s.requeued.Store(0)
	s.unscored.Store(0)
	s.reprobed.Store(0)
	s.level.Store(0)
}

// Snapshot is the immutable, exported view of Stats for a completed depth.
type Snapshot struct {
	QueryAll     int64
	ChessDBQ     int64
	Enqueued     int64
	Requeued     int64
	Unscored     int64
	Reprobed     int64
	InflightQ    float64
	CDBTimeMs    float64
	Level        int64
	MaxLevel     int64
	BranchFactor float64
}

func (s *Stats) snapshot(depth int, chessdbq, enqueued int64, inflightQ, cdbTimeMs float64) Snapshot {
	qa := s.queryall.Load()
	bf := 0.0
	if depth > 0 && qa > 0 {
		bf = math.Pow(float64(qa), 1.0/float64(depth))
	}
	return Snapshot{
		QueryAll:     qa,
		ChessDBQ:     chessdbq,
		Enqueued:     enqueued,
		Requeued:     s.requeued.Load(),
		Unscored:     s.unscored.Load(),
		Reprobed:     s.reprobed.Load(),
		InflightQ:    inflightQ,
		CDBTimeMs:    cdbTimeMs,
		Level:        s.level.Load(),
		MaxLevel:     s.maxLevel.Load(),
		BranchFactor: bf,
	}
}
