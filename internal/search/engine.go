// Package search implements iterative-deepening minimax over CDB's scored
// move lists, with a decay-based width gate, concurrent sibling recursion,
// and a mate-proof refinement pass.
package search

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vondele/cdbexplore/internal/cache"
	"github.com/vondele/cdbexplore/internal/cdb"
	"github.com/vondele/cdbexplore/internal/position"
)

// errUnknownNode is returned internally when a node's own position could
// not be resolved against CDB this pass; the caller downgrades to "no
// information" rather than treating it as a hard failure.
var errUnknownNode = errors.New("search: position unknown to cdb")

// Result is one completed iteration's outcome.
type Result struct {
	EPD      string
	Depth    int
	PV       []string
	Score    int
	Mate     *MateInfo
	Stats    Snapshot
	URL      string
	WallTime time.Duration
}

// MateInfo describes a mate score found at the root.
type MateInfo struct {
	Plies   int
	Moves   int // signed, ceil(Plies/2) with the sign of the mating side
	Proven  bool
}

// Engine runs iterative-deepening searches against a CDB client and cache.
type Engine struct {
	client *cdb.Client
	cache  *cache.Cache
	cfg    Config

	stats   Stats
	pvHints sync.Map // epd -> best uci move from the most recent iteration

	rootEPD string
}

// New builds an Engine with its own CDB client and position cache.
func New(cfg Config, opts ...Option) *Engine {
	cfg = cfg.withOptions(opts...).withDefaults()
	client := cdb.New(cfg.Concurrency, cdb.WithUser(cfg.User), cdb.WithMaxAttempts(cfg.MaxAttempts))
	return NewWithClient(cfg, client)
}

// NewWithClient builds an Engine against a caller-supplied CDB client,
// primarily so tests can inject a stub transport.
func NewWithClient(cfg Config, client *cdb.Client, opts ...Option) *Engine {
	cfg = cfg.withOptions(opts...).withDefaults()
	c := cache.New(client, cfg.Chess960, cfg.CursedWins)
	return &Engine{client: client, cache: c, cfg: cfg}
}

// Search runs iterative deepening from root, emitting one Result per
// completed depth on the returned channel, closed when the run ends. The
// error channel carries at most one value: a root-level abort.
func (e *Engine) Search(ctx context.Context, root position.Position) (<-chan Result, <-chan error) {
	out := make(chan Result)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		e.rootEPD = root.EPD()
		start := time.Now()
		var previousPV []string

		for depth := 1; e.cfg.DepthLimit == 0 || depth <= e.cfg.DepthLimit; depth++ {
			if e.cfg.TimeLimit > 0 && time.Since(start) > e.cfg.TimeLimit {
				return
			}

			e.stats.resetIteration()
			e.client.Reset()
			pvSet := pvNodeSet(root, previousPV)

			iterStart := time.Now()
			score, pv, err := e.search(ctx, root, depth, 0, pvSet)
			if err != nil {
				var invalid *cdb.InvalidPositionError
				if errors.As(err, &invalid) {
					errc <- err
					return
				}
				if !e.cfg.SuppressErrors {
					log.Printf("search: depth %d aborted: %v", depth, err)
				}
				return
			}
			elapsed := time.Since(iterStart)

			var mate *MateInfo
			if isMateScore(score) {
				mate = e.buildMateInfo(ctx, root, pv, score)
			}

			cs := e.client.Snapshot()
			snap := e.stats.snapshot(depth, cs.QueryAll, cs.Enqueued, cs.MeanInflightQ, cs.MeanQueryTimeMs)

			result := Result{
				EPD:      e.rootEPD,
				Depth:    depth,
				PV:       pv,
				Score:    score,
				Mate:     mate,
				Stats:    snap,
				URL:      buildURL(e.rootEPD, pv),
				WallTime: elapsed,
			}

			select {
			case out <- result:
			case <-ctx.Done():
				return
			}

			previousPV = pv
			if mate != nil && e.cfg.ProveMates && mate.Proven {
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return out, errc
}

// pvNodeSet returns the EPD fingerprints along previousPV from root,
// including root itself (invariant: the root is always reprobed).
func pvNodeSet(root position.Position, previousPV []string) map[string]struct{} {
	set := map[string]struct{}{root.EPD(): {}}
	pos := root
	for _, m := range previousPV {
		if m == "checkmate" || m == "draw" || m == "EGTB" || m == "invalid" {
			break
		}
		next, err := pos.Apply(m)
		if err != nil {
			break
		}
		pos = next
		set[pos.EPD()] = struct{}{}
	}
	return set
}

// search returns the minimax score (from pos's side to move) and PV at
// remaining depth r, or errUnknownNode if pos's own position could not be
// resolved against CDB this pass.
func (e *Engine) search(ctx context.Context, pos position.Position, r, level int, pvSet map[string]struct{}) (int, []string, error) {
	e.stats.observeLevel(level)
	e.stats.queryall.Add(1)

	switch pos.Terminal() {
	case position.Checkmate:
		return -cdb.ScoreMate, []string{"checkmate"}, nil
	case position.Stalemate, position.Draw:
		return 0, []string{"draw"}, nil
	}

	epd := pos.EPD()
	_, reprobe := pvSet[epd]
	if reprobe {
		e.stats.reprobed.Add(1)
	}

	res, err := e.cache.Lookup(ctx, epd, reprobe)
	if err != nil {
		var invalid *cdb.InvalidPositionError
		if errors.As(err, &invalid) {
			return 0, nil, err
		}
		return 0, nil, errUnknownNode
	}
	if !res.Known {
		return 0, nil, errUnknownNode
	}
	if len(res.Moves) == 0 {
		// CDB reports this position known but scoreless (checkmate,
		// stalemate, or nobestmove); if our own board still sees legal
		// moves, that's a nobestmove/EGTB mismatch worth requeuing.
		legal := pos.LegalMoves()
		if requeued, _ := e.cache.Requeue(ctx, epd, len(legal)); requeued {
			e.stats.requeued.Add(1)
		}
		return 0, nil, errUnknownNode
	}

	if !e.cfg.TBSearch && pieceCount(epd) <= cdb.MaxEGTBPieces {
		best := res.Moves[0]
		if abs(best.Score) != 1 {
			e.pvHints.Store(epd, best.UCI)
			return best.Score, []string{best.UCI, "EGTB"}, nil
		}
	}

	legal := pos.LegalMoves()
	requeued, _ := e.cache.Requeue(ctx, epd, len(legal))
	if requeued {
		e.stats.requeued.Add(1)
	}

	if r <= 0 {
		best := res.Moves[0]
		e.pvHints.Store(epd, best.UCI)
		return best.Score, []string{best.UCI}, nil
	}

	bestCachedScore := res.Moves[0].Score
	type candidate struct {
		uci         string
		rchild      int
		cachedScore int
	}
	var qualifying []candidate
	for _, m := range res.Moves {
		rchild := widthGate(r, bestCachedScore, m.Score, e.cfg.EvalDecay)
		if rchild < 0 {
			break
		}
		qualifying = append(qualifying, candidate{m.UCI, rchild, m.Score})
	}
	if len(qualifying) == 0 {
		// widthGate admits the top move whenever r >= 1, so this branch is
		// defensive only; fall back to the cached leaf evaluation.
		best := res.Moves[0]
		e.pvHints.Store(epd, best.UCI)
		return best.Score, []string{best.UCI}, nil
	}

	type childResult struct {
		score int
		pv    []string
		err   error
	}
	results := make([]childResult, len(qualifying))

	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range qualifying {
		i, cand := i, cand
		g.Go(func() error {
			child, aerr := pos.Apply(cand.uci)
			if aerr != nil {
				results[i] = childResult{err: aerr}
				return nil
			}
			s, cpv, serr := e.search(gctx, child, cand.rchild, level+1, pvSet)
			results[i] = childResult{score: s, pv: cpv, err: serr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	for _, cr := range results {
		var invalid *cdb.InvalidPositionError
		if cr.err != nil && errors.As(cr.err, &invalid) {
			return 0, nil, cr.err
		}
	}

	bestScore := -(cdb.ScoreMate + 1)
	var bestUCI string
	var bestPV []string
	for i, cand := range qualifying {
		cr := results[i]
		var score int
		var pv []string
		if cr.err == nil {
			score = -cr.score
			pv = append([]string{cand.uci}, cr.pv...)
		} else {
			// no deeper information: fall back to the cached score, already
			// oriented from this node's side to move.
			score = cand.cachedScore
			pv = []string{cand.uci}
		}
		if bestUCI == "" || score > bestScore {
			bestScore, bestUCI, bestPV = score, cand.uci, pv
		}
	}

	e.pvHints.Store(epd, bestUCI)
	return bestScore, bestPV, nil
}

// widthGate implements the decay-based width pruning rule: it returns the
// remaining depth to search the child reached by a move scoring s, given
// the node's best cached score. A negative return means the move is cut.
func widthGate(r, bestScore, s, evalDecay int) int {
	if evalDecay == 0 {
		if s == bestScore {
			return r - 1
		}
		return -1
	}
	delta := bestScore - s
	if delta < 0 {
		delta = 0
	}
	return r - 1 - delta/evalDecay
}

func pieceCount(epd string) int {
	pieces := strings.SplitN(epd, " ", 2)[0]
	n := 0
	for _, c := range pieces {
		if strings.ContainsRune("pnbrqkPNBRQK", c) {
			n++
		}
	}
	return n
}

func isMateScore(score int) bool {
	return abs(score) > cdb.ScoreTBWin
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// buildURL constructs the chessdb.cn exploration URL for a root EPD and its
// PV, spaces replaced with underscores.
func buildURL(rootEPD string, pv []string) string {
	var moves []string
	for _, m := range pv {
		if m == "checkmate" || m == "draw" || m == "EGTB" || m == "invalid" {
			break
		}
		moves = append(moves, m)
	}

	var b strings.Builder
	b.WriteString("https://www.chessdb.cn/queryc_en/?")
	b.WriteString(strings.ReplaceAll(rootEPD, " ", "_"))
	if len(moves) > 0 {
		b.WriteString("_moves_")
		b.WriteString(strings.Join(moves, "_"))
	}
	return b.String()
}
