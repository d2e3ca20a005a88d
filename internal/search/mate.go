package search

import (
	"context"
	"math"

	"github.com/vondele/cdbexplore/internal/cdb"
	"github.com/vondele/cdbexplore/internal/position"
)

// buildMateInfo derives the mate distance/sign from score and, if
// ProveMates is set, runs the defender-verification pass along pv.
func (e *Engine) buildMateInfo(ctx context.Context, root position.Position, pv []string, score int) *MateInfo {
	plies := cdb.ScoreMate - abs(score)
	moves := int(math.Ceil(float64(plies) / 2.0))
	if score < 0 {
		moves = -moves
	}
	info := &MateInfo{Plies: plies, Moves: moves}
	if !e.cfg.ProveMates {
		return info
	}
	info.Proven = e.pvHasProvenMate(ctx, root, pv)
	return info
}

// pvHasProvenMate verifies pv is a mating line CDB can fully corroborate.
// The role of pos (attacker delivering a forced continuation, or defender
// whose every legal reply must be refuted) is decided by the parity of the
// remaining pv (which ends in the "checkmate" token), not by a fixed "push
// pv[0] first" assumption: an even remaining length means pos's side plays
// the last move and delivers mate, so only the given continuation needs
// checking; an odd remaining length means pos's side is the one being
// mated, so every legal reply — not just pv[0] — must be shown to lose
// within the claimed distance. Unknown defender replies are requeued and the proof is
// reported unproven for this iteration.
func (e *Engine) pvHasProvenMate(ctx context.Context, pos position.Position, pv []string) bool {
	if len(pv) == 0 || pv[len(pv)-1] != "checkmate" {
		return false
	}
	if len(pv) == 1 {
		return true
	}

	if len(pv)%2 == 0 {
		// pos's side is forced along the whole remaining line; only the
		// claimed move needs to be pushed, no alternatives to check here.
		next, err := pos.Apply(pv[0])
		if err != nil {
			return false
		}
		return e.pvHasProvenMate(ctx, next, pv[1:])
	}

	// pos's side still has a choice: every legal reply, not just pv[0],
	// must lead to a proven mate within the claimed distance.
	epd := pos.EPD()
	res, err := e.cache.Lookup(ctx, epd, false)
	if err != nil || !res.Known {
		return false
	}

	legal := pos.LegalMoves()
	if len(res.Moves) < len(legal) {
		for _, m := range legal {
			if !containsUCI(res.Moves, m) {
				_, _ = e.cache.Requeue(ctx, epd, len(legal))
				e.stats.unscored.Add(1)
			}
		}
		return false
	}

	// verify the given continuation: push this position's claimed move and
	// the opponent's forced reply, then recurse on what remains.
	afterMove, err := pos.Apply(pv[0])
	if err != nil {
		return false
	}
	afterReply, err := afterMove.Apply(pv[1])
	if err != nil {
		return false
	}
	if !e.pvHasProvenMate(ctx, afterReply, pv[2:]) {
		return false
	}

	// every alternative move for this position must also inevitably mate
	// within the claimed distance.
	for _, m := range legal {
		if m == pv[0] {
			continue
		}
		child, err := pos.Apply(m)
		if err != nil {
			return false
		}
		altPV, err := e.obtainPV(ctx, child, len(pv)-2)
		if err != nil {
			return false
		}
		if !e.pvHasProvenMate(ctx, child, altPV) {
			return false
		}
	}

	return true
}

// obtainPV walks the cache greedily to depth plies, used only to construct
// candidate PVs for the mate-proof pass.
func (e *Engine) obtainPV(ctx context.Context, pos position.Position, depth int) ([]string, error) {
	switch pos.Terminal() {
	case position.Checkmate:
		return []string{"checkmate"}, nil
	case position.Stalemate, position.Draw:
		return []string{"draw"}, nil
	}
	if depth <= 0 {
		return nil, nil
	}

	epd := pos.EPD()
	res, err := e.cache.Lookup(ctx, epd, false)
	if err != nil {
		return nil, err
	}
	if !res.Known || len(res.Moves) == 0 {
		return []string{"invalid"}, nil
	}

	best := res.Moves[0]
	next, err := pos.Apply(best.UCI)
	if err != nil {
		return nil, err
	}
	rest, err := e.obtainPV(ctx, next, depth-1)
	if err != nil {
		return nil, err
	}
	return append([]string{best.UCI}, rest...), nil
}

func containsUCI(moves []cdb.ScoredMove, uci string) bool {
	for _, m := range moves {
		if m.UCI == uci {
			return true
		}
	}
	return false
}
