// Package position wraps github.com/notnil/chess with the fingerprint and
// terminal-status helpers the search engine needs.
package position

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/notnil/chess"
)

// TerminalStatus classifies why a position has no legal continuation.
type TerminalStatus int

const (
	// NotTerminal means the position has at least one legal move.
	NotTerminal TerminalStatus = iota
	Checkmate
	Stalemate
	Draw
)

// Position is an immutable board position plus the castling-notation mode
// needed to normalize its fingerprint. notnil/chess.Game, not Position,
// owns move history, and a game rebuilt from a bare FEN on every Apply
// carries none of it — so this type threads its own history of fingerprint
// hashes explicitly across Apply calls, the way the engine is required to
// for 3-fold repetition detection.
type Position struct {
	game     *chess.Game
	chess960 bool
	history  []uint64 // fingerprint hash of every position from the search root through this one
}

// FromFEN builds a Position from a FEN string.
func FromFEN(fen string, chess960 bool) (Position, error) {
	fn, err := chess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	g := chess.NewGame(fn)
	p := Position{game: g, chess960: chess960}
	p.history = []uint64{p.fingerprint()}
	return p, nil
}

// Apply returns the position reached after playing the given UCI move.
// It never mutates the receiver; the returned Position's history is its
// own copy, safe to extend independently by concurrent sibling branches.
func (p Position) Apply(uci string) (Position, error) {
	pos := p.game.Position()
	move, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return Position{}, fmt.Errorf("decode move %q: %w", uci, err)
	}
	fn, err := chess.FEN(pos.String())
	if err != nil {
		return Position{}, fmt.Errorf("parse fen %q: %w", pos.String(), err)
	}
	g := chess.NewGame(fn)
	if err := g.Move(move); err != nil {
		return Position{}, fmt.Errorf("apply move %q: %w", uci, err)
	}
	next := Position{game: g, chess960: p.chess960}
	h := make([]uint64, len(p.history)+1)
	copy(h, p.history)
	h[len(p.history)] = next.fingerprint()
	next.history = h
	return next, nil
}

// LegalMoves returns the legal moves from this position in UCI notation.
func (p Position) LegalMoves() []string {
	valid := p.game.ValidMoves()
	moves := make([]string, 0, len(valid))
	pos := p.game.Position()
	for _, m := range valid {
		moves = append(moves, chess.UCINotation{}.Encode(pos, m))
	}
	return moves
}

// Terminal reports whether the position ends the game, and how. 3-fold
// repetition is checked first since it can end the game even when the
// side to move still has legal moves.
func (p Position) Terminal() TerminalStatus {
	if p.isRepeated() {
		return Draw
	}
	if len(p.game.ValidMoves()) > 0 {
		return NotTerminal
	}
	switch p.game.Method() {
	case chess.Checkmate:
		return Checkmate
	case chess.Stalemate:
		return Stalemate
	default:
		return Draw
	}
}

// isRepeated reports whether this position's fingerprint has occurred at
// least 3 times (itself included) among the positions threaded through
// Apply since the search root.
func (p Position) isRepeated() bool {
	target := p.fingerprint()
	count := 0
	for _, h := range p.history {
		if h == target {
			count++
		}
	}
	return count >= 3
}

func (p Position) fingerprint() uint64 {
	h := fnv.New64a()
	h.Write([]byte(p.EPD()))
	return h.Sum64()
}

// FEN returns the full FEN for this position, including move counters.
func (p Position) FEN() string {
	return p.game.Position().String()
}

// EPD returns the position fingerprint: FEN truncated before the two move
// counters, with castling rights normalized for the board's castling mode.
func (p Position) EPD() string {
	fields := strings.Fields(p.FEN())
	if len(fields) < 4 {
		return strings.Join(fields, " ")
	}
	pieces, side, castling, ep := fields[0], fields[1], fields[2], fields[3]
	if p.chess960 {
		castling = shredderCastling(pieces, castling)
	}
	if castling == "" {
		castling = "-"
	}
	if ep == "" {
		ep = "-"
	}
	return pieces + " " + side + " " + castling + " " + ep
}

// PlyCount returns the number of half-moves played since the search root
// this Position was built from (0 at the root itself).
func (p Position) PlyCount() int {
	return len(p.history) - 1
}

// Turn reports "w" or "b" for the side to move, matching CDB's convention.
func (p Position) Turn() string {
	if p.game.Position().Turn() == chess.Black {
		return "b"
	}
	return "w"
}

// shredderCastling rewrites standard KQkq-style castling rights into
// Shredder-FEN file letters: K/k become the file of the rightmost rook of
// that colour on its back rank, Q/q the file of the leftmost one (see
// rookFile). The king's square is not consulted, and any other character in
// the field is copied unchanged.
func shredderCastling(pieces, castling string) string {
	if castling == "-" || castling == "" {
		return castling
	}
	ranks := strings.Split(pieces, "/")
	if len(ranks) != 8 {
		return castling
	}
	whiteBack := ranks[7]
	blackBack := ranks[0]

	var out strings.Builder
	for _, c := range castling {
		switch c {
		case 'K':
			out.WriteByte(rookFile(whiteBack, true, true))
		case 'Q':
			out.WriteByte(rookFile(whiteBack, true, false))
		case 'k':
			out.WriteByte(rookFile(blackBack, false, true))
		case 'q':
			out.WriteByte(rookFile(blackBack, false, false))
		default:
			out.WriteRune(c)
		}
	}
	return out.String()
}

// rookFile finds the file letter of the outermost rook of the requested
// player on its back rank (rightmost for kingside, leftmost for queenside),
// expanding FEN digit runs; it returns 'X' when there is no such rook.
func rookFile(backRank string, white, kingside bool) byte {
	expanded := expandFENRank(backRank)
	rook := byte('R')
	if !white {
		rook = 'r'
	}
	if kingside {
		for i := len(expanded) - 1; i >= 0; i-- {
			if expanded[i] == rook {
				return 'a' + byte(i)
			}
		}
	} else {
		for i := 0; i < len(expanded); i++ {
			if expanded[i] == rook {
				return 'a' + byte(i)
			}
		}
	}
	return 'X'
}

func expandFENRank(rank string) string {
	var out strings.Builder
	for _, c := range rank {
		if c >= '1' && c <= '8' {
			for i := 0; i < int(c-'0'); i++ {
				out.WriteByte('.')
			}
		} else {
			out.WriteRune(c)
		}
	}
	return out.String()
}
