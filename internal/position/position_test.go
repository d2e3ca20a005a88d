package position

import "testing"

func TestEPDStripsMoveCounters(t *testing.T) {
	p, err := FromFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", false)
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	got := p.EPD()
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3"
	if got != want {
		t.Fatalf("EPD() = %q, want %q", got, want)
	}
}

func TestApplyProducesExpectedFEN(t *testing.T) {
	p, err := FromFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", false)
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	next, err := p.Apply("e2e4")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	wantEPD := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3"
	if got := next.EPD(); got != wantEPD {
		t.Fatalf("EPD() after e2e4 = %q, want %q", got, wantEPD)
	}
}

func TestTerminalCheckmate(t *testing.T) {
	// Fool's mate final position, white to move, checkmated.
	p, err := FromFEN("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", false)
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	if status := p.Terminal(); status != Checkmate {
		t.Fatalf("Terminal() = %v, want Checkmate", status)
	}
}

func TestLegalMovesNonEmptyAtStart(t *testing.T) {
	p, err := FromFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", false)
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	moves := p.LegalMoves()
	if len(moves) != 20 {
		t.Fatalf("LegalMoves() len = %d, want 20", len(moves))
	}
}

func TestThreefoldRepetitionIsDraw(t *testing.T) {
	p, err := FromFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", false)
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}

	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	apply := func(pos Position, uci string) Position {
		t.Helper()
		next, err := pos.Apply(uci)
		if err != nil {
			t.Fatalf("Apply(%q): %v", uci, err)
		}
		return next
	}

	for _, uci := range shuffle {
		p = apply(p, uci)
	}
	if status := p.Terminal(); status != NotTerminal {
		t.Fatalf("Terminal() after 2nd occurrence = %v, want NotTerminal", status)
	}

	for _, uci := range shuffle {
		p = apply(p, uci)
	}
	if status := p.Terminal(); status != Draw {
		t.Fatalf("Terminal() after 3rd occurrence = %v, want Draw", status)
	}
}

func TestPlyCountTracksApply(t *testing.T) {
	p, err := FromFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", false)
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	if p.PlyCount() != 0 {
		t.Fatalf("PlyCount() at root = %d, want 0", p.PlyCount())
	}
	next, err := p.Apply("e2e4")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next.PlyCount() != 1 {
		t.Fatalf("PlyCount() after one move = %d, want 1", next.PlyCount())
	}
}
