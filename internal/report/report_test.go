package report

import (
	"strings"
	"testing"
	"time"

	"github.com/vondele/cdbexplore/internal/search"
)

func TestRenderProvenMate(t *testing.T) {
	r := search.Result{
		EPD:      "3r4/3N2kr/1p6/pBpn1p2/Q2PR1p1/P7/1P4P1/2q3K1 w - -",
		Depth:    1,
		PV:       []string{"e4e7", "g7h6", "a4f4", "h6h5", "f4h4", "checkmate"},
		Score:    -29990,
		Mate:     &search.MateInfo{Plies: 10, Moves: -5, Proven: true},
		WallTime: 1500 * time.Millisecond,
	}
	out := Render(r)
	if !strings.Contains(out, "CHECKMATE (#-5)") {
		t.Fatalf("rendered output missing proven mate token:\n%s", out)
	}
	if !strings.Contains(out, "-29990") {
		t.Fatalf("rendered output missing score:\n%s", out)
	}
}

func TestRenderUnprovenMateLowercase(t *testing.T) {
	r := search.Result{
		Score: 29990,
		Mate:  &search.MateInfo{Plies: 10, Moves: 5, Proven: false},
	}
	out := Render(r)
	if !strings.Contains(out, "checkmate (#+5)") {
		t.Fatalf("rendered output missing unproven mate token:\n%s", out)
	}
	if strings.Contains(out, "CHECKMATE") {
		t.Fatalf("unproven mate must not render upper-case:\n%s", out)
	}
}

func TestRenderPlainScore(t *testing.T) {
	r := search.Result{Score: 37}
	out := Render(r)
	if !strings.Contains(out, "score: 37") {
		t.Fatalf("rendered output missing plain score:\n%s", out)
	}
}
