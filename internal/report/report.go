// Package report formats a search.Result as the stable per-depth text block
// consumed by downstream log readers.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vondele/cdbexplore/internal/search"
)

// Render formats one completed iteration. The layout is stable: two-space
// indent, labels left-padded to 10 characters, colon-space separator.
func Render(r search.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "  %10s: %s\n", "position", r.EPD)
	fmt.Fprintf(&b, "  %10s: %d\n", "depth", r.Depth)
	fmt.Fprintf(&b, "  %10s: %s\n", "score", scoreText(r))
	fmt.Fprintf(&b, "  %10s: %s\n", "pv", strings.Join(r.PV, " "))
	fmt.Fprintf(&b, "  %10s: %d\n", "queryall", r.Stats.QueryAll)
	fmt.Fprintf(&b, "  %10s: %d\n", "chessdbq", r.Stats.ChessDBQ)
	fmt.Fprintf(&b, "  %10s: %d\n", "enqueued", r.Stats.Enqueued)
	fmt.Fprintf(&b, "  %10s: %d\n", "requeued", r.Stats.Requeued)
	fmt.Fprintf(&b, "  %10s: %d\n", "unscored", r.Stats.Unscored)
	fmt.Fprintf(&b, "  %10s: %d\n", "reprobed", r.Stats.Reprobed)
	fmt.Fprintf(&b, "  %10s: %.2f\n", "inflightQ", r.Stats.InflightQ)
	fmt.Fprintf(&b, "  %10s: %.1f\n", "cdb_ms", r.Stats.CDBTimeMs)
	fmt.Fprintf(&b, "  %10s: %d\n", "level", r.Stats.Level)
	fmt.Fprintf(&b, "  %10s: %d\n", "max_level", r.Stats.MaxLevel)
	fmt.Fprintf(&b, "  %10s: %.2f\n", "bf", r.Stats.BranchFactor)
	fmt.Fprintf(&b, "  %10s: %s\n", "url", r.URL)
	fmt.Fprintf(&b, "  %10s: %s\n", "time", r.WallTime.String())

	return b.String()
}

// scoreText renders the score field, including the proven/unproven mate
// notation required by the mate-rendering invariant.
func scoreText(r search.Result) string {
	if r.Mate == nil {
		return strconv.Itoa(r.Score)
	}
	word := "checkmate"
	if r.Mate.Proven {
		word = "CHECKMATE"
	}
	sign := "+"
	if r.Mate.Moves < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%d %s (#%s%d)", r.Score, word, sign, abs(r.Mate.Moves))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
