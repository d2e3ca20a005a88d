// Command cdbexplore runs an iterative-deepening exploration of a chessdb.cn
// position from a FEN given on the command line, printing one stats block
// per completed depth.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/vondele/cdbexplore/internal/cdb"
	"github.com/vondele/cdbexplore/internal/config"
	"github.com/vondele/cdbexplore/internal/position"
	"github.com/vondele/cdbexplore/internal/report"
	"github.com/vondele/cdbexplore/internal/search"
)

func main() {
	cfg := config.LoadConfig()

	fen := flag.String("fen", "", "FEN of the root position (default: standard start position)")
	depthLimit := flag.Int("depth", cfg.Search.DepthLimit, "stop after this many iterations (0 = unlimited)")
	concurrency := flag.Int("concurrency", cfg.Search.Concurrency, "CDB logical-query concurrency")
	evalDecay := flag.Int("evalDecay", cfg.Search.EvalDecay, "centipawns lost per depth unit of width pruning (0 = PV-only)")
	cursedWins := flag.Bool("cursedWins", cfg.Search.CursedWins, "count cursed wins/losses as real wins/losses")
	tbSearch := flag.Bool("TBsearch", cfg.Search.TBSearch, "expand past tablebase-scored positions")
	proveMates := flag.Bool("proveMates", cfg.Search.ProveMates, "run the mate-proof pass on a returned mate")
	chess960 := flag.Bool("chess960", cfg.Search.Chess960, "enable chess960 castling semantics")
	user := flag.String("user", cfg.Search.User, "user-agent suffix sent to chessdb.cn")
	flag.Parse()

	if *fen == "" {
		*fen = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	}

	root, err := position.FromFEN(*fen, *chess960)
	if err != nil {
		log.Fatalf("cdbexplore: invalid fen %q: %v", *fen, err)
	}

	scfg := search.Config{
		DepthLimit:     *depthLimit,
		Concurrency:    *concurrency,
		EvalDecay:      *evalDecay,
		CursedWins:     *cursedWins,
		TBSearch:       *tbSearch,
		ProveMates:     *proveMates,
		Chess960:       *chess960,
		User:           *user,
		SuppressErrors: cfg.Search.SuppressErrors,
		MaxAttempts:    cfg.Search.MaxAttempts,
	}

	var opts []cdb.Option
	opts = append(opts, cdb.WithUser(*user), cdb.WithMaxAttempts(scfg.MaxAttempts))
	if cfg.BaseURL != "" {
		opts = append(opts, cdb.WithBaseURL(cfg.BaseURL))
	}
	client := cdb.New(*concurrency, opts...)
	engine := search.NewWithClient(scfg, client)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, errc := engine.Search(ctx, root)
	for r := range out {
		fmt.Print(report.Render(r))
		fmt.Println()
	}
	if err := <-errc; err != nil {
		log.Fatalf("cdbexplore: %v", err)
	}
}
