package search

import "time"

// Config controls one engine's iterative-deepening run.
type Config struct {
	// DepthLimit stops iteration after this depth; 0 means unlimited.
	DepthLimit int
	// TimeLimit stops iteration once exceeded; 0 means unlimited.
	TimeLimit time.Duration
	// Concurrency bounds CDB logical queries in flight.
	Concurrency int
	// EvalDecay is centipawns lost per unit of width-gate depth reduction;
	// 0 means PV-only (single-line descent).
	EvalDecay int
	// CursedWins treats |score| in (20000,25000] as a real win/loss instead
	// of clipping it to 0. Scores above 25000 are mate scores and are never
	// clipped.
	CursedWins bool
	// TBSearch expands past tablebase-scored positions instead of treating
	// them as leaves.
	TBSearch bool
	// ProveMates runs the defender-verification pass on a returned mate.
	ProveMates bool
	// Chess960 enables Shredder-FEN castling normalization and the CDB
	// wire flag for chess960 positions.
	Chess960 bool
	// User is appended to the CDB client's user-agent.
	User string
	// SuppressErrors silences the per-query error log on transport failure.
	SuppressErrors bool
	// MaxAttempts overrides the CDB client's retry cap (default 5).
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 16
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Option overrides a single Config field, for library callers that would
// rather not build the struct literal directly (e.g. env-var-driven
// callers layering a few overrides on top of loaded defaults).
type Option func(*Config)

func WithDepthLimit(n int) Option           { return func(c *Config) { c.DepthLimit = n } }
func WithTimeLimit(d time.Duration) Option  { return func(c *Config) { c.TimeLimit = d } }
func WithConcurrency(n int) Option          { return func(c *Config) { c.Concurrency = n } }
func WithEvalDecay(n int) Option            { return func(c *Config) { c.EvalDecay = n } }
func WithCursedWins(b bool) Option          { return func(c *Config) { c.CursedWins = b } }
func WithTBSearch(b bool) Option            { return func(c *Config) { c.TBSearch = b } }
func WithProveMates(b bool) Option          { return func(c *Config) { c.ProveMates = b } }
func WithChess960(b bool) Option            { return func(c *Config) { c.Chess960 = b } }
func WithUser(user string) Option           { return func(c *Config) { c.User = user } }
func WithSuppressErrors(b bool) Option      { return func(c *Config) { c.SuppressErrors = b } }
func WithMaxAttempts(n int) Option          { return func(c *Config) { c.MaxAttempts = n } }

func (c Config) withOptions(opts ...Option) Config {
	for _, o := range opts {
		o(&c)
	}
	return c
}
