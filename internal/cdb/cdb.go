// Package cdb implements the HTTP wire protocol to chessdb.cn's position
// database: queryall/queue/queryscore, retries with backoff, and the global
// concurrency gate on logical queries.
package cdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Score bands, current chessdb.cn convention (spec.md §9 open question (ii):
// implementers must parameterise if CDB's bands drift).
const (
	ScoreMate    = 30000
	ScoreTBWin   = 25000
	ScoreCursed  = 20000
	ScoreSpecial = 10000
	// MaxEGTBPieces is the piece count at or below which an unproven TB score of
	// +-1 still warrants continued search (castling-rights edge case).
	MaxEGTBPieces = 7
	// MinScoredMoves is the "sieved" threshold below which a known position
	// is considered incomplete.
	MinScoredMoves = 5
)

// ScoredMove is one CDB-reported move and its centipawn score, already
// clipped/adjusted per the cursed-win rule.
type ScoredMove struct {
	UCI   string
	Score int
}

// QueryResult is the outcome of one queryall call.
type QueryResult struct {
	Known    bool
	Complete bool
	TBHit    bool
	Ply      int
	Moves    []ScoredMove // best first, CDB's own ordering
}

// InvalidPositionError is returned when CDB reports the position itself is
// illegal or unreachable; this is the one condition that aborts a root
// search rather than downgrading to unknown.
type InvalidPositionError struct {
	EPD string
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("cdb: invalid board: %s", e.EPD)
}

// RetryExhaustedError is returned when a call could not complete after the
// configured number of attempts; callers treat it as "no information".
type RetryExhaustedError struct {
	Op       string
	EPD      string
	LastErr  error
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("cdb: %s for %s exhausted %d attempts: %v", e.Op, e.EPD, e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }

// Client talks to chessdb.cn. Zero value is not usable; construct with New.
type Client struct {
	httpc       *http.Client
	baseURL     string
	userAgent   string
	maxAttempts int
	sem         *semaphore.Weighted

	queryallN   atomic.Int64
	inflightQ   atomic.Int64
	sumInflight atomic.Int64
	queryTimeNs atomic.Int64
	queryTimeN  atomic.Int64
	enqueuedN   atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpc = c }
}

// WithBaseURL overrides the chessdb.cn endpoint, primarily for tests.
func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = u }
}

// WithUser sets the user-agent suffix identifying the caller to chessdb.cn.
func WithUser(user string) Option {
	return func(cl *Client) {
		if user == "" {
			cl.userAgent = "cdbexplore"
			return
		}
		cl.userAgent = "cdbexplore (user=" + user + ")"
	}
}

// WithMaxAttempts overrides the retry cap (default 5).
func WithMaxAttempts(n int) Option {
	return func(cl *Client) { cl.maxAttempts = n }
}

// New builds a Client gated by concurrency logical permits.
func New(concurrency int, opts ...Option) *Client {
	cl := &Client{
		httpc:       &http.Client{Timeout: 15 * time.Second},
		baseURL:     "https://www.chessdb.cn/cdb.php",
		userAgent:   "cdbexplore",
		maxAttempts: 5,
		sem:         semaphore.NewWeighted(int64(concurrency)),
	}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

// Stats is a snapshot of the client's running counters, reset per engine
// iteration by the caller via Reset.
type Stats struct {
	QueryAll        int64
	Enqueued        int64
	MeanInflightQ   float64
	MeanQueryTimeMs float64
}

// Snapshot reads the current counters without resetting them.
func (c *Client) Snapshot() Stats {
	n := c.queryallN.Load()
	var meanInflight, meanTime float64
	if n > 0 {
		meanInflight = float64(c.sumInflight.Load()) / float64(n)
	}
	if qn := c.queryTimeN.Load(); qn > 0 {
		meanTime = float64(c.queryTimeNs.Load()) / float64(qn) / float64(time.Millisecond)
	}
	return Stats{QueryAll: n, Enqueued: c.enqueuedN.Load(), MeanInflightQ: meanInflight, MeanQueryTimeMs: meanTime}
}

// Reset zeroes the running counters at the start of a new iteration.
func (c *Client) Reset() {
	c.queryallN.Store(0)
	c.inflightQ.Store(0)
	c.sumInflight.Store(0)
	c.queryTimeNs.Store(0)
	c.queryTimeN.Store(0)
	c.enqueuedN.Store(0)
}

type wireMove struct {
	UCI   string `json:"uci"`
	Score int    `json:"score"`
}

type wireResponse struct {
	Status string     `json:"status"`
	Moves  []wireMove `json:"moves"`
	Ply    int        `json:"ply"`
}

// QueryAll asks CDB for the scored move list at fp. If CDB reports the
// position unknown, it issues a follow-up queue call under the same
// semaphore permit and returns a result with Known=false.
func (c *Client) QueryAll(ctx context.Context, epd string, includeUnscored, chess960, cursedWins bool) (QueryResult, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return QueryResult{}, err
	}
	defer c.sem.Release(1)

	c.queryallN.Add(1)
	c.inflightQ.Add(1)
	c.sumInflight.Add(c.inflightQ.Load())
	start := time.Now()
	defer func() {
		c.inflightQ.Add(-1)
		c.queryTimeNs.Add(int64(time.Since(start)))
		c.queryTimeN.Add(1)
	}()

	action := "queryall"
	if includeUnscored {
		action += "&learn=1"
	}
	resp, err := c.call(ctx, action, epd, chess960)
	if err != nil {
		return QueryResult{}, err
	}

	switch resp.Status {
	case "unknown":
		c.enqueuedN.Add(1)
		if _, qerr := c.call(ctx, "queue", epd, chess960); qerr != nil {
			return QueryResult{}, qerr
		}
		return QueryResult{Known: false}, nil
	case "invalid board":
		return QueryResult{}, &InvalidPositionError{EPD: epd}
	case "checkmate", "stalemate":
		return QueryResult{Known: true, Complete: true}, nil
	case "nobestmove":
		return QueryResult{Known: true, Complete: true}, nil
	case "ok":
		moves := make([]ScoredMove, 0, len(resp.Moves))
		for _, m := range resp.Moves {
			s := m.Score
			if !cursedWins && abs(s) > ScoreCursed && abs(s) <= ScoreTBWin {
				s = 0
			}
			moves = append(moves, ScoredMove{UCI: m.UCI, Score: s})
		}
		return QueryResult{
			Known:    true,
			Complete: len(moves) >= MinScoredMoves,
			Ply:      resp.Ply,
			Moves:    moves,
		}, nil
	default:
		return QueryResult{}, fmt.Errorf("cdb: unexpected status %q for %s", resp.Status, epd)
	}
}

// Queue requests CDB to add and evaluate epd (and its immediate children).
func (c *Client) Queue(ctx context.Context, epd string, chess960 bool) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)
	_, err := c.call(ctx, "queue", epd, chess960)
	return err
}

// QueryScore re-checks a position that previously returned unknown.
func (c *Client) QueryScore(ctx context.Context, epd string, chess960 bool) (int, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer c.sem.Release(1)
	resp, err := c.call(ctx, "queryscore", epd, chess960)
	if err != nil {
		return 0, err
	}
	if len(resp.Moves) == 0 {
		return 0, errors.New("cdb: queryscore returned no score")
	}
	return resp.Moves[0].Score, nil
}

// call performs one retried HTTP round-trip for the given action/board,
// returning the parsed wire response.
func (c *Client) call(ctx context.Context, action, epd string, chess960 bool) (wireResponse, error) {
	u := c.baseURL + "?action=" + action + "&board=" + url.QueryEscape(epd) + "&json=1"
	if chess960 {
		u += "&chess960=1"
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return wireResponse{}, err
			}
		}

		resp, err := c.doOnce(ctx, u)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Status == "" {
			lastErr = errors.New("cdb: malformed reply, missing status")
			continue
		}
		if isBusy(resp.Status) {
			lastErr = fmt.Errorf("cdb: busy reply %q", resp.Status)
			continue
		}
		return resp, nil
	}
	return wireResponse{}, &RetryExhaustedError{Op: action, EPD: epd, LastErr: lastErr, Attempts: c.maxAttempts}
}

func (c *Client) doOnce(ctx context.Context, u string) (wireResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return wireResponse{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	res, err := c.httpc.Do(req)
	if err != nil {
		return wireResponse{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return wireResponse{}, fmt.Errorf("cdb: http %d: %s", res.StatusCode, string(body))
	}

	var wr wireResponse
	if err := json.NewDecoder(res.Body).Decode(&wr); err != nil {
		return wireResponse{}, fmt.Errorf("cdb: decode reply: %w", err)
	}
	return wr, nil
}

func isBusy(status string) bool {
	s := strings.ToLower(status)
	return strings.Contains(s, "rate limit") || strings.Contains(s, "busy")
}

func sleepBackoff(ctx context.Context, attempt int) error {
	base := 250 * time.Millisecond
	delay := base << uint(attempt-1)
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	delay += time.Duration(rand.Int63n(int64(base)))
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
