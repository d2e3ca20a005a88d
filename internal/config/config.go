// Package config loads engine configuration from the environment, the way
// the rest of this codebase's ambient config layer does, using godotenv for
// optional local .env loading.
package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/vondele/cdbexplore/internal/search"
)

// Config is the environment-loadable superset of search.Config, plus the
// fields only the CLI driver needs (the CDB endpoint override, used only in
// local/dev runs against a test double).
type Config struct {
	Search  search.Config
	BaseURL string
}

// LoadConfig reads CDB_* environment variables, falling back to defaults for
// anything left unset or unparsable: Concurrency 16 and MaxAttempts 5 (as in
// search.Config.withDefaults), ProveMates true, and zero values otherwise.
func LoadConfig() Config {
	return Config{
		Search: search.Config{
			DepthLimit:     atoiOr("CDB_DEPTH_LIMIT", 0),
			TimeLimit:      durationOr("CDB_TIME_LIMIT", 0),
			Concurrency:    atoiOr("CDB_CONCURRENCY", 16),
			EvalDecay:      atoiOr("CDB_EVAL_DECAY", 0),
			CursedWins:     boolOr("CDB_CURSED_WINS", false),
			TBSearch:       boolOr("CDB_TB_SEARCH", false),
			ProveMates:     boolOr("CDB_PROVE_MATES", true),
			Chess960:       boolOr("CDB_CHESS960", false),
			User:           os.Getenv("CDB_USER"),
			SuppressErrors: boolOr("CDB_SUPPRESS_ERRORS", false),
			MaxAttempts:    atoiOr("CDB_MAX_ATTEMPTS", 5),
		},
		BaseURL: os.Getenv("CDB_BASE_URL"),
	}
}

func atoiOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolOr(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}
