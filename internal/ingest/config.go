package ingest

import (
	"time"

	"github.com/algobrain/threatgraph-backend/internal/platform/envutil"
	"github.com/algobrain/threatgraph-backend/internal/resolve"
)

// Config holds the pipeline knobs. Batch size and retry bound follow the
// defaults the source catalogs were tuned against.
type Config struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
	Resolver   resolve.Config
}

func DefaultConfig() Config {
	return Config{
		BatchSize:  100,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		Resolver:   resolve.DefaultConfig(),
	}
}

func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = envutil.Int("INGEST_BATCH_SIZE", cfg.BatchSize)
	cfg.MaxRetries = envutil.Int("INGEST_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryDelay = time.Duration(envutil.Int("INGEST_RETRY_DELAY_MS", int(cfg.RetryDelay/time.Millisecond))) * time.Millisecond
	cfg.Resolver.FuzzyThreshold = envutil.Float("RESOLVE_FUZZY_THRESHOLD", cfg.Resolver.FuzzyThreshold)
	cfg.Resolver.TacticThreshold = envutil.Float("RESOLVE_TACTIC_THRESHOLD", cfg.Resolver.TacticThreshold)
	cfg.Resolver.MaxFuzzyMatches = envutil.Int("RESOLVE_MAX_FUZZY_MATCHES", cfg.Resolver.MaxFuzzyMatches)
	return cfg
}
