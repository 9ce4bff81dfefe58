// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...Option) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// BadgerDir points the fast store at an on-disk badger. Empty keeps
	// the store in memory.
	BadgerDir string `koanf:"badger_dir"`

	// PostgresDSN configures durable storage. Empty falls back to an
	// in-memory durable store (dev/test only).
	PostgresDSN string `koanf:"postgres_dsn"`

	// EventQueueSize bounds the in-memory ingestion queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the event deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxTrendingLimit caps GET /trending?limit.
	MaxTrendingLimit int `koanf:"max_trending_limit"`

	// RankedKeep bounds each category's ranked set.
	RankedKeep int `koanf:"ranked_keep"`

	// QuietPeriod is the recompute debounce window.
	QuietPeriod time.Duration `koanf:"quiet_period"`

	// SyncInterval is the cadence of the durable sync pass; SyncLimit is
	// how many top items each pass snapshots per category.
	SyncInterval time.Duration `koanf:"sync_interval"`
	SyncLimit    int           `koanf:"sync_limit"`

	// BreakerThreshold and BreakerCooldown tune the fast-store circuit
	// breaker on the read path.
	BreakerThreshold int           `koanf:"breaker_threshold"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown"`

	// ResultTTL, CountsTTL and PersonalTTL bound read-path cache
	// staleness.
	ResultTTL   time.Duration `koanf:"result_ttl"`
	CountsTTL   time.Duration `koanf:"counts_ttl"`
	PersonalTTL time.Duration `koanf:"personal_ttl"`

	// MetaLocalTTL and MetaLocalCap tune the in-process metadata tier.
	MetaLocalTTL time.Duration `koanf:"meta_local_ttl"`
	MetaLocalCap int           `koanf:"meta_local_cap"`
}

// New creates a Config with defaults. Context is accepted first to
// satisfy the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9080",
		EventQueueSize:   100_000,
		WorkerCount:      runtime.NumCPU() * 4,
		DedupeSize:       50_000,
		MaxTrendingLimit: 50,
		RankedKeep:       1000,
		QuietPeriod:      5 * time.Second,
		SyncInterval:     15 * time.Minute,
		SyncLimit:        100,
		BreakerThreshold: 3,
		BreakerCooldown:  30 * time.Second,
		ResultTTL:        5 * time.Minute,
		CountsTTL:        5 * time.Minute,
		PersonalTTL:      5 * time.Minute,
		MetaLocalTTL:     time.Minute,
		MetaLocalCap:     1000,
	}
}
