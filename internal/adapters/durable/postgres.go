package durable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/pulse/internal/domain/category"
)

// Default connection pool settings.
const (
	defaultMaxConns       = 10
	defaultConnectTimeout = 30 * time.Second
)

// schema is applied on startup. The empty-string user_id stands for the
// shared snapshot so the three-column key stays a plain unique index.
const schema = `
CREATE TABLE IF NOT EXISTS trend_records (
	item_id       TEXT        NOT NULL,
	category      TEXT        NOT NULL,
	user_id       TEXT        NOT NULL DEFAULT '',
	count_1h      BIGINT      NOT NULL,
	count_24h     BIGINT      NOT NULL,
	count_7d      BIGINT      NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	calculated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (item_id, category, user_id)
);
CREATE INDEX IF NOT EXISTS trend_records_top_idx
	ON trend_records (category, score DESC, calculated_at);
CREATE TABLE IF NOT EXISTS trend_tags (
	item_id  TEXT NOT NULL,
	category TEXT NOT NULL,
	tag      TEXT NOT NULL,
	PRIMARY KEY (item_id, category)
);
`

// PostgresStore implements Store over a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption applies a configuration option to the pool setup.
type PostgresOption func(*pgxpool.Config)

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) PostgresOption {
	return func(cfg *pgxpool.Config) {
		if n > 0 {
			cfg.MaxConns = n
		}
	}
}

// NewPostgres connects, pings, and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = defaultMaxConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	for _, opt := range opts {
		opt(poolConfig)
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// UpsertRecord implements Store.UpsertRecord with a single atomic
// insert-or-update on the natural key.
func (s *PostgresStore) UpsertRecord(ctx context.Context, rec TrendRecord) error {
	const q = `
INSERT INTO trend_records (item_id, category, user_id, count_1h, count_24h, count_7d, score, calculated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (item_id, category, user_id) DO UPDATE SET
	count_1h = EXCLUDED.count_1h,
	count_24h = EXCLUDED.count_24h,
	count_7d = EXCLUDED.count_7d,
	score = EXCLUDED.score,
	calculated_at = EXCLUDED.calculated_at`
	_, err := s.pool.Exec(ctx, q,
		rec.ItemID, string(rec.Category), rec.UserID,
		rec.Counts.Hour, rec.Counts.Day, rec.Counts.Week,
		rec.Score, rec.CalculatedAt)
	if err != nil {
		return fmt.Errorf("upsert trend record: %w", err)
	}
	return nil
}

// TopRecent implements Store.TopRecent.
func (s *PostgresStore) TopRecent(ctx context.Context, cat category.Category, limit int, within time.Duration) ([]TrendRecord, error) {
	const q = `
SELECT item_id, category, user_id, count_1h, count_24h, count_7d, score, calculated_at
FROM trend_records
WHERE category = $1 AND user_id = '' AND calculated_at > $2
ORDER BY score DESC, calculated_at DESC
LIMIT $3`
	rows, err := s.pool.Query(ctx, q, string(cat), time.Now().Add(-within), limit)
	if err != nil {
		return nil, fmt.Errorf("query top recent: %w", err)
	}
	defer rows.Close()

	var out []TrendRecord
	for rows.Next() {
		var rec TrendRecord
		var catRaw string
		if err := rows.Scan(&rec.ItemID, &catRaw, &rec.UserID,
			&rec.Counts.Hour, &rec.Counts.Day, &rec.Counts.Week,
			&rec.Score, &rec.CalculatedAt); err != nil {
			return nil, fmt.Errorf("scan trend record: %w", err)
		}
		rec.Category = category.Category(catRaw)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend records: %w", err)
	}
	return out, nil
}

// TagFor implements Store.TagFor.
func (s *PostgresStore) TagFor(ctx context.Context, itemID string, cat category.Category) (string, error) {
	const q = `SELECT tag FROM trend_tags WHERE item_id = $1 AND category = $2`
	var tag string
	err := s.pool.QueryRow(ctx, q, itemID, string(cat)).Scan(&tag)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrTagNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query tag: %w", err)
	}
	return tag, nil
}

// UpsertTag implements Store.UpsertTag.
func (s *PostgresStore) UpsertTag(ctx context.Context, itemID string, cat category.Category, tag string) error {
	const q = `
INSERT INTO trend_tags (item_id, category, tag)
VALUES ($1, $2, $3)
ON CONFLICT (item_id, category) DO UPDATE SET tag = EXCLUDED.tag`
	if _, err := s.pool.Exec(ctx, q, itemID, string(cat), tag); err != nil {
		return fmt.Errorf("upsert tag: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
