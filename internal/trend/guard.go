// Package trend implements the trending engine: score aggregation, the
// debounced recompute scheduler, the guarded read path with durable
// fallback, periodic durable sync, and personalization blending.
package trend

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/pulse/internal/adapters/faststore"
	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Breaker defaults: trip after 3 consecutive failures, retry after 30s.
// MaxRequests 1 means the first successful call after the cooldown
// closes the breaker again (optimistic retry, not a health probe).
const (
	defaultFailureThreshold = 3
	defaultCooldown         = 30 * time.Second
)

// Guard wraps the fast store's read-path operations with a circuit
// breaker. While the breaker is open the read path skips the fast store
// entirely and serves from durable storage; staleness is preferred over
// read failure.
type Guard struct {
	store faststore.Store
	cb    *gobreaker.CircuitBreaker[any]
	name  string

	failureThreshold uint32
	cooldown         time.Duration

	logger logger.Logger
}

// GuardOption applies a configuration option to the Guard.
type GuardOption func(*Guard)

// WithFailureThreshold sets the consecutive-failure trip threshold.
func WithFailureThreshold(n uint32) GuardOption {
	return func(g *Guard) {
		if n > 0 {
			g.failureThreshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before retrying.
func WithCooldown(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.cooldown = d
		}
	}
}

// NewGuard creates a circuit-breaker guard over the fast store.
func NewGuard(store faststore.Store, opts ...GuardOption) *Guard {
	g := &Guard{
		store:            store,
		name:             "faststore",
		failureThreshold: defaultFailureThreshold,
		cooldown:         defaultCooldown,
		logger:           logger.Get().Named("breaker"),
	}
	for _, opt := range opts {
		opt(g)
	}

	metrics.UpdateBreakerState(g.name, stateToFloat(gobreaker.StateClosed))

	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        g.name,
		MaxRequests: 1,
		Timeout:     g.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn(context.Background(), "breaker state change",
				logger.String("from", stateToString(from)),
				logger.String("to", stateToString(to)),
			)
			metrics.UpdateBreakerState(name, stateToFloat(to))
			metrics.RecordBreakerTransition(name, stateToString(from), stateToString(to))
		},
	})

	return g
}

// Available reports whether fast-store calls are currently allowed.
func (g *Guard) Available() bool {
	return g.cb.State() != gobreaker.StateOpen
}

func (g *Guard) execute(fn func() (any, error)) (any, error) {
	result, err := g.cb.Execute(fn)
	if err != nil {
		switch err {
		case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
			metrics.RecordBreakerRejected(g.name)
		default:
			metrics.RecordErrorByComponent("faststore", "read_path")
		}
		return nil, err
	}
	return result, nil
}

// TopScores reads the top-n ranked entries through the breaker.
func (g *Guard) TopScores(ctx context.Context, cat category.Category, n int) ([]types.ScoredItem, error) {
	result, err := g.execute(func() (any, error) {
		return g.store.TopScores(ctx, cat, n)
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.ScoredItem), nil
}

// WindowCounts reads an item's window counts through the breaker.
func (g *Guard) WindowCounts(ctx context.Context, itemID string, cat category.Category) (types.WindowCounts, error) {
	result, err := g.execute(func() (any, error) {
		return g.store.WindowCounts(ctx, itemID, cat)
	})
	if err != nil {
		return types.WindowCounts{}, err
	}
	return result.(types.WindowCounts), nil
}

// GetJSON reads a kv-tier entry through the breaker.
func (g *Guard) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	result, err := g.execute(func() (any, error) {
		return g.store.GetJSON(ctx, key, out)
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// SetJSON writes a kv-tier entry through the breaker.
func (g *Guard) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	_, err := g.execute(func() (any, error) {
		return nil, g.store.SetJSON(ctx, key, v, ttl)
	})
	return err
}

// DeletePrefix removes kv-tier entries through the breaker.
func (g *Guard) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := g.execute(func() (any, error) {
		return nil, g.store.DeletePrefix(ctx, prefix)
	})
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
