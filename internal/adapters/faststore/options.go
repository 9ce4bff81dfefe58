package faststore

import "time"

// Option applies a configuration option to the BadgerStore.
type Option func(*BadgerStore)

// WithDir stores data on disk under dir instead of in memory.
func WithDir(dir string) Option {
	return func(s *BadgerStore) {
		if dir != "" {
			s.dir = dir
			s.inMemory = false
		}
	}
}

// WithClock overrides the wall clock. Tests use this to pin window
// bucket boundaries.
func WithClock(now func() time.Time) Option {
	return func(s *BadgerStore) {
		if now != nil {
			s.now = now
		}
	}
}
