package faststore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/metrics"
)

// Key layout. Counter buckets and log entries carry their own TTL so
// the store self-expires; nothing here is a source of truth beyond the
// 7-day horizon.
//
//	c:h:<category>:<item>:<hourBucket>   hourly counter, TTL 2x window
//	c:d:<category>:<item>:<dayBucket>    daily counter, TTL 2x window
//	l:<category>:<item>:<nano20>:<seq>   event log entry, TTL to ts+7d
//	k:<key>                              kv tier, caller-chosen TTL
const (
	counterTTLFactor = 2
	maxTxnRetries    = 8
	logNanoDigits    = 20
)

// BadgerStore implements Store over an embedded badger instance for
// counters, event logs and the kv tier, plus in-process treap ranked
// sets per category.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
	seq atomic.Uint64

	mu   sync.RWMutex
	sets map[category.Category]*rankedSet

	dir      string
	inMemory bool
	closed   atomic.Bool
}

var _ Store = (*BadgerStore)(nil)

// New opens the store. With no options it keeps everything in memory;
// production passes WithDir for an on-disk badger.
func New(_ context.Context, opts ...Option) (*BadgerStore, error) {
	s := &BadgerStore{
		now:      time.Now,
		sets:     make(map[category.Category]*rankedSet),
		inMemory: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	bopts := badger.DefaultOptions(s.dir).
		WithInMemory(s.inMemory).
		WithLogger(nil)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s.db = db
	return s, nil
}

// Close shuts the underlying badger down.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) set(cat category.Category) *rankedSet {
	s.mu.RLock()
	rs, ok := s.sets[cat]
	s.mu.RUnlock()
	if ok {
		return rs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs, ok = s.sets[cat]; ok {
		return rs
	}
	rs = newRankedSet()
	s.sets[cat] = rs
	return rs
}

func hourlyKey(cat category.Category, itemID string, bucket int64) []byte {
	return []byte(fmt.Sprintf("c:h:%s:%s:%d", cat, itemID, bucket))
}

func dailyKey(cat category.Category, itemID string, bucket int64) []byte {
	return []byte(fmt.Sprintf("c:d:%s:%s:%d", cat, itemID, bucket))
}

func logPrefix(cat category.Category, itemID string) []byte {
	return []byte(fmt.Sprintf("l:%s:%s:", cat, itemID))
}

func kvKey(key string) []byte {
	return []byte("k:" + key)
}

// RecordEvent implements Store.RecordEvent.
func (s *BadgerStore) RecordEvent(ctx context.Context, itemID string, cat category.Category, ts time.Time) error {
	if s.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	now := s.now()

	hourBucket := ts.Unix() / int64(HourWindow.Seconds())
	hourExpiry := time.Unix((hourBucket+counterTTLFactor)*int64(HourWindow.Seconds()), 0)
	if ttl := hourExpiry.Sub(now); ttl > 0 {
		if err := s.increment(hourlyKey(cat, itemID, hourBucket), ttl); err != nil {
			return fmt.Errorf("increment hourly bucket: %w", err)
		}
	}

	dayBucket := ts.Unix() / int64(DayWindow.Seconds())
	dayExpiry := time.Unix((dayBucket+counterTTLFactor)*int64(DayWindow.Seconds()), 0)
	if ttl := dayExpiry.Sub(now); ttl > 0 {
		if err := s.increment(dailyKey(cat, itemID, dayBucket), ttl); err != nil {
			return fmt.Errorf("increment daily bucket: %w", err)
		}
	}

	if ttl := ts.Add(WeekHorizon).Sub(now); ttl > 0 {
		key := append(logPrefix(cat, itemID),
			fmt.Sprintf("%0*d:%d", logNanoDigits, ts.UnixNano(), s.seq.Add(1))...)
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(key, nil).WithTTL(ttl))
		})
		if err != nil {
			return fmt.Errorf("append event log: %w", err)
		}
	}

	return nil
}

// increment is a transactional read-modify-write with retry on badger's
// optimistic-concurrency conflict.
func (s *BadgerStore) increment(key []byte, ttl time.Duration) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			var n int64
			item, gerr := txn.Get(key)
			switch {
			case gerr == nil:
				val, verr := item.ValueCopy(nil)
				if verr != nil {
					return verr
				}
				n, verr = strconv.ParseInt(string(val), 10, 64)
				if verr != nil {
					return verr
				}
			case errors.Is(gerr, badger.ErrKeyNotFound):
				// first event in this bucket
			default:
				return gerr
			}
			entry := badger.NewEntry(key, []byte(strconv.FormatInt(n+1, 10))).WithTTL(ttl)
			return txn.SetEntry(entry)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// WindowCounts implements Store.WindowCounts.
func (s *BadgerStore) WindowCounts(ctx context.Context, itemID string, cat category.Category) (types.WindowCounts, error) {
	if s.closed.Load() {
		return types.WindowCounts{}, ErrClosed
	}

	now := s.now()
	hourBucket := now.Unix() / int64(HourWindow.Seconds())
	dayBucket := now.Unix() / int64(DayWindow.Seconds())

	var counts types.WindowCounts
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if counts.Hour, err = readCounter(txn, hourlyKey(cat, itemID, hourBucket)); err != nil {
			return err
		}
		if counts.Day, err = readCounter(txn, dailyKey(cat, itemID, dayBucket)); err != nil {
			return err
		}
		counts.Week = countLogSince(txn, logPrefix(cat, itemID), now.Add(-WeekHorizon))
		return nil
	})
	if err != nil {
		return types.WindowCounts{}, fmt.Errorf("read window counts: %w", err)
	}
	return counts, nil
}

func readCounter(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(val), 10, 64)
}

// countLogSince counts live log entries at or after the horizon. Badger
// skips expired entries during iteration; the timestamp check covers
// entries whose TTL has not been compacted away yet.
func countLogSince(txn *badger.Txn, prefix []byte, since time.Time) int64 {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	var n int64
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if logEntryNano(it.Item().Key(), prefix) >= since.UnixNano() {
			n++
		}
	}
	return n
}

// logEntryNano parses the zero-padded nanosecond segment out of a log key.
func logEntryNano(key, prefix []byte) int64 {
	rest := key[len(prefix):]
	if len(rest) < logNanoDigits {
		return 0
	}
	nano, err := strconv.ParseInt(string(rest[:logNanoDigits]), 10, 64)
	if err != nil {
		return 0
	}
	return nano
}

// PruneEventLog implements Store.PruneEventLog.
func (s *BadgerStore) PruneEventLog(ctx context.Context, itemID string, cat category.Category) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	prefix := logPrefix(cat, itemID)
	horizon := s.now().Add(-WeekHorizon).UnixNano()

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if logEntryNano(it.Item().Key(), prefix) < horizon {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan event log: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete log entry: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush log prune: %w", err)
	}
	return len(stale), nil
}

// LogItems implements Store.LogItems.
func (s *BadgerStore) LogItems(ctx context.Context, cat category.Category) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	prefix := []byte(fmt.Sprintf("l:%s:", cat))
	seen := make(map[string]struct{})
	var items []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			id := logEntryItem(it.Item().Key(), prefix)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			items = append(items, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan category log: %w", err)
	}
	return items, nil
}

// logEntryItem strips the trailing <nano>:<seq> segments off a log key
// and returns the item id. Item ids may themselves contain colons.
func logEntryItem(key, prefix []byte) string {
	rest := key[len(prefix):]
	i := bytes.LastIndexByte(rest, ':')
	if i < 0 {
		return ""
	}
	rest = rest[:i]
	i = bytes.LastIndexByte(rest, ':')
	if i < 0 {
		return ""
	}
	return string(rest[:i])
}

// UpsertScore implements Store.UpsertScore.
func (s *BadgerStore) UpsertScore(ctx context.Context, cat category.Category, itemID string, score float64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	rs := s.set(cat)
	rs.upsert(itemID, score)
	metrics.UpdateRankedSetSize(string(cat), rs.size())
	return nil
}

// RemoveScore implements Store.RemoveScore.
func (s *BadgerStore) RemoveScore(ctx context.Context, cat category.Category, itemID string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	rs := s.set(cat)
	rs.remove(itemID)
	metrics.UpdateRankedSetSize(string(cat), rs.size())
	return nil
}

// TopScores implements Store.TopScores.
func (s *BadgerStore) TopScores(ctx context.Context, cat category.Category, n int) ([]types.ScoredItem, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	return s.set(cat).top(n), nil
}

// TrimScores implements Store.TrimScores.
func (s *BadgerStore) TrimScores(ctx context.Context, cat category.Category, keep int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	rs := s.set(cat)
	rs.trim(keep)
	metrics.UpdateRankedSetSize(string(cat), rs.size())
	return nil
}

// ScoreCount implements Store.ScoreCount.
func (s *BadgerStore) ScoreCount(ctx context.Context, cat category.Category) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	return s.set(cat).size(), nil
}

// SetJSON implements Store.SetJSON.
func (s *BadgerStore) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(kvKey(key), val)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// GetJSON implements Store.GetJSON.
func (s *BadgerStore) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kvKey(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}
	if err := json.Unmarshal(val, out); err != nil {
		return false, fmt.Errorf("unmarshal %q: %w", key, err)
	}
	return true, nil
}

// Delete implements Store.Delete.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(kvKey(key))
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// DeletePrefix implements Store.DeletePrefix.
func (s *BadgerStore) DeletePrefix(ctx context.Context, prefix string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	full := kvKey(prefix)

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = full
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if bytes.HasPrefix(it.Item().Key(), full) {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan prefix %q: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("delete %q: %w", string(key), err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush prefix delete: %w", err)
	}
	return nil
}
