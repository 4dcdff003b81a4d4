package vortexstats

import (
	"context"
	"sort"
	"strings"
	"sync"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
)

// CounterStore holds per-category owner counts for the lifetime of the
// process. One store is created at startup and shared by every collaborator
// that records or reports usage.
//
// A single RWMutex guards all categories: increments and resets are
// serialized against each other and against snapshot reads, so no increment
// is lost and no read observes a partial update.
type CounterStore struct {
	logger slog.Logger
	clock  quartz.Clock

	mu     sync.RWMutex
	counts map[Category]map[string]int64
}

// StoreOption configures a CounterStore.
type StoreOption func(*CounterStore)

// WithStoreLogger sets the logger used for resets and misuse warnings.
func WithStoreLogger(logger slog.Logger) StoreOption {
	return func(s *CounterStore) {
		s.logger = logger
	}
}

// WithStoreClock sets the clock used to stamp snapshots.
func WithStoreClock(clock quartz.Clock) StoreOption {
	return func(s *CounterStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewCounterStore returns an empty store with every category present.
func NewCounterStore(opts ...StoreOption) *CounterStore {
	s := &CounterStore{
		clock: quartz.NewReal(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.counts = emptyCounts()
	return s
}

func emptyCounts() map[Category]map[string]int64 {
	out := make(map[Category]map[string]int64, len(categoryTable))
	for _, c := range Categories() {
		out[c] = map[string]int64{}
	}
	return out
}

// Increment adds one to owner's count in c. Blank owners and unknown
// categories are ignored.
func (s *CounterStore) Increment(c Category, owner string) {
	if strings.TrimSpace(owner) == "" || !c.Valid() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[c][owner]++
}

// SnapshotAll returns an independent copy of every category taken under a
// single read lock.
func (s *CounterStore) SnapshotAll() Snapshot {
	s.mu.RLock()
	counts := copyCounts(s.counts)
	s.mu.RUnlock()

	return Snapshot{TakenAt: s.clock.Now(), counts: counts}
}

// Reset clears every category. Increments racing the reset land either
// entirely before it (and are cleared) or entirely after it.
func (s *CounterStore) Reset() {
	s.mu.Lock()
	s.counts = emptyCounts()
	s.mu.Unlock()

	s.logger.Info(context.Background(), "all collected usage data has been cleared")
}

// SnapshotAndReset takes a snapshot and clears every category under one
// write lock. Each increment is either in the returned snapshot or in the
// store afterwards.
func (s *CounterStore) SnapshotAndReset() Snapshot {
	s.mu.Lock()
	counts := s.counts
	s.counts = emptyCounts()
	s.mu.Unlock()

	s.logger.Info(context.Background(), "all collected usage data has been cleared")
	return Snapshot{TakenAt: s.clock.Now(), counts: counts}
}

// restore adds the counts of snap back into the store.
func (s *CounterStore) restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, mapping := range snap.counts {
		if !c.Valid() {
			continue
		}
		for owner, count := range mapping {
			s.counts[c][owner] += count
		}
	}
}

func copyCounts(src map[Category]map[string]int64) map[Category]map[string]int64 {
	out := make(map[Category]map[string]int64, len(src))
	for c, mapping := range src {
		copied := make(map[string]int64, len(mapping))
		for owner, count := range mapping {
			copied[owner] = count
		}
		out[c] = copied
	}
	return out
}

// UnionOfTrackedOwners returns the sorted set of owners with a non-zero
// count in any category.
func (s *CounterStore) UnionOfTrackedOwners() []string {
	s.mu.RLock()
	seen := map[string]struct{}{}
	for _, mapping := range s.counts {
		for owner, count := range mapping {
			if count > 0 {
				seen[owner] = struct{}{}
			}
		}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for owner := range seen {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out
}

// UnusedOwners returns the members of universe that have never been counted.
// Reserved ids must already be removed by the caller. A nil universe is
// logged and yields an empty result.
func (s *CounterStore) UnusedOwners(universe Universe) []string {
	return unusedOwners(s.logger, universe, s.UnionOfTrackedOwners)
}

// Len reports the number of owners tracked in c.
func (s *CounterStore) Len(c Category) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counts[c])
}
