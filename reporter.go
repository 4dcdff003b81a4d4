package vortexstats

import (
	"context"
	"sort"

	"cdr.dev/slog/v3"
)

// Entry is a single owner count in a report.
type Entry struct {
	Owner string `json:"owner"`
	Count int64  `json:"count"`
}

// TopN returns at most n entries sorted by count descending. Equal counts are
// ordered by owner ascending.
func TopN(mapping map[string]int64, n int) []Entry {
	if n <= 0 || len(mapping) == 0 {
		return []Entry{}
	}
	entries := entriesOf(mapping, func(int64) bool { return true })
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Owner < entries[j].Owner
	})
	return truncate(entries, n)
}

// BottomPositiveN returns at most n entries with a positive count sorted by
// count ascending. Equal counts are ordered by owner ascending.
func BottomPositiveN(mapping map[string]int64, n int) []Entry {
	if n <= 0 || len(mapping) == 0 {
		return []Entry{}
	}
	entries := entriesOf(mapping, func(count int64) bool { return count > 0 })
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count < entries[j].Count
		}
		return entries[i].Owner < entries[j].Owner
	})
	return truncate(entries, n)
}

// Unused returns universe minus every owner tracked in s, sorted. A nil
// universe is logged and yields an empty result.
func Unused(s Snapshot, universe Universe, logger slog.Logger) []string {
	return unusedOwners(logger, universe, s.Owners)
}

func unusedOwners(logger slog.Logger, universe Universe, tracked func() []string) []string {
	if universe == nil {
		logger.Warn(context.Background(), "unused owners requested without a universe")
		return []string{}
	}
	return universe.Without(tracked()...).Sorted()
}

func entriesOf(mapping map[string]int64, keep func(int64) bool) []Entry {
	out := make([]Entry, 0, len(mapping))
	for owner, count := range mapping {
		if !keep(count) {
			continue
		}
		out = append(out, Entry{Owner: owner, Count: count})
	}
	return out
}

func truncate(entries []Entry, n int) []Entry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}
