package vortexstats

import (
	"maps"
	"sort"
	"time"
)

// Snapshot is an immutable copy of every category's counts taken at a single
// point in time. Accessors hand out copies; the zero value is an empty
// snapshot.
type Snapshot struct {
	TakenAt time.Time

	counts map[Category]map[string]int64
}

// NewSnapshot builds a snapshot from explicit counts. Non-positive counts,
// blank owners and unknown categories are dropped.
func NewSnapshot(at time.Time, counts map[Category]map[string]int64) Snapshot {
	out := make(map[Category]map[string]int64, len(categoryTable))
	for _, c := range Categories() {
		mapping := make(map[string]int64, len(counts[c]))
		for owner, count := range counts[c] {
			if owner == "" || count <= 0 {
				continue
			}
			mapping[owner] = count
		}
		out[c] = mapping
	}
	return Snapshot{TakenAt: at, counts: out}
}

// Counts returns a copy of the owner→count mapping for c.
func (s Snapshot) Counts(c Category) map[string]int64 {
	out := make(map[string]int64, len(s.counts[c]))
	maps.Copy(out, s.counts[c])
	return out
}

// All returns a deep copy of every category's mapping.
func (s Snapshot) All() map[Category]map[string]int64 {
	out := make(map[Category]map[string]int64, len(categoryTable))
	for _, c := range Categories() {
		out[c] = s.Counts(c)
	}
	return out
}

// Count returns the count for owner in c, zero when absent.
func (s Snapshot) Count(c Category, owner string) int64 {
	return s.counts[c][owner]
}

// Len returns how many owners have an entry in c.
func (s Snapshot) Len(c Category) int {
	return len(s.counts[c])
}

// IsEmpty reports whether no category holds any entry.
func (s Snapshot) IsEmpty() bool {
	for _, mapping := range s.counts {
		if len(mapping) > 0 {
			return false
		}
	}
	return true
}

// Owners returns the sorted union of owners with a non-zero count in any
// category.
func (s Snapshot) Owners() []string {
	seen := map[string]struct{}{}
	for _, mapping := range s.counts {
		for owner, count := range mapping {
			if count > 0 {
				seen[owner] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for owner := range seen {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out
}
