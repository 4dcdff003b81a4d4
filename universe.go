package vortexstats

import (
	"sort"
	"strings"
)

// Universe is the externally supplied set of every known owner, typically
// the installed plugin list. A nil Universe is treated as missing input.
type Universe map[string]struct{}

// NewUniverse builds a Universe, skipping blank ids.
func NewUniverse(ids ...string) Universe {
	u := make(Universe, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		u[id] = struct{}{}
	}
	return u
}

// Contains reports whether id is part of the universe.
func (u Universe) Contains(id string) bool {
	_, ok := u[id]
	return ok
}

// Without returns a copy of u minus ids. A nil receiver stays nil.
func (u Universe) Without(ids ...string) Universe {
	if u == nil {
		return nil
	}
	out := make(Universe, len(u))
	for id := range u {
		out[id] = struct{}{}
	}
	for _, id := range ids {
		delete(out, id)
	}
	return out
}

// Sorted returns the members in lexicographic order.
func (u Universe) Sorted() []string {
	out := make([]string, 0, len(u))
	for id := range u {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
