package vortexstats

import (
	"strings"
	"sync"
)

// DefaultReservedNamespace is the host's built-in namespace. Events from it
// are never attributed to a plugin.
const DefaultReservedNamespace = "minecraft"

// Filter decides whether a namespaced identifier belongs to a plugin and
// extracts the owning id.
type Filter struct {
	// Reserved is the host namespace that is never attributable.
	Reserved string
}

// NewFilter returns a filter for the given reserved namespace, falling back
// to DefaultReservedNamespace when blank.
func NewFilter(reserved string) Filter {
	reserved = strings.TrimSpace(reserved)
	if reserved == "" {
		reserved = DefaultReservedNamespace
	}
	return Filter{Reserved: reserved}
}

// Attribute extracts <owner> from "<owner>:<local-name>". An identifier
// without a namespace belongs to the reserved namespace, matching how the
// host resolves bare resource paths.
func (f Filter) Attribute(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	owner, _, found := strings.Cut(raw, ":")
	if !found {
		return "", false
	}
	return f.accept(owner)
}

// AttributeCommand extracts the owner from a command line: the first
// space-delimited token with every '/' removed, so "/vortex summary"
// yields "vortex".
func (f Filter) AttributeCommand(line string) (string, bool) {
	token, _, _ := strings.Cut(line, " ")
	token = strings.ReplaceAll(token, "/", "")
	return f.accept(token)
}

// The aggregator's own id is accepted like any other owner.
func (f Filter) accept(owner string) (string, bool) {
	owner = strings.TrimSpace(owner)
	if owner == "" || owner == f.reserved() {
		return "", false
	}
	return owner, true
}

func (f Filter) reserved() string {
	if f.Reserved == "" {
		return DefaultReservedNamespace
	}
	return f.Reserved
}

// ChunkPos identifies a world chunk column.
type ChunkPos struct {
	X int32
	Z int32
}

// ChunkGate remembers positions that were already processed so a chunk that
// loads many times is only counted once.
type ChunkGate struct {
	mu   sync.Mutex
	seen map[ChunkPos]struct{}
}

// NewChunkGate returns an empty gate.
func NewChunkGate() *ChunkGate {
	return &ChunkGate{seen: map[ChunkPos]struct{}{}}
}

// First reports true exactly once per position.
func (g *ChunkGate) First(pos ChunkPos) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[pos]; ok {
		return false
	}
	g.seen[pos] = struct{}{}
	return true
}

// Seen reports whether pos was already processed.
func (g *ChunkGate) Seen(pos ChunkPos) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[pos]
	return ok
}

// Forget drops every remembered position.
func (g *ChunkGate) Forget() {
	g.mu.Lock()
	g.seen = map[ChunkPos]struct{}{}
	g.mu.Unlock()
}

// Recorder routes host events through a Filter into a CounterStore.
type Recorder struct {
	Store  *CounterStore
	Filter Filter
	Chunks *ChunkGate
}

// NewRecorder binds a filter to a store.
func NewRecorder(store *CounterStore, filter Filter) *Recorder {
	return &Recorder{
		Store:  store,
		Filter: filter,
		Chunks: NewChunkGate(),
	}
}

// Record counts a namespaced registry id against c. It reports whether the
// event was attributable.
func (r *Recorder) Record(c Category, raw string) bool {
	owner, ok := r.Filter.Attribute(raw)
	if !ok {
		return false
	}
	r.Store.Increment(c, owner)
	return true
}

// RecordCommand counts a command invocation against its root command.
func (r *Recorder) RecordCommand(line string) bool {
	owner, ok := r.Filter.AttributeCommand(line)
	if !ok {
		return false
	}
	r.Store.Increment(CommandUsage, owner)
	return true
}

// RecordChunk counts a generated chunk by the namespace of its biome. A
// position is marked processed even when the biome is not attributable.
func (r *Recorder) RecordChunk(pos ChunkPos, biomeID string) bool {
	if !r.Chunks.First(pos) {
		return false
	}
	return r.Record(ChunkGeneration, biomeID)
}
