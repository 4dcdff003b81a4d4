package vortexstats

import "strings"

// Category names a kind of tracked interaction.
type Category int

const (
	BlockRightClick Category = iota
	ItemRightClick
	CraftingOutput
	EntityDamage
	ChunkGeneration
	CommandUsage
)

type categoryNames struct {
	name   string
	label  string
	report string
}

// New categories only need a constant above and a row here.
var categoryTable = map[Category]categoryNames{
	BlockRightClick: {name: "BlockRightClick", label: "Block Right-Click", report: "Block Right Clicks"},
	ItemRightClick:  {name: "ItemRightClick", label: "Item Right-Click", report: "Item Right Clicks"},
	CraftingOutput:  {name: "CraftingOutput", label: "Crafting Output", report: "Recipe Crafts"},
	EntityDamage:    {name: "EntityDamage", label: "Entity Damage", report: "Entity Damage"},
	ChunkGeneration: {name: "ChunkGeneration", label: "Chunk Generation", report: "Chunks Generated"},
	CommandUsage:    {name: "CommandUsage", label: "Command Usage", report: "Command Interactions"},
}

// Categories returns every known category in declaration order.
func Categories() []Category {
	out := make([]Category, 0, len(categoryTable))
	for c := Category(0); int(c) < len(categoryTable); c++ {
		out = append(out, c)
	}
	return out
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryTable[c]
	return ok
}

// String returns the export name, e.g. "BlockRightClick".
func (c Category) String() string {
	if names, ok := categoryTable[c]; ok {
		return names.name
	}
	return "Unknown"
}

// Label returns the display name used in console replies.
func (c Category) Label() string {
	if names, ok := categoryTable[c]; ok {
		return names.label
	}
	return "Unknown"
}

// ReportName returns the key used in uploaded interaction breakdowns.
func (c Category) ReportName() string {
	if names, ok := categoryTable[c]; ok {
		return names.report
	}
	return "Unknown"
}

// ParseCategory resolves any of a category's names, ignoring case and
// surrounding whitespace.
func ParseCategory(value string) (Category, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, false
	}
	for c, names := range categoryTable {
		if strings.EqualFold(trimmed, names.name) ||
			strings.EqualFold(trimmed, names.label) ||
			strings.EqualFold(trimmed, names.report) {
			return c, true
		}
	}
	return 0, false
}
