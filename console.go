package vortexstats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cdr.dev/slog/v3"
	"golang.org/x/xerrors"
)

// Command results understood by the host's command dispatcher.
const (
	CodeNoData  = 0
	CodeSuccess = 1
)

// Source receives console replies, typically the player or server console
// that ran the command.
type Source interface {
	Success(msg string, broadcast bool)
	Failure(msg string)
}

// UniverseFunc returns every installed plugin id.
type UniverseFunc func() Universe

// Console answers the interactive query commands.
type Console struct {
	Store    *CounterStore
	Files    *FileExporter
	Uploader *Uploader
	Universe UniverseFunc
	// Excluded ids are removed from the universe before unused owners are
	// computed.
	Excluded []string
	Limit    int
	Logger   slog.Logger
}

// Execute dispatches a subcommand. An empty args list runs the summary.
func (c *Console) Execute(ctx context.Context, src Source, args []string) int {
	sub := ""
	if len(args) > 0 {
		sub = strings.ToLower(strings.TrimSpace(args[0]))
	}

	switch sub {
	case "", "summary":
		return c.Summary(src)
	case "clear":
		return c.Clear(src)
	case "help":
		return c.Help(src)
	case "export":
		return c.Export(ctx, src)
	case "unused":
		return c.Unused(src)
	case "dataviewer":
		return c.DataViewer(ctx, src)
	case "top", "bottom":
		if len(args) < 2 {
			src.Failure(fmt.Sprintf("Vortex: Usage: %s <category>", sub))
			return CodeNoData
		}
		category, ok := ParseCategory(strings.Join(args[1:], " "))
		if !ok {
			src.Failure(fmt.Sprintf("Vortex: Unknown category %q.", strings.Join(args[1:], " ")))
			return CodeNoData
		}
		if sub == "top" {
			return c.MostUsed(src, category)
		}
		return c.LeastUsed(src, category)
	default:
		src.Failure(fmt.Sprintf("Vortex: Unknown subcommand %q. Try help.", sub))
		return CodeNoData
	}
}

// Summary reports most and least used owners for every category. It always
// succeeds, even when no data has been collected.
func (c *Console) Summary(src Source) int {
	code, _ := c.summary(src)
	return code
}

func (c *Console) summary(src Source) (int, map[Category]int) {
	snap := c.Store.SnapshotAll()
	codes := make(map[Category]int, len(categoryTable))

	src.Success("--- Vortex: Comprehensive Mod Usage Summary ---", false)
	for _, category := range Categories() {
		src.Success("", false)
		mapping := snap.Counts(category)
		most := c.mostUsed(src, mapping, category)
		c.leastUsed(src, mapping, category)
		codes[category] = most
	}
	return CodeSuccess, codes
}

// MostUsed reports the top owners of a single category.
func (c *Console) MostUsed(src Source, category Category) int {
	return c.mostUsed(src, c.Store.SnapshotAll().Counts(category), category)
}

// LeastUsed reports the least used owners with some usage in a category.
func (c *Console) LeastUsed(src Source, category Category) int {
	return c.leastUsed(src, c.Store.SnapshotAll().Counts(category), category)
}

func (c *Console) mostUsed(src Source, mapping map[string]int64, category Category) int {
	if len(mapping) == 0 {
		src.Success(noDataMessage(category), false)
		return CodeNoData
	}
	entries := TopN(mapping, c.limit())
	src.Success("--- Vortex: Most Used "+category.Label()+" ---\n"+formatEntries(entries), false)
	return CodeSuccess
}

func (c *Console) leastUsed(src Source, mapping map[string]int64, category Category) int {
	if len(mapping) == 0 {
		src.Success(noDataMessage(category), false)
		return CodeNoData
	}
	entries := BottomPositiveN(mapping, c.limit())
	if len(entries) == 0 {
		src.Success("Vortex: All "+category.Label()+" mods have uniform usage, or no usage at all (after filtering for > 0 usage).", false)
		return CodeNoData
	}
	src.Success("--- Vortex: Least Used "+category.Label()+" (with some usage) ---\n"+formatEntries(entries), false)
	return CodeSuccess
}

// Clear resets every counter.
func (c *Console) Clear(src Source) int {
	c.Store.Reset()
	src.Success("Vortex: All collected usage data has been cleared.", true)
	return CodeSuccess
}

// Help lists the available subcommands.
func (c *Console) Help(src Source) int {
	lines := []string{
		"--- Vortex Mod Help ---",
		"Vortex helps server administrators understand and optimize their modded servers.",
		"Available Commands:",
		"- /vx summary: Same as /vx",
		"- /vx top <category>: Most used mods for one category.",
		"- /vx bottom <category>: Least used mods for one category.",
		"- /vx clear: Resets all in-memory usage statistics.",
		"- /vx export: Exports current tracking data to a csv file in your config directory.",
		"- /vx unused: Lists mods with no tracked interactions.",
		"- /vx dataviewer: Uploads a report and links to the web data viewer.",
		"- /vx help: Displays this help message.",
	}
	for _, line := range lines {
		src.Success(line, false)
	}
	return CodeSuccess
}

// Export writes the current snapshot to the CSV export directory.
func (c *Console) Export(ctx context.Context, src Source) int {
	if c.Files == nil {
		src.Failure("Vortex: Export is not configured.")
		return CodeNoData
	}
	path, err := c.Files.Export(ctx, c.Store.SnapshotAll())
	if err != nil {
		src.Failure("Vortex: Failed to export usage data. Check server console. " + err.Error())
		return CodeSuccess
	}
	src.Success("Vortex data exported to "+path+".", false)
	return CodeSuccess
}

// Unused lists installed plugins that have never been counted.
func (c *Console) Unused(src Source) int {
	var universe Universe
	if c.Universe != nil {
		universe = c.Universe()
	}
	unused := c.Store.UnusedOwners(universe.Without(c.Excluded...))
	if len(unused) == 0 {
		src.Success("Vortex: No unused mods found.", false)
		return CodeSuccess
	}
	src.Success("Vortex: Unused mods: "+strings.Join(unused, ","), false)
	return CodeSuccess
}

// DataViewer uploads the current snapshot in the background and posts the
// report link, or the failure, to src once the upload finishes.
func (c *Console) DataViewer(ctx context.Context, src Source) int {
	if c.Uploader == nil {
		src.Failure("Vortex: Data viewer upload is not configured.")
		return CodeNoData
	}

	snap := c.Store.SnapshotAll()
	src.Success("Vortex: Uploading data...", false)
	c.Uploader.UploadAsync(context.WithoutCancel(ctx), snap, func(result UploadResult, err error) {
		if err != nil {
			c.Logger.Warn(ctx, "data viewer upload failed", slog.Error(err))
			src.Failure(uploadFailureMessage(err))
			return
		}
		src.Success("Vortex Report Link: "+result.URL, true)
	})
	return CodeSuccess
}

func uploadFailureMessage(err error) string {
	var (
		netErr    *NetworkError
		statusErr *StatusError
	)
	switch {
	case errors.As(err, &netErr):
		return "Vortex: Could not reach the data viewer. Check server console. " + netErr.Err.Error()
	case errors.As(err, &statusErr):
		return "Vortex: Failed to generate web report. " + statusErr.Error()
	case xerrors.Is(err, ErrMissingReportID):
		return "Vortex: Error processing response from the data viewer: " + err.Error()
	default:
		return "Vortex: Failed to generate web report. " + err.Error()
	}
}

func (c *Console) limit() int {
	if c.Limit <= 0 {
		return 10
	}
	return c.Limit
}

func noDataMessage(category Category) string {
	return "No " + category.Label() + " data collected yet."
}

func formatEntries(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s: %d", entry.Owner, entry.Count))
	}
	return strings.Join(lines, "\n")
}
