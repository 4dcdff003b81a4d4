package vortexstats

import (
	"strconv"
	"strings"
	"time"
)

// DefaultSeparator joins report key parts.
const DefaultSeparator = "::"

// ReportKey names a snapshot filed in a sink.
type ReportKey struct {
	Prefix string
	Name   string
	At     *time.Time
}

// DailyReportKey files a report under name for the day of at.
func DailyReportKey(name string, at time.Time) ReportKey {
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	return ReportKey{Name: name, At: &day}
}

// Join returns the full joined identifier (prefix, name, at unix).
func (k ReportKey) Join(separator string) string {
	parts := make([]string, 0, 3)
	if k.Prefix != "" {
		parts = append(parts, k.Prefix)
	}
	if k.Name != "" {
		parts = append(parts, k.Name)
	}
	if k.At != nil {
		parts = append(parts, strconv.FormatInt(k.At.Unix(), 10))
	}
	return strings.Join(parts, separator)
}

// CategoryJoin returns the joined identifier with a trailing category part.
func (k ReportKey) CategoryJoin(separator string, c Category) string {
	base := k.Join(separator)
	if base == "" {
		return c.String()
	}
	return base + separator + c.String()
}
