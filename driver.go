package vortexstats

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Sink mirrors snapshots into external storage. Nothing read from a sink is
// ever loaded back into a CounterStore.
type Sink interface {
	Write(ctx context.Context, key ReportKey, s Snapshot) error
	Read(ctx context.Context, key ReportKey) (map[Category]map[string]int64, error)
	Description() string
}

// Sinks writes to several sinks at once.
type Sinks []Sink

// Write fans s out to every sink concurrently and returns the first error.
func (ss Sinks) Write(ctx context.Context, key ReportKey, s Snapshot) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, sink := range ss {
		if sink == nil {
			continue
		}
		eg.Go(func() error {
			if err := sink.Write(egCtx, key, s); err != nil {
				return xerrors.Errorf("%s: %w", sink.Description(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}
