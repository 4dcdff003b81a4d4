package vortexstats

import (
	"context"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// DefaultReportName files sink reports when no name is configured.
const DefaultReportName = "usage"

// ExporterOptions configures an Exporter.
type ExporterOptions struct {
	Sinks Sinks
	Files *FileExporter
	Clock quartz.Clock
	// Interval between periodic exports. Zero exports only on Flush and Close.
	Interval     time.Duration
	ReportName   string
	ClearOnClose bool
	Logger       slog.Logger
}

// Exporter snapshots a store and writes it to every sink and the CSV
// exporter, periodically and once more on Close.
type Exporter struct {
	store        *CounterStore
	sinks        Sinks
	files        *FileExporter
	clock        quartz.Clock
	interval     time.Duration
	reportName   string
	clearOnClose bool
	logger       slog.Logger

	flushMu sync.Mutex

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewExporter creates an exporter and starts its worker when Interval > 0.
func NewExporter(store *CounterStore, opts ExporterOptions) *Exporter {
	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	name := opts.ReportName
	if name == "" {
		name = DefaultReportName
	}

	e := &Exporter{
		store:        store,
		sinks:        opts.Sinks,
		files:        opts.Files,
		clock:        clock,
		interval:     normalizeExportInterval(opts.Interval),
		reportName:   name,
		clearOnClose: opts.ClearOnClose,
		logger:       opts.Logger,
	}
	if e.interval > 0 {
		e.startWorker()
	}
	return e
}

// Flush exports the current snapshot. Empty snapshots are skipped.
func (e *Exporter) Flush(ctx context.Context) error {
	if e == nil || e.store == nil {
		return xerrors.New("exporter requires a store")
	}

	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	return e.export(ctx, e.store.SnapshotAll())
}

// Close stops the worker and exports a final snapshot. With ClearOnClose the
// snapshot and the clear happen atomically, so events recorded during
// shutdown stay in the store instead of being dropped. Close is idempotent.
func (e *Exporter) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	stopCh := e.stopCh
	e.stopCh = nil
	e.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		e.wg.Wait()
	}

	if !e.clearOnClose || e.store == nil {
		return e.Flush(ctx)
	}

	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	snap := e.store.SnapshotAndReset()
	if err := e.export(ctx, snap); err != nil {
		// Nothing was cleared for good; merge the snapshot back.
		e.store.restore(snap)
		e.logger.Warn(ctx, "final export failed, usage data kept", slog.Error(err))
		return err
	}
	return nil
}

func (e *Exporter) export(ctx context.Context, snap Snapshot) error {
	if snap.IsEmpty() {
		return nil
	}

	var merr *multierror.Error
	if len(e.sinks) > 0 {
		key := DailyReportKey(e.reportName, snap.TakenAt)
		if err := e.sinks.Write(ctx, key, snap); err != nil {
			e.logger.Error(ctx, "write report to sinks", slog.F("report", e.reportName), slog.Error(err))
			merr = multierror.Append(merr, err)
		}
	}
	if e.files != nil {
		if _, err := e.files.Export(ctx, snap); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

func (e *Exporter) startWorker() {
	stopCh := make(chan struct{})
	e.stopCh = stopCh
	e.wg.Add(1)

	ticker := e.clock.NewTicker(e.interval, "exporter")
	go func(stop <-chan struct{}) {
		defer e.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = e.Flush(context.Background())
			case <-stop:
				return
			}
		}
	}(stopCh)
}

func normalizeExportInterval(value time.Duration) time.Duration {
	if value <= 0 {
		return 0
	}
	return value
}
