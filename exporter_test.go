package vortexstats

import (
	"context"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/coder/quartz"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/xerrors"
)

type sinkWrite struct {
	key  ReportKey
	snap Snapshot
}

type memorySink struct {
	mu     sync.Mutex
	writes []sinkWrite
	err    error
	notify chan sinkWrite
}

func newMemorySink() *memorySink {
	return &memorySink{notify: make(chan sinkWrite, 16)}
}

func (s *memorySink) Write(_ context.Context, key ReportKey, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	w := sinkWrite{key: key, snap: snap}
	s.writes = append(s.writes, w)
	select {
	case s.notify <- w:
	default:
	}
	return nil
}

func (s *memorySink) Read(_ context.Context, key ReportKey) (map[Category]map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.writes) - 1; i >= 0; i-- {
		if s.writes[i].key.Join(DefaultSeparator) == key.Join(DefaultSeparator) {
			return s.writes[i].snap.All(), nil
		}
	}
	return emptyCounts(), nil
}

func (s *memorySink) Description() string { return "memorySink" }

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func TestExporterPeriodicFlush(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	clock.Set(time.Date(2025, 8, 3, 15, 4, 5, 0, time.UTC)).MustWait(ctx)

	store := NewCounterStore(WithStoreClock(clock), WithStoreLogger(slogtest.Make(t, nil)))
	store.Increment(BlockRightClick, "foo")

	sink := newMemorySink()
	exporter := NewExporter(store, ExporterOptions{
		Sinks:    Sinks{sink},
		Clock:    clock,
		Interval: time.Minute,
		Logger:   slogtest.Make(t, nil),
	})

	clock.Advance(time.Minute).MustWait(ctx)

	var got sinkWrite
	select {
	case got = <-sink.notify:
	case <-ctx.Done():
		t.Fatal("periodic export never reached the sink")
	}
	assert.Equal(t, DefaultReportName, got.key.Name)
	require.NotNil(t, got.key.At)
	assert.True(t, got.key.At.Equal(time.Date(2025, 8, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(1), got.snap.Count(BlockRightClick, "foo"))

	require.NoError(t, exporter.Close(ctx))
	assert.Equal(t, int64(1), store.SnapshotAll().Count(BlockRightClick, "foo"), "store is kept without ClearOnClose")
}

func TestExporterCloseExportsAndClears(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC)).MustWait(ctx)

	store := NewCounterStore(WithStoreClock(clock), WithStoreLogger(slogtest.Make(t, nil)))
	store.Increment(CommandUsage, "vortex")

	fs := afero.NewMemMapFs()
	sink := newMemorySink()
	exporter := NewExporter(store, ExporterOptions{
		Sinks:        Sinks{sink},
		Files:        newTestFileExporter(t, fs, time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC)),
		Clock:        clock,
		Interval:     time.Hour,
		ClearOnClose: true,
		Logger:       slogtest.Make(t, nil),
	})

	require.NoError(t, exporter.Close(ctx))
	require.NoError(t, exporter.Close(ctx), "close is idempotent")

	require.Equal(t, 1, sink.count())
	counts, err := sink.Read(ctx, DailyReportKey(DefaultReportName, clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[CommandUsage]["vortex"])

	exists, err := afero.Exists(fs, "/srv/config/vortex/vortex_mod_usage_data_2025-08-03.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.True(t, store.SnapshotAll().IsEmpty())
}

func TestExporterSkipsEmptySnapshot(t *testing.T) {
	t.Parallel()

	sink := newMemorySink()
	exporter := NewExporter(newTestStore(t), ExporterOptions{
		Sinks:  Sinks{sink},
		Logger: slogtest.Make(t, nil),
	})

	require.NoError(t, exporter.Flush(context.Background()))
	require.NoError(t, exporter.Close(context.Background()))
	assert.Zero(t, sink.count())
}

func TestExporterSinkFailureKeepsData(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	store.Increment(EntityDamage, "foo")

	healthy := newMemorySink()
	broken := newMemorySink()
	broken.err = xerrors.New("connection refused")

	exporter := NewExporter(store, ExporterOptions{
		Sinks:        Sinks{healthy, broken},
		ClearOnClose: true,
		Logger:       slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}),
	})

	err := exporter.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memorySink: connection refused")
	assert.Equal(t, int64(1), store.SnapshotAll().Count(EntityDamage, "foo"), "failed close must not clear the store")
}

// recordingSink records a new event while the final export is in flight.
type recordingSink struct {
	*memorySink
	store *CounterStore
}

func (s recordingSink) Write(ctx context.Context, key ReportKey, snap Snapshot) error {
	s.store.Increment(BlockRightClick, "late")
	return s.memorySink.Write(ctx, key, snap)
}

func TestExporterCloseKeepsEventsRecordedDuringExport(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	store.Increment(BlockRightClick, "foo")

	sink := recordingSink{memorySink: newMemorySink(), store: store}
	exporter := NewExporter(store, ExporterOptions{
		Sinks:        Sinks{sink},
		ClearOnClose: true,
		Logger:       slogtest.Make(t, nil),
	})

	require.NoError(t, exporter.Close(context.Background()))

	require.Equal(t, 1, sink.count())
	exported := sink.writes[0].snap
	assert.Equal(t, int64(1), exported.Count(BlockRightClick, "foo"))
	assert.Zero(t, exported.Count(BlockRightClick, "late"))

	after := store.SnapshotAll()
	assert.Equal(t, int64(1), after.Count(BlockRightClick, "late"), "event recorded during export must survive the clear")
	assert.Zero(t, after.Count(BlockRightClick, "foo"))
}

func TestExporterFailedCloseMergesLateEvents(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	store.Increment(BlockRightClick, "foo")

	broken := recordingSink{memorySink: newMemorySink(), store: store}
	broken.err = xerrors.New("disk full")
	exporter := NewExporter(store, ExporterOptions{
		Sinks:        Sinks{broken},
		ClearOnClose: true,
		Logger:       slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}),
	})

	require.Error(t, exporter.Close(context.Background()))

	after := store.SnapshotAll()
	assert.Equal(t, int64(1), after.Count(BlockRightClick, "foo"))
	assert.Equal(t, int64(1), after.Count(BlockRightClick, "late"))
}

func TestExporterRequiresStore(t *testing.T) {
	t.Parallel()

	exporter := NewExporter(nil, ExporterOptions{})
	require.Error(t, exporter.Flush(context.Background()))

	var nilExporter *Exporter
	require.NoError(t, nilExporter.Close(context.Background()))
}
