package vortexstats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	msg       string
	broadcast bool
	failure   bool
}

type recordingSource struct {
	mu      sync.Mutex
	replies []reply
	notify  chan reply
}

func newRecordingSource() *recordingSource {
	return &recordingSource{notify: make(chan reply, 64)}
}

func (s *recordingSource) Success(msg string, broadcast bool) {
	s.add(reply{msg: msg, broadcast: broadcast})
}

func (s *recordingSource) Failure(msg string) {
	s.add(reply{msg: msg, failure: true})
}

func (s *recordingSource) add(r reply) {
	s.mu.Lock()
	s.replies = append(s.replies, r)
	s.mu.Unlock()
	select {
	case s.notify <- r:
	default:
	}
}

func (s *recordingSource) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.replies))
	for _, r := range s.replies {
		out = append(out, r.msg)
	}
	return out
}

func (s *recordingSource) last() reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replies[len(s.replies)-1]
}

func (s *recordingSource) waitFor(t *testing.T, match func(reply) bool) reply {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case r := <-s.notify:
			if match(r) {
				return r
			}
		case <-timeout:
			t.Fatal("timed out waiting for console reply")
			return reply{}
		}
	}
}

func newTestConsole(t *testing.T) *Console {
	t.Helper()
	return &Console{
		Store:    newTestStore(t),
		Excluded: []string{"minecraft", "neoforge", "vortex"},
		Limit:    10,
		Logger:   slogtest.Make(t, nil),
	}
}

func TestConsoleSummaryWithoutData(t *testing.T) {
	t.Parallel()

	console := newTestConsole(t)
	src := newRecordingSource()

	code, codes := console.summary(src)
	require.Equal(t, CodeSuccess, code)
	require.Len(t, codes, len(Categories()))
	for _, c := range Categories() {
		assert.Equal(t, CodeNoData, codes[c], c.String())
	}

	msgs := src.messages()
	require.Equal(t, "--- Vortex: Comprehensive Mod Usage Summary ---", msgs[0])
	require.Len(t, msgs, 1+3*len(Categories()))
	assert.Equal(t, "", msgs[1])
	assert.Equal(t, "No Block Right-Click data collected yet.", msgs[2])
	assert.Equal(t, "No Block Right-Click data collected yet.", msgs[3])

	assert.Equal(t, CodeSuccess, console.Execute(context.Background(), newRecordingSource(), nil))
}

func TestConsoleSummaryWithData(t *testing.T) {
	t.Parallel()

	console := newTestConsole(t)
	console.Store.Increment(BlockRightClick, "foo")
	console.Store.Increment(BlockRightClick, "foo")
	console.Store.Increment(BlockRightClick, "foo")
	console.Store.Increment(BlockRightClick, "bar")

	src := newRecordingSource()
	code, codes := console.summary(src)
	require.Equal(t, CodeSuccess, code)
	assert.Equal(t, CodeSuccess, codes[BlockRightClick])
	assert.Equal(t, CodeNoData, codes[ItemRightClick])

	msgs := src.messages()
	assert.Equal(t, "--- Vortex: Most Used Block Right-Click ---\nfoo: 3\nbar: 1", msgs[2])
	assert.Equal(t, "--- Vortex: Least Used Block Right-Click (with some usage) ---\nbar: 1\nfoo: 3", msgs[3])
}

func TestConsoleTopAndBottom(t *testing.T) {
	t.Parallel()

	console := newTestConsole(t)
	console.Limit = 2
	for owner, n := range map[string]int{"a": 1, "b": 4, "c": 2} {
		for range n {
			console.Store.Increment(EntityDamage, owner)
		}
	}

	src := newRecordingSource()
	require.Equal(t, CodeSuccess, console.Execute(context.Background(), src, []string{"top", "EntityDamage"}))
	assert.Equal(t, "--- Vortex: Most Used Entity Damage ---\nb: 4\nc: 2", src.last().msg)

	require.Equal(t, CodeSuccess, console.Execute(context.Background(), src, []string{"bottom", "entity", "damage"}))
	assert.Equal(t, "--- Vortex: Least Used Entity Damage (with some usage) ---\na: 1\nc: 2", src.last().msg)

	require.Equal(t, CodeNoData, console.Execute(context.Background(), src, []string{"top", "CommandUsage"}))
	assert.Equal(t, "No Command Usage data collected yet.", src.last().msg)
}

func TestConsoleLeastUsedUniform(t *testing.T) {
	t.Parallel()

	console := newTestConsole(t)
	src := newRecordingSource()
	code := console.leastUsed(src, map[string]int64{"a": 0}, ItemRightClick)
	require.Equal(t, CodeNoData, code)
	assert.Equal(t, "Vortex: All Item Right-Click mods have uniform usage, or no usage at all (after filtering for > 0 usage).", src.last().msg)
}

func TestConsoleBadArguments(t *testing.T) {
	t.Parallel()

	console := newTestConsole(t)
	tests := [][]string{
		{"frobnicate"},
		{"top"},
		{"bottom", "teleports"},
	}
	for _, args := range tests {
		src := newRecordingSource()
		require.Equal(t, CodeNoData, console.Execute(context.Background(), src, args), strings.Join(args, " "))
		assert.True(t, src.last().failure)
	}
}

func TestConsoleUnused(t *testing.T) {
	t.Parallel()

	console := newTestConsole(t)
	console.Universe = func() Universe {
		return NewUniverse("foo", "bar", "baz", "minecraft", "neoforge", "vortex")
	}
	console.Store.Increment(BlockRightClick, "foo")

	src := newRecordingSource()
	require.Equal(t, CodeSuccess, console.Execute(context.Background(), src, []string{"unused"}))
	assert.Equal(t, "Vortex: Unused mods: bar,baz", src.last().msg)

	console.Store.Increment(CommandUsage, "bar")
	console.Store.Increment(CommandUsage, "baz")
	require.Equal(t, CodeSuccess, console.Unused(src))
	assert.Equal(t, "Vortex: No unused mods found.", src.last().msg)
}

func TestConsoleUnusedWithoutUniverse(t *testing.T) {
	t.Parallel()

	console := newTestConsole(t)
	src := newRecordingSource()
	require.Equal(t, CodeSuccess, console.Unused(src))
	assert.Equal(t, "Vortex: No unused mods found.", src.last().msg)
}

func TestConsoleClear(t *testing.T) {
	t.Parallel()

	console := newTestConsole(t)
	console.Store.Increment(BlockRightClick, "foo")

	src := newRecordingSource()
	require.Equal(t, CodeSuccess, console.Execute(context.Background(), src, []string{"CLEAR"}))
	assert.Equal(t, reply{msg: "Vortex: All collected usage data has been cleared.", broadcast: true}, src.last())
	assert.True(t, console.Store.SnapshotAll().IsEmpty())
}

func TestConsoleHelp(t *testing.T) {
	t.Parallel()

	src := newRecordingSource()
	require.Equal(t, CodeSuccess, newTestConsole(t).Execute(context.Background(), src, []string{"help"}))
	msgs := src.messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "--- Vortex Mod Help ---", msgs[0])
	assert.Contains(t, msgs, "- /vx dataviewer: Uploads a report and links to the web data viewer.")
}

func TestConsoleExport(t *testing.T) {
	t.Parallel()

	console := newTestConsole(t)
	src := newRecordingSource()
	require.Equal(t, CodeNoData, console.Export(context.Background(), src))
	assert.True(t, src.last().failure)

	fs := afero.NewMemMapFs()
	console.Files = newTestFileExporter(t, fs, time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC))
	console.Store.Increment(ItemRightClick, "foo")

	require.Equal(t, CodeSuccess, console.Execute(context.Background(), src, []string{"export"}))
	assert.Equal(t, "Vortex data exported to /srv/config/vortex/vortex_mod_usage_data_2025-05-02.csv.", src.last().msg)

	data, err := afero.ReadFile(fs, "/srv/config/vortex/vortex_mod_usage_data_2025-05-02.csv")
	require.NoError(t, err)
	assert.Equal(t, "Category,ModID,Count\nItemRightClick,foo,1\n", string(data))

	console.Files = newTestFileExporter(t, afero.NewReadOnlyFs(afero.NewMemMapFs()), time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC))
	require.Equal(t, CodeSuccess, console.Export(context.Background(), src))
	assert.True(t, src.last().failure)
}

func TestConsoleDataViewer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"r1"}`))
	}))
	t.Cleanup(server.Close)

	console := newTestConsole(t)
	console.Store.Increment(BlockRightClick, "foo")
	require.Equal(t, CodeNoData, console.DataViewer(context.Background(), newRecordingSource()))

	console.Uploader = newTestUploader(t, server)
	src := newRecordingSource()
	ctx, cancel := context.WithCancel(context.Background())
	require.Equal(t, CodeSuccess, console.Execute(ctx, src, []string{"dataviewer"}))
	// The upload outlives the command's context.
	cancel()

	got := src.waitFor(t, func(r reply) bool { return r.broadcast || r.failure })
	assert.Equal(t, reply{msg: "Vortex Report Link: https://viewer.example.com/?id=r1", broadcast: true}, got)
	assert.Equal(t, "Vortex: Uploading data...", src.messages()[0])
	assert.Equal(t, int64(1), console.Store.SnapshotAll().Count(BlockRightClick, "foo"), "upload must not clear the store")
}

func TestConsoleDataViewerFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	console := newTestConsole(t)
	console.Uploader = newTestUploader(t, server)
	src := newRecordingSource()
	require.Equal(t, CodeSuccess, console.DataViewer(context.Background(), src))

	got := src.waitFor(t, func(r reply) bool { return r.failure })
	assert.True(t, strings.HasPrefix(got.msg, "Vortex: Failed to generate web report. server responded with 500"), got.msg)
}
