// Package vortexstats counts plugin usage inside a game server and reports
// it through console queries, CSV exports, external sinks and an uploaded
// web report.
package vortexstats

import (
	"context"
	"net/http"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// Options carries the runtime collaborators for New. Zero values select the
// real clock, the OS filesystem and a client with the configured timeout.
type Options struct {
	Logger     slog.Logger
	Fs         afero.Fs
	Clock      quartz.Clock
	HTTPClient *http.Client
	Sinks      Sinks
	Universe   UniverseFunc
}

// Vortex owns the process-wide CounterStore and every component built on it.
type Vortex struct {
	Config   *Config
	Store    *CounterStore
	Recorder *Recorder
	Console  *Console
	Files    *FileExporter
	Uploader *Uploader
	Exporter *Exporter
}

// New validates cfg and wires one CounterStore into the recorder, console,
// exporters and uploader.
func New(cfg *Config, opts Options) (*Vortex, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid config: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.UploadTimeout}
	}
	logger := opts.Logger.Named(cfg.ModID)

	store := NewCounterStore(WithStoreLogger(logger.Named("store")), WithStoreClock(clock))

	files := NewFileExporter(cfg.ExportDir, logger.Named("export"))
	files.Fs = fs
	files.BaseName = cfg.ExportBaseName
	files.Clock = clock

	uploader := NewUploader(client, logger.Named("upload"))
	uploader.Endpoint = cfg.UploadEndpoint
	uploader.ViewerURL = cfg.ViewerURL

	v := &Vortex{
		Config:   cfg,
		Store:    store,
		Recorder: NewRecorder(store, NewFilter(cfg.ReservedNamespace)),
		Files:    files,
		Uploader: uploader,
		Console: &Console{
			Store:    store,
			Files:    files,
			Uploader: uploader,
			Universe: opts.Universe,
			Excluded: cfg.ExcludedOwners(),
			Limit:    cfg.ReportLimit,
			Logger:   logger.Named("console"),
		},
		Exporter: NewExporter(store, ExporterOptions{
			Sinks:        opts.Sinks,
			Files:        files,
			Clock:        clock,
			Interval:     cfg.ExportInterval,
			ReportName:   cfg.ReportName,
			ClearOnClose: cfg.ClearOnShutdown,
			Logger:       logger.Named("exporter"),
		}),
	}
	return v, nil
}

// Close runs the shutdown export. The store stays usable afterwards.
func (v *Vortex) Close(ctx context.Context) error {
	if v == nil || v.Exporter == nil {
		return nil
	}
	return v.Exporter.Close(ctx)
}
