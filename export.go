package vortexstats

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

const (
	csvHeader = "Category,ModID,Count\n"

	// DefaultExportBaseName is prefixed to the dated export file name.
	DefaultExportBaseName = "vortex_mod_usage_data"
	exportDateLayout      = "2006-01-02"
	exportExtension       = ".csv"
)

// WriteCSV writes a snapshot as Category,ModID,Count rows. Categories follow
// declaration order and owners are sorted. Values are not quoted; owner ids
// and category names never contain commas or newlines.
func WriteCSV(w io.Writer, s Snapshot) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(csvHeader); err != nil {
		return xerrors.Errorf("write header: %w", err)
	}
	for _, c := range Categories() {
		mapping := s.counts[c]
		owners := make([]string, 0, len(mapping))
		for owner := range mapping {
			owners = append(owners, owner)
		}
		sort.Strings(owners)
		for _, owner := range owners {
			row := c.String() + "," + owner + "," + strconv.FormatInt(mapping[owner], 10) + "\n"
			if _, err := bw.WriteString(row); err != nil {
				return xerrors.Errorf("write %s row: %w", c, err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return xerrors.Errorf("flush csv: %w", err)
	}
	return nil
}

// FileExporter writes dated CSV files into a directory.
type FileExporter struct {
	Fs       afero.Fs
	Dir      string
	BaseName string
	Clock    quartz.Clock
	Logger   slog.Logger
}

// NewFileExporter returns an exporter writing to dir on the OS filesystem.
func NewFileExporter(dir string, logger slog.Logger) *FileExporter {
	return &FileExporter{
		Fs:       afero.NewOsFs(),
		Dir:      dir,
		BaseName: DefaultExportBaseName,
		Clock:    quartz.NewReal(),
		Logger:   logger,
	}
}

// FileName returns the name the next export will use.
func (e *FileExporter) FileName() string {
	base := e.BaseName
	if base == "" {
		base = DefaultExportBaseName
	}
	return base + "_" + e.clock().Now().Format(exportDateLayout) + exportExtension
}

// Export writes s to <Dir>/<BaseName>_<date>.csv, replacing any file of the
// same name atomically. It returns the written path.
func (e *FileExporter) Export(ctx context.Context, s Snapshot) (string, error) {
	if e.Fs == nil {
		return "", xerrors.New("file exporter requires Fs")
	}

	if err := e.Fs.MkdirAll(e.Dir, 0o755); err != nil {
		e.Logger.Error(ctx, "create export directory", slog.F("dir", e.Dir), slog.Error(err))
		return "", xerrors.Errorf("create export directory %q: %w", e.Dir, err)
	}

	path := filepath.Join(e.Dir, e.FileName())
	if err := e.writeAtomic(path, s); err != nil {
		e.Logger.Error(ctx, "save usage data", slog.F("path", path), slog.Error(err))
		return "", err
	}

	e.Logger.Info(ctx, "usage data saved", slog.F("path", path))
	return path, nil
}

func (e *FileExporter) writeAtomic(path string, s Snapshot) error {
	tmp, err := afero.TempFile(e.Fs, filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return xerrors.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = e.Fs.Remove(tmpName)
	}()

	if err := WriteCSV(tmp, s); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Errorf("close temp file: %w", err)
	}
	if err := e.Fs.Chmod(tmpName, 0o644); err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("chmod temp file: %w", err)
	}
	if err := e.Fs.Rename(tmpName, path); err != nil {
		return xerrors.Errorf("rename %q: %w", path, err)
	}
	return nil
}

func (e *FileExporter) clock() quartz.Clock {
	if e.Clock == nil {
		return quartz.NewReal()
	}
	return e.Clock
}
