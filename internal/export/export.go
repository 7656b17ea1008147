// Package export streams many remote files into a single zip archive.
package export

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/catalog"
	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/metrics"
	"github.com/jun/vaultgw/internal/model"
)

var (
	// ErrEmptyExport is returned before anything is written when there is nothing to export.
	ErrEmptyExport = errors.New("no files to export")

	// ErrStreamOpen is returned when the response could not be started.
	ErrStreamOpen = errors.New("cannot open export stream")

	// ErrStreamAborted is returned when the client side of the stream failed
	// after the archive was started.
	ErrStreamAborted = errors.New("export stream aborted")
)

const (
	DefaultPipelineDepth = 4
	DefaultChunkSize     = 32 * 1024
)

// Opener starts streaming reads of remote files.
type Opener interface {
	Open(ctx context.Context, id string) (*adapter.Download, error)
}

// Sink receives the archive bytes.
type Sink interface {
	io.Writer
	// Start commits the response headers. Nothing is written before it.
	Start() error
}

// Flusher is implemented by sinks that buffer.
type Flusher interface {
	Flush() error
}

// Outcome summarizes a finished or aborted export.
type Outcome struct {
	Entries      int
	Placeholders int
	Truncated    int
	Bytes        int64
}

// Config tunes the per-file read/write pipeline.
type Config struct {
	PipelineDepth int
	ChunkSize     int
}

// Exporter builds archives.
type Exporter struct {
	depth  int
	pool   sync.Pool
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates an Exporter. Zero config fields take the defaults.
func NewExporter(cfg Config, logger *zap.Logger) *Exporter {
	if cfg.PipelineDepth <= 0 {
		cfg.PipelineDepth = DefaultPipelineDepth
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	size := cfg.ChunkSize
	return &Exporter{
		depth: cfg.PipelineDepth,
		pool: sync.Pool{New: func() any {
			b := make([]byte, size)
			return &b
		}},
		logger: logging.OrGlobal(logger),
		now:    time.Now,
	}
}

// Export writes one archive entry per item to sink, in order. A file that
// cannot be resolved or opened is replaced by a text placeholder; a file
// whose read fails midway stays as a truncated entry. Only a failure of the
// sink itself stops the export early, with ErrStreamAborted.
func (e *Exporter) Export(ctx context.Context, src Opener, items []model.ExportItem, sink Sink) (*Outcome, error) {
	if len(items) == 0 {
		return nil, ErrEmptyExport
	}
	if err := sink.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamOpen, err)
	}

	start := e.now()
	logger := logging.WithContext(ctx, e.logger)
	out := &Outcome{}
	tw := &trackingWriter{w: sink}
	zw := zip.NewWriter(tw)
	names := newNameSet()

	abort := func(err error) (*Outcome, error) {
		metrics.RecordExport("aborted", e.now().Sub(start))
		logger.Warn("export aborted",
			zap.Int("entries", out.Entries),
			zap.Int("items", len(items)),
			zap.Error(err),
		)
		return out, fmt.Errorf("%w: %v", ErrStreamAborted, err)
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		if err := e.exportItem(ctx, src, zw, names, i, item, out, logger); err != nil {
			if tw.err != nil {
				return abort(tw.err)
			}
			return abort(err)
		}
	}

	if err := zw.Close(); err != nil {
		return abort(err)
	}
	if f, ok := sink.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return abort(err)
		}
	}

	metrics.RecordExport("ok", e.now().Sub(start))
	logger.Info("export finished",
		zap.Int("entries", out.Entries),
		zap.Int("placeholders", out.Placeholders),
		zap.Int("truncated", out.Truncated),
		zap.Int64("bytes", out.Bytes),
		zap.Duration("duration", e.now().Sub(start)),
	)
	return out, nil
}

// exportItem writes exactly one entry for item. A non-nil error means the
// sink failed or ctx ended and the export must stop.
func (e *Exporter) exportItem(ctx context.Context, src Opener, zw *zip.Writer, names *nameSet, i int, item model.ExportItem, out *Outcome, logger *zap.Logger) error {
	id, ok := catalog.ParseRef(item.Ref)
	if !ok {
		return e.placeholder(zw, names, i, item, "the file reference is not a recognizable link or id", item.Ref, out)
	}

	dl, err := src.Open(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("export item unavailable", zap.String("file_id", id), zap.Error(err))
		return e.placeholder(zw, names, i, item, err.Error(), fallbackLink(item.Ref, id), out)
	}
	defer dl.Body.Close()

	name := names.claim(entryName(item.DestPath, dl.Name, i))
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: e.now(),
	})
	if err != nil {
		return err
	}
	out.Entries++

	n, err := e.pipe(ctx, dl.Body, w)
	out.Bytes += n

	var sErr *sinkError
	switch {
	case errors.As(err, &sErr):
		return sErr.err
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		out.Truncated++
		metrics.RecordExportEntry("truncated", n)
		logger.Warn("export entry truncated",
			zap.String("entry", name),
			zap.String("file_id", id),
			zap.Int64("bytes", n),
			zap.Error(err),
		)
		return nil
	}
	metrics.RecordExportEntry("ok", n)
	return nil
}

func (e *Exporter) placeholder(zw *zip.Writer, names *nameSet, i int, item model.ExportItem, reason, link string, out *Outcome) error {
	name := names.claim(placeholderName(entryName(item.DestPath, "", i)))
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: e.now(),
	})
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("This file could not be included in the archive.\n\n")
	fmt.Fprintf(&b, "File: %s\n", item.DestPath)
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	if link != "" {
		fmt.Fprintf(&b, "Open it manually: %s\n", link)
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	out.Entries++
	out.Placeholders++
	metrics.RecordExportEntry("placeholder", 0)
	return nil
}

// fallbackLink returns something a person can open to fetch the file by hand.
func fallbackLink(ref, id string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return "https://drive.google.com/file/d/" + id + "/view"
}

// trackingWriter remembers the first write error of the sink so it can be
// told apart from remote read errors.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
