package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/rag"
)

// SourceKey is the metadata key holding the ingested file's path.
const SourceKey = "source"

// DefaultMaxFileBytes caps how much of one file is read.
const DefaultMaxFileBytes int64 = 1 << 20

// Adder is the part of the knowledge base the ingester needs.
type Adder interface {
	AddDocument(ctx context.Context, text string, metadata map[string]string) (rag.AddResult, error)
}

// IngestOptions configures an Ingester.
type IngestOptions struct {
	// Extensions accepted, lower case with leading dot. Default: .txt, .md.
	Extensions []string
	// MaxFileBytes skips larger files. Default: 1 MiB.
	MaxFileBytes int64
	// ScanExisting ingests files already present before watching starts.
	ScanExisting bool
	// OnIngest is called after each file is processed.
	OnIngest func(path string, res rag.AddResult, err error)
}

// IngestStats counts ingester outcomes.
type IngestStats struct {
	Added      int64
	Duplicates int64
	Failed     int64
	Skipped    int64
}

// Ingester turns watched file changes into documents.
type Ingester struct {
	kb     Adder
	source Source
	opts   IngestOptions

	added      atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
	skipped    atomic.Int64
}

// NewIngester wires a knowledge base to an event source.
func NewIngester(kb Adder, source Source, opts IngestOptions) *Ingester {
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".txt", ".md"}
	}
	exts := make([]string, 0, len(opts.Extensions))
	for _, e := range opts.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	opts.Extensions = exts
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	return &Ingester{kb: kb, source: source, opts: opts}
}

// Run ingests changes under root until ctx is cancelled.
func (in *Ingester) Run(ctx context.Context, root string) error {
	if in.opts.ScanExisting {
		if err := in.scanExisting(ctx, root); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := in.source.Start(gctx, root)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-in.source.Errors():
				if !ok {
					return nil
				}
				slog.Warn("watch_error", slog.String("error", err.Error()))
			case batch, ok := <-in.source.Events():
				if !ok {
					return nil
				}
				in.handleBatch(gctx, root, batch)
			}
		}
	})

	slog.Info("inbox_watch_started",
		slog.String("dir", root),
		slog.Any("extensions", in.opts.Extensions))
	err := g.Wait()
	_ = in.source.Stop()
	return err
}

// Stats returns a snapshot of ingestion counters.
func (in *Ingester) Stats() IngestStats {
	return IngestStats{
		Added:      in.added.Load(),
		Duplicates: in.duplicates.Load(),
		Failed:     in.failed.Load(),
		Skipped:    in.skipped.Load(),
	}
}

func (in *Ingester) handleBatch(ctx context.Context, root string, batch []FileEvent) {
	for _, ev := range batch {
		if ctx.Err() != nil {
			return
		}
		// Deletes are ignored: stored documents are immutable.
		if ev.Operation == OpDelete || !in.Accepts(ev.Path) {
			continue
		}
		in.IngestFile(ctx, filepath.Join(root, ev.Path))
	}
}

func (in *Ingester) scanExisting(ctx context.Context, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != root && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isHidden(d.Name()) || !in.Accepts(path) {
			return nil
		}
		in.IngestFile(ctx, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan inbox: %w", err)
	}
	return nil
}

// Accepts reports whether path has one of the configured extensions.
func (in *Ingester) Accepts(path string) bool {
	return slices.Contains(in.opts.Extensions, strings.ToLower(filepath.Ext(path)))
}

// IngestFile reads one file and adds its content with the path as source.
// Empty and oversized files are skipped.
func (in *Ingester) IngestFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		in.report(path, rag.AddResult{}, fmt.Errorf("stat %s: %w", path, err))
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	if info.Size() > in.opts.MaxFileBytes {
		in.skipped.Add(1)
		slog.Warn("inbox_file_too_large",
			slog.String("path", path),
			slog.Int64("size", info.Size()),
			slog.Int64("max", in.opts.MaxFileBytes))
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		in.report(path, rag.AddResult{}, fmt.Errorf("read %s: %w", path, err))
		return
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		in.skipped.Add(1)
		slog.Debug("inbox_file_empty", slog.String("path", path))
		return
	}

	res, err := in.kb.AddDocument(ctx, text, map[string]string{SourceKey: path})
	in.report(path, res, err)
}

func (in *Ingester) report(path string, res rag.AddResult, err error) {
	switch {
	case err != nil:
		in.failed.Add(1)
		slog.Error("inbox_ingest_failed", slog.String("path", path), slog.String("error", err.Error()))
	case res.Duplicate:
		in.duplicates.Add(1)
		slog.Debug("inbox_duplicate", slog.String("path", path), slog.Int("position", res.Position))
	default:
		in.added.Add(1)
		slog.Info("inbox_document_added",
			slog.String("path", path),
			slog.Int("position", res.Position),
			slog.Int("total", res.Total))
	}
	if in.opts.OnIngest != nil {
		in.opts.OnIngest(path, res, err)
	}
}
