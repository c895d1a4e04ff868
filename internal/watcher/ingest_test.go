package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/rag"
)

type addCall struct {
	text     string
	metadata map[string]string
}

type fakeAdder struct {
	mu    sync.Mutex
	calls []addCall
	seen  map[string]bool
	err   error
}

func (f *fakeAdder) AddDocument(_ context.Context, text string, metadata map[string]string) (rag.AddResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return rag.AddResult{}, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	f.calls = append(f.calls, addCall{text: text, metadata: metadata})
	if f.seen[text] {
		return rag.AddResult{Duplicate: true, Total: len(f.seen)}, nil
	}
	f.seen[text] = true
	return rag.AddResult{Added: true, Position: len(f.seen) - 1, Total: len(f.seen)}, nil
}

func (f *fakeAdder) snapshot() []addCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]addCall(nil), f.calls...)
}

// chanSource is a Source driven directly by the test.
type chanSource struct {
	events  chan []FileEvent
	errs    chan error
	once    sync.Once
	started chan struct{}
}

func newChanSource() *chanSource {
	return &chanSource{
		events:  make(chan []FileEvent, 4),
		errs:    make(chan error, 4),
		started: make(chan struct{}),
	}
}

func (c *chanSource) Start(ctx context.Context, _ string) error {
	close(c.started)
	<-ctx.Done()
	return ctx.Err()
}

func (c *chanSource) Stop() error {
	c.once.Do(func() {
		close(c.events)
		close(c.errs)
	})
	return nil
}

func (c *chanSource) Events() <-chan []FileEvent { return c.events }
func (c *chanSource) Errors() <-chan error { return c.errs }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngester_AddsAcceptedFilesWithSource(t *testing.T) {
	// Given: an inbox with a text file, a markdown file and an image
	dir := t.TempDir()
	txt := writeFile(t, dir, "sky.txt", "  The sky is blue.\n")
	md := writeFile(t, dir, "grass.MD", "Grass is green.")
	writeFile(t, dir, "photo.png", "binary")

	kb := &fakeAdder{}
	src := newChanSource()
	in := NewIngester(kb, src, IngestOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx, dir) }()
	<-src.started

	// When: the watcher reports all three
	src.events <- []FileEvent{
		{Path: "grass.MD", Operation: OpCreate},
		{Path: "photo.png", Operation: OpCreate},
		{Path: "sky.txt", Operation: OpModify},
	}

	// Then: only text files are added, trimmed, tagged with their path
	require.Eventually(t, func() bool { return len(kb.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	calls := kb.snapshot()
	assert.Equal(t, "Grass is green.", calls[0].text)
	assert.Equal(t, md, calls[0].metadata[SourceKey])
	assert.Equal(t, "The sky is blue.", calls[1].text)
	assert.Equal(t, txt, calls[1].metadata[SourceKey])
	assert.Equal(t, int64(2), in.Stats().Added)
}

func TestIngester_IgnoresDeletesAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.txt", "   \n")

	kb := &fakeAdder{}
	in := NewIngester(kb, newChanSource(), IngestOptions{})

	in.handleBatch(context.Background(), dir, []FileEvent{
		{Path: "gone.txt", Operation: OpDelete},
		{Path: "empty.txt", Operation: OpCreate},
	})

	assert.Empty(t, kb.snapshot())
	assert.Equal(t, int64(1), in.Stats().Skipped)
}

func TestIngester_SkipsOversizedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "big.txt", "0123456789")

	kb := &fakeAdder{}
	in := NewIngester(kb, newChanSource(), IngestOptions{MaxFileBytes: 5})

	in.IngestFile(context.Background(), path)

	assert.Empty(t, kb.snapshot())
	assert.Equal(t, int64(1), in.Stats().Skipped)
}

func TestIngester_CountsDuplicatesAndFailures(t *testing.T) {
	// Given: the same content in two files
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "same text")
	b := writeFile(t, dir, "b.txt", "same text")

	var reported []string
	kb := &fakeAdder{}
	in := NewIngester(kb, newChanSource(), IngestOptions{
		OnIngest: func(path string, _ rag.AddResult, _ error) { reported = append(reported, path) },
	})

	// When: both are ingested
	in.IngestFile(context.Background(), a)
	in.IngestFile(context.Background(), b)

	// Then: the second is a duplicate
	stats := in.Stats()
	assert.Equal(t, int64(1), stats.Added)
	assert.Equal(t, int64(1), stats.Duplicates)
	assert.Equal(t, []string{a, b}, reported)

	// When: the knowledge base fails
	kb.err = errors.New("embedding failed")
	in.IngestFile(context.Background(), a)

	// Then: the failure is counted
	assert.Equal(t, int64(1), in.Stats().Failed)
}

func TestIngester_ScanExistingSkipsHiddenDirs(t *testing.T) {
	// Given: files at the root, in a subfolder and in a hidden folder
	dir := t.TempDir()
	writeFile(t, dir, "one.txt", "first")
	writeFile(t, dir, "sub/two.md", "second")
	writeFile(t, dir, ".trash/three.txt", "third")

	kb := &fakeAdder{}
	src := newChanSource()
	in := NewIngester(kb, src, IngestOptions{ScanExisting: true})

	// When: the ingester starts and is stopped right away
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx, dir) }()
	<-src.started
	cancel()
	require.NoError(t, <-done)

	// Then: only the visible files were ingested
	var texts []string
	for _, c := range kb.snapshot() {
		texts = append(texts, c.text)
	}
	assert.ElementsMatch(t, []string{"first", "second"}, texts)
}

func TestIngester_ExtensionNormalisation(t *testing.T) {
	in := NewIngester(&fakeAdder{}, newChanSource(), IngestOptions{Extensions: []string{"TXT", " .rst ", ""}})

	assert.True(t, in.Accepts("a.txt"))
	assert.True(t, in.Accepts("b.RST"))
	assert.False(t, in.Accepts("c.md"))
}

func TestIsHidden(t *testing.T) {
	assert.True(t, isHidden(".swp"))
	assert.True(t, isHidden("dir/.hidden/file.txt"))
	assert.True(t, isHidden("notes.txt~"))
	assert.False(t, isHidden("./notes.txt"))
	assert.False(t, isHidden("sub/notes.md"))
}
