package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	if !strings.Contains(dir, ".amanrag") || filepath.Base(dir) != "logs" {
		t.Errorf("DefaultLogDir should end in .amanrag/logs, got: %s", dir)
	}
	if filepath.Base(DefaultLogPath()) != "server.log" {
		t.Errorf("DefaultLogPath should end with server.log, got: %s", DefaultLogPath())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.FilePath != "" {
		t.Errorf("expected no file logging by default, got: %s", cfg.FilePath)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("unexpected rotation defaults: %d MB, %d files", cfg.MaxSizeMB, cfg.MaxFiles)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()

	if cfg.Level != "debug" {
		t.Errorf("expected level 'debug', got: %s", cfg.Level)
	}
	if cfg.FilePath != DefaultLogPath() {
		t.Errorf("expected file logging at %s, got: %s", DefaultLogPath(), cfg.FilePath)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, cleanup, err := Setup(Config{
		Level:     "debug",
		FilePath:  logPath,
		MaxSizeMB: 1,
		MaxFiles:  3,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Debug("document_added", slog.Int("position", 4))
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	entry := ParseLine(strings.TrimSpace(string(data)))
	if !entry.Parsed {
		t.Fatalf("expected a JSON record, got: %s", data)
	}
	if entry.Msg != "document_added" {
		t.Errorf("expected msg document_added, got: %s", entry.Msg)
	}
	if entry.Attrs["position"] != float64(4) {
		t.Errorf("expected position=4, got: %v", entry.Attrs["position"])
	}
}

func TestSetup_LevelFiltersRecords(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 1})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	data, _ := os.ReadFile(logPath)
	if strings.Contains(string(data), "dropped") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("warn record should be written")
	}
}

func TestSetup_NoOutputs(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	// must not panic with nowhere to write
	logger.Info("discarded")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindLogFile_ExplicitPath(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "explicit.log")
	if err := os.WriteFile(logPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FindLogFile(logPath)
	if err != nil {
		t.Fatalf("FindLogFile failed: %v", err)
	}
	if got != logPath {
		t.Errorf("expected %s, got %s", logPath, got)
	}
}

func TestFindLogFile_ExplicitMissing(t *testing.T) {
	_, err := FindLogFile(filepath.Join(t.TempDir(), "missing.log"))
	if err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestFindLogFile_DefaultMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := FindLogFile("")
	if err == nil {
		t.Fatal("expected error when no log file exists")
	}
	if !strings.Contains(err.Error(), "--debug") {
		t.Errorf("error should hint at --debug, got: %v", err)
	}
}

func TestEnsureLogDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := EnsureLogDir(); err != nil {
		t.Fatalf("EnsureLogDir failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(home, ".amanrag", "logs"))
	if err != nil || !info.IsDir() {
		t.Errorf("log directory not created: %v", err)
	}
}

func TestSetupMCPMode_FileOnly(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cleanup, err := SetupMCPMode("")
	if err != nil {
		t.Fatalf("SetupMCPMode failed: %v", err)
	}
	slog.Debug("tool_called", slog.String("tool", "retrieve"))
	cleanup()

	data, err := os.ReadFile(filepath.Join(home, ".amanrag", "logs", "server.log"))
	if err != nil {
		t.Fatalf("MCP log file missing: %v", err)
	}
	if !strings.Contains(string(data), "mcp_logging_initialized") {
		t.Error("expected initialization record")
	}
	if !strings.Contains(string(data), "tool_called") {
		t.Error("expected debug record at default MCP level")
	}
}

// ============================================================================
// Viewer Tests
// ============================================================================

func TestParseLine_ValidJSON(t *testing.T) {
	line := `{"time":"2026-01-02T10:30:00.123Z","level":"INFO","msg":"index_loaded","count":3}`

	e := ParseLine(line)

	if !e.Parsed {
		t.Fatal("expected line to parse")
	}
	if e.Level != "INFO" || e.Msg != "index_loaded" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Time.IsZero() {
		t.Error("expected time to be parsed")
	}
	if _, ok := e.Attrs["msg"]; ok {
		t.Error("standard fields should not be repeated in attrs")
	}
	if e.Attrs["count"] != float64(3) {
		t.Errorf("expected count=3, got %v", e.Attrs["count"])
	}
}

func TestParseLine_InvalidJSON(t *testing.T) {
	e := ParseLine("panic: something broke")

	if e.Parsed {
		t.Error("plain text should not parse")
	}
	if e.Raw != "panic: something broke" {
		t.Errorf("raw line not preserved: %q", e.Raw)
	}
}

func TestViewer_Format(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	e := Entry{
		Time:   time.Date(2026, 1, 2, 10, 30, 0, 123_000_000, time.UTC),
		Level:  "WARN",
		Msg:    "index_mismatch",
		Attrs:  map[string]any{"index": 3, "docs": 2},
		Parsed: true,
	}

	got := v.Format(e)

	want := "10:30:00.123 WARN  index_mismatch docs=2 index=3"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestViewer_Format_Unparsed(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	if got := v.Format(Entry{Raw: "plain"}); got != "plain" {
		t.Errorf("expected raw line, got %q", got)
	}
}

func writeLogLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestViewer_Tail(t *testing.T) {
	path := writeLogLines(t,
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"one"}`,
		`{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"two"}`,
		`{"time":"2026-01-02T10:00:02Z","level":"INFO","msg":"three"}`,
	)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	entries, err := v.Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Msg != "two" || entries[1].Msg != "three" {
		t.Errorf("expected the last two entries, got %q and %q", entries[0].Msg, entries[1].Msg)
	}
}

func TestViewer_Tail_Filters(t *testing.T) {
	path := writeLogLines(t,
		`{"time":"2026-01-02T10:00:00Z","level":"DEBUG","msg":"embed_cache_hit"}`,
		`{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"index_mismatch"}`,
		`{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"persist_failed"}`,
	)

	t.Run("level", func(t *testing.T) {
		v := NewViewer(ViewerConfig{Level: "warn"}, &bytes.Buffer{})
		entries, err := v.Tail(path, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 {
			t.Errorf("expected warn and error entries, got %d", len(entries))
		}
	})

	t.Run("pattern", func(t *testing.T) {
		v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`persist`)}, &bytes.Buffer{})
		entries, err := v.Tail(path, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Msg != "persist_failed" {
			t.Errorf("expected only persist_failed, got %+v", entries)
		}
	})
}

func TestViewer_Tail_MissingFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	if _, err := v.Tail(filepath.Join(t.TempDir(), "nope.log"), 10); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestViewer_Follow(t *testing.T) {
	path := writeLogLines(t, `{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"before"}`)
	var out syncBuffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path) }()

	// give Follow time to seek to the end
	time.Sleep(150 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"time":"2026-01-02T10:00:05Z","level":"INFO","msg":"after"}` + "\n")
	_ = f.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !strings.Contains(out.String(), "after") {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}

	if !strings.Contains(out.String(), "after") {
		t.Error("expected appended entry to be printed")
	}
	if strings.Contains(out.String(), "before") {
		t.Error("existing entries should not be replayed")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ============================================================================
// Writer Rotation Tests
// ============================================================================

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")

	w, err := NewRotatingWriter(logPath, 0, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	data := []byte(strings.Repeat("x", 2048))
	for range 2 {
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	if _, err := os.Stat(logPath); err != nil {
		t.Error("main log file should exist")
	}
	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Error("rotated file .1 should exist")
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "maxfiles.log")

	w, err := NewRotatingWriter(logPath, 0, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	data := []byte(strings.Repeat("y", 1024))
	for range 6 {
		_, _ = w.Write(data)
	}

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Error("rotated file .1 should exist")
	}
	if _, err := os.Stat(logPath + ".4"); !os.IsNotExist(err) {
		t.Error("files beyond the rotation window should be removed")
	}
}

func TestRotatingWriter_SyncEachWrite(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "sync.log")

	w, err := NewRotatingWriter(logPath, 1, 1)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	_, _ = w.Write([]byte("visible\n"))

	data, _ := os.ReadFile(logPath)
	if string(data) != "visible\n" {
		t.Errorf("expected write to be visible immediately, got %q", data)
	}

	w.SetSyncEachWrite(false)
	if _, err := w.Write([]byte("buffered\n")); err != nil {
		t.Errorf("write with sync disabled failed: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Errorf("Sync failed: %v", err)
	}
}

func TestRotatingWriter_CloseTwice(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "close.log"), 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Errorf("Sync after Close should be a no-op, got: %v", err)
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")

	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	w.SetSyncEachWrite(false)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, _ = w.Write([]byte("line from writer\n"))
			}
		}()
	}
	wg.Wait()
	_ = w.Close()

	data, _ := os.ReadFile(logPath)
	if got := strings.Count(string(data), "\n"); got != 400 {
		t.Errorf("expected 400 lines, got %d", got)
	}
}
